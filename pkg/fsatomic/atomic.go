// Package fsatomic implements the write-to-temp-then-rename protocol used
// by every persisted file in Opossum: events, the ledger, indices,
// projection instances and checkpoints (spec §9, "atomic file replace").
// Grounded on the atomicWriteFile helper pattern found across the
// filesystem-backed stores in the retrieval pack; the temp suffix here
// uses a uuid rather than a PID/counter so concurrent writers targeting
// the same final path (two index updates racing, say) never collide on
// the temp name itself.
package fsatomic

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// WriteFile writes data to path atomically: it is first written to a
// sibling temp file in the same directory (so the later rename is a
// same-filesystem syscall), optionally fsynced, then renamed over path.
// Callers observing the final name always see a fully-written file.
func WriteFile(path string, data []byte, flushImmediately bool) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("fsatomic: create directory %s: %w", dir, err)
	}

	tmpPath := fmt.Sprintf("%s.tmp.%s", path, uuid.NewString())
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("fsatomic: create temp file: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			f.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("fsatomic: write temp file: %w", err)
	}

	if flushImmediately {
		if err := f.Sync(); err != nil {
			return fmt.Errorf("fsatomic: fsync temp file: %w", err)
		}
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("fsatomic: close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("fsatomic: rename temp file: %w", err)
	}

	committed = true
	return nil
}

// ReadFile is a thin wrapper so callers only import os here, keeping the
// temp-file naming convention (and the sweep in Sweep) colocated with the
// write path.
func ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// Sweep removes orphaned "<name>.tmp.<uuid>" files left behind by a crash
// between temp-file write and rename (spec §7: "Event files whose rename
// never completed remain as .tmp garbage and are swept at startup").
func Sweep(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if isTempName(d.Name()) {
			_ = os.Remove(path)
		}
		return nil
	})
}

func isTempName(name string) bool {
	return strings.Contains(name, ".tmp.")
}
