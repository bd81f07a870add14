// Package ledger persists the monotonically increasing last-assigned
// sequence position for a context (spec §4.1). It is the gate for
// position allocation: every Append reads it once, then rewrites it once.
package ledger

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/majormartintibor/opossum/pkg/fsatomic"
)

// fileName is fixed per spec §6.1: "{contextName}/.ledger".
const fileName = ".ledger"

// state is the on-disk shape, bit-exact with spec §6.2.
type state struct {
	LastSequencePosition int64 `json:"lastSequencePosition"`
	EventCount           int64 `json:"eventCount"`
}

// Ledger is rooted at a single context directory.
type Ledger struct {
	path             string
	flushImmediately bool
}

// New returns a Ledger rooted at contextDir/.ledger.
func New(contextDir string, flushImmediately bool) *Ledger {
	return &Ledger{
		path:             filepath.Join(contextDir, fileName),
		flushImmediately: flushImmediately,
	}
}

// GetLast returns the last committed position, or 0 if the ledger file is
// absent, empty or unreadable — a corrupt ledger is treated as zero
// (spec §4.1 failure semantics); the next successful append overwrites it.
func (l *Ledger) GetLast() int64 {
	raw, err := fsatomic.ReadFile(l.path)
	if err != nil {
		return 0
	}
	var s state
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0
	}
	return s.LastSequencePosition
}

// GetNext returns GetLast()+1 without persisting anything; the caller
// commits with Update once event files are durably written.
func (l *Ledger) GetNext() int64 {
	return l.GetLast() + 1
}

// Update persists position atomically, replacing eventCount with the
// count implied by going from the prior last position (clamped at 0) to
// position — this keeps eventCount a faithful running total even when the
// ledger is reconciled by directory scan after a crash (spec §7).
func (l *Ledger) Update(position int64) error {
	prior := l.GetLast()
	delta := position - prior
	if delta < 0 {
		delta = 0
	}

	s := state{
		LastSequencePosition: position,
		EventCount:           l.eventCount() + delta,
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("ledger: marshal: %w", err)
	}
	if err := fsatomic.WriteFile(l.path, raw, l.flushImmediately); err != nil {
		return fmt.Errorf("ledger: write: %w", err)
	}
	return nil
}

// Reconcile is called at startup to recover from a crash between an event
// file's commit and the ledger update (spec §7): it advances the ledger to
// maxCommittedPosition, found by a directory scan of events/, when that is
// higher than the current last position. A lower or equal value leaves the
// ledger unchanged; Reconcile never moves it backwards.
func (l *Ledger) Reconcile(maxCommittedPosition int64) error {
	if maxCommittedPosition <= l.GetLast() {
		return nil
	}
	return l.Update(maxCommittedPosition)
}

func (l *Ledger) eventCount() int64 {
	raw, err := fsatomic.ReadFile(l.path)
	if err != nil {
		return 0
	}
	var s state
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0
	}
	return s.EventCount
}
