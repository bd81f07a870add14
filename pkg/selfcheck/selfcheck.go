// Package selfcheck implements the optional, read-only consistency sweep of
// spec §4.9 [EXPANDED]: it loads every index file's membership into an
// in-memory modernc.org/sqlite table, reads every event file in Go, and
// queries that table once per (event, expected index) pair to report any
// event whose position is missing from an index it should belong to — the crash window described in spec.md §7, where a process can
// die after writing an event file but before every index Add call commits.
// This operationalises spec.md §9's Open Question about a startup
// self-check: it is never required for correctness (every index is
// self-healing on next Add, per §4.3) and it never mutates stored state.
package selfcheck

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/majormartintibor/opossum/pkg/safename"
	_ "modernc.org/sqlite"
)

// Orphan names one missing index membership: an event at Position whose
// EventType or Tag index never recorded it.
type Orphan struct {
	Position  int64
	EventType string
	IndexKind string // "eventtype" or "tag"
	IndexName string
}

// Report is the result of one Verify call.
type Report struct {
	EventCount int
	IndexCount int
	Orphans    []Orphan
}

// Clean reports whether the sweep found no orphans.
func (r *Report) Clean() bool {
	return len(r.Orphans) == 0
}

type eventRecord struct {
	Position int64 `json:"position"`
	Event    struct {
		EventType string `json:"eventType"`
		Tags      []struct {
			Key   string `json:"key"`
			Value string `json:"value"`
		} `json:"tags"`
	} `json:"event"`
}

// Verify scans contextDir's events/ and indices/ subtrees and cross-checks
// that every event's position appears in its own event-type index and every
// tag index its tags imply. The scratch database is in-memory and discarded
// when Verify returns.
func Verify(ctx context.Context, contextDir string) (*Report, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("selfcheck: open scratch database: %w", err)
	}
	defer db.Close()

	if err := createSchema(ctx, db); err != nil {
		return nil, err
	}

	events, err := loadEvents(filepath.Join(contextDir, "events"))
	if err != nil {
		return nil, err
	}

	indexMembers, indexCount, err := loadIndices(contextDir)
	if err != nil {
		return nil, err
	}
	if err := insertIndexMembers(ctx, db, indexMembers); err != nil {
		return nil, err
	}

	report := &Report{EventCount: len(events), IndexCount: indexCount}

	for _, e := range events {
		want := eventTypeIndexName(e.Event.EventType)
		member, err := isIndexMember(ctx, db, e.Position, want)
		if err != nil {
			return nil, err
		}
		if !member {
			report.Orphans = append(report.Orphans, Orphan{
				Position:  e.Position,
				EventType: e.Event.EventType,
				IndexKind: "eventtype",
				IndexName: want,
			})
		}

		for _, tag := range e.Event.Tags {
			want := tagIndexName(tag.Key, tag.Value)
			member, err := isIndexMember(ctx, db, e.Position, want)
			if err != nil {
				return nil, err
			}
			if !member {
				report.Orphans = append(report.Orphans, Orphan{
					Position:  e.Position,
					EventType: e.Event.EventType,
					IndexKind: "tag",
					IndexName: want,
				})
			}
		}
	}

	return report, nil
}

func createSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE index_members (
			index_name TEXT NOT NULL,
			position   INTEGER NOT NULL
		);
		CREATE INDEX idx_index_members ON index_members(index_name, position);
	`)
	if err != nil {
		return fmt.Errorf("selfcheck: create schema: %w", err)
	}
	return nil
}

func insertIndexMembers(ctx context.Context, db *sql.DB, members []indexMember) error {
	if len(members) == 0 {
		return nil
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("selfcheck: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO index_members(index_name, position) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("selfcheck: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, m := range members {
		if _, err := stmt.ExecContext(ctx, m.indexName, m.position); err != nil {
			return fmt.Errorf("selfcheck: insert index member: %w", err)
		}
	}
	return tx.Commit()
}

func isIndexMember(ctx context.Context, db *sql.DB, position int64, indexName string) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM index_members WHERE index_name = ? AND position = ?`,
		indexName, position,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("selfcheck: query index membership: %w", err)
	}
	return count > 0, nil
}

type indexMember struct {
	indexName string
	position  int64
}

func loadEvents(eventsDir string) ([]eventRecord, error) {
	entries, err := os.ReadDir(eventsDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("selfcheck: read events dir: %w", err)
	}

	var records []eventRecord
	for _, entry := range entries {
		if entry.IsDir() || strings.Contains(entry.Name(), ".tmp.") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(eventsDir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("selfcheck: read %s: %w", entry.Name(), err)
		}
		var rec eventRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("selfcheck: parse %s: %w", entry.Name(), err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func loadIndices(contextDir string) ([]indexMember, int, error) {
	var members []indexMember
	count := 0

	for _, sub := range []string{"indices/eventtype", "indices/tag"} {
		dir := filepath.Join(contextDir, sub)
		entries, err := os.ReadDir(dir)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, 0, fmt.Errorf("selfcheck: read %s: %w", dir, err)
		}

		for _, entry := range entries {
			if entry.IsDir() || strings.Contains(entry.Name(), ".tmp.") {
				continue
			}
			count++
			indexName := filepath.Join(sub, entry.Name())

			raw, err := os.ReadFile(filepath.Join(dir, entry.Name()))
			if err != nil {
				return nil, 0, fmt.Errorf("selfcheck: read %s: %w", indexName, err)
			}
			var f struct {
				Positions []int64 `json:"positions"`
			}
			if err := json.Unmarshal(raw, &f); err != nil {
				return nil, 0, fmt.Errorf("selfcheck: parse %s: %w", indexName, err)
			}
			for _, p := range f.Positions {
				members = append(members, indexMember{indexName: indexName, position: p})
			}
		}
	}

	return members, count, nil
}

// eventTypeIndexName and tagIndexName reuse safename's escaping directly so
// the expected index path can never drift from what the indices package
// actually writes.
func eventTypeIndexName(eventType string) string {
	return filepath.Join("indices/eventtype", safename.EventTypeFile(eventType))
}

func tagIndexName(key, value string) string {
	return filepath.Join("indices/tag", safename.TagFile(key, value))
}
