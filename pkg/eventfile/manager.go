// Package eventfile persists and reads individual events, one file per
// position (spec §4.2). There is no long-lived handle: files are opened
// as needed and the rename from a temp path is the only commit point.
package eventfile

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/majormartintibor/opossum/pkg/domain"
	"github.com/majormartintibor/opossum/pkg/fsatomic"
	"github.com/majormartintibor/opossum/pkg/payload"
	"golang.org/x/exp/slices"
)

// dir is the fixed subdirectory name under a context root.
const dir = "events"

// parallelThreshold is the point above which Manager.ReadMany fans out
// reads concurrently; below it, serial is faster than task overhead
// (spec §4.2, §9).
const parallelThreshold = 10

// onDisk mirrors the bit-exact event file shape in spec §6.2.
type onDisk struct {
	Position int64        `json:"position"`
	Event    onDiskEvent  `json:"event"`
	Metadata onDiskMeta   `json:"metadata"`
}

type onDiskEvent struct {
	EventType string          `json:"eventType"`
	Event     json.RawMessage `json:"event"`
	Tags      []domain.Tag    `json:"tags"`
}

type onDiskMeta struct {
	Timestamp     string  `json:"timestamp"`
	CorrelationID *string `json:"correlationId"`
	CausationID   *string `json:"causationId"`
	OperationID   *string `json:"operationId"`
	UserID        *string `json:"userId"`
}

// Manager reads and writes event files under a single context root.
type Manager struct {
	root             string
	registry         *payload.Registry
	flushImmediately bool
}

// New returns a Manager rooted at contextDir/events.
func New(contextDir string, registry *payload.Registry, flushImmediately bool) *Manager {
	return &Manager{
		root:             filepath.Join(contextDir, dir),
		registry:         registry,
		flushImmediately: flushImmediately,
	}
}

// path returns the ten-digit zero-padded file path for position.
func (m *Manager) path(position int64) string {
	return filepath.Join(m.root, fmt.Sprintf("%010d.json", position))
}

// Write serializes and commits a single sequenced event via the
// temp-file-then-rename protocol (spec §4.2 steps a-d).
func (m *Manager) Write(e domain.SequencedEvent) error {
	raw, err := payload.Marshal(e.Event.Payload)
	if err != nil {
		return fmt.Errorf("eventfile: marshal payload: %w", err)
	}

	record := onDisk{
		Position: e.Position,
		Event: onDiskEvent{
			EventType: e.Event.EventType,
			Event:     raw,
			Tags:      e.Event.Tags,
		},
		Metadata: onDiskMeta{
			Timestamp:     e.Metadata.Timestamp.Format(timestampLayout),
			CorrelationID: e.Metadata.CorrelationID,
			CausationID:   e.Metadata.CausationID,
			OperationID:   e.Metadata.OperationID,
			UserID:        e.Metadata.UserID,
		},
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("eventfile: marshal event: %w", err)
	}

	if err := fsatomic.WriteFile(m.path(e.Position), data, m.flushImmediately); err != nil {
		return fmt.Errorf("eventfile: write position %d: %w", e.Position, err)
	}
	return nil
}

// Read loads the event at position. A missing file is a corruption signal
// per spec §4.2 ("Missing files are a corruption signal").
func (m *Manager) Read(position int64) (domain.SequencedEvent, error) {
	path := m.path(position)
	raw, err := fsatomic.ReadFile(path)
	if err != nil {
		return domain.SequencedEvent{}, &domain.StorageCorruptionError{
			Position: position,
			Path:     path,
			Cause:    err,
		}
	}

	var record onDisk
	if err := json.Unmarshal(raw, &record); err != nil {
		return domain.SequencedEvent{}, &domain.StorageCorruptionError{
			Position: position,
			Path:     path,
			Cause:    err,
		}
	}

	payloadValue, err := m.registry.Unmarshal(record.Event.EventType, record.Event.Event)
	if err != nil {
		return domain.SequencedEvent{}, &domain.StorageCorruptionError{
			Position: position,
			Path:     path,
			Cause:    err,
		}
	}

	ts, err := parseTimestamp(record.Metadata.Timestamp)
	if err != nil {
		return domain.SequencedEvent{}, &domain.StorageCorruptionError{
			Position: position,
			Path:     path,
			Cause:    err,
		}
	}

	return domain.SequencedEvent{
		Position: record.Position,
		Event: domain.Event{
			EventType: record.Event.EventType,
			Payload:   payloadValue,
			Tags:      record.Event.Tags,
		},
		Metadata: domain.Metadata{
			Timestamp:     ts,
			CorrelationID: record.Metadata.CorrelationID,
			CausationID:   record.Metadata.CausationID,
			OperationID:   record.Metadata.OperationID,
			UserID:        record.Metadata.UserID,
		},
	}, nil
}

// ReadMany loads positions (must already be sorted ascending) and returns
// the events in the same order. Above parallelThreshold, reads fan out
// across goroutines (spec §4.2, §9 "parallel batch read").
func (m *Manager) ReadMany(positions []int64) ([]domain.SequencedEvent, error) {
	if len(positions) == 0 {
		return nil, nil
	}
	if !slices.IsSorted(positions) {
		return nil, fmt.Errorf("eventfile: ReadMany requires sorted positions")
	}

	events := make([]domain.SequencedEvent, len(positions))

	if len(positions) < parallelThreshold {
		for i, p := range positions {
			e, err := m.Read(p)
			if err != nil {
				return nil, err
			}
			events[i] = e
		}
		return events, nil
	}

	errs := make([]error, len(positions))
	var wg sync.WaitGroup
	sem := make(chan struct{}, FanoutWidth())
	for i, p := range positions {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, p int64) {
			defer wg.Done()
			defer func() { <-sem }()
			e, err := m.Read(p)
			events[i] = e
			errs[i] = err
		}(i, p)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return events, nil
}
