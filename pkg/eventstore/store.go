// Package eventstore is the façade that composes the ledger, the event-file
// manager and the indices into the DCB-style Append/Read contract of
// spec §4.4-§4.5: Append enforces an optional condition under a
// process-local mutex, Read resolves a Query to a position list and loads
// the corresponding events.
package eventstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/majormartintibor/opossum/pkg/domain"
	"github.com/majormartintibor/opossum/pkg/eventfile"
	"github.com/majormartintibor/opossum/pkg/fsatomic"
	"github.com/majormartintibor/opossum/pkg/index"
	"github.com/majormartintibor/opossum/pkg/ledger"
	"github.com/majormartintibor/opossum/pkg/payload"
	"github.com/majormartintibor/opossum/pkg/telemetry"
)

const eventsDir = "events"

// Option configures a Store at construction time, following the
// functional-options style used throughout the retrieval pack for
// per-component knobs.
type Option func(*config)

type config struct {
	flushEventsImmediately bool
	now                    func() time.Time
	telemetry              *telemetry.Telemetry
}

func defaultConfig() config {
	return config{
		flushEventsImmediately: true,
		now:                    time.Now,
	}
}

// WithFlushEventsImmediately controls whether event file writes are
// fsynced before the commit rename (spec §5: durability/throughput
// trade-off). Defaults to true.
func WithFlushEventsImmediately(flush bool) Option {
	return func(c *config) { c.flushEventsImmediately = flush }
}

// WithClock overrides the source of Metadata.Timestamp. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(c *config) { c.now = now }
}

// WithTelemetry instruments Append and Read with spans and counters
// (spec §6.3 [EXPANDED]). Omitting this option leaves the Store uninstrumented.
func WithTelemetry(t *telemetry.Telemetry) Option {
	return func(c *config) { c.telemetry = t }
}

// Store is a single context's event store: one ledger, one event-file
// manager, one set of indices, all rooted at the same context directory.
// The appendMu is the sole writer lock (spec §5: "a single process-local
// mutex serializes Append calls within a context"); reads never take it.
type Store struct {
	root     string
	registry *payload.Registry
	ledger   *ledger.Ledger
	files    *eventfile.Manager
	indices  *index.Indices
	cfg      config

	appendMu sync.Mutex
}

// New opens (or initializes) a Store rooted at contextDir. registry must
// already hold every payload shape this context's events use.
func New(contextDir string, registry *payload.Registry, opts ...Option) (*Store, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if err := os.MkdirAll(contextDir, 0o755); err != nil {
		return nil, err
	}

	s := &Store{
		root:     contextDir,
		registry: registry,
		ledger:   ledger.New(contextDir, cfg.flushEventsImmediately),
		files:    eventfile.New(contextDir, registry, cfg.flushEventsImmediately),
		indices:  index.NewIndices(contextDir),
		cfg:      cfg,
	}

	if err := s.recover(); err != nil {
		return nil, err
	}
	return s, nil
}

// eventsPath returns the context's events/ directory.
func (s *Store) eventsPath() string {
	return filepath.Join(s.root, eventsDir)
}

// recover performs the startup reconciliation of spec §7: sweep orphaned
// temp files left by a crash mid-write, reconcile the ledger against the
// highest committed position found on disk (a crash between an event
// file's rename and the ledger update leaves the ledger stale, never
// ahead), and re-add every committed position to the indices it belongs
// to — a crash between the rename (step 4) and the index Add (step 5)
// leaves a committed event invisible to a filtered Read forever unless
// recovery repairs it here. index.Set.Add is idempotent, so re-adding an
// already-indexed position is a no-op; this is the same self-healing
// property §4.3 already relies on, just driven at startup instead of on
// next write.
func (s *Store) recover() error {
	if err := fsatomic.Sweep(s.root); err != nil {
		return err
	}

	positions := allPositions(s.eventsPath())
	if len(positions) == 0 {
		return nil
	}

	for _, p := range positions {
		e, err := s.files.Read(p)
		if err != nil {
			return err
		}
		if err := s.indices.AddEvent(p, e.Event.EventType, e.Event.Tags); err != nil {
			return err
		}
	}

	maxPosition := positions[len(positions)-1]
	return s.ledger.Reconcile(maxPosition)
}

// Append validates events, evaluates an optional condition against the
// current log, then commits. The whole sequence — condition check,
// position allocation, event file writes, index updates, ledger update —
// runs under appendMu so no other Append in this process can interleave
// (spec §4.4, §5). The condition check evaluates FailIfEventsMatch before
// AfterSequencePosition so a losing concurrent append is reported as
// AppendConditionFailed whenever its own query already explains the
// staleness, rather than the less specific ConcurrencyMismatch.
func (s *Store) Append(events []domain.Event, condition *domain.AppendCondition) (position int64, err error) {
	if s.cfg.telemetry != nil {
		start := time.Now()
		ctx, span := s.cfg.telemetry.StartSpan(context.Background(), "eventstore.Append")
		defer func() {
			telemetry.EndSpan(span, err)
			s.cfg.telemetry.RecordAppend(ctx, time.Since(start).Seconds(), len(events), err)
		}()
	}

	if err := domain.ValidateEvents(events); err != nil {
		return 0, err
	}
	for _, e := range events {
		if !s.registry.Has(e.EventType) {
			return 0, fmt.Errorf("%w: event type %q has no registered payload shape", domain.ErrInvalidArgument, e.EventType)
		}
	}

	s.appendMu.Lock()
	defer s.appendMu.Unlock()

	lastPosition := s.ledger.GetLast()

	if condition != nil {
		if err := domain.ValidateQuery(condition.FailIfEventsMatch); err != nil {
			return 0, err
		}

		// Check FailIfEventsMatch before the AfterSequencePosition mismatch
		// (spec §8 scenario S2): when a concurrent winner has already appended
		// an event this condition's query matches, the loser must see
		// AppendConditionFailed, not ConcurrencyMismatch, even though its
		// AfterSequencePosition is now stale too. A stale position that the
		// query does NOT match (the ledger advanced for an unrelated reason)
		// still falls through to ConcurrencyMismatch below.
		lowerBound := int64(0)
		if condition.AfterSequencePosition != nil {
			lowerBound = *condition.AfterSequencePosition
		}
		matches := resolve(s.eventsPath(), s.indices, condition.FailIfEventsMatch)
		for _, p := range matches {
			if p > lowerBound {
				return 0, &domain.AppendConditionFailedError{
					Query:                 condition.FailIfEventsMatch,
					DisqualifyingPosition: p,
				}
			}
		}

		if condition.AfterSequencePosition != nil && *condition.AfterSequencePosition != lastPosition {
			return 0, &domain.ConcurrencyMismatchError{
				Expected: condition.AfterSequencePosition,
				Actual:   lastPosition,
			}
		}
	}

	now := s.cfg.now()
	position = lastPosition
	for _, e := range events {
		position++
		sequenced := domain.SequencedEvent{
			Position: position,
			Event:    e,
			Metadata: domain.Metadata{Timestamp: now},
		}
		if err := s.files.Write(sequenced); err != nil {
			return 0, err
		}
		if err := s.indices.AddEvent(position, e.EventType, e.Tags); err != nil {
			return 0, err
		}
	}

	if err := s.ledger.Update(position); err != nil {
		return 0, err
	}
	return position, nil
}

// Read resolves query to a position list (ascending by default, spec
// §4.5), loads the matching events, and returns them ordered per opt.
func (s *Store) Read(query domain.Query, opt domain.ReadOption) (events []domain.SequencedEvent, err error) {
	if s.cfg.telemetry != nil {
		start := time.Now()
		ctx, span := s.cfg.telemetry.StartSpan(context.Background(), "eventstore.Read")
		defer func() {
			telemetry.EndSpan(span, err)
			s.cfg.telemetry.RecordRead(ctx, time.Since(start).Seconds(), err)
		}()
	}

	if err := domain.ValidateQuery(query); err != nil {
		return nil, err
	}

	positions := resolve(s.eventsPath(), s.indices, query)
	events, err = s.files.ReadMany(positions)
	if err != nil {
		return nil, err
	}

	if opt == domain.Descending {
		for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
			events[i], events[j] = events[j], events[i]
		}
	}
	return events, nil
}

// ReadAfter resolves eventTypes to positions strictly greater than after,
// ascending, capped at limit (0 means unlimited), and loads only those
// events. This is the position-bound read the projection manager's
// incremental update cycle needs (spec §4.7 step 2: "query events ... with
// a sequence-position filter > P, up to a configured batchSize") — it
// avoids re-reading already-processed event bodies on every tick the way a
// plain Read(query) would.
func (s *Store) ReadAfter(eventTypes []string, after int64, limit int) ([]domain.SequencedEvent, error) {
	query := domain.Query{Items: []domain.QueryItem{{EventTypes: eventTypes}}}
	if err := domain.ValidateQuery(query); err != nil {
		return nil, err
	}

	positions := resolve(s.eventsPath(), s.indices, query)
	var filtered []int64
	for _, p := range positions {
		if p > after {
			filtered = append(filtered, p)
			if limit > 0 && len(filtered) == limit {
				break
			}
		}
	}

	return s.files.ReadMany(filtered)
}

// LastPosition returns the context's current ledger position (0 if empty).
func (s *Store) LastPosition() int64 {
	return s.ledger.GetLast()
}
