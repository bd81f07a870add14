// Package projectionmanager drives registered projections from their
// checkpoint to the head of the event log (spec §4.7): incremental update
// cycles read events past the checkpoint in batches, fold them into
// per-key state via projectionstore.Store, and advance the checkpoint only
// after a batch commits cleanly.
package projectionmanager

import (
	"context"
	"fmt"
	"sync"

	"github.com/majormartintibor/opossum/pkg/domain"
	"github.com/majormartintibor/opossum/pkg/projectionstore"
	"github.com/majormartintibor/opossum/pkg/telemetry"
)

// Source is the read side of an event store façade. eventstore.Store
// satisfies it without this package importing eventstore, keeping the
// dependency direction projectionmanager -> domain only.
type Source interface {
	Read(query domain.Query, opt domain.ReadOption) ([]domain.SequencedEvent, error)
	ReadAfter(eventTypes []string, after int64, limit int) ([]domain.SequencedEvent, error)
}

// Option configures a Manager at construction time.
type Option func(*config)

type config struct {
	batchSize         int
	enableAutoRebuild bool
	telemetry         *telemetry.Telemetry
}

func defaultConfig() config {
	return config{batchSize: 1000, enableAutoRebuild: true}
}

// WithBatchSize bounds how many events an Update cycle consumes per
// projection per call (spec §6.4, default 1000).
func WithBatchSize(n int) Option {
	return func(c *config) { c.batchSize = n }
}

// WithAutoRebuild controls whether Register triggers a full Rebuild when no
// checkpoint exists yet (spec §6.4, default true).
func WithAutoRebuild(enabled bool) Option {
	return func(c *config) { c.enableAutoRebuild = enabled }
}

// WithTelemetry instruments every Update and Rebuild cycle with a counter
// keyed by projection name (spec §6.3 [EXPANDED]).
func WithTelemetry(t *telemetry.Telemetry) Option {
	return func(c *config) { c.telemetry = t }
}

// registration is the type-erased handle Manager keeps per registered
// projection; projectionRunner[State] implements it so Manager itself
// need not be generic over every projection's state type.
type registration interface {
	Name() string
	rebuild() error
	update(batchSize int) (processed int, err error)
}

// Manager owns the checkpoint store and the registry of active
// projections for a single context.
type Manager struct {
	source      Source
	checkpoints *checkpointStore
	cfg         config

	mu     sync.Mutex
	byName map[string]registration
}

// New returns a Manager reading events from source and persisting
// checkpoints under contextDir.
func New(contextDir string, source Source, opts ...Option) *Manager {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Manager{
		source:      source,
		checkpoints: newCheckpointStore(contextDir),
		cfg:         cfg,
		byName:      make(map[string]registration),
	}
}

// Register adds projection def to the manager, backed by a fresh
// projectionstore.Store[State] rooted at contextDir. If no checkpoint
// exists yet and auto-rebuild is enabled, it runs a full Rebuild
// immediately so the projection starts caught up. Returns the store so
// callers can query projection state directly.
func Register[State any](m *Manager, contextDir string, def domain.Projection[State]) (*projectionstore.Store[State], error) {
	store := projectionstore.New[State](contextDir, def.ProjectionName, def.TagProvider)
	runner := &projectionRunner[State]{
		def:         def,
		store:       store,
		source:      m.source,
		checkpoints: m.checkpoints,
	}

	m.mu.Lock()
	m.byName[def.ProjectionName] = runner
	m.mu.Unlock()

	_, found, err := m.checkpoints.Load(def.ProjectionName)
	if err != nil {
		return nil, err
	}
	if !found && m.cfg.enableAutoRebuild {
		if err := runner.rebuild(); err != nil {
			return nil, fmt.Errorf("projectionmanager: initial rebuild of %q: %w", def.ProjectionName, err)
		}
	}
	return store, nil
}

// Rebuild drops a projection's state and checkpoint, then replays the full
// event history for it from position 1 (spec §4.7 "Full rebuild").
func (m *Manager) Rebuild(name string) (err error) {
	r, err := m.lookup(name)
	if err != nil {
		return err
	}
	err = r.rebuild()
	if m.cfg.telemetry != nil {
		m.cfg.telemetry.RecordProjectionCycle(context.Background(), name, err)
	}
	return err
}

// Update runs one incremental update cycle for name, consuming up to the
// configured batch size of new events (spec §4.7 "Incremental update cycle").
func (m *Manager) Update(name string) (processed int, err error) {
	r, err := m.lookup(name)
	if err != nil {
		return 0, err
	}
	processed, err = r.update(m.cfg.batchSize)
	if m.cfg.telemetry != nil {
		m.cfg.telemetry.RecordProjectionCycle(context.Background(), name, err)
	}
	return processed, err
}

// UpdateAll runs one incremental update cycle for every registered
// projection. Used by the daemon's tick (spec §4.7: "each tick runs one
// update cycle per registered projection").
func (m *Manager) UpdateAll() error {
	m.mu.Lock()
	names := make([]string, 0, len(m.byName))
	for name := range m.byName {
		names = append(names, name)
	}
	m.mu.Unlock()

	for _, name := range names {
		if _, err := m.Update(name); err != nil {
			return fmt.Errorf("projectionmanager: update %q: %w", name, err)
		}
	}
	return nil
}

// GetCheckpoint returns the persisted checkpoint for name, if any.
func (m *Manager) GetCheckpoint(name string) (domain.Checkpoint, bool, error) {
	return m.checkpoints.Load(name)
}

// SaveCheckpoint persists cp directly. Exposed for callers that maintain
// their own update loop outside Update/Rebuild (spec §6.3 IProjectionManager).
func (m *Manager) SaveCheckpoint(cp domain.Checkpoint) error {
	return m.checkpoints.Save(cp)
}

func (m *Manager) lookup(name string) (registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: projection %q is not registered", domain.ErrProjectionNotFound, name)
	}
	return r, nil
}
