// Package contextregistry owns the lifecycle of one event store + projection
// manager pair per logical context (spec §4.8), creating the on-disk subtree
// for a context the first time it is addressed and caching the pair for the
// process lifetime. Adapted from the teacher's per-tenant store map in
// pkg/multitenancy/store.go, swapping "database per tenant" for "directory
// subtree per context".
package contextregistry

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/majormartintibor/opossum/pkg/eventstore"
	"github.com/majormartintibor/opossum/pkg/payload"
	"github.com/majormartintibor/opossum/pkg/projectionmanager"
)

// Context bundles the resolved Store and ProjectionManager for one logical
// context, plus the directory they are rooted at.
type Context struct {
	Name    string
	RootDir string
	Store   *eventstore.Store
	Manager *projectionmanager.Manager
}

// Option configures a Registry at construction time.
type Option func(*config)

type config struct {
	storeOpts   []eventstore.Option
	managerOpts []projectionmanager.Option
}

// WithStoreOptions passes opts through to every context's eventstore.Store.
func WithStoreOptions(opts ...eventstore.Option) Option {
	return func(c *config) { c.storeOpts = append(c.storeOpts, opts...) }
}

// WithManagerOptions passes opts through to every context's
// projectionmanager.Manager.
func WithManagerOptions(opts ...projectionmanager.Option) Option {
	return func(c *config) { c.managerOpts = append(c.managerOpts, opts...) }
}

// Registry resolves context names to their Store+Manager pair, creating the
// pair lazily on first use. Safe for concurrent use: resolving or creating a
// context never blocks an in-flight append in a different, already-resolved
// context (spec §5 [EXPANDED]), since each context's own append mutex and
// per-key projection locks are independent of the registry's own lock.
type Registry struct {
	root     string
	registry *payload.Registry
	cfg      config

	mu       sync.RWMutex
	contexts map[string]*Context
}

// New returns a Registry rooted at root. registry must already hold every
// payload shape any context's events use; it is shared across all contexts.
func New(root string, registry *payload.Registry, opts ...Option) *Registry {
	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Registry{
		root:     root,
		registry: registry,
		cfg:      cfg,
		contexts: make(map[string]*Context),
	}
}

// Context resolves name to its Store+ProjectionManager pair, creating the
// context's directory subtree and opening both on first use. Subsequent
// calls with the same name return the cached pair.
func (r *Registry) Context(name string) (*Context, error) {
	r.mu.RLock()
	ctx, ok := r.contexts[name]
	r.mu.RUnlock()
	if ok {
		return ctx, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check after acquiring the write lock: another goroutine may
	// have created it while we waited.
	ctx, ok = r.contexts[name]
	if ok {
		return ctx, nil
	}

	dir := filepath.Join(r.root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("contextregistry: create context %q: %w", name, err)
	}

	store, err := eventstore.New(dir, r.registry, r.cfg.storeOpts...)
	if err != nil {
		return nil, fmt.Errorf("contextregistry: open store for %q: %w", name, err)
	}

	manager := projectionmanager.New(dir, store, r.cfg.managerOpts...)

	ctx = &Context{Name: name, RootDir: dir, Store: store, Manager: manager}
	r.contexts[name] = ctx
	return ctx, nil
}

// Names returns the names of every context resolved so far.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.contexts))
	for name := range r.contexts {
		names = append(names, name)
	}
	return names
}

// Close releases every resolved context. A Registry holds no file handles
// or background goroutines of its own — each context's Store closes its
// files after every call, and its Manager's polling Daemon (if one was
// started) is a separate runner.Service the caller stops on its own — so
// Close only drops the cached pairs. Nothing on disk is removed, and a
// later Context call for a name reopens that context's existing store.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.contexts = make(map[string]*Context)
	return nil
}
