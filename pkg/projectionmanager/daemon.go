package projectionmanager

import (
	"context"
	"time"

	"github.com/majormartintibor/opossum/pkg/runner"
)

// Daemon polls a Manager at a fixed interval, running one update cycle per
// registered projection per tick (spec §4.7 "Daemon"). It implements
// runner.Service so it can be handed to runner.Runner alongside any other
// long-running component of the process.
type Daemon struct {
	manager  *Manager
	interval time.Duration
	logger   runner.Logger
	fastWake *fastWake

	cancel context.CancelFunc
	done   chan struct{}
}

// DaemonOption configures a Daemon at construction time.
type DaemonOption func(*Daemon)

// WithPollingInterval overrides the tick rate (spec §6.4, default 5s).
func WithPollingInterval(d time.Duration) DaemonOption {
	return func(daemon *Daemon) { daemon.interval = d }
}

// WithLogger attaches a runner.Logger for tick-level diagnostics.
func WithLogger(l runner.Logger) DaemonOption {
	return func(daemon *Daemon) { daemon.logger = l }
}

// NewDaemon returns a Daemon driving manager at the default 5 second
// polling interval until an option overrides it.
func NewDaemon(manager *Manager, opts ...DaemonOption) *Daemon {
	d := &Daemon{
		manager:  manager,
		interval: 5 * time.Second,
		logger:   runner.NewNoopLogger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Name identifies this service to a runner.Runner.
func (d *Daemon) Name() string {
	return "projection-daemon"
}

// Start launches the polling loop in the background and returns
// immediately; Stop cancels it. Each tick completes in full — including
// every registered projection's update cycle — before the next tick can
// fire, which is what keeps ticks from overlapping per projection
// (spec §4.7).
func (d *Daemon) Start(ctx context.Context) error {
	loopCtx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.done = make(chan struct{})

	go d.loop(loopCtx)
	return nil
}

// Stop cancels the polling loop and waits for the in-flight tick (if any)
// to finish, bounded by ctx (spec §5: "Cancellation stops the loop after
// the current batch completes").
func (d *Daemon) Stop(ctx context.Context) error {
	if d.cancel == nil {
		return nil
	}
	d.cancel()
	if d.fastWake != nil {
		d.fastWake.close()
	}
	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Daemon) loop(ctx context.Context) {
	defer close(d.done)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	var wake <-chan struct{}
	if d.fastWake != nil {
		wake = d.fastWake.wake
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.tick()
		case <-wake:
			d.tick()
		}
	}
}

func (d *Daemon) tick() {
	if err := d.manager.UpdateAll(); err != nil {
		d.logger.Error("projection tick failed", "error", err)
	}
}
