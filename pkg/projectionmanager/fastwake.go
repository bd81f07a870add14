package projectionmanager

import (
	"time"

	"github.com/fsnotify/fsnotify"
)

// fastWake watches a directory for writes and requests an early tick, never
// more often than minInterval, without ever replacing the daemon's regular
// polling ticker — the poll remains the floor; fsnotify can only shorten
// the wait (SPEC_FULL.md §4.10, "fast-wake"). It is disabled by default;
// the faithful-to-spec behaviour is the regular pollingInterval alone.
type fastWake struct {
	watcher     *fsnotify.Watcher
	minInterval time.Duration
	wake        chan struct{}
	stop        chan struct{}
}

// WithFastWake enables an opt-in fsnotify watch on watchDir, waking the
// daemon early (bounded by minInterval) on filesystem activity instead of
// waiting out the full polling interval. Never disables the polling
// interval itself; it only shortens the occasional wait.
func WithFastWake(watchDir string, minInterval time.Duration) DaemonOption {
	return func(d *Daemon) {
		fw, err := newFastWake(watchDir, minInterval)
		if err != nil {
			d.logger.Error("fast-wake disabled: could not start watcher", "error", err, "dir", watchDir)
			return
		}
		d.fastWake = fw
	}
}

func newFastWake(dir string, minInterval time.Duration) (*fastWake, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}

	fw := &fastWake{
		watcher:     watcher,
		minInterval: minInterval,
		wake:        make(chan struct{}, 1),
		stop:        make(chan struct{}),
	}
	go fw.run()
	return fw, nil
}

func (fw *fastWake) run() {
	var lastWake time.Time
	for {
		select {
		case <-fw.stop:
			return
		case _, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if time.Since(lastWake) < fw.minInterval {
				continue
			}
			lastWake = time.Now()
			select {
			case fw.wake <- struct{}{}:
			default:
			}
		case _, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (fw *fastWake) close() {
	close(fw.stop)
	fw.watcher.Close()
}
