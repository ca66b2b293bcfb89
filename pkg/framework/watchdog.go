package framework

import (
	"context"
	"sync"
	"time"

	"github.com/golang/glog"
)

// Watchdog tracks the liveness of tasks which report to it. A task which
// stays silent longer than Timeout is reported once until it reports again.
type Watchdog struct {
	Timeout time.Duration
	// OnStall is called for every stalled task. The default logs an error.
	OnStall func(name string, silent time.Duration)

	lock    sync.Mutex
	seen    map[string]time.Time
	stalled map[string]bool
}

// NewWatchdog creates a Watchdog.
func NewWatchdog(timeout time.Duration) *Watchdog {
	return &Watchdog{
		Timeout: timeout,
		seen:    make(map[string]time.Time),
		stalled: make(map[string]bool),
	}
}

// Name implements Named.
func (w *Watchdog) Name() string {
	return "watchdog"
}

// Report records that the named task is alive.
func (w *Watchdog) Report(name string) {
	w.lock.Lock()
	w.seen[name] = time.Now()
	delete(w.stalled, name)
	w.lock.Unlock()
}

// Check reports the tasks silent at now and returns their names.
func (w *Watchdog) Check(now time.Time) []string {
	var names []string
	var silent []time.Duration
	w.lock.Lock()
	for name, at := range w.seen {
		if d := now.Sub(at); d > w.Timeout && !w.stalled[name] {
			w.stalled[name] = true
			names = append(names, name)
			silent = append(silent, d)
		}
	}
	w.lock.Unlock()
	for n, name := range names {
		if w.OnStall != nil {
			w.OnStall(name, silent[n])
		} else {
			glog.Errorf("watchdog: %s silent for %v", name, silent[n])
		}
	}
	return names
}

// Run implements Runnable. It checks twice per Timeout.
func (w *Watchdog) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.Timeout / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			w.Check(now)
		}
	}
}
