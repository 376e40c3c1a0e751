package fake

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"go.viam.com/hal/platform"
)

// Watchdog is a fake watchdog timed by a clock, usually a clock.Mock.
type Watchdog struct {
	recorder

	clk clock.Clock

	wdMu     sync.Mutex
	started  bool
	timeout  time.Duration
	lastFeed time.Time
	feeds    int
}

var _ platform.WatchdogDriver = (*Watchdog)(nil)

// NewWatchdog returns a stopped watchdog.
func NewWatchdog(clk clock.Clock) *Watchdog {
	if clk == nil {
		clk = clock.New()
	}
	return &Watchdog{clk: clk}
}

// Start implements platform.WatchdogDriver.
func (w *Watchdog) Start(timeout time.Duration) error {
	if err := w.record("start", 0); err != nil {
		return err
	}
	w.wdMu.Lock()
	defer w.wdMu.Unlock()
	if w.started {
		return platform.StatusInvalidState
	}
	w.started = true
	w.timeout = timeout
	w.lastFeed = w.clk.Now()
	return nil
}

// Stop implements platform.WatchdogDriver.
func (w *Watchdog) Stop() error {
	if err := w.record("stop", 0); err != nil {
		return err
	}
	w.wdMu.Lock()
	defer w.wdMu.Unlock()
	if !w.started {
		return platform.StatusInvalidState
	}
	w.started = false
	return nil
}

// Feed implements platform.WatchdogDriver.
func (w *Watchdog) Feed() error {
	if err := w.record("feed", 0); err != nil {
		return err
	}
	w.wdMu.Lock()
	defer w.wdMu.Unlock()
	if !w.started {
		return platform.StatusInvalidState
	}
	w.lastFeed = w.clk.Now()
	w.feeds++
	return nil
}

// Started reports whether the watchdog is running.
func (w *Watchdog) Started() bool {
	w.wdMu.Lock()
	defer w.wdMu.Unlock()
	return w.started
}

// Feeds returns how many times the watchdog was fed.
func (w *Watchdog) Feeds() int {
	w.wdMu.Lock()
	defer w.wdMu.Unlock()
	return w.feeds
}

// Expired reports whether a running watchdog has gone a full timeout without being fed, which on
// hardware would have reset the system.
func (w *Watchdog) Expired() bool {
	w.wdMu.Lock()
	defer w.wdMu.Unlock()
	return w.started && w.clk.Since(w.lastFeed) >= w.timeout
}
