//go:build linux

package linux

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"golang.org/x/sys/unix"

	"go.viam.com/hal/logging"
	"go.viam.com/hal/platform"
)

// magicClose is written before closing the device to stop the watchdog. Drivers built with
// nowayout ignore it.
const magicClose = 'V'

// Watchdog drives a Linux watchdog device. The device is open exactly while the watchdog runs.
type Watchdog struct {
	path   string
	logger logging.Logger

	mu sync.Mutex
	fd int
}

var _ platform.WatchdogDriver = (*Watchdog)(nil)

func newWatchdog(path string, logger logging.Logger) *Watchdog {
	return &Watchdog{path: path, logger: logger, fd: -1}
}

// Start implements platform.WatchdogDriver. The timeout is rounded up to whole seconds, the
// resolution of WDIOC_SETTIMEOUT.
func (w *Watchdog) Start(timeout time.Duration) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fd >= 0 {
		return platform.StatusInvalidState
	}
	fd, err := unix.Open(w.path, unix.O_WRONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return errors.Wrapf(err, "opening %s", w.path)
	}
	secs := int((timeout + time.Second - 1) / time.Second)
	if err := unix.IoctlSetPointerInt(fd, unix.WDIOC_SETTIMEOUT, secs); err != nil {
		return multierr.Combine(errors.Wrap(err, "setting watchdog timeout"), w.stop(fd))
	}
	w.fd = fd
	w.logger.Debugw("watchdog started", "device", w.path, "timeout_s", secs)
	return nil
}

// Stop implements platform.WatchdogDriver.
func (w *Watchdog) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fd < 0 {
		return platform.StatusInvalidState
	}
	if err := w.stop(w.fd); err != nil {
		return err
	}
	w.fd = -1
	return nil
}

func (w *Watchdog) stop(fd int) error {
	if _, err := unix.Write(fd, []byte{magicClose}); err != nil {
		return err
	}
	return unix.Close(fd)
}

// Feed implements platform.WatchdogDriver.
func (w *Watchdog) Feed() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fd < 0 {
		return platform.StatusInvalidState
	}
	return unix.IoctlWatchdogKeepalive(w.fd)
}
