//go:build !linux

// Package linux implements the platform drivers on Linux character devices. On other systems New
// always fails.
package linux

import (
	"go.viam.com/hal/logging"
	"go.viam.com/hal/platform"
)

// Options select the devices that are not numbered per bus.
type Options struct {
	GPIOChip       string
	WatchdogDevice string
}

// New fails: the backend needs Linux.
func New(opts Options, logger logging.Logger) (platform.Drivers, error) {
	return platform.Drivers{}, platform.StatusNotSupported
}
