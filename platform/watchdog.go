package platform

import "time"

// WatchdogDriver is a system watchdog. Once started it resets the system unless fed at least once
// per timeout.
type WatchdogDriver interface {
	Start(timeout time.Duration) error
	Stop() error
	Feed() error
}
