// Package platform defines the driver surface the bus contexts are built on. A platform backend
// (the fake one for tests, the Linux one for real hardware) implements these interfaces; nothing
// above this package sees a platform type or result code directly.
package platform

import "fmt"

// Status is a platform-native result code. Backends that have no richer error type (the fake
// backend, embedded ports) return these.
type Status int

// The platform status codes.
const (
	StatusOK Status = iota
	StatusFail
	StatusTimeout
	StatusInvalidArg
	StatusInvalidState
	StatusNotSupported
	StatusNoMem
	StatusNotFound
)

var statusNames = map[Status]string{
	StatusOK:           "ok",
	StatusFail:         "fail",
	StatusTimeout:      "timeout",
	StatusInvalidArg:   "invalid argument",
	StatusInvalidState: "invalid state",
	StatusNotSupported: "not supported",
	StatusNoMem:        "no memory",
	StatusNotFound:     "not found",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Error lets a Status be returned as an error. StatusOK should never be returned as one.
func (s Status) Error() string {
	return "platform: " + s.String()
}

// Drivers bundles the backends a board is assembled from. Nil members mean the platform has no
// such peripheral.
type Drivers struct {
	I2C      I2CDriver
	SPI      SPIDriver
	UART     UARTDriver
	GPIO     GPIODriver
	ISR      ISRService
	Watchdog WatchdogDriver
}
