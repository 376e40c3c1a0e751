//go:build linux

// Package linux implements the platform drivers on Linux character devices: i2c-dev, spidev,
// the GPIO character device, tty ports and the watchdog device.
package linux

import (
	"fmt"

	"periph.io/x/host/v3"

	"go.viam.com/hal/logging"
	"go.viam.com/hal/platform"
)

// Default device paths.
const (
	DefaultGPIOChip       = "/dev/gpiochip0"
	DefaultWatchdogDevice = "/dev/watchdog"
)

// Options select the devices that are not numbered per bus.
type Options struct {
	GPIOChip       string
	WatchdogDevice string
}

// New registers the periph host drivers and returns the Linux platform.
func New(opts Options, logger logging.Logger) (platform.Drivers, error) {
	if logger == nil {
		logger = logging.Global().Sublogger("linux")
	}
	if _, err := host.Init(); err != nil {
		return platform.Drivers{}, err
	}
	if opts.GPIOChip == "" {
		opts.GPIOChip = DefaultGPIOChip
	}
	if opts.WatchdogDevice == "" {
		opts.WatchdogDevice = DefaultWatchdogDevice
	}
	gpio := newGPIO(opts.GPIOChip, logger.Sublogger("gpio"))
	return platform.Drivers{
		I2C:      newI2C(logger.Sublogger("i2c")),
		SPI:      newSPI(logger.Sublogger("spi")),
		UART:     newUART(logger.Sublogger("uart")),
		GPIO:     gpio,
		ISR:      newISR(gpio, logger.Sublogger("isr")),
		Watchdog: newWatchdog(opts.WatchdogDevice, logger.Sublogger("wdt")),
	}, nil
}

func devicePath(configured, format string, n int) string {
	if configured != "" {
		return configured
	}
	return fmt.Sprintf(format, n)
}
