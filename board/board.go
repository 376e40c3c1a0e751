// Package board assembles the bus contexts described by a Config on top of one platform, and
// tears them down together.
package board

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"go.viam.com/hal/bus"
	"go.viam.com/hal/i2c"
	"go.viam.com/hal/logging"
	"go.viam.com/hal/pin"
	"go.viam.com/hal/platform"
	"go.viam.com/hal/spi"
	"go.viam.com/hal/uart"
	"go.viam.com/hal/utils"
	"go.viam.com/hal/watchdog"
)

// part is the lifecycle surface shared by every context a board owns.
type part interface {
	Name() string
	Init(ctx context.Context) error
	Deinit(ctx context.Context) error
}

// Board owns the contexts of one platform.
type Board struct {
	logger logging.Logger

	i2cs  map[string]*i2c.Context
	spis  map[string]*spi.Context
	uarts map[string]*uart.Context
	pins  map[string]*pin.Context
	wdt   *watchdog.Context

	// parts is in construction order; Close deinitializes in reverse.
	parts   []part
	workers utils.StoppableWorkers

	mu     sync.Mutex
	closed bool
}

// New initializes and configures every peripheral in conf. If any of them fails, everything
// already set up is deinitialized again and the first error is returned.
func New(ctx context.Context, conf *Config, drivers platform.Drivers, logger logging.Logger) (*Board, error) {
	if conf == nil {
		return nil, errors.New("board config is required")
	}
	if err := conf.Validate(""); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.Global().Sublogger("board")
	}
	if err := checkDrivers(conf, drivers); err != nil {
		return nil, err
	}

	b := &Board{
		logger: logger,
		i2cs:   map[string]*i2c.Context{},
		spis:   map[string]*spi.Context{},
		uarts:  map[string]*uart.Context{},
		pins:   map[string]*pin.Context{},
	}

	var setups []func(ctx context.Context) error
	for _, dev := range conf.I2Cs {
		c := i2c.New(dev.ID, drivers.I2C, logger.Sublogger(dev.Name))
		cfg, err := decode[i2c.Config](dev.Name, dev.Attributes)
		if err != nil {
			return nil, err
		}
		b.i2cs[dev.Name] = c
		setups = append(setups, b.add(c, func(ctx context.Context) error { return c.SetConfig(ctx, cfg) }))
	}
	for _, dev := range conf.SPIs {
		c := spi.New(dev.ID, drivers.SPI, logger.Sublogger(dev.Name))
		cfg, err := decode[spi.Config](dev.Name, dev.Attributes)
		if err != nil {
			return nil, err
		}
		b.spis[dev.Name] = c
		setups = append(setups, b.add(c, func(ctx context.Context) error { return c.SetConfig(ctx, cfg) }))
	}
	for _, dev := range conf.UARTs {
		c := uart.New(dev.ID, drivers.UART, logger.Sublogger(dev.Name))
		cfg, err := decode[uart.Config](dev.Name, dev.Attributes)
		if err != nil {
			return nil, err
		}
		b.uarts[dev.Name] = c
		setups = append(setups, b.add(c, func(ctx context.Context) error { return c.SetConfig(ctx, cfg) }))
	}
	var isr *pin.ISRService
	if drivers.ISR != nil {
		isr = pin.DefaultISRService(drivers.ISR)
	}
	for _, dev := range conf.Pins {
		c := pin.New(dev.ID, drivers.GPIO, isr, logger.Sublogger(dev.Name))
		cfg, err := decode[pin.Config](dev.Name, dev.Attributes)
		if err != nil {
			return nil, err
		}
		b.pins[dev.Name] = c
		setups = append(setups, b.add(c, func(ctx context.Context) error { return c.SetConfig(ctx, cfg) }))
	}
	var wdtConf watchdog.Config
	if conf.Watchdog != nil {
		var err error
		if wdtConf, err = decode[watchdog.Config]("watchdog", conf.Watchdog); err != nil {
			return nil, err
		}
		b.wdt = watchdog.New(drivers.Watchdog, logger.Sublogger("wdt"))
		setups = append(setups, b.add(b.wdt, func(ctx context.Context) error { return b.wdt.SetConfig(ctx, wdtConf) }))
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, setup := range setups {
		g.Go(func() error { return setup(gctx) })
	}
	if err := g.Wait(); err != nil {
		return nil, multierr.Combine(err, b.teardown(ctx))
	}

	if b.wdt != nil && wdtConf.FeedInterval() > 0 {
		if err := b.startFeeder(ctx, wdtConf); err != nil {
			return nil, multierr.Combine(err, b.teardown(ctx))
		}
	}
	logger.CDebugw(ctx, "board ready",
		"i2cs", len(b.i2cs), "spis", len(b.spis), "uarts", len(b.uarts), "pins", len(b.pins), "watchdog", b.wdt != nil)
	return b, nil
}

func checkDrivers(conf *Config, drivers platform.Drivers) error {
	missing := func(kind string) error {
		return errors.Wrapf(bus.NewError("board", bus.Unsupported), "platform has no %s driver", kind)
	}
	switch {
	case len(conf.I2Cs) != 0 && drivers.I2C == nil:
		return missing("i2c")
	case len(conf.SPIs) != 0 && drivers.SPI == nil:
		return missing("spi")
	case len(conf.UARTs) != 0 && drivers.UART == nil:
		return missing("uart")
	case len(conf.Pins) != 0 && drivers.GPIO == nil:
		return missing("gpio")
	case conf.Watchdog != nil && drivers.Watchdog == nil:
		return missing("watchdog")
	default:
		return nil
	}
}

// add records p as owned by the board and returns the setup that brings it up.
func (b *Board) add(p part, configure func(ctx context.Context) error) func(ctx context.Context) error {
	b.parts = append(b.parts, p)
	return func(ctx context.Context) error {
		if err := p.Init(ctx); err != nil {
			return err
		}
		return configure(ctx)
	}
}

// startFeeder enables the watchdog and feeds it in the background until the board is closed.
func (b *Board) startFeeder(ctx context.Context, conf watchdog.Config) error {
	if err := b.wdt.Enable(ctx); err != nil {
		return err
	}
	b.workers = utils.NewStoppableWorkers(utils.Every(conf.FeedInterval(), func(ctx context.Context) {
		if err := b.wdt.Feed(ctx); err != nil && ctx.Err() == nil {
			b.logger.Warnw("failed to feed watchdog", "error", err)
		}
	}))
	return nil
}

func (b *Board) teardown(ctx context.Context) error {
	if b.workers != nil {
		b.workers.Stop()
	}
	var err error
	for i := len(b.parts) - 1; i >= 0; i-- {
		p := b.parts[i]
		if deinitErr := p.Deinit(ctx); deinitErr != nil {
			b.logger.Warnw("failed to deinit", "bus", p.Name(), "error", deinitErr)
			err = multierr.Combine(err, deinitErr)
		}
	}
	return err
}

// Close stops the watchdog feeder and deinitializes every peripheral. Deinitializing an enabled
// watchdog stops it. Close can be called again after a failure to retry what is left.
func (b *Board) Close(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	if err := b.teardown(ctx); err != nil {
		return err
	}
	b.closed = true
	return nil
}

// I2CByName returns the I2C bus by the given name if it exists.
func (b *Board) I2CByName(name string) (*i2c.Context, bool) {
	c, ok := b.i2cs[name]
	return c, ok
}

// SPIByName returns the SPI bus by the given name if it exists.
func (b *Board) SPIByName(name string) (*spi.Context, bool) {
	c, ok := b.spis[name]
	return c, ok
}

// UARTByName returns the UART port by the given name if it exists.
func (b *Board) UARTByName(name string) (*uart.Context, bool) {
	c, ok := b.uarts[name]
	return c, ok
}

// PinByName returns the GPIO pin by the given name if it exists.
func (b *Board) PinByName(name string) (*pin.Context, bool) {
	c, ok := b.pins[name]
	return c, ok
}

// Watchdog returns the watchdog, or nil if the board has none.
func (b *Board) Watchdog() *watchdog.Context {
	return b.wdt
}

// I2CNames returns the names of all known I2C buses.
func (b *Board) I2CNames() []string {
	return sortedKeys(b.i2cs)
}

// SPINames returns the names of all known SPI buses.
func (b *Board) SPINames() []string {
	return sortedKeys(b.spis)
}

// UARTNames returns the names of all known UART ports.
func (b *Board) UARTNames() []string {
	return sortedKeys(b.uarts)
}

// PinNames returns the names of all known GPIO pins.
func (b *Board) PinNames() []string {
	return sortedKeys(b.pins)
}

func sortedKeys[V any](m map[string]V) []string {
	names := lo.Keys(m)
	sort.Strings(names)
	return names
}
