// Package spi implements the SPI master bus context: blocking full duplex transfers and a queued
// asynchronous mode whose completions are delivered from the platform's notification path.
package spi

import (
	"context"
	"fmt"

	"go.uber.org/atomic"

	"go.viam.com/hal/bus"
	"go.viam.com/hal/logging"
	"go.viam.com/hal/platform"
)

// Context is one SPI master bus. It must be initialized and configured before use.
type Context struct {
	*bus.Lifecycle[Config]
	bus    int
	driver platform.SPIDriver

	async       atomic.Pointer[asyncDevice]
	defaultDone atomic.Pointer[completable]
	inFlight    atomic.Int32
	txQueued    atomic.Int64
	rxAvailable atomic.Int64
}

// New returns an uninitialized context for bus id on driver. A nil logger uses the global one.
func New(id int, driver platform.SPIDriver, logger logging.Logger) *Context {
	c := &Context{bus: id, driver: driver}
	c.Lifecycle = bus.NewLifecycle[Config](fmt.Sprintf("spi%d", id), backend{c}, logger)
	return c
}

// Bus returns the platform bus id.
func (c *Context) Bus() int {
	return c.bus
}

type backend struct {
	c *Context
}

func (b backend) Configure(ctx context.Context, cfg Config) error {
	return b.c.driver.Configure(b.c.bus, cfg.params())
}

func (b backend) Install(ctx context.Context, cfg Config) error {
	return b.c.driver.Install(b.c.bus)
}

func (b backend) Uninstall(ctx context.Context) error {
	return b.c.driver.Uninstall(b.c.bus)
}

// Detach removes the async device, which has to go before the bus driver.
func (b backend) Detach(ctx context.Context) error {
	return b.c.removeAsync()
}

func (c *Context) checkLength(name string, n int) error {
	if n == 0 {
		return bus.NewError(c.Op(name), bus.InvalidArgument)
	}
	if cfg, ok := c.Config(); ok && cfg.MaxTransferSize > 0 && n > cfg.MaxTransferSize {
		return bus.Errorf(c.Op(name), bus.InvalidArgument, "%d bytes exceeds max transfer size %d", n, cfg.MaxTransferSize)
	}
	return nil
}

func (c *Context) transmit(ctx context.Context, name string, tx, rx []byte) error {
	if c == nil {
		return bus.NewError(name, bus.InvalidArgument)
	}
	if err := c.Ready(name); err != nil {
		return err
	}
	if err := c.checkLength(name, max(len(tx), len(rx))); err != nil {
		return err
	}
	return c.Do(ctx, name, 0, func(ctx context.Context) error {
		return c.driver.Transmit(ctx, c.bus, &platform.SPITransfer{
			Tx:   tx,
			Rx:   rx,
			Bits: max(len(tx), len(rx)) * 8,
		})
	})
}

// Write clocks p out, discarding what is received.
func (c *Context) Write(ctx context.Context, p []byte) error {
	if len(p) == 0 {
		return c.invalid("write")
	}
	return c.transmit(ctx, "write", p, nil)
}

// Read clocks len(p) bytes in.
func (c *Context) Read(ctx context.Context, p []byte) error {
	if len(p) == 0 {
		return c.invalid("read")
	}
	return c.transmit(ctx, "read", nil, p)
}

// WriteRead runs one full duplex transfer of max(len(w), len(r)) bytes, sending w and filling r.
func (c *Context) WriteRead(ctx context.Context, w, r []byte) error {
	if len(w) == 0 || len(r) == 0 {
		return c.invalid("write read")
	}
	return c.transmit(ctx, "write read", w, r)
}

func (c *Context) invalid(name string) error {
	if c == nil {
		return bus.NewError(name, bus.InvalidArgument)
	}
	return bus.NewError(c.Op(name), bus.InvalidArgument)
}
