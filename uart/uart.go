// Package uart implements the UART port context: blocking reads and writes and a buffered
// asynchronous mode with completion callbacks.
package uart

import (
	"context"
	"fmt"

	"go.uber.org/atomic"
	"go.uber.org/multierr"

	"go.viam.com/hal/bus"
	"go.viam.com/hal/logging"
	"go.viam.com/hal/platform"
)

// Context is one UART port. It must be initialized and configured before use.
type Context struct {
	*bus.Lifecycle[Config]
	port   int
	driver platform.UARTDriver

	buffered    atomic.Pointer[BufferedConfig]
	txQueued    atomic.Int64
	rxAvailable atomic.Int64
}

// New returns an uninitialized context for port id on driver. A nil logger uses the global one.
func New(id int, driver platform.UARTDriver, logger logging.Logger) *Context {
	c := &Context{port: id, driver: driver}
	c.Lifecycle = bus.NewLifecycle[Config](fmt.Sprintf("uart%d", id), backend{c}, logger)
	return c
}

// Port returns the platform port id.
func (c *Context) Port() int {
	return c.port
}

type backend struct {
	c *Context
}

func (b backend) Configure(ctx context.Context, cfg Config) error {
	return b.c.driver.Configure(b.c.port, cfg.params())
}

// Install installs the driver and routes the pins. The driver is removed again if the pins cannot
// be set.
func (b backend) Install(ctx context.Context, cfg Config) error {
	if err := b.c.driver.Install(b.c.port, cfg.rxBufferSize(), cfg.TxBufferSize); err != nil {
		return err
	}
	if err := b.c.driver.SetPins(b.c.port, cfg.pins()); err != nil {
		return multierr.Combine(err, b.c.driver.Uninstall(b.c.port))
	}
	return nil
}

func (b backend) Uninstall(ctx context.Context) error {
	return b.c.driver.Uninstall(b.c.port)
}

// Detach leaves buffered mode so a later Init starts without it.
func (b backend) Detach(ctx context.Context) error {
	b.c.buffered.Store(nil)
	return nil
}

func (c *Context) invalid(name string) error {
	if c == nil {
		return bus.NewError(name, bus.InvalidArgument)
	}
	return bus.NewError(c.Op(name), bus.InvalidArgument)
}

// Write sends all of p. A driver that accepts only part of it fails the call.
func (c *Context) Write(ctx context.Context, p []byte) error {
	const name = "write"
	if c == nil || len(p) == 0 {
		return c.invalid(name)
	}
	return c.Do(ctx, name, 0, func(ctx context.Context) error {
		n, err := c.driver.Write(ctx, c.port, p)
		if err != nil {
			return err
		}
		if n != len(p) {
			return bus.Errorf(c.Op(name), bus.Other, "wrote %d of %d bytes", n, len(p))
		}
		return nil
	})
}

// Read fills p, waiting at most the operation timeout. It returns how many bytes arrived; fewer
// than len(p) fails as Timeout.
func (c *Context) Read(ctx context.Context, p []byte) (int, error) {
	const name = "read"
	if c == nil || len(p) == 0 {
		return 0, c.invalid(name)
	}
	var n int
	err := c.Do(ctx, name, 0, func(ctx context.Context) error {
		var err error
		n, err = c.driver.Read(ctx, c.port, p)
		if err != nil {
			return err
		}
		if n < len(p) {
			return bus.Errorf(c.Op(name), bus.Timeout, "read %d of %d bytes", n, len(p))
		}
		return nil
	})
	return n, err
}
