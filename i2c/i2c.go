// Package i2c implements the I2C master bus context: register style reads and writes, composed
// multi segment transfers and the adapters that let device drivers written against tinygo or
// periph use a bus context directly.
package i2c

import (
	"context"
	"fmt"

	"go.viam.com/hal/bus"
	"go.viam.com/hal/logging"
	"go.viam.com/hal/platform"
)

// Context is one I2C master bus. It must be initialized and configured before use.
type Context struct {
	*bus.Lifecycle[Config]
	bus    int
	driver platform.I2CDriver
}

// New returns an uninitialized context for bus id on driver. A nil logger uses the global one.
func New(id int, driver platform.I2CDriver, logger logging.Logger) *Context {
	c := &Context{bus: id, driver: driver}
	c.Lifecycle = bus.NewLifecycle[Config](fmt.Sprintf("i2c%d", id), backend{c}, logger)
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

func (c *Context) check(op string, addr Address) error {
	if c == nil {
		return bus.NewError(op, bus.InvalidArgument)
	}
	if err := c.Ready(op); err != nil {
		return err
	}
	switch {
	case addr.TenBit:
		return bus.Errorf(c.Op(op), bus.Unsupported, "10-bit address %s", addr)
	case addr.Value > 0x7f:
		return bus.Errorf(c.Op(op), bus.InvalidArgument, "address %s out of range", addr)
	}
	return nil
}

// Write writes p to the device at addr.
func (c *Context) Write(ctx context.Context, addr Address, p []byte) error {
	if err := c.check("write", addr); err != nil {
		return err
	}
	if len(p) == 0 {
		return bus.NewError(c.Op("write"), bus.InvalidArgument)
	}
	return c.Do(ctx, "write", 0, func(ctx context.Context) error {
		return c.driver.Write(ctx, c.bus, addr.Value, p)
	})
}

// Read fills p from the device at addr. Zero length reads are rejected.
func (c *Context) Read(ctx context.Context, addr Address, p []byte) error {
	if err := c.check("read", addr); err != nil {
		return err
	}
	if len(p) == 0 {
		return bus.NewError(c.Op("read"), bus.InvalidArgument)
	}
	return c.Do(ctx, "read", 0, func(ctx context.Context) error {
		return c.driver.Read(ctx, c.bus, addr.Value, p)
	})
}

// WriteReadReg writes the register address reg and then, without releasing the bus, fills p from
// the device at addr.
func (c *Context) WriteReadReg(ctx context.Context, addr Address, reg, p []byte) error {
	if err := c.check("write read reg", addr); err != nil {
		return err
	}
	if len(reg) == 0 || len(p) == 0 {
		return bus.NewError(c.Op("write read reg"), bus.InvalidArgument)
	}
	return c.Do(ctx, "write read reg", 0, func(ctx context.Context) error {
		return c.driver.WriteRead(ctx, c.bus, addr.Value, reg, p)
	})
}

// ReadByteData reads one register of the device at addr.
func (c *Context) ReadByteData(ctx context.Context, addr Address, reg byte) (byte, error) {
	var b [1]byte
	if err := c.WriteReadReg(ctx, addr, []byte{reg}, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

// WriteByteData writes one register of the device at addr.
func (c *Context) WriteByteData(ctx context.Context, addr Address, reg, data byte) error {
	return c.Write(ctx, addr, []byte{reg, data})
}
