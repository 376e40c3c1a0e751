// Package pin implements the GPIO pin context: level reads and writes, direction changes and
// edge or level interrupts dispatched through a shared, reference counted interrupt service.
package pin

import (
	"context"
	"fmt"

	"go.uber.org/atomic"

	"go.viam.com/hal/bus"
	"go.viam.com/hal/logging"
	"go.viam.com/hal/platform"
)

// Context is one GPIO pin.
type Context struct {
	*bus.Lifecycle[Config]
	pin    int
	driver platform.GPIODriver
	isr    *ISRService

	// Guarded by the context lock.
	attached bool
	trigger  platform.Trigger
	handler  func()
	intrSet  bool

	// Written under the context lock, read without it.
	intrActive atomic.Bool
}

// New returns an uninitialized context for pin on driver. Every initialized pin holds a reference
// on isr; a nil isr leaves the pin without interrupt support.
func New(pin int, driver platform.GPIODriver, isr *ISRService, logger logging.Logger) *Context {
	c := &Context{pin: pin, driver: driver, isr: isr}
	c.Lifecycle = bus.NewLifecycle[Config](fmt.Sprintf("pin%d", pin), backend{c}, logger)
	return c
}

// Pin returns the pin number.
func (c *Context) Pin() int {
	return c.pin
}

type backend struct {
	c *Context
}

// Configure replaces the pin's trigger, so an armed interrupt is disarmed first and has to be
// enabled again.
func (b backend) Configure(ctx context.Context, cfg Config) error {
	params, err := cfg.params()
	if err != nil {
		return err
	}
	if err := b.c.disarmIfActive(ctx); err != nil {
		return err
	}
	return b.c.driver.Configure(b.c.pin, params)
}

// Attach takes a reference on the interrupt service.
func (b backend) Attach(ctx context.Context) error {
	if b.c.isr == nil {
		return nil
	}
	if err := b.c.isr.Acquire(); err != nil {
		return err
	}
	b.c.attached = true
	return nil
}

// Detach disarms the pin's interrupt and then drops its interrupt service reference.
func (b backend) Detach(ctx context.Context) error {
	c := b.c
	if err := c.disarmIfActive(ctx); err != nil {
		return err
	}
	c.intrSet = false
	c.handler = nil
	if !c.attached {
		return nil
	}
	if err := c.isr.Release(); err != nil {
		return err
	}
	c.attached = false
	return nil
}

// Get reads the pin level.
func (c *Context) Get(ctx context.Context) (bool, error) {
	if c == nil {
		return false, bus.NewError("get", bus.InvalidArgument)
	}
	var high bool
	err := c.Do(ctx, "get", 0, func(ctx context.Context) error {
		var err error
		high, err = c.driver.Get(c.pin)
		return err
	})
	return high, err
}

// Set drives the pin level.
func (c *Context) Set(ctx context.Context, high bool) error {
	if c == nil {
		return bus.NewError("set", bus.InvalidArgument)
	}
	return c.Do(ctx, "set", 0, func(ctx context.Context) error {
		return c.driver.Set(c.pin, high)
	})
}

// SetDirection changes the direction and pull of a configured pin. An armed interrupt is disarmed
// and stays set, so EnableInterrupt arms it again.
func (c *Context) SetDirection(ctx context.Context, dir platform.Direction, pull platform.Pull) error {
	const name = "set direction"
	if c == nil {
		return bus.NewError(name, bus.InvalidArgument)
	}
	switch {
	case dir != platform.DirectionInput && dir != platform.DirectionOutput:
		return bus.Errorf(c.Op(name), bus.InvalidArgument, "invalid direction %d", dir)
	case pull < platform.PullNone || pull > platform.PullDown:
		return bus.Errorf(c.Op(name), bus.InvalidArgument, "invalid pull %d", pull)
	}
	return c.Do(ctx, name, 0, func(ctx context.Context) error {
		if err := c.disarmIfActive(ctx); err != nil {
			return err
		}
		return c.driver.Configure(c.pin, platform.GPIOParams{Direction: dir, Pull: pull})
	})
}
