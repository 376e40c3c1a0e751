package pin

import (
	"context"

	"go.viam.com/hal/bus"
	"go.viam.com/hal/platform"
)

// SetInterrupt records the trigger and handler used by EnableInterrupt. An enabled interrupt is
// disabled first, so the new setting takes effect on the next EnableInterrupt. handler runs on
// the platform's interrupt dispatch path and must not block.
func (c *Context) SetInterrupt(ctx context.Context, trigger platform.Trigger, handler func()) error {
	const name = "set interrupt"
	if c == nil || handler == nil {
		return bus.NewError(name, bus.InvalidArgument)
	}
	if trigger < platform.TriggerNone || trigger > platform.TriggerLowLevel {
		return bus.Errorf(c.Op(name), bus.InvalidArgument, "invalid trigger %d", trigger)
	}
	return c.Do(ctx, name, 0, func(ctx context.Context) error {
		if err := c.disarmIfActive(ctx); err != nil {
			return err
		}
		c.trigger = trigger
		c.handler = handler
		c.intrSet = true
		return nil
	})
}

// EnableInterrupt arms the interrupt recorded by SetInterrupt. Enabling an enabled interrupt does
// nothing.
func (c *Context) EnableInterrupt(ctx context.Context) error {
	const name = "enable interrupt"
	if c == nil {
		return bus.NewError(name, bus.InvalidArgument)
	}
	if c.isr == nil {
		return bus.Errorf(c.Op(name), bus.Unsupported, "no interrupt service")
	}
	return c.Do(ctx, name, 0, func(ctx context.Context) error {
		if !c.intrSet {
			return bus.Errorf(c.Op(name), bus.NotConfigured, "no interrupt set")
		}
		if c.intrActive.Load() {
			return nil
		}
		if err := c.driver.SetTrigger(c.pin, c.trigger); err != nil {
			return err
		}
		if err := c.isr.addHandler(c.pin, c.handler); err != nil {
			if cleanupErr := c.driver.SetTrigger(c.pin, platform.TriggerNone); cleanupErr != nil {
				c.Logger().Warnw("failed to clear trigger", "pin", c.pin, "error", cleanupErr)
			}
			return err
		}
		c.intrActive.Store(true)
		return nil
	})
}

// DisableInterrupt disarms the interrupt. Disabling a disabled interrupt does nothing.
func (c *Context) DisableInterrupt(ctx context.Context) error {
	const name = "disable interrupt"
	if c == nil {
		return bus.NewError(name, bus.InvalidArgument)
	}
	return c.WithLock(ctx, name, 0, func(ctx context.Context, state bus.State) error {
		return c.disarmIfActive(ctx)
	})
}

// InterruptEnabled reports whether the interrupt is armed. It does not wait for the context lock.
func (c *Context) InterruptEnabled() bool {
	return c != nil && c.intrActive.Load()
}

func (c *Context) disarmIfActive(ctx context.Context) error {
	if !c.intrActive.Load() {
		return nil
	}
	return c.disarm(ctx)
}

// disarm must be called holding the lock. A handler that cannot be removed is logged and the
// trigger is cleared regardless.
func (c *Context) disarm(ctx context.Context) error {
	if err := c.isr.removeHandler(c.pin); err != nil {
		c.Logger().CDebugw(ctx, "failed to remove interrupt handler", "pin", c.pin, "error", err)
	}
	if err := c.driver.SetTrigger(c.pin, platform.TriggerNone); err != nil {
		return err
	}
	c.intrActive.Store(false)
	return nil
}
