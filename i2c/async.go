package i2c

import (
	"context"

	"go.viam.com/hal/bus"
)

// AsyncStatus is the state of a context's asynchronous mode.
type AsyncStatus int

// Asynchronous mode states.
const (
	AsyncIdle AsyncStatus = iota
	AsyncBusy
	AsyncError
)

// AsyncCallback receives the result of an asynchronous operation.
type AsyncCallback func(err error)

// I2C controllers here have no interrupt or DMA driven mode, so the asynchronous operations only
// validate their arguments and the context state and then fail as Unsupported.

// EnableAsync is not supported.
func (c *Context) EnableAsync(ctx context.Context) error {
	return c.unsupported("enable async")
}

// DisableAsync is not supported.
func (c *Context) DisableAsync(ctx context.Context) error {
	if c == nil {
		return bus.NewError("disable async", bus.InvalidArgument)
	}
	return bus.NewError(c.Op("disable async"), bus.Unsupported)
}

// SetAsyncCallback is not supported.
func (c *Context) SetAsyncCallback(cb AsyncCallback) error {
	if c == nil || cb == nil {
		return bus.NewError("set async callback", bus.InvalidArgument)
	}
	return bus.NewError(c.Op("set async callback"), bus.Unsupported)
}

// AsyncStatus always reports AsyncIdle on a usable context.
func (c *Context) AsyncStatus() AsyncStatus {
	if c == nil || c.State() == bus.Uninitialized {
		return AsyncError
	}
	return AsyncIdle
}

// WriteAsync is not supported.
func (c *Context) WriteAsync(ctx context.Context, addr Address, p []byte) error {
	return c.unsupported("write async", p)
}

// ReadAsync is not supported.
func (c *Context) ReadAsync(ctx context.Context, addr Address, p []byte) error {
	return c.unsupported("read async", p)
}

// WriteReadRegAsync is not supported.
func (c *Context) WriteReadRegAsync(ctx context.Context, addr Address, reg, p []byte) error {
	return c.unsupported("write read reg async", reg, p)
}

func (c *Context) unsupported(name string, bufs ...[]byte) error {
	if c == nil {
		return bus.NewError(name, bus.InvalidArgument)
	}
	for _, p := range bufs {
		if len(p) == 0 {
			return bus.NewError(c.Op(name), bus.InvalidArgument)
		}
	}
	if c.State() == bus.Uninitialized {
		return bus.NewError(c.Op(name), bus.NotInitialized)
	}
	return bus.NewError(c.Op(name), bus.Unsupported)
}
