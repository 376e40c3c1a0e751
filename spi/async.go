package spi

import (
	"context"

	"go.uber.org/atomic"

	"go.viam.com/hal/bus"
	"go.viam.com/hal/platform"
)

// DefaultQueueSize bounds the async queue when AsyncConfig does not.
const DefaultQueueSize = 8

// AsyncConfig configures the queued device added by EnableAsync.
type AsyncConfig struct {
	QueueSize       int `json:"queue_size,omitempty"`
	MaxTransferSize int `json:"max_transfer_size,omitempty"`
	DMAChannel      int `json:"dma_channel,omitempty"`
}

// Completable receives the result of one asynchronous transfer. OnComplete is called exactly once,
// from the platform's completion path, and must not block.
type Completable interface {
	OnComplete(err error)
}

// CompletionFunc adapts a function to Completable.
type CompletionFunc func(err error)

// OnComplete calls f(err).
func (f CompletionFunc) OnComplete(err error) {
	f(err)
}

// AsyncStatus is the state of a context's asynchronous mode.
type AsyncStatus int

// Asynchronous mode states.
const (
	AsyncDisabled AsyncStatus = iota
	AsyncIdle
	AsyncBusy
)

func (s AsyncStatus) String() string {
	switch s {
	case AsyncIdle:
		return "idle"
	case AsyncBusy:
		return "busy"
	default:
		return "disabled"
	}
}

// AsyncStats are the async accounting counters. TxQueued is the number of bytes queued for
// sending and not yet completed, RxAvailable the number of bytes received by completed reads
// since async mode was enabled and InFlight the number of queued transfers.
type AsyncStats struct {
	TxQueued    int
	RxAvailable int
	InFlight    int
}

type asyncDevice struct {
	dev       platform.SPIAsyncDevice
	queueSize int
}

type completable struct {
	Completable
}

// asyncTxn is attached to a queued descriptor and consumed by the first completion for it.
type asyncTxn struct {
	owner    *Context
	done     Completable
	txLen    int
	rxLen    int
	consumed atomic.Bool
}

// EnableAsync adds a queued device on the bus. The bus driver must be installed. Enabling an
// enabled context does nothing.
func (c *Context) EnableAsync(ctx context.Context, cfg AsyncConfig) error {
	const name = "enable async"
	if c == nil {
		return bus.NewError(name, bus.InvalidArgument)
	}
	if cfg.QueueSize < 0 || cfg.MaxTransferSize < 0 {
		return bus.NewError(c.Op(name), bus.InvalidArgument)
	}
	if cfg.QueueSize == 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	return c.WithLock(ctx, name, bus.DeinitTimeout, func(ctx context.Context, state bus.State) error {
		if state != bus.DriverInstalled {
			return bus.Errorf(c.Op(name), bus.NotConfigured, "bus driver not installed")
		}
		if c.async.Load() != nil {
			return nil
		}
		dev, err := c.driver.AddAsyncDevice(c.bus, platform.SPIAsyncParams{
			QueueSize:       cfg.QueueSize,
			MaxTransferSize: cfg.MaxTransferSize,
			DMAChannel:      cfg.DMAChannel,
		}, complete)
		if err != nil {
			return err
		}
		c.txQueued.Store(0)
		c.rxAvailable.Store(0)
		c.async.Store(&asyncDevice{dev: dev, queueSize: cfg.QueueSize})
		c.Logger().CDebugw(ctx, "async mode enabled", "bus", c.Name(), "queue_size", cfg.QueueSize)
		return nil
	})
}

// DisableAsync removes the queued device. It fails, leaving async mode enabled, while the platform
// still holds queued transfers.
func (c *Context) DisableAsync(ctx context.Context) error {
	const name = "disable async"
	if c == nil {
		return bus.NewError(name, bus.InvalidArgument)
	}
	return c.WithLock(ctx, name, bus.DeinitTimeout, func(ctx context.Context, state bus.State) error {
		return c.removeAsync()
	})
}

// removeAsync must be called holding the lock.
func (c *Context) removeAsync() error {
	a := c.async.Load()
	if a == nil {
		return nil
	}
	if err := a.dev.Remove(); err != nil {
		return err
	}
	c.async.Store(nil)
	return nil
}

// SetAsyncCallback sets the completion used by async calls that pass none.
func (c *Context) SetAsyncCallback(done Completable) error {
	if c == nil || done == nil {
		return bus.NewError("set async callback", bus.InvalidArgument)
	}
	c.defaultDone.Store(&completable{done})
	return nil
}

// AsyncStatus reports whether async mode is enabled and has transfers queued.
func (c *Context) AsyncStatus() AsyncStatus {
	switch {
	case c == nil || c.async.Load() == nil:
		return AsyncDisabled
	case c.inFlight.Load() > 0:
		return AsyncBusy
	default:
		return AsyncIdle
	}
}

// AsyncStats returns the async accounting counters.
func (c *Context) AsyncStats() AsyncStats {
	if c == nil {
		return AsyncStats{}
	}
	return AsyncStats{
		TxQueued:    int(c.txQueued.Load()),
		RxAvailable: int(c.rxAvailable.Load()),
		InFlight:    int(c.inFlight.Load()),
	}
}

// WriteAsync queues p to be clocked out. done, or the callback set with SetAsyncCallback when done
// is nil, is called once the transfer finishes. p must not be modified until then.
func (c *Context) WriteAsync(ctx context.Context, p []byte, done Completable) error {
	if len(p) == 0 {
		return c.invalid("write async")
	}
	return c.queue(ctx, "write async", p, nil, done)
}

// ReadAsync queues a transfer filling p. p must not be used until done is called.
func (c *Context) ReadAsync(ctx context.Context, p []byte, done Completable) error {
	if len(p) == 0 {
		return c.invalid("read async")
	}
	return c.queue(ctx, "read async", nil, p, done)
}

// WriteReadAsync queues one full duplex transfer sending w and filling r.
func (c *Context) WriteReadAsync(ctx context.Context, w, r []byte, done Completable) error {
	if len(w) == 0 || len(r) == 0 {
		return c.invalid("write read async")
	}
	return c.queue(ctx, "write read async", w, r, done)
}

// queue hands one transfer to the async device. Until Queue succeeds the descriptor and its
// record belong to this call and are freed on every failure; afterwards they belong to the
// platform until complete runs.
func (c *Context) queue(ctx context.Context, name string, tx, rx []byte, done Completable) error {
	if c == nil {
		return bus.NewError(name, bus.InvalidArgument)
	}
	if done == nil {
		if d := c.defaultDone.Load(); d != nil {
			done = d.Completable
		}
	}
	if done == nil {
		return bus.Errorf(c.Op(name), bus.InvalidArgument, "no completion")
	}
	if err := c.Ready(name); err != nil {
		return err
	}
	n := max(len(tx), len(rx))
	if err := c.checkLength(name, n); err != nil {
		return err
	}

	return c.WithLock(ctx, name, 0, func(ctx context.Context, state bus.State) error {
		a := c.async.Load()
		if a == nil {
			return bus.Errorf(c.Op(name), bus.NotConfigured, "async mode not enabled")
		}
		if int(c.inFlight.Load()) >= a.queueSize {
			return bus.Errorf(c.Op(name), bus.Busy, "queue full")
		}

		t, err := c.driver.AllocDescriptor()
		if err != nil {
			return &bus.Error{Kind: bus.OutOfMemory, Err: err}
		}
		txn := &asyncTxn{owner: c, done: done, txLen: len(tx), rxLen: len(rx)}
		t.Tx, t.Rx, t.Bits, t.UserData = tx, rx, n*8, txn

		// The completion may run before Queue returns.
		c.inFlight.Inc()
		c.txQueued.Add(int64(len(tx)))
		if err := a.dev.Queue(ctx, t); err != nil {
			c.inFlight.Dec()
			c.txQueued.Sub(int64(len(tx)))
			t.UserData = nil
			c.driver.FreeDescriptor(t)
			return err
		}
		return nil
	})
}

// complete is the platform completion for every async device. It never blocks, never allocates
// and never takes the bus lock.
func complete(t *platform.SPITransfer, err error) {
	if t == nil {
		return
	}
	txn, ok := t.UserData.(*asyncTxn)
	if !ok || !txn.consumed.CompareAndSwap(false, true) {
		return
	}
	c := txn.owner
	t.UserData = nil

	txn.done.OnComplete(bus.Map(c.Op("async transfer"), err))
	c.driver.FreeDescriptor(t)

	c.txQueued.Sub(int64(txn.txLen))
	if err == nil {
		c.rxAvailable.Add(int64(txn.rxLen))
	}
	c.inFlight.Dec()
}
