package uart

import (
	"context"

	"go.viam.com/hal/bus"
)

// BufferedConfig configures buffered mode. The callbacks are optional and are called after the
// operation that triggered them has released the port.
type BufferedConfig struct {
	TxBufferSize int
	RxBufferSize int
	// OnTxComplete is called when FlushTx has drained the transmit buffer.
	OnTxComplete func()
	// OnRx is called with the byte count when ReadAsync fills its buffer.
	OnRx func(n int)
	// OnError is called with the error of a failed buffered operation.
	OnError func(err error)
}

// EnableAsync switches the port to buffered mode. The driver must be installed.
func (c *Context) EnableAsync(ctx context.Context, cfg BufferedConfig) error {
	const name = "enable async"
	if c == nil || cfg.TxBufferSize < 0 || cfg.RxBufferSize < 0 {
		return c.invalid(name)
	}
	return c.WithLock(ctx, name, bus.DeinitTimeout, func(ctx context.Context, state bus.State) error {
		if state != bus.DriverInstalled {
			return bus.Errorf(c.Op(name), bus.NotConfigured, "driver not installed")
		}
		c.txQueued.Store(0)
		c.rxAvailable.Store(0)
		c.buffered.Store(&cfg)
		return nil
	})
}

// DisableAsync leaves buffered mode.
func (c *Context) DisableAsync(ctx context.Context) error {
	const name = "disable async"
	if c == nil {
		return c.invalid(name)
	}
	return c.WithLock(ctx, name, bus.DeinitTimeout, func(ctx context.Context, state bus.State) error {
		c.buffered.Store(nil)
		return nil
	})
}

// SetBufferedConfig replaces the buffered mode configuration. The counters are kept.
func (c *Context) SetBufferedConfig(cfg BufferedConfig) error {
	const name = "set buffered config"
	if c == nil || cfg.TxBufferSize < 0 || cfg.RxBufferSize < 0 {
		return c.invalid(name)
	}
	if _, err := c.bufferedConfig(name); err != nil {
		return err
	}
	c.buffered.Store(&cfg)
	return nil
}

// AsyncEnabled reports whether the port is in buffered mode.
func (c *Context) AsyncEnabled() bool {
	return c != nil && c.buffered.Load() != nil
}

func (c *Context) bufferedConfig(name string) (*BufferedConfig, error) {
	if err := c.Ready(name); err != nil {
		return nil, err
	}
	cfg := c.buffered.Load()
	if cfg == nil {
		return nil, bus.Errorf(c.Op(name), bus.NotConfigured, "async mode not enabled")
	}
	return cfg, nil
}

func (cfg *BufferedConfig) fail(err error) error {
	if err != nil && cfg.OnError != nil {
		cfg.OnError(err)
	}
	return err
}

// WriteAsync queues p in the transmit buffer and returns how much was accepted. A partial write
// fails as Timeout.
func (c *Context) WriteAsync(ctx context.Context, p []byte) (int, error) {
	const name = "write async"
	if c == nil || len(p) == 0 {
		return 0, c.invalid(name)
	}
	cfg, err := c.bufferedConfig(name)
	if err != nil {
		return 0, err
	}
	var n int
	err = c.Do(ctx, name, 0, func(ctx context.Context) error {
		var err error
		n, err = c.driver.Write(ctx, c.port, p)
		if err != nil {
			return err
		}
		c.txQueued.Add(int64(n))
		if n < len(p) {
			return bus.Errorf(c.Op(name), bus.Timeout, "queued %d of %d bytes", n, len(p))
		}
		return nil
	})
	return n, cfg.fail(err)
}

// ReadAsync reads up to len(p) buffered bytes, waiting at most the operation timeout, and
// returns how many it got. Fewer than len(p) fails as Timeout.
func (c *Context) ReadAsync(ctx context.Context, p []byte) (int, error) {
	const name = "read async"
	if c == nil || len(p) == 0 {
		return 0, c.invalid(name)
	}
	cfg, err := c.bufferedConfig(name)
	if err != nil {
		return 0, err
	}
	var n int
	err = c.Do(ctx, name, 0, func(ctx context.Context) error {
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
	if err != nil {
		return n, cfg.fail(err)
	}
	if cfg.OnRx != nil {
		cfg.OnRx(n)
	}
	return n, nil
}

// RxAvailable returns how many received bytes are waiting.
func (c *Context) RxAvailable(ctx context.Context) (int, error) {
	const name = "rx available"
	if c == nil {
		return 0, c.invalid(name)
	}
	if _, err := c.bufferedConfig(name); err != nil {
		return 0, err
	}
	var n int
	err := c.Do(ctx, name, 0, func(ctx context.Context) error {
		var err error
		if n, err = c.driver.Buffered(c.port); err != nil {
			return err
		}
		c.rxAvailable.Store(int64(n))
		return nil
	})
	return n, err
}

// TxFree estimates the free space in the transmit buffer from the bytes queued since the last
// FlushTx.
func (c *Context) TxFree() (int, error) {
	const name = "tx free"
	if c == nil {
		return 0, c.invalid(name)
	}
	cfg, err := c.bufferedConfig(name)
	if err != nil {
		return 0, err
	}
	free := int64(cfg.TxBufferSize) - c.txQueued.Load()
	if free < 0 {
		free = 0
	}
	return int(free), nil
}

// FlushTx waits for the transmit buffer to drain and then calls OnTxComplete.
func (c *Context) FlushTx(ctx context.Context) error {
	const name = "flush tx"
	if c == nil {
		return c.invalid(name)
	}
	cfg, err := c.bufferedConfig(name)
	if err != nil {
		return err
	}
	err = c.Do(ctx, name, 0, func(ctx context.Context) error {
		if err := c.driver.WaitTxDone(ctx, c.port); err != nil {
			return err
		}
		c.txQueued.Store(0)
		return nil
	})
	if err != nil {
		return cfg.fail(err)
	}
	if cfg.OnTxComplete != nil {
		cfg.OnTxComplete()
	}
	return nil
}

// ClearRx discards everything received.
func (c *Context) ClearRx(ctx context.Context) error {
	const name = "clear rx"
	if c == nil {
		return c.invalid(name)
	}
	cfg, err := c.bufferedConfig(name)
	if err != nil {
		return err
	}
	err = c.Do(ctx, name, 0, func(ctx context.Context) error {
		if err := c.driver.FlushInput(c.port); err != nil {
			return err
		}
		c.rxAvailable.Store(0)
		return nil
	})
	return cfg.fail(err)
}
