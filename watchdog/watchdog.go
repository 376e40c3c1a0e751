// Package watchdog implements the system watchdog context. The configured timeout is cached and
// applied when the watchdog is enabled.
package watchdog

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
	goutils "go.viam.com/utils"

	"go.viam.com/hal/bus"
	"go.viam.com/hal/logging"
	"go.viam.com/hal/platform"
)

// Config is the configuration of the watchdog.
type Config struct {
	// TimeoutMs is how long the system may go without a feed once the watchdog is enabled.
	TimeoutMs int `json:"timeout_ms"`
	// FeedIntervalMs, when set, makes a board feed the watchdog in the background at this
	// interval.
	FeedIntervalMs int `json:"feed_interval_ms,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (cfg Config) Validate(path string) error {
	if cfg.TimeoutMs == 0 {
		return goutils.NewConfigValidationFieldRequiredError(path, "timeout_ms")
	}
	if cfg.TimeoutMs < 0 {
		return goutils.NewConfigValidationError(path, errors.Errorf("invalid timeout_ms %d", cfg.TimeoutMs))
	}
	if cfg.FeedIntervalMs < 0 || (cfg.FeedIntervalMs != 0 && cfg.FeedIntervalMs >= cfg.TimeoutMs) {
		return goutils.NewConfigValidationError(path,
			errors.Errorf("feed_interval_ms %d must be less than timeout_ms %d", cfg.FeedIntervalMs, cfg.TimeoutMs))
	}
	return nil
}

// OperationTimeout is zero: watchdog calls use the default operation timeout.
func (cfg Config) OperationTimeout() time.Duration {
	return 0
}

// Timeout returns the watchdog timeout.
func (cfg Config) Timeout() time.Duration {
	return time.Duration(cfg.TimeoutMs) * time.Millisecond
}

// FeedInterval returns the background feed interval, zero if none.
func (cfg Config) FeedInterval() time.Duration {
	return time.Duration(cfg.FeedIntervalMs) * time.Millisecond
}

// Context is the system watchdog.
type Context struct {
	*bus.Lifecycle[Config]
	driver  platform.WatchdogDriver
	started atomic.Bool
}

// New returns an uninitialized watchdog context on driver. A nil logger uses the global one.
func New(driver platform.WatchdogDriver, logger logging.Logger) *Context {
	c := &Context{driver: driver}
	c.Lifecycle = bus.NewLifecycle[Config]("wdt", backend{c}, logger)
	return c
}

type backend struct {
	c *Context
}

// Configure only caches the config; the platform sees the timeout on Enable.
func (b backend) Configure(ctx context.Context, cfg Config) error {
	return nil
}

// Detach stops a running watchdog.
func (b backend) Detach(ctx context.Context) error {
	if !b.c.started.Load() {
		return nil
	}
	if err := b.c.driver.Stop(); err != nil {
		return err
	}
	b.c.started.Store(false)
	return nil
}

// GetConfig returns the cached configuration.
func (c *Context) GetConfig() (Config, error) {
	if c == nil {
		return Config{}, bus.NewError("get config", bus.InvalidArgument)
	}
	if c.State() == bus.Uninitialized {
		return Config{}, bus.NewError(c.Op("get config"), bus.NotInitialized)
	}
	cfg, ok := c.Config()
	if !ok {
		return Config{}, bus.NewError(c.Op("get config"), bus.NotConfigured)
	}
	return cfg, nil
}

// Started reports whether the watchdog is running.
func (c *Context) Started() bool {
	return c != nil && c.started.Load()
}

// Enable starts the watchdog with the configured timeout.
func (c *Context) Enable(ctx context.Context) error {
	if c == nil {
		return bus.NewError("enable", bus.InvalidArgument)
	}
	return c.Do(ctx, "enable", 0, func(ctx context.Context) error {
		if c.started.Load() {
			return bus.NewError(c.Op("enable"), bus.AlreadyStarted)
		}
		cfg, _ := c.Config()
		if err := c.driver.Start(cfg.Timeout()); err != nil {
			return err
		}
		c.started.Store(true)
		c.Logger().Infow("watchdog enabled", "timeout", cfg.Timeout())
		return nil
	})
}

// Disable stops the watchdog.
func (c *Context) Disable(ctx context.Context) error {
	if c == nil {
		return bus.NewError("disable", bus.InvalidArgument)
	}
	return c.Do(ctx, "disable", 0, func(ctx context.Context) error {
		if !c.started.Load() {
			return bus.NewError(c.Op("disable"), bus.NotStarted)
		}
		if err := c.driver.Stop(); err != nil {
			return err
		}
		c.started.Store(false)
		return nil
	})
}

// Feed resets the watchdog countdown.
func (c *Context) Feed(ctx context.Context) error {
	if c == nil {
		return bus.NewError("feed", bus.InvalidArgument)
	}
	return c.Do(ctx, "feed", 0, func(ctx context.Context) error {
		if !c.started.Load() {
			return bus.NewError(c.Op("feed"), bus.NotStarted)
		}
		return c.driver.Feed()
	})
}
