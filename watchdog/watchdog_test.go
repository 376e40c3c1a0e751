package watchdog

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/hal/bus"
	"go.viam.com/hal/logging"
	"go.viam.com/hal/platform"
	"go.viam.com/hal/platform/fake"
)

func TestConfig(t *testing.T) {
	err := Config{}.Validate("watchdog")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "timeout_ms")
	test.That(t, Config{TimeoutMs: -5}.Validate("watchdog"), test.ShouldNotBeNil)
	test.That(t, Config{TimeoutMs: 1000, FeedIntervalMs: 1000}.Validate("watchdog"), test.ShouldNotBeNil)
	test.That(t, Config{TimeoutMs: 1000, FeedIntervalMs: 250}.Validate("watchdog"), test.ShouldBeNil)
	test.That(t, Config{TimeoutMs: 1000, FeedIntervalMs: 250}.FeedInterval(), test.ShouldEqual, 250*time.Millisecond)
}

func TestWatchdog(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewMock()
	driver := fake.NewWatchdog(clk)
	w := New(driver, logging.NewTestLogger(t))

	test.That(t, errors.Is(w.Enable(ctx), bus.NotInitialized), test.ShouldBeTrue)
	_, err := w.GetConfig()
	test.That(t, errors.Is(err, bus.NotInitialized), test.ShouldBeTrue)

	test.That(t, w.Init(ctx), test.ShouldBeNil)
	test.That(t, errors.Is(w.Enable(ctx), bus.NotConfigured), test.ShouldBeTrue)
	_, err = w.GetConfig()
	test.That(t, errors.Is(err, bus.NotConfigured), test.ShouldBeTrue)

	test.That(t, w.SetConfig(ctx, Config{TimeoutMs: 1000}), test.ShouldBeNil)
	cfg, err := w.GetConfig()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg, test.ShouldResemble, Config{TimeoutMs: 1000})
	test.That(t, driver.Calls(), test.ShouldBeEmpty)

	test.That(t, errors.Is(w.Feed(ctx), bus.NotStarted), test.ShouldBeTrue)
	test.That(t, errors.Is(w.Disable(ctx), bus.NotStarted), test.ShouldBeTrue)

	test.That(t, w.Enable(ctx), test.ShouldBeNil)
	test.That(t, w.Started(), test.ShouldBeTrue)
	test.That(t, errors.Is(w.Enable(ctx), bus.AlreadyStarted), test.ShouldBeTrue)

	clk.Add(600 * time.Millisecond)
	test.That(t, w.Feed(ctx), test.ShouldBeNil)
	clk.Add(600 * time.Millisecond)
	test.That(t, driver.Expired(), test.ShouldBeFalse)
	clk.Add(600 * time.Millisecond)
	test.That(t, driver.Expired(), test.ShouldBeTrue)

	test.That(t, w.Disable(ctx), test.ShouldBeNil)
	test.That(t, w.Started(), test.ShouldBeFalse)
	test.That(t, driver.Started(), test.ShouldBeFalse)
}

func TestDeinitStopsWatchdog(t *testing.T) {
	ctx := context.Background()
	driver := fake.NewWatchdog(clock.NewMock())
	w := New(driver, logging.NewTestLogger(t))
	test.That(t, w.Init(ctx), test.ShouldBeNil)
	test.That(t, w.SetConfig(ctx, Config{TimeoutMs: 500}), test.ShouldBeNil)
	test.That(t, w.Enable(ctx), test.ShouldBeNil)

	driver.Fail("stop", platform.StatusFail)
	test.That(t, w.Deinit(ctx), test.ShouldNotBeNil)
	test.That(t, w.State(), test.ShouldEqual, bus.Configured)
	test.That(t, w.Started(), test.ShouldBeTrue)

	driver.Fail("stop", nil)
	test.That(t, w.Deinit(ctx), test.ShouldBeNil)
	test.That(t, driver.Started(), test.ShouldBeFalse)
	test.That(t, w.Started(), test.ShouldBeFalse)
	test.That(t, w.State(), test.ShouldEqual, bus.Uninitialized)
}
