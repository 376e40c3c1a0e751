package pin

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.viam.com/test"

	"go.viam.com/hal/bus"
	"go.viam.com/hal/logging"
	"go.viam.com/hal/platform"
	"go.viam.com/hal/platform/fake"
)

func newConfigured(t *testing.T, cfg Config) (*Context, *fake.GPIO, *ISRService) {
	t.Helper()
	gpio := fake.NewGPIO()
	isr := NewISRService(gpio.ISR())
	p := New(13, gpio, isr, logging.NewTestLogger(t))
	test.That(t, p.Init(context.Background()), test.ShouldBeNil)
	test.That(t, p.SetConfig(context.Background(), cfg), test.ShouldBeNil)
	return p, gpio, isr
}

func TestConfig(t *testing.T) {
	test.That(t, Config{Direction: "output", Pull: "up", Trigger: "both"}.Validate("pin"), test.ShouldBeNil)
	test.That(t, Config{Direction: "sideways"}.Validate("pin"), test.ShouldNotBeNil)
	test.That(t, Config{Pull: "strong"}.Validate("pin"), test.ShouldNotBeNil)
	test.That(t, Config{Trigger: "sometimes"}.Validate("pin"), test.ShouldNotBeNil)

	p, gpio, _ := newConfigured(t, Config{Direction: "output", Pull: "down"})
	test.That(t, p.State(), test.ShouldEqual, bus.Configured)
	test.That(t, gpio.Params(13), test.ShouldResemble, platform.GPIOParams{
		Direction: platform.DirectionOutput, Pull: platform.PullDown,
	})
}

func TestLevels(t *testing.T) {
	ctx := context.Background()
	p, gpio, _ := newConfigured(t, Config{Direction: "output"})

	test.That(t, p.Set(ctx, true), test.ShouldBeNil)
	high, err := p.Get(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, high, test.ShouldBeTrue)

	gpio.Drive(13, false)
	high, err = p.Get(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, high, test.ShouldBeFalse)

	test.That(t, p.SetDirection(ctx, platform.DirectionInput, platform.PullUp), test.ShouldBeNil)
	test.That(t, gpio.Params(13), test.ShouldResemble, platform.GPIOParams{
		Direction: platform.DirectionInput, Pull: platform.PullUp,
	})
	err = p.SetDirection(ctx, platform.DirectionInput, platform.Pull(9))
	test.That(t, errors.Is(err, bus.InvalidArgument), test.ShouldBeTrue)

	gpio.Fail("set", platform.StatusInvalidArg)
	test.That(t, errors.Is(p.Set(ctx, true), bus.InvalidArgument), test.ShouldBeTrue)
}

func TestStateGating(t *testing.T) {
	ctx := context.Background()
	gpio := fake.NewGPIO()
	p := New(1, gpio, NewISRService(gpio.ISR()), logging.NewTestLogger(t))

	_, err := p.Get(ctx)
	test.That(t, errors.Is(err, bus.NotInitialized), test.ShouldBeTrue)
	test.That(t, errors.Is(p.DisableInterrupt(ctx), bus.NotInitialized), test.ShouldBeTrue)
	test.That(t, p.Init(ctx), test.ShouldBeNil)
	test.That(t, errors.Is(p.Set(ctx, true), bus.NotConfigured), test.ShouldBeTrue)
	test.That(t, errors.Is(p.SetInterrupt(ctx, platform.TriggerRisingEdge, func() {}), bus.NotConfigured),
		test.ShouldBeTrue)
	test.That(t, errors.Is(p.SetInterrupt(ctx, platform.TriggerRisingEdge, nil), bus.InvalidArgument),
		test.ShouldBeTrue)
	test.That(t, p.DisableInterrupt(ctx), test.ShouldBeNil)
	test.That(t, gpio.Calls(), test.ShouldBeEmpty)

	_, err = p.GetConfig()
	test.That(t, errors.Is(err, bus.Unsupported), test.ShouldBeTrue)
}

func TestInterrupts(t *testing.T) {
	ctx := context.Background()
	p, gpio, isr := newConfigured(t, Config{})
	var fired atomic.Int32

	err := p.EnableInterrupt(ctx)
	test.That(t, errors.Is(err, bus.NotConfigured), test.ShouldBeTrue)

	test.That(t, p.SetInterrupt(ctx, platform.TriggerRisingEdge, func() { fired.Inc() }), test.ShouldBeNil)
	test.That(t, p.InterruptEnabled(), test.ShouldBeFalse)
	test.That(t, p.EnableInterrupt(ctx), test.ShouldBeNil)
	test.That(t, p.EnableInterrupt(ctx), test.ShouldBeNil)
	test.That(t, gpio.CallCount("isr_add_handler"), test.ShouldEqual, 1)
	test.That(t, gpio.Trigger(13), test.ShouldEqual, platform.TriggerRisingEdge)
	test.That(t, p.InterruptEnabled(), test.ShouldBeTrue)

	gpio.Drive(13, true)
	gpio.Drive(13, false)
	gpio.Drive(13, true)
	test.That(t, fired.Load(), test.ShouldEqual, 2)

	test.That(t, p.DisableInterrupt(ctx), test.ShouldBeNil)
	test.That(t, p.DisableInterrupt(ctx), test.ShouldBeNil)
	test.That(t, gpio.Trigger(13), test.ShouldEqual, platform.TriggerNone)
	test.That(t, gpio.ISR().HandlerPins(), test.ShouldBeEmpty)
	gpio.Drive(13, false)
	gpio.Drive(13, true)
	test.That(t, fired.Load(), test.ShouldEqual, 2)

	// Deinit disarms an armed interrupt before dropping the service reference.
	test.That(t, p.EnableInterrupt(ctx), test.ShouldBeNil)
	test.That(t, gpio.ISR().HandlerPins(), test.ShouldResemble, []int{13})
	test.That(t, p.Deinit(ctx), test.ShouldBeNil)
	test.That(t, gpio.Trigger(13), test.ShouldEqual, platform.TriggerNone)
	test.That(t, isr.Refs(), test.ShouldEqual, 0)
	test.That(t, gpio.ISR().Installed(), test.ShouldBeFalse)
}

func TestReconfigureDisarmsInterrupt(t *testing.T) {
	ctx := context.Background()
	p, gpio, _ := newConfigured(t, Config{})
	var fired atomic.Int32
	test.That(t, p.SetInterrupt(ctx, platform.TriggerRisingEdge, func() { fired.Inc() }), test.ShouldBeNil)
	test.That(t, p.EnableInterrupt(ctx), test.ShouldBeNil)

	test.That(t, p.SetDirection(ctx, platform.DirectionInput, platform.PullNone), test.ShouldBeNil)
	test.That(t, p.InterruptEnabled(), test.ShouldBeFalse)
	test.That(t, gpio.ISR().HandlerPins(), test.ShouldBeEmpty)

	test.That(t, p.EnableInterrupt(ctx), test.ShouldBeNil)
	test.That(t, gpio.Trigger(13), test.ShouldEqual, platform.TriggerRisingEdge)
	gpio.Drive(13, false)
	gpio.Drive(13, true)
	test.That(t, fired.Load(), test.ShouldEqual, 1)

	test.That(t, p.SetConfig(ctx, Config{Pull: "up"}), test.ShouldBeNil)
	test.That(t, p.InterruptEnabled(), test.ShouldBeFalse)
	test.That(t, p.EnableInterrupt(ctx), test.ShouldBeNil)
	test.That(t, p.InterruptEnabled(), test.ShouldBeTrue)
	gpio.Drive(13, false)
	gpio.Drive(13, true)
	test.That(t, fired.Load(), test.ShouldEqual, 2)
}

func TestInterruptEnabledWhileLocked(t *testing.T) {
	ctx := context.Background()
	p, _, _ := newConfigured(t, Config{})
	test.That(t, p.SetInterrupt(ctx, platform.TriggerHighLevel, func() {}), test.ShouldBeNil)
	test.That(t, p.EnableInterrupt(ctx), test.ShouldBeNil)

	err := p.WithLock(ctx, "hold", 0, func(ctx context.Context, state bus.State) error {
		test.That(t, p.InterruptEnabled(), test.ShouldBeTrue)
		return nil
	})
	test.That(t, err, test.ShouldBeNil)
}

func TestEnableInterruptFailureClearsTrigger(t *testing.T) {
	ctx := context.Background()
	p, gpio, _ := newConfigured(t, Config{})
	test.That(t, p.SetInterrupt(ctx, platform.TriggerBothEdges, func() {}), test.ShouldBeNil)

	gpio.Fail("isr_add_handler", platform.StatusNoMem)
	err := p.EnableInterrupt(ctx)
	test.That(t, errors.Is(err, bus.OutOfMemory), test.ShouldBeTrue)
	test.That(t, gpio.Trigger(13), test.ShouldEqual, platform.TriggerNone)
	test.That(t, p.InterruptEnabled(), test.ShouldBeFalse)

	gpio.Fail("isr_add_handler", nil)
	test.That(t, p.EnableInterrupt(ctx), test.ShouldBeNil)
	test.That(t, gpio.Trigger(13), test.ShouldEqual, platform.TriggerBothEdges)
}

func TestNoInterruptService(t *testing.T) {
	ctx := context.Background()
	gpio := fake.NewGPIO()
	p := New(3, gpio, nil, logging.NewTestLogger(t))
	test.That(t, p.Init(ctx), test.ShouldBeNil)
	test.That(t, p.SetConfig(ctx, Config{}), test.ShouldBeNil)
	test.That(t, errors.Is(p.EnableInterrupt(ctx), bus.Unsupported), test.ShouldBeTrue)
	test.That(t, p.Deinit(ctx), test.ShouldBeNil)
	test.That(t, gpio.ISR().Installs(), test.ShouldEqual, 0)
}
