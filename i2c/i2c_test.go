package i2c

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/test"
	periphi2c "periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"

	"go.viam.com/hal/bus"
	"go.viam.com/hal/logging"
	"go.viam.com/hal/platform"
	"go.viam.com/hal/platform/fake"
)

func newConfigured(t *testing.T) (*Context, *fake.I2C) {
	t.Helper()
	driver := fake.NewI2C()
	c := New(0, driver, logging.NewTestLogger(t))
	test.That(t, c.Init(context.Background()), test.ShouldBeNil)
	test.That(t, c.SetConfig(context.Background(), Config{SDA: 21, SCL: 22, FrequencyHz: 400000}), test.ShouldBeNil)
	return c, driver
}

func TestLifecycle(t *testing.T) {
	ctx := context.Background()
	driver := fake.NewI2C()
	c := New(1, driver, logging.NewTestLogger(t))
	test.That(t, c.Name(), test.ShouldEqual, "i2c1")
	test.That(t, c.Bus(), test.ShouldEqual, 1)

	test.That(t, c.Init(ctx), test.ShouldBeNil)
	test.That(t, c.Init(ctx), test.ShouldBeNil)
	test.That(t, c.State(), test.ShouldEqual, bus.Initialized)

	test.That(t, c.SetConfig(ctx, Config{SDA: 1, SCL: 2}), test.ShouldBeNil)
	test.That(t, c.State(), test.ShouldEqual, bus.DriverInstalled)
	test.That(t, driver.Installed(1), test.ShouldBeTrue)
	test.That(t, driver.Params(1), test.ShouldResemble, platform.I2CParams{SDA: 1, SCL: 2, ClockHz: DefaultFrequencyHz})

	_, err := c.GetConfig()
	test.That(t, errors.Is(err, bus.Unsupported), test.ShouldBeTrue)

	test.That(t, c.Deinit(ctx), test.ShouldBeNil)
	test.That(t, driver.Installed(1), test.ShouldBeFalse)
	test.That(t, c.State(), test.ShouldEqual, bus.Uninitialized)

	err = c.SetConfig(ctx, Config{FrequencyHz: -1})
	test.That(t, errors.Is(err, bus.InvalidArgument), test.ShouldBeTrue)
}

func TestNilContext(t *testing.T) {
	var c *Context
	ctx := context.Background()
	test.That(t, errors.Is(c.Write(ctx, SevenBit(0x50), []byte{1}), bus.InvalidArgument), test.ShouldBeTrue)
	test.That(t, errors.Is(c.Transfer(ctx, []Op{{Kind: Write}}), bus.InvalidArgument), test.ShouldBeTrue)
	test.That(t, errors.Is(c.WriteAsync(ctx, SevenBit(0x50), []byte{1}), bus.InvalidArgument), test.ShouldBeTrue)
}

func TestStateGating(t *testing.T) {
	ctx := context.Background()
	driver := fake.NewI2C()
	driver.AddDevice(0x50)
	c := New(0, driver, logging.NewTestLogger(t))
	buf := make([]byte, 2)

	for _, call := range []func() error{
		func() error { return c.Write(ctx, SevenBit(0x50), []byte{1}) },
		func() error { return c.Read(ctx, SevenBit(0x50), buf) },
		func() error { return c.WriteReadReg(ctx, SevenBit(0x50), []byte{0}, buf) },
		func() error { return c.Transfer(ctx, []Op{{Kind: Read, Addr: SevenBit(0x50), Buf: buf}}) },
	} {
		test.That(t, errors.Is(call(), bus.NotInitialized), test.ShouldBeTrue)
	}
	test.That(t, c.Init(ctx), test.ShouldBeNil)
	err := c.Read(ctx, SevenBit(0x50), buf)
	test.That(t, errors.Is(err, bus.NotConfigured), test.ShouldBeTrue)
	test.That(t, driver.Calls(), test.ShouldBeEmpty)
}

func TestReadWrite(t *testing.T) {
	ctx := context.Background()
	c, driver := newConfigured(t)
	dev := driver.AddDevice(0x50)
	dev.Regs[0x10] = 0xAB
	dev.Regs[0x11] = 0xCD

	buf := make([]byte, 2)
	test.That(t, c.WriteReadReg(ctx, SevenBit(0x50), []byte{0x10}, buf), test.ShouldBeNil)
	test.That(t, buf, test.ShouldResemble, []byte{0xAB, 0xCD})

	test.That(t, c.WriteByteData(ctx, SevenBit(0x50), 0x20, 0x42), test.ShouldBeNil)
	test.That(t, dev.Regs[0x20], test.ShouldEqual, byte(0x42))
	b, err := c.ReadByteData(ctx, SevenBit(0x50), 0x20)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, b, test.ShouldEqual, byte(0x42))

	test.That(t, c.Write(ctx, SevenBit(0x50), []byte{0x11}), test.ShouldBeNil)
	one := make([]byte, 1)
	test.That(t, c.Read(ctx, SevenBit(0x50), one), test.ShouldBeNil)
	test.That(t, one[0], test.ShouldEqual, byte(0xCD))

	t.Run("missing device", func(t *testing.T) {
		err := c.Read(ctx, SevenBit(0x51), one)
		test.That(t, errors.Is(err, bus.Other), test.ShouldBeTrue)
		test.That(t, err.Error(), test.ShouldContainSubstring, "i2c0 read")
	})

	t.Run("platform timeout", func(t *testing.T) {
		driver.Fail("write", platform.StatusTimeout)
		defer driver.Fail("write", nil)
		err := c.Write(ctx, SevenBit(0x50), []byte{1})
		test.That(t, errors.Is(err, bus.Timeout), test.ShouldBeTrue)
	})
}

func TestZeroLengthAndAddresses(t *testing.T) {
	ctx := context.Background()
	c, driver := newConfigured(t)
	driver.AddDevice(0x50)
	calls := len(driver.Calls())

	test.That(t, errors.Is(c.Read(ctx, SevenBit(0x50), nil), bus.InvalidArgument), test.ShouldBeTrue)
	test.That(t, errors.Is(c.Read(ctx, SevenBit(0x50), []byte{}), bus.InvalidArgument), test.ShouldBeTrue)
	test.That(t, errors.Is(c.Write(ctx, SevenBit(0x50), nil), bus.InvalidArgument), test.ShouldBeTrue)
	test.That(t, errors.Is(c.WriteReadReg(ctx, SevenBit(0x50), []byte{1}, nil), bus.InvalidArgument),
		test.ShouldBeTrue)
	test.That(t, errors.Is(c.Read(ctx, TenBit(0x150), []byte{0}), bus.Unsupported), test.ShouldBeTrue)
	test.That(t, errors.Is(c.Read(ctx, SevenBit(0x80), []byte{0}), bus.InvalidArgument), test.ShouldBeTrue)
	test.That(t, len(driver.Calls()), test.ShouldEqual, calls)
	test.That(t, TenBit(0x150).String(), test.ShouldEqual, "0x150 (10-bit)")
}

func TestMutualExclusion(t *testing.T) {
	ctx := context.Background()
	c, driver := newConfigured(t)
	driver.AddDevice(0x50)
	driver.Delay = 100 * time.Microsecond

	errs := make(chan error, 64)
	for i := 0; i < 8; i++ {
		go func() {
			for j := 0; j < 8; j++ {
				errs <- c.Write(ctx, SevenBit(0x50), []byte{byte(j), 1})
			}
		}()
	}
	for i := 0; i < 64; i++ {
		test.That(t, <-errs, test.ShouldBeNil)
	}
	test.That(t, driver.Overlaps(), test.ShouldEqual, 0)
}

func TestAsyncUnsupported(t *testing.T) {
	ctx := context.Background()
	driver := fake.NewI2C()
	c := New(0, driver, logging.NewTestLogger(t))

	test.That(t, errors.Is(c.EnableAsync(ctx), bus.NotInitialized), test.ShouldBeTrue)
	test.That(t, c.AsyncStatus(), test.ShouldEqual, AsyncError)
	test.That(t, c.Init(ctx), test.ShouldBeNil)
	test.That(t, c.AsyncStatus(), test.ShouldEqual, AsyncIdle)

	test.That(t, errors.Is(c.EnableAsync(ctx), bus.Unsupported), test.ShouldBeTrue)
	test.That(t, errors.Is(c.DisableAsync(ctx), bus.Unsupported), test.ShouldBeTrue)
	test.That(t, errors.Is(c.SetAsyncCallback(nil), bus.InvalidArgument), test.ShouldBeTrue)
	test.That(t, errors.Is(c.SetAsyncCallback(func(error) {}), bus.Unsupported), test.ShouldBeTrue)
	test.That(t, errors.Is(c.WriteAsync(ctx, SevenBit(0x50), []byte{1}), bus.Unsupported), test.ShouldBeTrue)
	test.That(t, errors.Is(c.ReadAsync(ctx, SevenBit(0x50), nil), bus.InvalidArgument), test.ShouldBeTrue)
	test.That(t, errors.Is(c.WriteReadRegAsync(ctx, SevenBit(0x50), []byte{1}, []byte{0}), bus.Unsupported),
		test.ShouldBeTrue)
	test.That(t, driver.Calls(), test.ShouldBeEmpty)
}

func TestDeviceDriverAdapters(t *testing.T) {
	c, driver := newConfigured(t)
	dev := driver.AddDevice(0x3c)
	dev.Regs[0x05] = 0x77

	r := make([]byte, 1)
	test.That(t, c.Tx(0x3c, []byte{0x05}, r), test.ShouldBeNil)
	test.That(t, r[0], test.ShouldEqual, byte(0x77))

	// periph device drivers talk through an i2c.Dev bound to the bus.
	d := &periphi2c.Dev{Bus: c, Addr: 0x3c}
	test.That(t, d.Tx([]byte{0x06, 0x99}, nil), test.ShouldBeNil)
	test.That(t, dev.Regs[0x06], test.ShouldEqual, byte(0x99))
	test.That(t, d.String(), test.ShouldContainSubstring, "i2c0")

	test.That(t, c.SetSpeed(physic.KiloHertz*100), test.ShouldBeNil)
	test.That(t, driver.Params(0).ClockHz, test.ShouldEqual, 100000)
	test.That(t, driver.CallCount("install"), test.ShouldEqual, 1)
}
