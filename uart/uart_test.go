package uart

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/hal/bus"
	"go.viam.com/hal/logging"
	"go.viam.com/hal/platform"
	"go.viam.com/hal/platform/fake"
)

func newConfigured(t *testing.T) (*Context, *fake.UART) {
	t.Helper()
	driver := fake.NewUART()
	c := New(1, driver, logging.NewTestLogger(t))
	test.That(t, c.Init(context.Background()), test.ShouldBeNil)
	cfg := Config{BaudRate: 115200, TXPin: 17, RXPin: 16, TxBufferSize: 64, TimeoutMs: 20}
	test.That(t, c.SetConfig(context.Background(), cfg), test.ShouldBeNil)
	return c, driver
}

func TestConfigValidate(t *testing.T) {
	err := Config{}.Validate("uart0")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "baud_rate")

	test.That(t, Config{BaudRate: 9600, DataBits: 7, Parity: "Even", StopBits: 2}.Validate("uart0"), test.ShouldBeNil)
	test.That(t, Config{BaudRate: 9600, DataBits: 6}.Validate("uart0"), test.ShouldNotBeNil)
	test.That(t, Config{BaudRate: 9600, Parity: "mark"}.Validate("uart0"), test.ShouldNotBeNil)
	test.That(t, Config{BaudRate: 9600, StopBits: 3}.Validate("uart0"), test.ShouldNotBeNil)
	test.That(t, Config{BaudRate: 9600, RxBufferSize: -1}.Validate("uart0"), test.ShouldNotBeNil)
}

func TestSetConfig(t *testing.T) {
	ctx := context.Background()
	c, driver := newConfigured(t)
	test.That(t, c.State(), test.ShouldEqual, bus.DriverInstalled)
	test.That(t, driver.Params(1), test.ShouldResemble, platform.UARTParams{
		BaudRate: 115200, DataBits: 8, Parity: platform.ParityNone, StopBits: platform.StopBits1,
	})
	test.That(t, driver.Pins(1), test.ShouldResemble, platform.UARTPins{TX: 17, RX: 16, RTS: -1, CTS: -1})
	rx, tx := driver.BufferSizes(1)
	test.That(t, rx, test.ShouldEqual, DefaultRxBufferSize)
	test.That(t, tx, test.ShouldEqual, 64)
	test.That(t, c.Timeout(), test.ShouldEqual, 20*time.Millisecond)

	t.Run("pin routing failure removes the driver", func(t *testing.T) {
		driver := fake.NewUART()
		c := New(2, driver, logging.NewTestLogger(t))
		test.That(t, c.Init(ctx), test.ShouldBeNil)
		driver.Fail("set_pins", platform.StatusInvalidArg)
		err := c.SetConfig(ctx, Config{BaudRate: 9600})
		test.That(t, errors.Is(err, bus.InvalidArgument), test.ShouldBeTrue)
		test.That(t, c.State(), test.ShouldEqual, bus.Initialized)
		test.That(t, driver.Installed(2), test.ShouldBeFalse)
		test.That(t, driver.CallCount("uninstall"), test.ShouldEqual, 1)
	})

	test.That(t, c.Deinit(ctx), test.ShouldBeNil)
	test.That(t, driver.Installed(1), test.ShouldBeFalse)
}

func TestReadWrite(t *testing.T) {
	ctx := context.Background()
	c, driver := newConfigured(t)

	test.That(t, c.Write(ctx, []byte("hello")), test.ShouldBeNil)
	test.That(t, driver.Written(1), test.ShouldResemble, []byte("hello"))

	driver.Feed(1, []byte{1, 2, 3})
	p := make([]byte, 3)
	n, err := c.Read(ctx, p)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, n, test.ShouldEqual, 3)
	test.That(t, p, test.ShouldResemble, []byte{1, 2, 3})

	driver.Feed(1, []byte{9})
	n, err = c.Read(ctx, make([]byte, 4))
	test.That(t, errors.Is(err, bus.Timeout), test.ShouldBeTrue)
	test.That(t, n, test.ShouldEqual, 1)

	driver.ShortWrite = 2
	err = c.Write(ctx, []byte{1, 2, 3})
	test.That(t, errors.Is(err, bus.Other), test.ShouldBeTrue)
	driver.ShortWrite = 0

	_, err = c.Read(ctx, nil)
	test.That(t, errors.Is(err, bus.InvalidArgument), test.ShouldBeTrue)
	test.That(t, errors.Is(c.Write(ctx, nil), bus.InvalidArgument), test.ShouldBeTrue)
}

func TestStateGating(t *testing.T) {
	ctx := context.Background()
	driver := fake.NewUART()
	c := New(0, driver, logging.NewTestLogger(t))

	test.That(t, errors.Is(c.Write(ctx, []byte{1}), bus.NotInitialized), test.ShouldBeTrue)
	_, err := c.WriteAsync(ctx, []byte{1})
	test.That(t, errors.Is(err, bus.NotInitialized), test.ShouldBeTrue)
	test.That(t, c.Init(ctx), test.ShouldBeNil)
	_, err = c.Read(ctx, []byte{0})
	test.That(t, errors.Is(err, bus.NotConfigured), test.ShouldBeTrue)
	test.That(t, errors.Is(c.EnableAsync(ctx, BufferedConfig{}), bus.NotConfigured), test.ShouldBeTrue)
	test.That(t, driver.Calls(), test.ShouldBeEmpty)
}

func TestStream(t *testing.T) {
	c, driver := newConfigured(t)
	s := c.Stream()

	n, err := s.Write([]byte("at\r\n"))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, n, test.ShouldEqual, 4)
	test.That(t, driver.Written(1), test.ShouldResemble, []byte("at\r\n"))

	driver.Feed(1, []byte("OK"))
	test.That(t, s.Buffered(), test.ShouldEqual, 2)
	p := make([]byte, 16)
	n, err = s.Read(p)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(p[:n]), test.ShouldEqual, "OK")
}
