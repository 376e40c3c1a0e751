package board

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/benbjohnson/clock"
	"go.viam.com/test"
	"go.viam.com/utils/testutils"

	"go.viam.com/hal/bus"
	"go.viam.com/hal/config"
	"go.viam.com/hal/logging"
	"go.viam.com/hal/platform"
	"go.viam.com/hal/platform/fake"
)

func testConfig() *Config {
	return &Config{
		I2Cs: []DeviceConfig{
			{Name: "main", ID: 0, Attributes: config.AttributeMap{"sda": 21, "scl": 22, "frequency_hz": 400000}},
		},
		SPIs: []DeviceConfig{
			{Name: "display", ID: 2, Attributes: config.AttributeMap{"mosi": 23, "miso": 19, "sclk": 18, "cs": 5}},
		},
		UARTs: []DeviceConfig{
			{Name: "gps", ID: 1, Attributes: config.AttributeMap{"baud_rate": 9600, "tx_pin": 17, "rx_pin": 16}},
		},
		Pins: []DeviceConfig{
			{Name: "led", ID: 2, Attributes: config.AttributeMap{"direction": "output"}},
			{Name: "button", ID: 4, Attributes: config.AttributeMap{"pull": "up"}},
		},
	}
}

func TestConfigValidate(t *testing.T) {
	test.That(t, testConfig().Validate(""), test.ShouldBeNil)

	conf := testConfig()
	conf.Pins[1].Name = ""
	err := conf.Validate("board")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "board.pins.1")

	conf = testConfig()
	conf.Pins[1].Name = "led"
	err = conf.Validate("")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "duplicate names")

	conf = testConfig()
	conf.Pins[1].ID = 2
	err = conf.Validate("")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "duplicate ids")

	conf = testConfig()
	delete(conf.UARTs[0].Attributes, "baud_rate")
	err = conf.Validate("")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "baud_rate")

	conf = testConfig()
	conf.Watchdog = config.AttributeMap{"timeout_ms": 100, "feed_interval_ms": 200}
	test.That(t, conf.Validate(""), test.ShouldNotBeNil)
}

func TestRead(t *testing.T) {
	t.Setenv("HAL_GPS_BAUD", "38400")
	path := filepath.Join(t.TempDir(), "board.json")
	data := `{
		"i2cs": [{"name": "main", "id": 1, "attributes": {"sda": 2, "scl": 3}}],
		"uarts": [{"name": "gps", "id": 0, "attributes": {"baud_rate": ${HAL_GPS_BAUD}, "tx_pin": 14, "rx_pin": 15}}],
		"watchdog": {"timeout_ms": 5000}
	}`
	test.That(t, os.WriteFile(path, []byte(data), 0o600), test.ShouldBeNil)

	conf, err := Read(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, conf.I2Cs, test.ShouldHaveLength, 1)
	test.That(t, conf.UARTs[0].Attributes["baud_rate"], test.ShouldEqual, 38400.0)
	test.That(t, conf.Watchdog.Has("timeout_ms"), test.ShouldBeTrue)

	test.That(t, os.WriteFile(path, []byte(`{"i2cs": [{"id": 1}]}`), 0o600), test.ShouldBeNil)
	_, err = Read(path)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "name")
}

func TestNewAndClose(t *testing.T) {
	ctx := context.Background()
	logger := logging.NewTestLogger(t)
	fk := fake.New(clock.NewMock())

	b, err := New(ctx, testConfig(), fk.Drivers(), logger)
	test.That(t, err, test.ShouldBeNil)

	test.That(t, b.I2CNames(), test.ShouldResemble, []string{"main"})
	test.That(t, b.SPINames(), test.ShouldResemble, []string{"display"})
	test.That(t, b.UARTNames(), test.ShouldResemble, []string{"gps"})
	test.That(t, b.PinNames(), test.ShouldResemble, []string{"button", "led"})
	test.That(t, b.Watchdog(), test.ShouldBeNil)

	mainBus, ok := b.I2CByName("main")
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, mainBus.State(), test.ShouldEqual, bus.DriverInstalled)
	test.That(t, fk.I2C.Installed(0), test.ShouldBeTrue)
	test.That(t, fk.I2C.Params(0).ClockHz, test.ShouldEqual, 400000)

	_, ok = b.I2CByName("missing")
	test.That(t, ok, test.ShouldBeFalse)

	gps, ok := b.UARTByName("gps")
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, gps.Write(ctx, []byte("$PMTK")), test.ShouldBeNil)
	test.That(t, string(fk.UART.Written(1)), test.ShouldEqual, "$PMTK")
	test.That(t, fk.UART.Params(1).BaudRate, test.ShouldEqual, 9600)

	led, ok := b.PinByName("led")
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, led.Set(ctx, true), test.ShouldBeNil)
	high, err := led.Get(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, high, test.ShouldBeTrue)
	test.That(t, fk.GPIO.Params(4).Pull, test.ShouldEqual, platform.PullUp)
	test.That(t, fk.GPIO.ISR().Installed(), test.ShouldBeTrue)

	display, ok := b.SPIByName("display")
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, display.Bus(), test.ShouldEqual, 2)

	test.That(t, b.Close(ctx), test.ShouldBeNil)
	test.That(t, mainBus.State(), test.ShouldEqual, bus.Uninitialized)
	test.That(t, led.State(), test.ShouldEqual, bus.Uninitialized)
	test.That(t, fk.I2C.Installed(0), test.ShouldBeFalse)
	test.That(t, fk.UART.Installed(1), test.ShouldBeFalse)
	test.That(t, fk.GPIO.ISR().Installed(), test.ShouldBeFalse)

	test.That(t, b.Close(ctx), test.ShouldBeNil)
}

func TestNewFailureTearsDown(t *testing.T) {
	ctx := context.Background()
	logger := logging.NewTestLogger(t)
	fk := fake.New(clock.NewMock())
	fk.SPI.Fail("install", platform.StatusNoMem)

	_, err := New(ctx, testConfig(), fk.Drivers(), logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, errors.Is(err, bus.OutOfMemory), test.ShouldBeTrue)

	test.That(t, fk.I2C.Installed(0), test.ShouldBeFalse)
	test.That(t, fk.UART.Installed(1), test.ShouldBeFalse)
	test.That(t, fk.GPIO.ISR().Installed(), test.ShouldBeFalse)
}

func TestMissingDriver(t *testing.T) {
	fk := fake.New(clock.NewMock())
	drivers := fk.Drivers()
	drivers.SPI = nil

	_, err := New(context.Background(), testConfig(), drivers, logging.NewTestLogger(t))
	test.That(t, errors.Is(err, bus.Unsupported), test.ShouldBeTrue)
	test.That(t, fk.I2C.CallCount("install"), test.ShouldEqual, 0)

	_, err = New(context.Background(), nil, drivers, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestWatchdogFeeder(t *testing.T) {
	ctx := context.Background()
	logger := logging.NewTestLogger(t)
	fk := fake.New(clock.NewMock())

	conf := &Config{Watchdog: config.AttributeMap{"timeout_ms": 1000, "feed_interval_ms": 5}}
	b, err := New(ctx, conf, fk.Drivers(), logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, b.Watchdog(), test.ShouldNotBeNil)
	test.That(t, b.Watchdog().Started(), test.ShouldBeTrue)

	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, fk.Watchdog.Feeds(), test.ShouldBeGreaterThanOrEqualTo, 2)
	})

	test.That(t, b.Close(ctx), test.ShouldBeNil)
	test.That(t, fk.Watchdog.Started(), test.ShouldBeFalse)
	feeds := fk.Watchdog.Feeds()
	test.That(t, fk.Watchdog.Feeds(), test.ShouldEqual, feeds)
}

func TestWatchdogWithoutFeeder(t *testing.T) {
	ctx := context.Background()
	fk := fake.New(clock.NewMock())

	conf := &Config{Watchdog: config.AttributeMap{"timeout_ms": 1000}}
	b, err := New(ctx, conf, fk.Drivers(), logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, b.Watchdog().Started(), test.ShouldBeFalse)
	test.That(t, b.Watchdog().Enable(ctx), test.ShouldBeNil)
	test.That(t, fk.Watchdog.Started(), test.ShouldBeTrue)
	test.That(t, b.Close(ctx), test.ShouldBeNil)
	test.That(t, fk.Watchdog.Started(), test.ShouldBeFalse)
}
