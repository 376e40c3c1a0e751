package i2c

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/hal/bus"
	"go.viam.com/hal/platform"
)

func TestTransferFraming(t *testing.T) {
	ctx := context.Background()

	t.Run("flags as given", func(t *testing.T) {
		c, driver := newConfigured(t)
		driver.AddDevice(0x50)
		rx := make([]byte, 4)
		err := c.Transfer(ctx, []Op{
			{Kind: Write, Addr: SevenBit(0x50), Buf: []byte{0x10}},
			{Kind: Read, Addr: SevenBit(0x50), Flags: NoStart, Buf: rx},
		})
		test.That(t, err, test.ShouldBeNil)
		test.That(t, driver.Submitted(), test.ShouldHaveLength, 1)
		test.That(t, driver.Submitted()[0], test.ShouldResemble, []string{
			"start", "write a0", "write 10", "stop",
			"write a1", "read 4 last-nack", "stop",
		})
		test.That(t, driver.OutstandingTransactions(), test.ShouldEqual, 0)
	})

	t.Run("repeated start register read", func(t *testing.T) {
		c, driver := newConfigured(t)
		dev := driver.AddDevice(0x50)
		copy(dev.Regs[0x10:], []byte{1, 2, 3, 4})
		rx := make([]byte, 4)
		err := c.Transfer(ctx, []Op{
			{Kind: Write, Addr: SevenBit(0x50), Flags: NoStop, Buf: []byte{0x10}},
			{Kind: Read, Addr: SevenBit(0x50), Buf: rx},
		})
		test.That(t, err, test.ShouldBeNil)
		test.That(t, driver.Submitted()[0], test.ShouldResemble, []string{
			"start", "write a0", "write 10",
			"start", "write a1", "read 4 last-nack", "stop",
		})
		test.That(t, rx, test.ShouldResemble, []byte{1, 2, 3, 4})
		test.That(t, driver.CallCount("submit"), test.ShouldEqual, 1)
	})

	t.Run("zero length phase and no address", func(t *testing.T) {
		c, driver := newConfigured(t)
		driver.AddDevice(0x50)
		err := c.Transfer(ctx, []Op{
			{Kind: Write, Addr: SevenBit(0x50), Flags: NoStop},
			{Kind: Write, Addr: SevenBit(0x50), Flags: NoStart | NoAddr, Buf: []byte{0x01, 0x02}},
		})
		test.That(t, err, test.ShouldBeNil)
		test.That(t, driver.Submitted()[0], test.ShouldResemble, []string{
			"start", "write a0", "write 0102", "stop",
		})
	})
}

func TestTransferFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("composition", func(t *testing.T) {
		c, driver := newConfigured(t)
		driver.AddDevice(0x50)
		driver.Fail("stop", platform.StatusNoMem)
		err := c.Transfer(ctx, []Op{{Kind: Write, Addr: SevenBit(0x50), Buf: []byte{1}}})
		test.That(t, errors.Is(err, bus.OutOfMemory), test.ShouldBeTrue)
		test.That(t, err.Error(), test.ShouldContainSubstring, "composing op 0")
		test.That(t, driver.CallCount("submit"), test.ShouldEqual, 0)
		test.That(t, driver.OutstandingTransactions(), test.ShouldEqual, 0)
	})

	t.Run("allocation", func(t *testing.T) {
		c, driver := newConfigured(t)
		driver.Fail("new_transaction", platform.StatusNoMem)
		err := c.Transfer(ctx, []Op{{Kind: Read, Addr: SevenBit(0x50), Buf: make([]byte, 1)}})
		test.That(t, errors.Is(err, bus.OutOfMemory), test.ShouldBeTrue)
		test.That(t, driver.OutstandingTransactions(), test.ShouldEqual, 0)
	})

	t.Run("submit", func(t *testing.T) {
		c, driver := newConfigured(t)
		err := c.Transfer(ctx, []Op{{Kind: Read, Addr: SevenBit(0x51), Buf: make([]byte, 1)}})
		test.That(t, errors.Is(err, bus.Other), test.ShouldBeTrue)
		test.That(t, driver.OutstandingTransactions(), test.ShouldEqual, 0)
	})

	t.Run("arguments", func(t *testing.T) {
		c, driver := newConfigured(t)
		test.That(t, errors.Is(c.Transfer(ctx, nil), bus.InvalidArgument), test.ShouldBeTrue)
		err := c.Transfer(ctx, []Op{{Kind: Read, Addr: TenBit(0x200), Buf: make([]byte, 1)}})
		test.That(t, errors.Is(err, bus.Unsupported), test.ShouldBeTrue)
		err = c.Transfer(ctx, []Op{{Kind: OpKind(7), Addr: SevenBit(0x50)}})
		test.That(t, errors.Is(err, bus.InvalidArgument), test.ShouldBeTrue)
		test.That(t, driver.CallCount("new_transaction"), test.ShouldEqual, 0)
	})
}
