package spi

import (
	"context"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3"
	periphspi "periph.io/x/conn/v3/spi"
	"tinygo.org/x/drivers"

	"go.viam.com/hal/platform"
)

// A Context can be handed to device drivers written for tinygo or periph. Their calls run with
// the configured timeout.
var (
	_ drivers.SPI    = (*Context)(nil)
	_ periphspi.Conn = (*Context)(nil)
)

// Tx sends w while filling r. Either may be nil.
func (c *Context) Tx(w, r []byte) error {
	ctx := context.Background()
	switch {
	case len(w) > 0 && len(r) > 0:
		return c.WriteRead(ctx, w, r)
	case len(r) > 0:
		return c.Read(ctx, r)
	default:
		return c.Write(ctx, w)
	}
}

// Transfer exchanges a single byte.
func (c *Context) Transfer(b byte) (byte, error) {
	var r [1]byte
	if err := c.WriteRead(context.Background(), []byte{b}, r[:]); err != nil {
		return 0, err
	}
	return r[0], nil
}

// Duplex reports full duplex operation.
func (c *Context) Duplex() conn.Duplex {
	return conn.Full
}

// TxPackets runs every packet while holding the bus. Chip select framing between packets is left
// to the platform.
func (c *Context) TxPackets(packets []periphspi.Packet) error {
	const name = "tx packets"
	if c == nil || len(packets) == 0 {
		return c.invalid(name)
	}
	if err := c.Ready(name); err != nil {
		return err
	}
	for _, p := range packets {
		if err := c.checkLength(name, max(len(p.W), len(p.R))); err != nil {
			return err
		}
	}
	return c.Do(context.Background(), name, 0, func(ctx context.Context) error {
		for i, p := range packets {
			t := &platform.SPITransfer{Tx: p.W, Rx: p.R, Bits: max(len(p.W), len(p.R)) * 8}
			if err := c.driver.Transmit(ctx, c.bus, t); err != nil {
				return errors.Wrapf(err, "packet %d", i)
			}
		}
		return nil
	})
}

// String returns the context name, for example "spi0".
func (c *Context) String() string {
	return c.Name()
}
