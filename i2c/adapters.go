package i2c

import (
	"context"

	periphi2c "periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
	"tinygo.org/x/drivers"
)

// A Context can be handed to device drivers written for tinygo or periph. Those interfaces have
// no context argument, so their calls run with the configured timeout.
var (
	_ drivers.I2C   = (*Context)(nil)
	_ periphi2c.Bus = (*Context)(nil)
)

// Tx writes w and then reads r from the 7-bit address addr. Either may be empty; when both are
// set the bus is held between them.
func (c *Context) Tx(addr uint16, w, r []byte) error {
	ctx := context.Background()
	a := SevenBit(addr)
	switch {
	case len(w) > 0 && len(r) > 0:
		return c.WriteReadReg(ctx, a, w, r)
	case len(r) > 0:
		return c.Read(ctx, a, r)
	default:
		return c.Write(ctx, a, w)
	}
}

// SetSpeed reconfigures the bus clock.
func (c *Context) SetSpeed(f physic.Frequency) error {
	cfg, ok := c.Config()
	if !ok {
		return c.Ready("set speed")
	}
	cfg.FrequencyHz = int(f / physic.Hertz)
	return c.SetConfig(context.Background(), cfg)
}

// String returns the context name, for example "i2c0".
func (c *Context) String() string {
	return c.Name()
}
