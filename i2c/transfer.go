package i2c

import (
	"context"

	"github.com/pkg/errors"

	"go.viam.com/hal/bus"
	"go.viam.com/hal/platform"
)

// OpKind is the direction of a transfer segment.
type OpKind int

// Segment directions.
const (
	Write OpKind = iota
	Read
)

// Flags change how a segment is framed.
type Flags uint8

// Segment flags.
const (
	// NoStart suppresses the start condition before the segment.
	NoStart Flags = 1 << iota
	// NoStop suppresses the stop condition after the segment.
	NoStop
	// NoAddr suppresses the address byte.
	NoAddr
)

// Op is one segment of a composed transfer. Buf is the data written, or the buffer filled, and
// its length is the segment length.
type Op struct {
	Kind  OpKind
	Addr  Address
	Flags Flags
	Buf   []byte
}

// Transfer runs ops as one bus transaction. For each op in order it emits a start condition
// (unless NoStart), the address byte with the direction bit (unless NoAddr), the data phase, and
// a stop condition (unless NoStop). Read phases NACK their last byte; write phases check every
// ACK. The transaction is submitted once; if building it fails nothing is submitted.
func (c *Context) Transfer(ctx context.Context, ops []Op) error {
	const name = "transfer"
	if c == nil || len(ops) == 0 {
		return bus.NewError(name, bus.InvalidArgument)
	}
	if err := c.Ready(name); err != nil {
		return err
	}
	for _, op := range ops {
		if err := c.check(name, op.Addr); err != nil {
			return err
		}
		if op.Kind != Write && op.Kind != Read {
			return bus.Errorf(c.Op(name), bus.InvalidArgument, "unknown op kind %d", op.Kind)
		}
	}

	return c.Do(ctx, name, 0, func(ctx context.Context) error {
		txn, err := c.driver.NewTransaction()
		if err != nil {
			return err
		}
		defer txn.Release()

		for i, op := range ops {
			if err := compose(txn, op); err != nil {
				return errors.Wrapf(err, "composing op %d", i)
			}
		}
		return c.driver.Submit(ctx, c.bus, txn)
	})
}

func compose(txn platform.I2CTransaction, op Op) error {
	if op.Flags&NoStart == 0 {
		if err := txn.Start(); err != nil {
			return err
		}
	}
	if op.Flags&NoAddr == 0 {
		addrByte := byte(op.Addr.Value << 1)
		if op.Kind == Read {
			addrByte |= 1
		}
		if err := txn.WriteByte(addrByte, true); err != nil {
			return err
		}
	}
	if len(op.Buf) > 0 {
		var err error
		if op.Kind == Read {
			err = txn.Read(op.Buf, platform.ReadLastNack)
		} else {
			err = txn.Write(op.Buf, true)
		}
		if err != nil {
			return err
		}
	}
	if op.Flags&NoStop == 0 {
		return txn.Stop()
	}
	return nil
}
