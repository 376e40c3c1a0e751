//go:build linux

package linux

import (
	"context"
	"runtime"
	"strconv"
	"sync"
	"unsafe"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"golang.org/x/sys/unix"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"

	"go.viam.com/hal/logging"
	"go.viam.com/hal/platform"
)

// From linux/i2c-dev.h and linux/i2c.h.
const (
	i2cRDWR = 0x0707

	i2cMsgRead      = 0x0001
	i2cMsgIgnoreNak = 0x1000
	i2cMsgNoStart   = 0x4000

	// i2cRDWRMaxMsgs is I2C_RDWR_IOCTL_MAX_MSGS.
	i2cRDWRMaxMsgs = 42
)

type i2cBus struct {
	params platform.I2CParams
	conn   i2c.BusCloser
	// fd is a second handle on the adapter, for I2C_RDWR transactions.
	fd int
}

// I2C drives i2c-dev adapters. Plain transfers go through periph; composed transactions are
// issued as I2C_RDWR ioctls.
type I2C struct {
	logger logging.Logger

	mu    sync.Mutex
	buses map[int]*i2cBus
}

var _ platform.I2CDriver = (*I2C)(nil)

func newI2C(logger logging.Logger) *I2C {
	return &I2C{logger: logger, buses: map[int]*i2cBus{}}
}

// Configure implements platform.I2CDriver. The clock of an installed bus is changed in place.
func (d *I2C) Configure(bus int, params platform.I2CParams) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.buses[bus]
	if !ok {
		b = &i2cBus{fd: -1}
		d.buses[bus] = b
	}
	b.params = params
	if b.conn != nil {
		d.setSpeed(b)
	}
	return nil
}

func (d *I2C) setSpeed(b *i2cBus) {
	if err := b.conn.SetSpeed(physic.Frequency(b.params.ClockHz) * physic.Hertz); err != nil {
		// Most adapters take their clock from the device tree.
		d.logger.Debugw("bus clock not changed", "bus", b.conn.String(), "error", err)
	}
}

// Install implements platform.I2CDriver.
func (d *I2C) Install(bus int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.buses[bus]
	if !ok {
		return platform.StatusInvalidState
	}
	if b.conn != nil {
		return platform.StatusInvalidState
	}
	// The periph registry resolves both device names and bare bus numbers.
	name := b.params.DevicePath
	if name == "" {
		name = strconv.Itoa(bus)
	}
	conn, err := i2creg.Open(name)
	if err != nil {
		return errors.Wrapf(err, "opening i2c bus %s", name)
	}
	path := devicePath(b.params.DevicePath, "/dev/i2c-%d", bus)
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return multierr.Combine(errors.Wrapf(err, "opening %s", path), conn.Close())
	}
	b.conn, b.fd = conn, fd
	d.setSpeed(b)
	return nil
}

// Uninstall implements platform.I2CDriver.
func (d *I2C) Uninstall(bus int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.buses[bus]
	if !ok || b.conn == nil {
		return platform.StatusInvalidState
	}
	err := multierr.Combine(b.conn.Close(), unix.Close(b.fd))
	b.conn, b.fd = nil, -1
	return err
}

func (d *I2C) installed(ctx context.Context, bus int) (*i2cBus, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.buses[bus]
	if !ok || b.conn == nil {
		return nil, platform.StatusInvalidState
	}
	return b, nil
}

// Write implements platform.I2CDriver.
func (d *I2C) Write(ctx context.Context, bus int, addr uint16, p []byte) error {
	b, err := d.installed(ctx, bus)
	if err != nil {
		return err
	}
	return b.conn.Tx(addr, p, nil)
}

// Read implements platform.I2CDriver.
func (d *I2C) Read(ctx context.Context, bus int, addr uint16, p []byte) error {
	b, err := d.installed(ctx, bus)
	if err != nil {
		return err
	}
	return b.conn.Tx(addr, nil, p)
}

// WriteRead implements platform.I2CDriver.
func (d *I2C) WriteRead(ctx context.Context, bus int, addr uint16, w, r []byte) error {
	b, err := d.installed(ctx, bus)
	if err != nil {
		return err
	}
	return b.conn.Tx(addr, w, r)
}

// NewTransaction implements platform.I2CDriver.
func (d *I2C) NewTransaction() (platform.I2CTransaction, error) {
	return &transaction{}, nil
}

// Submit implements platform.I2CDriver. Every stop in the transaction ends one I2C_RDWR call.
func (d *I2C) Submit(ctx context.Context, bus int, txn platform.I2CTransaction) error {
	t, ok := txn.(*transaction)
	if !ok || t.released {
		return platform.StatusInvalidArg
	}
	b, err := d.installed(ctx, bus)
	if err != nil {
		return err
	}
	groups, err := t.messages()
	if err != nil {
		return err
	}
	for i, msgs := range groups {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := rdwr(b.fd, msgs); err != nil {
			return errors.Wrapf(err, "message group %d", i)
		}
	}
	return nil
}

type primitiveKind int

const (
	primStart primitiveKind = iota
	primWrite
	primRead
	primStop
)

type primitive struct {
	kind     primitiveKind
	data     []byte
	ackCheck bool
}

type transaction struct {
	prims    []primitive
	released bool
}

func (t *transaction) add(p primitive) error {
	if t.released {
		return platform.StatusInvalidState
	}
	t.prims = append(t.prims, p)
	return nil
}

func (t *transaction) Start() error {
	return t.add(primitive{kind: primStart})
}

func (t *transaction) WriteByte(b byte, ackCheck bool) error {
	return t.add(primitive{kind: primWrite, data: []byte{b}, ackCheck: ackCheck})
}

func (t *transaction) Write(p []byte, ackCheck bool) error {
	return t.add(primitive{kind: primWrite, data: append([]byte(nil), p...), ackCheck: ackCheck})
}

// Read keeps p; it is filled when the transaction is submitted. The adapter always NACKs the last
// byte of a read message, so every ack mode is accepted.
func (t *transaction) Read(p []byte, ack platform.ReadAck) error {
	return t.add(primitive{kind: primRead, data: p})
}

func (t *transaction) Stop() error {
	return t.add(primitive{kind: primStop})
}

func (t *transaction) Release() {
	t.released = true
	t.prims = nil
}

// message is one struct i2c_msg before it is laid out for the kernel.
type message struct {
	addr  uint16
	flags uint16
	buf   []byte
}

// messages groups the primitives into I2C_RDWR calls. The first byte written after a start or a
// stop is the address byte; data that follows without a new start continues the previous
// message with I2C_M_NOSTART.
func (t *transaction) messages() ([][]message, error) {
	var (
		groups     [][]message
		cur        []message
		addr       uint16
		addressed  bool
		expectAddr = true
		fresh      bool
	)
	flush := func() {
		if fresh {
			// An address with no data phase probes the device with a zero length write.
			cur = append(cur, message{addr: addr})
			fresh = false
		}
		if len(cur) != 0 {
			groups = append(groups, cur)
			cur = nil
		}
	}
	for _, p := range t.prims {
		switch p.kind {
		case primStart:
			expectAddr = true
		case primStop:
			flush()
			expectAddr = true
		case primWrite, primRead:
			data := p.data
			if expectAddr && p.kind == primWrite {
				if len(data) == 0 {
					continue
				}
				if fresh {
					cur = append(cur, message{addr: addr})
				}
				addr = uint16(data[0] >> 1)
				addressed, expectAddr, fresh = true, false, true
				if data = data[1:]; len(data) == 0 {
					continue
				}
			}
			if !addressed || expectAddr {
				return nil, errors.Wrap(platform.StatusInvalidArg, "data phase without an address")
			}
			var flags uint16
			if p.kind == primRead {
				flags |= i2cMsgRead
			}
			if !fresh {
				flags |= i2cMsgNoStart
			}
			if p.kind == primWrite && !p.ackCheck {
				flags |= i2cMsgIgnoreNak
			}
			cur = append(cur, message{addr: addr, flags: flags, buf: data})
			fresh = false
			if len(cur) > i2cRDWRMaxMsgs {
				return nil, errors.Wrapf(platform.StatusInvalidArg, "more than %d messages between stops", i2cRDWRMaxMsgs)
			}
		}
	}
	flush()
	return groups, nil
}

type i2cMsg struct {
	Addr  uint16
	Flags uint16
	Len   uint16
	Buf   uintptr
}

type i2cRdwrData struct {
	Msgs  uintptr
	Nmsgs uint32
}

func rdwr(fd int, msgs []message) error {
	raw := make([]i2cMsg, len(msgs))
	for i, m := range msgs {
		raw[i] = i2cMsg{Addr: m.addr, Flags: m.flags, Len: uint16(len(m.buf))}
		if len(m.buf) != 0 {
			raw[i].Buf = uintptr(unsafe.Pointer(&m.buf[0]))
		}
	}
	data := i2cRdwrData{Msgs: uintptr(unsafe.Pointer(&raw[0])), Nmsgs: uint32(len(raw))}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), i2cRDWR, uintptr(unsafe.Pointer(&data)))
	runtime.KeepAlive(msgs)
	runtime.KeepAlive(raw)
	if errno != 0 {
		return errno
	}
	return nil
}
