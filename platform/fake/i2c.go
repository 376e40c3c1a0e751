package fake

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/atomic"

	"go.viam.com/hal/platform"
)

// Device is a register file behind an I2C address. The first byte of every write sets the
// register pointer, further bytes are stored from it, and reads return bytes from it. The pointer
// advances after each byte.
type Device struct {
	mu      sync.Mutex
	Regs    [256]byte
	pointer byte
}

func (d *Device) write(p []byte, setPointer bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, b := range p {
		if i == 0 && setPointer {
			d.pointer = b
			continue
		}
		d.Regs[d.pointer] = b
		d.pointer++
	}
}

func (d *Device) read(p []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range p {
		p[i] = d.Regs[d.pointer]
		d.pointer++
	}
}

// I2C is a fake I2C controller with devices attached by address.
type I2C struct {
	recorder

	devMu   sync.Mutex
	devices map[uint16]*Device

	params    map[int]platform.I2CParams
	installed map[int]bool

	outstanding atomic.Int32
	submitted   [][]string
}

var _ platform.I2CDriver = (*I2C)(nil)

// NewI2C returns a fake controller with no devices.
func NewI2C() *I2C {
	return &I2C{
		devices:   map[uint16]*Device{},
		params:    map[int]platform.I2CParams{},
		installed: map[int]bool{},
	}
}

// AddDevice attaches a device at addr and returns it.
func (c *I2C) AddDevice(addr uint16) *Device {
	c.devMu.Lock()
	defer c.devMu.Unlock()
	d := &Device{}
	c.devices[addr] = d
	return d
}

func (c *I2C) device(addr uint16) (*Device, error) {
	c.devMu.Lock()
	defer c.devMu.Unlock()
	d, ok := c.devices[addr]
	if !ok {
		// No ACK from the address byte.
		return nil, platform.StatusFail
	}
	return d, nil
}

// Params returns the parameters bus was last configured with.
func (c *I2C) Params(bus int) platform.I2CParams {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.params[bus]
}

// Installed reports whether a driver is installed on bus.
func (c *I2C) Installed(bus int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.installed[bus]
}

// OutstandingTransactions is the number of transactions created and not yet released.
func (c *I2C) OutstandingTransactions() int {
	return int(c.outstanding.Load())
}

// Submitted returns the primitives of every submitted transaction.
func (c *I2C) Submitted() [][]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]string(nil), c.submitted...)
}

// Configure implements platform.I2CDriver.
func (c *I2C) Configure(bus int, params platform.I2CParams) error {
	if err := c.record("configure", bus); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.params[bus] = params
	return nil
}

// Install implements platform.I2CDriver.
func (c *I2C) Install(bus int) error {
	if err := c.record("install", bus); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.installed[bus] {
		return platform.StatusInvalidState
	}
	c.installed[bus] = true
	return nil
}

// Uninstall implements platform.I2CDriver.
func (c *I2C) Uninstall(bus int) error {
	if err := c.record("uninstall", bus); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.installed[bus] {
		return platform.StatusInvalidState
	}
	delete(c.installed, bus)
	return nil
}

// Write implements platform.I2CDriver.
func (c *I2C) Write(ctx context.Context, bus int, addr uint16, p []byte) error {
	exit, err := c.enter("write", bus)
	defer exit()
	if err != nil {
		return err
	}
	d, err := c.device(addr)
	if err != nil {
		return err
	}
	d.write(p, true)
	return ctx.Err()
}

// Read implements platform.I2CDriver.
func (c *I2C) Read(ctx context.Context, bus int, addr uint16, p []byte) error {
	exit, err := c.enter("read", bus)
	defer exit()
	if err != nil {
		return err
	}
	d, err := c.device(addr)
	if err != nil {
		return err
	}
	d.read(p)
	return ctx.Err()
}

// WriteRead implements platform.I2CDriver.
func (c *I2C) WriteRead(ctx context.Context, bus int, addr uint16, w, r []byte) error {
	exit, err := c.enter("write_read", bus)
	defer exit()
	if err != nil {
		return err
	}
	d, err := c.device(addr)
	if err != nil {
		return err
	}
	d.write(w, true)
	d.read(r)
	return ctx.Err()
}

// NewTransaction implements platform.I2CDriver.
func (c *I2C) NewTransaction() (platform.I2CTransaction, error) {
	if err := c.record("new_transaction", -1); err != nil {
		return nil, err
	}
	c.outstanding.Inc()
	return &transaction{owner: c}, nil
}

// Submit implements platform.I2CDriver. It runs the transaction's primitives against the attached
// devices.
func (c *I2C) Submit(ctx context.Context, bus int, txn platform.I2CTransaction) error {
	exit, err := c.enter("submit", bus)
	defer exit()
	if err != nil {
		return err
	}
	t, ok := txn.(*transaction)
	if !ok || t.released {
		return platform.StatusInvalidArg
	}
	c.mu.Lock()
	c.submitted = append(c.submitted, t.Primitives())
	c.mu.Unlock()

	if err := t.run(); err != nil {
		return err
	}
	return ctx.Err()
}

type primitive struct {
	kind     string
	data     []byte
	buf      []byte
	ack      platform.ReadAck
	ackCheck bool
}

func (p primitive) String() string {
	switch p.kind {
	case "write":
		return fmt.Sprintf("write %x", p.data)
	case "read":
		suffix := ""
		if p.ack == platform.ReadLastNack {
			suffix = " last-nack"
		}
		return fmt.Sprintf("read %d%s", len(p.buf), suffix)
	default:
		return p.kind
	}
}

type transaction struct {
	owner      *I2C
	primitives []primitive
	released   bool
}

func (t *transaction) add(p primitive) error {
	if t.released {
		return platform.StatusInvalidState
	}
	if err := t.owner.record(p.kind, -1); err != nil {
		return err
	}
	t.primitives = append(t.primitives, p)
	return nil
}

func (t *transaction) Start() error {
	return t.add(primitive{kind: "start"})
}

func (t *transaction) WriteByte(b byte, ackCheck bool) error {
	return t.add(primitive{kind: "write", data: []byte{b}, ackCheck: ackCheck})
}

func (t *transaction) Write(p []byte, ackCheck bool) error {
	return t.add(primitive{kind: "write", data: append([]byte(nil), p...), ackCheck: ackCheck})
}

func (t *transaction) Read(p []byte, ack platform.ReadAck) error {
	return t.add(primitive{kind: "read", buf: p, ack: ack})
}

func (t *transaction) Stop() error {
	return t.add(primitive{kind: "stop"})
}

func (t *transaction) Release() {
	if t.released {
		panic("i2c transaction released twice")
	}
	t.released = true
	t.owner.outstanding.Dec()
}

// Primitives renders the transaction, for example "start", "write a0", "read 4 last-nack".
func (t *transaction) Primitives() []string {
	out := make([]string, 0, len(t.primitives))
	for _, p := range t.primitives {
		out = append(out, p.String())
	}
	return out
}

// run replays the primitives: the first write after a start or a stop is the address byte.
func (t *transaction) run() error {
	var dev *Device
	expectAddr, addressed := false, false
	for _, p := range t.primitives {
		switch p.kind {
		case "start":
			expectAddr = true
		case "stop":
			dev = nil
			expectAddr = true
		case "write":
			data := p.data
			if expectAddr {
				expectAddr = false
				d, err := t.owner.device(uint16(data[0] >> 1))
				if err != nil {
					return err
				}
				dev, addressed = d, true
				data = data[1:]
			}
			if len(data) == 0 {
				continue
			}
			if dev == nil {
				return platform.StatusFail
			}
			dev.write(data, addressed)
			addressed = false
		case "read":
			if dev == nil {
				return platform.StatusFail
			}
			dev.read(p.buf)
			addressed = false
		}
	}
	return nil
}

// FormatPrimitives joins rendered primitives with ", ".
func FormatPrimitives(p []string) string {
	return strings.Join(p, ", ")
}
