package fake

import (
	"context"
	"sync"

	"go.uber.org/atomic"

	"go.viam.com/hal/platform"
)

// SPI is a fake SPI controller. Transfers loop back: every received byte is the byte transmitted
// in the same position, or Fill when nothing was transmitted there.
type SPI struct {
	recorder

	params    map[int]platform.SPIParams
	installed map[int]bool
	Fill      byte

	allocs atomic.Int32
	frees  atomic.Int32

	devMu   sync.Mutex
	devices []*SPIAsyncDevice
}

var _ platform.SPIDriver = (*SPI)(nil)

// NewSPI returns a fake controller.
func NewSPI() *SPI {
	return &SPI{
		params:    map[int]platform.SPIParams{},
		installed: map[int]bool{},
		Fill:      0xFF,
	}
}

// Params returns the parameters bus was last configured with.
func (s *SPI) Params(bus int) platform.SPIParams {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.params[bus]
}

// Outstanding is the number of descriptors allocated and not yet freed.
func (s *SPI) Outstanding() int {
	return int(s.allocs.Load() - s.frees.Load())
}

// Allocations is the number of descriptors ever allocated.
func (s *SPI) Allocations() int {
	return int(s.allocs.Load())
}

// Configure implements platform.SPIDriver.
func (s *SPI) Configure(bus int, params platform.SPIParams) error {
	if err := s.record("configure", bus); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.params[bus] = params
	return nil
}

// Install implements platform.SPIDriver.
func (s *SPI) Install(bus int) error {
	if err := s.record("install", bus); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.installed[bus] = true
	return nil
}

// Uninstall implements platform.SPIDriver.
func (s *SPI) Uninstall(bus int) error {
	if err := s.record("uninstall", bus); err != nil {
		return err
	}
	s.devMu.Lock()
	defer s.devMu.Unlock()
	for _, d := range s.devices {
		if d.bus == bus && !d.removed.Load() {
			// Devices must be removed before the bus is freed.
			return platform.StatusInvalidState
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.installed, bus)
	return nil
}

func (s *SPI) loopback(t *platform.SPITransfer) {
	n := t.Bits / 8
	for i := 0; i < n && i < len(t.Rx); i++ {
		if i < len(t.Tx) {
			t.Rx[i] = t.Tx[i]
		} else {
			t.Rx[i] = s.Fill
		}
	}
}

// Transmit implements platform.SPIDriver.
func (s *SPI) Transmit(ctx context.Context, bus int, t *platform.SPITransfer) error {
	exit, err := s.enter("transmit", bus)
	defer exit()
	if err != nil {
		return err
	}
	s.loopback(t)
	return ctx.Err()
}

// AllocDescriptor implements platform.SPIDriver.
func (s *SPI) AllocDescriptor() (*platform.SPITransfer, error) {
	if err := s.record("alloc_descriptor", -1); err != nil {
		return nil, err
	}
	s.allocs.Inc()
	return &platform.SPITransfer{}, nil
}

// FreeDescriptor implements platform.SPIDriver.
func (s *SPI) FreeDescriptor(t *platform.SPITransfer) {
	//nolint:errcheck
	s.record("free_descriptor", -1)
	s.frees.Inc()
}

// AddAsyncDevice implements platform.SPIDriver.
func (s *SPI) AddAsyncDevice(bus int, params platform.SPIAsyncParams, done platform.SPICompletion) (platform.SPIAsyncDevice, error) {
	if err := s.record("add_async_device", bus); err != nil {
		return nil, err
	}
	d := &SPIAsyncDevice{owner: s, bus: bus, params: params, done: done}
	s.devMu.Lock()
	s.devices = append(s.devices, d)
	s.devMu.Unlock()
	return d, nil
}

// AsyncDevice returns the most recently added async device, or nil.
func (s *SPI) AsyncDevice() *SPIAsyncDevice {
	s.devMu.Lock()
	defer s.devMu.Unlock()
	if len(s.devices) == 0 {
		return nil
	}
	return s.devices[len(s.devices)-1]
}

// SPIAsyncDevice holds queued transfers until the test completes them.
type SPIAsyncDevice struct {
	owner   *SPI
	bus     int
	params  platform.SPIAsyncParams
	done    platform.SPICompletion
	removed atomic.Bool

	mu      sync.Mutex
	pending []*platform.SPITransfer
}

// Params returns the parameters the device was added with.
func (d *SPIAsyncDevice) Params() platform.SPIAsyncParams {
	return d.params
}

// Queue implements platform.SPIAsyncDevice. A full queue fails with StatusTimeout, as a platform
// queue whose wait for space expired would.
func (d *SPIAsyncDevice) Queue(ctx context.Context, t *platform.SPITransfer) error {
	if err := d.owner.record("queue", d.bus); err != nil {
		return err
	}
	if d.removed.Load() {
		return platform.StatusInvalidState
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.params.QueueSize > 0 && len(d.pending) >= d.params.QueueSize {
		return platform.StatusTimeout
	}
	d.pending = append(d.pending, t)
	return nil
}

// Remove implements platform.SPIAsyncDevice. It fails while transfers are pending.
func (d *SPIAsyncDevice) Remove() error {
	if err := d.owner.record("remove_async_device", d.bus); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.pending) > 0 {
		return platform.StatusInvalidState
	}
	d.removed.Store(true)
	return nil
}

// Pending returns the number of queued, uncompleted transfers.
func (d *SPIAsyncDevice) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// CompleteNext finishes the oldest queued transfer with err, calling the completion function.
// It reports whether there was a transfer to complete.
func (d *SPIAsyncDevice) CompleteNext(err error) bool {
	d.mu.Lock()
	if len(d.pending) == 0 {
		d.mu.Unlock()
		return false
	}
	t := d.pending[0]
	d.pending = d.pending[1:]
	d.mu.Unlock()

	if err == nil {
		d.owner.loopback(t)
	}
	d.done(t, err)
	return true
}

// CompleteAll finishes every queued transfer successfully and returns how many there were.
func (d *SPIAsyncDevice) CompleteAll() int {
	n := 0
	for d.CompleteNext(nil) {
		n++
	}
	return n
}
