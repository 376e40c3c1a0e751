//go:build linux

package linux

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"

	"go.viam.com/hal/logging"
	"go.viam.com/hal/platform"
	"go.viam.com/hal/utils"
)

type spiBus struct {
	params platform.SPIParams
	port   spi.PortCloser
	conn   spi.Conn
}

// SPI drives spidev devices through periph. Queued transfers run on one worker goroutine per
// async device; spidev itself has no queue.
type SPI struct {
	logger logging.Logger

	mu    sync.Mutex
	buses map[int]*spiBus
}

var _ platform.SPIDriver = (*SPI)(nil)

func newSPI(logger logging.Logger) *SPI {
	return &SPI{logger: logger, buses: map[int]*spiBus{}}
}

// Configure implements platform.SPIDriver. The settings take effect at the next install.
func (d *SPI) Configure(bus int, params platform.SPIParams) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.buses[bus]
	if !ok {
		b = &spiBus{}
		d.buses[bus] = b
	}
	b.params = params
	return nil
}

// Install implements platform.SPIDriver. The chip select pin number picks the spidev device
// on the bus, /dev/spidevBUS.CS.
func (d *SPI) Install(bus int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.buses[bus]
	if !ok || b.port != nil {
		return platform.StatusInvalidState
	}
	name := b.params.DevicePath
	if name == "" {
		name = spiName(bus, b.params.CS)
	}
	port, err := spireg.Open(name)
	if err != nil {
		return errors.Wrapf(err, "opening %s", name)
	}
	mode := spi.Mode(b.params.Mode)
	if b.params.LSBFirst {
		mode |= spi.LSBFirst
	}
	conn, err := port.Connect(physic.Frequency(b.params.ClockHz)*physic.Hertz, mode, 8)
	if err != nil {
		return multierr.Combine(errors.Wrapf(err, "connecting %s", name), port.Close())
	}
	b.port, b.conn = port, conn
	return nil
}

func spiName(bus, cs int) string {
	return fmt.Sprintf("/dev/spidev%d.%d", bus, max(cs, 0))
}

// Uninstall implements platform.SPIDriver.
func (d *SPI) Uninstall(bus int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.buses[bus]
	if !ok || b.port == nil {
		return platform.StatusInvalidState
	}
	err := b.port.Close()
	b.port, b.conn = nil, nil
	return err
}

func (d *SPI) conn(bus int) (spi.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.buses[bus]
	if !ok || b.conn == nil {
		return nil, platform.StatusInvalidState
	}
	return b.conn, nil
}

// Transmit implements platform.SPIDriver.
func (d *SPI) Transmit(ctx context.Context, bus int, t *platform.SPITransfer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	conn, err := d.conn(bus)
	if err != nil {
		return err
	}
	return tx(conn, t)
}

// tx clocks t.Bits bits. periph wants equal length buffers for a full duplex transfer, so the
// shorter side is padded.
func tx(conn spi.Conn, t *platform.SPITransfer) error {
	n := t.Bits / 8
	if n == 0 || n < len(t.Tx) || n < len(t.Rx) {
		return platform.StatusInvalidArg
	}
	w, r := t.Tx, t.Rx
	if len(w) != n {
		w = make([]byte, n)
		copy(w, t.Tx)
	}
	if r != nil && len(r) != n {
		r = make([]byte, n)
	}
	if err := conn.Tx(w, r); err != nil {
		return err
	}
	if r != nil && len(r) != len(t.Rx) {
		copy(t.Rx, r)
	}
	return nil
}

// AllocDescriptor implements platform.SPIDriver. spidev copies every buffer, so any memory is
// DMA capable.
func (d *SPI) AllocDescriptor() (*platform.SPITransfer, error) {
	return &platform.SPITransfer{}, nil
}

// FreeDescriptor implements platform.SPIDriver.
func (d *SPI) FreeDescriptor(t *platform.SPITransfer) {
	*t = platform.SPITransfer{}
}

// AddAsyncDevice implements platform.SPIDriver.
func (d *SPI) AddAsyncDevice(bus int, params platform.SPIAsyncParams, done platform.SPICompletion) (platform.SPIAsyncDevice, error) {
	if params.QueueSize <= 0 || done == nil {
		return nil, platform.StatusInvalidArg
	}
	if _, err := d.conn(bus); err != nil {
		return nil, err
	}
	dev := &spiAsyncDevice{
		driver: d,
		bus:    bus,
		queue:  make(chan *platform.SPITransfer, params.QueueSize),
		done:   done,
	}
	dev.workers = utils.NewStoppableWorkers(dev.run)
	return dev, nil
}

type spiAsyncDevice struct {
	driver  *SPI
	bus     int
	queue   chan *platform.SPITransfer
	done    platform.SPICompletion
	pending atomic.Int32
	workers utils.StoppableWorkers
}

func (dev *spiAsyncDevice) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-dev.queue:
			conn, err := dev.driver.conn(dev.bus)
			if err == nil {
				err = tx(conn, t)
			}
			dev.done(t, err)
			dev.pending.Dec()
		}
	}
}

// Queue implements platform.SPIAsyncDevice.
func (dev *spiAsyncDevice) Queue(ctx context.Context, t *platform.SPITransfer) error {
	if dev.workers.Context().Err() != nil {
		return platform.StatusInvalidState
	}
	dev.pending.Inc()
	select {
	case dev.queue <- t:
		return nil
	case <-ctx.Done():
		dev.pending.Dec()
		return ctx.Err()
	}
}

// Remove implements platform.SPIAsyncDevice. It fails while transfers are still queued or
// running.
func (dev *spiAsyncDevice) Remove() error {
	if dev.pending.Load() != 0 {
		return platform.StatusInvalidState
	}
	dev.workers.Stop()
	return nil
}
