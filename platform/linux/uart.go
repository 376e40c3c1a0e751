//go:build linux

package linux

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.bug.st/serial"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"go.viam.com/hal/logging"
	"go.viam.com/hal/platform"
	"go.viam.com/hal/utils"
)

// pollInterval bounds how long the receive worker blocks in a read, and so how long uninstalling
// a port waits for it.
const pollInterval = 100 * time.Millisecond

type uartPort struct {
	params platform.UARTParams
	port   serial.Port

	rxMu   sync.Mutex
	rx     bytes.Buffer
	rxSize int
	// notify is signalled whenever bytes are added to rx.
	notify chan struct{}

	workers utils.StoppableWorkers
}

// UART drives tty devices. A worker per installed port moves received bytes into a buffer of the
// installed receive size, which is what Buffered reports.
type UART struct {
	logger logging.Logger

	mu    sync.Mutex
	ports map[int]*uartPort
}

var _ platform.UARTDriver = (*UART)(nil)

func newUART(logger logging.Logger) *UART {
	return &UART{logger: logger, ports: map[int]*uartPort{}}
}

// Configure implements platform.UARTDriver. The line settings of an installed port are changed in
// place.
func (d *UART) Configure(port int, params platform.UARTParams) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.ports[port]
	if !ok {
		p = &uartPort{}
		d.ports[port] = p
	}
	p.params = params
	if p.port != nil {
		return p.port.SetMode(serialMode(params))
	}
	return nil
}

func serialMode(params platform.UARTParams) *serial.Mode {
	mode := &serial.Mode{BaudRate: params.BaudRate, DataBits: params.DataBits}
	if mode.DataBits == 0 {
		mode.DataBits = 8
	}
	switch params.Parity {
	case platform.ParityOdd:
		mode.Parity = serial.OddParity
	case platform.ParityEven:
		mode.Parity = serial.EvenParity
	case platform.ParityNone:
		mode.Parity = serial.NoParity
	}
	if params.StopBits == platform.StopBits2 {
		mode.StopBits = serial.TwoStopBits
	}
	return mode
}

// Install implements platform.UARTDriver. The kernel sizes the transmit buffer itself.
func (d *UART) Install(port, rxBufferSize, txBufferSize int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.ports[port]
	if !ok || p.port != nil {
		return platform.StatusInvalidState
	}
	path := devicePath(p.params.DevicePath, "/dev/ttyS%d", port)
	sp, err := serial.Open(path, serialMode(p.params))
	if err != nil {
		return errors.Wrapf(err, "opening %s", path)
	}
	if err := sp.SetReadTimeout(pollInterval); err != nil {
		return multierr.Combine(err, sp.Close())
	}
	p.port = sp
	p.rx.Reset()
	p.rxSize = rxBufferSize
	p.notify = make(chan struct{}, 1)
	p.workers = utils.NewStoppableWorkers(func(ctx context.Context) {
		d.receive(ctx, p)
	})
	return nil
}

func (d *UART) receive(ctx context.Context, p *uartPort) {
	buf := make([]byte, 256)
	for ctx.Err() == nil {
		n, err := p.port.Read(buf)
		if err != nil {
			if ctx.Err() == nil {
				d.logger.Debugw("serial read failed", "error", err)
				goutils.SelectContextOrWait(ctx, pollInterval)
			}
			continue
		}
		if n == 0 {
			continue
		}
		p.rxMu.Lock()
		free := p.rxSize - p.rx.Len()
		if n > free {
			d.logger.Warnw("receive buffer full, dropping bytes", "dropped", n-free)
			n = max(free, 0)
		}
		p.rx.Write(buf[:n])
		p.rxMu.Unlock()
		select {
		case p.notify <- struct{}{}:
		default:
		}
	}
}

// SetPins implements platform.UARTDriver. tty pin routing comes from the device tree, so the
// request is only logged.
func (d *UART) SetPins(port int, pins platform.UARTPins) error {
	if _, err := d.installed(port); err != nil {
		return err
	}
	d.logger.Debugw("uart pins are fixed by the device tree", "port", port, "tx", pins.TX, "rx", pins.RX)
	return nil
}

// Uninstall implements platform.UARTDriver.
func (d *UART) Uninstall(port int) error {
	d.mu.Lock()
	p, ok := d.ports[port]
	if !ok || p.port == nil {
		d.mu.Unlock()
		return platform.StatusInvalidState
	}
	sp, workers := p.port, p.workers
	p.port, p.workers = nil, nil
	d.mu.Unlock()

	workers.Stop()
	return sp.Close()
}

func (d *UART) installed(port int) (*uartPort, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.ports[port]
	if !ok || p.port == nil {
		return nil, platform.StatusInvalidState
	}
	return p, nil
}

// Write implements platform.UARTDriver.
func (d *UART) Write(ctx context.Context, port int, data []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	p, err := d.installed(port)
	if err != nil {
		return 0, err
	}
	return p.port.Write(data)
}

// Read implements platform.UARTDriver. It returns once data is full or ctx is done.
func (d *UART) Read(ctx context.Context, port int, data []byte) (int, error) {
	p, err := d.installed(port)
	if err != nil {
		return 0, err
	}
	n := 0
	for {
		p.rxMu.Lock()
		m, _ := p.rx.Read(data[n:])
		p.rxMu.Unlock()
		n += m
		if n == len(data) {
			return n, nil
		}
		select {
		case <-p.notify:
		case <-ctx.Done():
			return n, nil
		}
	}
}

// Buffered implements platform.UARTDriver.
func (d *UART) Buffered(port int) (int, error) {
	p, err := d.installed(port)
	if err != nil {
		return 0, err
	}
	p.rxMu.Lock()
	defer p.rxMu.Unlock()
	return p.rx.Len(), nil
}

// WaitTxDone implements platform.UARTDriver. tcdrain cannot be interrupted, so ctx is only checked
// before it starts.
func (d *UART) WaitTxDone(ctx context.Context, port int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := d.installed(port)
	if err != nil {
		return err
	}
	return p.port.Drain()
}

// FlushInput implements platform.UARTDriver.
func (d *UART) FlushInput(port int) error {
	p, err := d.installed(port)
	if err != nil {
		return err
	}
	p.rxMu.Lock()
	p.rx.Reset()
	p.rxMu.Unlock()
	return p.port.ResetInputBuffer()
}
