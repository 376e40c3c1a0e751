package fake

import (
	"bytes"
	"context"
	"sync"

	"go.viam.com/hal/platform"
)

// UART is a fake UART. Bytes written are captured per port and bytes to be received are fed in
// with Feed.
type UART struct {
	recorder

	portMu sync.Mutex
	ports  map[int]*uartPort

	// ShortWrite, when positive, caps how many bytes one Write accepts.
	ShortWrite int
}

type uartPort struct {
	params    platform.UARTParams
	pins      platform.UARTPins
	installed bool
	rxSize    int
	txSize    int
	tx        bytes.Buffer
	rx        bytes.Buffer
	notify    chan struct{}
}

var _ platform.UARTDriver = (*UART)(nil)

// NewUART returns a fake UART with no ports open.
func NewUART() *UART {
	return &UART{ports: map[int]*uartPort{}}
}

func (u *UART) port(n int) *uartPort {
	u.portMu.Lock()
	defer u.portMu.Unlock()
	p, ok := u.ports[n]
	if !ok {
		p = &uartPort{notify: make(chan struct{}, 1)}
		u.ports[n] = p
	}
	return p
}

// Feed makes data available to be read from port.
func (u *UART) Feed(port int, data []byte) {
	p := u.port(port)
	u.portMu.Lock()
	p.rx.Write(data)
	u.portMu.Unlock()
	select {
	case p.notify <- struct{}{}:
	default:
	}
}

// Written returns everything written to port so far.
func (u *UART) Written(port int) []byte {
	p := u.port(port)
	u.portMu.Lock()
	defer u.portMu.Unlock()
	return append([]byte(nil), p.tx.Bytes()...)
}

// Params returns the line parameters port was configured with.
func (u *UART) Params(port int) platform.UARTParams {
	p := u.port(port)
	u.portMu.Lock()
	defer u.portMu.Unlock()
	return p.params
}

// Pins returns the routing last set on port.
func (u *UART) Pins(port int) platform.UARTPins {
	p := u.port(port)
	u.portMu.Lock()
	defer u.portMu.Unlock()
	return p.pins
}

// BufferSizes returns the receive and transmit buffer sizes port was installed with.
func (u *UART) BufferSizes(port int) (rx, tx int) {
	p := u.port(port)
	u.portMu.Lock()
	defer u.portMu.Unlock()
	return p.rxSize, p.txSize
}

// Installed reports whether the port has a driver installed.
func (u *UART) Installed(port int) bool {
	p := u.port(port)
	u.portMu.Lock()
	defer u.portMu.Unlock()
	return p.installed
}

// Configure implements platform.UARTDriver.
func (u *UART) Configure(port int, params platform.UARTParams) error {
	if err := u.record("configure", port); err != nil {
		return err
	}
	p := u.port(port)
	u.portMu.Lock()
	defer u.portMu.Unlock()
	p.params = params
	return nil
}

// Install implements platform.UARTDriver.
func (u *UART) Install(port, rxBufferSize, txBufferSize int) error {
	if err := u.record("install", port); err != nil {
		return err
	}
	p := u.port(port)
	u.portMu.Lock()
	defer u.portMu.Unlock()
	p.installed = true
	p.rxSize, p.txSize = rxBufferSize, txBufferSize
	return nil
}

// SetPins implements platform.UARTDriver.
func (u *UART) SetPins(port int, pins platform.UARTPins) error {
	if err := u.record("set_pins", port); err != nil {
		return err
	}
	p := u.port(port)
	u.portMu.Lock()
	defer u.portMu.Unlock()
	p.pins = pins
	return nil
}

// Uninstall implements platform.UARTDriver.
func (u *UART) Uninstall(port int) error {
	if err := u.record("uninstall", port); err != nil {
		return err
	}
	p := u.port(port)
	u.portMu.Lock()
	defer u.portMu.Unlock()
	p.installed = false
	return nil
}

// Write implements platform.UARTDriver.
func (u *UART) Write(ctx context.Context, port int, data []byte) (int, error) {
	exit, err := u.enter("write", port)
	defer exit()
	if err != nil {
		return 0, err
	}
	if u.ShortWrite > 0 && len(data) > u.ShortWrite {
		data = data[:u.ShortWrite]
	}
	p := u.port(port)
	u.portMu.Lock()
	defer u.portMu.Unlock()
	return p.tx.Write(data)
}

// Read implements platform.UARTDriver. It waits for fed bytes until p is full or ctx expires,
// and returns what it got either way.
func (u *UART) Read(ctx context.Context, port int, data []byte) (int, error) {
	exit, err := u.enter("read", port)
	defer exit()
	if err != nil {
		return 0, err
	}
	p := u.port(port)
	n := 0
	for {
		u.portMu.Lock()
		m, _ := p.rx.Read(data[n:])
		u.portMu.Unlock()
		n += m
		if n == len(data) {
			return n, nil
		}
		select {
		case <-ctx.Done():
			return n, nil
		case <-p.notify:
		}
	}
}

// Buffered implements platform.UARTDriver.
func (u *UART) Buffered(port int) (int, error) {
	if err := u.record("buffered", port); err != nil {
		return 0, err
	}
	p := u.port(port)
	u.portMu.Lock()
	defer u.portMu.Unlock()
	return p.rx.Len(), nil
}

// WaitTxDone implements platform.UARTDriver. Writes complete immediately.
func (u *UART) WaitTxDone(ctx context.Context, port int) error {
	return u.record("wait_tx_done", port)
}

// FlushInput implements platform.UARTDriver.
func (u *UART) FlushInput(port int) error {
	if err := u.record("flush_input", port); err != nil {
		return err
	}
	p := u.port(port)
	u.portMu.Lock()
	defer u.portMu.Unlock()
	p.rx.Reset()
	return nil
}
