package platform

import "context"

// Parity of a UART frame.
type Parity int

// Parity modes.
const (
	ParityNone Parity = iota
	ParityOdd
	ParityEven
)

// StopBits of a UART frame.
type StopBits int

// Stop bit settings.
const (
	StopBits1 StopBits = iota
	StopBits2
)

// UARTParams are the line parameters applied by Configure.
type UARTParams struct {
	BaudRate   int
	DataBits   int
	Parity     Parity
	StopBits   StopBits
	DevicePath string
}

// UARTPins route a port. Negative values leave a signal unchanged.
type UARTPins struct {
	TX, RX, RTS, CTS int
}

// UARTDriver is a UART port driver. Read and Write return how many bytes were transferred before
// the deadline.
type UARTDriver interface {
	Configure(port int, params UARTParams) error
	Install(port int, rxBufferSize, txBufferSize int) error
	SetPins(port int, pins UARTPins) error
	Uninstall(port int) error

	Write(ctx context.Context, port int, p []byte) (int, error)
	Read(ctx context.Context, port int, p []byte) (int, error)

	// Buffered reports how many received bytes are waiting.
	Buffered(port int) (int, error)
	// WaitTxDone blocks until the transmit buffer has drained.
	WaitTxDone(ctx context.Context, port int) error
	FlushInput(port int) error
}
