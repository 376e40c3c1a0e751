package platform

import "context"

// SPIParams are the bus and device parameters applied by Configure.
type SPIParams struct {
	MOSI, MISO, SCLK, CS int
	Mode                 int
	ClockHz              int
	LSBFirst             bool
	MaxTransferSize      int
	DevicePath           string
}

// SPITransfer describes one full duplex transfer. Bits is the clocked length in bits. UserData is
// opaque to the platform and handed back on completion.
type SPITransfer struct {
	Tx       []byte
	Rx       []byte
	Bits     int
	UserData any
}

// SPIAsyncParams configure a queued (DMA) device on an installed bus.
type SPIAsyncParams struct {
	QueueSize       int
	MaxTransferSize int
	DMAChannel      int
}

// SPICompletion is called by the platform once per queued transfer, from its notification path.
// It must not block.
type SPICompletion func(t *SPITransfer, err error)

// SPIDriver is an SPI master controller.
type SPIDriver interface {
	Configure(bus int, params SPIParams) error
	Install(bus int) error
	Uninstall(bus int) error

	Transmit(ctx context.Context, bus int, t *SPITransfer) error

	// AllocDescriptor returns a DMA capable transfer descriptor. Every descriptor is handed back
	// with FreeDescriptor.
	AllocDescriptor() (*SPITransfer, error)
	FreeDescriptor(t *SPITransfer)

	AddAsyncDevice(bus int, params SPIAsyncParams, done SPICompletion) (SPIAsyncDevice, error)
}

// SPIAsyncDevice queues transfers whose completion is reported through the SPICompletion it was
// created with.
type SPIAsyncDevice interface {
	// Queue hands t to the device. It waits at most until the context deadline for queue space.
	Queue(ctx context.Context, t *SPITransfer) error
	Remove() error
}
