package platform

import "context"

// I2CParams are the controller parameters applied by Configure.
type I2CParams struct {
	SDA        int
	SCL        int
	ClockHz    int
	PullUps    bool
	DevicePath string
}

// I2CDriver is an I2C master controller. Blocking calls are bounded by the context deadline.
type I2CDriver interface {
	Configure(bus int, params I2CParams) error
	Install(bus int) error
	Uninstall(bus int) error

	Write(ctx context.Context, bus int, addr uint16, p []byte) error
	Read(ctx context.Context, bus int, addr uint16, p []byte) error
	// WriteRead writes w then reads into r without releasing the bus in between.
	WriteRead(ctx context.Context, bus int, addr uint16, w, r []byte) error

	NewTransaction() (I2CTransaction, error)
	Submit(ctx context.Context, bus int, txn I2CTransaction) error
}

// ReadAck selects how a read phase acknowledges the bytes it receives.
type ReadAck int

// The read acknowledgement modes.
const (
	ReadAckAll ReadAck = iota
	ReadNackAll
	// ReadLastNack acknowledges every byte but the last one, which ends the read.
	ReadLastNack
)

// I2CTransaction is a command list built up primitive by primitive and run by I2CDriver.Submit.
// Release must be called exactly once whether or not the transaction was submitted.
type I2CTransaction interface {
	Start() error
	WriteByte(b byte, ackCheck bool) error
	Write(p []byte, ackCheck bool) error
	Read(p []byte, ack ReadAck) error
	Stop() error
	Release()
}
