package uart

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"go.viam.com/hal/platform"
)

// DefaultRxBufferSize is the receive buffer installed when a Config does not set one.
const DefaultRxBufferSize = 256

// Config is the configuration of a UART port.
type Config struct {
	BaudRate int `json:"baud_rate"`
	// DataBits is 7 or 8; zero selects 8.
	DataBits int `json:"data_bits,omitempty"`
	// Parity is "none", "odd" or "even"; empty selects none.
	Parity string `json:"parity,omitempty"`
	// StopBits is 1 or 2; zero selects 1.
	StopBits     int    `json:"stop_bits,omitempty"`
	TXPin        int    `json:"tx_pin"`
	RXPin        int    `json:"rx_pin"`
	RTSPin       *int   `json:"rts_pin,omitempty"`
	CTSPin       *int   `json:"cts_pin,omitempty"`
	RxBufferSize int    `json:"rx_buffer_size,omitempty"`
	TxBufferSize int    `json:"tx_buffer_size,omitempty"`
	DevicePath   string `json:"device_path,omitempty"`
	TimeoutMs    int    `json:"timeout_ms,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (cfg Config) Validate(path string) error {
	if cfg.BaudRate == 0 {
		return goutils.NewConfigValidationFieldRequiredError(path, "baud_rate")
	}
	if cfg.BaudRate < 0 {
		return goutils.NewConfigValidationError(path, errors.Errorf("invalid baud_rate %d", cfg.BaudRate))
	}
	switch cfg.DataBits {
	case 0, 7, 8:
	default:
		return goutils.NewConfigValidationError(path, errors.Errorf("invalid data_bits %d, must be 7 or 8", cfg.DataBits))
	}
	if _, err := parseParity(cfg.Parity); err != nil {
		return goutils.NewConfigValidationError(path, err)
	}
	switch cfg.StopBits {
	case 0, 1, 2:
	default:
		return goutils.NewConfigValidationError(path, errors.Errorf("invalid stop_bits %d, must be 1 or 2", cfg.StopBits))
	}
	if cfg.RxBufferSize < 0 || cfg.TxBufferSize < 0 {
		return goutils.NewConfigValidationError(path, errors.New("buffer sizes cannot be negative"))
	}
	if cfg.TimeoutMs < 0 {
		return goutils.NewConfigValidationError(path, errors.Errorf("invalid timeout_ms %d", cfg.TimeoutMs))
	}
	return nil
}

// OperationTimeout returns the configured operation timeout.
func (cfg Config) OperationTimeout() time.Duration {
	return time.Duration(cfg.TimeoutMs) * time.Millisecond
}

func parseParity(s string) (platform.Parity, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return platform.ParityNone, nil
	case "odd":
		return platform.ParityOdd, nil
	case "even":
		return platform.ParityEven, nil
	default:
		return platform.ParityNone, errors.Errorf("invalid parity %q", s)
	}
}

func (cfg Config) params() platform.UARTParams {
	dataBits := cfg.DataBits
	if dataBits == 0 {
		dataBits = 8
	}
	stopBits := platform.StopBits1
	if cfg.StopBits == 2 {
		stopBits = platform.StopBits2
	}
	//nolint:errcheck
	parity, _ := parseParity(cfg.Parity)
	return platform.UARTParams{
		BaudRate:   cfg.BaudRate,
		DataBits:   dataBits,
		Parity:     parity,
		StopBits:   stopBits,
		DevicePath: cfg.DevicePath,
	}
}

func (cfg Config) pins() platform.UARTPins {
	pins := platform.UARTPins{TX: cfg.TXPin, RX: cfg.RXPin, RTS: -1, CTS: -1}
	if cfg.RTSPin != nil {
		pins.RTS = *cfg.RTSPin
	}
	if cfg.CTSPin != nil {
		pins.CTS = *cfg.CTSPin
	}
	return pins
}

func (cfg Config) rxBufferSize() int {
	if cfg.RxBufferSize == 0 {
		return DefaultRxBufferSize
	}
	return cfg.RxBufferSize
}
