package spi

import (
	"time"

	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"go.viam.com/hal/platform"
)

// DefaultFrequencyHz is used when a Config does not set a clock.
const DefaultFrequencyHz = 1000000

// Config is the configuration of an SPI master bus and the device on its chip select.
type Config struct {
	MOSI int `json:"mosi"`
	MISO int `json:"miso"`
	SCLK int `json:"sclk"`
	CS   int `json:"cs"`
	// Mode is the SPI mode, 0 through 3.
	Mode            int    `json:"mode,omitempty"`
	FrequencyHz     int    `json:"frequency_hz,omitempty"`
	LSBFirst        bool   `json:"lsb_first,omitempty"`
	MaxTransferSize int    `json:"max_transfer_size,omitempty"`
	DevicePath      string `json:"device_path,omitempty"`
	TimeoutMs       int    `json:"timeout_ms,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (cfg Config) Validate(path string) error {
	if cfg.Mode < 0 || cfg.Mode > 3 {
		return goutils.NewConfigValidationError(path, errors.Errorf("invalid mode %d, must be 0-3", cfg.Mode))
	}
	if cfg.FrequencyHz < 0 {
		return goutils.NewConfigValidationError(path, errors.Errorf("invalid frequency_hz %d", cfg.FrequencyHz))
	}
	if cfg.MaxTransferSize < 0 {
		return goutils.NewConfigValidationError(path, errors.Errorf("invalid max_transfer_size %d", cfg.MaxTransferSize))
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

func (cfg Config) params() platform.SPIParams {
	freq := cfg.FrequencyHz
	if freq == 0 {
		freq = DefaultFrequencyHz
	}
	return platform.SPIParams{
		MOSI:            cfg.MOSI,
		MISO:            cfg.MISO,
		SCLK:            cfg.SCLK,
		CS:              cfg.CS,
		Mode:            cfg.Mode,
		ClockHz:         freq,
		LSBFirst:        cfg.LSBFirst,
		MaxTransferSize: cfg.MaxTransferSize,
		DevicePath:      cfg.DevicePath,
	}
}
