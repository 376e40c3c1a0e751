package i2c

import (
	"time"

	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"go.viam.com/hal/platform"
)

// DefaultFrequencyHz is used when a Config does not set a bus clock.
const DefaultFrequencyHz = 100000

// Config is the configuration of an I2C master bus.
type Config struct {
	SDA         int    `json:"sda"`
	SCL         int    `json:"scl"`
	FrequencyHz int    `json:"frequency_hz,omitempty"`
	PullUps     bool   `json:"pull_ups,omitempty"`
	DevicePath  string `json:"device_path,omitempty"`
	TimeoutMs   int    `json:"timeout_ms,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (cfg Config) Validate(path string) error {
	if cfg.FrequencyHz < 0 {
		return goutils.NewConfigValidationError(path, errors.Errorf("invalid frequency_hz %d", cfg.FrequencyHz))
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

func (cfg Config) params() platform.I2CParams {
	freq := cfg.FrequencyHz
	if freq == 0 {
		freq = DefaultFrequencyHz
	}
	return platform.I2CParams{
		SDA:        cfg.SDA,
		SCL:        cfg.SCL,
		ClockHz:    freq,
		PullUps:    cfg.PullUps,
		DevicePath: cfg.DevicePath,
	}
}
