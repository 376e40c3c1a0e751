package pin

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"go.viam.com/hal/platform"
)

// Config is the configuration of a GPIO pin.
type Config struct {
	// Direction is "input" or "output"; empty selects input.
	Direction string `json:"direction,omitempty"`
	// Pull is "none", "up" or "down"; empty selects none.
	Pull string `json:"pull,omitempty"`
	// Trigger is the interrupt trigger set when the pin is configured: "none", "rising",
	// "falling", "both", "high" or "low".
	Trigger   string `json:"trigger,omitempty"`
	TimeoutMs int    `json:"timeout_ms,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (cfg Config) Validate(path string) error {
	if _, err := cfg.params(); err != nil {
		return goutils.NewConfigValidationError(path, err)
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

func (cfg Config) params() (platform.GPIOParams, error) {
	var params platform.GPIOParams
	switch strings.ToLower(cfg.Direction) {
	case "", "input", "in":
		params.Direction = platform.DirectionInput
	case "output", "out":
		params.Direction = platform.DirectionOutput
	default:
		return params, errors.Errorf("invalid direction %q", cfg.Direction)
	}
	pull, err := ParsePull(cfg.Pull)
	if err != nil {
		return params, err
	}
	trigger, err := ParseTrigger(cfg.Trigger)
	if err != nil {
		return params, err
	}
	params.Pull, params.Trigger = pull, trigger
	return params, nil
}

// ParsePull parses a pull setting name.
func ParsePull(s string) (platform.Pull, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return platform.PullNone, nil
	case "up":
		return platform.PullUp, nil
	case "down":
		return platform.PullDown, nil
	default:
		return platform.PullNone, errors.Errorf("invalid pull %q", s)
	}
}

// ParseTrigger parses an interrupt trigger name.
func ParseTrigger(s string) (platform.Trigger, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return platform.TriggerNone, nil
	case "rising":
		return platform.TriggerRisingEdge, nil
	case "falling":
		return platform.TriggerFallingEdge, nil
	case "both":
		return platform.TriggerBothEdges, nil
	case "high":
		return platform.TriggerHighLevel, nil
	case "low":
		return platform.TriggerLowLevel, nil
	default:
		return platform.TriggerNone, errors.Errorf("invalid trigger %q", s)
	}
}
