package board

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	goutils "go.viam.com/utils"

	"go.viam.com/hal/bus"
	"go.viam.com/hal/config"
	"go.viam.com/hal/i2c"
	"go.viam.com/hal/pin"
	"go.viam.com/hal/spi"
	"go.viam.com/hal/uart"
	"go.viam.com/hal/watchdog"
)

// A Config describes the configuration of a board and all of its connected parts.
type Config struct {
	I2Cs     []DeviceConfig      `json:"i2cs,omitempty"`
	SPIs     []DeviceConfig      `json:"spis,omitempty"`
	UARTs    []DeviceConfig      `json:"uarts,omitempty"`
	Pins     []DeviceConfig      `json:"pins,omitempty"`
	Watchdog config.AttributeMap `json:"watchdog,omitempty"`
}

// DeviceConfig names one peripheral. ID is its bus, port or pin number; Attributes are decoded
// into the configuration of its kind.
type DeviceConfig struct {
	Name       string              `json:"name"`
	ID         int                 `json:"id"`
	Attributes config.AttributeMap `json:"attributes,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (conf *DeviceConfig) Validate(path string) error {
	if conf.Name == "" {
		return goutils.NewConfigValidationFieldRequiredError(path, "name")
	}
	if conf.ID < 0 {
		return goutils.NewConfigValidationError(path, errors.Errorf("invalid id %d", conf.ID))
	}
	return nil
}

// Read reads and validates a board config from a JSON file.
func Read(filePath string) (*Config, error) {
	conf, err := config.Read[Config](filePath)
	if err != nil {
		return nil, err
	}
	return &conf, nil
}

// Validate ensures all parts of the config are valid.
func (conf *Config) Validate(path string) error {
	if err := validateDevices[i2c.Config](path, "i2cs", conf.I2Cs); err != nil {
		return err
	}
	if err := validateDevices[spi.Config](path, "spis", conf.SPIs); err != nil {
		return err
	}
	if err := validateDevices[uart.Config](path, "uarts", conf.UARTs); err != nil {
		return err
	}
	if err := validateDevices[pin.Config](path, "pins", conf.Pins); err != nil {
		return err
	}
	if conf.Watchdog != nil {
		if _, err := decode[watchdog.Config](joinPath(path, "watchdog"), conf.Watchdog); err != nil {
			return err
		}
	}
	return nil
}

func validateDevices[C bus.Config](path, field string, devices []DeviceConfig) error {
	for idx, dev := range devices {
		devPath := fmt.Sprintf("%s.%d", joinPath(path, field), idx)
		if err := dev.Validate(devPath); err != nil {
			return err
		}
		if _, err := decode[C](joinPath(devPath, "attributes"), dev.Attributes); err != nil {
			return err
		}
	}
	names := lo.Map(devices, func(dev DeviceConfig, _ int) string { return dev.Name })
	if dups := lo.FindDuplicates(names); len(dups) != 0 {
		return goutils.NewConfigValidationError(joinPath(path, field), errors.Errorf("duplicate names %v", dups))
	}
	ids := lo.Map(devices, func(dev DeviceConfig, _ int) int { return dev.ID })
	if dups := lo.FindDuplicates(ids); len(dups) != 0 {
		return goutils.NewConfigValidationError(joinPath(path, field), errors.Errorf("duplicate ids %v", dups))
	}
	return nil
}

// decode converts attributes into the configuration of one kind and validates it.
func decode[C bus.Config](path string, attributes config.AttributeMap) (C, error) {
	if attributes == nil {
		attributes = config.AttributeMap{}
	}
	conf, err := config.TransformAttributeMap[C](attributes)
	if err != nil {
		return conf, goutils.NewConfigValidationError(path, err)
	}
	if err := conf.Validate(path); err != nil {
		return conf, err
	}
	return conf, nil
}

func joinPath(path, field string) string {
	if path == "" {
		return field
	}
	return path + "." + field
}
