package config

import (
	"os"

	"github.com/Velocidex/yaml/v2"
	errors "github.com/pkg/errors"
)

// Load a config file on top of the defaults. Missing sections keep
// their default values.
func LoadConfig(filename string) (*Config, error) {
	result := GetDefaultConfig()

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	err = yaml.UnmarshalStrict(data, result)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return result, ValidateConfig(result)
}

func ValidateConfig(config_obj *Config) error {
	if config_obj.Frontend == nil {
		return errors.New("Missing Frontend section")
	}

	if config_obj.Frontend.BatchMaxRows == 0 &&
		config_obj.Frontend.BatchMaxBytes == 0 {
		return errors.New(
			"At least one of batch_max_rows, batch_max_bytes must be set")
	}

	switch config_obj.Datastore.Implementation {
	case "Memory", "FileBaseDataStore":
	default:
		return errors.Errorf("Unsupported datastore %v",
			config_obj.Datastore.Implementation)
	}

	return nil
}
