// Package config provides YAML-based configuration loading with environment variable expansion.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Validator is an interface for configuration validation.
type Validator interface {
	Validate() error
}

// Load loads configuration from a YAML file with environment variable expansion.
func Load[T any](filename string, target *T) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", filename, err)
	}
	return Parse(filename, data, target)
}

// LoadOptional loads filename when it exists and falls back to the fallback
// document otherwise. It reports whether the file was found.
func LoadOptional[T any](filename string, fallback []byte, target *T) (bool, error) {
	data, err := os.ReadFile(filename)
	switch {
	case err == nil:
		return true, Parse(filename, data, target)
	case errors.Is(err, os.ErrNotExist) && fallback != nil:
		return false, Parse("embedded defaults", fallback, target)
	default:
		return false, fmt.Errorf("failed to read config file %s: %w", filename, err)
	}
}

// Parse expands environment variables in data, decodes it into target and
// runs its Validator, if any. name is used in error messages.
func Parse[T any](name string, data []byte, target *T) error {
	expandedData := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expandedData), target); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", name, err)
	}

	if validator, ok := any(target).(Validator); ok {
		if err := validator.Validate(); err != nil {
			return fmt.Errorf("config validation failed: %w", err)
		}
	}

	return nil
}
