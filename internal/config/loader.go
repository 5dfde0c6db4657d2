// loader.go implements the configuration loading lifecycle for the worker.
//
// The loading sequence is:
//  1. Enforce UTC timezone to prevent drift bugs.
//  2. Load .env file via godotenv (non-fatal if absent).
//  3. Use envconfig to process struct tags and populate the Config struct.
//  4. Validate the struct using go-playground/validator.
package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ConfigErrorType categorizes configuration loading failures.
type ConfigErrorType string

const (
	ErrTypeProcess    ConfigErrorType = "process"
	ErrTypeValidation ConfigErrorType = "validation"
)

// ConfigError is a diagnostic error type returned by Load to aid debugging.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Load loads and validates the worker configuration from the environment.
//
// godotenv.Load silently succeeds if no .env file exists in the working
// directory, and it does NOT override existing environment variables, so the
// Lambda environment always wins.
func Load() (*Config, error) {
	forceUTC()

	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrTypeProcess,
			Message: "failed to process environment configuration",
			Err:     err,
		}
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// validate runs struct-tag validation over the loaded configuration and, for
// non-local environments, enforces the credentials that stubs would otherwise
// paper over.
func validate(cfg *Config) error {
	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return &ConfigError{
			Type:    ErrTypeValidation,
			Message: "configuration validation failed",
			Err:     err,
		}
	}

	if !cfg.IsLocal() {
		if cfg.Generation.APIKey.Unmask() == "" {
			return &ConfigError{
				Type:    ErrTypeValidation,
				Message: "PERPLEXITY_API_KEY is required outside local mode",
			}
		}
		if cfg.Email.APIKey.Unmask() == "" {
			return &ConfigError{
				Type:    ErrTypeValidation,
				Message: "SENDGRID_API_KEY is required outside local mode",
			}
		}
	}

	return nil
}
