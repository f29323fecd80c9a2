// loader.go implements the configuration loading lifecycle.
//
// The loading sequence is:
//  1. Enforce UTC timezone to prevent drift bugs in month-key computation.
//  2. Load .env file via godotenv (non-fatal if absent).
//  3. Use envconfig to process struct tags and populate the Config struct.
//  4. Validate the struct using go-playground/validator.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ConfigError is a diagnostic error type returned by LoadConfig to aid debugging.
type ConfigError struct {
	Stage   string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Stage, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Stage, e.Message)
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// LoadConfig resolves and validates the process configuration.
// It is called exactly once, from main, before any component is constructed.
func LoadConfig() (*Config, error) {
	// Month keys and period timestamps are always computed in UTC; pin the
	// process to UTC so local-zone defaults cannot leak in.
	time.Local = time.UTC

	// .env is a local-development convenience only.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{
			Stage:   "envconfig",
			Message: "failed to populate configuration from environment",
			Err:     err,
		}
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// validateConfig runs struct-tag validation and the cross-field checks that
// tags cannot express.
func validateConfig(cfg *Config) error {
	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return &ConfigError{
			Stage:   "validate",
			Message: "configuration failed validation",
			Err:     err,
		}
	}

	// A deployment with no paid price at all cannot serve checkout; catch
	// it at startup rather than at the first request.
	if cfg.Billing.PriceProMonth == "" && cfg.Billing.PriceProYear == "" &&
		cfg.Billing.PriceFamilyMonth == "" && cfg.Billing.PriceFamilyYear == "" {
		return &ConfigError{
			Stage:   "validate",
			Message: "no Stripe price IDs configured; set at least one STRIPE_PRICE_* variable",
		}
	}

	return nil
}
