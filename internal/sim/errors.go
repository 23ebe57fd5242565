package sim

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig is wrapped by every ConfigError.
	ErrInvalidConfig = errors.New("invalid simulation config")

	// ErrNonFinite is returned when a density becomes NaN or infinite.
	ErrNonFinite = errors.New("non-finite density")
)

// ConfigError identifies the configuration parameter that failed validation.
type ConfigError struct {
	Param  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrInvalidConfig, e.Param, e.Reason)
}

// Unwrap lets callers match the error with errors.Is(err, ErrInvalidConfig).
func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfig
}

func configErr(param, format string, args ...any) error {
	return &ConfigError{Param: param, Reason: fmt.Sprintf(format, args...)}
}
