package montecarlo

import (
	"errors"
	"fmt"
)

var (
	ErrInsufficientData     = errors.New("insufficient data")
	ErrInvalidPrice         = errors.New("invalid price")
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// InsufficientDataError is returned when a series is too short to yield a return.
type InsufficientDataError struct {
	Got  int
	Need int
}

// Error implements the error interface
func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data: need at least %d price points, got %d", e.Need, e.Got)
}

// Is matches ErrInsufficientData
func (e *InsufficientDataError) Is(target error) bool {
	return target == ErrInsufficientData
}

// InvalidPriceError is returned for a zero, negative or non-finite price.
type InvalidPriceError struct {
	Field string
	Value float64
}

// Error implements the error interface
func (e *InvalidPriceError) Error() string {
	return fmt.Sprintf("invalid price for field '%s': must be > 0 (value: %v)", e.Field, e.Value)
}

// Is matches ErrInvalidPrice
func (e *InvalidPriceError) Is(target error) bool {
	return target == ErrInvalidPrice
}

// InvalidConfigurationError is returned when a simulation parameter is out of range.
type InvalidConfigurationError struct {
	Field      string
	Value      interface{}
	Constraint string
}

// Error implements the error interface
func (e *InvalidConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration for field '%s': %s (value: %v)", e.Field, e.Constraint, e.Value)
}

// Is matches ErrInvalidConfiguration
func (e *InvalidConfigurationError) Is(target error) bool {
	return target == ErrInvalidConfiguration
}

// IsValidationError reports whether err is one of the caller-input failures above.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInsufficientData) ||
		errors.Is(err, ErrInvalidPrice) ||
		errors.Is(err, ErrInvalidConfiguration)
}

// Details extracts the offending field and the violated constraint.
func Details(err error) (field, constraint string, ok bool) {
	var insufficient *InsufficientDataError
	var price *InvalidPriceError
	var cfg *InvalidConfigurationError

	switch {
	case errors.As(err, &insufficient):
		return "series", fmt.Sprintf("at least %d price points", insufficient.Need), true
	case errors.As(err, &price):
		return price.Field, "must be > 0", true
	case errors.As(err, &cfg):
		return cfg.Field, cfg.Constraint, true
	}
	return "", "", false
}
