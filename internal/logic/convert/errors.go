package convert

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrInvalidConfiguration is matched by every configuration failure.
	ErrInvalidConfiguration = errors.New("invalid configuration")
	// ErrDimension is returned for input or output images with zero width
	// or height.
	ErrDimension = errors.New("invalid image dimensions")
)

// FieldError names the configuration field that failed validation.
type FieldError struct {
	Field  string
	Value  interface{}
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%v: %s %s, got %v", ErrInvalidConfiguration, e.Field, e.Reason, e.Value)
}

// Unwrap lets errors.Is match ErrInvalidConfiguration.
func (e *FieldError) Unwrap() error {
	return ErrInvalidConfiguration
}

func invalidField(field string, value interface{}, reason string) error {
	return &FieldError{Field: field, Value: value, Reason: reason}
}

// NewDimensionError wraps ErrDimension with the offending image and size.
func NewDimensionError(what string, width, height int) error {
	return errors.Wrapf(ErrDimension, "%s is %dx%d, must be at least 1x1", what, width, height)
}
