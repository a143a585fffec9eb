package model

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound indicates an unknown service id or image path.
	ErrNotFound = errors.New("not found")
	// ErrNoImages indicates an add request without any image file.
	ErrNoImages = errors.New("at least one image is required")
	// ErrStorage indicates an I/O failure reading or writing the catalog or an image.
	ErrStorage = errors.New("storage error")
	// ErrNotInitialized indicates the catalog document does not exist yet.
	ErrNotInitialized = errors.New("catalog not initialized")
)

// FieldError describes a validation failure on one input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries every field-level failure of one request.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Add records a field error when fe is non-nil.
func (e *ValidationError) Add(fe *FieldError) {
	if fe != nil {
		e.Fields = append(e.Fields, *fe)
	}
}

// OrNil returns e when it holds at least one field error, nil otherwise.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

// StorageError wraps an underlying I/O failure so that it matches ErrStorage.
func StorageError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}
