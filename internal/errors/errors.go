// Package errors holds the sentinel errors shared by the history engine,
// its stores and the journal, plus small wrapping helpers.
//
// Callers compare with Is (or the category helpers below); stores and
// parsers wrap the sentinels with context using Wrap/Wrapf.
package errors

import (
	"errors"
	"fmt"
)

// ============================================================================
// Sentinel errors
// ============================================================================

var (
	// Lookup errors
	ErrNotFound = errors.New("not found")

	// Input errors
	ErrMalformedPayload = errors.New("malformed payload")
	ErrInvalidInterval  = errors.New("invalid interval")
	ErrUnknownFamily    = errors.New("unknown metric family")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingField  = errors.New("missing required field")

	// Persistence errors
	ErrStoreFailure   = errors.New("store failure")
	ErrStoreClosed    = errors.New("store is closed")
	ErrJournalCorrupt = errors.New("journal record corrupt")
	ErrJournalClosed  = errors.New("journal is closed")
)

// Is is a convenience wrapper for errors.Is
var Is = errors.Is

// As is a convenience wrapper for errors.As
var As = errors.As

// Join is a convenience wrapper for errors.Join
var Join = errors.Join

// New is a convenience wrapper for errors.New
var New = errors.New

// ============================================================================
// Category helpers
// ============================================================================

// IsNotFound returns true if err is a not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsMalformed returns true if err reports unusable input data.
func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformedPayload) ||
		errors.Is(err, ErrInvalidInterval) ||
		errors.Is(err, ErrUnknownFamily)
}

// IsValidation returns true if err is a configuration validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrMissingField)
}

// IsPersistence returns true if err came from a store or the journal.
func IsPersistence(err error) bool {
	return errors.Is(err, ErrStoreFailure) ||
		errors.Is(err, ErrStoreClosed) ||
		errors.Is(err, ErrJournalCorrupt) ||
		errors.Is(err, ErrJournalClosed)
}

// ============================================================================
// Error wrapping utilities
// ============================================================================

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// ============================================================================
// Error constructors with context
// ============================================================================

// NewNotFound creates a not-found error for a (family, entity) record.
func NewNotFound(family, entity string) error {
	return fmt.Errorf("%s record '%s': %w", family, entity, ErrNotFound)
}

// NewMalformed creates a malformed-payload error naming the offending field.
func NewMalformed(field string, value interface{}, reason string) error {
	return fmt.Errorf("field %s '%v': %s: %w", field, value, reason, ErrMalformedPayload)
}

// NewStoreFailure wraps a backend error as a store failure for one entity.
func NewStoreFailure(op, family, entity string, err error) error {
	return fmt.Errorf("%s %s/%s: %w: %v", op, family, entity, ErrStoreFailure, err)
}

// NewValidation creates a validation error with context.
func NewValidation(field, reason string) error {
	return fmt.Errorf("invalid %s: %s: %w", field, reason, ErrInvalidConfig)
}

// NewMissingField creates a missing field error.
func NewMissingField(field string) error {
	return fmt.Errorf("%s: %w", field, ErrMissingField)
}

// ============================================================================
// Validation Errors Collection
// ============================================================================

// ValidationErrors collects multiple validation errors.
type ValidationErrors struct {
	Errors []error
}

// NewValidationErrors creates a new ValidationErrors collector.
func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{}
}

// Add adds an error to the collection.
func (v *ValidationErrors) Add(err error) {
	if err != nil {
		v.Errors = append(v.Errors, err)
	}
}

// AddField adds a field validation error.
func (v *ValidationErrors) AddField(field, reason string) {
	v.Errors = append(v.Errors, NewValidation(field, reason))
}

// AddMissing adds a missing field error.
func (v *ValidationErrors) AddMissing(field string) {
	v.Errors = append(v.Errors, NewMissingField(field))
}

// HasErrors returns true if there are any errors.
func (v *ValidationErrors) HasErrors() bool {
	return len(v.Errors) > 0
}

// Error implements the error interface.
func (v *ValidationErrors) Error() string {
	if len(v.Errors) == 0 {
		return ""
	}
	if len(v.Errors) == 1 {
		return v.Errors[0].Error()
	}

	msg := fmt.Sprintf("validation failed with %d errors:", len(v.Errors))
	for _, err := range v.Errors {
		msg += "\n  - " + err.Error()
	}
	return msg
}

// Err returns nil if no errors, otherwise returns the ValidationErrors.
func (v *ValidationErrors) Err() error {
	if len(v.Errors) == 0 {
		return nil
	}
	return v
}

// Unwrap returns the collected errors for errors.Is/As support.
func (v *ValidationErrors) Unwrap() []error {
	return v.Errors
}
