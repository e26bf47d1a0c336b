package errors

import (
	"fmt"
	"strings"
)

var ErrNotFound = fmt.Errorf("not found")
var ErrInvalidQuery = fmt.Errorf("invalid query")
var ErrAlreadyExists = fmt.Errorf("already exists")
var ErrConflict = fmt.Errorf("conflict")
var ErrValidation = fmt.Errorf("validation failed")
var ErrInternal = fmt.Errorf("internal error")

type providerError struct {
	msg    string
	target error
}

func (pe providerError) Error() string        { return pe.msg }
func (pe providerError) Is(target error) bool { return target == pe.target }

func NewNotFoundError(msg string) error {
	return &providerError{msg: msg, target: ErrNotFound}
}

func NewInvalidQueryError(msg string) error {
	return &providerError{msg: msg, target: ErrInvalidQuery}
}

func NewAlreadyExistsError(msg string) error {
	return &providerError{msg: msg, target: ErrAlreadyExists}
}

// NewConflictError reports a state conflict, such as a delete guard
// rejection or a locked datastream schema.
func NewConflictError(msg string) error {
	return &providerError{msg: msg, target: ErrConflict}
}

func NewInternalError(msg string) error {
	return &providerError{msg: msg, target: ErrInternal}
}

// ValidationError aggregates the individual constraint violations
// reported by a schema validator.
type ValidationError struct {
	Violations []string
}

func NewValidationError(violations ...string) error {
	return &ValidationError{Violations: violations}
}

func (ve *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", strings.Join(ve.Violations, "; "))
}

func (ve *ValidationError) Is(target error) bool { return target == ErrValidation }
