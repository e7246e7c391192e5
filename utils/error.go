package utils

import (
	"errors"
	"fmt"
)

var (
	ErrorRecordNotFound = errors.New("record not found")
	ErrorUnauthorized   = errors.New("unauthorized")
	ErrorForbidden      = errors.New("forbidden")
	ErrorConflict       = errors.New("conflict")
)

// ValidationError is a business-rule failure the caller can correct.
// Handlers render it as 400 with the optional field map.
type ValidationError struct {
	Message string
	Fields  map[string]string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func NewValidationError(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

func NewFieldValidationError(message string, fields map[string]string) error {
	return &ValidationError{Message: message, Fields: fields}
}

func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

type conflictError struct {
	msg string
}

func (e *conflictError) Error() string { return e.msg }

func (e *conflictError) Unwrap() error { return ErrorConflict }

// ConflictError reports a state conflict; errors.Is(err, ErrorConflict) holds.
func ConflictError(format string, args ...any) error {
	return &conflictError{msg: fmt.Sprintf(format, args...)}
}

func ErrorPanic(err error) {
	if err != nil {
		panic(err)
	}
}
