package bindings

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation matches every argument and command validation failure.
	ErrValidation = errors.New("validation error")
	// ErrUnknownChannel is returned for channels outside the capability set.
	ErrUnknownChannel = errors.New("unknown channel")
)

// ValidationError carries a human-readable message and matches ErrValidation.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalid(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

func unknownCommand(cmd any) error {
	return invalid("Unknown command: %v", cmd)
}
