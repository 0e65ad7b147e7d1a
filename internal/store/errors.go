package store

import (
	"errors"
	"strings"

	"github.com/hyperengineering/resonance/internal/validation"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidRecord = errors.New("invalid session record")
)

// RecordError carries the field errors that made a record unacceptable.
// It matches ErrInvalidRecord under errors.Is.
type RecordError struct {
	Errors []validation.ValidationError
}

func (e *RecordError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return ErrInvalidRecord.Error() + ": " + strings.Join(parts, "; ")
}

func (e *RecordError) Unwrap() error {
	return ErrInvalidRecord
}
