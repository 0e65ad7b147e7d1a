package pipeline

import (
	"errors"
	"strings"

	"github.com/hyperengineering/resonance/internal/validation"
)

var (
	ErrNoInput         = errors.New("no text, image or voice input")
	ErrSessionNotFound = errors.New("session not found or already rated")
	ErrInvalidRequest  = errors.New("invalid request")
)

// RequestError carries the field errors of a rejected request.
// It matches ErrInvalidRequest under errors.Is.
type RequestError struct {
	Errors []validation.ValidationError
}

func (e *RequestError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return ErrInvalidRequest.Error() + ": " + strings.Join(parts, "; ")
}

func (e *RequestError) Unwrap() error {
	return ErrInvalidRequest
}
