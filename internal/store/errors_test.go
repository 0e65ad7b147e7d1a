package store

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/hyperengineering/resonance/internal/validation"
)

func TestSentinelErrors_WrappedIdentity(t *testing.T) {
	sentinels := []struct {
		name string
		err  error
	}{
		{"ErrNotFound", ErrNotFound},
		{"ErrInvalidRecord", ErrInvalidRecord},
	}

	for _, s := range sentinels {
		t.Run(s.name+"_wrapped", func(t *testing.T) {
			wrapped := fmt.Errorf("operation failed: %w", s.err)
			if !errors.Is(wrapped, s.err) {
				t.Errorf("errors.Is should return true for wrapped %s", s.name)
			}
		})
	}
}

func TestRecordError_MatchesSentinel(t *testing.T) {
	err := error(&RecordError{Errors: []validation.ValidationError{
		{Field: "rating", Message: "must be between 1 and 5"},
		{Field: "final_profile.emotion", Message: "is required"},
	}})

	if !errors.Is(err, ErrInvalidRecord) {
		t.Error("RecordError should match ErrInvalidRecord")
	}

	var re *RecordError
	if !errors.As(fmt.Errorf("append: %w", err), &re) || len(re.Errors) != 2 {
		t.Fatalf("errors.As should recover both field errors, got %v", re)
	}
	if !strings.Contains(err.Error(), "rating: must be between 1 and 5") {
		t.Errorf("Error() = %q, want field detail", err.Error())
	}
}
