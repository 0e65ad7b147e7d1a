package validation

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/hyperengineering/resonance/internal/types"
)

// Field limits for session data.
const (
	MaxPromptLength  = 4000
	MaxNoteLength    = 2000
	MaxEmotionLength = 64
	MaxEmotionTags   = 3
	MaxTextInput     = 10000
	MaxVariations    = 2
)

// PreferredVersions are the labels a rating may name when A/B variants were offered.
var PreferredVersions = []string{"A", "B"}

// ValidationError represents a single field validation failure.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Collector accumulates validation errors without failing on first.
type Collector struct {
	errors []ValidationError
}

// Add appends a validation error to the collector if non-nil.
func (c *Collector) Add(err *ValidationError) {
	if err != nil {
		c.errors = append(c.errors, *err)
	}
}

// HasErrors returns true if the collector has accumulated any errors.
func (c *Collector) HasErrors() bool {
	return len(c.errors) > 0
}

// Errors returns all accumulated validation errors.
func (c *Collector) Errors() []ValidationError {
	return c.errors
}

// ValidateUTF8 returns an error if the value is not valid UTF-8.
func ValidateUTF8(field, value string) *ValidationError {
	if !utf8.ValidString(value) {
		return &ValidationError{
			Field:   field,
			Message: "must be valid UTF-8",
		}
	}
	return nil
}

// ValidateNoNullBytes returns an error if the value contains null bytes.
func ValidateNoNullBytes(field, value string) *ValidationError {
	if strings.Contains(value, "\x00") {
		return &ValidationError{
			Field:   field,
			Message: "must not contain null bytes",
		}
	}
	return nil
}

// ValidateMaxLength returns an error if the value exceeds max runes.
func ValidateMaxLength(field, value string, max int) *ValidationError {
	if utf8.RuneCountInString(value) > max {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("exceeds maximum length of %d characters", max),
		}
	}
	return nil
}

// ValidateULID returns an error if the value is not a valid ULID format.
// ULIDs are 26 characters using Crockford Base32 (excludes I, L, O, U).
func ValidateULID(field, value string) *ValidationError {
	if len(value) != 26 {
		return &ValidationError{
			Field:   field,
			Message: "must be a valid ULID (26 characters)",
		}
	}

	// Crockford Base32 alphabet: 0123456789ABCDEFGHJKMNPQRSTVWXYZ
	// Excludes: I, L, O, U (to avoid confusion)
	const crockfordBase32 = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"
	for _, r := range value {
		upper := strings.ToUpper(string(r))
		if !strings.Contains(crockfordBase32, upper) {
			return &ValidationError{
				Field:   field,
				Message: "must be a valid ULID (invalid character)",
			}
		}
	}
	return nil
}

// ValidateRequired returns an error if the value is empty or whitespace-only.
func ValidateRequired(field, value string) *ValidationError {
	if strings.TrimSpace(value) == "" {
		return &ValidationError{
			Field:   field,
			Message: "is required",
		}
	}
	return nil
}

// ValidateEnum returns an error if the value is not in the allowed list.
func ValidateEnum(field, value string, allowed []string) *ValidationError {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return &ValidationError{
		Field:   field,
		Message: fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")),
	}
}

// ValidateRange returns an error if the value is outside [min, max].
func ValidateRange(field string, value, min, max float64) *ValidationError {
	if value < min || value > max {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("must be between %.1f and %.1f", min, max),
		}
	}
	return nil
}

// ValidateIntRange returns an error if the integer value is outside [min, max].
func ValidateIntRange(field string, value, min, max int) *ValidationError {
	if value < min || value > max {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("must be between %d and %d", min, max),
		}
	}
	return nil
}

// ValidateProfile checks the emotion label, tag count and slider bounds of a profile.
// prefix is prepended to field names, e.g. "final_profile".
func ValidateProfile(prefix string, p types.Profile) []ValidationError {
	var c Collector
	c.Add(ValidateRequired(prefix+".emotion", p.Emotion))
	c.Add(ValidateMaxLength(prefix+".emotion", p.Emotion, MaxEmotionLength))
	if len(p.Emotions) > MaxEmotionTags {
		c.Add(&ValidationError{
			Field:   prefix + ".emotions",
			Message: fmt.Sprintf("must contain at most %d tags", MaxEmotionTags),
		})
	}
	for _, d := range types.Dimensions {
		c.Add(ValidateIntRange(prefix+"."+string(d), p.Get(d), types.SliderMin, types.SliderMax))
	}
	for i, o := range p.Overrides {
		c.Add(ValidateEnum(fmt.Sprintf("%s.overrides[%d]", prefix, i), o, dimensionNames()))
	}
	return c.Errors()
}

// ValidateSessionRecord checks every field shape of a session record before it is appended.
func ValidateSessionRecord(rec types.SessionRecord) []ValidationError {
	var c Collector
	c.Add(ValidateIntRange("rating", rec.Rating, types.RatingMin, types.RatingMax))
	for _, e := range ValidateProfile("ai_profile", rec.AIProfile) {
		c.Add(&e)
	}
	for _, e := range ValidateProfile("final_profile", rec.FinalProfile) {
		c.Add(&e)
	}
	c.Add(ValidateUTF8("music_prompt", rec.MusicPrompt))
	c.Add(ValidateNoNullBytes("music_prompt", rec.MusicPrompt))
	c.Add(ValidateMaxLength("music_prompt", rec.MusicPrompt, MaxPromptLength))
	if rec.PreferredVersion != "" {
		c.Add(ValidateEnum("preferred_version", rec.PreferredVersion, PreferredVersions))
	}
	if p := rec.GenerationParams; p != nil {
		c.Add(ValidateRange("generation_params.temperature", p.Temperature, 0, 2))
		c.Add(ValidateRange("generation_params.guidance_scale", p.GuidanceScale, 0, 20))
		c.Add(ValidateIntRange("generation_params.max_new_tokens", p.MaxNewTokens, 1, 3000))
	}
	c.Add(ValidateMaxLength("user_note", rec.UserNote, MaxNoteLength))
	c.Add(ValidateNoNullBytes("user_note", rec.UserNote))
	return c.Errors()
}

// ValidateFeedbackRequest checks a rating submission.
func ValidateFeedbackRequest(req types.FeedbackRequest) []ValidationError {
	var c Collector
	c.Add(ValidateRequired("session_id", req.SessionID))
	if req.SessionID != "" {
		c.Add(ValidateULID("session_id", req.SessionID))
	}
	c.Add(ValidateIntRange("rating", req.Rating, types.RatingMin, types.RatingMax))
	if req.PreferredVersion != "" {
		c.Add(ValidateEnum("preferred_version", req.PreferredVersion, PreferredVersions))
	}
	c.Add(ValidateMaxLength("note", req.Note, MaxNoteLength))
	c.Add(ValidateNoNullBytes("note", req.Note))
	return c.Errors()
}

// ValidateGenerateRequest checks the optional fields of a generation request.
// Presence of at least one input is checked by the pipeline, not here.
func ValidateGenerateRequest(req types.GenerateRequest) []ValidationError {
	var c Collector
	c.Add(ValidateUTF8("text", req.Text))
	c.Add(ValidateMaxLength("text", req.Text, MaxTextInput))
	if req.Variations != 0 {
		c.Add(ValidateIntRange("variations", req.Variations, 1, MaxVariations))
	}
	for _, d := range types.Dimensions {
		if v, ok := req.Overrides.Get(d); ok {
			c.Add(ValidateIntRange("overrides."+string(d), v, types.SliderMin, types.SliderMax))
		}
	}
	if p := req.GenerationParams; p != nil {
		c.Add(ValidateRange("generation_params.temperature", p.Temperature, 0, 2))
		c.Add(ValidateRange("generation_params.guidance_scale", p.GuidanceScale, 0, 20))
		c.Add(ValidateIntRange("generation_params.max_new_tokens", p.MaxNewTokens, 1, 3000))
	}
	return c.Errors()
}

func dimensionNames() []string {
	names := make([]string, len(types.Dimensions))
	for i, d := range types.Dimensions {
		names[i] = string(d)
	}
	return names
}
