package validation

import (
	"strings"
	"testing"

	"github.com/hyperengineering/resonance/internal/types"
)

// validRecord returns a session record that passes every check.
func validRecord() types.SessionRecord {
	return types.SessionRecord{
		Rating:      4,
		WouldReplay: true,
		AIProfile: types.Profile{
			Emotion:  "calm",
			Emotions: []string{"calm", "hope"},
			Sliders:  types.Sliders{Energy: 20, Style: 30, Warmth: 40, Arc: 10},
		},
		FinalProfile: types.Profile{
			Emotion:   "calm",
			Sliders:   types.Sliders{Energy: 35, Style: 30, Warmth: 40, Arc: 10},
			Overrides: []string{"energy"},
		},
		MusicPrompt: "A slow ambient piece with soft pads.",
	}
}

func hasField(errs []ValidationError, field string) bool {
	for _, e := range errs {
		if e.Field == field {
			return true
		}
	}
	return false
}

// --- Primitive validators ---

func TestValidateUTF8(t *testing.T) {
	if err := ValidateUTF8("field", "Hello, 世界"); err != nil {
		t.Errorf("ValidateUTF8(valid) = %v, want nil", err)
	}
	err := ValidateUTF8("content", string([]byte{0xff, 0xfe}))
	if err == nil || err.Field != "content" {
		t.Errorf("ValidateUTF8(invalid) = %v, want error on content", err)
	}
}

func TestValidateNoNullBytes(t *testing.T) {
	if err := ValidateNoNullBytes("f", "clean"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateNoNullBytes("f", "a\x00b"); err == nil {
		t.Error("expected error for null byte")
	}
}

func TestValidateMaxLength_CountsRunes(t *testing.T) {
	if err := ValidateMaxLength("f", "世界世", 3); err != nil {
		t.Errorf("3 runes at limit 3 should pass, got %v", err)
	}
	if err := ValidateMaxLength("f", "世界世界", 3); err == nil {
		t.Error("4 runes at limit 3 should fail")
	}
}

func TestValidateULID(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{"valid", "01ARZ3NDEKTSV4RRFFQ69G5FAV", false},
		{"lowercase valid", "01arz3ndektsv4rrffq69g5fav", false},
		{"too short", "01ARZ3", true},
		{"bad char", "01ARZ3NDEKTSV4RRFFQ69G5FAU", true},
		{"empty", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateULID("id", tt.value)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateULID(%q) = %v, wantErr %v", tt.value, err, tt.wantErr)
			}
		})
	}
}

func TestValidateRequired(t *testing.T) {
	if err := ValidateRequired("f", "x"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateRequired("f", "   \t"); err == nil {
		t.Error("whitespace-only should fail")
	}
}

func TestValidateEnum(t *testing.T) {
	if err := ValidateEnum("v", "A", PreferredVersions); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	err := ValidateEnum("v", "a", PreferredVersions)
	if err == nil {
		t.Fatal("enum check should be case-sensitive")
	}
	if !strings.Contains(err.Message, "A, B") {
		t.Errorf("message should list allowed values, got %q", err.Message)
	}
}

func TestValidateIntRange(t *testing.T) {
	tests := []struct {
		value   int
		wantErr bool
	}{
		{0, true}, {1, false}, {5, false}, {6, true},
	}
	for _, tt := range tests {
		err := ValidateIntRange("rating", tt.value, 1, 5)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateIntRange(%d) = %v, wantErr %v", tt.value, err, tt.wantErr)
		}
	}
}

func TestCollector(t *testing.T) {
	c := &Collector{}
	if c.HasErrors() {
		t.Fatal("empty collector should report no errors")
	}
	c.Add(nil)
	c.Add(&ValidationError{Field: "f1", Message: "m1"})
	c.Add(nil)
	if !c.HasErrors() || len(c.Errors()) != 1 {
		t.Errorf("Errors() = %v, want exactly one", c.Errors())
	}
}

// --- Session record validation ---

func TestValidateSessionRecord_Valid(t *testing.T) {
	if errs := ValidateSessionRecord(validRecord()); len(errs) != 0 {
		t.Errorf("ValidateSessionRecord() = %v, want none", errs)
	}
}

func TestValidateSessionRecord_RatingBounds(t *testing.T) {
	for _, rating := range []int{0, 6, -1} {
		rec := validRecord()
		rec.Rating = rating
		if !hasField(ValidateSessionRecord(rec), "rating") {
			t.Errorf("rating %d should be rejected", rating)
		}
	}
}

func TestValidateSessionRecord_SliderBounds(t *testing.T) {
	rec := validRecord()
	rec.AIProfile.Energy = 101
	rec.FinalProfile.Arc = -1

	errs := ValidateSessionRecord(rec)
	if !hasField(errs, "ai_profile.energy") {
		t.Errorf("expected ai_profile.energy error, got %v", errs)
	}
	if !hasField(errs, "final_profile.arc") {
		t.Errorf("expected final_profile.arc error, got %v", errs)
	}
}

func TestValidateSessionRecord_TooManyEmotionTags(t *testing.T) {
	rec := validRecord()
	rec.AIProfile.Emotions = []string{"a", "b", "c", "d"}
	if !hasField(ValidateSessionRecord(rec), "ai_profile.emotions") {
		t.Error("four emotion tags should be rejected")
	}
}

func TestValidateSessionRecord_UnknownOverride(t *testing.T) {
	rec := validRecord()
	rec.FinalProfile.Overrides = []string{"tempo"}
	if !hasField(ValidateSessionRecord(rec), "final_profile.overrides[0]") {
		t.Error("unknown override dimension should be rejected")
	}
}

func TestValidateSessionRecord_MissingEmotion(t *testing.T) {
	rec := validRecord()
	rec.FinalProfile.Emotion = " "
	if !hasField(ValidateSessionRecord(rec), "final_profile.emotion") {
		t.Error("blank emotion should be rejected")
	}
}

func TestValidateSessionRecord_GenerationParams(t *testing.T) {
	rec := validRecord()
	rec.GenerationParams = &types.GenerationParams{Temperature: 3, GuidanceScale: 3, MaxNewTokens: 0}

	errs := ValidateSessionRecord(rec)
	if !hasField(errs, "generation_params.temperature") {
		t.Errorf("expected temperature error, got %v", errs)
	}
	if !hasField(errs, "generation_params.max_new_tokens") {
		t.Errorf("expected max_new_tokens error, got %v", errs)
	}
	if hasField(errs, "generation_params.guidance_scale") {
		t.Error("guidance_scale 3 should be accepted")
	}
}

func TestValidateSessionRecord_PreferredVersion(t *testing.T) {
	rec := validRecord()
	rec.PreferredVersion = "C"
	if !hasField(ValidateSessionRecord(rec), "preferred_version") {
		t.Error("preferred_version C should be rejected")
	}
}

// --- Request validation ---

func TestValidateFeedbackRequest(t *testing.T) {
	valid := types.FeedbackRequest{SessionID: "01ARZ3NDEKTSV4RRFFQ69G5FAV", Rating: 5}
	if errs := ValidateFeedbackRequest(valid); len(errs) != 0 {
		t.Errorf("valid request rejected: %v", errs)
	}

	errs := ValidateFeedbackRequest(types.FeedbackRequest{Rating: 9})
	if !hasField(errs, "session_id") || !hasField(errs, "rating") {
		t.Errorf("expected session_id and rating errors, got %v", errs)
	}
}

func TestValidateGenerateRequest(t *testing.T) {
	bad := 140
	req := types.GenerateRequest{
		Text:       "rainy afternoon",
		Variations: 3,
		Overrides:  &types.SliderOverrides{Style: &bad},
	}

	errs := ValidateGenerateRequest(req)
	if !hasField(errs, "variations") {
		t.Errorf("expected variations error, got %v", errs)
	}
	if !hasField(errs, "overrides.style") {
		t.Errorf("expected overrides.style error, got %v", errs)
	}

	if errs := ValidateGenerateRequest(types.GenerateRequest{Text: "ok"}); len(errs) != 0 {
		t.Errorf("minimal request rejected: %v", errs)
	}
}
