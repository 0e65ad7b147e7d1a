package types

import (
	"encoding/json"
	"time"
)

// SliderOverrides carries optional user overrides for the four sliders.
// A nil field means "keep the AI value".
type SliderOverrides struct {
	Energy *int `json:"energy,omitempty"`
	Style  *int `json:"style,omitempty"`
	Warmth *int `json:"warmth,omitempty"`
	Arc    *int `json:"arc,omitempty"`
}

// Get returns the override for dimension d, if any.
func (o *SliderOverrides) Get(d Dimension) (int, bool) {
	if o == nil {
		return 0, false
	}
	var v *int
	switch d {
	case DimensionEnergy:
		v = o.Energy
	case DimensionStyle:
		v = o.Style
	case DimensionWarmth:
		v = o.Warmth
	case DimensionArc:
		v = o.Arc
	}
	if v == nil {
		return 0, false
	}
	return *v, true
}

// GenerateRequest is the input for one generation session. At least one of
// Text, Image or Voice must be present. Binary fields travel base64-encoded.
type GenerateRequest struct {
	Text             string            `json:"text,omitempty"`
	Image            []byte            `json:"image,omitempty"`
	ImageMIME        string            `json:"image_mime,omitempty"`
	Voice            []byte            `json:"voice,omitempty"`
	Overrides        *SliderOverrides  `json:"overrides,omitempty"`
	Variations       int               `json:"variations,omitempty"`
	GenerationParams *GenerationParams `json:"generation_params,omitempty"`
}

// GenerateResponse is the result of a generation session awaiting a rating.
type GenerateResponse struct {
	SessionID        string           `json:"session_id"`
	Signals          []MoodSignal     `json:"signals"`
	AIProfile        Profile          `json:"ai_profile"`
	FinalProfile     Profile          `json:"final_profile"`
	MusicPrompt      string           `json:"music_prompt"`
	GenerationParams GenerationParams `json:"generation_params"`
	Audio            [][]byte         `json:"audio"`
	Explanation      *Explanation     `json:"explanation,omitempty"`
}

// FeedbackRequest rates a previously generated session.
type FeedbackRequest struct {
	SessionID        string `json:"session_id"`
	Rating           int    `json:"rating"`
	WouldReplay      bool   `json:"would_replay"`
	PreferredVersion string `json:"preferred_version,omitempty"`
	Note             string `json:"note,omitempty"`
}

// FeedbackResponse reports the stored record and whether reflection ran.
type FeedbackResponse struct {
	RecordID  string           `json:"record_id"`
	Reflected bool             `json:"reflected"`
	Summary   *FeedbackSummary `json:"summary,omitempty"`
}

// ReflectionReport describes one reflection run.
type ReflectionReport struct {
	Ran             bool              `json:"ran"`
	Reason          string            `json:"reason,omitempty"`
	EntriesAnalyzed int               `json:"entries_analyzed"`
	ReflectionCount int               `json:"reflection_count"`
	Phases          map[string]string `json:"phases,omitempty"`
	Emotions        map[string]string `json:"emotions,omitempty"`
	FinishedAt      *time.Time        `json:"finished_at,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status          string     `json:"status"`
	Version         string     `json:"version"`
	Provider        string     `json:"provider"`
	Model           string     `json:"model"`
	SessionCount    int        `json:"session_count"`
	ReflectionCount int        `json:"reflection_count"`
	LastReflection  *time.Time `json:"last_reflection"`
}

// MarshalJSON ensures nil slices in GenerateResponse marshal as [] not null.
func (g GenerateResponse) MarshalJSON() ([]byte, error) {
	if g.Signals == nil {
		g.Signals = []MoodSignal{}
	}
	if g.Audio == nil {
		g.Audio = [][]byte{}
	}
	type Alias GenerateResponse
	return json.Marshal(Alias(g))
}
