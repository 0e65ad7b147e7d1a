package types

import (
	"encoding/json"
	"strings"
	"time"
)

// Dimension names one of the four slider axes of a profile.
type Dimension string

const (
	DimensionEnergy Dimension = "energy"
	DimensionStyle  Dimension = "style"
	DimensionWarmth Dimension = "warmth"
	DimensionArc    Dimension = "arc"
)

// Dimensions lists every slider axis in canonical order.
var Dimensions = []Dimension{DimensionEnergy, DimensionStyle, DimensionWarmth, DimensionArc}

// Slider bounds shared by every dimension.
const (
	SliderMin = 0
	SliderMax = 100
)

// Rating bounds and the thresholds used when partitioning sessions.
const (
	RatingMin  = 1
	RatingMax  = 5
	HighRating = 4 // rating >= HighRating counts as "high"
	LowRating  = 2 // rating <= LowRating counts as "low"
)

// Sliders holds the four 0-100 slider values. Embedded in Profile so the
// JSON shape stays flat: {"emotion": ..., "energy": 40, ...}.
type Sliders struct {
	Energy int `json:"energy"`
	Style  int `json:"style"`
	Warmth int `json:"warmth"`
	Arc    int `json:"arc"`
}

// Get returns the value for dimension d. Unknown dimensions return 0.
func (s Sliders) Get(d Dimension) int {
	switch d {
	case DimensionEnergy:
		return s.Energy
	case DimensionStyle:
		return s.Style
	case DimensionWarmth:
		return s.Warmth
	case DimensionArc:
		return s.Arc
	}
	return 0
}

// Set assigns v to dimension d. Unknown dimensions are ignored.
func (s *Sliders) Set(d Dimension, v int) {
	switch d {
	case DimensionEnergy:
		s.Energy = v
	case DimensionStyle:
		s.Style = v
	case DimensionWarmth:
		s.Warmth = v
	case DimensionArc:
		s.Arc = v
	}
}

// Profile is an emotional profile: the dominant emotion, up to three ranked
// emotion tags and the four sliders.
//
// The fusion engine produces a Profile (the unified emotion profile) with
// Sources filled in; after user overrides are applied the same shape becomes
// the final profile, with Overrides listing the dimensions the user changed.
type Profile struct {
	Emotion  string   `json:"emotion"`
	Emotions []string `json:"emotions,omitempty"`
	Sliders
	Sources   []string `json:"sources,omitempty"`
	Overrides []string `json:"overrides,omitempty"`
}

// EmotionKey returns the normalized lookup key for the dominant emotion.
func (p Profile) EmotionKey() string {
	return NormalizeEmotion(p.Emotion)
}

// NormalizeEmotion lowercases and trims an emotion label.
func NormalizeEmotion(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}

// GenerationParams are the sampling parameters handed to the sound renderer.
type GenerationParams struct {
	Temperature   float64 `json:"temperature"`
	GuidanceScale float64 `json:"guidance_scale"`
	MaxNewTokens  int     `json:"max_new_tokens"`
}

// SessionRecord is one completed, rated generation session.
// Records are immutable once appended to the session store.
type SessionRecord struct {
	ID               string            `json:"id,omitempty"`
	Timestamp        time.Time         `json:"timestamp"`
	Rating           int               `json:"rating"`
	WouldReplay      bool              `json:"would_replay"`
	AIProfile        Profile           `json:"ai_profile"`
	FinalProfile     Profile           `json:"final_profile"`
	MusicPrompt      string            `json:"music_prompt"`
	PreferredVersion string            `json:"preferred_version,omitempty"`
	GenerationParams *GenerationParams `json:"generation_params,omitempty"`
	UserNote         string            `json:"user_note,omitempty"`
}

// FeedbackSummary aggregates the session store for display.
type FeedbackSummary struct {
	TotalSessions int     `json:"total_sessions"`
	AvgRating     float64 `json:"avg_rating"`
	ReplayRate    int     `json:"replay_rate"` // percentage 0-100
	HighRated     int     `json:"high_rated"`
}

// MoodSignal is what an emotion signal source reports for one modality.
type MoodSignal struct {
	Source     string   `json:"source"`
	Moods      []string `json:"moods"`
	Energy     float64  `json:"energy"` // normalized intensity in [0,1]
	Summary    string   `json:"summary,omitempty"`
	Caption    string   `json:"caption,omitempty"`
	Transcript string   `json:"transcript,omitempty"`
}

// Explanation is the human-readable story of how an input became music.
type Explanation struct {
	Narrative string         `json:"narrative"`
	Timeline  []TimelineStep `json:"timeline"`
}

// TimelineStep is one stage of the explanation timeline.
type TimelineStep struct {
	Step        string `json:"step"`
	Description string `json:"description"`
	Emotion     string `json:"emotion"`
}

// MarshalJSON ensures nil slices in MoodSignal marshal as [] not null.
func (m MoodSignal) MarshalJSON() ([]byte, error) {
	if m.Moods == nil {
		m.Moods = []string{}
	}
	type Alias MoodSignal
	return json.Marshal(Alias(m))
}
