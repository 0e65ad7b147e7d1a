package types

import (
	"encoding/json"
	"time"
)

// Range is an inclusive [low, high] slider range.
type Range [2]int

// Lo returns the lower bound.
func (r Range) Lo() int { return r[0] }

// Hi returns the upper bound.
func (r Range) Hi() int { return r[1] }

// Contains reports whether v lies inside the range, bounds included.
func (r Range) Contains(v int) bool {
	return v >= r[0] && v <= r[1]
}

// Normalize orders the bounds and clamps both into the slider domain.
func (r Range) Normalize() Range {
	lo, hi := clampSlider(r[0]), clampSlider(r[1])
	if lo > hi {
		lo, hi = hi, lo
	}
	return Range{lo, hi}
}

func clampSlider(v int) int {
	if v < SliderMin {
		return SliderMin
	}
	if v > SliderMax {
		return SliderMax
	}
	return v
}

// GlobalRules are short natural-language heuristics learned across all sessions.
type GlobalRules struct {
	Positive []string `json:"positive"`
	Negative []string `json:"negative"`
}

// EmotionProfile is the learned entry for one emotion label.
type EmotionProfile struct {
	EnergyRange  *Range    `json:"energy_range,omitempty"`
	StyleRange   *Range    `json:"style_range,omitempty"`
	WarmthRange  *Range    `json:"warmth_range,omitempty"`
	ArcRange     *Range    `json:"arc_range,omitempty"`
	Principles   []string  `json:"principles"`
	AntiPatterns []string  `json:"anti_patterns"`
	Template     string    `json:"template"`
	SampleCount  int       `json:"sample_count"`
	AvgRating    float64   `json:"avg_rating"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// RangeFor returns the preferred range for dimension d, if one was learned.
func (p EmotionProfile) RangeFor(d Dimension) (Range, bool) {
	var r *Range
	switch d {
	case DimensionEnergy:
		r = p.EnergyRange
	case DimensionStyle:
		r = p.StyleRange
	case DimensionWarmth:
		r = p.WarmthRange
	case DimensionArc:
		r = p.ArcRange
	}
	if r == nil {
		return Range{}, false
	}
	return *r, true
}

// SetRange stores the preferred range for dimension d.
func (p *EmotionProfile) SetRange(d Dimension, r Range) {
	n := r.Normalize()
	switch d {
	case DimensionEnergy:
		p.EnergyRange = &n
	case DimensionStyle:
		p.StyleRange = &n
	case DimensionWarmth:
		p.WarmthRange = &n
	case DimensionArc:
		p.ArcRange = &n
	}
}

// ParamObservation pairs a session rating with the parameters it was generated with.
type ParamObservation struct {
	Rating int `json:"rating"`
	GenerationParams
}

// GenerationInsights are the learned defaults for the sound renderer.
type GenerationInsights struct {
	BestTemperature   float64            `json:"best_temperature"`
	BestGuidanceScale float64            `json:"best_guidance_scale"`
	BestMaxTokens     int                `json:"best_max_tokens"`
	History           []ParamObservation `json:"history"`
}

// Params returns the insights as renderer parameters.
func (g GenerationInsights) Params() GenerationParams {
	return GenerationParams{
		Temperature:   g.BestTemperature,
		GuidanceScale: g.BestGuidanceScale,
		MaxNewTokens:  g.BestMaxTokens,
	}
}

// Knowledge is the single snapshot of learned rules. It is replaced wholesale
// on every reflection run.
type Knowledge struct {
	Version            int                       `json:"version"`
	LastReflection     *time.Time                `json:"last_reflection"`
	ReflectionCount    int                       `json:"reflection_count"`
	EntriesAnalyzed    int                       `json:"entries_analyzed"`
	GlobalRules        GlobalRules               `json:"global_rules"`
	EmotionProfiles    map[string]EmotionProfile `json:"emotion_profiles"`
	GenerationInsights GenerationInsights        `json:"generation_insights"`
}

// Clone returns a deep copy so callers can build the next snapshot without
// touching the one readers hold.
func (k *Knowledge) Clone() *Knowledge {
	if k == nil {
		return nil
	}
	c := *k
	if k.LastReflection != nil {
		t := *k.LastReflection
		c.LastReflection = &t
	}
	c.GlobalRules = GlobalRules{
		Positive: append([]string(nil), k.GlobalRules.Positive...),
		Negative: append([]string(nil), k.GlobalRules.Negative...),
	}
	c.EmotionProfiles = make(map[string]EmotionProfile, len(k.EmotionProfiles))
	for key, p := range k.EmotionProfiles {
		cp := p
		cp.Principles = append([]string(nil), p.Principles...)
		cp.AntiPatterns = append([]string(nil), p.AntiPatterns...)
		for _, d := range Dimensions {
			if r, ok := p.RangeFor(d); ok {
				cp.SetRange(d, r)
			}
		}
		c.EmotionProfiles[key] = cp
	}
	c.GenerationInsights.History = append([]ParamObservation(nil), k.GenerationInsights.History...)
	return &c
}

// MarshalJSON ensures nil collections in Knowledge marshal as empty values.
func (k Knowledge) MarshalJSON() ([]byte, error) {
	if k.GlobalRules.Positive == nil {
		k.GlobalRules.Positive = []string{}
	}
	if k.GlobalRules.Negative == nil {
		k.GlobalRules.Negative = []string{}
	}
	if k.EmotionProfiles == nil {
		k.EmotionProfiles = map[string]EmotionProfile{}
	}
	if k.GenerationInsights.History == nil {
		k.GenerationInsights.History = []ParamObservation{}
	}
	type Alias Knowledge
	return json.Marshal(Alias(k))
}
