package reflection

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/hyperengineering/resonance/internal/knowledge"
	"github.com/hyperengineering/resonance/internal/llm"
	"github.com/hyperengineering/resonance/internal/store"
	"github.com/hyperengineering/resonance/internal/types"
)

// Phase names one step of a reflection run.
type Phase string

const (
	PhaseGlobalRules      Phase = "global_rules"
	PhaseEmotionProfiles  Phase = "emotion_profiles"
	PhaseGenerationParams Phase = "generation_params"
)

// Status is the outcome of a phase.
type Status string

const (
	StatusApplied Status = "applied"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// MaxProfileItems bounds principles and anti-patterns per emotion.
const MaxProfileItems = 3

// MinEmotionSessions is the number of sessions an emotion needs before it is profiled.
const MinEmotionSessions = 2

// PhaseResult is what a phase reports back to the run loop. A failed phase
// leaves its part of the snapshot as it was.
type PhaseResult struct {
	Phase  Phase
	Status Status
	Detail string
	Err    error
}

func (r PhaseResult) String() string {
	switch {
	case r.Err != nil:
		return fmt.Sprintf("%s: %v", r.Status, r.Err)
	case r.Detail != "":
		return fmt.Sprintf("%s: %s", r.Status, r.Detail)
	default:
		return string(r.Status)
	}
}

type rulesReply struct {
	Positive []string `json:"positive" jsonschema:"description=Two to four short heuristics describing prompts that scored well"`
	Negative []string `json:"negative" jsonschema:"description=Two to four short heuristics describing traits to avoid"`
}

// extractGlobalRules replaces the global rule set with heuristics inferred
// from the high and low rated sessions.
func (e *Engine) extractGlobalRules(ctx context.Context, records []types.SessionRecord, k *types.Knowledge) PhaseResult {
	res := PhaseResult{Phase: PhaseGlobalRules}

	high, low := store.Partition(records)
	if len(high) == 0 && len(low) == 0 {
		res.Status = StatusSkipped
		res.Detail = "no high or low rated sessions"
		return res
	}

	reply, err := llm.AskJSON[rulesReply](ctx, e.completer, llm.Request{
		System:      "You study listener feedback for an AI music generator and extract reusable prompt-writing rules.",
		Parts:       []llm.Part{llm.TextPart(globalRulesPrompt(records, len(high), len(low)))},
		Temperature: e.opts.Temperature,
		SchemaName:  "global_rules",
	})
	if err == nil {
		reply.Positive = cleanList(reply.Positive, knowledge.MaxGlobalRules)
		reply.Negative = cleanList(reply.Negative, knowledge.MaxGlobalRules)
		if len(reply.Positive) == 0 && len(reply.Negative) == 0 {
			err = fmt.Errorf("%w: no rules returned", llm.ErrMalformedResponse)
		}
	}
	if err != nil {
		slog.Warn("global rule extraction failed, keeping previous rules",
			"component", "reflection",
			"phase", string(PhaseGlobalRules),
			"error", err,
		)
		res.Status = StatusFailed
		res.Err = err
		return res
	}

	k.GlobalRules = types.GlobalRules{Positive: reply.Positive, Negative: reply.Negative}
	res.Status = StatusApplied
	res.Detail = fmt.Sprintf("%d positive, %d negative", len(reply.Positive), len(reply.Negative))
	return res
}

type emotionReply struct {
	EnergyRange  []int    `json:"energy_range" jsonschema:"description=Preferred [low, high] energy range taken from the high rated sessions"`
	StyleRange   []int    `json:"style_range" jsonschema:"description=Preferred [low, high] style range taken from the high rated sessions"`
	WarmthRange  []int    `json:"warmth_range" jsonschema:"description=Preferred [low, high] warmth range taken from the high rated sessions"`
	ArcRange     []int    `json:"arc_range" jsonschema:"description=Preferred [low, high] arc range taken from the high rated sessions"`
	Principles   []string `json:"principles" jsonschema:"description=One to three prompt principles for this emotion"`
	AntiPatterns []string `json:"anti_patterns" jsonschema:"description=One to three things to avoid for this emotion"`
	Template     string   `json:"template" jsonschema:"description=One illustrative prompt template for this emotion"`
}

func (r emotionReply) rangeFor(d types.Dimension) []int {
	switch d {
	case types.DimensionEnergy:
		return r.EnergyRange
	case types.DimensionStyle:
		return r.StyleRange
	case types.DimensionWarmth:
		return r.WarmthRange
	case types.DimensionArc:
		return r.ArcRange
	}
	return nil
}

// profileEmotions rebuilds the entry of every emotion with enough sessions.
// Each emotion is independent: a failure leaves that emotion's previous entry.
func (e *Engine) profileEmotions(ctx context.Context, records []types.SessionRecord, k *types.Knowledge) (map[string]string, PhaseResult) {
	res := PhaseResult{Phase: PhaseEmotionProfiles}
	groups := store.GroupByEmotion(records)

	labels := make([]string, 0, len(groups))
	for label := range groups {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	summary := rangeSummary(groups, labels)
	outcomes := make(map[string]string, len(labels))
	var applied, failed int

	for _, label := range labels {
		group := groups[label]
		if len(group) < MinEmotionSessions {
			outcomes[label] = fmt.Sprintf("%s: %d session", StatusSkipped, len(group))
			continue
		}

		profile, err := e.profileEmotion(ctx, label, group, summary)
		if err != nil {
			slog.Warn("emotion profiling failed, keeping previous entry",
				"component", "reflection",
				"phase", string(PhaseEmotionProfiles),
				"emotion", label,
				"error", err,
			)
			outcomes[label] = fmt.Sprintf("%s: %v", StatusFailed, err)
			failed++
			continue
		}
		k.EmotionProfiles[label] = profile
		outcomes[label] = string(StatusApplied)
		applied++
	}

	switch {
	case applied == 0 && failed == 0:
		res.Status = StatusSkipped
		res.Detail = "no emotion with enough sessions"
	case applied == 0:
		res.Status = StatusFailed
		res.Err = fmt.Errorf("all %d emotions failed", failed)
	default:
		res.Status = StatusApplied
		res.Detail = fmt.Sprintf("%d updated, %d failed", applied, failed)
	}
	return outcomes, res
}

func (e *Engine) profileEmotion(ctx context.Context, label string, group []types.SessionRecord, summary string) (types.EmotionProfile, error) {
	reply, err := llm.AskJSON[emotionReply](ctx, e.completer, llm.Request{
		System:      "You study listener feedback for an AI music generator and describe what works for one emotion.",
		Parts:       []llm.Part{llm.TextPart(emotionPrompt(label, group, summary))},
		Temperature: e.opts.Temperature,
		SchemaName:  "emotion_insight",
	})
	if err != nil {
		return types.EmotionProfile{}, err
	}

	principles := cleanList(reply.Principles, MaxProfileItems)
	antiPatterns := cleanList(reply.AntiPatterns, MaxProfileItems)
	if len(principles) == 0 || len(antiPatterns) == 0 {
		return types.EmotionProfile{}, fmt.Errorf("%w: principles and anti-patterns are required", llm.ErrMalformedResponse)
	}

	profile := types.EmotionProfile{
		Principles:   principles,
		AntiPatterns: antiPatterns,
		Template:     strings.TrimSpace(reply.Template),
		SampleCount:  len(group),
		AvgRating:    averageRating(group),
		UpdatedAt:    e.opts.Now().UTC(),
	}

	observed := observedRanges(group)
	for _, d := range types.Dimensions {
		if r := reply.rangeFor(d); len(r) == 2 {
			profile.SetRange(d, types.Range{r[0], r[1]})
			continue
		}
		profile.SetRange(d, observed[d])
	}
	return profile, nil
}

// correlateParams averages the generation parameters of the high rated
// sessions and keeps a trailing window of observations.
func correlateParams(records []types.SessionRecord, k *types.Knowledge) PhaseResult {
	res := PhaseResult{Phase: PhaseGenerationParams}

	var withParams []types.SessionRecord
	for _, r := range records {
		if r.GenerationParams != nil {
			withParams = append(withParams, r)
		}
	}
	if len(withParams) == 0 {
		res.Status = StatusSkipped
		res.Detail = "no session carries generation parameters"
		return res
	}

	high, low := store.Partition(withParams)
	insights := &k.GenerationInsights
	if len(high) > 0 {
		var temp, guidance, tokens float64
		for _, r := range high {
			temp += r.GenerationParams.Temperature
			guidance += r.GenerationParams.GuidanceScale
			tokens += float64(r.GenerationParams.MaxNewTokens)
		}
		n := float64(len(high))
		insights.BestTemperature = temp / n
		insights.BestGuidanceScale = guidance / n
		insights.BestMaxTokens = int(math.Round(tokens / n))
	}

	start := max(0, len(withParams)-knowledge.HistoryWindow)
	history := make([]types.ParamObservation, 0, len(withParams)-start)
	for _, r := range withParams[start:] {
		history = append(history, types.ParamObservation{Rating: r.Rating, GenerationParams: *r.GenerationParams})
	}
	insights.History = history

	res.Status = StatusApplied
	res.Detail = fmt.Sprintf("%d high, %d low", len(high), len(low))
	return res
}

// observedRanges returns the min/max of each slider over the high rated
// sessions of group, or over the whole group when none is rated high.
func observedRanges(group []types.SessionRecord) map[types.Dimension]types.Range {
	high, _ := store.Partition(group)
	if len(high) == 0 {
		high = group
	}
	out := make(map[types.Dimension]types.Range, len(types.Dimensions))
	for _, d := range types.Dimensions {
		lo, hi := types.SliderMax, types.SliderMin
		for _, r := range high {
			v := r.FinalProfile.Get(d)
			lo = min(lo, v)
			hi = max(hi, v)
		}
		out[d] = types.Range{lo, hi}
	}
	return out
}

func averageRating(group []types.SessionRecord) float64 {
	if len(group) == 0 {
		return 0
	}
	sum := 0
	for _, r := range group {
		sum += r.Rating
	}
	return math.Round(float64(sum)/float64(len(group))*10) / 10
}

func cleanList(items []string, limit int) []string {
	out := make([]string, 0, min(len(items), limit))
	for _, s := range items {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		out = append(out, s)
		if len(out) == limit {
			break
		}
	}
	return out
}
