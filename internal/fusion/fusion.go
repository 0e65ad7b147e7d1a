// Package fusion blends per-modality mood signals into one emotion profile
// and biases it toward what past ratings have taught the knowledge base.
package fusion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/hyperengineering/resonance/internal/knowledge"
	"github.com/hyperengineering/resonance/internal/llm"
	"github.com/hyperengineering/resonance/internal/store"
	"github.com/hyperengineering/resonance/internal/types"
)

// ErrNoSignals is returned when Fuse is called without any mood signal.
var ErrNoSignals = errors.New("no mood signals to fuse")

// Bias methods reported in logs and tests.
const (
	BiasNone    = "none"
	BiasClamp   = "range_clamp"
	BiasAverage = "learned_average"
)

// KnowledgeReader supplies the current knowledge snapshot.
type KnowledgeReader interface {
	Load(ctx context.Context) (*types.Knowledge, error)
}

// SessionReader supplies the session log for learned defaults.
type SessionReader interface {
	LoadAll(ctx context.Context) ([]types.SessionRecord, error)
}

// blendReply is the structured reply expected from the completion service.
type blendReply struct {
	Emotion  string   `json:"emotion" jsonschema:"description=Single dominant emotion word"`
	Emotions []string `json:"emotions" jsonschema:"description=One to three emotion words ranked strongest first"`
	Energy   int      `json:"energy" jsonschema:"description=0-100 integer; 0 quiet and still, 100 intense"`
	Style    int      `json:"style" jsonschema:"description=0-100 integer; 0 lo-fi intimate, 100 cinematic epic"`
	Warmth   int      `json:"warmth" jsonschema:"description=0-100 integer; 0 warm analog, 100 bright digital"`
	Arc      int      `json:"arc" jsonschema:"description=0-100 integer; 0 steady constant, 100 big dramatic build"`
}

// Engine fuses mood signals into a unified profile.
type Engine struct {
	completer   llm.Completer
	knowledge   KnowledgeReader
	sessions    SessionReader
	temperature float64
}

// New creates a fusion Engine.
func New(completer llm.Completer, k KnowledgeReader, sessions SessionReader, temperature float64) *Engine {
	return &Engine{completer: completer, knowledge: k, sessions: sessions, temperature: temperature}
}

// Fuse asks the completion service to blend every signal into one profile,
// then biases the sliders toward learned knowledge. A malformed blend is fatal.
func (e *Engine) Fuse(ctx context.Context, signals []types.MoodSignal) (*types.Profile, error) {
	if len(signals) == 0 {
		return nil, ErrNoSignals
	}

	reply, err := llm.AskJSON[blendReply](ctx, e.completer, llm.Request{
		System:      "You are an emotion analyst for a music generation system.",
		Parts:       []llm.Part{llm.TextPart(blendPrompt(signals))},
		Temperature: e.temperature,
		SchemaName:  "emotion_profile",
	})
	if err != nil {
		return nil, fmt.Errorf("blend signals: %w", err)
	}
	profile, err := reply.profile(signals)
	if err != nil {
		return nil, err
	}

	k, err := e.knowledge.Load(ctx)
	if err != nil {
		return nil, err
	}

	var learned *types.Sliders
	entry, hasEntry := knowledge.Lookup(k, profile.Emotion)
	if !hasEntry && e.sessions != nil {
		records, err := e.sessions.LoadAll(ctx)
		if err != nil {
			return nil, fmt.Errorf("load sessions: %w", err)
		}
		if d, ok := store.LearnedDefaults(records, profile.Emotion); ok {
			learned = &d
		}
	}

	var entryPtr *types.EmotionProfile
	if hasEntry {
		entryPtr = &entry
	}
	biased, method := Bias(profile.Sliders, entryPtr, learned)

	slog.Debug("emotion profile fused",
		"component", "fusion",
		"emotion", profile.Emotion,
		"bias", method,
		"raw_energy", profile.Energy,
		"energy", biased.Energy,
	)
	profile.Sliders = biased
	return profile, nil
}

// Bias applies learned knowledge to raw sliders. A per-emotion entry wins and
// range-clamps every dimension it has a range for; otherwise learned
// defaults, when present, are averaged with the raw values.
func Bias(raw types.Sliders, entry *types.EmotionProfile, learned *types.Sliders) (types.Sliders, string) {
	switch {
	case entry != nil:
		out := raw
		for _, d := range types.Dimensions {
			if r, ok := entry.RangeFor(d); ok {
				out.Set(d, ClampToRange(raw.Get(d), r))
			}
		}
		return out, BiasClamp
	case learned != nil:
		var out types.Sliders
		for _, d := range types.Dimensions {
			out.Set(d, roundInt(float64(raw.Get(d)+learned.Get(d))/2))
		}
		return out, BiasAverage
	default:
		return raw, BiasNone
	}
}

// ClampToRange keeps v when it lies inside r and otherwise pulls it 70% of the
// way to the nearer bound: round(0.3*v + 0.7*bound).
func ClampToRange(v int, r types.Range) int {
	r = r.Normalize()
	switch {
	case v < r.Lo():
		return roundTenths(3*v + 7*r.Lo())
	case v > r.Hi():
		return roundTenths(3*v + 7*r.Hi())
	default:
		return v
	}
}

// roundTenths rounds n/10 half away from zero without going through float64.
func roundTenths(n int) int {
	if n < 0 {
		return -((-n + 5) / 10)
	}
	return (n + 5) / 10
}

func roundInt(f float64) int {
	return int(math.Round(f))
}

func (r blendReply) profile(signals []types.MoodSignal) (*types.Profile, error) {
	emotion := types.NormalizeEmotion(r.Emotion)
	if emotion == "" {
		return nil, fmt.Errorf("blend signals: %w: missing dominant emotion", llm.ErrMalformedResponse)
	}

	emotions := []string{emotion}
	for _, e := range r.Emotions {
		e = types.NormalizeEmotion(e)
		if e == "" || contains(emotions, e) {
			continue
		}
		if len(emotions) == 3 {
			break
		}
		emotions = append(emotions, e)
	}

	var sources []string
	for _, s := range signals {
		if !contains(sources, s.Source) {
			sources = append(sources, s.Source)
		}
	}

	return &types.Profile{
		Emotion:  emotion,
		Emotions: emotions,
		Sliders: types.Sliders{
			Energy: clampSlider(r.Energy),
			Style:  clampSlider(r.Style),
			Warmth: clampSlider(r.Warmth),
			Arc:    clampSlider(r.Arc),
		},
		Sources: sources,
	}, nil
}

func blendPrompt(signals []types.MoodSignal) string {
	var b strings.Builder
	b.WriteString("Given these mood signals from user inputs:\n")
	for _, s := range signals {
		fmt.Fprintf(&b, "- Source: %s, Moods: %s, Energy: %.2f", s.Source, strings.Join(s.Moods, ", "), s.Energy)
		if s.Summary != "" {
			fmt.Fprintf(&b, ", Summary: %s", s.Summary)
		}
		if s.Caption != "" {
			fmt.Fprintf(&b, ", Caption: %s", s.Caption)
		}
		b.WriteString("\n")
	}
	b.WriteString(`
Produce ONE unified emotional profile that synthesizes ALL of the signals, not just the strongest one.
- emotion: the dominant emotion word
- emotions: one to three emotion words, strongest first
- energy, style, warmth, arc: integers from 0 to 100

Heuristics:
- A sad quiet poem: low energy, lo-fi style, warm, steady arc
- An action photo with excited text: high energy, cinematic, bright, big build
- Mixed signals such as sad but hopeful: moderate energy, warm, gentle build
- Base values on the actual emotional content, not random guesses`)
	return b.String()
}

func clampSlider(v int) int {
	return max(types.SliderMin, min(types.SliderMax, v))
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
