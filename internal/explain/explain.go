// Package explain writes the short story of how an input became music.
package explain

import (
	"context"
	"fmt"
	"strings"

	"github.com/hyperengineering/resonance/internal/llm"
	"github.com/hyperengineering/resonance/internal/types"
)

// TimelineSteps is the number of steps in every explanation timeline.
const TimelineSteps = 5

const promptExcerpt = 200

type explanationReply struct {
	Narrative string `json:"narrative" jsonschema:"description=Two or three warm sentences on how the input emotion shaped the music, mentioning any overrides"`
	Timeline  []struct {
		Step        string `json:"step" jsonschema:"description=Short stage label such as Input Analysis or Music Generation"`
		Description string `json:"description" jsonschema:"description=One sentence about what happened at this stage"`
		Emotion     string `json:"emotion" jsonschema:"description=Dominant emotion at this stage, one word"`
	} `json:"timeline" jsonschema:"description=Exactly five pipeline stages in order"`
}

// Explainer asks the completion service for an explanation.
type Explainer struct {
	completer   llm.Completer
	temperature float64
}

// New creates an Explainer.
func New(completer llm.Completer, temperature float64) *Explainer {
	return &Explainer{completer: completer, temperature: temperature}
}

// Explain describes how ai became final and then prompt. The timeline is cut
// to TimelineSteps; an empty narrative or timeline is malformed.
func (e *Explainer) Explain(ctx context.Context, ai, final types.Profile, prompt string) (*types.Explanation, error) {
	reply, err := llm.AskJSON[explanationReply](ctx, e.completer, llm.Request{
		System:      "You explain to a listener how their input was turned into music.",
		Parts:       []llm.Part{llm.TextPart(explainPrompt(ai, final, prompt))},
		Temperature: e.temperature,
		SchemaName:  "explanation",
	})
	if err != nil {
		return nil, fmt.Errorf("explain: %w", err)
	}

	out := &types.Explanation{Narrative: strings.TrimSpace(reply.Narrative)}
	for _, s := range reply.Timeline {
		if len(out.Timeline) == TimelineSteps {
			break
		}
		out.Timeline = append(out.Timeline, types.TimelineStep{
			Step:        strings.TrimSpace(s.Step),
			Description: strings.TrimSpace(s.Description),
			Emotion:     strings.TrimSpace(s.Emotion),
		})
	}
	if out.Narrative == "" || len(out.Timeline) == 0 {
		return nil, fmt.Errorf("explain: %w: narrative and timeline are required", llm.ErrMalformedResponse)
	}
	return out, nil
}

func explainPrompt(ai, final types.Profile, prompt string) string {
	sources := "text"
	if len(ai.Sources) > 0 {
		sources = strings.Join(ai.Sources, ", ")
	}
	overrides := "none"
	if len(final.Overrides) > 0 {
		overrides = strings.Join(final.Overrides, ", ")
	}
	if r := []rune(prompt); len(r) > promptExcerpt {
		prompt = string(r[:promptExcerpt])
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Input sources: %s\n", sources)
	fmt.Fprintf(&b, "Detected emotion: %s\n", ai.Emotion)
	fmt.Fprintf(&b, "AI profile: energy=%d, style=%d, warmth=%d, arc=%d\n", ai.Energy, ai.Style, ai.Warmth, ai.Arc)
	fmt.Fprintf(&b, "User overrides: %s\n", overrides)
	fmt.Fprintf(&b, "Final profile: energy=%d, style=%d, warmth=%d, arc=%d\n", final.Energy, final.Style, final.Warmth, final.Arc)
	fmt.Fprintf(&b, "Music prompt: %q\n\n", prompt)
	fmt.Fprintf(&b, "Write a narrative of 2 to 3 sentences and a timeline of exactly %d steps: input analysis, emotion detection, profile tuning, prompt creation, music generation.", TimelineSteps)
	return b.String()
}
