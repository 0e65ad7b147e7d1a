// Package orchestrator turns a final emotion profile into a music
// generation prompt.
package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/hyperengineering/resonance/internal/knowledge"
	"github.com/hyperengineering/resonance/internal/llm"
	"github.com/hyperengineering/resonance/internal/store"
	"github.com/hyperengineering/resonance/internal/types"
)

// KnowledgeReader supplies the current knowledge snapshot.
type KnowledgeReader interface {
	Load(ctx context.Context) (*types.Knowledge, error)
}

// SessionReader supplies the session log for exemplar prompts.
type SessionReader interface {
	LoadAll(ctx context.Context) ([]types.SessionRecord, error)
}

// Options tune exemplar selection and sampling.
type Options struct {
	ExemplarMinRating int
	ExemplarLimit     int
	Temperature       float64
}

// Orchestrator composes generation prompts.
type Orchestrator struct {
	completer llm.Completer
	knowledge KnowledgeReader
	sessions  SessionReader
	opts      Options
}

// New creates an Orchestrator.
func New(completer llm.Completer, k KnowledgeReader, sessions SessionReader, opts Options) *Orchestrator {
	if opts.ExemplarLimit <= 0 || opts.ExemplarLimit > 3 {
		opts.ExemplarLimit = 3
	}
	if opts.ExemplarMinRating <= 0 {
		opts.ExemplarMinRating = types.HighRating
	}
	return &Orchestrator{completer: completer, knowledge: k, sessions: sessions, opts: opts}
}

// Compose builds the instruction for profile and returns the free-text
// prompt written by the completion service.
func (o *Orchestrator) Compose(ctx context.Context, profile types.Profile) (string, error) {
	records, err := o.sessions.LoadAll(ctx)
	if err != nil {
		return "", fmt.Errorf("load sessions: %w", err)
	}
	exemplars := store.TopPrompts(records, profile.Emotion, o.opts.ExemplarMinRating, o.opts.ExemplarLimit)

	k, err := o.knowledge.Load(ctx)
	if err != nil {
		return "", err
	}

	prompt, err := llm.AskText(ctx, o.completer, llm.Request{
		System:      "You are a music director creating a prompt for an AI music generator.",
		Parts:       []llm.Part{llm.TextPart(Instruction(profile, exemplars, k))},
		Temperature: o.opts.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("compose prompt: %w", err)
	}
	return prompt, nil
}

// Instruction assembles the request text for profile. exemplars and k may
// be empty.
func Instruction(profile types.Profile, exemplars []string, k *types.Knowledge) string {
	emotion := profile.EmotionKey()
	if emotion == "" {
		emotion = "neutral"
	}

	var b strings.Builder
	b.WriteString("Given this emotional profile:\n")
	fmt.Fprintf(&b, "- Emotion: %s\n", emotion)
	fmt.Fprintf(&b, "- Energy: %d/100 -> %s\n", profile.Energy, DescribeEnergy(profile.Energy))
	fmt.Fprintf(&b, "- Style: %d/100 -> %s\n", profile.Style, DescribeStyle(profile.Style))
	fmt.Fprintf(&b, "- Warmth: %d/100 -> %s\n", profile.Warmth, DescribeWarmth(profile.Warmth))
	fmt.Fprintf(&b, "- Arc: %d/100 -> %s\n", profile.Arc, DescribeArc(profile.Arc))

	if len(exemplars) > 0 {
		b.WriteString("\nHere are prompts that scored well for similar emotions. Use them as inspiration, do not copy them:\n")
		for _, ex := range exemplars {
			fmt.Fprintf(&b, "- %q\n", ex)
		}
	}

	if k != nil {
		writeRules(&b, "What listeners have liked", k.GlobalRules.Positive)
		writeRules(&b, "What listeners have disliked", k.GlobalRules.Negative)
		if entry, ok := knowledge.Lookup(k, emotion); ok {
			writeRules(&b, fmt.Sprintf("Principles for %s", emotion), entry.Principles)
			writeRules(&b, fmt.Sprintf("Avoid for %s", emotion), entry.AntiPatterns)
			if entry.Template != "" {
				fmt.Fprintf(&b, "\nA template that worked for %s: %q\n", emotion, entry.Template)
			}
		}
	}

	b.WriteString("\nWrite a vivid 2-3 sentence music generation prompt that blends ALL of these qualities naturally. ")
	b.WriteString("Include specific instruments, tempo feel, production style, and structural arc.\n")
	fmt.Fprintf(&b, "\nThe listener's dominant emotion is %q. The music should honor that feeling.\n", emotion)
	b.WriteString("\nOutput ONLY the prompt text. No labels, no JSON, no explanation.")
	return b.String()
}

func writeRules(b *strings.Builder, heading string, rules []string) {
	if len(rules) == 0 {
		return
	}
	fmt.Fprintf(b, "\n%s:\n", heading)
	for _, r := range rules {
		fmt.Fprintf(b, "- %s\n", r)
	}
}
