package reflection

import (
	"fmt"
	"strings"

	"github.com/hyperengineering/resonance/internal/types"
)

func formatRecord(b *strings.Builder, r types.SessionRecord) {
	p := r.FinalProfile
	fmt.Fprintf(b, "- rating %d/5, replay %t, emotion %s, energy %d, style %d, warmth %d, arc %d",
		r.Rating, r.WouldReplay, p.EmotionKey(), p.Energy, p.Style, p.Warmth, p.Arc)
	if len(p.Overrides) > 0 {
		fmt.Fprintf(b, ", user changed %s", strings.Join(p.Overrides, "/"))
	}
	if r.UserNote != "" {
		fmt.Fprintf(b, ", note %q", r.UserNote)
	}
	fmt.Fprintf(b, "\n  prompt: %q\n", r.MusicPrompt)
}

func globalRulesPrompt(records []types.SessionRecord, high, low int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Here are %d rated music generation sessions (%d rated 4 or higher, %d rated 2 or lower):\n\n", len(records), high, low)
	for _, r := range records {
		formatRecord(&b, r)
	}
	b.WriteString(`
Infer 2 to 4 positive heuristics: traits of prompts that scored well.
Infer 2 to 4 negative heuristics: traits of prompts that scored poorly and should be avoided.
Each heuristic is one short sentence that a prompt writer can follow.`)
	return b.String()
}

// rangeSummary describes the observed slider ranges of every emotion so a
// single emotion can be profiled relative to the others.
func rangeSummary(groups map[string][]types.SessionRecord, labels []string) string {
	var b strings.Builder
	for _, label := range labels {
		obs := observedRanges(groups[label])
		fmt.Fprintf(&b, "- %s (%d sessions):", label, len(groups[label]))
		for _, d := range types.Dimensions {
			r := obs[d]
			fmt.Fprintf(&b, " %s %d-%d", d, r.Lo(), r.Hi())
		}
		b.WriteString("\n")
	}
	return b.String()
}

func emotionPrompt(label string, group []types.SessionRecord, summary string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Emotion: %s\n\nSessions with this emotion:\n", label)
	for _, r := range group {
		formatRecord(&b, r)
	}
	b.WriteString("\nSlider ranges observed across all emotions:\n")
	b.WriteString(summary)
	b.WriteString(`
Produce a profile for this emotion:
- energy_range, style_range, warmth_range, arc_range: [low, high] pairs derived from the slider values of the sessions rated 4 or higher. Do not invent values outside what was observed.
- principles: 1 to 3 prompt principles that worked
- anti_patterns: 1 to 3 things that did not work
- template: one illustrative prompt template`)
	return b.String()
}
