package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/hyperengineering/resonance/internal/types"
	"github.com/spf13/cobra"
)

var knowledgeCmd = &cobra.Command{
	Use:   "knowledge [emotion]",
	Short: "Show the learned knowledge snapshot",
	Long:  "Without arguments prints the whole snapshot. With an emotion prints that emotion's learned profile.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runKnowledge,
}

func init() {
	knowledgeCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
}

func runKnowledge(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadCLIConfig(cmd)
	if err != nil {
		return err
	}

	st, kb, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	out := cmd.OutOrStdout()

	if len(args) == 1 {
		profile, ok, err := kb.LookupEmotion(ctx, args[0])
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("no learned profile for emotion %q", args[0])
		}
		if jsonOutput {
			return printJSON(out, profile)
		}
		printProfile(out, types.NormalizeEmotion(args[0]), profile)
		return nil
	}

	k, err := kb.Load(ctx)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(out, k)
	}

	last := "never"
	if k.LastReflection != nil {
		last = k.LastReflection.Format("2006-01-02 15:04:05 MST")
	}
	fmt.Fprintf(out, "Reflections:      %d (last: %s)\n", k.ReflectionCount, last)
	fmt.Fprintf(out, "Entries analyzed: %d\n", k.EntriesAnalyzed)
	printRules(out, "Do", k.GlobalRules.Positive)
	printRules(out, "Avoid", k.GlobalRules.Negative)

	g := k.GenerationInsights
	fmt.Fprintf(out, "Generation:       temperature %.2f, guidance %.2f, max tokens %d\n",
		g.BestTemperature, g.BestGuidanceScale, g.BestMaxTokens)

	if len(k.EmotionProfiles) == 0 {
		fmt.Fprintln(out, "No emotion profiles learned yet.")
		return nil
	}
	fmt.Fprintln(out)
	tw := newTabWriter(out)
	fmt.Fprintln(tw, "EMOTION\tSAMPLES\tAVG RATING\tENERGY\tSTYLE\tWARMTH\tARC")
	labels := make([]string, 0, len(k.EmotionProfiles))
	for label := range k.EmotionProfiles {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	for _, label := range labels {
		p := k.EmotionProfiles[label]
		fmt.Fprintf(tw, "%s\t%d\t%.1f", label, p.SampleCount, p.AvgRating)
		for _, d := range types.Dimensions {
			fmt.Fprintf(tw, "\t%s", formatRange(p, d))
		}
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}

func printRules(out io.Writer, heading string, rules []string) {
	if len(rules) == 0 {
		return
	}
	fmt.Fprintf(out, "%s:\n", heading)
	for _, r := range rules {
		fmt.Fprintf(out, "  - %s\n", r)
	}
}

func printProfile(out io.Writer, label string, p types.EmotionProfile) {
	fmt.Fprintf(out, "Emotion:    %s\n", label)
	fmt.Fprintf(out, "Samples:    %d (avg rating %.1f)\n", p.SampleCount, p.AvgRating)
	for _, d := range types.Dimensions {
		fmt.Fprintf(out, "%-11s %s\n", strings.ToUpper(string(d[:1]))+string(d[1:])+":", formatRange(p, d))
	}
	if p.Template != "" {
		fmt.Fprintf(out, "Template:   %s\n", p.Template)
	}
	printRules(out, "Principles", p.Principles)
	printRules(out, "Anti-patterns", p.AntiPatterns)
}

func formatRange(p types.EmotionProfile, d types.Dimension) string {
	r, ok := p.RangeFor(d)
	if !ok {
		return "-"
	}
	return fmt.Sprintf("%d-%d", r.Lo(), r.Hi())
}
