package main

import (
	"fmt"
	"math"
	"sort"

	"github.com/hyperengineering/resonance/internal/store"
	"github.com/hyperengineering/resonance/internal/types"
	"github.com/spf13/cobra"
)

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show rating statistics for the session log",
	Args:  cobra.NoArgs,
	RunE:  runSummary,
}

func init() {
	summaryCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
}

// emotionStats is one row of the per-emotion breakdown.
type emotionStats struct {
	Emotion   string  `json:"emotion"`
	Sessions  int     `json:"sessions"`
	AvgRating float64 `json:"avg_rating"`
}

type summaryOutput struct {
	*types.FeedbackSummary
	Emotions []emotionStats `json:"emotions"`
}

func runSummary(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadCLIConfig(cmd)
	if err != nil {
		return err
	}

	st, _, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	records, err := st.LoadAll(ctx)
	if err != nil {
		return err
	}
	summary := store.Summarize(records)
	if summary == nil {
		summary = &types.FeedbackSummary{}
	}
	result := summaryOutput{FeedbackSummary: summary, Emotions: breakdown(records)}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(out, result)
	}

	if summary.TotalSessions == 0 {
		fmt.Fprintln(out, "No sessions recorded yet.")
		return nil
	}
	fmt.Fprintf(out, "Sessions:    %d\n", summary.TotalSessions)
	fmt.Fprintf(out, "Avg rating:  %.1f\n", summary.AvgRating)
	fmt.Fprintf(out, "Replay rate: %d%%\n", summary.ReplayRate)
	fmt.Fprintf(out, "High rated:  %d\n", summary.HighRated)

	fmt.Fprintln(out)
	tw := newTabWriter(out)
	fmt.Fprintln(tw, "EMOTION\tSESSIONS\tAVG RATING")
	for _, e := range result.Emotions {
		fmt.Fprintf(tw, "%s\t%d\t%.1f\n", e.Emotion, e.Sessions, e.AvgRating)
	}
	return tw.Flush()
}

// breakdown groups records by final emotion, most sessions first.
func breakdown(records []types.SessionRecord) []emotionStats {
	groups := store.GroupByEmotion(records)
	stats := make([]emotionStats, 0, len(groups))
	for emotion, recs := range groups {
		sum := 0
		for _, r := range recs {
			sum += r.Rating
		}
		stats = append(stats, emotionStats{
			Emotion:   emotion,
			Sessions:  len(recs),
			AvgRating: math.Round(float64(sum)/float64(len(recs))*10) / 10,
		})
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Sessions != stats[j].Sessions {
			return stats[i].Sessions > stats[j].Sessions
		}
		return stats[i].Emotion < stats[j].Emotion
	})
	return stats
}
