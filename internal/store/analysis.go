package store

import (
	"math"
	"sort"

	"github.com/hyperengineering/resonance/internal/types"
)

// Summarize aggregates records for display. It returns nil for an empty log.
func Summarize(records []types.SessionRecord) *types.FeedbackSummary {
	if len(records) == 0 {
		return nil
	}

	var ratingSum, replays, high int
	for _, r := range records {
		ratingSum += r.Rating
		if r.WouldReplay {
			replays++
		}
		if r.Rating >= types.HighRating {
			high++
		}
	}

	n := float64(len(records))
	return &types.FeedbackSummary{
		TotalSessions: len(records),
		AvgRating:     math.Round(float64(ratingSum)/n*10) / 10,
		ReplayRate:    int(math.Round(float64(replays) / n * 100)),
		HighRated:     high,
	}
}

// LearnedDefaults returns the mean final sliders of the high-rated sessions
// whose final emotion matches emotion. It needs at least two such sessions.
func LearnedDefaults(records []types.SessionRecord, emotion string) (types.Sliders, bool) {
	key := types.NormalizeEmotion(emotion)

	var sums [4]int
	matched := 0
	for _, r := range records {
		if r.Rating < types.HighRating || r.FinalProfile.EmotionKey() != key {
			continue
		}
		for i, d := range types.Dimensions {
			sums[i] += r.FinalProfile.Get(d)
		}
		matched++
	}
	if matched < 2 {
		return types.Sliders{}, false
	}

	var out types.Sliders
	for i, d := range types.Dimensions {
		out.Set(d, int(math.Round(float64(sums[i])/float64(matched))))
	}
	return out, true
}

// TopPrompts returns up to limit prompts of sessions with the given final
// emotion rated at least minRating, best rated first and newest first within
// a rating.
func TopPrompts(records []types.SessionRecord, emotion string, minRating, limit int) []string {
	key := types.NormalizeEmotion(emotion)

	matches := make([]types.SessionRecord, 0, len(records))
	for _, r := range records {
		if r.Rating >= minRating && r.MusicPrompt != "" && r.FinalProfile.EmotionKey() == key {
			matches = append(matches, r)
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Rating != matches[j].Rating {
			return matches[i].Rating > matches[j].Rating
		}
		return matches[i].Timestamp.After(matches[j].Timestamp)
	})

	if limit >= 0 && len(matches) > limit {
		matches = matches[:limit]
	}

	prompts := make([]string, len(matches))
	for i, r := range matches {
		prompts[i] = r.MusicPrompt
	}
	return prompts
}

// Partition splits records into high-rated (>= 4) and low-rated (<= 2) groups.
func Partition(records []types.SessionRecord) (high, low []types.SessionRecord) {
	for _, r := range records {
		switch {
		case r.Rating >= types.HighRating:
			high = append(high, r)
		case r.Rating <= types.LowRating:
			low = append(low, r)
		}
	}
	return high, low
}

// GroupByEmotion buckets records by the normalized final emotion.
func GroupByEmotion(records []types.SessionRecord) map[string][]types.SessionRecord {
	groups := make(map[string][]types.SessionRecord)
	for _, r := range records {
		key := r.FinalProfile.EmotionKey()
		if key == "" {
			continue
		}
		groups[key] = append(groups[key], r)
	}
	return groups
}
