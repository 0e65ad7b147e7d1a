// Package knowledge is the handle through which the fusion engine, the
// prompt orchestrator and the reflection engine share the learned-rules
// snapshot.
package knowledge

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hyperengineering/resonance/internal/store"
	"github.com/hyperengineering/resonance/internal/types"
)

// Neutral generation parameters used until reflection learns better ones.
const (
	DefaultTemperature   = 1.0
	DefaultGuidanceScale = 3.0
	DefaultMaxTokens     = 256
)

// HistoryWindow bounds the trailing (rating, parameters) history.
const HistoryWindow = 10

// MaxGlobalRules bounds each of the positive and negative rule lists.
const MaxGlobalRules = 4

// Default returns the snapshot used before any reflection has run.
func Default() *types.Knowledge {
	return &types.Knowledge{
		GlobalRules:     types.GlobalRules{Positive: []string{}, Negative: []string{}},
		EmotionProfiles: map[string]types.EmotionProfile{},
		GenerationInsights: types.GenerationInsights{
			BestTemperature:   DefaultTemperature,
			BestGuidanceScale: DefaultGuidanceScale,
			BestMaxTokens:     DefaultMaxTokens,
			History:           []types.ParamObservation{},
		},
	}
}

// Base loads and saves the knowledge snapshot and caches the last one seen.
// Readers get deep copies, so a snapshot handed out is never mutated.
type Base struct {
	store store.KnowledgeStore

	mu      sync.RWMutex
	current *types.Knowledge
}

// New creates a Base backed by s.
func New(s store.KnowledgeStore) *Base {
	return &Base{store: s}
}

// Load returns the persisted snapshot, or the default snapshot when none
// has been saved yet. Missing fields are defaulted.
func (b *Base) Load(ctx context.Context) (*types.Knowledge, error) {
	k, err := b.store.LoadKnowledge(ctx)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("load knowledge: %w", err)
		}
		k = Default()
	}
	Normalize(k)

	b.mu.Lock()
	b.current = k
	b.mu.Unlock()

	return k.Clone(), nil
}

// Current returns the last loaded or saved snapshot without touching
// storage, loading it first if nothing is cached.
func (b *Base) Current(ctx context.Context) (*types.Knowledge, error) {
	b.mu.RLock()
	k := b.current
	b.mu.RUnlock()
	if k != nil {
		return k.Clone(), nil
	}
	return b.Load(ctx)
}

// Save persists k as the new snapshot in one write and caches it. The
// snapshot's version counter advances past both k and the cached snapshot.
func (b *Base) Save(ctx context.Context, k *types.Knowledge) error {
	snap := k.Clone()
	Normalize(snap)

	b.mu.RLock()
	last := snap.Version
	if b.current != nil {
		last = max(last, b.current.Version)
	}
	b.mu.RUnlock()
	snap.Version = last + 1

	if err := b.store.SaveKnowledge(ctx, snap); err != nil {
		return fmt.Errorf("save knowledge: %w", err)
	}

	b.mu.Lock()
	b.current = snap
	b.mu.Unlock()
	return nil
}

// LookupEmotion returns the learned profile for label, matched
// case-insensitively.
func (b *Base) LookupEmotion(ctx context.Context, label string) (types.EmotionProfile, bool, error) {
	k, err := b.Load(ctx)
	if err != nil {
		return types.EmotionProfile{}, false, err
	}
	p, ok := Lookup(k, label)
	return p, ok, nil
}

// Lookup finds the profile for label in k.
func Lookup(k *types.Knowledge, label string) (types.EmotionProfile, bool) {
	if k == nil {
		return types.EmotionProfile{}, false
	}
	key := types.NormalizeEmotion(label)
	if key == "" {
		return types.EmotionProfile{}, false
	}
	p, ok := k.EmotionProfiles[key]
	return p, ok
}

// Normalize fills missing fields with defaults, lowercases emotion keys,
// orders every range and trims bounded lists.
func Normalize(k *types.Knowledge) {
	if k.Version < 0 {
		k.Version = 0
	}
	if k.GlobalRules.Positive == nil {
		k.GlobalRules.Positive = []string{}
	}
	if k.GlobalRules.Negative == nil {
		k.GlobalRules.Negative = []string{}
	}
	k.GlobalRules.Positive = truncate(k.GlobalRules.Positive, MaxGlobalRules)
	k.GlobalRules.Negative = truncate(k.GlobalRules.Negative, MaxGlobalRules)

	profiles := make(map[string]types.EmotionProfile, len(k.EmotionProfiles))
	for label, p := range k.EmotionProfiles {
		key := types.NormalizeEmotion(label)
		if key == "" {
			continue
		}
		for _, d := range types.Dimensions {
			if r, ok := p.RangeFor(d); ok {
				p.SetRange(d, r)
			}
		}
		if p.Principles == nil {
			p.Principles = []string{}
		}
		if p.AntiPatterns == nil {
			p.AntiPatterns = []string{}
		}
		profiles[key] = p
	}
	k.EmotionProfiles = profiles

	g := &k.GenerationInsights
	if g.BestTemperature == 0 {
		g.BestTemperature = DefaultTemperature
	}
	if g.BestGuidanceScale == 0 {
		g.BestGuidanceScale = DefaultGuidanceScale
	}
	if g.BestMaxTokens == 0 {
		g.BestMaxTokens = DefaultMaxTokens
	}
	if g.History == nil {
		g.History = []types.ParamObservation{}
	}
	if len(g.History) > HistoryWindow {
		g.History = g.History[len(g.History)-HistoryWindow:]
	}
}

func truncate(s []string, n int) []string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
