package fusion

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hyperengineering/resonance/internal/llm"
	"github.com/hyperengineering/resonance/internal/types"
)

// staticKnowledge implements KnowledgeReader for testing
type staticKnowledge struct {
	k   *types.Knowledge
	err error
}

func (s staticKnowledge) Load(ctx context.Context) (*types.Knowledge, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.k == nil {
		return &types.Knowledge{EmotionProfiles: map[string]types.EmotionProfile{}}, nil
	}
	return s.k.Clone(), nil
}

// staticSessions implements SessionReader for testing
type staticSessions []types.SessionRecord

func (s staticSessions) LoadAll(ctx context.Context) ([]types.SessionRecord, error) {
	return s, nil
}

func reply(s string) llm.Completer {
	return llm.CompleterFunc(func(ctx context.Context, req llm.Request) (string, error) {
		return s, nil
	})
}

func knowledgeWith(emotion string, ranges map[types.Dimension]types.Range) *types.Knowledge {
	p := types.EmotionProfile{SampleCount: 5}
	for d, r := range ranges {
		p.SetRange(d, r)
	}
	return &types.Knowledge{EmotionProfiles: map[string]types.EmotionProfile{emotion: p}}
}

func highRated(emotion string, s types.Sliders) types.SessionRecord {
	return types.SessionRecord{Rating: 5, FinalProfile: types.Profile{Emotion: emotion, Sliders: s}}
}

var textSignal = []types.MoodSignal{{Source: "text", Moods: []string{"sad"}, Energy: 0.2}}

func TestClampToRange_InsideIsUnchanged(t *testing.T) {
	r := types.Range{40, 60}
	for v := 40; v <= 60; v++ {
		if got := ClampToRange(v, r); got != v {
			t.Errorf("ClampToRange(%d, %v) = %d, want unchanged", v, r, got)
		}
	}
}

func TestClampToRange_BoundaryPull(t *testing.T) {
	tests := []struct {
		name string
		v    int
		r    types.Range
		want int
	}{
		{"below", 10, types.Range{40, 60}, 31},        // 0.3*10 + 0.7*40
		{"above", 90, types.Range{40, 60}, 69},        // 0.3*90 + 0.7*60
		{"grief energy", 70, types.Range{18, 25}, 39}, // 21 + 17.5 = 38.5
		{"reversed range", 0, types.Range{60, 40}, 28},
		{"exact half below", 0, types.Range{45, 60}, 32}, // 31.5
		{"exact half single point", 0, types.Range{45, 45}, 32},
		{"exact half above", 100, types.Range{40, 45}, 62},    // 30 + 31.5
		{"exact half low energy", 5, types.Range{40, 50}, 30}, // 1.5 + 28 = 29.5
		{"negative input", -10, types.Range{5, 10}, 1},        // -3 + 3.5 = 0.5
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClampToRange(tt.v, tt.r); got != tt.want {
				t.Errorf("ClampToRange(%d, %v) = %d, want %d", tt.v, tt.r, got, tt.want)
			}
		})
	}
}

func TestClampToRange_HalvesRoundUp(t *testing.T) {
	// Every out-of-range slider value against every bound must round
	// 0.3v + 0.7b the same way an exact decimal would.
	for b := 0; b <= 100; b++ {
		for v := 0; v < b; v++ {
			tenths := 3*v + 7*b
			want := tenths / 10
			if tenths%10 >= 5 {
				want++
			}
			if got := ClampToRange(v, types.Range{b, 100}); got != want {
				t.Fatalf("ClampToRange(%d, [%d,100]) = %d, want %d", v, b, got, want)
			}
		}
	}
}

func TestBias(t *testing.T) {
	raw := types.Sliders{Energy: 70, Style: 50, Warmth: 10, Arc: 30}

	t.Run("entry clamps only learned dimensions", func(t *testing.T) {
		var entry types.EmotionProfile
		entry.SetRange(types.DimensionEnergy, types.Range{18, 25})
		got, method := Bias(raw, &entry, &types.Sliders{Energy: 0})
		if method != BiasClamp {
			t.Errorf("method = %q, want clamp", method)
		}
		if got.Energy != 39 || got.Style != 50 || got.Warmth != 10 || got.Arc != 30 {
			t.Errorf("Bias() = %+v", got)
		}
	})

	t.Run("learned defaults are averaged", func(t *testing.T) {
		learned := types.Sliders{Energy: 20, Style: 51, Warmth: 10, Arc: 30}
		got, method := Bias(raw, nil, &learned)
		if method != BiasAverage {
			t.Errorf("method = %q, want average", method)
		}
		want := types.Sliders{Energy: 45, Style: 51, Warmth: 10, Arc: 30} // 50.5 rounds to 51
		if got != want {
			t.Errorf("Bias() = %+v, want %+v", got, want)
		}
	})

	t.Run("no knowledge leaves values", func(t *testing.T) {
		got, method := Bias(raw, nil, nil)
		if method != BiasNone || got != raw {
			t.Errorf("Bias() = %+v, %q", got, method)
		}
	})
}

func TestFuse_NoSignals(t *testing.T) {
	e := New(reply("{}"), staticKnowledge{}, nil, 0.5)
	if _, err := e.Fuse(context.Background(), nil); !errors.Is(err, ErrNoSignals) {
		t.Errorf("Fuse(nil) error = %v, want ErrNoSignals", err)
	}
}

func TestFuse_ClampsTowardLearnedRange(t *testing.T) {
	// Given: Knowledge that grief lives at energy 18-25
	k := knowledgeWith("grief", map[types.Dimension]types.Range{types.DimensionEnergy: {18, 25}})
	c := reply(`{"emotion":"Grief","emotions":["grief","longing"],"energy":70,"style":40,"warmth":30,"arc":20}`)
	e := New(c, staticKnowledge{k: k}, staticSessions{}, 0.5)

	// When: A new grief signal is fused
	p, err := e.Fuse(context.Background(), textSignal)

	// Then: Energy is pulled toward 25 and other dimensions are untouched
	if err != nil {
		t.Fatalf("Fuse() error = %v", err)
	}
	if p.Emotion != "grief" {
		t.Errorf("Emotion = %q", p.Emotion)
	}
	if p.Energy != 39 {
		t.Errorf("Energy = %d, want 39", p.Energy)
	}
	if p.Style != 40 || p.Warmth != 30 || p.Arc != 20 {
		t.Errorf("unclamped dimensions changed: %+v", p.Sliders)
	}
	if len(p.Sources) != 1 || p.Sources[0] != "text" {
		t.Errorf("Sources = %v", p.Sources)
	}
}

func TestFuse_FallsBackToLearnedDefaults(t *testing.T) {
	// Given: No per-emotion entry but two high-rated joy sessions
	sessions := staticSessions{
		highRated("joy", types.Sliders{Energy: 60, Style: 50, Warmth: 50, Arc: 50}),
		highRated("joy", types.Sliders{Energy: 80, Style: 50, Warmth: 50, Arc: 50}),
	}
	c := reply(`{"emotion":"joy","emotions":["joy"],"energy":90,"style":50,"warmth":50,"arc":50}`)
	e := New(c, staticKnowledge{}, sessions, 0.5)

	p, err := e.Fuse(context.Background(), textSignal)
	if err != nil {
		t.Fatalf("Fuse() error = %v", err)
	}
	if p.Energy != 80 { // mean of raw 90 and learned 70
		t.Errorf("Energy = %d, want 80", p.Energy)
	}
}

func TestFuse_NoKnowledgeKeepsRawValues(t *testing.T) {
	c := reply("```json\n{\"emotion\":\"calm\",\"emotions\":[],\"energy\":150,\"style\":-4,\"warmth\":33,\"arc\":12}\n```")
	e := New(c, staticKnowledge{}, staticSessions{highRated("calm", types.Sliders{})}, 0.5)

	p, err := e.Fuse(context.Background(), textSignal)
	if err != nil {
		t.Fatalf("Fuse() error = %v", err)
	}
	want := types.Sliders{Energy: 100, Style: 0, Warmth: 33, Arc: 12}
	if p.Sliders != want {
		t.Errorf("Sliders = %+v, want %+v (clamped into 0-100)", p.Sliders, want)
	}
	if len(p.Emotions) != 1 || p.Emotions[0] != "calm" {
		t.Errorf("Emotions = %v, want dominant emotion first", p.Emotions)
	}
}

func TestFuse_MalformedIsFatal(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{"not json", "The user seems sad."},
		{"missing emotion", `{"emotion":"","emotions":[],"energy":1,"style":1,"warmth":1,"arc":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := New(reply(tt.reply), staticKnowledge{}, nil, 0.5)
			_, err := e.Fuse(context.Background(), textSignal)
			if !errors.Is(err, llm.ErrMalformedResponse) {
				t.Errorf("Fuse() error = %v, want ErrMalformedResponse", err)
			}
		})
	}
}

func TestFuse_CapsEmotionTags(t *testing.T) {
	c := reply(`{"emotion":"joy","emotions":["awe","joy","hope","pride","relief"],"energy":50,"style":50,"warmth":50,"arc":50}`)
	p, err := New(c, staticKnowledge{}, nil, 0.5).Fuse(context.Background(), textSignal)
	if err != nil {
		t.Fatalf("Fuse() error = %v", err)
	}
	if strings.Join(p.Emotions, ",") != "joy,awe,hope" {
		t.Errorf("Emotions = %v, want [joy awe hope]", p.Emotions)
	}
}

func TestFuse_PromptMentionsEverySignal(t *testing.T) {
	var prompt string
	c := llm.CompleterFunc(func(ctx context.Context, req llm.Request) (string, error) {
		prompt = req.Parts[0].Text
		return `{"emotion":"joy","emotions":["joy"],"energy":50,"style":50,"warmth":50,"arc":50}`, nil
	})
	signals := []types.MoodSignal{
		{Source: "text", Moods: []string{"sad"}, Energy: 0.2},
		{Source: "image", Moods: []string{"bright"}, Energy: 0.9, Caption: "a sunrise"},
	}

	p, err := New(c, staticKnowledge{}, nil, 0.5).Fuse(context.Background(), signals)
	if err != nil {
		t.Fatalf("Fuse() error = %v", err)
	}
	for _, want := range []string{"Source: text", "Source: image", "a sunrise"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if len(p.Sources) != 2 {
		t.Errorf("Sources = %v, want both modalities", p.Sources)
	}
}

func TestFuse_KnowledgeErrorSurfaces(t *testing.T) {
	boom := errors.New("store offline")
	c := reply(`{"emotion":"joy","emotions":["joy"],"energy":50,"style":50,"warmth":50,"arc":50}`)
	if _, err := New(c, staticKnowledge{err: boom}, nil, 0.5).Fuse(context.Background(), textSignal); !errors.Is(err, boom) {
		t.Errorf("Fuse() error = %v, want knowledge error", err)
	}
}
