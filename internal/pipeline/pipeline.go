// Package pipeline runs one generation session end to end and records its
// rating, triggering reflection when enough sessions have accumulated.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hyperengineering/resonance/internal/analyzer"
	"github.com/hyperengineering/resonance/internal/store"
	"github.com/hyperengineering/resonance/internal/telemetry"
	"github.com/hyperengineering/resonance/internal/types"
	"github.com/hyperengineering/resonance/internal/validation"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Analyzer reads mood signals from raw input.
type Analyzer interface {
	AnalyzeAll(ctx context.Context, in analyzer.Input) ([]types.MoodSignal, error)
}

// Fuser blends signals into one profile.
type Fuser interface {
	Fuse(ctx context.Context, signals []types.MoodSignal) (*types.Profile, error)
}

// Composer writes the music prompt for a profile.
type Composer interface {
	Compose(ctx context.Context, profile types.Profile) (string, error)
}

// Renderer turns a prompt into audio buffers.
type Renderer interface {
	Render(ctx context.Context, prompt string, params types.GenerationParams, variations int) ([][]byte, error)
}

// Explainer narrates how the input became music.
type Explainer interface {
	Explain(ctx context.Context, ai, final types.Profile, prompt string) (*types.Explanation, error)
}

// Reflector runs the learning loop.
type Reflector interface {
	MaybeReflect(ctx context.Context) (*types.ReflectionReport, error)
	Reflect(ctx context.Context) (*types.ReflectionReport, error)
}

// KnowledgeReader supplies the current snapshot.
type KnowledgeReader interface {
	Load(ctx context.Context) (*types.Knowledge, error)
}

// Deps are the collaborators of a Service. Renderer and Explainer are
// optional; without them sessions carry no audio or explanation.
type Deps struct {
	Analyzer  Analyzer
	Fuser     Fuser
	Composer  Composer
	Renderer  Renderer
	Explainer Explainer
	Reflector Reflector
	Sessions  store.SessionStore
	Knowledge KnowledgeReader
}

// Options tune a Service.
type Options struct {
	DefaultMaxTokens int
	MaxPending       int
	Now              func() time.Time
}

// Service is the per-session flow.
type Service struct {
	deps    Deps
	opts    Options
	pending *pendingCache

	// mu serializes append-then-maybe-reflect.
	mu sync.Mutex

	tracer      trace.Tracer
	generations metric.Int64Counter
	ratings     metric.Int64Counter
}

// New creates a Service.
func New(deps Deps, opts Options) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	meter := telemetry.Meter("resonance/pipeline")
	return &Service{
		deps:        deps,
		opts:        opts,
		pending:     newPendingCache(opts.MaxPending),
		tracer:      telemetry.Tracer("resonance/pipeline"),
		generations: telemetry.Counter(meter, "resonance.generations", "Completed generation sessions"),
		ratings:     telemetry.Counter(meter, "resonance.ratings", "Rated sessions appended to the log"),
	}
}

// Generate analyzes the input, builds the final profile, composes the
// prompt and renders it. The session is kept pending until it is rated.
func (s *Service) Generate(ctx context.Context, req types.GenerateRequest) (*types.GenerateResponse, error) {
	if errs := validation.ValidateGenerateRequest(req); len(errs) > 0 {
		return nil, &RequestError{Errors: errs}
	}
	in := analyzer.Input{Text: req.Text, Image: req.Image, ImageMIME: req.ImageMIME, Voice: req.Voice}
	if in.Empty() {
		return nil, ErrNoInput
	}

	ctx, span := s.tracer.Start(ctx, "pipeline.generate")
	defer span.End()

	signals, err := s.deps.Analyzer.AnalyzeAll(ctx, in)
	if err != nil {
		return nil, err
	}
	ai, err := s.deps.Fuser.Fuse(ctx, signals)
	if err != nil {
		return nil, err
	}
	final := ApplyOverrides(*ai, req.Overrides)

	prompt, err := s.deps.Composer.Compose(ctx, final)
	if err != nil {
		return nil, err
	}

	params, err := s.generationParams(ctx, req.GenerationParams)
	if err != nil {
		return nil, err
	}
	variations := max(req.Variations, 1)

	var audio [][]byte
	if s.deps.Renderer != nil {
		audio, err = s.deps.Renderer.Render(ctx, prompt, params, variations)
		if err != nil {
			return nil, err
		}
	}

	var explanation *types.Explanation
	if s.deps.Explainer != nil {
		explanation, err = s.deps.Explainer.Explain(ctx, *ai, final, prompt)
		if err != nil {
			return nil, err
		}
	}

	id := ulid.Make().String()
	s.pending.put(id, pendingSession{
		AIProfile:    *ai,
		FinalProfile: final,
		MusicPrompt:  prompt,
		Params:       params,
		Variations:   variations,
	})
	s.generations.Add(ctx, 1, metric.WithAttributes(attribute.String("emotion", final.EmotionKey())))
	span.SetAttributes(attribute.String("session_id", id), attribute.String("emotion", final.EmotionKey()))

	slog.Info("session generated",
		"component", "pipeline",
		"session_id", id,
		"emotion", final.Emotion,
		"sources", strings.Join(ai.Sources, ","),
		"overrides", len(final.Overrides),
		"variations", variations,
	)

	return &types.GenerateResponse{
		SessionID:        id,
		Signals:          signals,
		AIProfile:        *ai,
		FinalProfile:     final,
		MusicPrompt:      prompt,
		GenerationParams: params,
		Audio:            audio,
		Explanation:      explanation,
	}, nil
}

// Rate appends the rated session to the log and runs reflection when the
// gate opens. A reflection failure is logged; the rating stays recorded.
func (s *Service) Rate(ctx context.Context, fb types.FeedbackRequest) (*types.FeedbackResponse, error) {
	if errs := validation.ValidateFeedbackRequest(fb); len(errs) > 0 {
		return nil, &RequestError{Errors: errs}
	}
	p, ok := s.pending.get(fb.SessionID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, fb.SessionID)
	}
	if fb.PreferredVersion != "" && p.Variations < 2 {
		return nil, &RequestError{Errors: []validation.ValidationError{{
			Field:   "preferred_version",
			Message: "session produced a single version",
		}}}
	}

	params := p.Params
	rec := types.SessionRecord{
		ID:               fb.SessionID,
		Timestamp:        s.opts.Now().UTC(),
		Rating:           fb.Rating,
		WouldReplay:      fb.WouldReplay,
		AIProfile:        p.AIProfile,
		FinalProfile:     p.FinalProfile,
		MusicPrompt:      p.MusicPrompt,
		PreferredVersion: fb.PreferredVersion,
		GenerationParams: &params,
		UserNote:         strings.TrimSpace(fb.Note),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.deps.Sessions.Append(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("record rating: %w", err)
	}
	s.pending.remove(fb.SessionID)
	s.ratings.Add(ctx, 1, metric.WithAttributes(attribute.Int("rating", stored.Rating)))

	resp := &types.FeedbackResponse{RecordID: stored.ID}
	if s.deps.Reflector != nil {
		report, err := s.deps.Reflector.MaybeReflect(ctx)
		switch {
		case err != nil:
			slog.Error("reflection after rating failed",
				"component", "pipeline",
				"session_id", stored.ID,
				"error", err,
			)
		case report.Ran:
			resp.Reflected = true
		}
	}

	summary, err := s.Summary(ctx)
	if err != nil {
		return nil, err
	}
	resp.Summary = summary

	slog.Info("session rated",
		"component", "pipeline",
		"session_id", stored.ID,
		"rating", stored.Rating,
		"reflected", resp.Reflected,
	)
	return resp, nil
}

// Summary aggregates the whole session log.
func (s *Service) Summary(ctx context.Context) (*types.FeedbackSummary, error) {
	records, err := s.deps.Sessions.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}
	return store.Summarize(records), nil
}

// Reflect runs reflection on demand. Without force the usual gate applies.
func (s *Service) Reflect(ctx context.Context, force bool) (*types.ReflectionReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if force {
		return s.deps.Reflector.Reflect(ctx)
	}
	return s.deps.Reflector.MaybeReflect(ctx)
}

// Pending returns the number of generated sessions awaiting a rating.
func (s *Service) Pending() int {
	return s.pending.len()
}

// generationParams returns explicit params when given, else the learned ones.
func (s *Service) generationParams(ctx context.Context, explicit *types.GenerationParams) (types.GenerationParams, error) {
	if explicit != nil {
		return *explicit, nil
	}
	k, err := s.deps.Knowledge.Load(ctx)
	if err != nil {
		return types.GenerationParams{}, err
	}
	params := k.GenerationInsights.Params()
	if params.MaxNewTokens <= 0 {
		params.MaxNewTokens = s.opts.DefaultMaxTokens
	}
	return params, nil
}

// ApplyOverrides returns the final profile: ai with every supplied slider
// that differs from the AI value replaced and listed in Overrides.
func ApplyOverrides(ai types.Profile, o *types.SliderOverrides) types.Profile {
	final := ai
	final.Emotions = append([]string(nil), ai.Emotions...)
	final.Sources = append([]string(nil), ai.Sources...)
	final.Overrides = nil
	for _, d := range types.Dimensions {
		v, ok := o.Get(d)
		if !ok || v == ai.Get(d) {
			continue
		}
		final.Set(d, v)
		final.Overrides = append(final.Overrides, string(d))
	}
	return final
}
