// Package reflection turns the rated session log into a new knowledge
// snapshot. A run is gated on how many sessions arrived since the last one
// and executes three best-effort phases before persisting once.
package reflection

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hyperengineering/resonance/internal/llm"
	"github.com/hyperengineering/resonance/internal/telemetry"
	"github.com/hyperengineering/resonance/internal/types"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// DefaultThreshold is the number of new sessions that triggers a run.
const DefaultThreshold = 5

// SessionReader supplies the full session log.
type SessionReader interface {
	LoadAll(ctx context.Context) ([]types.SessionRecord, error)
}

// KnowledgeBase loads and replaces the knowledge snapshot.
type KnowledgeBase interface {
	Load(ctx context.Context) (*types.Knowledge, error)
	Save(ctx context.Context, k *types.Knowledge) error
}

// Publisher receives every snapshot after it has been persisted.
type Publisher interface {
	Publish(ctx context.Context, k *types.Knowledge) error
}

// Options configure an Engine.
type Options struct {
	Threshold   int
	Temperature float64
	Publisher   Publisher
	// Now is the clock used to stamp snapshots; defaults to time.Now.
	Now func() time.Time
}

// Engine runs reflection.
type Engine struct {
	completer llm.Completer
	sessions  SessionReader
	knowledge KnowledgeBase
	opts      Options

	mu sync.Mutex

	tracer        trace.Tracer
	runs          metric.Int64Counter
	phaseFailures metric.Int64Counter
}

// New creates a reflection Engine.
func New(completer llm.Completer, sessions SessionReader, kb KnowledgeBase, opts Options) *Engine {
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	meter := telemetry.Meter("resonance/reflection")
	return &Engine{
		completer:     completer,
		sessions:      sessions,
		knowledge:     kb,
		opts:          opts,
		tracer:        telemetry.Tracer("resonance/reflection"),
		runs:          telemetry.Counter(meter, "resonance.reflection.runs", "Completed reflection runs"),
		phaseFailures: telemetry.Counter(meter, "resonance.reflection.phase_failures", "Reflection phases that failed and kept prior knowledge"),
	}
}

// Threshold returns the configured gate size.
func (e *Engine) Threshold() int {
	return e.opts.Threshold
}

// Gate reports whether a run is due for total stored sessions when analyzed
// of them were covered by the last run, and why not when it is not.
func Gate(total, analyzed, threshold int) (bool, string) {
	if total < threshold {
		return false, fmt.Sprintf("cold start: %d of %d sessions recorded", total, threshold)
	}
	if gap := total - analyzed; gap < threshold {
		return false, fmt.Sprintf("%d new sessions since last reflection, need %d", max(gap, 0), threshold)
	}
	return true, ""
}

// ShouldReflect evaluates the gate against the stored log and snapshot.
func (e *Engine) ShouldReflect(ctx context.Context) (bool, error) {
	records, err := e.sessions.LoadAll(ctx)
	if err != nil {
		return false, fmt.Errorf("load sessions: %w", err)
	}
	k, err := e.knowledge.Load(ctx)
	if err != nil {
		return false, err
	}
	ok, _ := Gate(len(records), k.EntriesAnalyzed, e.opts.Threshold)
	return ok, nil
}

// MaybeReflect runs reflection when the gate is open and otherwise returns
// a report with Ran=false and the reason.
func (e *Engine) MaybeReflect(ctx context.Context) (*types.ReflectionReport, error) {
	return e.run(ctx, false)
}

// Reflect runs reflection regardless of how many sessions arrived since the
// last run. The cold-start guard still applies.
func (e *Engine) Reflect(ctx context.Context) (*types.ReflectionReport, error) {
	return e.run(ctx, true)
}

func (e *Engine) run(ctx context.Context, force bool) (*types.ReflectionReport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	records, err := e.sessions.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}
	prev, err := e.knowledge.Load(ctx)
	if err != nil {
		return nil, err
	}

	analyzed := prev.EntriesAnalyzed
	if force {
		analyzed = 0
	}
	if ok, reason := Gate(len(records), analyzed, e.opts.Threshold); !ok {
		return &types.ReflectionReport{
			Ran:             false,
			Reason:          reason,
			EntriesAnalyzed: prev.EntriesAnalyzed,
			ReflectionCount: prev.ReflectionCount,
		}, nil
	}

	ctx, span := e.tracer.Start(ctx, "reflection.run",
		trace.WithAttributes(attribute.Int("sessions", len(records)), attribute.Bool("forced", force)))
	defer span.End()

	slog.Info("reflection started",
		"component", "reflection",
		"sessions", len(records),
		"previously_analyzed", prev.EntriesAnalyzed,
		"forced", force,
	)

	next := prev.Clone()
	results := []PhaseResult{
		e.extractGlobalRules(ctx, records, next),
	}
	emotions, emotionResult := e.profileEmotions(ctx, records, next)
	results = append(results, emotionResult, correlateParams(records, next))

	finalize(next, len(records), e.opts.Now())
	if err := e.knowledge.Save(ctx, next); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("persist reflection: %w", err)
	}

	report := &types.ReflectionReport{
		Ran:             true,
		EntriesAnalyzed: next.EntriesAnalyzed,
		ReflectionCount: next.ReflectionCount,
		Phases:          make(map[string]string, len(results)),
		Emotions:        emotions,
		FinishedAt:      next.LastReflection,
	}
	for _, r := range results {
		report.Phases[string(r.Phase)] = r.String()
		if r.Status == StatusFailed {
			e.phaseFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("phase", string(r.Phase))))
		}
	}
	e.runs.Add(ctx, 1)

	slog.Info("reflection completed",
		"component", "reflection",
		"reflection_count", next.ReflectionCount,
		"entries_analyzed", next.EntriesAnalyzed,
		"global_rules", report.Phases[string(PhaseGlobalRules)],
		"emotion_profiles", report.Phases[string(PhaseEmotionProfiles)],
		"generation_params", report.Phases[string(PhaseGenerationParams)],
	)

	if e.opts.Publisher != nil {
		if err := e.opts.Publisher.Publish(ctx, next); err != nil {
			slog.Warn("knowledge snapshot publish failed",
				"component", "reflection",
				"error", err,
			)
		}
	}

	return report, nil
}

// finalize stamps the run metadata on k.
func finalize(k *types.Knowledge, total int, now time.Time) {
	ts := now.UTC()
	k.LastReflection = &ts
	k.ReflectionCount++
	k.EntriesAnalyzed = total
}
