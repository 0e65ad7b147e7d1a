package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/hyperengineering/resonance/internal/types"
)

// Reflector runs gated reflection. Implemented by pipeline.Service, which
// serializes it with rating appends.
type Reflector interface {
	Reflect(ctx context.Context, force bool) (*types.ReflectionReport, error)
}

// ReflectionCoordinator re-checks the reflection gate on an interval, which
// picks up sessions appended by another process sharing the store.
type ReflectionCoordinator struct {
	reflector Reflector
	interval  time.Duration
}

// NewReflectionCoordinator creates a coordinator for periodic reflection.
func NewReflectionCoordinator(reflector Reflector, interval time.Duration) *ReflectionCoordinator {
	return &ReflectionCoordinator{
		reflector: reflector,
		interval:  interval,
	}
}

// Run starts the coordinator loop. It blocks until ctx is cancelled.
//
// The first check happens after one interval; ratings made through this
// process already trigger reflection inline.
func (c *ReflectionCoordinator) Run(ctx context.Context) {
	slog.Info("reflection coordinator started",
		"component", "worker",
		"worker", "reflection-coordinator",
		"interval", c.interval.String(),
	)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("reflection coordinator stopped",
				"component", "worker",
				"worker", "reflection-coordinator",
				"reason", "context_cancelled",
			)
			return
		case <-ticker.C:
			c.check(ctx)
		}
	}
}

// check runs reflection if the gate is open and logs the outcome.
// Returns true when a run completed.
func (c *ReflectionCoordinator) check(ctx context.Context) bool {
	start := time.Now()
	report, err := c.reflector.Reflect(ctx, false)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		slog.Error("scheduled reflection failed",
			"component", "worker",
			"worker", "reflection-coordinator",
			"error", err,
		)
		return false
	}
	if !report.Ran {
		slog.Debug("reflection gate closed",
			"component", "worker",
			"worker", "reflection-coordinator",
			"reason", report.Reason,
		)
		return false
	}

	slog.Info("scheduled reflection completed",
		"component", "worker",
		"worker", "reflection-coordinator",
		"reflection_count", report.ReflectionCount,
		"entries_analyzed", report.EntriesAnalyzed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return true
}
