package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/hyperengineering/resonance/internal/snapshot"
	"github.com/hyperengineering/resonance/internal/types"
)

// KnowledgeLoader supplies the current knowledge snapshot.
type KnowledgeLoader interface {
	Load(ctx context.Context) (*types.Knowledge, error)
}

// SnapshotCoordinator republishes the knowledge snapshot whenever its
// reflection count differs from the last one published. Publishing right
// after reflection is best-effort; this loop catches what it missed.
type SnapshotCoordinator struct {
	knowledge KnowledgeLoader
	publisher snapshot.Publisher
	interval  time.Duration

	published int
}

// NewSnapshotCoordinator creates a coordinator that publishes through publisher.
func NewSnapshotCoordinator(knowledge KnowledgeLoader, publisher snapshot.Publisher, interval time.Duration) *SnapshotCoordinator {
	return &SnapshotCoordinator{
		knowledge: knowledge,
		publisher: publisher,
		interval:  interval,
		published: -1,
	}
}

// Run starts the coordinator loop. Publishes immediately on start, then on
// each interval.
func (c *SnapshotCoordinator) Run(ctx context.Context) {
	slog.Info("worker started",
		"component", "worker",
		"worker", "snapshot-coordinator",
		"action", "worker_started",
	)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.publish(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopped",
				"component", "worker",
				"worker", "snapshot-coordinator",
				"action", "worker_stopped",
				"reason", "context_cancelled",
			)
			return
		case <-ticker.C:
			c.publish(ctx)
		}
	}
}

// publish uploads the snapshot if it changed. Returns true if it uploaded.
func (c *SnapshotCoordinator) publish(ctx context.Context) bool {
	k, err := c.knowledge.Load(ctx)
	if err != nil {
		slog.Warn("failed to load knowledge for snapshot",
			"component", "worker",
			"worker", "snapshot-coordinator",
			"action", "snapshot_failed",
			"error", err,
		)
		return false
	}
	if k.ReflectionCount == c.published {
		return false
	}

	if err := c.publisher.Publish(ctx, k); err != nil {
		if ctx.Err() != nil {
			return false
		}
		slog.Warn("snapshot upload failed",
			"component", "worker",
			"worker", "snapshot-coordinator",
			"action", "snapshot_upload_failed",
			"reflection_count", k.ReflectionCount,
			"error", err,
		)
		return false
	}
	c.published = k.ReflectionCount

	slog.Info("snapshot uploaded",
		"component", "worker",
		"worker", "snapshot-coordinator",
		"action", "snapshot_uploaded",
		"reflection_count", k.ReflectionCount,
	)
	return true
}
