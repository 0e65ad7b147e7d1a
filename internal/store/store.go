package store

import (
	"context"
	"fmt"

	"github.com/hyperengineering/resonance/internal/config"
	"github.com/hyperengineering/resonance/internal/types"
)

// SessionStore is the append-only log of rated sessions.
type SessionStore interface {
	// Append validates rec and adds it after every existing record.
	// An empty ID and a zero Timestamp are filled in.
	Append(ctx context.Context, rec types.SessionRecord) (*types.SessionRecord, error)
	// LoadAll returns every record in insertion order. A store that has
	// never been written to returns an empty slice.
	LoadAll(ctx context.Context) ([]types.SessionRecord, error)
	Count(ctx context.Context) (int, error)
}

// KnowledgeStore persists the single knowledge snapshot.
type KnowledgeStore interface {
	// LoadKnowledge returns ErrNotFound when no snapshot was ever saved.
	LoadKnowledge(ctx context.Context) (*types.Knowledge, error)
	// SaveKnowledge replaces the stored snapshot in one atomic write.
	SaveKnowledge(ctx context.Context, k *types.Knowledge) error
}

// Store is implemented by every persistence backend.
type Store interface {
	SessionStore
	KnowledgeStore
	Close() error
}

// Open returns the backend selected by cfg.
func Open(cfg config.StorageConfig) (Store, error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		return NewSQLiteStore(cfg.Path)
	case config.BackendJSON:
		return NewJSONStore(cfg.SessionsFile, cfg.KnowledgeFile), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
