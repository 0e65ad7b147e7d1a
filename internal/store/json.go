package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/hyperengineering/resonance/internal/types"
)

// Compile-time interface check
var _ Store = (*JSONStore)(nil)

// JSONStore keeps the session log and the knowledge snapshot as two JSON
// documents on disk. The session file holds a single array of records.
type JSONStore struct {
	mu            sync.Mutex
	sessionsPath  string
	knowledgePath string
}

// NewJSONStore returns a store backed by the given files. Neither file needs
// to exist yet.
func NewJSONStore(sessionsPath, knowledgePath string) *JSONStore {
	return &JSONStore{sessionsPath: sessionsPath, knowledgePath: knowledgePath}
}

// Close is a no-op; every write is flushed before it returns.
func (s *JSONStore) Close() error {
	return nil
}

// Append validates rec and rewrites the session file with rec appended.
func (s *JSONStore) Append(ctx context.Context, rec types.SessionRecord) (*types.SessionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prepared, err := prepareRecord(rec)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.readSessions()
	if err != nil {
		return nil, err
	}
	for _, existing := range records {
		if existing.ID == prepared.ID {
			return nil, fmt.Errorf("insert session: duplicate id %s", prepared.ID)
		}
	}
	records = append(records, *prepared)

	if err := writeJSONFileAtomic(s.sessionsPath, records); err != nil {
		return nil, fmt.Errorf("write sessions: %w", err)
	}
	return prepared, nil
}

// LoadAll returns every session record in insertion order.
func (s *JSONStore) LoadAll(ctx context.Context) ([]types.SessionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readSessions()
}

// Count returns the number of stored session records.
func (s *JSONStore) Count(ctx context.Context) (int, error) {
	records, err := s.LoadAll(ctx)
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

// LoadKnowledge returns the stored snapshot or ErrNotFound.
func (s *JSONStore) LoadKnowledge(ctx context.Context) (*types.Knowledge, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.knowledgePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read knowledge: %w", err)
	}

	var k types.Knowledge
	if err := json.Unmarshal(data, &k); err != nil {
		return nil, fmt.Errorf("parse knowledge snapshot: %w", err)
	}
	return &k, nil
}

// SaveKnowledge atomically replaces the knowledge file.
func (s *JSONStore) SaveKnowledge(ctx context.Context, k *types.Knowledge) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeJSONFileAtomic(s.knowledgePath, k); err != nil {
		return fmt.Errorf("write knowledge: %w", err)
	}
	return nil
}

// readSessions loads the session file. A missing or empty file is an empty log.
func (s *JSONStore) readSessions() ([]types.SessionRecord, error) {
	data, err := os.ReadFile(s.sessionsPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []types.SessionRecord{}, nil
		}
		return nil, fmt.Errorf("read sessions: %w", err)
	}
	if len(data) == 0 {
		return []types.SessionRecord{}, nil
	}

	records := []types.SessionRecord{}
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse sessions: %w", err)
	}
	return records, nil
}

// writeJSONFileAtomic writes v as indented JSON to a temp file in the target
// directory and renames it into place.
func writeJSONFileAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".tmp_"+filepath.Base(path)+"_*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		return err
	}
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}
