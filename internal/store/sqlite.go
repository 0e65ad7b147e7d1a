package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hyperengineering/resonance/internal/types"
	"github.com/hyperengineering/resonance/internal/validation"
	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"
)

// Compile-time interface check
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore keeps session records and the knowledge snapshot in one SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLiteStore instance.
// It initializes the database with WAL mode, applies pragmas, and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single connection keeps ":memory:" databases coherent and serializes writers.
	db.SetMaxOpenConns(1)

	if err := enablePragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable pragmas: %w", err)
	}

	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// enablePragmas sets SQLite pragmas for optimal performance and safety.
func enablePragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Append validates and inserts one session record.
func (s *SQLiteStore) Append(ctx context.Context, rec types.SessionRecord) (*types.SessionRecord, error) {
	prepared, err := prepareRecord(rec)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(prepared)
	if err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, created_at, rating, emotion, record)
		VALUES (?, ?, ?, ?, ?)
	`, prepared.ID, prepared.Timestamp.Format(time.RFC3339Nano), prepared.Rating,
		prepared.FinalProfile.EmotionKey(), string(payload))
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}

	return prepared, nil
}

// LoadAll returns every session record in insertion order.
func (s *SQLiteStore) LoadAll(ctx context.Context) ([]types.SessionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT record FROM sessions ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	records := []types.SessionRecord{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		var rec types.SessionRecord
		if err := json.Unmarshal([]byte(payload), &rec); err != nil {
			return nil, fmt.Errorf("parse session record: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return records, nil
}

// Count returns the number of stored session records.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions").Scan(&count); err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return count, nil
}

// LoadKnowledge returns the stored snapshot or ErrNotFound.
func (s *SQLiteStore) LoadKnowledge(ctx context.Context) (*types.Knowledge, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT snapshot FROM knowledge WHERE id = 1`).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query knowledge: %w", err)
	}

	var k types.Knowledge
	if err := json.Unmarshal([]byte(payload), &k); err != nil {
		return nil, fmt.Errorf("parse knowledge snapshot: %w", err)
	}
	return &k, nil
}

// SaveKnowledge replaces the stored snapshot.
func (s *SQLiteStore) SaveKnowledge(ctx context.Context, k *types.Knowledge) error {
	payload, err := json.Marshal(k)
	if err != nil {
		return fmt.Errorf("marshal knowledge: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO knowledge (id, version, snapshot, updated_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			version = excluded.version,
			snapshot = excluded.snapshot,
			updated_at = excluded.updated_at
	`, k.Version, string(payload), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save knowledge: %w", err)
	}
	return nil
}

// prepareRecord fills generated fields and validates the record.
func prepareRecord(rec types.SessionRecord) (*types.SessionRecord, error) {
	if rec.ID == "" {
		rec.ID = ulid.Make().String()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	if errs := validation.ValidateSessionRecord(rec); len(errs) > 0 {
		return nil, &RecordError{Errors: errs}
	}
	return &rec, nil
}
