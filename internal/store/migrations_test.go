//go:build integration

package store

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func openMigrated(t *testing.T) *sql.DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := RunMigrations(db); err != nil {
		t.Fatalf("RunMigrations failed: %v", err)
	}
	return db
}

func TestRunMigrations_FreshDatabase(t *testing.T) {
	// Given: A fresh database
	// When: RunMigrations is called
	db := openMigrated(t)

	// Then: Both tables exist with the expected columns
	if _, err := db.Exec(`SELECT seq, id, created_at, rating, emotion, record FROM sessions LIMIT 0`); err != nil {
		t.Fatalf("sessions missing required columns: %v", err)
	}
	if _, err := db.Exec(`SELECT id, version, snapshot, updated_at FROM knowledge LIMIT 0`); err != nil {
		t.Fatalf("knowledge missing required columns: %v", err)
	}
}

func TestRunMigrations_Idempotent(t *testing.T) {
	// Given: A database that has already been migrated
	db := openMigrated(t)

	// When: RunMigrations is called again
	err := RunMigrations(db)

	// Then: No error occurs
	if err != nil {
		t.Fatalf("second migration should be idempotent, got error: %v", err)
	}
}

func TestSchema_SessionsAreAppendOnly(t *testing.T) {
	// Given: A migrated database with one session row
	db := openMigrated(t)
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := db.Exec(`INSERT INTO sessions (id, created_at, rating, emotion, record) VALUES ('s1', ?, 4, 'calm', '{}')`, now)
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	// When: The row is updated or deleted
	_, updErr := db.Exec(`UPDATE sessions SET rating = 1 WHERE id = 's1'`)
	_, delErr := db.Exec(`DELETE FROM sessions WHERE id = 's1'`)

	// Then: Both statements are rejected
	if updErr == nil {
		t.Error("UPDATE on sessions should be rejected")
	}
	if delErr == nil {
		t.Error("DELETE on sessions should be rejected")
	}
}

func TestSchema_RatingCheck(t *testing.T) {
	db := openMigrated(t)
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := db.Exec(`INSERT INTO sessions (id, created_at, rating, record) VALUES ('s1', ?, 9, '{}')`, now)
	if err == nil {
		t.Error("rating outside 1-5 should violate the CHECK constraint")
	}
}

func TestSchema_KnowledgeSingleRow(t *testing.T) {
	db := openMigrated(t)
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := db.Exec(`INSERT INTO knowledge (id, version, snapshot, updated_at) VALUES (2, 1, '{}', ?)`, now)
	if err == nil {
		t.Error("knowledge row with id != 1 should be rejected")
	}
}

func TestSchema_Indexes(t *testing.T) {
	db := openMigrated(t)

	var name string
	err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type='index' AND name='idx_sessions_emotion_rating'`).Scan(&name)
	if err != nil {
		t.Errorf("index idx_sessions_emotion_rating not found: %v", err)
	}
}

func TestWALMode_Enabled(t *testing.T) {
	// Given: A new file-backed SQLiteStore
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer store.Close()

	// Then: WAL mode is enabled
	var journalMode string
	if err := store.db.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		t.Fatalf("failed to query journal_mode: %v", err)
	}
	if journalMode != "wal" {
		t.Errorf("expected journal_mode 'wal', got %q", journalMode)
	}
}
