package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/parley-chat/parley/internal/chat"
)

// SQLiteStore persists sessions in a single SQLite table, one row per
// session key with the transcript serialized as JSON.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the SQLite database at path and applies
// the schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			session_key TEXT PRIMARY KEY,
			created_at  TIMESTAMP NOT NULL,
			updated_at  TIMESTAMP NOT NULL,
			transcript  TEXT NOT NULL
		)
	`)
	return err
}

// Get retrieves the session stored under key, or ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, key string) (*chat.Session, error) {
	var createdAt time.Time
	var transcript string
	err := s.db.QueryRowContext(ctx,
		`SELECT created_at, transcript FROM sessions WHERE session_key = ?`, key,
	).Scan(&createdAt, &transcript)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query session %q: %w", key, err)
	}

	var turns []chat.Turn
	if err := json.Unmarshal([]byte(transcript), &turns); err != nil {
		return nil, fmt.Errorf("decode session %q: %w", key, err)
	}
	return &chat.Session{Key: key, CreatedAt: createdAt, Turns: turns}, nil
}

// Put stores the full session snapshot under key. The upsert is a single
// statement, so readers observe either the previous transcript or the new
// one in full.
func (s *SQLiteStore) Put(ctx context.Context, key string, sess *chat.Session) error {
	transcript, err := json.Marshal(sess.Turns)
	if err != nil {
		return fmt.Errorf("encode session %q: %w", key, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (session_key, created_at, updated_at, transcript)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(session_key) DO UPDATE SET
			updated_at = excluded.updated_at,
			transcript = excluded.transcript
	`, key, sess.CreatedAt, time.Now().UTC(), string(transcript))
	if err != nil {
		return fmt.Errorf("write session %q: %w", key, err)
	}
	return nil
}

// Delete removes the session stored under key.
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE session_key = ?`, key); err != nil {
		return fmt.Errorf("delete session %q: %w", key, err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
