package deadletter

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLiteStore persists records to SQLite.
// It is suitable for single-process production use.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewSQLiteStore opens or creates a SQLite store at path.
// Use ":memory:" for a throwaway database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared across queries
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS dead_letters (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			runner TEXT NOT NULL,
			destination TEXT NOT NULL,
			kind TEXT NOT NULL,
			envelope_id TEXT NOT NULL,
			reason TEXT NOT NULL,
			error TEXT NOT NULL,
			payload BLOB,
			at TEXT NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_dead_letters_kind
		ON dead_letters(kind)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create index: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Record implements Store.
func (s *SQLiteStore) Record(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dead_letters (id, runner, destination, kind, envelope_id, reason, error, payload, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.Runner, rec.Destination, rec.Kind, rec.EnvelopeID,
		string(rec.Reason), rec.Error, rec.Payload, rec.At.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("record dead letter: %w", err)
	}
	return nil
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, runner, destination, kind, envelope_id, reason, error, payload, at
		FROM dead_letters
		ORDER BY seq ASC
		LIMIT ?
	`, sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	return scanRecords(rows)
}

// ListByKind implements Store.
func (s *SQLiteStore) ListByKind(ctx context.Context, kind string, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, runner, destination, kind, envelope_id, reason, error, payload, at
		FROM dead_letters
		WHERE kind = ?
		ORDER BY seq ASC
		LIMIT ?
	`, kind, sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list dead letters by kind: %w", err)
	}
	return scanRecords(rows)
}

// Count implements Store.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, ErrStoreClosed
	}

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM dead_letters`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count dead letters: %w", err)
	}
	return n, nil
}

// CountByKind implements Store.
func (s *SQLiteStore) CountByKind(ctx context.Context) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.QueryContext(ctx, `SELECT kind, COUNT(*) FROM dead_letters GROUP BY kind`)
	if err != nil {
		return nil, fmt.Errorf("count dead letters by kind: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[kind] = n
	}
	return counts, rows.Err()
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// sqlLimit maps a non-positive limit to SQLite's "no limit".
func sqlLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	defer rows.Close()

	result := make([]Record, 0)
	for rows.Next() {
		var rec Record
		var reason, at string
		if err := rows.Scan(&rec.ID, &rec.Runner, &rec.Destination, &rec.Kind,
			&rec.EnvelopeID, &reason, &rec.Error, &rec.Payload, &at); err != nil {
			return nil, fmt.Errorf("scan dead letter: %w", err)
		}
		rec.Reason = Reason(reason)
		ts, err := time.Parse(time.RFC3339Nano, at)
		if err != nil {
			return nil, fmt.Errorf("parse timestamp: %w", err)
		}
		rec.At = ts
		result = append(result, rec)
	}
	return result, rows.Err()
}
