package idempotency

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SQLiteStore persists idempotency records in sqlite. Rows are evicted by
// the scheduler's TTL sweep, not by the store itself.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates the store and its table.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	schema := `
	CREATE TABLE IF NOT EXISTS idempotency_records (
		key          TEXT PRIMARY KEY,
		request_hash TEXT NOT NULL,
		run_id       TEXT NOT NULL,
		payload      BLOB NOT NULL,
		created_at   INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_idempotency_created_at ON idempotency_records(created_at);`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create idempotency table: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Get returns the record for a key, or ErrNotFound.
func (s *SQLiteStore) Get(key string) (*Record, error) {
	row := s.db.QueryRow(
		`SELECT key, request_hash, run_id, payload, created_at FROM idempotency_records WHERE key = ?`, key)
	var rec Record
	var createdAt int64
	if err := row.Scan(&rec.Key, &rec.RequestHash, &rec.RunID, &rec.Payload, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query idempotency record: %w", err)
	}
	rec.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &rec, nil
}

// Put inserts a record. The key is the primary key; a duplicate insert fails,
// which is fine: the guard always reads before writing.
func (s *SQLiteStore) Put(rec *Record) error {
	_, err := s.db.Exec(
		`INSERT INTO idempotency_records (key, request_hash, run_id, payload, created_at) VALUES (?, ?, ?, ?, ?)`,
		rec.Key, rec.RequestHash, rec.RunID, rec.Payload, rec.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert idempotency record: %w", err)
	}
	return nil
}

// DeleteOlderThan evicts expired records and returns how many were removed.
func (s *SQLiteStore) DeleteOlderThan(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM idempotency_records WHERE created_at < ?`, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to evict idempotency records: %w", err)
	}
	return res.RowsAffected()
}
