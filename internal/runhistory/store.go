// Package runhistory persists every produced simulation result together with
// its lineage, and the append-only workflow decision audit trail. It is the
// run-history collaborator of the engine: pure append and query, no
// mutation of stored results.
package runhistory

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/rebalancer/internal/domain"
	"github.com/aristath/rebalancer/internal/workflow"
)

// ErrNotFound is returned for unknown run ids.
var ErrNotFound = errors.New("run not found")

// Store is the sqlite-backed run history and decision audit log.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// New creates the store and its tables.
func New(db *sql.DB, log zerolog.Logger) (*Store, error) {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id          TEXT PRIMARY KEY,
		correlation_id  TEXT NOT NULL DEFAULT '',
		idempotency_key TEXT NOT NULL DEFAULT '',
		status          TEXT NOT NULL,
		request_hash    TEXT NOT NULL DEFAULT '',
		created_at      INTEGER NOT NULL,
		payload         BLOB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_runs_correlation ON runs(correlation_id);
	CREATE INDEX IF NOT EXISTS idx_runs_idempotency ON runs(idempotency_key);

	CREATE TABLE IF NOT EXISTS workflow_decisions (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id     TEXT NOT NULL,
		action     TEXT NOT NULL,
		from_state TEXT NOT NULL,
		to_state   TEXT NOT NULL,
		actor      TEXT NOT NULL DEFAULT '',
		comment    TEXT NOT NULL DEFAULT '',
		decided_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_decisions_run ON workflow_decisions(run_id);`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create run history tables: %w", err)
	}
	return &Store{db: db, log: log.With().Str("component", "runhistory").Logger()}, nil
}

// SaveRun appends a produced result. Results are immutable; saving the same
// run id twice is a caller bug and fails on the primary key.
func (s *Store) SaveRun(result *domain.RebalanceResult, idempotencyKey string) error {
	payload, err := msgpack.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO runs (run_id, correlation_id, idempotency_key, status, request_hash, created_at, payload)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		result.RunID, result.CorrelationID, idempotencyKey, string(result.Status),
		result.Lineage.RequestHash, result.CreatedAt.Unix(), payload)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", result.RunID, err)
	}
	s.log.Debug().Str("run_id", result.RunID).Str("status", string(result.Status)).Msg("Run saved")
	return nil
}

// GetRun loads one result by run id.
func (s *Store) GetRun(runID string) (*domain.RebalanceResult, error) {
	row := s.db.QueryRow(`SELECT payload FROM runs WHERE run_id = ?`, runID)
	var payload []byte
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query run %s: %w", runID, err)
	}
	var result domain.RebalanceResult
	if err := msgpack.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("failed to decode run %s: %w", runID, err)
	}
	return &result, nil
}

// RunSummary is a light listing row.
type RunSummary struct {
	RunID         string        `json:"run_id"`
	CorrelationID string        `json:"correlation_id,omitempty"`
	Status        domain.Status `json:"status"`
	RequestHash   string        `json:"request_hash,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}

// ListByCorrelation returns run summaries for a correlation id, newest first.
func (s *Store) ListByCorrelation(correlationID string) ([]RunSummary, error) {
	return s.list(`SELECT run_id, correlation_id, status, request_hash, created_at
		FROM runs WHERE correlation_id = ? ORDER BY created_at DESC, run_id DESC`, correlationID)
}

// ListByIdempotencyKey returns run summaries for an idempotency key.
func (s *Store) ListByIdempotencyKey(key string) ([]RunSummary, error) {
	return s.list(`SELECT run_id, correlation_id, status, request_hash, created_at
		FROM runs WHERE idempotency_key = ? ORDER BY created_at DESC, run_id DESC`, key)
}

func (s *Store) list(query, arg string) ([]RunSummary, error) {
	rows, err := s.db.Query(query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var r RunSummary
		var createdAt int64
		if err := rows.Scan(&r.RunID, &r.CorrelationID, &r.Status, &r.RequestHash, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		r.CreatedAt = time.Unix(createdAt, 0).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// AppendDecision records one workflow decision.
func (s *Store) AppendDecision(d workflow.Decision) error {
	_, err := s.db.Exec(
		`INSERT INTO workflow_decisions (run_id, action, from_state, to_state, actor, comment, decided_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.RunID, string(d.Action), string(d.From), string(d.To), d.Actor, d.Comment, d.DecidedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert decision for %s: %w", d.RunID, err)
	}
	return nil
}

// ListDecisions returns a run's decision history in insertion order.
func (s *Store) ListDecisions(runID string) ([]workflow.Decision, error) {
	rows, err := s.db.Query(
		`SELECT run_id, action, from_state, to_state, actor, comment, decided_at
		 FROM workflow_decisions WHERE run_id = ? ORDER BY id ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list decisions for %s: %w", runID, err)
	}
	defer rows.Close()

	var out []workflow.Decision
	for rows.Next() {
		var d workflow.Decision
		var action, from, to string
		var decidedAt int64
		if err := rows.Scan(&d.RunID, &action, &from, &to, &d.Actor, &d.Comment, &decidedAt); err != nil {
			return nil, fmt.Errorf("failed to scan decision row: %w", err)
		}
		d.Action = workflow.Action(action)
		d.From = domain.GateState(from)
		d.To = domain.GateState(to)
		d.DecidedAt = time.Unix(decidedAt, 0).UTC()
		out = append(out, d)
	}
	return out, rows.Err()
}
