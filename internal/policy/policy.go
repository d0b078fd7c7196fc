// Package policy stores named option packs and resolves the effective
// engine options for a run: defaults, then the pack, then the request's
// explicit overrides, each layer expressed as a partial JSON document.
package policy

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/rebalancer/internal/domain"
)

// ErrNotFound is returned for unknown pack ids.
var ErrNotFound = errors.New("policy pack not found")

// Pack is a named, versioned partial options document.
type Pack struct {
	PackID      string          `json:"pack_id"`
	Description string          `json:"description,omitempty"`
	Overrides   json.RawMessage `json:"overrides"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Repository persists policy packs in sqlite as JSON documents.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates the repository and its table.
func NewRepository(db *sql.DB, log zerolog.Logger) (*Repository, error) {
	schema := `
	CREATE TABLE IF NOT EXISTS policy_packs (
		pack_id     TEXT PRIMARY KEY,
		description TEXT NOT NULL DEFAULT '',
		overrides   TEXT NOT NULL,
		updated_at  INTEGER NOT NULL
	);`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create policy table: %w", err)
	}
	return &Repository{db: db, log: log.With().Str("component", "policy").Logger()}, nil
}

// Get loads one pack by id.
func (r *Repository) Get(packID string) (*Pack, error) {
	row := r.db.QueryRow(
		`SELECT pack_id, description, overrides, updated_at FROM policy_packs WHERE pack_id = ?`, packID)
	var p Pack
	var overrides string
	var updatedAt int64
	if err := row.Scan(&p.PackID, &p.Description, &overrides, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query policy pack %s: %w", packID, err)
	}
	p.Overrides = json.RawMessage(overrides)
	p.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &p, nil
}

// Save upserts a pack. The overrides document must be valid JSON that
// decodes into engine options; invalid documents are rejected here rather
// than at simulation time.
func (r *Repository) Save(p *Pack) error {
	var probe domain.EngineOptions
	if err := json.Unmarshal(p.Overrides, &probe); err != nil {
		return fmt.Errorf("invalid policy overrides: %w", err)
	}
	_, err := r.db.Exec(
		`INSERT INTO policy_packs (pack_id, description, overrides, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(pack_id) DO UPDATE SET description = excluded.description,
			overrides = excluded.overrides, updated_at = excluded.updated_at`,
		p.PackID, p.Description, string(p.Overrides), time.Now().UTC().Unix())
	if err != nil {
		return fmt.Errorf("failed to save policy pack %s: %w", p.PackID, err)
	}
	r.log.Info().Str("pack_id", p.PackID).Msg("Policy pack saved")
	return nil
}

// List returns all packs ordered by id.
func (r *Repository) List() ([]Pack, error) {
	rows, err := r.db.Query(
		`SELECT pack_id, description, overrides, updated_at FROM policy_packs ORDER BY pack_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list policy packs: %w", err)
	}
	defer rows.Close()

	var out []Pack
	for rows.Next() {
		var p Pack
		var overrides string
		var updatedAt int64
		if err := rows.Scan(&p.PackID, &p.Description, &overrides, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan policy pack: %w", err)
		}
		p.Overrides = json.RawMessage(overrides)
		p.UpdatedAt = time.Unix(updatedAt, 0).UTC()
		out = append(out, p)
	}
	return out, rows.Err()
}

// Resolver produces the effective options for a run.
type Resolver struct {
	repo *Repository
}

// NewResolver creates a resolver over the pack repository.
func NewResolver(repo *Repository) *Resolver {
	return &Resolver{repo: repo}
}

// Resolve layers the named pack and the request's raw overrides on top of
// the engine defaults. A JSON unmarshal into an existing value only touches
// the fields the document names, which gives partial-override semantics
// without a hand-written merge. Empty packID skips the pack layer.
func (r *Resolver) Resolve(packID string, requestOverrides json.RawMessage) (domain.EngineOptions, error) {
	opts := domain.DefaultOptions()

	if packID != "" {
		pack, err := r.repo.Get(packID)
		if err != nil {
			return opts, fmt.Errorf("failed to resolve policy pack %s: %w", packID, err)
		}
		if err := json.Unmarshal(pack.Overrides, &opts); err != nil {
			return opts, fmt.Errorf("failed to apply policy pack %s: %w", packID, err)
		}
	}

	if len(requestOverrides) > 0 {
		if err := json.Unmarshal(requestOverrides, &opts); err != nil {
			return opts, fmt.Errorf("invalid option overrides: %w", err)
		}
	}
	return opts, nil
}
