// Package postgres implements the storage interfaces backed by PostgreSQL.
// Records are stored as whole JSON documents and replaced wholesale on every
// write, matching the durability contract of the file store.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Inscribe-Network/archive_layer/internal/app/domain/contribution"
	"github.com/Inscribe-Network/archive_layer/internal/app/domain/ledger"
	"github.com/Inscribe-Network/archive_layer/internal/app/storage"
)

// Store implements the storage interfaces using a database handle. Callers
// are expected to open the handle with the lib/pq driver.
type Store struct {
	db *sql.DB
}

var _ storage.ContributionStore = (*Store)(nil)
var _ storage.LedgerStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS contributions (
			id         TEXT PRIMARY KEY,
			status     TEXT NOT NULL,
			doc        JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS contributions_status_idx ON contributions (status);

		CREATE TABLE IF NOT EXISTS ledger_state (
			singleton  BOOLEAN PRIMARY KEY DEFAULT TRUE CHECK (singleton),
			doc        JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

// --- ContributionStore --------------------------------------------------------

func (s *Store) CreateContribution(ctx context.Context, c contribution.Contribution) (contribution.Contribution, error) {
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	doc, err := json.Marshal(c)
	if err != nil {
		return contribution.Contribution{}, err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO contributions (id, status, doc, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`, c.ID, string(c.Status), doc, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return contribution.Contribution{}, err
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return contribution.Contribution{}, storage.ErrExists
	}
	return c, nil
}

func (s *Store) ReplaceContribution(ctx context.Context, c contribution.Contribution, fromStatus contribution.Status) (contribution.Contribution, error) {
	existing, err := s.GetContribution(ctx, c.ID)
	if err != nil {
		return contribution.Contribution{}, err
	}

	c.CreatedAt = existing.CreatedAt
	c.UpdatedAt = time.Now().UTC()

	doc, err := json.Marshal(c)
	if err != nil {
		return contribution.Contribution{}, err
	}

	// The status predicate makes the replace a compare-and-swap: concurrent
	// claimants race on it and only one row update can win. The metrics
	// predicate makes metrics write-once at the row level: once set they may
	// only be carried forward unchanged.
	res, err := s.db.ExecContext(ctx, `
		UPDATE contributions
		SET status = $3, doc = $4, updated_at = $5
		WHERE id = $1 AND status = $2
		  AND (doc->'metrics' IS NULL
		       OR doc->'metrics' = 'null'::jsonb
		       OR doc->'metrics' = $4::jsonb->'metrics')
	`, c.ID, string(fromStatus), string(c.Status), doc, c.UpdatedAt)
	if err != nil {
		return contribution.Contribution{}, err
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return contribution.Contribution{}, storage.ErrStale
	}
	return c, nil
}

func (s *Store) GetContribution(ctx context.Context, id string) (contribution.Contribution, error) {
	var doc []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT doc FROM contributions WHERE id = $1
	`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return contribution.Contribution{}, storage.ErrNotFound
	}
	if err != nil {
		return contribution.Contribution{}, err
	}

	var c contribution.Contribution
	if err := json.Unmarshal(doc, &c); err != nil {
		return contribution.Contribution{}, fmt.Errorf("decode record %s: %w", id, err)
	}
	return c, nil
}

func (s *Store) ListContributions(ctx context.Context) ([]contribution.Contribution, error) {
	return s.list(ctx, `SELECT doc FROM contributions ORDER BY created_at`)
}

func (s *Store) ListContributionsByStatus(ctx context.Context, status contribution.Status) ([]contribution.Contribution, error) {
	return s.list(ctx, `SELECT doc FROM contributions WHERE status = $1 ORDER BY created_at`, string(status))
}

func (s *Store) list(ctx context.Context, query string, args ...any) ([]contribution.Contribution, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]contribution.Contribution, 0)
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var c contribution.Contribution
		if err := json.Unmarshal(doc, &c); err != nil {
			return nil, fmt.Errorf("decode record: %w", err)
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

// --- LedgerStore --------------------------------------------------------------

func (s *Store) SaveLedger(ctx context.Context, state ledger.State) error {
	doc, err := json.Marshal(state)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO ledger_state (singleton, doc, updated_at)
		VALUES (TRUE, $1, $2)
		ON CONFLICT (singleton) DO UPDATE SET doc = EXCLUDED.doc, updated_at = EXCLUDED.updated_at
	`, doc, time.Now().UTC())
	return err
}

func (s *Store) LoadLedger(ctx context.Context) (ledger.State, bool, error) {
	var doc []byte
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM ledger_state WHERE singleton`).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.State{}, false, nil
	}
	if err != nil {
		return ledger.State{}, false, err
	}

	var state ledger.State
	if err := json.Unmarshal(doc, &state); err != nil {
		return ledger.State{}, false, fmt.Errorf("decode ledger: %w", err)
	}
	return state, true, nil
}
