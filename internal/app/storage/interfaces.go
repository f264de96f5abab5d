package storage

import (
	"context"
	"errors"

	"github.com/Inscribe-Network/archive_layer/internal/app/domain/contribution"
	"github.com/Inscribe-Network/archive_layer/internal/app/domain/ledger"
)

// Sentinel errors shared by all store implementations.
var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrExists indicates a create collided with an existing record.
	ErrExists = errors.New("record already exists")
	// ErrStale indicates a guarded replace found the record in a different
	// status than the caller observed. Exactly one of any set of concurrent
	// guarded replaces against the same record can succeed.
	ErrStale = errors.New("record changed since read")
)

// ContributionStore persists contribution records. Every write replaces the
// whole record atomically; partial field updates are not part of the
// contract.
type ContributionStore interface {
	// CreateContribution stores a new record keyed by its ID. Returns
	// ErrExists if the ID is already present.
	CreateContribution(ctx context.Context, c contribution.Contribution) (contribution.Contribution, error)

	// ReplaceContribution swaps the stored record for c, but only if the
	// stored record currently has status fromStatus. Returns ErrStale
	// otherwise. This guard is what makes status claims atomic per ID.
	// The guard also rejects, with ErrStale, any replace that would change
	// or clear metrics already set on the stored record: metrics are
	// write-once at the storage level, not just in the service.
	ReplaceContribution(ctx context.Context, c contribution.Contribution, fromStatus contribution.Status) (contribution.Contribution, error)

	// GetContribution fetches one record by ID.
	GetContribution(ctx context.Context, id string) (contribution.Contribution, error)

	// ListContributions returns every record regardless of status. The
	// complete history, including drafts and unqualified entries, is what
	// redundancy detection runs against.
	ListContributions(ctx context.Context) ([]contribution.Contribution, error)

	// ListContributionsByStatus returns records currently in the given
	// status.
	ListContributionsByStatus(ctx context.Context, status contribution.Status) ([]contribution.Contribution, error)
}

// LedgerStore persists the single ledger document.
type LedgerStore interface {
	// SaveLedger atomically replaces the persisted ledger state.
	SaveLedger(ctx context.Context, state ledger.State) error

	// LoadLedger returns the persisted state. found is false when no ledger
	// has been persisted yet.
	LoadLedger(ctx context.Context) (state ledger.State, found bool, err error)
}
