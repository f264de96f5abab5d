// Package memory provides an in-memory implementation of the storage
// interfaces. It is safe for concurrent use and is primarily intended for
// tests and local development.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/Inscribe-Network/archive_layer/internal/app/domain/contribution"
	"github.com/Inscribe-Network/archive_layer/internal/app/domain/ledger"
	"github.com/Inscribe-Network/archive_layer/internal/app/storage"
)

// Store keeps all records in process memory.
type Store struct {
	mu            sync.RWMutex
	contributions map[string]contribution.Contribution
	ledger        *ledger.State
}

var _ storage.ContributionStore = (*Store)(nil)
var _ storage.LedgerStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		contributions: make(map[string]contribution.Contribution),
	}
}

// ContributionStore implementation --------------------------------------------

func (s *Store) CreateContribution(_ context.Context, c contribution.Contribution) (contribution.Contribution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.contributions[c.ID]; exists {
		return contribution.Contribution{}, storage.ErrExists
	}

	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	s.contributions[c.ID] = c.Clone()
	return c.Clone(), nil
}

func (s *Store) ReplaceContribution(_ context.Context, c contribution.Contribution, fromStatus contribution.Status) (contribution.Contribution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.contributions[c.ID]
	if !ok {
		return contribution.Contribution{}, storage.ErrNotFound
	}
	if original.Status != fromStatus {
		return contribution.Contribution{}, storage.ErrStale
	}
	if metricsConflict(original, c) {
		return contribution.Contribution{}, storage.ErrStale
	}

	c.CreatedAt = original.CreatedAt
	c.UpdatedAt = time.Now().UTC()
	s.contributions[c.ID] = c.Clone()
	return c.Clone(), nil
}

// metricsConflict reports whether replacing stored with incoming would change
// or clear metrics that are already set. Metrics are write-once.
func metricsConflict(stored, incoming contribution.Contribution) bool {
	if stored.Metrics == nil {
		return false
	}
	return incoming.Metrics == nil || *incoming.Metrics != *stored.Metrics
}

func (s *Store) GetContribution(_ context.Context, id string) (contribution.Contribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.contributions[id]
	if !ok {
		return contribution.Contribution{}, storage.ErrNotFound
	}
	return c.Clone(), nil
}

func (s *Store) ListContributions(_ context.Context) ([]contribution.Contribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]contribution.Contribution, 0, len(s.contributions))
	for _, c := range s.contributions {
		result = append(result, c.Clone())
	}
	return result, nil
}

func (s *Store) ListContributionsByStatus(_ context.Context, status contribution.Status) ([]contribution.Contribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]contribution.Contribution, 0)
	for _, c := range s.contributions {
		if c.Status == status {
			result = append(result, c.Clone())
		}
	}
	return result, nil
}

// LedgerStore implementation ---------------------------------------------------

func (s *Store) SaveLedger(_ context.Context, state ledger.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := state.Clone()
	s.ledger = &clone
	return nil
}

func (s *Store) LoadLedger(_ context.Context) (ledger.State, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.ledger == nil {
		return ledger.State{}, false, nil
	}
	return s.ledger.Clone(), true, nil
}
