// Package file provides a durable store keeping one JSON document per
// record. Every write lands in a temporary file first and is then renamed
// over the old document, so a crash never leaves a half-written record.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Inscribe-Network/archive_layer/internal/app/domain/contribution"
	"github.com/Inscribe-Network/archive_layer/internal/app/domain/ledger"
	"github.com/Inscribe-Network/archive_layer/internal/app/storage"
)

const (
	contributionsDir = "contributions"
	ledgerFile       = "ledger.json"
)

// Store persists records under a root directory. Contribution writes are
// serialized per ID, not globally, so unrelated records never block each
// other.
type Store struct {
	root string

	locks    sync.Map // id -> *sync.Mutex
	ledgerMu sync.Mutex
}

var _ storage.ContributionStore = (*Store)(nil)
var _ storage.LedgerStore = (*Store)(nil)

// New opens (creating if needed) a file store rooted at dir.
func New(dir string) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("file store directory required")
	}
	if err := os.MkdirAll(filepath.Join(dir, contributionsDir), 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	return &Store{root: dir}, nil
}

func (s *Store) lock(id string) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

func (s *Store) contributionPath(id string) string {
	return filepath.Join(s.root, contributionsDir, id+".json")
}

// writeAtomic marshals v and atomically replaces path with the result.
func writeAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace record: %w", err)
	}
	return nil
}

func (s *Store) readContribution(id string) (contribution.Contribution, error) {
	data, err := os.ReadFile(s.contributionPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return contribution.Contribution{}, storage.ErrNotFound
		}
		return contribution.Contribution{}, fmt.Errorf("read record %s: %w", id, err)
	}
	var c contribution.Contribution
	if err := json.Unmarshal(data, &c); err != nil {
		return contribution.Contribution{}, fmt.Errorf("decode record %s: %w", id, err)
	}
	return c, nil
}

// ContributionStore implementation --------------------------------------------

func (s *Store) CreateContribution(_ context.Context, c contribution.Contribution) (contribution.Contribution, error) {
	mu := s.lock(c.ID)
	mu.Lock()
	defer mu.Unlock()

	if _, err := s.readContribution(c.ID); err == nil {
		return contribution.Contribution{}, storage.ErrExists
	} else if !errors.Is(err, storage.ErrNotFound) {
		return contribution.Contribution{}, err
	}

	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	if err := writeAtomic(s.contributionPath(c.ID), c); err != nil {
		return contribution.Contribution{}, err
	}
	return c, nil
}

func (s *Store) ReplaceContribution(_ context.Context, c contribution.Contribution, fromStatus contribution.Status) (contribution.Contribution, error) {
	mu := s.lock(c.ID)
	mu.Lock()
	defer mu.Unlock()

	original, err := s.readContribution(c.ID)
	if err != nil {
		return contribution.Contribution{}, err
	}
	if original.Status != fromStatus {
		return contribution.Contribution{}, storage.ErrStale
	}
	if original.Metrics != nil && (c.Metrics == nil || *c.Metrics != *original.Metrics) {
		// Metrics are write-once at the storage level.
		return contribution.Contribution{}, storage.ErrStale
	}

	c.CreatedAt = original.CreatedAt
	c.UpdatedAt = time.Now().UTC()
	if err := writeAtomic(s.contributionPath(c.ID), c); err != nil {
		return contribution.Contribution{}, err
	}
	return c, nil
}

func (s *Store) GetContribution(_ context.Context, id string) (contribution.Contribution, error) {
	mu := s.lock(id)
	mu.Lock()
	defer mu.Unlock()
	return s.readContribution(id)
}

func (s *Store) ListContributions(_ context.Context) ([]contribution.Contribution, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, contributionsDir))
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}

	result := make([]contribution.Contribution, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".tmp-") {
			continue
		}
		c, err := s.readContribution(strings.TrimSuffix(name, ".json"))
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, nil
}

func (s *Store) ListContributionsByStatus(ctx context.Context, status contribution.Status) ([]contribution.Contribution, error) {
	all, err := s.ListContributions(ctx)
	if err != nil {
		return nil, err
	}
	result := make([]contribution.Contribution, 0)
	for _, c := range all {
		if c.Status == status {
			result = append(result, c)
		}
	}
	return result, nil
}

// LedgerStore implementation ---------------------------------------------------

func (s *Store) SaveLedger(_ context.Context, state ledger.State) error {
	s.ledgerMu.Lock()
	defer s.ledgerMu.Unlock()
	return writeAtomic(filepath.Join(s.root, ledgerFile), state)
}

func (s *Store) LoadLedger(_ context.Context) (ledger.State, bool, error) {
	s.ledgerMu.Lock()
	defer s.ledgerMu.Unlock()

	data, err := os.ReadFile(filepath.Join(s.root, ledgerFile))
	if err != nil {
		if os.IsNotExist(err) {
			return ledger.State{}, false, nil
		}
		return ledger.State{}, false, fmt.Errorf("read ledger: %w", err)
	}
	var state ledger.State
	if err := json.Unmarshal(data, &state); err != nil {
		return ledger.State{}, false, fmt.Errorf("decode ledger: %w", err)
	}
	return state, true, nil
}
