package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/Inscribe-Network/archive_layer/internal/app/domain/contribution"
	"github.com/Inscribe-Network/archive_layer/internal/app/domain/ledger"
	"github.com/Inscribe-Network/archive_layer/internal/app/storage"
)

func TestStore_CreateAndGet(t *testing.T) {
	store := New()
	ctx := context.Background()

	c := contribution.Contribution{ID: "id1", Status: contribution.StatusDraft, Content: "hello"}
	created, err := store.CreateContribution(ctx, c)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.CreatedAt.IsZero() || created.UpdatedAt.IsZero() {
		t.Fatalf("timestamps not set: %#v", created)
	}

	if _, err := store.CreateContribution(ctx, c); !errors.Is(err, storage.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}

	got, err := store.GetContribution(ctx, "id1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Content != "hello" {
		t.Fatalf("unexpected content: %q", got.Content)
	}

	if _, err := store.GetContribution(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_GuardedReplace(t *testing.T) {
	store := New()
	ctx := context.Background()

	c := contribution.Contribution{ID: "id1", Status: contribution.StatusSubmitted}
	if _, err := store.CreateContribution(ctx, c); err != nil {
		t.Fatalf("create: %v", err)
	}

	c.Status = contribution.StatusEvaluating
	if _, err := store.ReplaceContribution(ctx, c, contribution.StatusSubmitted); err != nil {
		t.Fatalf("replace: %v", err)
	}

	// A second claimant observing the old status must lose.
	if _, err := store.ReplaceContribution(ctx, c, contribution.StatusSubmitted); !errors.Is(err, storage.ErrStale) {
		t.Fatalf("expected ErrStale, got %v", err)
	}
}

func TestStore_CloneIsolation(t *testing.T) {
	store := New()
	ctx := context.Background()

	c := contribution.Contribution{ID: "id1", Status: contribution.StatusDraft, Tags: []string{"a"}}
	created, err := store.CreateContribution(ctx, c)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	created.Tags[0] = "mutated"

	got, err := store.GetContribution(ctx, "id1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Tags[0] != "a" {
		t.Fatalf("store state leaked through returned slice")
	}
}

func TestStore_ListByStatus(t *testing.T) {
	store := New()
	ctx := context.Background()

	for i, status := range []contribution.Status{
		contribution.StatusDraft, contribution.StatusSubmitted, contribution.StatusSubmitted,
	} {
		c := contribution.Contribution{ID: string(rune('a' + i)), Status: status}
		if _, err := store.CreateContribution(ctx, c); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}

	submitted, err := store.ListContributionsByStatus(ctx, contribution.StatusSubmitted)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(submitted) != 2 {
		t.Fatalf("expected 2 submitted, got %d", len(submitted))
	}

	all, err := store.ListContributions(ctx)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 records, got %d", len(all))
	}
}

func TestStore_Ledger(t *testing.T) {
	store := New()
	ctx := context.Background()

	if _, found, err := store.LoadLedger(ctx); err != nil || found {
		t.Fatalf("expected empty ledger, found=%v err=%v", found, err)
	}

	state := ledger.NewState(100)
	if err := store.SaveLedger(ctx, state); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, found, err := store.LoadLedger(ctx)
	if err != nil || !found {
		t.Fatalf("load: found=%v err=%v", found, err)
	}
	if len(loaded.Epochs) != len(state.Epochs) {
		t.Fatalf("ledger lost epochs")
	}
}

func TestReplace_MetricsWriteOnce(t *testing.T) {
	store := New()
	ctx := context.Background()

	c := contribution.Contribution{ID: "id1", Status: contribution.StatusEvaluating}
	if _, err := store.CreateContribution(ctx, c); err != nil {
		t.Fatalf("create: %v", err)
	}

	m := contribution.Metrics{Coherence: 8000, Density: 7000, Redundancy: 100, Composite: 5500}
	c.Metrics = &m
	if _, err := store.ReplaceContribution(ctx, c, contribution.StatusEvaluating); err != nil {
		t.Fatalf("set metrics: %v", err)
	}

	// A second writer with different metrics loses even though the status
	// guard alone would let it through.
	other := m
	other.Coherence = 1
	conflicting := c
	conflicting.Metrics = &other
	if _, err := store.ReplaceContribution(ctx, conflicting, contribution.StatusEvaluating); !errors.Is(err, storage.ErrStale) {
		t.Fatalf("conflicting metrics: expected ErrStale, got %v", err)
	}

	// So does a replace that would clear them.
	cleared := c
	cleared.Metrics = nil
	if _, err := store.ReplaceContribution(ctx, cleared, contribution.StatusEvaluating); !errors.Is(err, storage.ErrStale) {
		t.Fatalf("cleared metrics: expected ErrStale, got %v", err)
	}

	// Carrying the same metrics forward stays legal.
	c.Status = contribution.StatusQualified
	c.Tags = []string{"signal"}
	if _, err := store.ReplaceContribution(ctx, c, contribution.StatusEvaluating); err != nil {
		t.Fatalf("carry metrics forward: %v", err)
	}

	got, err := store.GetContribution(ctx, "id1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Metrics == nil || got.Metrics.Coherence != 8000 {
		t.Fatalf("metrics not preserved: %#v", got.Metrics)
	}
}
