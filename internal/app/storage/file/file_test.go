package file

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Inscribe-Network/archive_layer/internal/app/domain/contribution"
	"github.com/Inscribe-Network/archive_layer/internal/app/domain/ledger"
	"github.com/Inscribe-Network/archive_layer/internal/app/storage"
)

func TestStore_RoundTrip(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	ctx := context.Background()

	c := contribution.Contribution{
		ID:      "abc",
		Title:   "t",
		Content: "some content",
		Status:  contribution.StatusDraft,
	}
	if _, err := store.CreateContribution(ctx, c); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.CreateContribution(ctx, c); !errors.Is(err, storage.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}

	got, err := store.GetContribution(ctx, "abc")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Content != "some content" || got.Status != contribution.StatusDraft {
		t.Fatalf("unexpected record: %#v", got)
	}
}

func TestStore_GuardedReplace(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	ctx := context.Background()

	c := contribution.Contribution{ID: "abc", Status: contribution.StatusSubmitted}
	if _, err := store.CreateContribution(ctx, c); err != nil {
		t.Fatalf("create: %v", err)
	}

	c.Status = contribution.StatusEvaluating
	if _, err := store.ReplaceContribution(ctx, c, contribution.StatusSubmitted); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if _, err := store.ReplaceContribution(ctx, c, contribution.StatusSubmitted); !errors.Is(err, storage.ErrStale) {
		t.Fatalf("expected ErrStale, got %v", err)
	}

	got, err := store.GetContribution(ctx, "abc")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != contribution.StatusEvaluating {
		t.Fatalf("replace not durable: %s", got.Status)
	}
}

func TestStore_ReplaceLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	ctx := context.Background()

	c := contribution.Contribution{ID: "abc", Status: contribution.StatusDraft, Content: "v1"}
	if _, err := store.CreateContribution(ctx, c); err != nil {
		t.Fatalf("create: %v", err)
	}
	c.Content = "v2"
	c.Status = contribution.StatusSubmitted
	if _, err := store.ReplaceContribution(ctx, c, contribution.StatusDraft); err != nil {
		t.Fatalf("replace: %v", err)
	}

	entries, err := os.ReadDir(filepath.Join(dir, "contributions"))
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".tmp-") {
			t.Fatalf("temp file left behind: %s", entry.Name())
		}
	}

	got, err := store.GetContribution(ctx, "abc")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Content != "v2" {
		t.Fatalf("latest version not visible: %q", got.Content)
	}
}

func TestStore_ListByStatus(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	ctx := context.Background()

	for i, status := range []contribution.Status{
		contribution.StatusSubmitted, contribution.StatusSubmitted, contribution.StatusQualified,
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
}

func TestStore_LedgerPersistence(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	ctx := context.Background()

	if _, found, err := store.LoadLedger(ctx); err != nil || found {
		t.Fatalf("expected no ledger yet, found=%v err=%v", found, err)
	}

	state := ledger.NewState(500)
	state.History = append(state.History, ledger.AllocationRecord{ID: "r1", Epoch: ledger.EpochFounder, Amount: 1})
	if err := store.SaveLedger(ctx, state); err != nil {
		t.Fatalf("save: %v", err)
	}

	// A fresh store over the same directory sees the durable state.
	reopened, err := New(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	loaded, found, err := reopened.LoadLedger(ctx)
	if err != nil || !found {
		t.Fatalf("load after reopen: found=%v err=%v", found, err)
	}
	if len(loaded.History) != 1 || loaded.History[0].ID != "r1" {
		t.Fatalf("history not preserved: %#v", loaded.History)
	}
}

func TestStore_MetricsWriteOnce(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	ctx := context.Background()

	c := contribution.Contribution{ID: "abc", Status: contribution.StatusEvaluating}
	if _, err := store.CreateContribution(ctx, c); err != nil {
		t.Fatalf("create: %v", err)
	}

	m := contribution.Metrics{Coherence: 8000, Density: 7000, Composite: 5600}
	c.Metrics = &m
	if _, err := store.ReplaceContribution(ctx, c, contribution.StatusEvaluating); err != nil {
		t.Fatalf("set metrics: %v", err)
	}

	other := m
	other.Density = 1
	conflicting := c
	conflicting.Metrics = &other
	if _, err := store.ReplaceContribution(ctx, conflicting, contribution.StatusEvaluating); !errors.Is(err, storage.ErrStale) {
		t.Fatalf("conflicting metrics: expected ErrStale, got %v", err)
	}

	got, err := store.GetContribution(ctx, "abc")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Metrics == nil || got.Metrics.Density != 7000 {
		t.Fatalf("metrics not preserved: %#v", got.Metrics)
	}
}
