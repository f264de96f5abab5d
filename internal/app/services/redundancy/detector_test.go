package redundancy

import "testing"

func TestPairwise_IdenticalContent(t *testing.T) {
	d := New()
	text := "the quick brown fox jumps over the lazy dog"
	if got := d.Pairwise(text, text); got != 1 {
		t.Fatalf("identical content scored %f, want 1", got)
	}
	// Canonicalization makes casing and spacing irrelevant.
	if got := d.Pairwise(text, "  The QUICK   brown fox jumps over the lazy DOG "); got != 1 {
		t.Fatalf("canonically identical content scored %f, want 1", got)
	}
}

func TestPairwise_Disjoint(t *testing.T) {
	d := New()
	if got := d.Pairwise("alpha beta gamma delta", "one two three four"); got != 0 {
		t.Fatalf("disjoint content scored %f, want 0", got)
	}
}

func TestPairwise_Deterministic(t *testing.T) {
	d := New()
	a := "distributed systems require careful coordination of state"
	b := "distributed systems require careful thought about failure"
	first := d.Pairwise(a, b)
	for i := 0; i < 10; i++ {
		if got := d.Pairwise(a, b); got != first {
			t.Fatalf("score changed between runs: %f vs %f", got, first)
		}
	}
	if first <= 0 || first >= 1 {
		t.Fatalf("partial overlap should score strictly between 0 and 1, got %f", first)
	}
}

func TestPairwise_MonotonicDivergence(t *testing.T) {
	d := New()
	base := "a b c d e f g h i j"
	near := "a b c d e f g h i x"
	far := "a b c x y z q r s t"
	if d.Pairwise(base, near) <= d.Pairwise(base, far) {
		t.Fatal("closer text should score higher than distant text")
	}
}

func TestPairwise_ShortText(t *testing.T) {
	d := New()
	if got := d.Pairwise("hello", "hello"); got != 1 {
		t.Fatalf("short identical text scored %f, want 1", got)
	}
	if got := d.Pairwise("", "hello"); got != 0 {
		t.Fatalf("empty vs non-empty scored %f, want 0", got)
	}
}

func TestSimilarity_NeighborOrdering(t *testing.T) {
	d := New()
	candidate := "go services favor small interfaces and explicit errors"
	corpus := []Document{
		{ID: "c", Content: "go services favor small interfaces and explicit errors"},
		{ID: "a", Content: "go services favor small interfaces and careful design"},
		{ID: "b", Content: "completely unrelated text about gardening and soil"},
	}

	best, neighbors := d.Similarity(candidate, corpus)
	if best != 1 {
		t.Fatalf("best = %f, want 1 for exact duplicate in corpus", best)
	}
	if len(neighbors) != 2 {
		t.Fatalf("expected 2 scored neighbors, got %d", len(neighbors))
	}
	if neighbors[0].ID != "c" || neighbors[1].ID != "a" {
		t.Fatalf("neighbors not in score-descending order: %#v", neighbors)
	}
}

func TestSimilarity_CapsNeighbors(t *testing.T) {
	d := New()
	candidate := "one common phrase shared across the corpus entries"
	corpus := make([]Document, 0, 8)
	for _, id := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		corpus = append(corpus, Document{
			ID:      id,
			Content: "one common phrase shared across the corpus entries plus " + id,
		})
	}

	_, neighbors := d.Similarity(candidate, corpus)
	if len(neighbors) != 5 {
		t.Fatalf("expected neighbor list capped at 5, got %d", len(neighbors))
	}
	// Equal scores fall back to ID order.
	for i := 1; i < len(neighbors); i++ {
		if neighbors[i-1].Score == neighbors[i].Score && neighbors[i-1].ID > neighbors[i].ID {
			t.Fatalf("tied neighbors out of ID order: %#v", neighbors)
		}
	}
}

func TestSimilarity_EmptyCorpus(t *testing.T) {
	d := New()
	best, neighbors := d.Similarity("anything at all", nil)
	if best != 0 || len(neighbors) != 0 {
		t.Fatalf("empty corpus: best=%f neighbors=%d", best, len(neighbors))
	}
}
