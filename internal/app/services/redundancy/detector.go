// Package redundancy computes lexical similarity between a candidate and the
// archived corpus. The measure is deterministic for identical inputs and
// near-maximal for near-duplicate content; each query is linear in corpus
// size.
package redundancy

import (
	"sort"
	"strings"

	"github.com/Inscribe-Network/archive_layer/internal/app/domain/contribution"
)

// Document is one corpus entry seen by the detector. Lifecycle status is
// deliberately absent: redundancy runs against the full archive.
type Document struct {
	ID      string
	Content string
}

// Neighbor is a corpus document scored against the candidate.
type Neighbor struct {
	ID    string
	Score float64
}

// Detector scores content overlap using Jaccard similarity over word
// shingles.
type Detector struct {
	shingleSize  int
	maxNeighbors int
}

// New constructs a detector with the default shingle width.
func New() *Detector {
	return &Detector{shingleSize: 3, maxNeighbors: 5}
}

// shingles returns the set of word n-grams of the canonicalized text. Texts
// shorter than the shingle width collapse to a single shingle.
func (d *Detector) shingles(text string) map[string]struct{} {
	words := strings.Fields(contribution.Canonicalize(text))
	set := make(map[string]struct{})
	if len(words) == 0 {
		return set
	}
	if len(words) < d.shingleSize {
		set[strings.Join(words, " ")] = struct{}{}
		return set
	}
	for i := 0; i+d.shingleSize <= len(words); i++ {
		set[strings.Join(words[i:i+d.shingleSize], " ")] = struct{}{}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	smaller, larger := a, b
	if len(b) < len(a) {
		smaller, larger = b, a
	}
	common := 0
	for s := range smaller {
		if _, ok := larger[s]; ok {
			common++
		}
	}
	union := len(a) + len(b) - common
	if union == 0 {
		return 0
	}
	return float64(common) / float64(union)
}

// Pairwise scores two contents directly. Identical content scores 1.
func (d *Detector) Pairwise(a, b string) float64 {
	return jaccard(d.shingles(a), d.shingles(b))
}

// Similarity scores the candidate against every corpus document and returns
// the maximum overlap plus the top-scoring neighbours. Neighbour order is
// deterministic: score descending, then ID.
func (d *Detector) Similarity(candidate string, corpus []Document) (float64, []Neighbor) {
	candidateSet := d.shingles(candidate)

	neighbors := make([]Neighbor, 0, len(corpus))
	best := 0.0
	for _, doc := range corpus {
		score := jaccard(candidateSet, d.shingles(doc.Content))
		if score > best {
			best = score
		}
		if score > 0 {
			neighbors = append(neighbors, Neighbor{ID: doc.ID, Score: score})
		}
	}

	sort.Slice(neighbors, func(i, j int) bool {
		if neighbors[i].Score != neighbors[j].Score {
			return neighbors[i].Score > neighbors[j].Score
		}
		return neighbors[i].ID < neighbors[j].ID
	})
	if len(neighbors) > d.maxNeighbors {
		neighbors = neighbors[:d.maxNeighbors]
	}
	return best, neighbors
}
