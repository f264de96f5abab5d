// Package contribution defines the archived contribution entity and its
// status lifecycle.
package contribution

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/Inscribe-Network/archive_layer/internal/app/domain/ledger"
)

// Status is the lifecycle state of a contribution.
type Status string

const (
	StatusDraft       Status = "draft"
	StatusSubmitted   Status = "submitted"
	StatusEvaluating  Status = "evaluating"
	StatusQualified   Status = "qualified"
	StatusUnqualified Status = "unqualified"
	StatusArchived    Status = "archived"
	StatusSuperseded  Status = "superseded"
)

// EvaluationErrorTag marks contributions that ended unqualified because the
// oracle could not be consulted, rather than because of a low score.
const EvaluationErrorTag = "evaluation-error"

// transitions is the complete edge table of the status machine. Any edge not
// listed here is invalid; there is no path back to draft or submitted.
var transitions = map[Status][]Status{
	StatusDraft:      {StatusSubmitted, StatusArchived},
	StatusSubmitted:  {StatusEvaluating, StatusArchived},
	StatusEvaluating: {StatusQualified, StatusUnqualified, StatusArchived},
	StatusQualified:  {StatusSuperseded},
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no edges leave the status. Archived, unqualified
// and superseded entries never move again.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// Known reports whether s names a defined status.
func (s Status) Known() bool {
	switch s {
	case StatusDraft, StatusSubmitted, StatusEvaluating, StatusQualified,
		StatusUnqualified, StatusArchived, StatusSuperseded:
		return true
	}
	return false
}

// Metrics holds the evaluation scores, each on the 0..10000 scale.
// Redundancy is the detector's authoritative figure; OracleRedundancy keeps
// the oracle's own estimate for audit.
type Metrics struct {
	Coherence        int `json:"coherence"`
	Density          int `json:"density"`
	Redundancy       int `json:"redundancy"`
	OracleRedundancy int `json:"oracle_redundancy"`
	Composite        int `json:"composite"`
}

// Contribution is the central archived entity. It is created once, never
// deleted, and mutated only through the status machine.
type Contribution struct {
	ID              string                    `json:"id"`
	Title           string                    `json:"title"`
	SubmitterID     string                    `json:"submitter_id"`
	CategoryHint    string                    `json:"category_hint"`
	Content         string                    `json:"content"`
	Status          Status                    `json:"status"`
	Tags            []string                  `json:"tags,omitempty"`
	Metrics         *Metrics                  `json:"metrics,omitempty"`
	EvaluationError string                    `json:"evaluation_error,omitempty"`
	Allocations     []ledger.AllocationRecord `json:"allocations,omitempty"`
	CreatedAt       time.Time                 `json:"created_at"`
	UpdatedAt       time.Time                 `json:"updated_at"`
}

// HasTag reports whether the contribution carries the given tag.
func (c Contribution) HasTag(tag string) bool {
	for _, t := range c.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so stores can hand out records without aliasing
// internal state.
func (c Contribution) Clone() Contribution {
	out := c
	out.Tags = append([]string(nil), c.Tags...)
	out.Allocations = append([]ledger.AllocationRecord(nil), c.Allocations...)
	if c.Metrics != nil {
		m := *c.Metrics
		out.Metrics = &m
	}
	return out
}

// Canonicalize normalizes content before fingerprinting: lowercased with all
// whitespace runs collapsed to single spaces. Two submissions that differ
// only in formatting share an identity.
func Canonicalize(content string) string {
	return strings.Join(strings.Fields(strings.ToLower(content)), " ")
}

// Fingerprint derives the stable content identity used as the archive key.
func Fingerprint(content string) string {
	sum := sha256.Sum256([]byte(Canonicalize(content)))
	return hex.EncodeToString(sum[:])
}
