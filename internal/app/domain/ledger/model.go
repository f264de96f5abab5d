// Package ledger defines the epoch-partitioned token supply and allocation
// records.
package ledger

import "time"

// Tag identifies the reward tier a contribution qualified under.
type Tag string

const (
	TagGenesis  Tag = "genesis"
	TagCatalyst Tag = "catalyst"
	TagSignal   Tag = "signal"
)

// Epoch names, in supply order. The pointer only ever moves forward through
// this sequence.
const (
	EpochFounder   = "founder"
	EpochPioneer   = "pioneer"
	EpochCommunity = "community"
	EpochEcosystem = "ecosystem"
)

// EpochOrder is the canonical forward order of epochs.
var EpochOrder = []string{EpochFounder, EpochPioneer, EpochCommunity, EpochEcosystem}

// multipliers holds the fixed reward multiplier per tag.
var multipliers = map[Tag]float64{
	TagGenesis:  1000,
	TagCatalyst: 100,
	TagSignal:   1,
}

// eligibility maps each tag to the first epoch it becomes allocatable in.
// Genesis is eligible everywhere; lower tiers open up in later epochs.
var eligibility = map[Tag]string{
	TagGenesis:  EpochFounder,
	TagCatalyst: EpochPioneer,
	TagSignal:   EpochCommunity,
}

// Multiplier returns the fixed reward multiplier for a tag, or 0 for an
// unknown tag.
func Multiplier(tag Tag) float64 {
	return multipliers[tag]
}

// KnownTag reports whether tag names one of the reward tiers.
func KnownTag(tag Tag) bool {
	_, ok := multipliers[tag]
	return ok
}

// Eligible reports whether tag may be allocated against the named epoch.
func Eligible(tag Tag, epoch string) bool {
	first, ok := eligibility[tag]
	if !ok {
		return false
	}
	firstIdx, epochIdx := -1, -1
	for i, name := range EpochOrder {
		if name == first {
			firstIdx = i
		}
		if name == epoch {
			epochIdx = i
		}
	}
	return firstIdx >= 0 && epochIdx >= firstIdx
}

// EpochForDensity maps an oracle density score to the qualifying epoch.
// Thresholds are checked in descending strictness; the first match wins.
func EpochForDensity(density int) string {
	switch {
	case density >= 8000:
		return EpochFounder
	case density >= 6000:
		return EpochPioneer
	case density >= 4000:
		return EpochCommunity
	default:
		return EpochEcosystem
	}
}

// Epoch is one named partition of the total supply. CurrentBalance only
// decreases after initialization.
type Epoch struct {
	Name           string  `json:"name"`
	InitialBalance float64 `json:"initial_balance"`
	CurrentBalance float64 `json:"current_balance"`
}

// AllocationRecord is one immutable entry in the allocation history.
type AllocationRecord struct {
	ID             string    `json:"id"`
	ContributionID string    `json:"contribution_id"`
	Tag            Tag       `json:"tag"`
	Epoch          string    `json:"epoch"`
	Amount         float64   `json:"amount"`
	Timestamp      time.Time `json:"timestamp"`
}

// State is the full persisted ledger document. It is replaced wholesale on
// every mutation.
type State struct {
	Epochs                []Epoch            `json:"epochs"`
	CurrentEpoch          int                `json:"current_epoch"`
	CumulativeQualityMass float64            `json:"cumulative_quality_mass"`
	History               []AllocationRecord `json:"history"`
}

// DefaultSupply is the total token supply split across epochs when no
// explicit configuration is given.
const DefaultSupply = 1_000_000_000

// defaultSplit holds the supply share per epoch, in EpochOrder.
var defaultSplit = []float64{0.40, 0.30, 0.20, 0.10}

// NewState builds the initial ledger state from a total supply. A zero or
// negative supply falls back to DefaultSupply.
func NewState(totalSupply float64) State {
	if totalSupply <= 0 {
		totalSupply = DefaultSupply
	}
	epochs := make([]Epoch, len(EpochOrder))
	for i, name := range EpochOrder {
		balance := totalSupply * defaultSplit[i]
		epochs[i] = Epoch{Name: name, InitialBalance: balance, CurrentBalance: balance}
	}
	return State{Epochs: epochs}
}

// Clone returns a deep copy so callers can hand out state without aliasing
// the actor's copy.
func (s State) Clone() State {
	out := s
	out.Epochs = append([]Epoch(nil), s.Epochs...)
	out.History = append([]AllocationRecord(nil), s.History...)
	return out
}

// EpochIndex returns the position of the named epoch, or -1.
func (s State) EpochIndex(name string) int {
	for i, e := range s.Epochs {
		if e.Name == name {
			return i
		}
	}
	return -1
}
