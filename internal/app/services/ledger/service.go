// Package ledger implements the tokenomics ledger: a fixed epoch-partitioned
// supply drained by allocations. All mutations flow through a single actor
// goroutine, so a balance check and its decrement are always one atomic unit
// and the pool can never be over-spent by concurrent evaluators.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Inscribe-Network/archive_layer/internal/app/domain/ledger"
	"github.com/Inscribe-Network/archive_layer/internal/app/storage"
	"github.com/Inscribe-Network/archive_layer/internal/app/system"
	"github.com/Inscribe-Network/archive_layer/pkg/logger"
)

var (
	// ErrInsufficientEpochBalance is returned when an allocation would drive
	// an epoch balance negative. The ceiling is hard, never approximated.
	ErrInsufficientEpochBalance = errors.New("insufficient epoch balance")
	// ErrTagNotEligible is returned when the tag is not allocatable in the
	// requested epoch.
	ErrTagNotEligible = errors.New("tag not eligible in epoch")
	// ErrUnknownEpoch is returned for an epoch name outside the configured
	// partitions.
	ErrUnknownEpoch = errors.New("unknown epoch")
	// ErrLastEpoch is returned when TransitionEpoch is called with no epoch
	// left to advance to.
	ErrLastEpoch = errors.New("already in final epoch")
	// ErrNotRunning is returned when the ledger actor has not been started.
	ErrNotRunning = errors.New("ledger service not running")
)

// Stats is a read-only view of the ledger.
type Stats struct {
	Epochs                []ledger.Epoch `json:"epochs"`
	CurrentEpoch          string         `json:"current_epoch"`
	CumulativeQualityMass float64        `json:"cumulative_quality_mass"`
	Allocations           int            `json:"allocations"`
}

type opResult struct {
	value any
	err   error
}

type op struct {
	apply   func(state *ledger.State) (any, error)
	mutates bool
	reply   chan opResult
}

var _ system.Service = (*Service)(nil)

// Service is the single logical writer for the ledger document.
type Service struct {
	store  storage.LedgerStore
	supply float64
	log    *logger.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	ops     chan op
}

// New constructs the ledger service. totalSupply is used only when no ledger
// has been persisted yet; a restarted process resumes from the durable state.
func New(store storage.LedgerStore, totalSupply float64, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("ledger")
	}
	return &Service{
		store:  store,
		supply: totalSupply,
		log:    log,
	}
}

func (s *Service) Name() string { return "ledger" }

// Start loads or initializes the persisted state and launches the actor.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	state, found, err := s.store.LoadLedger(ctx)
	if err != nil {
		return fmt.Errorf("load ledger: %w", err)
	}
	if !found {
		state = ledger.NewState(s.supply)
		if err := s.store.SaveLedger(ctx, state); err != nil {
			return fmt.Errorf("persist initial ledger: %w", err)
		}
		s.log.WithField("epochs", len(state.Epochs)).Info("ledger initialized")
	} else {
		s.log.WithField("allocations", len(state.History)).Info("ledger recovered")
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.ops = make(chan op)
	s.running = true

	s.wg.Add(1)
	go s.run(runCtx, state)

	// Parent cancellation stops the actor the same way Stop does.
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-runCtx.Done():
		}
	}()

	s.log.Info("ledger actor started")
	return nil
}

// Stop shuts the actor down after the in-flight operation completes.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	cancel := s.cancel
	s.running = false
	s.cancel = nil
	s.mu.Unlock()

	cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.log.Info("ledger actor stopped")
	return nil
}

// run owns the authoritative state. Mutations execute against a clone which
// is persisted before it replaces the committed state, so a failed write
// leaves the ledger exactly as it was.
func (s *Service) run(ctx context.Context, state ledger.State) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case o := <-s.ops:
			working := state.Clone()
			value, err := o.apply(&working)
			if err == nil && o.mutates {
				if persistErr := s.store.SaveLedger(ctx, working); persistErr != nil {
					err = fmt.Errorf("persist ledger: %w", persistErr)
				} else {
					state = working
				}
			}
			o.reply <- opResult{value: value, err: err}
		}
	}
}

func (s *Service) submit(ctx context.Context, o op) (any, error) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil, ErrNotRunning
	}
	ops := s.ops
	s.mu.Unlock()

	select {
	case ops <- o:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-o.reply:
		return res.value, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Allocate converts a composite score into a token grant from the named
// epoch. On success the epoch balance is decremented, the record appended to
// the immutable history and the whole document persisted before the caller
// sees the result.
func (s *Service) Allocate(ctx context.Context, contributionID string, tag ledger.Tag, epoch string, score int) (ledger.AllocationRecord, error) {
	if score < 0 || score > 10000 {
		return ledger.AllocationRecord{}, fmt.Errorf("score %d out of range", score)
	}

	value, err := s.submit(ctx, op{
		mutates: true,
		reply:   make(chan opResult, 1),
		apply: func(state *ledger.State) (any, error) {
			idx := state.EpochIndex(epoch)
			if idx < 0 {
				return nil, fmt.Errorf("%w: %s", ErrUnknownEpoch, epoch)
			}
			if !ledger.Eligible(tag, epoch) {
				return nil, fmt.Errorf("%w: %s in %s", ErrTagNotEligible, tag, epoch)
			}

			amount := float64(score) / 10000 * state.Epochs[idx].CurrentBalance * ledger.Multiplier(tag)
			if amount > state.Epochs[idx].CurrentBalance {
				return nil, fmt.Errorf("%w: need %.4f, have %.4f in %s",
					ErrInsufficientEpochBalance, amount, state.Epochs[idx].CurrentBalance, epoch)
			}

			rec := ledger.AllocationRecord{
				ID:             uuid.NewString(),
				ContributionID: contributionID,
				Tag:            tag,
				Epoch:          epoch,
				Amount:         amount,
				Timestamp:      time.Now().UTC(),
			}
			state.Epochs[idx].CurrentBalance -= amount
			state.CumulativeQualityMass += float64(score)
			state.History = append(state.History, rec)
			return rec, nil
		},
	})
	if err != nil {
		return ledger.AllocationRecord{}, err
	}

	rec := value.(ledger.AllocationRecord)
	s.log.WithField("contribution_id", contributionID).
		WithField("epoch", epoch).
		WithField("tag", string(tag)).
		WithField("amount", rec.Amount).
		Info("tokens allocated")
	return rec, nil
}

// TransitionEpoch advances the epoch pointer by exactly one step. The move
// is irreversible.
func (s *Service) TransitionEpoch(ctx context.Context) (string, error) {
	value, err := s.submit(ctx, op{
		mutates: true,
		reply:   make(chan opResult, 1),
		apply: func(state *ledger.State) (any, error) {
			if state.CurrentEpoch >= len(state.Epochs)-1 {
				return nil, ErrLastEpoch
			}
			state.CurrentEpoch++
			return state.Epochs[state.CurrentEpoch].Name, nil
		},
	})
	if err != nil {
		return "", err
	}

	name := value.(string)
	s.log.WithField("epoch", name).Info("epoch advanced")
	return name, nil
}

// Stats returns a consistent snapshot of the ledger.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	value, err := s.submit(ctx, op{
		reply: make(chan opResult, 1),
		apply: func(state *ledger.State) (any, error) {
			return Stats{
				Epochs:                append([]ledger.Epoch(nil), state.Epochs...),
				CurrentEpoch:          state.Epochs[state.CurrentEpoch].Name,
				CumulativeQualityMass: state.CumulativeQualityMass,
				Allocations:           len(state.History),
			}, nil
		},
	})
	if err != nil {
		return Stats{}, err
	}
	return value.(Stats), nil
}

// History returns the append-only allocation history.
func (s *Service) History(ctx context.Context) ([]ledger.AllocationRecord, error) {
	value, err := s.submit(ctx, op{
		reply: make(chan opResult, 1),
		apply: func(state *ledger.State) (any, error) {
			return append([]ledger.AllocationRecord(nil), state.History...), nil
		},
	})
	if err != nil {
		return nil, err
	}
	return value.([]ledger.AllocationRecord), nil
}
