package evaluation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Inscribe-Network/archive_layer/internal/app/domain/contribution"
	"github.com/Inscribe-Network/archive_layer/internal/app/metrics"
	"github.com/Inscribe-Network/archive_layer/internal/app/services/archive"
	ledgersvc "github.com/Inscribe-Network/archive_layer/internal/app/services/ledger"
	"github.com/Inscribe-Network/archive_layer/internal/app/system"
	"github.com/Inscribe-Network/archive_layer/pkg/logger"
)

// Anchorer receives qualified, allocated contributions for external
// anchoring. Calls are best-effort: the pool never waits on or retries
// anchoring.
type Anchorer interface {
	Notify(ctx context.Context, c contribution.Contribution) error
}

var _ system.Service = (*Pool)(nil)

// Pool drains submitted contributions through a fixed set of evaluation
// workers. Each worker handles one contribution end to end; the claim
// transition keeps two workers off the same ID, so unrelated contributions
// evaluate fully in parallel.
type Pool struct {
	archive *archive.Service
	service *Service
	ledger  *ledgersvc.Service
	anchor  Anchorer
	log     *logger.Logger

	workers  int
	interval time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewPool constructs a worker pool. ledger may be nil, in which case
// qualified contributions are left unallocated; anchor may be nil.
// pollInterval is how often the feeder scans for submitted contributions;
// non-positive values fall back to 5s.
func NewPool(archiveSvc *archive.Service, service *Service, ledgerSvc *ledgersvc.Service, anchor Anchorer, workers int, pollInterval time.Duration, log *logger.Logger) *Pool {
	if workers <= 0 {
		workers = 4
	}
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	if log == nil {
		log = logger.NewDefault("evaluation-pool")
	}
	return &Pool{
		archive:  archiveSvc,
		service:  service,
		ledger:   ledgerSvc,
		anchor:   anchor,
		log:      log,
		workers:  workers,
		interval: pollInterval,
	}
}

func (p *Pool) Name() string { return "evaluation-pool" }

func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true

	ids := make(chan string)

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for {
				select {
				case <-runCtx.Done():
					return
				case id := <-ids:
					p.process(runCtx, id, p.service.Evaluate)
				}
			}
		}()
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.resumeInterrupted(runCtx)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				p.feed(runCtx, ids)
			}
		}
	}()

	p.log.WithField("workers", p.workers).Info("evaluation pool started")
	return nil
}

func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	cancel := p.cancel
	p.running = false
	p.cancel = nil
	p.mu.Unlock()

	cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		p.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	p.log.Info("evaluation pool stopped")
	return nil
}

// resumeInterrupted finishes evaluations a previous process claimed but
// never drove to a terminal status. Records durably in evaluating can only
// mean a crash or shutdown mid-evaluation; the regular feed never sees them.
func (p *Pool) resumeInterrupted(ctx context.Context) {
	stranded, err := p.archive.ListByStatus(ctx, contribution.StatusEvaluating)
	if err != nil {
		p.log.WithError(err).Warn("list interrupted evaluations failed")
		return
	}
	for _, c := range stranded {
		select {
		case <-ctx.Done():
			return
		default:
		}
		p.log.WithField("contribution_id", c.ID).Info("resuming interrupted evaluation")
		p.process(ctx, c.ID, p.service.Resume)
	}
}

func (p *Pool) feed(ctx context.Context, ids chan<- string) {
	pending, err := p.archive.ListByStatus(ctx, contribution.StatusSubmitted)
	if err != nil {
		p.log.WithError(err).Warn("list submitted contributions failed")
		return
	}
	for _, c := range pending {
		select {
		case <-ctx.Done():
			return
		case ids <- c.ID:
		}
	}
}

// process evaluates one contribution and, when qualified, drives allocation
// and anchoring. evaluate is either the claiming Evaluate or the restart
// sweep's Resume.
func (p *Pool) process(ctx context.Context, id string, evaluate func(context.Context, string) (Outcome, error)) {
	outcome, err := evaluate(ctx, id)
	if err != nil {
		// Losing the claim race is routine, as is a shutdown cancelling the
		// in-flight call; everything else is worth a log line.
		if !errors.Is(err, archive.ErrInvalidTransition) && !errors.Is(err, context.Canceled) {
			p.log.WithError(err).WithField("contribution_id", id).Warn("evaluation failed")
		}
		return
	}
	if !outcome.Qualified || p.ledger == nil {
		return
	}

	allocated := false
	for _, tag := range outcome.Tags {
		rec, err := p.ledger.Allocate(ctx, id, tag, outcome.Epoch, outcome.Metrics.Composite)
		if err != nil {
			if errors.Is(err, ledgersvc.ErrInsufficientEpochBalance) {
				// Stays qualified, just unallocated.
				p.log.WithField("contribution_id", id).
					WithField("tag", string(tag)).
					WithField("epoch", outcome.Epoch).
					Warn("allocation rejected: epoch exhausted")
				continue
			}
			p.log.WithError(err).WithField("contribution_id", id).Warn("allocation failed")
			continue
		}

		if _, err := p.archive.AttachAllocation(ctx, id, rec); err != nil {
			p.log.WithError(err).WithField("contribution_id", id).Warn("attach allocation failed")
			continue
		}
		metrics.RecordAllocation(rec.Epoch, string(rec.Tag), rec.Amount)
		allocated = true
	}

	if allocated && p.anchor != nil {
		c, err := p.archive.Get(ctx, id)
		if err != nil {
			p.log.WithError(err).WithField("contribution_id", id).Warn("load contribution for anchoring failed")
			return
		}
		if err := p.anchor.Notify(ctx, c); err != nil {
			p.log.WithError(err).WithField("contribution_id", id).Warn("anchor notify failed")
		}
	}
}
