// Package app wires the archive layer services together and manages their
// lifecycle.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/Inscribe-Network/archive_layer/internal/app/services/archive"
	"github.com/Inscribe-Network/archive_layer/internal/app/services/evaluation"
	ledgersvc "github.com/Inscribe-Network/archive_layer/internal/app/services/ledger"
	"github.com/Inscribe-Network/archive_layer/internal/app/services/network"
	"github.com/Inscribe-Network/archive_layer/internal/app/services/redundancy"
	"github.com/Inscribe-Network/archive_layer/internal/app/storage"
	"github.com/Inscribe-Network/archive_layer/internal/app/storage/memory"
	"github.com/Inscribe-Network/archive_layer/internal/app/system"
	"github.com/Inscribe-Network/archive_layer/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Contributions storage.ContributionStore
	Ledger        storage.LedgerStore
}

// Options tunes the optional collaborators and pool sizing.
type Options struct {
	Judge        evaluation.Judge
	Anchor       evaluation.Anchorer
	Workers      int
	PollInterval time.Duration
	TotalSupply  float64
	Rubric       string
}

// Application ties the domain services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Archive    *archive.Service
	Detector   *redundancy.Detector
	Evaluation *evaluation.Service
	Ledger     *ledgersvc.Service
	Network    *network.Builder
}

// New builds a fully initialized application with the provided stores.
func New(stores Stores, opts Options, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}

	mem := memory.New()
	if stores.Contributions == nil {
		stores.Contributions = mem
	}
	if stores.Ledger == nil {
		stores.Ledger = mem
	}

	manager := system.NewManager()

	archiveSvc := archive.New(stores.Contributions, log)
	detector := redundancy.New()
	ledgerSvc := ledgersvc.New(stores.Ledger, opts.TotalSupply, log)
	networkSvc := network.NewBuilder(archiveSvc, detector, 0)

	evalSvc := evaluation.New(archiveSvc, detector, opts.Judge, log).WithRubric(opts.Rubric)

	if err := manager.Register(ledgerSvc); err != nil {
		return nil, fmt.Errorf("register ledger: %w", err)
	}

	if opts.Judge != nil {
		pool := evaluation.NewPool(archiveSvc, evalSvc, ledgerSvc, opts.Anchor, opts.Workers, opts.PollInterval, log)
		if err := manager.Register(pool); err != nil {
			return nil, fmt.Errorf("register evaluation pool: %w", err)
		}
	} else {
		log.Warn("no oracle judge configured; evaluation pool disabled")
	}

	return &Application{
		manager:    manager,
		log:        log,
		Archive:    archiveSvc,
		Detector:   detector,
		Evaluation: evalSvc,
		Ledger:     ledgerSvc,
		Network:    networkSvc,
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before
// Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
