package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	app "github.com/Inscribe-Network/archive_layer/internal/app"
	"github.com/Inscribe-Network/archive_layer/internal/app/httpapi"
	"github.com/Inscribe-Network/archive_layer/internal/app/metrics"
	"github.com/Inscribe-Network/archive_layer/internal/app/services/anchor"
	"github.com/Inscribe-Network/archive_layer/internal/app/services/evaluation"
	"github.com/Inscribe-Network/archive_layer/internal/app/storage/file"
	"github.com/Inscribe-Network/archive_layer/internal/app/storage/postgres"
	"github.com/Inscribe-Network/archive_layer/internal/config"
	"github.com/Inscribe-Network/archive_layer/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "archive-layer: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	configPath := os.Getenv("ARCHIVE_CONFIG")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		FilePrefix: cfg.Logging.FilePrefix,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stores, db, err := buildStores(ctx, cfg)
	if err != nil {
		return fmt.Errorf("configure stores: %w", err)
	}
	if db != nil {
		defer db.Close()
	}

	httpClient := &http.Client{}

	opts := app.Options{
		Workers:      cfg.Evaluation.Workers,
		PollInterval: time.Duration(cfg.Evaluation.PollIntervalSeconds) * time.Second,
		TotalSupply:  cfg.Ledger.TotalSupply,
		Rubric:       cfg.Oracle.Rubric,
	}
	if cfg.Oracle.Endpoint != "" {
		judge, err := evaluation.NewHTTPJudge(
			httpClient,
			cfg.Oracle.Endpoint,
			cfg.Oracle.APIKey,
			time.Duration(cfg.Oracle.TimeoutSeconds)*time.Second,
			cfg.Oracle.RatePerMinute,
			log,
		)
		if err != nil {
			return fmt.Errorf("configure oracle judge: %w", err)
		}
		opts.Judge = judge
	}
	if cfg.Anchor.Endpoint != "" {
		notifier, err := anchor.NewNotifier(httpClient, cfg.Anchor.Endpoint, cfg.Anchor.APIKey, log)
		if err != nil {
			return fmt.Errorf("configure anchor notifier: %w", err)
		}
		opts.Anchor = notifier
	}

	application, err := app.New(stores, opts, log)
	if err != nil {
		return fmt.Errorf("build application: %w", err)
	}

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("start application: %w", err)
	}

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           metrics.InstrumentHandler(httpapi.NewHandler(application, cfg.Auth.JWTSecret)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("HTTP server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown requested")
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	if err := application.Stop(shutdownCtx); err != nil {
		log.WithError(err).Warn("application shutdown")
	}
	return nil
}

func buildStores(ctx context.Context, cfg *config.Config) (app.Stores, *sql.DB, error) {
	switch cfg.Storage.Backend {
	case "memory":
		return app.Stores{}, nil, nil

	case "file":
		store, err := file.New(cfg.Storage.Dir)
		if err != nil {
			return app.Stores{}, nil, err
		}
		return app.Stores{Contributions: store, Ledger: store}, nil, nil

	case "postgres":
		db, err := sql.Open("postgres", cfg.Storage.DSN)
		if err != nil {
			return app.Stores{}, nil, err
		}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			db.Close()
			return app.Stores{}, nil, err
		}
		store := postgres.New(db)
		if err := store.Migrate(ctx); err != nil {
			db.Close()
			return app.Stores{}, nil, err
		}
		return app.Stores{Contributions: store, Ledger: store}, db, nil

	default:
		return app.Stores{}, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}
