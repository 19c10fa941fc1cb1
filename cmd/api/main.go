package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"

	"github.com/tradematch/backend/internal/config"
	"github.com/tradematch/backend/internal/ledger"
	"github.com/tradematch/backend/internal/notify"
	"github.com/tradematch/backend/internal/repository"
	"github.com/tradematch/backend/internal/router"
	"github.com/tradematch/backend/internal/services"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Unable to create database pool. Ensure Postgres is running, e.g. docker-compose up -d", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	slog.Info("Connected to PostgreSQL, schema migrated")

	// River migrations
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		slog.Error("Failed to create River migrator", "error", err)
		os.Exit(1)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		slog.Error("River migrate up failed", "error", err)
		os.Exit(1)
	}
	slog.Info("River migrations applied")

	// Repositories
	jobRepo := repository.NewJobRepo(pool)
	vendorRepo := repository.NewVendorRepo(pool)
	scoreRepo := repository.NewScoreRepo(pool)
	offerRepo := repository.NewOfferRepo(pool)

	// Ledger
	ledgerRepo := ledger.NewRepository(pool)
	ledgerSvc := ledger.NewService(ledgerRepo)

	// Distribution pipeline. The notification insert func is bound after the
	// River client is created (breaks the init cycle).
	enqueuer := notify.NewEnqueuer()
	qualifier := services.NewQualifier(scoreRepo, jobRepo)
	pricer := services.NewPricingEngine(config.DefaultPricing(cfg))
	matcher := services.NewMatcher(vendorRepo, offerRepo, cfg.MinCandidateBalancePence, cfg.CandidateLimit)
	distributor := services.NewDistributor(
		pool, jobRepo, offerRepo,
		qualifier, pricer, matcher,
		ledgerSvc, enqueuer,
		cfg.OfferTTL, logger,
	)

	// Workers
	workers := river.NewWorkers()
	river.AddWorker(workers, notify.NewOfferNotifyWorker(&notify.LogSender{Logger: logger}))
	river.AddWorker(workers, notify.NewOfferSweepWorker(distributor, logger))
	river.AddWorker(workers, notify.NewLotSweepWorker(ledgerSvc, logger))

	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 10},
		},
		Workers: workers,
		PeriodicJobs: []*river.PeriodicJob{
			river.NewPeriodicJob(
				river.PeriodicInterval(cfg.OfferSweepInterval),
				func() (river.JobArgs, *river.InsertOpts) { return notify.OfferSweepArgs{}, nil },
				&river.PeriodicJobOpts{RunOnStart: true},
			),
			river.NewPeriodicJob(
				river.PeriodicInterval(cfg.LotSweepInterval),
				func() (river.JobArgs, *river.InsertOpts) { return notify.LotSweepArgs{}, nil },
				&river.PeriodicJobOpts{RunOnStart: true},
			),
		},
	})
	if err != nil {
		slog.Error("Failed to create River client", "error", err)
		os.Exit(1)
	}

	enqueuer.Bind(func(ctx context.Context, tx pgx.Tx, args notify.OfferNotificationArgs) error {
		_, err := riverClient.InsertTx(ctx, tx, args, nil)
		return err
	})

	handler := router.New(jobRepo, vendorRepo, scoreRepo, distributor, ledgerSvc, cfg.AllowedOrigins, logger)

	// Start River client (processes notifications and sweeps)
	riverCtx, stopRiver := context.WithCancel(ctx)
	defer stopRiver()
	go func() {
		if err := riverClient.Start(riverCtx); err != nil && riverCtx.Err() == nil {
			slog.Error("River client stopped", "error", err)
		}
	}()

	slog.Info("Starting HTTP server", "addr", cfg.ListenAddr)
	if err := http.ListenAndServe(cfg.ListenAddr, handler); err != nil {
		slog.Error("HTTP server failed", "error", err)
		os.Exit(1)
	}
}
