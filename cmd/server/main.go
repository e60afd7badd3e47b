// Package main is the entry point for the Horizon allocation engine: a
// service that forecasts next-day prices for a fixed equity universe,
// solves a constrained mean-variance allocation over the forecasts, and
// persists one allocation snapshot per trading day.
//
// Startup sequence:
//  1. Load and validate configuration from environment variables
//  2. Initialize structured logging
//  3. Open the snapshot database and ensure its schema
//  4. Wire the pipeline: series store → forecaster → return estimator →
//     allocator → orchestrator → snapshot repository
//  5. Register scheduled jobs (daily run, optional backups)
//  6. Start the HTTP server and wait for a shutdown signal
package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/aristath/horizon/internal/allocation"
	"github.com/aristath/horizon/internal/calendar"
	"github.com/aristath/horizon/internal/config"
	"github.com/aristath/horizon/internal/database"
	"github.com/aristath/horizon/internal/events"
	"github.com/aristath/horizon/internal/forecast"
	"github.com/aristath/horizon/internal/history"
	"github.com/aristath/horizon/internal/reliability"
	"github.com/aristath/horizon/internal/returns"
	"github.com/aristath/horizon/internal/run"
	"github.com/aristath/horizon/internal/scheduler"
	"github.com/aristath/horizon/internal/server"
	"github.com/aristath/horizon/internal/snapshots"
	"github.com/aristath/horizon/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().
		Int("universe", len(cfg.Universe)).
		Float64("risk_aversion", cfg.RiskAversion).
		Msg("Starting Horizon")

	// Snapshot database
	snapshotsDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "snapshots.db"),
		Profile: database.ProfileStandard,
		Name:    "snapshots",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open snapshot database")
	}
	defer snapshotsDB.Close()

	repo := snapshots.NewRepository(snapshotsDB, log)
	if err := repo.InitSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize snapshot schema")
	}

	// Pipeline wiring
	cal := calendar.New(calendar.DefaultHolidays())
	store := history.NewStore(filepath.Join(cfg.DataDir, "history"), log)
	bus := events.NewBus()

	forecaster := forecast.New(forecast.Config{
		MinHistory:            cfg.MinHistory,
		ChangepointPriorScale: cfg.ChangepointPriorScale,
		SeasonalityPriorScale: cfg.SeasonalityPriorScale,
		HolidayPriorScale:     cfg.HolidayPriorScale,
		IntervalWidth:         cfg.IntervalWidth,
	}, cal, log)

	estimator := returns.New(returns.Config{
		CovWindow:    cfg.CovWindow,
		MinWindowObs: cfg.MinWindowObs,
		MinUniverse:  cfg.MinUniverse,
	}, log)

	allocator := allocation.New(allocation.Config{
		RiskAversion: cfg.RiskAversion,
		MinWeight:    cfg.MinWeight,
		MaxWeight:    cfg.MaxWeight,
		MaxIter:      cfg.SolverMaxIter,
	}, log)

	orchestrator := run.New(run.Config{
		Universe:    cfg.Universe,
		MinUniverse: cfg.MinUniverse,
	}, store, repo, forecaster, estimator, allocator, cal, bus, log)

	// Scheduled jobs
	sched := scheduler.New(log)
	dailyJob := scheduler.NewDailyRunJob(orchestrator, cal, log)
	if err := sched.AddJob(cfg.DailyRunSchedule, dailyJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to register daily run job")
	}

	if cfg.BackupBucket != "" {
		s3Client, err := reliability.NewS3Client(context.Background(), reliability.S3Config{
			Bucket:    cfg.BackupBucket,
			Endpoint:  cfg.BackupEndpoint,
			Region:    cfg.BackupRegion,
			AccessKey: cfg.BackupAccessKey,
			SecretKey: cfg.BackupSecretKey,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create backup client")
		}
		backupSvc := reliability.NewBackupService(s3Client, snapshotsDB, log)
		backupJob := scheduler.NewBackupJob(backupSvc, log)
		if err := sched.AddJob(cfg.BackupSchedule, backupJob); err != nil {
			log.Fatal().Err(err).Msg("Failed to register backup job")
		}
	} else {
		log.Info().Msg("Backups disabled (no bucket configured)")
	}

	sched.Start()
	defer sched.Stop()

	// HTTP server
	srv := server.New(server.Config{
		Log:          log,
		Port:         cfg.Port,
		DevMode:      cfg.DevMode,
		SnapshotsDB:  snapshotsDB,
		Repository:   repo,
		Orchestrator: orchestrator,
		EventBus:     bus,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Graceful shutdown failed")
	}

	log.Info().Msg("Horizon stopped")
}
