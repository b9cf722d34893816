package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/aiqualifier/aiq-api/config"
	"github.com/aiqualifier/aiq-api/internal/adapters/qualrunner"
	"github.com/aiqualifier/aiq-api/internal/adapters/reaper"
	"github.com/aiqualifier/aiq-api/internal/adapters/runmanager"
	"github.com/aiqualifier/aiq-api/internal/observability/statsd"
	"github.com/aiqualifier/aiq-api/internal/service"
)

// QualifierRunnerConfig contains configuration for the qualification job worker.
type QualifierRunnerConfig struct {
	DB          *sql.DB
	Logger      *slog.Logger
	Lease       time.Duration
	Concurrency int
	Qualifier   *service.QualificationService
	Jobs        *service.JobService
	Metrics     statsd.Sink
}

// RunQualifierRunner starts the qualification job worker pool.
func RunQualifierRunner(ctx context.Context, cfg QualifierRunnerConfig) error {
	runner, err := qualrunner.NewRunner(qualrunner.RunnerOptions{
		DB:          cfg.DB,
		Logger:      cfg.Logger,
		Lease:       cfg.Lease,
		Concurrency: cfg.Concurrency,
		Qualifier:   cfg.Qualifier,
		JobsSvc:     cfg.Jobs,
		Metrics:     cfg.Metrics,
	})
	if err != nil {
		return fmt.Errorf("create qualifier runner: %w", err)
	}

	return runner.Run(ctx)
}

// RunManagerRunnerConfig contains configuration for the run recovery sweep.
type RunManagerRunnerConfig struct {
	DB        *sql.DB
	Logger    *slog.Logger
	Config    config.RunManagerConfig
	Finalizer runmanager.RunFinalizer
	Metrics   statsd.Sink
}

// RunRunManager starts the recovery sweep for stuck qualification runs.
func RunRunManager(ctx context.Context, cfg RunManagerRunnerConfig) error {
	runner, err := runmanager.NewRunner(runmanager.RunnerOptions{
		DB:        cfg.DB,
		Config:    cfg.Config,
		Logger:    cfg.Logger,
		Finalizer: cfg.Finalizer,
		Metrics:   cfg.Metrics,
	})
	if err != nil {
		return fmt.Errorf("create run manager runner: %w", err)
	}

	return runner.Run(ctx)
}

// ReaperConfig contains configuration for reaper.
type ReaperConfig struct {
	DB      *sql.DB
	Logger  *slog.Logger
	Config  config.ReaperConfig
	Metrics statsd.Sink
}

// RunReaper starts the retention cleanup loop.
func RunReaper(ctx context.Context, cfg ReaperConfig) error {
	runner, err := reaper.NewRunner(reaper.RunnerOptions{
		DB:      cfg.DB,
		Config:  cfg.Config,
		Logger:  cfg.Logger,
		Metrics: cfg.Metrics,
	})
	if err != nil {
		return fmt.Errorf("create reaper runner: %w", err)
	}

	return runner.Run(ctx)
}
