// Package runmanager provides the adapter for running the run manager loop.
package runmanager

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aiqualifier/aiq-api/config"
	"github.com/aiqualifier/aiq-api/internal/core"
	"github.com/aiqualifier/aiq-api/internal/data"
	"github.com/aiqualifier/aiq-api/internal/observability/statsd"
	"github.com/aiqualifier/aiq-api/internal/service"
)

// RunFinalizer completes a run by aggregating its persisted results.
// *service.QualificationService is the production implementation.
type RunFinalizer interface {
	FinalizeRun(ctx context.Context, runID string) error
}

// Runner provides a simple adapter to run the run manager loop.
// It constructs the run manager service and runs the recovery sweep.
type Runner struct {
	manager *service.RunManagerService
	logger  *slog.Logger
}

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	DB        *sql.DB
	Config    config.RunManagerConfig
	Logger    *slog.Logger
	Finalizer RunFinalizer

	// Optional dependency injection for testing/decoupling
	Runs    core.RunRepository
	Results core.ProspectResultRepository
	Jobs    core.JobRepository
	Metrics statsd.Sink
}

// NewRunner creates a new run manager runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if err := validateRunnerOptions(&opts); err != nil {
		return nil, err
	}

	manager, err := wireRunManagerService(opts)
	if err != nil {
		return nil, fmt.Errorf("wire run manager service: %w", err)
	}

	return &Runner{
		manager: manager,
		logger:  opts.Logger,
	}, nil
}

// validateRunnerOptions validates and sets defaults for RunnerOptions.
func validateRunnerOptions(opts *RunnerOptions) error {
	if opts.DB == nil && (opts.Runs == nil || opts.Results == nil || opts.Jobs == nil) {
		return errors.New("database connection is required when repositories are not injected")
	}
	if opts.Finalizer == nil {
		return errors.New("run finalizer is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return nil
}

// wireRunManagerService wires up all dependencies for the run manager service.
func wireRunManagerService(opts RunnerOptions) (*service.RunManagerService, error) {
	runs := opts.Runs
	if runs == nil {
		runs = data.NewRunRepo(data.RunRepoOptions{DB: opts.DB, Logger: opts.Logger})
	}
	results := opts.Results
	if results == nil {
		results = data.NewProspectResultRepo(data.ProspectResultRepoOptions{DB: opts.DB, Logger: opts.Logger})
	}
	jobs := opts.Jobs
	if jobs == nil {
		jobs = data.NewJobRepo(opts.DB, data.RepoConfig{})
	}

	return service.NewRunManagerService(service.RunManagerServiceOptions{
		Runs:      runs,
		Results:   results,
		Jobs:      jobs,
		Finalizer: opts.Finalizer,
		Config:    opts.Config,
		Metrics:   opts.Metrics,
		Logger:    opts.Logger,
	})
}

// Run starts the recovery sweep loop and runs until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting run manager runner")
	return r.manager.Run(ctx)
}
