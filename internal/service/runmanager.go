package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aiqualifier/aiq-api/config"
	"github.com/aiqualifier/aiq-api/internal/core"
	"github.com/aiqualifier/aiq-api/internal/data"
	"github.com/aiqualifier/aiq-api/internal/domain/model"
	domainrun "github.com/aiqualifier/aiq-api/internal/domain/run"
	apperrors "github.com/aiqualifier/aiq-api/internal/errors"
	"github.com/aiqualifier/aiq-api/internal/observability/metrics"
	"github.com/aiqualifier/aiq-api/internal/observability/statsd"
)

// runFinalizer completes a run by aggregating its persisted results.
// QualificationService satisfies this.
type runFinalizer interface {
	FinalizeRun(ctx context.Context, runID string) error
}

// RunManagerServiceOptions groups dependencies for RunManagerService.
type RunManagerServiceOptions struct {
	Runs         core.RunRepository            // Required: run repository
	Results      core.ProspectResultRepository // Required: result rows, for activity and diffing
	Jobs         core.JobRepository            // Required: job queue, for resume enqueues and cancels
	Finalizer    runFinalizer                  // Required: completes runs whose work already finished
	Config       config.RunManagerConfig       // Required: sweep configuration
	Metrics      statsd.Sink                   // Optional: metric sink
	TimeProvider data.TimeProvider             // Optional: clock override for tests
	Logger       *slog.Logger                  // Optional: structured logger
}

// RunManagerService watches active qualification runs and repairs the ones
// that stopped making progress: timed-out runs are resumed, failed, or
// finalized according to how far they got, and old finished runs are purged.
type RunManagerService struct {
	runs         core.RunRepository
	results      core.ProspectResultRepository
	jobs         core.JobRepository
	finalizer    runFinalizer
	config       config.RunManagerConfig
	metrics      statsd.Sink
	timeProvider data.TimeProvider
	logger       *slog.Logger
}

// NewRunManagerService constructs a new RunManagerService.
func NewRunManagerService(opts RunManagerServiceOptions) (*RunManagerService, error) {
	if opts.Runs == nil {
		return nil, errors.New("RunRepository is required")
	}
	if opts.Results == nil {
		return nil, errors.New("ProspectResultRepository is required")
	}
	if opts.Jobs == nil {
		return nil, errors.New("JobRepository is required")
	}
	if opts.Finalizer == nil {
		return nil, errors.New("Finalizer is required")
	}

	timeProvider := opts.TimeProvider
	if timeProvider == nil {
		timeProvider = &data.RealTimeProvider{}
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "run_manager")
		logger.Debug("RunManagerService initialized",
			"interval", opts.Config.Interval,
			"run_timeout", opts.Config.RunTimeout,
			"stale_after", opts.Config.StaleAfter,
		)
	}

	return &RunManagerService{
		runs:         opts.Runs,
		results:      opts.Results,
		jobs:         opts.Jobs,
		finalizer:    opts.Finalizer,
		config:       opts.Config,
		metrics:      opts.Metrics,
		timeProvider: timeProvider,
		logger:       logger,
	}, nil
}

// Run performs startup recovery, then sweeps for timed-out runs at the
// configured interval until the context is cancelled. Returns nil on graceful
// shutdown.
func (s *RunManagerService) Run(ctx context.Context) error {
	if s.logger != nil {
		s.logger.InfoContext(ctx, "starting run manager", "interval", s.config.Interval)
	}

	if _, err := s.RecoverStuckRuns(ctx); err != nil && !isContextCancellation(err) {
		if s.logger != nil {
			s.logger.ErrorContext(ctx, "startup recovery failed", "error", err)
		}
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if s.logger != nil {
				s.logger.InfoContext(ctx, "run manager stopping", "reason", ctx.Err())
			}
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()

		case <-ticker.C:
			if _, err := s.CheckTimeouts(ctx); err != nil && !isContextCancellation(err) {
				if s.logger != nil {
					s.logger.ErrorContext(ctx, "timeout sweep failed", "error", err)
				}
			}
		}
	}
}

// CheckTimeouts finds active runs older than the configured run timeout and
// applies the recovery decision to each. Returns how many runs were acted on.
func (s *RunManagerService) CheckTimeouts(ctx context.Context) (int, error) {
	stuck, err := s.runs.FindStuck(ctx, core.FindStuckRunsParams{
		OlderThan: s.config.RunTimeout,
		Limit:     s.config.BatchLimit,
	})
	if err != nil {
		return 0, fmt.Errorf("find timed out runs: %w", err)
	}

	acted := 0
	for _, run := range stuck {
		if ctx.Err() != nil {
			return acted, ctx.Err()
		}
		handled, err := s.recoverRun(ctx, run.ID)
		if err != nil {
			if s.logger != nil {
				s.logger.ErrorContext(ctx, "recovery of timed out run failed", "run_id", run.ID, "error", err)
			}
			continue
		}
		if handled {
			acted++
		}
	}

	return acted, nil
}

// RecoverStuckRuns inspects every active run, checking both age and recent
// result activity, and recovers the stuck ones. Intended to be called once at
// startup so runs orphaned by a crashed worker do not wait a full timeout.
func (s *RunManagerService) RecoverStuckRuns(ctx context.Context) (int, error) {
	active, err := s.runs.FindActive(ctx, s.config.BatchLimit)
	if err != nil {
		return 0, fmt.Errorf("find active runs: %w", err)
	}

	now := s.timeProvider.Now()
	recovered := 0
	for _, run := range active {
		if ctx.Err() != nil {
			return recovered, ctx.Err()
		}

		lastActivity, err := s.results.LastActivity(ctx, run.ID)
		if err != nil {
			if s.logger != nil {
				s.logger.WarnContext(ctx, "activity lookup failed", "run_id", run.ID, "error", err)
			}
			continue
		}

		health := domainrun.AssessHealth(run, lastActivity, now, s.config.RunTimeout, s.config.StaleAfter)
		if !health.Stuck {
			continue
		}

		handled, err := s.recoverRun(ctx, run.ID)
		if err != nil {
			if s.logger != nil {
				s.logger.ErrorContext(ctx, "recovery of stuck run failed", "run_id", run.ID, "error", err)
			}
			continue
		}
		if handled {
			recovered++
		}
	}

	if recovered > 0 && s.logger != nil {
		s.logger.InfoContext(ctx, "recovered stuck runs", "count", recovered)
	}

	return recovered, nil
}

// recoverRun applies the recovery decision to one run under its advisory
// lock. Returns false when another sweep holds the lock or the run left the
// active states before we got to it.
func (s *RunManagerService) recoverRun(ctx context.Context, runID string) (bool, error) {
	acquired, err := s.runs.WithRecoveryLock(ctx, runID, func(ctx context.Context) error {
		run, err := s.runs.GetByID(ctx, runID)
		if err != nil {
			return fmt.Errorf("load run: %w", err)
		}
		if !run.Status.Active() {
			// A worker finished or failed it between the sweep query and here.
			return nil
		}

		decision := domainrun.DecideRecovery(run.CompletedProspects, run.TotalProspects)
		if s.logger != nil {
			s.logger.InfoContext(ctx, "recovering run",
				"run_id", run.ID,
				"action", decision.Action,
				"reason", decision.Reason,
				"completed", run.CompletedProspects,
				"total", run.TotalProspects,
			)
		}

		switch decision.Action {
		case domainrun.ActionComplete:
			return s.finalizer.FinalizeRun(ctx, run.ID)
		case domainrun.ActionFail:
			return s.failRunLocked(ctx, run.ID, decision.Reason)
		case domainrun.ActionResume:
			return s.resumeRunLocked(ctx, run)
		default:
			return fmt.Errorf("unknown recovery action %q", decision.Action)
		}
	})
	if err != nil {
		return false, err
	}
	if !acquired && s.logger != nil {
		s.logger.DebugContext(ctx, "recovery lock held elsewhere, skipping", "run_id", runID)
	}
	return acquired, nil
}

// ResumeRun re-enqueues the qualification work for a run with salvageable
// partial progress. Safe to call concurrently; the advisory lock ensures a
// single resume job per run.
func (s *RunManagerService) ResumeRun(ctx context.Context, runID string) error {
	if runID == "" {
		return apperrors.ValidationField("run_id", "run id is required")
	}

	acquired, err := s.runs.WithRecoveryLock(ctx, runID, func(ctx context.Context) error {
		run, err := s.runs.GetByID(ctx, runID)
		if err != nil {
			return fmt.Errorf("load run: %w", err)
		}
		if !run.Status.Active() {
			return apperrors.Conflictf("run %s is %s and cannot be resumed", runID, run.Status)
		}
		return s.resumeRunLocked(ctx, run)
	})
	if err != nil {
		return err
	}
	if !acquired {
		return apperrors.Conflictf("run %s is being recovered by another process", runID)
	}
	return nil
}

// resumeRunLocked performs the resume while the caller holds the recovery
// lock. When nothing remains pending the run is finalized instead of
// re-enqueued.
func (s *RunManagerService) resumeRunLocked(ctx context.Context, run *model.Run) error {
	payload, err := s.latestQualifyPayload(ctx, run.ID)
	if err != nil {
		return err
	}

	pending, err := s.results.PendingDomains(ctx, run.ID, payload.Domains)
	if err != nil {
		return fmt.Errorf("diff pending domains: %w", err)
	}
	if len(pending) == 0 {
		if s.logger != nil {
			s.logger.InfoContext(ctx, "no pending prospects, finalizing instead of resuming", "run_id", run.ID)
		}
		return s.finalizer.FinalizeRun(ctx, run.ID)
	}

	encoded, err := payload.Encode()
	if err != nil {
		return err
	}
	job, err := s.jobs.Create(ctx, &model.CreateJobRequest{
		Type:       model.JobTypeQualifyProspects,
		Payload:    encoded,
		UserID:     &payload.UserID,
		RunID:      &run.ID,
		MaxRetries: 3,
	})
	if err != nil {
		return fmt.Errorf("enqueue resume job: %w", err)
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "run resumed",
			"run_id", run.ID,
			"job_id", job.ID,
			"pending", len(pending),
		)
	}
	metrics.EmitRunLifecycle(s.metrics, metrics.RunMetric{
		Phase:     metrics.RunPhaseResumed,
		Result:    metrics.ResultSuccess,
		Prospects: len(pending),
	})

	return nil
}

// latestQualifyPayload loads the most recent qualification job payload for
// the run, which carries the full requested domain list.
func (s *RunManagerService) latestQualifyPayload(ctx context.Context, runID string) (*model.QualifyJobPayload, error) {
	jobType := model.JobTypeQualifyProspects
	jobs, err := s.jobs.List(ctx, &model.JobListOptions{
		RunID: &runID,
		Type:  &jobType,
		Limit: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("find qualification job for run %s: %w", runID, err)
	}
	if len(jobs) == 0 {
		return nil, apperrors.NotFoundf("no qualification job found for run %s", runID)
	}
	return DecodeQualifyPayload(jobs[0].Payload)
}

// FailRun marks a run as failed with the given reason and cancels any pending
// jobs still queued for it.
func (s *RunManagerService) FailRun(ctx context.Context, runID, reason string) error {
	if runID == "" {
		return apperrors.ValidationField("run_id", "run id is required")
	}
	if reason == "" {
		return apperrors.ValidationField("reason", "reason is required")
	}
	return s.failRunLocked(ctx, runID, reason)
}

func (s *RunManagerService) failRunLocked(ctx context.Context, runID, reason string) error {
	run, err := s.runs.Fail(ctx, core.FailRunParams{RunID: runID, Reason: reason})
	if err != nil {
		return fmt.Errorf("fail run %s: %w", runID, err)
	}

	s.cancelPendingJobs(ctx, runID)

	if s.logger != nil {
		s.logger.InfoContext(ctx, "run failed",
			"run_id", runID,
			"reason", reason,
			"completed", run.CompletedProspects,
			"total", run.TotalProspects,
		)
	}
	metrics.EmitRunLifecycle(s.metrics, metrics.RunMetric{
		Phase:  metrics.RunPhaseFailed,
		Result: metrics.ResultSuccess,
	})

	return nil
}

// cancelPendingJobs cancels queued jobs for a failed run so workers do not
// pick up work for a run that will reject it. Best effort.
func (s *RunManagerService) cancelPendingJobs(ctx context.Context, runID string) {
	pending := model.JobStatusPending
	jobs, err := s.jobs.List(ctx, &model.JobListOptions{
		RunID:  &runID,
		Status: &pending,
		Limit:  50,
	})
	if err != nil {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "listing pending jobs for cancel failed", "run_id", runID, "error", err)
		}
		return
	}
	for _, job := range jobs {
		if _, err := s.jobs.Cancel(ctx, job.ID); err != nil && s.logger != nil {
			s.logger.WarnContext(ctx, "cancel pending job failed", "job_id", job.ID, "error", err)
		}
	}
}

// Cleanup deletes finished runs older than the given number of days. Returns
// the number of runs deleted.
func (s *RunManagerService) Cleanup(ctx context.Context, olderThanDays int) (int64, error) {
	if olderThanDays <= 0 {
		return 0, apperrors.ValidationField("older_than_days", "must be positive")
	}

	maxAge := time.Duration(olderThanDays) * 24 * time.Hour
	var total int64
	for {
		count, err := s.runs.DeleteOldRuns(ctx, core.DeleteOldRunsParams{
			MaxAge:    maxAge,
			BatchSize: s.config.BatchLimit,
		})
		if err != nil {
			return total, fmt.Errorf("delete old runs: %w", err)
		}
		total += count
		if count == 0 {
			break
		}
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
	}

	if total > 0 && s.logger != nil {
		s.logger.InfoContext(ctx, "cleaned up old runs", "count", total, "older_than_days", olderThanDays)
	}

	return total, nil
}

// RunHealthStatus returns the health snapshot for one run.
func (s *RunManagerService) RunHealthStatus(ctx context.Context, runID string) (*domainrun.Health, error) {
	if runID == "" {
		return nil, apperrors.ValidationField("run_id", "run id is required")
	}

	run, err := s.runs.GetByID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", runID, err)
	}

	lastActivity, err := s.results.LastActivity(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("last activity for run %s: %w", runID, err)
	}

	health := domainrun.AssessHealth(run, lastActivity, s.timeProvider.Now(), s.config.RunTimeout, s.config.StaleAfter)
	return &health, nil
}

// Stats aggregates run counts by status.
func (s *RunManagerService) Stats(ctx context.Context) (*model.RunStats, error) {
	stats, err := s.runs.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("run stats: %w", err)
	}
	return stats, nil
}
