// Package qualrunner provides the worker pool that executes prospect
// qualification jobs.
package qualrunner

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aiqualifier/aiq-api/internal/core"
	"github.com/aiqualifier/aiq-api/internal/data"
	"github.com/aiqualifier/aiq-api/internal/domain/model"
	"github.com/aiqualifier/aiq-api/internal/observability/metrics"
	"github.com/aiqualifier/aiq-api/internal/observability/statsd"
	"github.com/aiqualifier/aiq-api/internal/service"
)

// HandlerFunc processes a job and returns error to indicate failure (which will be retried per policy).
type HandlerFunc func(ctx context.Context, job *model.Job) error

// RunProcessor executes the qualification workflow for a decoded job payload.
// *service.QualificationService is the production implementation.
type RunProcessor interface {
	ProcessRun(ctx context.Context, payload *model.QualifyJobPayload, onProgress service.ProgressFunc) error
}

// RunnerOptions configures the qualification job runner.
type RunnerOptions struct {
	DB     *sql.DB
	Logger *slog.Logger

	// Job processing settings
	Lease       time.Duration // per-job lease duration; defaults to 60s
	Concurrency int           // number of worker goroutines; defaults to 1

	// Required: executes the qualification workflow for each job.
	Qualifier RunProcessor

	// Optional dependency injections (useful for tests/decoupling)
	JobsRepo core.JobRepository
	JobsSvc  *service.JobService
	Metrics  statsd.Sink
}

// Runner pulls qualification jobs and executes them using registered handlers.
// Concurrency is the hard cap on simultaneously processed jobs per instance;
// each held job carries a lease that the runner extends while work is in
// flight, so a crashed worker's job becomes reclaimable once its lease lapses.
type Runner struct {
	jobs      *service.JobService
	qualifier RunProcessor
	logger    *slog.Logger
	lease     time.Duration
	jobType   model.JobType
	workers   int
	handlers  map[model.JobType]HandlerFunc
	metrics   statsd.Sink
}

func resolveLogger(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return slog.Default()
}

// NewRunner wires repositories/services and constructs a qualification job runner.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.DB == nil && opts.JobsRepo == nil && opts.JobsSvc == nil {
		return nil, errors.New("one of DB, JobsRepo, or JobsSvc must be provided")
	}
	if opts.Qualifier == nil {
		return nil, errors.New("qualification service is required")
	}

	logger := resolveLogger(opts.Logger)

	lease := opts.Lease
	if lease <= 0 {
		lease = 60 * time.Second
	}
	workers := opts.Concurrency
	if workers <= 0 {
		workers = 1
	}

	jobSvc := opts.JobsSvc
	if jobSvc == nil {
		jobsRepo := opts.JobsRepo
		if jobsRepo == nil {
			jobsRepo = data.NewJobRepo(opts.DB, data.RepoConfig{})
		}
		var err error
		jobSvc, err = service.NewJobService(service.JobServiceOptions{
			Repo:         jobsRepo,
			DefaultLease: lease,
			Logger:       opts.Logger,
		})
		if err != nil {
			return nil, fmt.Errorf("create job service: %w", err)
		}
	}

	r := &Runner{
		jobs:      jobSvc,
		qualifier: opts.Qualifier,
		logger:    logger,
		lease:     lease,
		jobType:   model.JobTypeQualifyProspects,
		workers:   workers,
		handlers:  make(map[model.JobType]HandlerFunc),
		metrics:   opts.Metrics,
	}
	r.handlers[model.JobTypeQualifyProspects] = r.handleQualifyJob
	return r, nil
}

// RegisterHandler adds or replaces the handler for a job type. Must be called
// before Run.
func (r *Runner) RegisterHandler(jobType model.JobType, h HandlerFunc) error {
	if !jobType.Valid() {
		return fmt.Errorf("invalid job type %q", jobType)
	}
	if h == nil {
		return errors.New("handler is required")
	}
	r.handlers[jobType] = h
	return nil
}

// Run starts worker goroutines and processes jobs until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting qualifier runner", "type", r.jobType, "workers", r.workers, "lease", r.lease)

	// Subscribe for notifications for the job type we process
	unsub, ch := r.jobs.Subscribe(r.jobType)
	defer unsub()

	// First worker error cancels the group context and stops the rest.
	g, ctx := errgroup.WithContext(ctx)
	for range r.workers {
		g.Go(func() error {
			return r.workerLoop(ctx, ch)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (r *Runner) workerLoop(ctx context.Context, notify <-chan struct{}) error {
	for ctx.Err() == nil {
		job, err := r.jobs.ReserveNext(ctx, r.jobType, r.lease)
		switch {
		case err == nil:
			if job != nil {
				r.processJob(ctx, job)
			}
		case errors.Is(err, model.ErrNoJobsAvailable):
			if !r.waitForNotify(ctx, notify) {
				return nil
			}
		default:
			return fmt.Errorf("reserve next: %w", err)
		}
	}
	return ctx.Err()
}

func (r *Runner) waitForNotify(ctx context.Context, notify <-chan struct{}) bool {
	select {
	case <-ctx.Done():
		return false
	case <-notify:
		return true
	}
}

func (r *Runner) processJob(ctx context.Context, job *model.Job) {
	start := time.Now()
	emit := func(transition, result string, err error) {
		metrics.EmitJobLifecycle(r.metrics, metrics.JobMetric{
			JobType:    string(job.Type),
			Transition: transition,
			Result:     result,
			Duration:   time.Since(start),
			Err:        err,
		})
	}

	h, ok := r.handlers[job.Type]
	if !ok {
		err := fmt.Errorf("no handler for job type %s", job.Type)
		if _, ferr := r.jobs.Fail(ctx, job.ID, err.Error()); ferr != nil {
			r.logger.ErrorContext(ctx, "fail job error", "job_id", job.ID, "error", ferr)
		}
		emit("failed", metrics.ResultError, err)
		return
	}

	stopHeartbeat := r.startHeartbeat(ctx, job.ID)
	err := h(ctx, job)
	stopHeartbeat()

	if err != nil {
		if _, ferr := r.jobs.Fail(ctx, job.ID, err.Error()); ferr != nil {
			r.logger.ErrorContext(ctx, "fail job error", "job_id", job.ID, "error", ferr, "original_error", err)
		}
		emit("failed", metrics.ResultError, err)
		return
	}
	if completed, err := r.jobs.Complete(ctx, job.ID); err != nil {
		r.logger.ErrorContext(ctx, "complete job error", "job_id", job.ID, "error", err)
		emit("completed", metrics.ResultError, err)
	} else {
		result := metrics.ResultNoop
		if completed {
			result = metrics.ResultSuccess
		}
		emit("completed", result, nil)
	}
}

// startHeartbeat extends the job lease at half the lease interval until the
// returned stop function is called. A heartbeat that reports the job is no
// longer running means another worker reclaimed it after a lease lapse; the
// loop stops so this worker's eventual Complete/Fail becomes a no-op.
func (r *Runner) startHeartbeat(ctx context.Context, jobID string) func() {
	interval := r.jobs.HeartbeatInterval()
	done := make(chan struct{})
	var once sync.Once
	stop := func() { once.Do(func() { close(done) }) }

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				alive, err := r.jobs.Heartbeat(ctx, jobID, r.lease)
				if err != nil {
					r.logger.WarnContext(ctx, "heartbeat failed", "job_id", jobID, "error", err)
					continue
				}
				if !alive {
					r.logger.WarnContext(ctx, "lease lost, job reclaimed elsewhere", "job_id", jobID)
					return
				}
			}
		}
	}()

	return stop
}

// handleQualifyJob decodes the payload and runs the qualification workflow,
// reporting per-prospect progress back onto the job row.
func (r *Runner) handleQualifyJob(ctx context.Context, job *model.Job) error {
	payload, err := service.DecodeQualifyPayload(job.Payload)
	if err != nil {
		return err
	}

	onProgress := func(ctx context.Context, completed, total int, domain string) error {
		_, err := r.jobs.UpdateProgress(ctx, job.ID, model.JobProgress{
			Completed: completed,
			Total:     total,
			Message:   fmt.Sprintf("scored %s", domain),
		})
		return err
	}

	return r.qualifier.ProcessRun(ctx, payload, onProgress)
}
