package core

import (
	"context"
	"time"

	"github.com/aiqualifier/aiq-api/internal/domain/model"
)

// This file contains repository interface definitions (ports in hexagonal architecture).
// These interfaces define the contracts between the service layer and data layer.
// Service implementations should depend on these interfaces, not concrete implementations.

// JobRepository defines the interface for persisted job queue operations.
type JobRepository interface {
	Create(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error)
	GetByID(ctx context.Context, id string) (*model.Job, error)
	// ReserveNext atomically claims the next runnable job of the given type
	// and stamps a lease of leaseSeconds. Returns model.ErrNoJobsAvailable
	// when nothing is runnable.
	ReserveNext(ctx context.Context, jobType model.JobType, leaseSeconds int) (*model.Job, error)
	WaitForNotification(ctx context.Context, jobType model.JobType) error
	// Heartbeat extends the lease of a running job. Returns false when the
	// job is no longer running (another worker reclaimed it or it finished).
	Heartbeat(ctx context.Context, jobID string, leaseSeconds int) (bool, error)
	UpdateProgress(ctx context.Context, jobID string, progress model.JobProgress) (bool, error)
	Complete(ctx context.Context, id string) (bool, error)
	// Fail records the error and either requeues the job for another attempt
	// or marks it terminally failed once retries are exhausted.
	Fail(ctx context.Context, id, errMsg string) (bool, error)
	// Cancel transitions a pending job to cancelled. Jobs already running
	// are left untouched and false is returned.
	Cancel(ctx context.Context, id string) (bool, error)
	Stats(ctx context.Context, jobType model.JobType) (*model.JobStats, error)
	List(ctx context.Context, opts *model.JobListOptions) ([]*model.Job, error)
	Delete(ctx context.Context, id string) error
}

// RunRepository defines the interface for qualification run data operations.
type RunRepository interface {
	Create(ctx context.Context, req *model.CreateRunRequest) (*model.Run, error)
	GetByID(ctx context.Context, id string) (*model.Run, error)
	List(ctx context.Context, opts *model.RunListOptions) ([]*model.Run, error)
	// MarkProcessing transitions a pending run to processing. Returns false
	// when the run is not pending.
	MarkProcessing(ctx context.Context, id string) (bool, error)
	// IncrementCompleted bumps the completed counter by delta, clamped to
	// the run's total. Returns the updated run.
	IncrementCompleted(ctx context.Context, id string, delta int) (*model.Run, error)
	Complete(ctx context.Context, params CompleteRunParams) (*model.Run, error)
	Fail(ctx context.Context, params FailRunParams) (*model.Run, error)
	// FindStuck returns active runs created before the cutoff.
	FindStuck(ctx context.Context, params FindStuckRunsParams) ([]*model.Run, error)
	// FindActive returns runs in pending or processing state.
	FindActive(ctx context.Context, limit int) ([]*model.Run, error)
	Stats(ctx context.Context) (*model.RunStats, error)
	// WithRecoveryLock runs fn while holding a per-run advisory lock so two
	// concurrent sweeps cannot both resume the same run. Returns false
	// without calling fn when another holder has the lock.
	WithRecoveryLock(ctx context.Context, runID string, fn func(ctx context.Context) error) (bool, error)
	DeleteOldRuns(ctx context.Context, params DeleteOldRunsParams) (int64, error)
}

// CompleteRunParams groups parameters for RunRepository.Complete.
type CompleteRunParams struct {
	RunID   string
	Summary model.RunSummary
}

// FailRunParams groups parameters for RunRepository.Fail.
type FailRunParams struct {
	RunID  string
	Reason string
}

// FindStuckRunsParams groups parameters for RunRepository.FindStuck.
type FindStuckRunsParams struct {
	OlderThan time.Duration
	Limit     int
}

// DeleteOldRunsParams groups parameters for RunRepository.DeleteOldRuns.
type DeleteOldRunsParams struct {
	MaxAge    time.Duration
	BatchSize int
}

// ProspectResultRepository defines the interface for per-domain result rows.
type ProspectResultRepository interface {
	// UpsertBatch persists a batch of scored prospects in input order,
	// marking each row completed. Conflicting rows for the same run and
	// domain are overwritten.
	UpsertBatch(ctx context.Context, runID string, scores []model.ProspectScore) error
	ListByRun(ctx context.Context, runID string, limit, offset int) ([]*model.ProspectResult, error)
	// PendingDomains diffs the requested domains against completed result
	// rows and returns, in input order, those still needing qualification.
	PendingDomains(ctx context.Context, runID string, domains []string) ([]string, error)
	// LastActivity returns the most recent analyzed_at for the run, or nil
	// when no result has been written yet.
	LastActivity(ctx context.Context, runID string) (*time.Time, error)
}

// ProgressRepository defines the interface for learner progress records.
type ProgressRepository interface {
	Upsert(ctx context.Context, req *model.UpsertProgressRequest) (*model.LearnerProgress, error)
	Get(ctx context.Context, userID, qualificationID string) (*model.LearnerProgress, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*model.LearnerProgress, error)
	Delete(ctx context.Context, userID, qualificationID string) (bool, error)
}

// UATRepository defines the interface for user-acceptance-testing records.
type UATRepository interface {
	CreateSession(ctx context.Context, req *model.StartUATSessionRequest) (*model.UATSession, error)
	GetSession(ctx context.Context, id string) (*model.UATSession, error)
	ListSessions(ctx context.Context, userID string, limit, offset int) ([]*model.UATSession, error)
	// CloseSession transitions an active session to the given terminal
	// status. Returns false when the session is not active.
	CloseSession(ctx context.Context, id string, status model.UATSessionStatus) (bool, error)
	RecordTask(ctx context.Context, sessionID string, req *model.RecordUATTaskRequest) (*model.UATTaskResult, error)
	ListTasks(ctx context.Context, sessionID string) ([]*model.UATTaskResult, error)
	SubmitFeedback(ctx context.Context, sessionID string, req *model.SubmitUATFeedbackRequest) (*model.UATFeedback, error)
	ListFeedback(ctx context.Context, sessionID string) ([]*model.UATFeedback, error)
}

// DeleteOldJobsParams groups parameters for DeleteOldJobs to keep param count ≤3.
type DeleteOldJobsParams struct {
	Status    model.JobStatus
	MaxAge    time.Duration
	BatchSize int
}

// ReaperRepository defines the interface for queue cleanup operations.
type ReaperRepository interface {
	// FailStalePendingJobs marks pending jobs older than maxAge as failed.
	// Processes up to batchSize jobs per call to prevent long locks.
	// Returns the number of jobs marked as failed.
	FailStalePendingJobs(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error)

	// DeleteOldJobs deletes jobs with the given status older than maxAge.
	// Processes up to batchSize jobs per call to prevent long locks.
	// Returns the number of jobs deleted.
	DeleteOldJobs(ctx context.Context, params DeleteOldJobsParams) (int64, error)
}
