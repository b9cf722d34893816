package data

import (
	"database/sql"
	"log/slog"

	apperrors "github.com/aiqualifier/aiq-api/internal/errors"
)

var (
	// ErrJobNotFound is returned when a job is not found. It carries the
	// not-found error code so lookups against a missing job surface as 404
	// at the HTTP layer.
	ErrJobNotFound = apperrors.NotFound("job not found")
	// ErrJobNotDeletable is returned when attempting to delete a job that is not in a deletable state.
	ErrJobNotDeletable = apperrors.Conflict("job cannot be deleted (must be in a terminal or pending status)")
	// ErrJobReserved is returned when attempting to delete a job that has an active lease.
	ErrJobReserved = apperrors.Conflict("job is reserved and cannot be deleted")
)

// RepoConfig holds configuration options for the job repository.
type RepoConfig struct {
	RetryDelaySeconds int
	Logger            *slog.Logger
	TimeProvider      TimeProvider
}

// JobRepo provides database operations for the persisted job queue.
type JobRepo struct {
	DB           *sql.DB
	cfg          RepoConfig
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewJobRepo creates a new JobRepo instance with the given database connection and configuration.
func NewJobRepo(db *sql.DB, cfg RepoConfig) *JobRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}

	return &JobRepo{
		DB:           db,
		cfg:          cfg,
		timeProvider: tp,
		logger:       cfg.Logger,
	}
}

const jobColumns = `
  id,
  type,
  status,
  priority,
  payload,
  progress,
  user_id,
  run_id,
  scheduled_at,
  started_at,
  completed_at,
  retry_count,
  max_retries,
  last_error,
  lease_expires_at,
  created_at,
  updated_at
`
