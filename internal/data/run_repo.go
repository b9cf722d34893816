package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math"

	apperrors "github.com/aiqualifier/aiq-api/internal/errors"

	"github.com/aiqualifier/aiq-api/internal/core"
	"github.com/aiqualifier/aiq-api/internal/data/pgxutil"
	"github.com/aiqualifier/aiq-api/internal/domain/model"
)

// ErrRunNotFound is returned when a run is not found. It carries the
// not-found error code so lookups against a missing run surface as 404
// at the HTTP layer.
var ErrRunNotFound = apperrors.NotFound("run not found")

// RunRepo provides database operations for qualification runs.
type RunRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// RunRepoOptions bundles dependencies for NewRunRepo.
type RunRepoOptions struct {
	DB           *sql.DB
	TimeProvider TimeProvider
	Logger       *slog.Logger
}

// NewRunRepo creates a new RunRepo instance.
func NewRunRepo(opts RunRepoOptions) *RunRepo {
	tp := opts.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	return &RunRepo{
		DB:           opts.DB,
		timeProvider: tp,
		logger:       opts.Logger,
	}
}

const runColumns = `
  id,
  user_id,
  qualification_id,
  total_prospects,
  completed_prospects,
  status,
  average_score,
  high_quality_count,
  last_error,
  created_at,
  updated_at,
  completed_at
`

type runRowScanner interface {
	Scan(dest ...any) error
}

func scanRunFromRow(scanner runRowScanner) (*model.Run, error) {
	run := &model.Run{}
	var (
		averageScore     sql.NullFloat64
		highQualityCount sql.NullInt64
		lastError        sql.NullString
		completedAt      sql.NullTime
	)

	if err := scanner.Scan(
		&run.ID,
		&run.UserID,
		&run.QualificationID,
		&run.TotalProspects,
		&run.CompletedProspects,
		&run.Status,
		&averageScore,
		&highQualityCount,
		&lastError,
		&run.CreatedAt,
		&run.UpdatedAt,
		&completedAt,
	); err != nil {
		return nil, err
	}

	if averageScore.Valid {
		v := averageScore.Float64
		run.AverageScore = &v
	}
	if highQualityCount.Valid {
		v := int(highQualityCount.Int64)
		run.HighQualityCount = &v
	}
	run.LastError = cloneNullableString(lastError)
	run.CompletedAt = cloneNullableTime(completedAt)

	return run, nil
}

func (r *RunRepo) queryRuns(ctx context.Context, query string, args ...any) ([]*model.Run, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*model.Run
	for rows.Next() {
		run, scanErr := scanRunFromRow(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Create inserts a new run in pending state with the requested prospect count.
func (r *RunRepo) Create(ctx context.Context, req *model.CreateRunRequest) (*model.Run, error) {
	if req == nil {
		return nil, errors.New("create run request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := r.timeProvider.Now().UTC()
	row := r.DB.QueryRowContext(ctx, `
		INSERT INTO runs (user_id, qualification_id, total_prospects, status, created_at, updated_at)
		VALUES ($1, $2, $3, 'pending', $4, $4)
		RETURNING `+runColumns, req.UserID, req.QualificationID, len(req.Domains), now)

	run, err := scanRunFromRow(row)
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return run, nil
}

// CreateInTx inserts a run within an existing transaction so the run and its
// qualification job commit together.
func (r *RunRepo) CreateInTx(ctx context.Context, tx *sql.Tx, req *model.CreateRunRequest) (*model.Run, error) {
	if tx == nil {
		return nil, errors.New("transaction is required")
	}
	if req == nil {
		return nil, errors.New("create run request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := r.timeProvider.Now().UTC()
	row := tx.QueryRowContext(ctx, `
		INSERT INTO runs (user_id, qualification_id, total_prospects, status, created_at, updated_at)
		VALUES ($1, $2, $3, 'pending', $4, $4)
		RETURNING `+runColumns, req.UserID, req.QualificationID, len(req.Domains), now)

	run, err := scanRunFromRow(row)
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return run, nil
}

// GetByID retrieves a run by its ID.
func (r *RunRepo) GetByID(ctx context.Context, id string) (*model.Run, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = $1`, id)
	run, err := scanRunFromRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// List returns runs matching the filter options, newest first.
func (r *RunRepo) List(ctx context.Context, opts *model.RunListOptions) ([]*model.Run, error) {
	if opts == nil {
		opts = &model.RunListOptions{}
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 1000 {
		limit = 1000
	}
	offset := max(opts.Offset, 0)

	query := `SELECT ` + runColumns + ` FROM runs WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.UserID != nil && *opts.UserID != "" {
		query += fmt.Sprintf(" AND user_id = $%d", argIdx)
		args = append(args, *opts.UserID)
		argIdx++
	}
	if opts.Status != nil && *opts.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, *opts.Status)
		argIdx++
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, limit, offset)

	runs, err := r.queryRuns(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// MarkProcessing transitions a pending run to processing.
func (r *RunRepo) MarkProcessing(ctx context.Context, id string) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE runs
		SET status = 'processing',
		    updated_at = $2
		WHERE id = $1 AND status = 'pending'
	`, id, r.timeProvider.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("mark run processing: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark processing rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// IncrementCompleted bumps the completed counter by delta and returns the
// updated run. LEAST clamps the counter so it never exceeds total_prospects.
func (r *RunRepo) IncrementCompleted(ctx context.Context, id string, delta int) (*model.Run, error) {
	if delta <= 0 {
		return nil, errors.New("delta must be positive")
	}

	row := r.DB.QueryRowContext(ctx, `
		UPDATE runs
		SET completed_prospects = LEAST(completed_prospects + $2, total_prospects),
		    updated_at = $3
		WHERE id = $1
		RETURNING `+runColumns, id, delta, r.timeProvider.Now().UTC())

	run, err := scanRunFromRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("increment completed: %w", err)
	}
	return run, nil
}

// Complete marks a run completed with its summary statistics. Only active
// runs transition; a run already completed or failed is left untouched.
func (r *RunRepo) Complete(ctx context.Context, params core.CompleteRunParams) (*model.Run, error) {
	now := r.timeProvider.Now().UTC()
	row := r.DB.QueryRowContext(ctx, `
		UPDATE runs
		SET status = 'completed',
		    completed_prospects = total_prospects,
		    average_score = $2,
		    high_quality_count = $3,
		    last_error = NULL,
		    completed_at = $4,
		    updated_at = $4
		WHERE id = $1 AND status IN ('pending', 'processing')
		RETURNING `+runColumns, params.RunID, params.Summary.AverageScore, params.Summary.HighQualityCount, now)

	run, err := scanRunFromRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("complete run: %w", err)
	}
	return run, nil
}

// Fail marks a run failed and records the reason on the row.
func (r *RunRepo) Fail(ctx context.Context, params core.FailRunParams) (*model.Run, error) {
	now := r.timeProvider.Now().UTC()
	row := r.DB.QueryRowContext(ctx, `
		UPDATE runs
		SET status = 'failed',
		    last_error = $2,
		    completed_at = $3,
		    updated_at = $3
		WHERE id = $1 AND status IN ('pending', 'processing')
		RETURNING `+runColumns, params.RunID, params.Reason, now)

	run, err := scanRunFromRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fail run: %w", err)
	}
	return run, nil
}

// FindStuck returns active runs created before the timeout cutoff, oldest first.
func (r *RunRepo) FindStuck(ctx context.Context, params core.FindStuckRunsParams) ([]*model.Run, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = 100
	}
	cutoff := r.timeProvider.Now().Add(-params.OlderThan).UTC()

	runs, err := r.queryRuns(ctx, `
		SELECT `+runColumns+`
		FROM runs
		WHERE status IN ('pending', 'processing')
		  AND created_at < $1
		ORDER BY created_at ASC
		LIMIT $2
	`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("find stuck runs: %w", err)
	}
	return runs, nil
}

// FindActive returns runs in pending or processing state, oldest first.
func (r *RunRepo) FindActive(ctx context.Context, limit int) ([]*model.Run, error) {
	if limit <= 0 {
		limit = 100
	}

	runs, err := r.queryRuns(ctx, `
		SELECT `+runColumns+`
		FROM runs
		WHERE status IN ('pending', 'processing')
		ORDER BY created_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("find active runs: %w", err)
	}
	return runs, nil
}

// Stats returns run counts grouped by status.
func (r *RunRepo) Stats(ctx context.Context) (*model.RunStats, error) {
	var s model.RunStats
	err := r.DB.QueryRowContext(ctx, `
  SELECT
    count(*) FILTER (WHERE status = 'pending')    AS pending,
    count(*) FILTER (WHERE status = 'processing') AS processing,
    count(*) FILTER (WHERE status = 'completed')  AS completed,
    count(*) FILTER (WHERE status = 'failed')     AS failed
  FROM runs
  `).Scan(&s.Pending, &s.Processing, &s.Completed, &s.Failed)
	if err != nil {
		return nil, fmt.Errorf("run stats: %w", err)
	}
	return &s, nil
}

// Advisory lock namespace for run recovery. Major key 1002 keeps recovery
// locks from colliding with the queue and reaper namespaces.
const advisoryLockRecoveryMajor int64 = 1002

func advisoryLockRecoveryMinor(runID string) int64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(runID))
	hashValue := h.Sum32()
	maxInt32 := uint32(math.MaxInt32)
	if hashValue > maxInt32 {
		hashValue &= maxInt32
	}
	return int64(hashValue)
}

// WithRecoveryLock runs fn inside a transaction holding a per-run advisory
// lock. When another sweep already holds the lock, fn is skipped and false is
// returned, so two concurrent sweeps cannot both resume the same run.
func (r *RunRepo) WithRecoveryLock(ctx context.Context, runID string, fn func(ctx context.Context) error) (bool, error) {
	var acquired bool
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			var locked bool
			minorKey := advisoryLockRecoveryMinor(runID)
			if err := tx.QueryRowContext(ctx, "SELECT pg_try_advisory_xact_lock($1::integer, $2::integer)", advisoryLockRecoveryMajor, minorKey).Scan(&locked); err != nil {
				return fmt.Errorf("acquire recovery lock: %w", err)
			}
			if !locked {
				return nil
			}
			acquired = true
			return fn(ctx)
		},
	})
	if err != nil {
		return acquired, err
	}
	return acquired, nil
}

// DeleteOldRuns deletes terminal runs older than MaxAge in batches. Result
// rows cascade via the prospect_results foreign key.
func (r *RunRepo) DeleteOldRuns(ctx context.Context, params core.DeleteOldRunsParams) (int64, error) {
	if params.BatchSize <= 0 {
		return 0, errors.New("batch size must be greater than zero")
	}
	if params.MaxAge <= 0 {
		return 0, errors.New("max age must be greater than zero")
	}

	cutoff := r.timeProvider.Now().Add(-params.MaxAge).UTC()
	res, err := r.DB.ExecContext(ctx, `
		DELETE FROM runs
		WHERE id IN (
			SELECT id FROM runs
			WHERE status IN ('completed', 'failed')
			  AND (completed_at < $1 OR (completed_at IS NULL AND updated_at < $1))
			ORDER BY COALESCE(completed_at, updated_at)
			LIMIT $2
		)
	`, cutoff, params.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("delete old runs: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return rowsAffected, nil
}
