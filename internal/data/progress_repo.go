package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	apperrors "github.com/aiqualifier/aiq-api/internal/errors"

	"github.com/aiqualifier/aiq-api/internal/domain/model"
)

// ErrProgressNotFound is returned when a learner progress record is not
// found. It carries the not-found error code so lookups against a missing
// record surface as 404 at the HTTP layer.
var ErrProgressNotFound = apperrors.NotFound("progress record not found")

// ProgressRepo provides database operations for learner progress records.
type ProgressRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// ProgressRepoOptions bundles dependencies for NewProgressRepo.
type ProgressRepoOptions struct {
	DB           *sql.DB
	TimeProvider TimeProvider
	Logger       *slog.Logger
}

// NewProgressRepo creates a new ProgressRepo instance.
func NewProgressRepo(opts ProgressRepoOptions) *ProgressRepo {
	tp := opts.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	return &ProgressRepo{
		DB:           opts.DB,
		timeProvider: tp,
		logger:       opts.Logger,
	}
}

const progressColumns = `
  id,
  user_id,
  qualification_id,
  score,
  completed,
  streak_days,
  last_activity_at,
  created_at,
  updated_at
`

func scanProgress(scanner interface{ Scan(dest ...any) error }) (*model.LearnerProgress, error) {
	p := &model.LearnerProgress{}
	var lastActivity sql.NullTime

	if err := scanner.Scan(
		&p.ID,
		&p.UserID,
		&p.QualificationID,
		&p.Score,
		&p.Completed,
		&p.StreakDays,
		&lastActivity,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		return nil, err
	}

	p.LastActivityAt = cloneNullableTime(lastActivity)
	return p, nil
}

// Upsert creates or updates the progress record for a user and qualification.
// The streak counter advances by one when the previous activity was on an
// earlier calendar day, and resets when more than a day has passed.
func (r *ProgressRepo) Upsert(ctx context.Context, req *model.UpsertProgressRequest) (*model.LearnerProgress, error) {
	if req == nil {
		return nil, errors.New("upsert progress request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := r.timeProvider.Now().UTC()
	row := r.DB.QueryRowContext(ctx, `
		INSERT INTO learner_progress (user_id, qualification_id, score, completed, streak_days, last_activity_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 1, $5, $5, $5)
		ON CONFLICT (user_id, qualification_id) DO UPDATE
		SET score = EXCLUDED.score,
		    completed = EXCLUDED.completed,
		    streak_days = CASE
		        WHEN learner_progress.last_activity_at >= $5::timestamptz - interval '1 day'
		             AND date_trunc('day', learner_progress.last_activity_at) < date_trunc('day', $5::timestamptz)
		            THEN learner_progress.streak_days + 1
		        WHEN learner_progress.last_activity_at < $5::timestamptz - interval '1 day'
		            THEN 1
		        ELSE learner_progress.streak_days
		    END,
		    last_activity_at = $5,
		    updated_at = $5
		RETURNING `+progressColumns, req.UserID, req.QualificationID, req.Score, req.Completed, now)

	p, err := scanProgress(row)
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return p, nil
}

// Get retrieves the progress record for a user and qualification.
func (r *ProgressRepo) Get(ctx context.Context, userID, qualificationID string) (*model.LearnerProgress, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT `+progressColumns+`
		FROM learner_progress
		WHERE user_id = $1 AND qualification_id = $2
	`, userID, qualificationID)

	p, err := scanProgress(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProgressNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get progress: %w", err)
	}
	return p, nil
}

// ListByUser returns progress records for a user, most recently active first.
func (r *ProgressRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*model.LearnerProgress, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 1000 {
		limit = 1000
	}
	offset = max(offset, 0)

	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+progressColumns+`
		FROM learner_progress
		WHERE user_id = $1
		ORDER BY last_activity_at DESC NULLS LAST, id DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}
	defer rows.Close()

	var records []*model.LearnerProgress
	for rows.Next() {
		p, scanErr := scanProgress(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan progress: %w", scanErr)
		}
		records = append(records, p)
	}
	return records, rows.Err()
}

// Delete removes the progress record for a user and qualification.
func (r *ProgressRepo) Delete(ctx context.Context, userID, qualificationID string) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `
		DELETE FROM learner_progress
		WHERE user_id = $1 AND qualification_id = $2
	`, userID, qualificationID)
	if err != nil {
		return false, fmt.Errorf("delete progress: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete progress rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}
