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

// ErrUATSessionNotFound is returned when a UAT session is not found. It
// carries the not-found error code so lookups against a missing session
// surface as 404 at the HTTP layer.
var ErrUATSessionNotFound = apperrors.NotFound("uat session not found")

// UATRepo provides database operations for user-acceptance-testing records.
type UATRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// UATRepoOptions bundles dependencies for NewUATRepo.
type UATRepoOptions struct {
	DB           *sql.DB
	TimeProvider TimeProvider
	Logger       *slog.Logger
}

// NewUATRepo creates a new UATRepo instance.
func NewUATRepo(opts UATRepoOptions) *UATRepo {
	tp := opts.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	return &UATRepo{
		DB:           opts.DB,
		timeProvider: tp,
		logger:       opts.Logger,
	}
}

const uatSessionColumns = `
  id,
  user_id,
  scenario,
  status,
  started_at,
  completed_at,
  created_at,
  updated_at
`

func scanUATSession(scanner interface{ Scan(dest ...any) error }) (*model.UATSession, error) {
	s := &model.UATSession{}
	var completedAt sql.NullTime

	if err := scanner.Scan(
		&s.ID,
		&s.UserID,
		&s.Scenario,
		&s.Status,
		&s.StartedAt,
		&completedAt,
		&s.CreatedAt,
		&s.UpdatedAt,
	); err != nil {
		return nil, err
	}

	s.CompletedAt = cloneNullableTime(completedAt)
	return s, nil
}

// CreateSession opens a new active session for a scenario.
func (r *UATRepo) CreateSession(ctx context.Context, req *model.StartUATSessionRequest) (*model.UATSession, error) {
	if req == nil {
		return nil, errors.New("start session request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := r.timeProvider.Now().UTC()
	row := r.DB.QueryRowContext(ctx, `
		INSERT INTO uat_sessions (user_id, scenario, status, started_at, created_at, updated_at)
		VALUES ($1, $2, 'active', $3, $3, $3)
		RETURNING `+uatSessionColumns, req.UserID, req.Scenario, now)

	s, err := scanUATSession(row)
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return s, nil
}

// GetSession retrieves a session by its ID.
func (r *UATRepo) GetSession(ctx context.Context, id string) (*model.UATSession, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+uatSessionColumns+` FROM uat_sessions WHERE id = $1`, id)
	s, err := scanUATSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUATSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get uat session: %w", err)
	}
	return s, nil
}

// ListSessions returns sessions for a user, newest first.
func (r *UATRepo) ListSessions(ctx context.Context, userID string, limit, offset int) ([]*model.UATSession, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 1000 {
		limit = 1000
	}
	offset = max(offset, 0)

	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+uatSessionColumns+`
		FROM uat_sessions
		WHERE user_id = $1
		ORDER BY started_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list uat sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*model.UATSession
	for rows.Next() {
		s, scanErr := scanUATSession(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan uat session: %w", scanErr)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// CloseSession transitions an active session to the given terminal status.
func (r *UATRepo) CloseSession(ctx context.Context, id string, status model.UATSessionStatus) (bool, error) {
	if status != model.UATSessionCompleted && status != model.UATSessionAbandoned {
		return false, fmt.Errorf("invalid terminal session status: %s", status)
	}

	now := r.timeProvider.Now().UTC()
	res, err := r.DB.ExecContext(ctx, `
		UPDATE uat_sessions
		SET status = $2,
		    completed_at = $3,
		    updated_at = $3
		WHERE id = $1 AND status = 'active'
	`, id, status, now)
	if err != nil {
		return false, fmt.Errorf("close uat session: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("close session rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// RecordTask records one task outcome for a session.
func (r *UATRepo) RecordTask(ctx context.Context, sessionID string, req *model.RecordUATTaskRequest) (*model.UATTaskResult, error) {
	if req == nil {
		return nil, errors.New("record task request is required")
	}

	now := r.timeProvider.Now().UTC()
	task := &model.UATTaskResult{}
	err := r.DB.QueryRowContext(ctx, `
		INSERT INTO uat_task_results (session_id, task_key, passed, notes, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, session_id, task_key, passed, notes, created_at
	`, sessionID, req.TaskKey, req.Passed, req.Notes, now).Scan(
		&task.ID,
		&task.SessionID,
		&task.TaskKey,
		&task.Passed,
		&task.Notes,
		&task.CreatedAt,
	)
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return task, nil
}

// ListTasks returns task results for a session in recording order.
func (r *UATRepo) ListTasks(ctx context.Context, sessionID string) ([]*model.UATTaskResult, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, session_id, task_key, passed, notes, created_at
		FROM uat_task_results
		WHERE session_id = $1
		ORDER BY created_at ASC, id ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list uat tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*model.UATTaskResult
	for rows.Next() {
		task := &model.UATTaskResult{}
		if scanErr := rows.Scan(&task.ID, &task.SessionID, &task.TaskKey, &task.Passed, &task.Notes, &task.CreatedAt); scanErr != nil {
			return nil, fmt.Errorf("scan uat task: %w", scanErr)
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// SubmitFeedback attaches feedback to a session.
func (r *UATRepo) SubmitFeedback(ctx context.Context, sessionID string, req *model.SubmitUATFeedbackRequest) (*model.UATFeedback, error) {
	if req == nil {
		return nil, errors.New("submit feedback request is required")
	}

	now := r.timeProvider.Now().UTC()
	fb := &model.UATFeedback{}
	err := r.DB.QueryRowContext(ctx, `
		INSERT INTO uat_feedback (session_id, rating, comment, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, session_id, rating, comment, created_at
	`, sessionID, req.Rating, req.Comment, now).Scan(
		&fb.ID,
		&fb.SessionID,
		&fb.Rating,
		&fb.Comment,
		&fb.CreatedAt,
	)
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return fb, nil
}

// ListFeedback returns feedback entries for a session, newest first.
func (r *UATRepo) ListFeedback(ctx context.Context, sessionID string) ([]*model.UATFeedback, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, session_id, rating, comment, created_at
		FROM uat_feedback
		WHERE session_id = $1
		ORDER BY created_at DESC, id DESC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list uat feedback: %w", err)
	}
	defer rows.Close()

	var feedback []*model.UATFeedback
	for rows.Next() {
		fb := &model.UATFeedback{}
		if scanErr := rows.Scan(&fb.ID, &fb.SessionID, &fb.Rating, &fb.Comment, &fb.CreatedAt); scanErr != nil {
			return nil, fmt.Errorf("scan uat feedback: %w", scanErr)
		}
		feedback = append(feedback, fb)
	}
	return feedback, rows.Err()
}
