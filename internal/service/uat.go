package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/aiqualifier/aiq-api/internal/core"
	"github.com/aiqualifier/aiq-api/internal/domain/model"
	apperrors "github.com/aiqualifier/aiq-api/internal/errors"
)

// UATServiceOptions groups dependencies for UATService.
type UATServiceOptions struct {
	Repo   core.UATRepository // Required: UAT repository
	Logger *slog.Logger       // Optional: structured logger
}

// UATService provides business logic for user acceptance testing sessions,
// their per-task outcomes, and attached feedback.
type UATService struct {
	repo   core.UATRepository
	logger *slog.Logger
}

// NewUATService constructs a new UATService.
func NewUATService(opts UATServiceOptions) (*UATService, error) {
	if opts.Repo == nil {
		return nil, errors.New("UATRepository is required")
	}
	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "uat_service")
	}
	return &UATService{repo: opts.Repo, logger: logger}, nil
}

// StartSession opens a new acceptance testing session for a scenario.
func (s *UATService) StartSession(ctx context.Context, req *model.StartUATSessionRequest) (*model.UATSession, error) {
	if req == nil {
		return nil, apperrors.Validation("request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, apperrors.Validation(err.Error())
	}
	if err := validate.Struct(req); err != nil {
		return nil, apperrors.Validation(err.Error())
	}

	session, err := s.repo.CreateSession(ctx, req)
	if err != nil {
		return nil, err
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "uat session started",
			"session_id", session.ID,
			"user_id", session.UserID,
			"scenario", session.Scenario,
		)
	}
	return session, nil
}

// GetSession retrieves a session by ID.
func (s *UATService) GetSession(ctx context.Context, id string) (*model.UATSession, error) {
	if id == "" {
		return nil, apperrors.ValidationField("id", "session id is required")
	}
	return s.repo.GetSession(ctx, id)
}

// ListSessions returns a page of a user's sessions.
func (s *UATService) ListSessions(ctx context.Context, userID string, limit, offset int) ([]*model.UATSession, error) {
	if userID == "" {
		return nil, apperrors.ValidationField("user_id", "user id is required")
	}
	page := normalizePagination(limit, offset)
	return s.repo.ListSessions(ctx, userID, page.Limit, page.Offset)
}

// CloseSession transitions an active session to completed or abandoned.
// Returns false when the session is not active.
func (s *UATService) CloseSession(ctx context.Context, id string, status model.UATSessionStatus) (bool, error) {
	if id == "" {
		return false, apperrors.ValidationField("id", "session id is required")
	}
	if status != model.UATSessionCompleted && status != model.UATSessionAbandoned {
		return false, apperrors.ValidationField("status", "status must be completed or abandoned")
	}

	closed, err := s.repo.CloseSession(ctx, id, status)
	if err != nil {
		return false, err
	}
	if s.logger != nil {
		if closed {
			s.logger.InfoContext(ctx, "uat session closed", "session_id", id, "status", status)
		} else {
			s.logger.InfoContext(ctx, "close skipped, session not active", "session_id", id)
		}
	}
	return closed, nil
}

// RecordTask records one task outcome for an active session.
func (s *UATService) RecordTask(ctx context.Context, sessionID string, req *model.RecordUATTaskRequest) (*model.UATTaskResult, error) {
	if sessionID == "" {
		return nil, apperrors.ValidationField("session_id", "session id is required")
	}
	if req == nil {
		return nil, apperrors.Validation("request is required")
	}
	if err := validate.Struct(req); err != nil {
		return nil, apperrors.Validation(err.Error())
	}

	if err := s.requireActiveSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.repo.RecordTask(ctx, sessionID, req)
}

// ListTasks returns all task outcomes for a session.
func (s *UATService) ListTasks(ctx context.Context, sessionID string) ([]*model.UATTaskResult, error) {
	if sessionID == "" {
		return nil, apperrors.ValidationField("session_id", "session id is required")
	}
	return s.repo.ListTasks(ctx, sessionID)
}

// SubmitFeedback attaches feedback to a session. Feedback is accepted for
// closed sessions too, since testers usually rate after finishing.
func (s *UATService) SubmitFeedback(ctx context.Context, sessionID string, req *model.SubmitUATFeedbackRequest) (*model.UATFeedback, error) {
	if sessionID == "" {
		return nil, apperrors.ValidationField("session_id", "session id is required")
	}
	if req == nil {
		return nil, apperrors.Validation("request is required")
	}
	if err := validate.Struct(req); err != nil {
		return nil, apperrors.Validation(err.Error())
	}

	if _, err := s.repo.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.repo.SubmitFeedback(ctx, sessionID, req)
}

// ListFeedback returns all feedback attached to a session.
func (s *UATService) ListFeedback(ctx context.Context, sessionID string) ([]*model.UATFeedback, error) {
	if sessionID == "" {
		return nil, apperrors.ValidationField("session_id", "session id is required")
	}
	return s.repo.ListFeedback(ctx, sessionID)
}

func (s *UATService) requireActiveSession(ctx context.Context, sessionID string) error {
	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.Status != model.UATSessionActive {
		return apperrors.Conflictf("session %s is %s, not active", sessionID, session.Status)
	}
	return nil
}
