package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"github.com/aiqualifier/aiq-api/internal/core"
	"github.com/aiqualifier/aiq-api/internal/domain/model"
	apperrors "github.com/aiqualifier/aiq-api/internal/errors"
)

// validate holds the shared struct validator for request types.
var validate = validator.New()

// ProgressServiceOptions groups dependencies for ProgressService.
type ProgressServiceOptions struct {
	Repo   core.ProgressRepository // Required: progress repository
	Logger *slog.Logger            // Optional: structured logger
}

// ProgressService provides business logic for learner progress records.
type ProgressService struct {
	repo   core.ProgressRepository
	logger *slog.Logger
}

// NewProgressService constructs a new ProgressService.
func NewProgressService(opts ProgressServiceOptions) (*ProgressService, error) {
	if opts.Repo == nil {
		return nil, errors.New("ProgressRepository is required")
	}
	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "progress_service")
	}
	return &ProgressService{repo: opts.Repo, logger: logger}, nil
}

// Upsert creates or updates a learner's progress against a qualification.
func (s *ProgressService) Upsert(ctx context.Context, req *model.UpsertProgressRequest) (*model.LearnerProgress, error) {
	if req == nil {
		return nil, apperrors.Validation("request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, apperrors.Validation(err.Error())
	}
	if err := validate.Struct(req); err != nil {
		return nil, apperrors.Validation(err.Error())
	}

	progress, err := s.repo.Upsert(ctx, req)
	if err != nil {
		return nil, err
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "progress upserted",
			"user_id", progress.UserID,
			"qualification_id", progress.QualificationID,
			"score", progress.Score,
			"completed", progress.Completed,
		)
	}
	return progress, nil
}

// Get retrieves a single progress record.
func (s *ProgressService) Get(ctx context.Context, userID, qualificationID string) (*model.LearnerProgress, error) {
	if userID == "" {
		return nil, apperrors.ValidationField("user_id", "user id is required")
	}
	if qualificationID == "" {
		return nil, apperrors.ValidationField("qualification_id", "qualification id is required")
	}
	return s.repo.Get(ctx, userID, qualificationID)
}

// ListByUser returns a page of a user's progress records.
func (s *ProgressService) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*model.LearnerProgress, error) {
	if userID == "" {
		return nil, apperrors.ValidationField("user_id", "user id is required")
	}
	page := normalizePagination(limit, offset)
	return s.repo.ListByUser(ctx, userID, page.Limit, page.Offset)
}

// Delete removes a progress record. Returns false when no record existed.
func (s *ProgressService) Delete(ctx context.Context, userID, qualificationID string) (bool, error) {
	if userID == "" {
		return false, apperrors.ValidationField("user_id", "user id is required")
	}
	if qualificationID == "" {
		return false, apperrors.ValidationField("qualification_id", "qualification id is required")
	}
	deleted, err := s.repo.Delete(ctx, userID, qualificationID)
	if err != nil {
		return false, err
	}
	if deleted && s.logger != nil {
		s.logger.InfoContext(ctx, "progress deleted",
			"user_id", userID,
			"qualification_id", qualificationID,
		)
	}
	return deleted, nil
}
