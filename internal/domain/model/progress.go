package model

import (
	"errors"
	"strings"
	"time"
)

// LearnerProgress records a user's progress against one qualification.
type LearnerProgress struct {
	ID              string     `json:"id"               db:"id"`
	UserID          string     `json:"user_id"          db:"user_id"`
	QualificationID string     `json:"qualification_id" db:"qualification_id"`
	Score           float64    `json:"score"            db:"score"`
	Completed       bool       `json:"completed"        db:"completed"`
	StreakDays      int        `json:"streak_days"      db:"streak_days"`
	LastActivityAt  *time.Time `json:"last_activity_at,omitempty" db:"last_activity_at"`
	CreatedAt       time.Time  `json:"created_at"       db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"       db:"updated_at"`
}

// UpsertProgressRequest creates or updates a learner progress record.
type UpsertProgressRequest struct {
	UserID          string  `json:"user_id"`
	QualificationID string  `json:"qualification_id" validate:"required"`
	Score           float64 `json:"score"            validate:"gte=0,lte=100"`
	Completed       bool    `json:"completed"`
}

// Validate validates the UpsertProgressRequest fields not covered by struct tags.
func (r *UpsertProgressRequest) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return errors.New("user id is required")
	}
	return nil
}
