package model

import (
	"errors"
	"strings"
	"time"
)

// UATSessionStatus tracks the lifecycle of an acceptance testing session.
type UATSessionStatus string

const (
	UATSessionActive    UATSessionStatus = "active"
	UATSessionCompleted UATSessionStatus = "completed"
	UATSessionAbandoned UATSessionStatus = "abandoned"
)

// Valid reports whether the status is a known session status.
func (s UATSessionStatus) Valid() bool {
	switch s {
	case UATSessionActive, UATSessionCompleted, UATSessionAbandoned:
		return true
	}
	return false
}

// UATSession is one tester's walk through a scripted scenario.
type UATSession struct {
	ID          string           `json:"id"           db:"id"`
	UserID      string           `json:"user_id"      db:"user_id"`
	Scenario    string           `json:"scenario"     db:"scenario"`
	Status      UATSessionStatus `json:"status"       db:"status"`
	StartedAt   time.Time        `json:"started_at"   db:"started_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt   time.Time        `json:"created_at"   db:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"   db:"updated_at"`
}

// UATTaskResult captures the outcome of a single task within a session.
type UATTaskResult struct {
	ID        string    `json:"id"         db:"id"`
	SessionID string    `json:"session_id" db:"session_id"`
	TaskKey   string    `json:"task_key"   db:"task_key"`
	Passed    bool      `json:"passed"     db:"passed"`
	Notes     string    `json:"notes"      db:"notes"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// UATFeedback is free-form feedback attached to a session.
type UATFeedback struct {
	ID        string    `json:"id"         db:"id"`
	SessionID string    `json:"session_id" db:"session_id"`
	Rating    int       `json:"rating"     db:"rating"`
	Comment   string    `json:"comment"    db:"comment"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// StartUATSessionRequest opens a new session for a scenario.
type StartUATSessionRequest struct {
	UserID   string `json:"user_id"`
	Scenario string `json:"scenario" validate:"required,max=128"`
}

// Validate validates fields not covered by struct tags.
func (r *StartUATSessionRequest) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return errors.New("user id is required")
	}
	return nil
}

// RecordUATTaskRequest records one task outcome for a session.
type RecordUATTaskRequest struct {
	TaskKey string `json:"task_key" validate:"required,max=128"`
	Passed  bool   `json:"passed"`
	Notes   string `json:"notes"    validate:"max=2048"`
}

// SubmitUATFeedbackRequest attaches feedback to a session.
type SubmitUATFeedbackRequest struct {
	Rating  int    `json:"rating"  validate:"gte=1,lte=5"`
	Comment string `json:"comment" validate:"max=4096"`
}
