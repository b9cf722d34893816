package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// RunStatus represents the lifecycle state of a qualification run.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type RunStatus string

const (
	// RunStatusPending indicates a run was created but processing has not started.
	RunStatusPending RunStatus = "pending"
	// RunStatusProcessing indicates prospects are being qualified.
	RunStatusProcessing RunStatus = "processing"
	// RunStatusCompleted indicates all prospects were qualified.
	RunStatusCompleted RunStatus = "completed"
	// RunStatusFailed indicates the run failed and will not make further progress.
	RunStatusFailed RunStatus = "failed"
)

// Valid returns true if the RunStatus is valid.
func (s RunStatus) Valid() bool {
	return s == RunStatusPending || s == RunStatusProcessing ||
		s == RunStatusCompleted || s == RunStatusFailed
}

// Active returns true for states the run-manager sweep considers in flight.
func (s RunStatus) Active() bool {
	return s == RunStatusPending || s == RunStatusProcessing
}

// UnmarshalText implements encoding.TextUnmarshaler for RunStatus.
func (s *RunStatus) UnmarshalText(text []byte) error {
	v := RunStatus(strings.ToLower(strings.TrimSpace(string(text))))
	if v.Valid() {
		*s = v
		return nil
	}
	return fmt.Errorf("invalid RunStatus: %q", string(text))
}

// Run is the persisted record tracking aggregate progress of one
// user-initiated qualification batch.
//
// Invariant: CompletedProspects never exceeds TotalProspects; the runs table
// carries a CHECK constraint and all counter updates clamp in SQL.
type Run struct {
	ID                 string     `json:"id"                      db:"id"`
	UserID             string     `json:"user_id"                 db:"user_id"`
	QualificationID    string     `json:"qualification_id"        db:"qualification_id"`
	TotalProspects     int        `json:"total_prospects"         db:"total_prospects"`
	CompletedProspects int        `json:"completed_prospects"     db:"completed_prospects"`
	Status             RunStatus  `json:"status"                  db:"status"`
	AverageScore       *float64   `json:"average_score,omitempty" db:"average_score"`
	HighQualityCount   *int       `json:"high_quality_count,omitempty" db:"high_quality_count"`
	LastError          *string    `json:"last_error,omitempty"    db:"last_error"`
	CreatedAt          time.Time  `json:"created_at"              db:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"              db:"updated_at"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"  db:"completed_at"`
}

// CompletionRatio returns completed/total, or 0 when the run has no work.
func (r *Run) CompletionRatio() float64 {
	if r.TotalProspects <= 0 {
		return 0
	}
	return float64(r.CompletedProspects) / float64(r.TotalProspects)
}

// CreateRunRequest represents a request to start a qualification run.
type CreateRunRequest struct {
	UserID          string   `json:"user_id"`
	QualificationID string   `json:"qualification_id"`
	Domains         []string `json:"domains"`
}

// Validate validates the CreateRunRequest fields.
func (r *CreateRunRequest) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return errors.New("user id is required")
	}
	if strings.TrimSpace(r.QualificationID) == "" {
		return errors.New("qualification id is required")
	}
	if len(r.Domains) == 0 {
		return errors.New("at least one prospect domain is required")
	}
	for _, d := range r.Domains {
		if strings.TrimSpace(d) == "" {
			return errors.New("prospect domains cannot contain empty entries")
		}
	}
	return nil
}

// RunListOptions filters and paginates run listings.
type RunListOptions struct {
	UserID *string
	Status *RunStatus
	Limit  int
	Offset int
}

// RunStats aggregates run counts by status for observability endpoints.
type RunStats struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

// RunSummary captures the aggregate statistics written when a run completes.
type RunSummary struct {
	Scored           int     `json:"scored"`
	AverageScore     float64 `json:"average_score"`
	HighQualityCount int     `json:"high_quality_count"`
}

// QualifyJobPayload is the payload carried by qualify_prospects jobs.
type QualifyJobPayload struct {
	RunID           string   `json:"run_id"`
	UserID          string   `json:"user_id"`
	QualificationID string   `json:"qualification_id"`
	Domains         []string `json:"domains"`
}

// Validate validates the QualifyJobPayload fields.
func (p *QualifyJobPayload) Validate() error {
	if p.RunID == "" {
		return errors.New("run id is required")
	}
	if len(p.Domains) == 0 {
		return errors.New("domains is required")
	}
	return nil
}

// Encode marshals the payload for job enqueueing.
func (p *QualifyJobPayload) Encode() (json.RawMessage, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode qualify payload: %w", err)
	}
	return b, nil
}
