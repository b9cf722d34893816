package model

import (
	"encoding/json"
	"time"
)

// ProspectStatus represents the analysis state of a single prospect result.
type ProspectStatus string

const (
	// ProspectStatusPending indicates the prospect has not been analyzed yet.
	ProspectStatusPending ProspectStatus = "pending"
	// ProspectStatusAnalyzing indicates an analysis attempt is in flight.
	ProspectStatusAnalyzing ProspectStatus = "analyzing"
	// ProspectStatusCompleted indicates the prospect was scored.
	ProspectStatusCompleted ProspectStatus = "completed"
)

// Valid returns true if the ProspectStatus is valid.
func (s ProspectStatus) Valid() bool {
	return s == ProspectStatusPending || s == ProspectStatusAnalyzing || s == ProspectStatusCompleted
}

// ProspectResult is the persisted per-prospect outcome of a qualification run.
// Rows are created lazily as prospects are scored; the run manager diffs them
// against the run's original domain list to compute the resume remainder.
type ProspectResult struct {
	ID         string          `json:"id"                    db:"id"`
	RunID      string          `json:"run_id"                db:"run_id"`
	Domain     string          `json:"domain"                db:"domain"`
	Payload    json.RawMessage `json:"payload"               db:"payload"`
	Score      float64         `json:"score"                 db:"score"`
	Status     ProspectStatus  `json:"status"                db:"status"`
	AnalyzedAt *time.Time      `json:"analyzed_at,omitempty" db:"analyzed_at"`
	CreatedAt  time.Time       `json:"created_at"            db:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"            db:"updated_at"`
}

// ProspectScore is a scored prospect staged for batched persistence.
type ProspectScore struct {
	Domain     string          `json:"domain"`
	Score      float64         `json:"score"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	AnalyzedAt time.Time       `json:"analyzed_at"`
}
