package run

import (
	"time"

	"github.com/aiqualifier/aiq-api/internal/domain/model"
)

// Health is a point-in-time observability snapshot of one active run.
type Health struct {
	RunID              string          `json:"run_id"`
	Status             model.RunStatus `json:"status"`
	Age                time.Duration   `json:"age"`
	ProgressPercent    float64         `json:"progress_percent"`
	Stuck              bool            `json:"stuck"`
	EstimatedRemaining time.Duration   `json:"estimated_remaining"`
}

// AssessHealth derives the health snapshot for a run at the given instant.
// A run is stuck once it has been active past the timeout, or when it has
// recorded no result activity within the staleness window. Remaining time is
// extrapolated linearly from elapsed time per completed prospect.
func AssessHealth(r *model.Run, lastActivity *time.Time, now time.Time, timeout, staleAfter time.Duration) Health {
	h := Health{
		RunID:  r.ID,
		Status: r.Status,
		Age:    now.Sub(r.CreatedAt),
	}
	if h.Age < 0 {
		h.Age = 0
	}

	if r.TotalProspects > 0 {
		h.ProgressPercent = 100 * float64(r.CompletedProspects) / float64(r.TotalProspects)
	}

	if h.Age > timeout {
		h.Stuck = true
	} else if lastActivity == nil {
		h.Stuck = h.Age > staleAfter
	} else {
		h.Stuck = now.Sub(*lastActivity) > staleAfter
	}

	if r.CompletedProspects > 0 && r.CompletedProspects < r.TotalProspects {
		perProspect := h.Age / time.Duration(r.CompletedProspects)
		h.EstimatedRemaining = perProspect * time.Duration(r.TotalProspects-r.CompletedProspects)
	}

	return h
}
