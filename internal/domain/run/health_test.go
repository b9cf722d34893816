package run

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/aiqualifier/aiq-api/internal/domain/model"
)

func TestAssessHealth(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	timeout := 30 * time.Minute
	staleAfter := 10 * time.Minute

	t.Run("healthy run with recent activity", func(t *testing.T) {
		r := &model.Run{
			ID:                 "run-1",
			Status:             model.RunStatusProcessing,
			TotalProspects:     10,
			CompletedProspects: 5,
			CreatedAt:          now.Add(-10 * time.Minute),
		}
		activity := now.Add(-time.Minute)

		h := AssessHealth(r, &activity, now, timeout, staleAfter)
		assert.False(t, h.Stuck)
		assert.Equal(t, 10*time.Minute, h.Age)
		assert.InDelta(t, 50.0, h.ProgressPercent, 0.001)
		assert.Equal(t, 10*time.Minute, h.EstimatedRemaining)
	})

	t.Run("timed out run is stuck", func(t *testing.T) {
		r := &model.Run{
			ID:                 "run-2",
			Status:             model.RunStatusProcessing,
			TotalProspects:     10,
			CompletedProspects: 9,
			CreatedAt:          now.Add(-45 * time.Minute),
		}
		activity := now.Add(-time.Second)

		h := AssessHealth(r, &activity, now, timeout, staleAfter)
		assert.True(t, h.Stuck)
	})

	t.Run("stale activity marks run stuck before timeout", func(t *testing.T) {
		r := &model.Run{
			ID:                 "run-3",
			Status:             model.RunStatusProcessing,
			TotalProspects:     10,
			CompletedProspects: 2,
			CreatedAt:          now.Add(-20 * time.Minute),
		}
		activity := now.Add(-15 * time.Minute)

		h := AssessHealth(r, &activity, now, timeout, staleAfter)
		assert.True(t, h.Stuck)
	})

	t.Run("no activity at all uses run age", func(t *testing.T) {
		r := &model.Run{
			ID:             "run-4",
			Status:         model.RunStatusProcessing,
			TotalProspects: 10,
			CreatedAt:      now.Add(-12 * time.Minute),
		}

		h := AssessHealth(r, nil, now, timeout, staleAfter)
		assert.True(t, h.Stuck)
		assert.Equal(t, time.Duration(0), h.EstimatedRemaining)
	})

	t.Run("zero total avoids division", func(t *testing.T) {
		r := &model.Run{
			ID:        "run-5",
			Status:    model.RunStatusPending,
			CreatedAt: now,
		}

		h := AssessHealth(r, nil, now, timeout, staleAfter)
		assert.Equal(t, 0.0, h.ProgressPercent)
		assert.False(t, h.Stuck)
	})
}
