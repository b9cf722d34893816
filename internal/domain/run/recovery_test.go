package run

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecideRecovery(t *testing.T) {
	tests := []struct {
		name      string
		completed int
		total     int
		want      RecoveryAction
	}{
		{name: "no prospects", completed: 0, total: 0, want: ActionFail},
		{name: "negative total", completed: 0, total: -1, want: ActionFail},
		{name: "no progress", completed: 0, total: 10, want: ActionFail},
		{name: "partial progress resumes", completed: 4, total: 10, want: ActionResume},
		{name: "single completed resumes", completed: 1, total: 100, want: ActionResume},
		{name: "just under near-complete threshold", completed: 89, total: 100, want: ActionResume},
		{name: "at near-complete threshold", completed: 90, total: 100, want: ActionFail},
		{name: "past near-complete threshold", completed: 95, total: 100, want: ActionFail},
		{name: "all prospects done", completed: 10, total: 10, want: ActionComplete},
		{name: "counter overshoot still completes", completed: 11, total: 10, want: ActionComplete},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision := DecideRecovery(tt.completed, tt.total)
			assert.Equal(t, tt.want, decision.Action)
			assert.NotEmpty(t, decision.Reason)
		})
	}
}

func TestDecideRecovery_ResumableRange(t *testing.T) {
	// Any run with progress below ninety percent must resume, never fail.
	const total = 20
	for completed := 1; completed < 18; completed++ {
		decision := DecideRecovery(completed, total)
		assert.Equalf(t, ActionResume, decision.Action, "completed=%d", completed)
	}
}
