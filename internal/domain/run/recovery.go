package run

import "fmt"

// RecoveryAction is the outcome of evaluating a stuck run.
type RecoveryAction string

const (
	// ActionResume indicates the run has salvageable partial progress and
	// should be re-enqueued for its remaining prospects.
	ActionResume RecoveryAction = "resume"
	// ActionFail indicates the run should be marked failed.
	ActionFail RecoveryAction = "fail"
	// ActionComplete indicates every prospect already finished and the run
	// only needs finalizing, with no work re-enqueued.
	ActionComplete RecoveryAction = "complete"
)

// nearCompleteRatio is the progress fraction at or above which resuming is
// not worth another qualification job. Runs this close to done when they
// stall almost always stalled on the final persistence step, and a resume
// would re-spend AI calls for a handful of prospects.
const nearCompleteRatio = 0.9

// RecoveryDecision explains why a stuck run was resumed, failed, or completed.
type RecoveryDecision struct {
	Action RecoveryAction
	Reason string
}

// DecideRecovery determines what to do with a run whose qualification job
// stopped making progress. It is a pure function of the run's counters so
// sweep behaviour can be tested without a database:
//
//   - every prospect done: complete the run, nothing to re-enqueue
//   - no prospects done: fail, there is no progress worth saving
//   - at or past the near-complete threshold: fail rather than re-spend AI calls
//   - otherwise: resume from the last completed prospect
func DecideRecovery(completed, total int) RecoveryDecision {
	if total <= 0 {
		return RecoveryDecision{
			Action: ActionFail,
			Reason: "run has no prospects to qualify",
		}
	}
	if completed >= total {
		return RecoveryDecision{
			Action: ActionComplete,
			Reason: fmt.Sprintf("all %d prospects completed, run only needs finalizing", total),
		}
	}
	if completed <= 0 {
		return RecoveryDecision{
			Action: ActionFail,
			Reason: "no prospects completed before the run stalled",
		}
	}

	if float64(completed)/float64(total) >= nearCompleteRatio {
		return RecoveryDecision{
			Action: ActionFail,
			Reason: fmt.Sprintf("run stalled at %d/%d prospects, too close to completion to resume", completed, total),
		}
	}

	return RecoveryDecision{
		Action: ActionResume,
		Reason: fmt.Sprintf("run stalled at %d/%d prospects with recoverable progress", completed, total),
	}
}
