package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/aiqualifier/aiq-api/config"
	"github.com/aiqualifier/aiq-api/internal/core"
	"github.com/aiqualifier/aiq-api/internal/data"
	"github.com/aiqualifier/aiq-api/internal/domain/model"
	apperrors "github.com/aiqualifier/aiq-api/internal/errors"
	"github.com/aiqualifier/aiq-api/internal/mocks"
)

type stubFinalizer struct {
	finalized []string
	err       error
}

func (f *stubFinalizer) FinalizeRun(_ context.Context, runID string) error {
	f.finalized = append(f.finalized, runID)
	return f.err
}

type runManagerFixture struct {
	svc       *RunManagerService
	runs      *mocks.MockRunRepository
	results   *mocks.MockProspectResultRepository
	jobs      *mocks.MockJobRepository
	finalizer *stubFinalizer
	now       time.Time
}

func newRunManagerFixture(t *testing.T) *runManagerFixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	runs := mocks.NewMockRunRepository(ctrl)
	results := mocks.NewMockProspectResultRepository(ctrl)
	jobs := mocks.NewMockJobRepository(ctrl)
	finalizer := &stubFinalizer{}
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	svc, err := NewRunManagerService(RunManagerServiceOptions{
		Runs:      runs,
		Results:   results,
		Jobs:      jobs,
		Finalizer: finalizer,
		Config: config.RunManagerConfig{
			Interval:   time.Minute,
			RunTimeout: 30 * time.Minute,
			StaleAfter: 10 * time.Minute,
			BatchLimit: 100,
		},
		TimeProvider: data.NewFixedTimeProvider(now),
	})
	require.NoError(t, err)

	return &runManagerFixture{
		svc:       svc,
		runs:      runs,
		results:   results,
		jobs:      jobs,
		finalizer: finalizer,
		now:       now,
	}
}

// expectLockAcquired makes WithRecoveryLock run the critical section inline.
func (f *runManagerFixture) expectLockAcquired(runID string) {
	f.runs.EXPECT().WithRecoveryLock(gomock.Any(), runID, gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ string, fn func(context.Context) error) (bool, error) {
			return true, fn(ctx)
		})
}

func TestNewRunManagerService_Validation(t *testing.T) {
	_, err := NewRunManagerService(RunManagerServiceOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RunRepository is required")
}

func TestCheckTimeouts_FailsRunWithNoProgress(t *testing.T) {
	f := newRunManagerFixture(t)
	ctx := context.Background()

	stuck := &model.Run{
		ID:             "run-1",
		Status:         model.RunStatusProcessing,
		TotalProspects: 5,
	}

	f.runs.EXPECT().FindStuck(gomock.Any(), core.FindStuckRunsParams{
		OlderThan: 30 * time.Minute,
		Limit:     100,
	}).Return([]*model.Run{stuck}, nil)

	f.expectLockAcquired("run-1")
	f.runs.EXPECT().GetByID(gomock.Any(), "run-1").Return(stuck, nil)
	f.runs.EXPECT().Fail(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, params core.FailRunParams) (*model.Run, error) {
			assert.Equal(t, "run-1", params.RunID)
			assert.Contains(t, params.Reason, "no prospects completed")
			failed := *stuck
			failed.Status = model.RunStatusFailed
			return &failed, nil
		})
	// cancelPendingJobs sweeps queued jobs for the failed run
	f.jobs.EXPECT().List(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, opts *model.JobListOptions) ([]*model.Job, error) {
			require.NotNil(t, opts.RunID)
			assert.Equal(t, "run-1", *opts.RunID)
			require.NotNil(t, opts.Status)
			assert.Equal(t, model.JobStatusPending, *opts.Status)
			return []*model.Job{{ID: "job-1", Status: model.JobStatusPending}}, nil
		})
	f.jobs.EXPECT().Cancel(gomock.Any(), "job-1").Return(true, nil)

	acted, err := f.svc.CheckTimeouts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, acted)
	assert.Empty(t, f.finalizer.finalized)
}

func TestCheckTimeouts_SkipsWhenLockHeldElsewhere(t *testing.T) {
	f := newRunManagerFixture(t)

	stuck := &model.Run{ID: "run-2", Status: model.RunStatusProcessing, TotalProspects: 5}
	f.runs.EXPECT().FindStuck(gomock.Any(), gomock.Any()).Return([]*model.Run{stuck}, nil)
	f.runs.EXPECT().WithRecoveryLock(gomock.Any(), "run-2", gomock.Any()).Return(false, nil)

	acted, err := f.svc.CheckTimeouts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, acted)
}

func TestRecoverRun_FinalizesFullyScoredRun(t *testing.T) {
	f := newRunManagerFixture(t)

	done := &model.Run{
		ID:                 "run-3",
		Status:             model.RunStatusProcessing,
		TotalProspects:     4,
		CompletedProspects: 4,
	}
	f.runs.EXPECT().FindStuck(gomock.Any(), gomock.Any()).Return([]*model.Run{done}, nil)
	f.expectLockAcquired("run-3")
	f.runs.EXPECT().GetByID(gomock.Any(), "run-3").Return(done, nil)

	acted, err := f.svc.CheckTimeouts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, acted)
	assert.Equal(t, []string{"run-3"}, f.finalizer.finalized)
}

func TestRecoverRun_SkipsRunThatLeftActiveStates(t *testing.T) {
	f := newRunManagerFixture(t)

	stale := &model.Run{ID: "run-4", Status: model.RunStatusProcessing, TotalProspects: 4}
	f.runs.EXPECT().FindStuck(gomock.Any(), gomock.Any()).Return([]*model.Run{stale}, nil)
	f.expectLockAcquired("run-4")
	// Another worker finished it between the sweep query and the lock.
	f.runs.EXPECT().GetByID(gomock.Any(), "run-4").
		Return(&model.Run{ID: "run-4", Status: model.RunStatusCompleted}, nil)

	_, err := f.svc.CheckTimeouts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, f.finalizer.finalized)
}

func TestRecoverRun_ResumesPartialProgress(t *testing.T) {
	f := newRunManagerFixture(t)

	domains := []string{"a.test", "b.test", "c.test", "d.test", "e.test"}
	partial := &model.Run{
		ID:                 "run-5",
		Status:             model.RunStatusProcessing,
		TotalProspects:     5,
		CompletedProspects: 2,
	}
	payload := model.QualifyJobPayload{
		RunID:           "run-5",
		UserID:          "user-1",
		QualificationID: "qual-1",
		Domains:         domains,
	}
	encoded, err := payload.Encode()
	require.NoError(t, err)

	f.runs.EXPECT().FindStuck(gomock.Any(), gomock.Any()).Return([]*model.Run{partial}, nil)
	f.expectLockAcquired("run-5")
	f.runs.EXPECT().GetByID(gomock.Any(), "run-5").Return(partial, nil)
	// latest qualification job carries the full requested domain list
	f.jobs.EXPECT().List(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, opts *model.JobListOptions) ([]*model.Job, error) {
			require.NotNil(t, opts.RunID)
			assert.Equal(t, "run-5", *opts.RunID)
			require.NotNil(t, opts.Type)
			assert.Equal(t, model.JobTypeQualifyProspects, *opts.Type)
			return []*model.Job{{ID: "job-old", Payload: encoded}}, nil
		})
	f.results.EXPECT().PendingDomains(gomock.Any(), "run-5", domains).
		Return(domains[2:], nil)
	f.jobs.EXPECT().Create(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req *model.CreateJobRequest) (*model.Job, error) {
			assert.Equal(t, model.JobTypeQualifyProspects, req.Type)
			require.NotNil(t, req.RunID)
			assert.Equal(t, "run-5", *req.RunID)
			require.NotNil(t, req.UserID)
			assert.Equal(t, "user-1", *req.UserID)
			assert.Equal(t, 3, req.MaxRetries)

			decoded, err := DecodeQualifyPayload(req.Payload)
			require.NoError(t, err)
			assert.Equal(t, domains, decoded.Domains)
			return &model.Job{ID: "job-new"}, nil
		})

	acted, err := f.svc.CheckTimeouts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, acted)
	assert.Empty(t, f.finalizer.finalized)
}

func TestRecoverStuckRuns_UsesActivityWindow(t *testing.T) {
	f := newRunManagerFixture(t)

	fresh := &model.Run{
		ID:                 "run-fresh",
		Status:             model.RunStatusProcessing,
		TotalProspects:     10,
		CompletedProspects: 3,
		CreatedAt:          f.now.Add(-5 * time.Minute),
	}
	stalled := &model.Run{
		ID:                 "run-stalled",
		Status:             model.RunStatusProcessing,
		TotalProspects:     10,
		CompletedProspects: 10,
		CreatedAt:          f.now.Add(-20 * time.Minute),
	}

	f.runs.EXPECT().FindActive(gomock.Any(), 100).Return([]*model.Run{fresh, stalled}, nil)

	recentActivity := f.now.Add(-time.Minute)
	staleActivity := f.now.Add(-15 * time.Minute)
	f.results.EXPECT().LastActivity(gomock.Any(), "run-fresh").Return(&recentActivity, nil)
	f.results.EXPECT().LastActivity(gomock.Any(), "run-stalled").Return(&staleActivity, nil)

	f.expectLockAcquired("run-stalled")
	f.runs.EXPECT().GetByID(gomock.Any(), "run-stalled").Return(stalled, nil)

	recovered, err := f.svc.RecoverStuckRuns(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)
	assert.Equal(t, []string{"run-stalled"}, f.finalizer.finalized)
}

func TestResumeRun_FinalizesWhenNothingPending(t *testing.T) {
	f := newRunManagerFixture(t)

	run := &model.Run{ID: "run-6", Status: model.RunStatusProcessing, TotalProspects: 2, CompletedProspects: 2}
	payload := model.QualifyJobPayload{RunID: "run-6", Domains: []string{"a.test", "b.test"}}
	encoded, err := payload.Encode()
	require.NoError(t, err)

	f.expectLockAcquired("run-6")
	f.runs.EXPECT().GetByID(gomock.Any(), "run-6").Return(run, nil)
	f.jobs.EXPECT().List(gomock.Any(), gomock.Any()).
		Return([]*model.Job{{ID: "job-1", Payload: encoded}}, nil)
	f.results.EXPECT().PendingDomains(gomock.Any(), "run-6", payload.Domains).Return(nil, nil)

	require.NoError(t, f.svc.ResumeRun(context.Background(), "run-6"))
	assert.Equal(t, []string{"run-6"}, f.finalizer.finalized)
}

func TestResumeRun_RejectsInactiveRun(t *testing.T) {
	f := newRunManagerFixture(t)

	f.expectLockAcquired("run-7")
	f.runs.EXPECT().GetByID(gomock.Any(), "run-7").
		Return(&model.Run{ID: "run-7", Status: model.RunStatusFailed}, nil)

	err := f.svc.ResumeRun(context.Background(), "run-7")
	require.Error(t, err)
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ErrCodeConflict, appErr.Code)
}

func TestResumeRun_ConflictsWhenLockHeld(t *testing.T) {
	f := newRunManagerFixture(t)

	f.runs.EXPECT().WithRecoveryLock(gomock.Any(), "run-8", gomock.Any()).Return(false, nil)

	err := f.svc.ResumeRun(context.Background(), "run-8")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "being recovered by another process")
}

func TestResumeRun_RequiresRunID(t *testing.T) {
	f := newRunManagerFixture(t)
	err := f.svc.ResumeRun(context.Background(), "")
	require.Error(t, err)
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ErrCodeValidation, appErr.Code)
}

func TestFailRun_Validation(t *testing.T) {
	f := newRunManagerFixture(t)
	ctx := context.Background()

	require.Error(t, f.svc.FailRun(ctx, "", "reason"))
	require.Error(t, f.svc.FailRun(ctx, "run-9", ""))
}

func TestFailRun_CancelsPendingJobs(t *testing.T) {
	f := newRunManagerFixture(t)

	f.runs.EXPECT().Fail(gomock.Any(), core.FailRunParams{RunID: "run-9", Reason: "operator abort"}).
		Return(&model.Run{ID: "run-9", Status: model.RunStatusFailed}, nil)
	f.jobs.EXPECT().List(gomock.Any(), gomock.Any()).
		Return([]*model.Job{{ID: "job-a"}, {ID: "job-b"}}, nil)
	f.jobs.EXPECT().Cancel(gomock.Any(), "job-a").Return(true, nil)
	f.jobs.EXPECT().Cancel(gomock.Any(), "job-b").Return(false, errors.New("already running"))

	require.NoError(t, f.svc.FailRun(context.Background(), "run-9", "operator abort"))
}

func TestCleanup(t *testing.T) {
	f := newRunManagerFixture(t)
	ctx := context.Background()

	_, err := f.svc.Cleanup(ctx, 0)
	require.Error(t, err)

	first := f.runs.EXPECT().DeleteOldRuns(gomock.Any(), core.DeleteOldRunsParams{
		MaxAge:    30 * 24 * time.Hour,
		BatchSize: 100,
	}).Return(int64(150), nil)
	f.runs.EXPECT().DeleteOldRuns(gomock.Any(), gomock.Any()).
		After(first).
		Return(int64(0), nil)

	total, err := f.svc.Cleanup(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(150), total)
}

func TestRunHealthStatus(t *testing.T) {
	f := newRunManagerFixture(t)

	run := &model.Run{
		ID:                 "run-10",
		Status:             model.RunStatusProcessing,
		TotalProspects:     10,
		CompletedProspects: 5,
		CreatedAt:          f.now.Add(-40 * time.Minute),
	}
	activity := f.now.Add(-time.Minute)

	f.runs.EXPECT().GetByID(gomock.Any(), "run-10").Return(run, nil)
	f.results.EXPECT().LastActivity(gomock.Any(), "run-10").Return(&activity, nil)

	health, err := f.svc.RunHealthStatus(context.Background(), "run-10")
	require.NoError(t, err)
	assert.True(t, health.Stuck)
	assert.InDelta(t, 50.0, health.ProgressPercent, 0.001)
	assert.Equal(t, 40*time.Minute, health.Age)

	_, err = f.svc.RunHealthStatus(context.Background(), "")
	require.Error(t, err)
}

func TestRunManagerStats(t *testing.T) {
	f := newRunManagerFixture(t)

	f.runs.EXPECT().Stats(gomock.Any()).
		Return(&model.RunStats{Pending: 1, Processing: 2, Completed: 3, Failed: 4}, nil)

	stats, err := f.svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Processing)
}
