package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/aiqualifier/aiq-api/config"
	"github.com/aiqualifier/aiq-api/internal/core"
	"github.com/aiqualifier/aiq-api/internal/domain/model"
	"github.com/aiqualifier/aiq-api/internal/mocks"
)

// recordingSink captures emitted metrics for assertions.
type recordingSink struct {
	mu     sync.Mutex
	counts map[string]int64
	tags   map[string]map[string]string
}

func newRecordingSink() *recordingSink {
	return &recordingSink{
		counts: make(map[string]int64),
		tags:   make(map[string]map[string]string),
	}
}

func (r *recordingSink) Count(name string, value int64, tags map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[name] += value
	r.tags[name] = tags
}

func (r *recordingSink) Gauge(name string, _ float64, tags map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[name]++
	r.tags[name] = tags
}

func (r *recordingSink) Timing(name string, _ time.Duration, tags map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[name]++
	r.tags[name] = tags
}

func (r *recordingSink) count(name string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[name]
}

func (r *recordingSink) tag(name, key string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tags[name][key]
}

func testReaperConfig() config.ReaperConfig {
	return config.ReaperConfig{
		Interval:        time.Minute,
		PendingMaxAge:   time.Hour,
		CompletedMaxAge: 7 * 24 * time.Hour,
		FailedMaxAge:    7 * 24 * time.Hour,
		RunsMaxAge:      90 * 24 * time.Hour,
		BatchSize:       100,
	}
}

type reaperFixture struct {
	svc  *ReaperService
	repo *mocks.MockReaperRepository
	runs *mocks.MockRunRepository
	sink *recordingSink
}

func newReaperFixture(t *testing.T) *reaperFixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	repo := mocks.NewMockReaperRepository(ctrl)
	runs := mocks.NewMockRunRepository(ctrl)
	sink := newRecordingSink()

	svc, err := NewReaperService(ReaperServiceOptions{
		Repo:    repo,
		Runs:    runs,
		Config:  testReaperConfig(),
		Metrics: sink,
	})
	require.NoError(t, err)
	return &reaperFixture{svc: svc, repo: repo, runs: runs, sink: sink}
}

func TestNewReaperService_RequiresRepo(t *testing.T) {
	_, err := NewReaperService(ReaperServiceOptions{Config: testReaperConfig()})
	require.Error(t, err)
}

func TestRunCleanup_AllSteps(t *testing.T) {
	f := newReaperFixture(t)
	ctx := context.Background()

	// Each step loops until a batch comes back empty.
	first := f.repo.EXPECT().FailStalePendingJobs(gomock.Any(), time.Hour, 100).Return(int64(3), nil)
	f.repo.EXPECT().FailStalePendingJobs(gomock.Any(), time.Hour, 100).After(first).Return(int64(0), nil)

	completedFirst := f.repo.EXPECT().DeleteOldJobs(gomock.Any(), core.DeleteOldJobsParams{
		Status:    model.JobStatusCompleted,
		MaxAge:    7 * 24 * time.Hour,
		BatchSize: 100,
	}).Return(int64(10), nil)
	f.repo.EXPECT().DeleteOldJobs(gomock.Any(), core.DeleteOldJobsParams{
		Status:    model.JobStatusCompleted,
		MaxAge:    7 * 24 * time.Hour,
		BatchSize: 100,
	}).After(completedFirst).Return(int64(0), nil)

	f.repo.EXPECT().DeleteOldJobs(gomock.Any(), core.DeleteOldJobsParams{
		Status:    model.JobStatusFailed,
		MaxAge:    7 * 24 * time.Hour,
		BatchSize: 100,
	}).Return(int64(0), nil)

	runsFirst := f.runs.EXPECT().DeleteOldRuns(gomock.Any(), core.DeleteOldRunsParams{
		MaxAge:    90 * 24 * time.Hour,
		BatchSize: 100,
	}).Return(int64(5), nil)
	f.runs.EXPECT().DeleteOldRuns(gomock.Any(), gomock.Any()).After(runsFirst).Return(int64(0), nil)

	require.NoError(t, f.svc.RunCleanup(ctx))

	assert.Equal(t, int64(1), f.sink.count("reaper.cleanup"))
	assert.Equal(t, "success", f.sink.tag("reaper.cleanup", "result"))
	assert.Equal(t, int64(18), f.sink.count("reaper.jobs_processed"))
	assert.Equal(t, int64(1), f.sink.count("reaper.last_success_epoch"))
}

func TestRunCleanup_ContinuesPastStepFailure(t *testing.T) {
	f := newReaperFixture(t)
	ctx := context.Background()

	f.repo.EXPECT().FailStalePendingJobs(gomock.Any(), time.Hour, 100).
		Return(int64(0), errors.New("deadlock detected"))
	f.repo.EXPECT().DeleteOldJobs(gomock.Any(), gomock.Any()).Return(int64(0), nil).Times(2)
	f.runs.EXPECT().DeleteOldRuns(gomock.Any(), gomock.Any()).Return(int64(0), nil)

	err := f.svc.RunCleanup(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fail stale pending jobs")
	assert.Equal(t, "error", f.sink.tag("reaper.cleanup", "result"))
	assert.Equal(t, int64(0), f.sink.count("reaper.last_success_epoch"))
}

func TestRunCleanup_AllStepsCancelledReportsCanceled(t *testing.T) {
	f := newReaperFixture(t)

	f.repo.EXPECT().FailStalePendingJobs(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(int64(0), context.Canceled)
	f.repo.EXPECT().DeleteOldJobs(gomock.Any(), gomock.Any()).
		Return(int64(0), context.Canceled).Times(2)
	f.runs.EXPECT().DeleteOldRuns(gomock.Any(), gomock.Any()).
		Return(int64(0), context.Canceled)

	err := f.svc.RunCleanup(context.Background())
	require.ErrorIs(t, err, context.Canceled)
	// cancellation is not an error result for metrics
	assert.Equal(t, "noop", f.sink.tag("reaper.cleanup", "result"))
}

func TestRunCleanup_NoopResult(t *testing.T) {
	f := newReaperFixture(t)

	f.repo.EXPECT().FailStalePendingJobs(gomock.Any(), gomock.Any(), gomock.Any()).Return(int64(0), nil)
	f.repo.EXPECT().DeleteOldJobs(gomock.Any(), gomock.Any()).Return(int64(0), nil).Times(2)
	f.runs.EXPECT().DeleteOldRuns(gomock.Any(), gomock.Any()).Return(int64(0), nil)

	require.NoError(t, f.svc.RunCleanup(context.Background()))
	assert.Equal(t, "noop", f.sink.tag("reaper.cleanup", "result"))
}

func TestRunCleanup_SkipsRunCleanupWithoutRunRepo(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mocks.NewMockReaperRepository(ctrl)
	svc, err := NewReaperService(ReaperServiceOptions{
		Repo:   repo,
		Config: testReaperConfig(),
	})
	require.NoError(t, err)

	repo.EXPECT().FailStalePendingJobs(gomock.Any(), gomock.Any(), gomock.Any()).Return(int64(0), nil)
	repo.EXPECT().DeleteOldJobs(gomock.Any(), gomock.Any()).Return(int64(0), nil).Times(2)

	require.NoError(t, svc.RunCleanup(context.Background()))
}

func TestReaperRun_StopsOnCancel(t *testing.T) {
	f := newReaperFixture(t)

	f.repo.EXPECT().FailStalePendingJobs(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(int64(0), nil).AnyTimes()
	f.repo.EXPECT().DeleteOldJobs(gomock.Any(), gomock.Any()).
		Return(int64(0), nil).AnyTimes()
	f.runs.EXPECT().DeleteOldRuns(gomock.Any(), gomock.Any()).
		Return(int64(0), nil).AnyTimes()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.svc.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("reaper did not stop after cancellation")
	}
}
