package qualrunner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/aiqualifier/aiq-api/internal/domain/model"
	"github.com/aiqualifier/aiq-api/internal/mocks"
	"github.com/aiqualifier/aiq-api/internal/service"
)

type stubProcessor struct {
	payloads []*model.QualifyJobPayload
	err      error
}

func (s *stubProcessor) ProcessRun(_ context.Context, payload *model.QualifyJobPayload, _ service.ProgressFunc) error {
	s.payloads = append(s.payloads, payload)
	return s.err
}

func testJob(t *testing.T, id string) *model.Job {
	t.Helper()
	payload, err := (&model.QualifyJobPayload{
		RunID:   "run-1",
		Domains: []string{"acme.test", "globex.test"},
	}).Encode()
	require.NoError(t, err)
	return &model.Job{
		ID:      id,
		Type:    model.JobTypeQualifyProspects,
		Status:  model.JobStatusRunning,
		Payload: payload,
	}
}

func TestNewRunnerValidation(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	_, err := NewRunner(RunnerOptions{Qualifier: &stubProcessor{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JobsSvc")

	_, err = NewRunner(RunnerOptions{JobsRepo: mocks.NewMockJobRepository(ctrl)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "qualification service")
}

func TestRunnerProcessesJob(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mocks.NewMockJobRepository(ctrl)
	job := testJob(t, "job-1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := repo.EXPECT().ReserveNext(gomock.Any(), model.JobTypeQualifyProspects, gomock.Any()).
		Return(job, nil)
	repo.EXPECT().ReserveNext(gomock.Any(), model.JobTypeQualifyProspects, gomock.Any()).
		After(first).
		DoAndReturn(func(context.Context, model.JobType, int) (*model.Job, error) {
			cancel()
			return nil, model.ErrNoJobsAvailable
		}).
		AnyTimes()
	repo.EXPECT().Complete(gomock.Any(), "job-1").Return(true, nil)
	repo.EXPECT().WaitForNotification(gomock.Any(), model.JobTypeQualifyProspects).
		DoAndReturn(func(ctx context.Context, _ model.JobType) error {
			<-ctx.Done()
			return ctx.Err()
		}).
		AnyTimes()

	processor := &stubProcessor{}
	runner, err := NewRunner(RunnerOptions{
		JobsRepo:  repo,
		Qualifier: processor,
		Lease:     60 * time.Second,
	})
	require.NoError(t, err)

	err = runner.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	require.Len(t, processor.payloads, 1)
	assert.Equal(t, "run-1", processor.payloads[0].RunID)
	assert.Equal(t, []string{"acme.test", "globex.test"}, processor.payloads[0].Domains)
}

// gatedProcessor blocks each job until released, tracking how many jobs are
// in flight at once.
type gatedProcessor struct {
	mu        sync.Mutex
	active    int
	maxActive int
	entered   chan struct{}
	release   chan struct{}
}

func newGatedProcessor() *gatedProcessor {
	return &gatedProcessor{
		entered: make(chan struct{}, 16),
		release: make(chan struct{}),
	}
}

func (g *gatedProcessor) ProcessRun(_ context.Context, _ *model.QualifyJobPayload, _ service.ProgressFunc) error {
	g.mu.Lock()
	g.active++
	if g.active > g.maxActive {
		g.maxActive = g.active
	}
	g.mu.Unlock()

	g.entered <- struct{}{}
	<-g.release

	g.mu.Lock()
	g.active--
	g.mu.Unlock()
	return nil
}

func (g *gatedProcessor) snapshot() (active, maxActive int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active, g.maxActive
}

func awaitSignal(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestRunnerCapsConcurrentJobs(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	const (
		workers   = 2
		totalJobs = 5
	)

	var (
		mu        sync.Mutex
		pending   []*model.Job
		completed int
	)
	for i := range totalJobs {
		pending = append(pending, testJob(t, fmt.Sprintf("job-%d", i)))
	}
	allDone := make(chan struct{})

	repo := mocks.NewMockJobRepository(ctrl)
	repo.EXPECT().ReserveNext(gomock.Any(), model.JobTypeQualifyProspects, gomock.Any()).
		DoAndReturn(func(context.Context, model.JobType, int) (*model.Job, error) {
			mu.Lock()
			defer mu.Unlock()
			if len(pending) == 0 {
				return nil, model.ErrNoJobsAvailable
			}
			job := pending[0]
			pending = pending[1:]
			return job, nil
		}).
		AnyTimes()
	repo.EXPECT().Complete(gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, string) (bool, error) {
			mu.Lock()
			defer mu.Unlock()
			completed++
			if completed == totalJobs {
				close(allDone)
			}
			return true, nil
		}).
		AnyTimes()
	repo.EXPECT().Heartbeat(gomock.Any(), gomock.Any(), gomock.Any()).Return(true, nil).AnyTimes()
	repo.EXPECT().WaitForNotification(gomock.Any(), model.JobTypeQualifyProspects).
		DoAndReturn(func(ctx context.Context, _ model.JobType) error {
			<-ctx.Done()
			return ctx.Err()
		}).
		AnyTimes()

	processor := newGatedProcessor()
	runner, err := NewRunner(RunnerOptions{
		JobsRepo:    repo,
		Qualifier:   processor,
		Concurrency: workers,
		Lease:       60 * time.Second,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runDone := make(chan error, 1)
	go func() { runDone <- runner.Run(ctx) }()

	// Both workers pick up a job each and block in the processor.
	for range workers {
		awaitSignal(t, processor.entered, "worker to enter processor")
	}

	// With every worker busy, exactly Concurrency jobs are in flight and the
	// excess stays queued.
	active, _ := processor.snapshot()
	assert.Equal(t, workers, active)
	mu.Lock()
	assert.Len(t, pending, totalJobs-workers)
	mu.Unlock()

	// Release the gate and let the queue drain.
	close(processor.release)
	for range totalJobs - workers {
		awaitSignal(t, processor.entered, "worker to enter processor")
	}
	awaitSignal(t, allDone, "all jobs to complete")

	cancel()
	select {
	case err := <-runDone:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for runner to stop")
	}

	_, maxActive := processor.snapshot()
	assert.Equal(t, workers, maxActive, "in-flight jobs must never exceed the worker count")
	mu.Lock()
	assert.Empty(t, pending)
	assert.Equal(t, totalJobs, completed)
	mu.Unlock()
}

func TestRunnerFailsJobOnHandlerError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mocks.NewMockJobRepository(ctrl)
	job := testJob(t, "job-2")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := repo.EXPECT().ReserveNext(gomock.Any(), model.JobTypeQualifyProspects, gomock.Any()).
		Return(job, nil)
	repo.EXPECT().ReserveNext(gomock.Any(), model.JobTypeQualifyProspects, gomock.Any()).
		After(first).
		DoAndReturn(func(context.Context, model.JobType, int) (*model.Job, error) {
			cancel()
			return nil, model.ErrNoJobsAvailable
		}).
		AnyTimes()
	repo.EXPECT().Fail(gomock.Any(), "job-2", "scorer unavailable").Return(true, nil)
	repo.EXPECT().WaitForNotification(gomock.Any(), model.JobTypeQualifyProspects).
		DoAndReturn(func(ctx context.Context, _ model.JobType) error {
			<-ctx.Done()
			return ctx.Err()
		}).
		AnyTimes()

	runner, err := NewRunner(RunnerOptions{
		JobsRepo:  repo,
		Qualifier: &stubProcessor{err: errors.New("scorer unavailable")},
	})
	require.NoError(t, err)

	err = runner.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestRunnerFailsJobWithoutHandler(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mocks.NewMockJobRepository(ctrl)
	job := testJob(t, "job-3")
	job.Type = model.JobTypeRecommendation

	runner, err := NewRunner(RunnerOptions{
		JobsRepo:  repo,
		Qualifier: &stubProcessor{},
	})
	require.NoError(t, err)
	delete(runner.handlers, model.JobTypeRecommendation)

	repo.EXPECT().Fail(gomock.Any(), "job-3", gomock.Any()).Return(true, nil)
	runner.processJob(context.Background(), job)
}

func TestRegisterHandler(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	runner, err := NewRunner(RunnerOptions{
		JobsRepo:  mocks.NewMockJobRepository(ctrl),
		Qualifier: &stubProcessor{},
	})
	require.NoError(t, err)

	require.Error(t, runner.RegisterHandler(model.JobType("bogus"), func(context.Context, *model.Job) error { return nil }))
	require.Error(t, runner.RegisterHandler(model.JobTypeRecommendation, nil))
	require.NoError(t, runner.RegisterHandler(model.JobTypeRecommendation, func(context.Context, *model.Job) error { return nil }))
}

func TestHandleQualifyJobRejectsMalformedPayload(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	runner, err := NewRunner(RunnerOptions{
		JobsRepo:  mocks.NewMockJobRepository(ctrl),
		Qualifier: &stubProcessor{},
	})
	require.NoError(t, err)

	job := &model.Job{
		ID:      "job-4",
		Type:    model.JobTypeQualifyProspects,
		Payload: json.RawMessage(`{"run_id":""}`),
	}
	require.Error(t, runner.handleQualifyJob(context.Background(), job))
}

func TestHandleQualifyJobReportsProgress(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mocks.NewMockJobRepository(ctrl)
	job := testJob(t, "job-5")

	var captured service.ProgressFunc
	processor := &capturingProcessor{onCapture: func(fn service.ProgressFunc) { captured = fn }}

	runner, err := NewRunner(RunnerOptions{
		JobsRepo:  repo,
		Qualifier: processor,
	})
	require.NoError(t, err)

	require.NoError(t, runner.handleQualifyJob(context.Background(), job))
	require.NotNil(t, captured)

	repo.EXPECT().UpdateProgress(gomock.Any(), "job-5", model.JobProgress{
		Completed: 1,
		Total:     2,
		Message:   "scored acme.test",
	}).Return(true, nil)
	require.NoError(t, captured(context.Background(), 1, 2, "acme.test"))
}

type capturingProcessor struct {
	onCapture func(service.ProgressFunc)
}

func (c *capturingProcessor) ProcessRun(_ context.Context, _ *model.QualifyJobPayload, onProgress service.ProgressFunc) error {
	c.onCapture(onProgress)
	return nil
}
