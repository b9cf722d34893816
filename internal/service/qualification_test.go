package service

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/aiqualifier/aiq-api/internal/core"
	"github.com/aiqualifier/aiq-api/internal/data"
	"github.com/aiqualifier/aiq-api/internal/domain/model"
	apperrors "github.com/aiqualifier/aiq-api/internal/errors"
	"github.com/aiqualifier/aiq-api/internal/mocks"
)

// noopConnector provides a non-nil *sql.DB for constructor validation in
// tests that never touch the database.
type noopConnector struct{}

func (noopConnector) Connect(context.Context) (driver.Conn, error) {
	return nil, errors.New("no database in unit tests")
}

func (noopConnector) Driver() driver.Driver { return nil }

func newTestDB() *sql.DB { return sql.OpenDB(noopConnector{}) }

type qualificationFixture struct {
	svc     *QualificationService
	runs    *mocks.MockRunRepository
	results *mocks.MockProspectResultRepository
	scorer  *mocks.MockProspectScorer
}

func newQualificationFixture(t *testing.T, batchSize int) *qualificationFixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	runs := mocks.NewMockRunRepository(ctrl)
	results := mocks.NewMockProspectResultRepository(ctrl)
	scorer := mocks.NewMockProspectScorer(ctrl)

	svc, err := NewQualificationService(QualificationServiceOptions{
		DB:           newTestDB(),
		Runs:         runs,
		RunTxCreator: stubRunTxCreator{},
		JobTxCreator: stubJobTxCreator{},
		Results:      results,
		Scorer:       scorer,
		BatchSize:    batchSize,
		TimeProvider: data.NewFixedTimeProvider(time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)),
	})
	require.NoError(t, err)

	return &qualificationFixture{svc: svc, runs: runs, results: results, scorer: scorer}
}

type stubRunTxCreator struct{}

func (stubRunTxCreator) CreateInTx(context.Context, *sql.Tx, *model.CreateRunRequest) (*model.Run, error) {
	return nil, errors.New("not used in unit tests")
}

type stubJobTxCreator struct{}

func (stubJobTxCreator) CreateInTx(context.Context, *sql.Tx, *model.CreateJobRequest) (*model.Job, error) {
	return nil, errors.New("not used in unit tests")
}

func completedResults(runID string, scores ...float64) []*model.ProspectResult {
	now := time.Now()
	out := make([]*model.ProspectResult, 0, len(scores))
	for i, score := range scores {
		out = append(out, &model.ProspectResult{
			ID:         runID + "-r" + string(rune('a'+i)),
			RunID:      runID,
			Domain:     "domain" + string(rune('a'+i)) + ".test",
			Score:      score,
			Status:     model.ProspectStatusCompleted,
			AnalyzedAt: &now,
		})
	}
	return out
}

func TestNewQualificationService_Validation(t *testing.T) {
	_, err := NewQualificationService(QualificationServiceOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB is required")
}

func TestStart_Validation(t *testing.T) {
	f := newQualificationFixture(t, 10)

	_, err := f.svc.Start(context.Background(), nil)
	require.Error(t, err)

	_, err = f.svc.Start(context.Background(), &model.CreateRunRequest{UserID: "u1"})
	require.Error(t, err)
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ErrCodeValidation, appErr.Code)
}

func TestProcessRun_ScoresAndFinalizes(t *testing.T) {
	f := newQualificationFixture(t, 2)
	ctx := context.Background()

	domains := []string{"a.test", "b.test", "c.test", "d.test", "e.test"}
	run := &model.Run{
		ID:              "run-1",
		QualificationID: "qual-1",
		Status:          model.RunStatusPending,
		TotalProspects:  5,
		CreatedAt:       time.Date(2026, 2, 1, 11, 0, 0, 0, time.UTC),
	}

	f.runs.EXPECT().GetByID(gomock.Any(), "run-1").Return(run, nil)
	f.runs.EXPECT().MarkProcessing(gomock.Any(), "run-1").Return(true, nil)
	f.results.EXPECT().PendingDomains(gomock.Any(), "run-1", domains).Return(domains, nil)

	f.scorer.EXPECT().Score(gomock.Any(), gomock.Any(), "qual-1").
		DoAndReturn(func(_ context.Context, domain, _ string) (model.ProspectScore, error) {
			return model.ProspectScore{Domain: domain, Score: 80, AnalyzedAt: time.Now()}, nil
		}).
		Times(5)

	var flushedBatches []int
	completed := 0
	f.results.EXPECT().UpsertBatch(gomock.Any(), "run-1", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, scores []model.ProspectScore) error {
			flushedBatches = append(flushedBatches, len(scores))
			return nil
		}).
		Times(3)
	f.runs.EXPECT().IncrementCompleted(gomock.Any(), "run-1", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, delta int) (*model.Run, error) {
			completed += delta
			updated := *run
			updated.Status = model.RunStatusProcessing
			updated.CompletedProspects = completed
			return &updated, nil
		}).
		Times(3)

	// Finalization aggregates persisted rows.
	f.results.EXPECT().ListByRun(gomock.Any(), "run-1", 500, 0).
		Return(completedResults("run-1", 80, 80, 80, 80, 80), nil)
	f.runs.EXPECT().Complete(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, params core.CompleteRunParams) (*model.Run, error) {
			assert.Equal(t, 5, params.Summary.Scored)
			assert.InDelta(t, 80.0, params.Summary.AverageScore, 0.001)
			assert.Equal(t, 5, params.Summary.HighQualityCount)
			done := *run
			done.Status = model.RunStatusCompleted
			done.CompletedProspects = 5
			return &done, nil
		})

	var progressUpdates [][2]int
	onProgress := func(_ context.Context, completed, total int, _ string) error {
		progressUpdates = append(progressUpdates, [2]int{completed, total})
		return nil
	}

	payload := &model.QualifyJobPayload{RunID: "run-1", QualificationID: "qual-1", Domains: domains}
	require.NoError(t, f.svc.ProcessRun(ctx, payload, onProgress))

	// batch size 2 over 5 domains flushes 2, 2, then the final 1
	assert.Equal(t, []int{2, 2, 1}, flushedBatches)
	require.NotEmpty(t, progressUpdates)
	assert.Equal(t, [2]int{5, 5}, progressUpdates[len(progressUpdates)-1])
}

func TestProcessRun_ResumeScoresOnlyPending(t *testing.T) {
	f := newQualificationFixture(t, 10)
	ctx := context.Background()

	all := []string{"a.test", "b.test", "c.test", "d.test", "e.test", "f.test", "g.test", "h.test", "i.test", "j.test"}
	remaining := all[4:]
	run := &model.Run{
		ID:                 "run-2",
		QualificationID:    "qual-1",
		Status:             model.RunStatusProcessing,
		TotalProspects:     10,
		CompletedProspects: 4,
	}

	f.runs.EXPECT().GetByID(gomock.Any(), "run-2").Return(run, nil)
	f.results.EXPECT().PendingDomains(gomock.Any(), "run-2", all).Return(remaining, nil)

	var scored []string
	f.scorer.EXPECT().Score(gomock.Any(), gomock.Any(), "qual-1").
		DoAndReturn(func(_ context.Context, domain, _ string) (model.ProspectScore, error) {
			scored = append(scored, domain)
			return model.ProspectScore{Domain: domain, Score: 50}, nil
		}).
		Times(6)

	f.results.EXPECT().UpsertBatch(gomock.Any(), "run-2", gomock.Any()).Return(nil)
	f.runs.EXPECT().IncrementCompleted(gomock.Any(), "run-2", 6).
		DoAndReturn(func(_ context.Context, _ string, _ int) (*model.Run, error) {
			updated := *run
			updated.CompletedProspects = 10
			return &updated, nil
		})

	f.results.EXPECT().ListByRun(gomock.Any(), "run-2", 500, 0).
		Return(completedResults("run-2", 50, 50, 50, 50, 50, 50, 50, 50, 50, 50), nil)
	f.runs.EXPECT().Complete(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, params core.CompleteRunParams) (*model.Run, error) {
			done := *run
			done.Status = model.RunStatusCompleted
			return &done, nil
		})

	payload := &model.QualifyJobPayload{RunID: "run-2", QualificationID: "qual-1", Domains: all}
	require.NoError(t, f.svc.ProcessRun(ctx, payload, nil))
	assert.Equal(t, remaining, scored)
}

func TestProcessRun_CompletedRunIsNoop(t *testing.T) {
	f := newQualificationFixture(t, 10)

	run := &model.Run{ID: "run-3", Status: model.RunStatusCompleted}
	f.runs.EXPECT().GetByID(gomock.Any(), "run-3").Return(run, nil)

	payload := &model.QualifyJobPayload{RunID: "run-3", Domains: []string{"a.test"}}
	require.NoError(t, f.svc.ProcessRun(context.Background(), payload, nil))
}

func TestProcessRun_FailedRunConflicts(t *testing.T) {
	f := newQualificationFixture(t, 10)

	run := &model.Run{ID: "run-4", Status: model.RunStatusFailed}
	f.runs.EXPECT().GetByID(gomock.Any(), "run-4").Return(run, nil)

	payload := &model.QualifyJobPayload{RunID: "run-4", Domains: []string{"a.test"}}
	err := f.svc.ProcessRun(context.Background(), payload, nil)
	require.Error(t, err)
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ErrCodeConflict, appErr.Code)
}

func TestProcessRun_ScorerErrorFlushesPartialAndFailsRun(t *testing.T) {
	f := newQualificationFixture(t, 10)
	ctx := context.Background()

	domains := []string{"a.test", "b.test", "c.test"}
	run := &model.Run{
		ID:              "run-5",
		QualificationID: "qual-1",
		Status:          model.RunStatusProcessing,
		TotalProspects:  3,
	}

	f.runs.EXPECT().GetByID(gomock.Any(), "run-5").Return(run, nil)
	f.results.EXPECT().PendingDomains(gomock.Any(), "run-5", domains).Return(domains, nil)

	calls := 0
	f.scorer.EXPECT().Score(gomock.Any(), gomock.Any(), "qual-1").
		DoAndReturn(func(_ context.Context, domain, _ string) (model.ProspectScore, error) {
			calls++
			if calls == 3 {
				return model.ProspectScore{}, errors.New("model unavailable")
			}
			return model.ProspectScore{Domain: domain, Score: 60}, nil
		}).
		Times(3)

	// Partial batch of 2 scored prospects is flushed before the error returns.
	f.results.EXPECT().UpsertBatch(gomock.Any(), "run-5", gomock.Len(2)).Return(nil)
	f.runs.EXPECT().IncrementCompleted(gomock.Any(), "run-5", 2).
		DoAndReturn(func(_ context.Context, _ string, _ int) (*model.Run, error) {
			updated := *run
			updated.CompletedProspects = 2
			return &updated, nil
		})
	f.runs.EXPECT().Fail(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, params core.FailRunParams) (*model.Run, error) {
			assert.Equal(t, "run-5", params.RunID)
			assert.Contains(t, params.Reason, "model unavailable")
			failed := *run
			failed.Status = model.RunStatusFailed
			return &failed, nil
		})

	payload := &model.QualifyJobPayload{RunID: "run-5", QualificationID: "qual-1", Domains: domains}
	err := f.svc.ProcessRun(ctx, payload, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "score prospect c.test")
}

func TestProcessRun_CancelledContextDoesNotFailRun(t *testing.T) {
	f := newQualificationFixture(t, 10)

	domains := []string{"a.test", "b.test"}
	run := &model.Run{ID: "run-6", Status: model.RunStatusProcessing, TotalProspects: 2}

	ctx, cancel := context.WithCancel(context.Background())

	f.runs.EXPECT().GetByID(gomock.Any(), "run-6").Return(run, nil)
	f.results.EXPECT().PendingDomains(gomock.Any(), "run-6", domains).Return(domains, nil)
	f.scorer.EXPECT().Score(gomock.Any(), "a.test", gomock.Any()).
		DoAndReturn(func(_ context.Context, domain, _ string) (model.ProspectScore, error) {
			cancel()
			return model.ProspectScore{Domain: domain, Score: 40}, nil
		})
	// The in-flight score is flushed on cancellation, but the run is NOT
	// marked failed: the recovery sweep resumes it later.
	f.results.EXPECT().UpsertBatch(gomock.Any(), "run-6", gomock.Len(1)).Return(nil)
	f.runs.EXPECT().IncrementCompleted(gomock.Any(), "run-6", 1).Return(run, nil)

	payload := &model.QualifyJobPayload{RunID: "run-6", Domains: domains}
	err := f.svc.ProcessRun(ctx, payload, nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestFinalizeRun_EmptyRun(t *testing.T) {
	f := newQualificationFixture(t, 10)

	f.results.EXPECT().ListByRun(gomock.Any(), "run-7", 500, 0).Return(nil, nil)
	f.runs.EXPECT().Complete(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, params core.CompleteRunParams) (*model.Run, error) {
			assert.Equal(t, model.RunSummary{}, params.Summary)
			return &model.Run{ID: "run-7", Status: model.RunStatusCompleted}, nil
		})

	require.NoError(t, f.svc.FinalizeRun(context.Background(), "run-7"))
}

func TestFinalizeRun_SkipsIncompleteRows(t *testing.T) {
	f := newQualificationFixture(t, 10)

	rows := completedResults("run-8", 90, 30)
	rows = append(rows, &model.ProspectResult{RunID: "run-8", Domain: "x.test", Status: model.ProspectStatusAnalyzing})

	f.results.EXPECT().ListByRun(gomock.Any(), "run-8", 500, 0).Return(rows, nil)
	f.runs.EXPECT().Complete(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, params core.CompleteRunParams) (*model.Run, error) {
			assert.Equal(t, 2, params.Summary.Scored)
			assert.InDelta(t, 60.0, params.Summary.AverageScore, 0.001)
			assert.Equal(t, 1, params.Summary.HighQualityCount)
			return &model.Run{ID: "run-8", Status: model.RunStatusCompleted}, nil
		})

	require.NoError(t, f.svc.FinalizeRun(context.Background(), "run-8"))
}

func TestDecodeQualifyPayload(t *testing.T) {
	payload := &model.QualifyJobPayload{RunID: "run-1", Domains: []string{"a.test"}}
	encoded, err := payload.Encode()
	require.NoError(t, err)

	decoded, err := DecodeQualifyPayload(encoded)
	require.NoError(t, err)
	assert.Equal(t, payload.RunID, decoded.RunID)
	assert.Equal(t, payload.Domains, decoded.Domains)

	_, err = DecodeQualifyPayload(json.RawMessage(`not json`))
	require.Error(t, err)

	_, err = DecodeQualifyPayload(json.RawMessage(`{"run_id":"","domains":[]}`))
	require.Error(t, err)
}
