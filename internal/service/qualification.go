package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aiqualifier/aiq-api/internal/core"
	"github.com/aiqualifier/aiq-api/internal/data"
	"github.com/aiqualifier/aiq-api/internal/data/pgxutil"
	"github.com/aiqualifier/aiq-api/internal/domain/model"
	apperrors "github.com/aiqualifier/aiq-api/internal/errors"
	"github.com/aiqualifier/aiq-api/internal/observability/metrics"
	"github.com/aiqualifier/aiq-api/internal/observability/statsd"
)

const (
	// defaultScoreBatchSize is how many scored prospects accumulate before a
	// persistence flush. Small enough that a crash loses little work, large
	// enough to avoid a round trip per prospect.
	defaultScoreBatchSize = 10

	// highQualityThreshold is the score at or above which a prospect counts
	// toward the run's high quality tally.
	highQualityThreshold = 70.0
)

// runTxCreator inserts a run inside an existing transaction.
type runTxCreator interface {
	CreateInTx(ctx context.Context, tx *sql.Tx, req *model.CreateRunRequest) (*model.Run, error)
}

// jobTxCreator inserts a job inside an existing transaction.
type jobTxCreator interface {
	CreateInTx(ctx context.Context, tx *sql.Tx, req *model.CreateJobRequest) (*model.Job, error)
}

// QualificationServiceOptions groups dependencies for QualificationService.
type QualificationServiceOptions struct {
	DB           *sql.DB                       // Required: handle for run+job transactional creation
	Runs         core.RunRepository            // Required: run repository
	RunTxCreator runTxCreator                  // Required: transactional run insert (usually the same repo)
	JobTxCreator jobTxCreator                  // Required: transactional job insert (usually the job repo)
	Results      core.ProspectResultRepository // Required: per-domain result rows
	Scorer       core.ProspectScorer           // Required: prospect scorer
	BatchSize    int                           // Optional: scored-prospect flush size (default 10)
	Metrics      statsd.Sink                   // Optional: metric sink
	TimeProvider data.TimeProvider             // Optional: clock override for tests
	Logger       *slog.Logger                  // Optional: structured logger
}

// QualificationService orchestrates qualification runs: creating the run and
// its backing job atomically, and executing the scoring workflow when a
// worker picks the job up.
type QualificationService struct {
	db           *sql.DB
	runs         core.RunRepository
	runTxCreator runTxCreator
	jobTxCreator jobTxCreator
	results      core.ProspectResultRepository
	scorer       core.ProspectScorer
	batchSize    int
	metrics      statsd.Sink
	timeProvider data.TimeProvider
	logger       *slog.Logger
}

// NewQualificationService constructs a new QualificationService.
func NewQualificationService(opts QualificationServiceOptions) (*QualificationService, error) {
	if opts.DB == nil {
		return nil, errors.New("DB is required")
	}
	if opts.Runs == nil {
		return nil, errors.New("RunRepository is required")
	}
	if opts.RunTxCreator == nil {
		return nil, errors.New("RunTxCreator is required")
	}
	if opts.JobTxCreator == nil {
		return nil, errors.New("JobTxCreator is required")
	}
	if opts.Results == nil {
		return nil, errors.New("ProspectResultRepository is required")
	}
	if opts.Scorer == nil {
		return nil, errors.New("ProspectScorer is required")
	}

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = defaultScoreBatchSize
	}

	timeProvider := opts.TimeProvider
	if timeProvider == nil {
		timeProvider = &data.RealTimeProvider{}
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "qualification_service")
	}

	return &QualificationService{
		db:           opts.DB,
		runs:         opts.Runs,
		runTxCreator: opts.RunTxCreator,
		jobTxCreator: opts.JobTxCreator,
		results:      opts.Results,
		scorer:       opts.Scorer,
		batchSize:    batchSize,
		metrics:      opts.Metrics,
		timeProvider: timeProvider,
		logger:       logger,
	}, nil
}

// StartQualificationResult carries the run and job created by Start.
type StartQualificationResult struct {
	Run *model.Run `json:"run"`
	Job *model.Job `json:"job"`
}

// Start creates a qualification run and enqueues its processing job in one
// transaction. Either both rows commit or neither does, so there is never a
// run without a job or a job pointing at a missing run.
func (s *QualificationService) Start(ctx context.Context, req *model.CreateRunRequest) (*StartQualificationResult, error) {
	if req == nil {
		return nil, errors.New("create run request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, apperrors.Validation(err.Error())
	}

	var result StartQualificationResult
	err := pgxutil.WithSQLTx(ctx, s.db, pgxutil.SQLTxConfig{Fn: func(tx *sql.Tx) error {
		run, err := s.runTxCreator.CreateInTx(ctx, tx, req)
		if err != nil {
			return fmt.Errorf("create run: %w", err)
		}

		payload := model.QualifyJobPayload{
			RunID:           run.ID,
			UserID:          req.UserID,
			QualificationID: req.QualificationID,
			Domains:         req.Domains,
		}
		encoded, err := payload.Encode()
		if err != nil {
			return err
		}

		job, err := s.jobTxCreator.CreateInTx(ctx, tx, &model.CreateJobRequest{
			Type:       model.JobTypeQualifyProspects,
			Payload:    encoded,
			UserID:     &req.UserID,
			RunID:      &run.ID,
			MaxRetries: 3,
		})
		if err != nil {
			return fmt.Errorf("create qualification job: %w", err)
		}

		result.Run = run
		result.Job = job
		return nil
	}})
	if err != nil {
		return nil, err
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "qualification started",
			"run_id", result.Run.ID,
			"job_id", result.Job.ID,
			"prospects", result.Run.TotalProspects,
		)
	}
	metrics.EmitRunLifecycle(s.metrics, metrics.RunMetric{
		Phase:     metrics.RunPhaseStarted,
		Result:    metrics.ResultSuccess,
		Prospects: result.Run.TotalProspects,
	})

	return &result, nil
}

// GetRun returns a run by ID.
func (s *QualificationService) GetRun(ctx context.Context, id string) (*model.Run, error) {
	if id == "" {
		return nil, apperrors.ValidationField("id", "run id is required")
	}
	run, err := s.runs.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	return run, nil
}

// ListRuns returns runs matching the given filters.
func (s *QualificationService) ListRuns(ctx context.Context, opts *model.RunListOptions) ([]*model.Run, error) {
	p := normalizePagination(opts.Limit, opts.Offset)
	opts.Limit = p.Limit
	opts.Offset = p.Offset

	runs, err := s.runs.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// ListResults returns scored prospect rows for the run.
func (s *QualificationService) ListResults(ctx context.Context, runID string, limit, offset int) ([]*model.ProspectResult, error) {
	if runID == "" {
		return nil, apperrors.ValidationField("run_id", "run id is required")
	}
	p := normalizePagination(limit, offset)
	results, err := s.results.ListByRun(ctx, runID, p.Limit, p.Offset)
	if err != nil {
		return nil, fmt.Errorf("list results for run %s: %w", runID, err)
	}
	return results, nil
}

// ProgressFunc reports workflow progress back to the job layer after each
// scored prospect. Implementations must be cheap; they run inline.
type ProgressFunc func(ctx context.Context, completed, total int, domain string) error

// ProcessRun executes the qualification workflow for one job payload. It is
// resumable: domains already scored in a prior attempt are diffed out, so a
// retried or recovered job only pays for the remaining work.
func (s *QualificationService) ProcessRun(ctx context.Context, payload *model.QualifyJobPayload, onProgress ProgressFunc) error {
	if payload == nil {
		return errors.New("payload is required")
	}
	if err := payload.Validate(); err != nil {
		return apperrors.Validation(err.Error())
	}

	run, err := s.runs.GetByID(ctx, payload.RunID)
	if err != nil {
		return fmt.Errorf("load run %s: %w", payload.RunID, err)
	}

	switch run.Status {
	case model.RunStatusPending:
		marked, err := s.runs.MarkProcessing(ctx, run.ID)
		if err != nil {
			return fmt.Errorf("mark run %s processing: %w", run.ID, err)
		}
		if !marked {
			// Someone else raced us past pending; reload to see where it landed.
			run, err = s.runs.GetByID(ctx, run.ID)
			if err != nil {
				return fmt.Errorf("reload run %s: %w", run.ID, err)
			}
			if run.Status != model.RunStatusProcessing {
				return apperrors.Conflictf("run %s is %s, not processable", run.ID, run.Status)
			}
		}
	case model.RunStatusProcessing:
		// Resuming after a retry or recovery.
	case model.RunStatusCompleted:
		if s.logger != nil {
			s.logger.InfoContext(ctx, "run already completed, nothing to do", "run_id", run.ID)
		}
		return nil
	default:
		return apperrors.Conflictf("run %s is %s, not processable", run.ID, run.Status)
	}

	pending, err := s.results.PendingDomains(ctx, run.ID, payload.Domains)
	if err != nil {
		return fmt.Errorf("diff pending domains for run %s: %w", run.ID, err)
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "processing qualification run",
			"run_id", run.ID,
			"total", len(payload.Domains),
			"pending", len(pending),
		)
	}

	if err := s.scorePending(ctx, run, payload, pending, onProgress); err != nil {
		// A cancelled worker leaves the run processing; the recovery sweep
		// resumes it. Only real scoring failures mark the run failed.
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			s.failRunAfterError(ctx, run.ID, err)
		}
		return err
	}

	return s.FinalizeRun(ctx, run.ID)
}

// scorePending scores each pending domain, flushing accumulated results every
// batchSize prospects. A partial batch is flushed before returning an error
// so completed work survives the failure.
func (s *QualificationService) scorePending(
	ctx context.Context,
	run *model.Run,
	payload *model.QualifyJobPayload,
	pending []string,
	onProgress ProgressFunc,
) error {
	completed := run.CompletedProspects
	batch := make([]model.ProspectScore, 0, s.batchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.results.UpsertBatch(ctx, run.ID, batch); err != nil {
			return fmt.Errorf("persist %d scored prospects: %w", len(batch), err)
		}
		updated, err := s.runs.IncrementCompleted(ctx, run.ID, len(batch))
		if err != nil {
			return fmt.Errorf("increment run counter: %w", err)
		}
		completed = updated.CompletedProspects
		batch = batch[:0]
		return nil
	}

	for _, domain := range pending {
		if err := ctx.Err(); err != nil {
			if flushErr := flush(); flushErr != nil && s.logger != nil {
				s.logger.WarnContext(ctx, "flush on cancellation failed", "run_id", run.ID, "error", flushErr)
			}
			return apperrors.Wrap(err, apperrors.ErrCodeCanceled, "qualification interrupted")
		}

		score, err := s.scorer.Score(ctx, domain, payload.QualificationID)
		metrics.EmitProspectScored(s.metrics, score.Score, err)
		if err != nil {
			if flushErr := flush(); flushErr != nil && s.logger != nil {
				s.logger.WarnContext(ctx, "flush on scorer error failed", "run_id", run.ID, "error", flushErr)
			}
			return fmt.Errorf("score prospect %s: %w", domain, err)
		}

		batch = append(batch, score)
		if len(batch) >= s.batchSize {
			if err := flush(); err != nil {
				return err
			}
		}

		if onProgress != nil {
			// Progress counts in-memory scores too, not just flushed ones.
			if err := onProgress(ctx, completed+len(batch), run.TotalProspects, domain); err != nil {
				if s.logger != nil {
					s.logger.WarnContext(ctx, "progress callback failed", "run_id", run.ID, "error", err)
				}
			}
		}
	}

	return flush()
}

// FinalizeRun aggregates persisted results into the run summary and marks the
// run completed. The recovery sweep also calls this for runs whose prospects
// all finished before the original job could finalize.
func (s *QualificationService) FinalizeRun(ctx context.Context, runID string) error {
	summary, err := s.summarize(ctx, runID)
	if err != nil {
		return err
	}

	run, err := s.runs.Complete(ctx, core.CompleteRunParams{RunID: runID, Summary: summary})
	if err != nil {
		return fmt.Errorf("complete run %s: %w", runID, err)
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "qualification run completed",
			"run_id", runID,
			"scored", summary.Scored,
			"average_score", summary.AverageScore,
			"high_quality", summary.HighQualityCount,
		)
	}
	metrics.EmitRunLifecycle(s.metrics, metrics.RunMetric{
		Phase:        metrics.RunPhaseCompleted,
		Result:       metrics.ResultSuccess,
		Prospects:    run.TotalProspects,
		AverageScore: summary.AverageScore,
		Duration:     s.timeProvider.Now().Sub(run.CreatedAt),
	})

	return nil
}

// summarize pages through the run's persisted results computing the summary
// aggregates.
func (s *QualificationService) summarize(ctx context.Context, runID string) (model.RunSummary, error) {
	const pageSize = 500

	var summary model.RunSummary
	var total float64
	offset := 0
	for {
		page, err := s.results.ListByRun(ctx, runID, pageSize, offset)
		if err != nil {
			return model.RunSummary{}, fmt.Errorf("summarize run %s: %w", runID, err)
		}
		for _, res := range page {
			if res.Status != model.ProspectStatusCompleted {
				continue
			}
			summary.Scored++
			total += res.Score
			if res.Score >= highQualityThreshold {
				summary.HighQualityCount++
			}
		}
		if len(page) < pageSize {
			break
		}
		offset += pageSize
	}

	if summary.Scored > 0 {
		summary.AverageScore = total / float64(summary.Scored)
	}
	return summary, nil
}

// failRunAfterError marks the run failed with the workflow error. Best effort:
// the original error is what callers see either way.
func (s *QualificationService) failRunAfterError(ctx context.Context, runID string, cause error) {
	_, err := s.runs.Fail(ctx, core.FailRunParams{RunID: runID, Reason: cause.Error()})
	if err != nil && s.logger != nil {
		s.logger.ErrorContext(ctx, "failed to mark run failed",
			"run_id", runID,
			"error", err,
			"cause", cause,
		)
	}
	metrics.EmitRunLifecycle(s.metrics, metrics.RunMetric{
		Phase:  metrics.RunPhaseFailed,
		Result: metrics.ResultError,
		Err:    cause,
	})
}

// DecodeQualifyPayload parses a job payload into the typed form.
func DecodeQualifyPayload(raw json.RawMessage) (*model.QualifyJobPayload, error) {
	var payload model.QualifyJobPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, apperrors.ValidationField("payload", fmt.Sprintf("decode qualify payload: %v", err))
	}
	if err := payload.Validate(); err != nil {
		return nil, apperrors.ValidationField("payload", err.Error())
	}
	return &payload, nil
}
