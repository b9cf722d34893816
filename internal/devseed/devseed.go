// Package devseed populates a development database with representative
// qualification runs, learner progress, and UAT records so the API has
// something to serve immediately after a reset.
package devseed

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aiqualifier/aiq-api/internal/core"
	"github.com/aiqualifier/aiq-api/internal/data"
	"github.com/aiqualifier/aiq-api/internal/domain/model"
)

// seedUserID matches the dev auth provider default so seeded data shows up
// for the locally signed-in user.
const seedUserID = "dev-user"

// Services bundles the repositories needed for development seeding.
type Services struct {
	DB       *sql.DB
	runs     *data.RunRepo
	results  *data.ProspectResultRepo
	jobs     *data.JobRepo
	progress *data.ProgressRepo
	uat      *data.UATRepo
}

// NewServices constructs the repositories for seeding using the provided DB.
func NewServices(db *sql.DB) Services {
	return Services{
		DB:       db,
		runs:     data.NewRunRepo(data.RunRepoOptions{DB: db}),
		results:  data.NewProspectResultRepo(data.ProspectResultRepoOptions{DB: db}),
		jobs:     data.NewJobRepo(db, data.RepoConfig{}),
		progress: data.NewProgressRepo(data.ProgressRepoOptions{DB: db}),
		uat:      data.NewUATRepo(data.UATRepoOptions{DB: db}),
	}
}

// Run executes the full development seeding workflow against the provided DB.
// Seeding is idempotent: when the dev user already has runs the run and job
// seeding is skipped, and progress rows are upserts.
func Run(ctx context.Context, svcs Services, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	seeded, err := alreadySeeded(ctx, svcs)
	if err != nil {
		return fmt.Errorf("check existing seed data: %w", err)
	}
	if seeded {
		logger.InfoContext(ctx, "dev user already has runs, skipping run seeding")
	} else if seedErr := seedRuns(ctx, svcs, logger); seedErr != nil {
		return seedErr
	}

	failures := 0
	failures += seedProgress(ctx, svcs, logger)
	failures += seedUAT(ctx, svcs, logger)

	if failures > 0 {
		logger.WarnContext(ctx, "development seeding finished with failures", "failures", failures)
		return nil
	}

	logger.InfoContext(ctx, "development seeding complete")
	return nil
}

func alreadySeeded(ctx context.Context, svcs Services) (bool, error) {
	userID := seedUserID
	existing, err := svcs.runs.List(ctx, &model.RunListOptions{UserID: &userID, Limit: 1})
	if err != nil {
		return false, err
	}
	return len(existing) > 0, nil
}

type seedRun struct {
	QualificationID string
	Domains         []string
	Scores          []float64
	Complete        bool
}

func seedRunFixtures() []seedRun {
	return []seedRun{
		{
			QualificationID: "saas-outbound-q3",
			Domains:         []string{"acme.example", "globex.example", "initech.example"},
			Scores:          []float64{82.5, 41.0, 67.25},
			Complete:        true,
		},
		{
			QualificationID: "fintech-pilot",
			Domains:         []string{"vandelay.example", "hooli.example"},
			Scores:          []float64{90.0, 12.5},
			Complete:        true,
		},
		{
			// Left pending so the qualifier runner has work when it starts.
			QualificationID: "enterprise-expansion",
			Domains:         []string{"umbrella.example", "stark.example", "wayne.example"},
		},
	}
}

func seedRuns(ctx context.Context, svcs Services, logger *slog.Logger) error {
	for _, fixture := range seedRunFixtures() {
		if err := seedOneRun(ctx, svcs, fixture); err != nil {
			return fmt.Errorf("seed run %s: %w", fixture.QualificationID, err)
		}
		logger.InfoContext(ctx, "seeded run",
			"qualification_id", fixture.QualificationID,
			"domains", len(fixture.Domains),
			"completed", fixture.Complete)
	}
	return nil
}

func seedOneRun(ctx context.Context, svcs Services, fixture seedRun) error {
	run, err := svcs.runs.Create(ctx, &model.CreateRunRequest{
		UserID:          seedUserID,
		QualificationID: fixture.QualificationID,
		Domains:         fixture.Domains,
	})
	if err != nil {
		return err
	}

	if !fixture.Complete {
		return seedPendingJob(ctx, svcs, run, fixture)
	}

	if _, err = svcs.runs.MarkProcessing(ctx, run.ID); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}

	scores := buildScores(fixture)
	if err = svcs.results.UpsertBatch(ctx, run.ID, scores); err != nil {
		return fmt.Errorf("persist scores: %w", err)
	}
	if _, err = svcs.runs.IncrementCompleted(ctx, run.ID, len(scores)); err != nil {
		return fmt.Errorf("increment completed: %w", err)
	}

	summary := summarizeScores(scores)
	if _, err = svcs.runs.Complete(ctx, core.CompleteRunParams{RunID: run.ID, Summary: summary}); err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	return nil
}

// seedPendingJob queues a qualify job for an unprocessed run, mirroring what
// the qualification service does when a run is started over the API.
func seedPendingJob(ctx context.Context, svcs Services, run *model.Run, fixture seedRun) error {
	payload, err := json.Marshal(model.QualifyJobPayload{
		RunID:           run.ID,
		UserID:          run.UserID,
		QualificationID: run.QualificationID,
		Domains:         fixture.Domains,
	})
	if err != nil {
		return fmt.Errorf("marshal job payload: %w", err)
	}

	userID := run.UserID
	runID := run.ID
	_, err = svcs.jobs.Create(ctx, &model.CreateJobRequest{
		Type:       model.JobTypeQualifyProspects,
		Payload:    payload,
		UserID:     &userID,
		RunID:      &runID,
		MaxRetries: 3,
	})
	if err != nil {
		return fmt.Errorf("queue qualify job: %w", err)
	}
	return nil
}

func buildScores(fixture seedRun) []model.ProspectScore {
	now := time.Now()
	scores := make([]model.ProspectScore, 0, len(fixture.Domains))
	for i, domain := range fixture.Domains {
		score := 50.0
		if i < len(fixture.Scores) {
			score = fixture.Scores[i]
		}
		payload, _ := json.Marshal(map[string]any{
			"summary": fmt.Sprintf("seeded evaluation for %s", domain),
		})
		scores = append(scores, model.ProspectScore{
			Domain:     domain,
			Score:      score,
			Payload:    payload,
			AnalyzedAt: now.Add(-time.Duration(i) * time.Minute),
		})
	}
	return scores
}

func summarizeScores(scores []model.ProspectScore) model.RunSummary {
	summary := model.RunSummary{Scored: len(scores)}
	if len(scores) == 0 {
		return summary
	}
	total := 0.0
	for _, s := range scores {
		total += s.Score
		if s.Score >= 70 {
			summary.HighQualityCount++
		}
	}
	summary.AverageScore = total / float64(len(scores))
	return summary
}

func seedProgress(ctx context.Context, svcs Services, logger *slog.Logger) int {
	fixtures := []model.UpsertProgressRequest{
		{UserID: seedUserID, QualificationID: "saas-outbound-q3", Score: 88, Completed: true},
		{UserID: seedUserID, QualificationID: "fintech-pilot", Score: 64, Completed: true},
		{UserID: seedUserID, QualificationID: "enterprise-expansion", Score: 35},
	}

	failures := 0
	for i := range fixtures {
		if _, err := svcs.progress.Upsert(ctx, &fixtures[i]); err != nil {
			logger.WarnContext(ctx, "seed progress failed",
				"qualification_id", fixtures[i].QualificationID, "error", err)
			failures++
		}
	}
	return failures
}

func seedUAT(ctx context.Context, svcs Services, logger *slog.Logger) int {
	existing, err := svcs.uat.ListSessions(ctx, seedUserID, 1, 0)
	if err != nil {
		logger.WarnContext(ctx, "list uat sessions failed", "error", err)
		return 1
	}
	if len(existing) > 0 {
		return 0
	}

	session, err := svcs.uat.CreateSession(ctx, &model.StartUATSessionRequest{
		UserID:   seedUserID,
		Scenario: "run-lifecycle-smoke",
	})
	if err != nil {
		logger.WarnContext(ctx, "seed uat session failed", "error", err)
		return 1
	}

	failures := 0
	tasks := []model.RecordUATTaskRequest{
		{TaskKey: "create-run", Passed: true},
		{TaskKey: "view-results", Passed: true},
		{TaskKey: "export-analytics", Passed: false, Notes: "export timed out on large run"},
	}
	for i := range tasks {
		if _, taskErr := svcs.uat.RecordTask(ctx, session.ID, &tasks[i]); taskErr != nil {
			logger.WarnContext(ctx, "seed uat task failed", "task", tasks[i].TaskKey, "error", taskErr)
			failures++
		}
	}

	if _, fbErr := svcs.uat.SubmitFeedback(ctx, session.ID, &model.SubmitUATFeedbackRequest{
		Rating:  4,
		Comment: "run flow works, analytics export needs a progress indicator",
	}); fbErr != nil {
		logger.WarnContext(ctx, "seed uat feedback failed", "error", fbErr)
		failures++
	}

	if _, closeErr := svcs.uat.CloseSession(ctx, session.ID, model.UATSessionCompleted); closeErr != nil {
		logger.WarnContext(ctx, "close uat session failed", "error", closeErr)
		failures++
	}

	return failures
}
