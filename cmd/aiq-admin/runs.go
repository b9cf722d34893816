package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/aiqualifier/aiq-api/internal/adapters/reaper"
	"github.com/aiqualifier/aiq-api/internal/core"
	"github.com/aiqualifier/aiq-api/internal/data"
	"github.com/aiqualifier/aiq-api/internal/domain/model"
)

type listRunsOptions struct {
	UserID string
	Status string
	Limit  int
	Offset int
}

type runResultsOptions struct {
	RunID  string
	Limit  int
	Offset int
}

type failRunOptions struct {
	RunID  string
	Reason string
	Yes    bool
}

type jobStatsOptions struct {
	Type string
}

func runListRuns(cmdCtx *commandContext, args []string) error {
	opts, err := parseListRunsFlags(args)
	if err != nil {
		return err
	}

	return withDatabase(cmdCtx, 2*time.Minute, func(ctx context.Context, db *sql.DB) error {
		repo := data.NewRunRepo(data.RunRepoOptions{DB: db, Logger: cmdCtx.Logger})

		listOpts := &model.RunListOptions{Limit: opts.Limit, Offset: opts.Offset}
		if opts.UserID != "" {
			listOpts.UserID = &opts.UserID
		}
		if opts.Status != "" {
			status := model.RunStatus(opts.Status)
			if !status.Valid() {
				return fmt.Errorf("invalid run status %q", opts.Status)
			}
			listOpts.Status = &status
		}

		runs, listErr := repo.List(ctx, listOpts)
		if listErr != nil {
			return fmt.Errorf("list runs: %w", listErr)
		}
		return printRunsTable(runs)
	})
}

func printRunsTable(runs []*model.Run) error {
	if len(runs) == 0 {
		return writeln(os.Stdout, "(no runs matched)")
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	if err := writeln(tw, "ID\tUSER\tQUALIFICATION\tSTATUS\tPROGRESS\tAVG SCORE\tCREATED"); err != nil {
		return fmt.Errorf("write runs header: %w", err)
	}

	for _, run := range runs {
		avg := "-"
		if run.AverageScore != nil {
			avg = fmt.Sprintf("%.1f", *run.AverageScore)
		}
		progress := fmt.Sprintf("%d/%d", run.CompletedProspects, run.TotalProspects)
		if err := writef(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			run.ID,
			run.UserID,
			run.QualificationID,
			run.Status,
			progress,
			avg,
			formatTimestamp(run.CreatedAt),
		); err != nil {
			return fmt.Errorf("write run row: %w", err)
		}
	}

	if err := tw.Flush(); err != nil {
		return fmt.Errorf("flush runs table: %w", err)
	}
	return writef(os.Stdout, "\nTotal rows: %d\n", len(runs))
}

func runRunResults(cmdCtx *commandContext, args []string) error {
	opts, err := parseRunResultsFlags(args)
	if err != nil {
		return err
	}

	return withDatabase(cmdCtx, time.Minute, func(ctx context.Context, db *sql.DB) error {
		runs := data.NewRunRepo(data.RunRepoOptions{DB: db, Logger: cmdCtx.Logger})
		results := data.NewProspectResultRepo(data.ProspectResultRepoOptions{DB: db, Logger: cmdCtx.Logger})

		run, getErr := runs.GetByID(ctx, opts.RunID)
		if getErr != nil {
			return fmt.Errorf("load run: %w", getErr)
		}

		rows, listErr := results.ListByRun(ctx, opts.RunID, opts.Limit, opts.Offset)
		if listErr != nil {
			return fmt.Errorf("list results: %w", listErr)
		}

		return printRunResults(run, rows)
	})
}

func printRunResults(run *model.Run, rows []*model.ProspectResult) error {
	if err := writef(os.Stdout, "\nRun %s (%s)\n", run.ID, run.Status); err != nil {
		return fmt.Errorf("write results header: %w", err)
	}
	if err := writef(os.Stdout, "Qualification: %s\n", run.QualificationID); err != nil {
		return fmt.Errorf("write results qualification: %w", err)
	}
	if err := writef(os.Stdout, "Progress:      %d/%d\n\n", run.CompletedProspects, run.TotalProspects); err != nil {
		return fmt.Errorf("write results progress: %w", err)
	}

	if len(rows) == 0 {
		return writeln(os.Stdout, "(no scored prospects yet)")
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	if err := writeln(tw, "DOMAIN\tSCORE\tSTATUS\tANALYZED"); err != nil {
		return fmt.Errorf("write results table header: %w", err)
	}
	for _, row := range rows {
		analyzed := "-"
		if row.AnalyzedAt != nil {
			analyzed = formatTimestamp(*row.AnalyzedAt)
		}
		if err := writef(tw, "%s\t%.1f\t%s\t%s\n", row.Domain, row.Score, row.Status, analyzed); err != nil {
			return fmt.Errorf("write result row: %w", err)
		}
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("flush results table: %w", err)
	}
	return nil
}

type failRunConfirmOptions struct {
	opts failRunOptions
}

func (f failRunConfirmOptions) IsDryRun() bool { return false }
func (f failRunConfirmOptions) IsYes() bool    { return f.opts.Yes }
func (f failRunConfirmOptions) GetTarget() string {
	return "run " + f.opts.RunID
}

func (f failRunConfirmOptions) GetWarning() string {
	return "WARNING: this will mark the run failed and cancel its outstanding jobs."
}

func runFailRun(cmdCtx *commandContext, args []string) error {
	opts, err := parseFailRunFlags(args)
	if err != nil {
		return err
	}
	if confirmErr := confirmAction(failRunConfirmOptions{opts}, "fail run"); confirmErr != nil {
		return confirmErr
	}

	return withDatabase(cmdCtx, time.Minute, func(ctx context.Context, db *sql.DB) error {
		runs := data.NewRunRepo(data.RunRepoOptions{DB: db, Logger: cmdCtx.Logger})
		jobs := data.NewJobRepo(db, data.RepoConfig{})

		run, failErr := runs.Fail(ctx, core.FailRunParams{RunID: opts.RunID, Reason: opts.Reason})
		if failErr != nil {
			return fmt.Errorf("fail run: %w", failErr)
		}

		cancelled, cancelErr := cancelOutstandingJobs(ctx, jobs, run.ID)
		if cancelErr != nil {
			return cancelErr
		}

		cmdCtx.Logger.Info("run failed by operator",
			"run_id", run.ID, "reason", opts.Reason, "jobs_cancelled", cancelled)
		return nil
	})
}

func cancelOutstandingJobs(ctx context.Context, jobs *data.JobRepo, runID string) (int, error) {
	cancelled := 0
	for _, status := range []model.JobStatus{model.JobStatusPending, model.JobStatusRunning} {
		st := status
		list, err := jobs.List(ctx, &model.JobListOptions{RunID: &runID, Status: &st, Limit: 100})
		if err != nil {
			return cancelled, fmt.Errorf("list %s jobs: %w", status, err)
		}
		for _, job := range list {
			ok, cancelErr := jobs.Cancel(ctx, job.ID)
			if cancelErr != nil {
				return cancelled, fmt.Errorf("cancel job %s: %w", job.ID, cancelErr)
			}
			if ok {
				cancelled++
			}
		}
	}
	return cancelled, nil
}

func runJobStats(cmdCtx *commandContext, args []string) error {
	opts, err := parseJobStatsFlags(args)
	if err != nil {
		return err
	}

	jobType := model.JobType(opts.Type)
	if !jobType.Valid() {
		return fmt.Errorf("invalid job type %q", opts.Type)
	}

	return withDatabase(cmdCtx, time.Minute, func(ctx context.Context, db *sql.DB) error {
		repo := data.NewJobRepo(db, data.RepoConfig{})
		stats, statsErr := repo.Stats(ctx, jobType)
		if statsErr != nil {
			return fmt.Errorf("job stats: %w", statsErr)
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		if err = writeln(tw, "Metric\tValue"); err != nil {
			return fmt.Errorf("write stats header: %w", err)
		}
		rows := []struct {
			label string
			value int
		}{
			{"Pending", stats.Pending},
			{"Running", stats.Running},
			{"Completed", stats.Completed},
			{"Failed", stats.Failed},
			{"Cancelled", stats.Cancelled},
		}
		for _, row := range rows {
			if err = writef(tw, "%s\t%d\n", row.label, row.value); err != nil {
				return fmt.Errorf("write stats row: %w", err)
			}
		}
		if err = tw.Flush(); err != nil {
			return fmt.Errorf("flush stats table: %w", err)
		}
		return nil
	})
}

func runReapJobs(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("reap-jobs", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}

	return withDatabase(cmdCtx, 5*time.Minute, func(ctx context.Context, db *sql.DB) error {
		runner, err := reaper.NewRunner(reaper.RunnerOptions{
			DB:     db,
			Config: cmdCtx.Config.Reaper,
			Logger: cmdCtx.Logger,
		})
		if err != nil {
			return fmt.Errorf("build reaper: %w", err)
		}

		cmdCtx.Logger.Info("running single reaper sweep")
		if sweepErr := runner.Sweep(ctx); sweepErr != nil {
			return fmt.Errorf("reaper sweep: %w", sweepErr)
		}
		cmdCtx.Logger.Info("reaper sweep complete")
		return nil
	})
}

func parseListRunsFlags(args []string) (listRunsOptions, error) {
	fs := flag.NewFlagSet("list-runs", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts listRunsOptions
	fs.StringVar(&opts.UserID, "user", "", "Filter by user ID")
	fs.StringVar(&opts.Status, "status", "", "Filter by run status (pending, processing, completed, failed)")
	fs.IntVar(&opts.Limit, "limit", 20, "Maximum rows to display")
	fs.IntVar(&opts.Offset, "offset", 0, "Offset for query results")

	if err := fs.Parse(args); err != nil {
		return listRunsOptions{}, err
	}
	if opts.Limit <= 0 {
		opts.Limit = 20
	}
	return opts, nil
}

func parseRunResultsFlags(args []string) (runResultsOptions, error) {
	fs := flag.NewFlagSet("run-results", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts runResultsOptions
	fs.StringVar(&opts.RunID, "run-id", "", "Run ID to inspect (required)")
	fs.IntVar(&opts.Limit, "limit", 50, "Maximum rows to display")
	fs.IntVar(&opts.Offset, "offset", 0, "Offset for query results")

	if err := fs.Parse(args); err != nil {
		return runResultsOptions{}, err
	}

	opts.RunID = strings.TrimSpace(opts.RunID)
	if opts.RunID == "" {
		return runResultsOptions{}, errors.New("--run-id is required")
	}
	if opts.Limit <= 0 {
		opts.Limit = 50
	}
	return opts, nil
}

func parseFailRunFlags(args []string) (failRunOptions, error) {
	fs := flag.NewFlagSet("fail-run", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts failRunOptions
	fs.StringVar(&opts.RunID, "run-id", "", "Run ID to fail (required)")
	fs.StringVar(&opts.Reason, "reason", "failed by operator", "Failure reason recorded on the run")
	fs.BoolVar(&opts.Yes, "yes", false, "Skip confirmation prompt")

	if err := fs.Parse(args); err != nil {
		return failRunOptions{}, err
	}

	opts.RunID = strings.TrimSpace(opts.RunID)
	if opts.RunID == "" {
		return failRunOptions{}, errors.New("--run-id is required")
	}
	return opts, nil
}

func parseJobStatsFlags(args []string) (jobStatsOptions, error) {
	fs := flag.NewFlagSet("job-stats", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := jobStatsOptions{Type: string(model.JobTypeQualifyProspects)}
	fs.StringVar(&opts.Type, "type", opts.Type, "Job type to inspect")

	if err := fs.Parse(args); err != nil {
		return jobStatsOptions{}, err
	}
	return opts, nil
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
