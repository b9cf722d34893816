package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeHTTP runs the HTTP server.
	ServiceModeHTTP ServiceMode = "http"
	// ServiceModeQualifierRunner runs the prospect qualification job worker.
	ServiceModeQualifierRunner ServiceMode = "qualifier-runner"
	// ServiceModeRunManager runs the stuck-run recovery sweep.
	ServiceModeRunManager ServiceMode = "run-manager"
	// ServiceModeReaper runs the job reaper for cleanup.
	ServiceModeReaper ServiceMode = "reaper"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{
		ServiceModeHTTP,
		ServiceModeQualifierRunner,
		ServiceModeRunManager,
		ServiceModeReaper,
	}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	parts := strings.Split(servicesStr, ",")
	for _, part := range parts {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeHTTP,
			ServiceModeQualifierRunner,
			ServiceModeRunManager,
			ServiceModeReaper:
			services[mode] = true
		default:
			return nil, fmt.Errorf(
				"invalid service name: %q (valid options: http, qualifier-runner, run-manager, reaper)",
				serviceName,
			)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// QualifierRunnerConfig contains qualifier runner service configuration.
type QualifierRunnerConfig struct {
	// Concurrency is the number of worker goroutines. This caps how many
	// qualification runs are processed at once per instance.
	Concurrency int `env:"QUALIFIER_RUNNER_CONCURRENCY" envDefault:"2"`

	// JobLease is the duration to lease a qualification job.
	JobLease time.Duration `env:"QUALIFIER_RUNNER_JOB_LEASE" envDefault:"60s"`

	// ScoreBatchSize is how many scored prospects accumulate before a
	// persistence flush.
	ScoreBatchSize int `env:"QUALIFIER_RUNNER_SCORE_BATCH_SIZE" envDefault:"10"`
}

// Sanitize applies guardrails to qualifier runner configuration values.
func (q *QualifierRunnerConfig) Sanitize() {
	if q.Concurrency < 1 {
		q.Concurrency = 1
	}
	if q.JobLease < 5*time.Second {
		q.JobLease = 5 * time.Second
	}
	if q.ScoreBatchSize < 1 {
		q.ScoreBatchSize = 1
	}
}

// RunManagerConfig contains run manager service configuration.
type RunManagerConfig struct {
	// Interval is the timeout sweep interval.
	Interval time.Duration `env:"RUN_MANAGER_INTERVAL" envDefault:"1m"`

	// RunTimeout is how long a run may stay active before the sweep
	// considers it timed out.
	RunTimeout time.Duration `env:"RUN_MANAGER_RUN_TIMEOUT" envDefault:"30m"`

	// StaleAfter is the result-activity window; an active run with no new
	// scored prospect inside it is considered stuck.
	StaleAfter time.Duration `env:"RUN_MANAGER_STALE_AFTER" envDefault:"10m"`

	// BatchLimit is the maximum number of runs examined per sweep.
	BatchLimit int `env:"RUN_MANAGER_BATCH_LIMIT" envDefault:"100"`
}

// Sanitize applies guardrails to run manager configuration values.
func (r *RunManagerConfig) Sanitize() {
	if r.Interval < 10*time.Second {
		r.Interval = 10 * time.Second
	}
	if r.RunTimeout < time.Minute {
		r.RunTimeout = time.Minute
	}
	if r.StaleAfter < time.Minute {
		r.StaleAfter = time.Minute
	}
	if r.BatchLimit < 1 {
		r.BatchLimit = 1
	}
}

// ReaperConfig contains job reaper service configuration.
type ReaperConfig struct {
	// Interval is the reaper tick interval.
	Interval time.Duration `env:"REAPER_INTERVAL" envDefault:"5m"`

	// PendingMaxAge is the maximum age for pending jobs before they are marked as failed.
	// Jobs stuck in pending status longer than this will be failed.
	PendingMaxAge time.Duration `env:"REAPER_PENDING_MAX_AGE" envDefault:"1h"`

	// CompletedMaxAge is the maximum age for completed jobs before deletion.
	CompletedMaxAge time.Duration `env:"REAPER_COMPLETED_MAX_AGE" envDefault:"168h"` // 7 days

	// FailedMaxAge is the maximum age for failed jobs before deletion.
	FailedMaxAge time.Duration `env:"REAPER_FAILED_MAX_AGE" envDefault:"168h"` // 7 days

	// RunsMaxAge is the maximum age for finished runs before deletion.
	// Prospect result rows are removed with their run.
	RunsMaxAge time.Duration `env:"REAPER_RUNS_MAX_AGE" envDefault:"2160h"` // 90 days

	// BatchSize is the maximum number of rows to process per operation.
	// Batching prevents long locks and I/O spikes on large tables.
	BatchSize int `env:"REAPER_BATCH_SIZE" envDefault:"1000"`
}

// Sanitize applies guardrails to reaper configuration values.
func (r *ReaperConfig) Sanitize() {
	// Enforce minimum intervals to prevent excessive database load
	if r.Interval < 1*time.Minute {
		r.Interval = 1 * time.Minute
	}
	if r.PendingMaxAge < 5*time.Minute {
		r.PendingMaxAge = 5 * time.Minute
	}
	if r.CompletedMaxAge < 1*time.Hour {
		r.CompletedMaxAge = 1 * time.Hour
	}
	if r.FailedMaxAge < 1*time.Hour {
		r.FailedMaxAge = 1 * time.Hour
	}
	if r.RunsMaxAge < 24*time.Hour {
		r.RunsMaxAge = 24 * time.Hour
	}

	// Enforce batch size bounds to prevent excessive locks or inefficiency
	if r.BatchSize < 1 {
		r.BatchSize = 1
	}
	if r.BatchSize > 10000 {
		r.BatchSize = 10000
	}
}
