package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	jmespath "github.com/jmespath-community/go-jmespath"

	"github.com/aiqualifier/aiq-api/internal/core"
	"github.com/aiqualifier/aiq-api/internal/data"
	"github.com/aiqualifier/aiq-api/internal/domain/model"
	apperrors "github.com/aiqualifier/aiq-api/internal/errors"
)

// summaryCacheKey is where the computed analytics summary lives in the cache.
const summaryCacheKey = "aiq:analytics:summary"

// exportPageSize is how many result rows Export pulls per repository call.
const exportPageSize = 500

// JMESPathEvaluator abstracts JMESPath operations for testability.
type JMESPathEvaluator interface {
	Validate(expr string) error
	Evaluate(expr string, data any) (any, error)
}

// jmespathLibEvaluator implements JMESPathEvaluator using go-jmespath.
type jmespathLibEvaluator struct{}

func (j jmespathLibEvaluator) Validate(expr string) error {
	if strings.TrimSpace(expr) == "" {
		return nil
	}
	_, err := jmespath.Compile(expr)
	return err
}

func (j jmespathLibEvaluator) Evaluate(expr string, data any) (any, error) {
	return jmespath.Search(expr, data)
}

// AnalyticsSummary is the cached aggregate view served by the summary endpoint.
type AnalyticsSummary struct {
	Runs        model.RunStats `json:"runs"`
	Jobs        model.JobStats `json:"jobs"`
	GeneratedAt time.Time      `json:"generated_at"`
}

// AnalyticsServiceOptions groups dependencies for AnalyticsService.
type AnalyticsServiceOptions struct {
	Runs         core.RunRepository            // Required: run aggregates
	Jobs         core.JobRepository            // Required: queue aggregates
	Results      core.ProspectResultRepository // Required: export source rows
	Cache        core.CacheRepository          // Optional: summary cache
	SummaryTTL   time.Duration                 // Optional: cache TTL (default 5m)
	Evaluator    JMESPathEvaluator             // Optional: JMESPath override for tests
	TimeProvider data.TimeProvider             // Optional: clock override for tests
	Logger       *slog.Logger                  // Optional: structured logger
}

// AnalyticsService serves aggregate run statistics and JMESPath projections
// over scored prospect payloads.
type AnalyticsService struct {
	runs         core.RunRepository
	jobs         core.JobRepository
	results      core.ProspectResultRepository
	cache        core.CacheRepository
	summaryTTL   time.Duration
	evaluator    JMESPathEvaluator
	timeProvider data.TimeProvider
	logger       *slog.Logger
}

// NewAnalyticsService constructs a new AnalyticsService.
func NewAnalyticsService(opts AnalyticsServiceOptions) (*AnalyticsService, error) {
	if opts.Runs == nil {
		return nil, errors.New("RunRepository is required")
	}
	if opts.Jobs == nil {
		return nil, errors.New("JobRepository is required")
	}
	if opts.Results == nil {
		return nil, errors.New("ProspectResultRepository is required")
	}

	ttl := opts.SummaryTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	evaluator := opts.Evaluator
	if evaluator == nil {
		evaluator = jmespathLibEvaluator{}
	}
	timeProvider := opts.TimeProvider
	if timeProvider == nil {
		timeProvider = &data.RealTimeProvider{}
	}
	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "analytics_service")
	}

	return &AnalyticsService{
		runs:         opts.Runs,
		jobs:         opts.Jobs,
		results:      opts.Results,
		cache:        opts.Cache,
		summaryTTL:   ttl,
		evaluator:    evaluator,
		timeProvider: timeProvider,
		logger:       logger,
	}, nil
}

// Summary returns aggregate run and queue counters, cached for the configured
// TTL when a cache is wired. Cache failures degrade to a fresh computation.
func (s *AnalyticsService) Summary(ctx context.Context) (*AnalyticsSummary, error) {
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, summaryCacheKey); err == nil && len(cached) > 0 {
			var summary AnalyticsSummary
			if unmarshalErr := json.Unmarshal(cached, &summary); unmarshalErr == nil {
				return &summary, nil
			}
		} else if err != nil && s.logger != nil {
			s.logger.WarnContext(ctx, "analytics cache read failed", "error", err)
		}
	}

	runStats, err := s.runs.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("run stats: %w", err)
	}
	jobStats, err := s.jobs.Stats(ctx, model.JobTypeQualifyProspects)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}

	summary := &AnalyticsSummary{
		Runs:        *runStats,
		Jobs:        *jobStats,
		GeneratedAt: s.timeProvider.Now().UTC(),
	}

	if s.cache != nil {
		if payload, marshalErr := json.Marshal(summary); marshalErr == nil {
			if setErr := s.cache.Set(ctx, summaryCacheKey, payload, s.summaryTTL); setErr != nil && s.logger != nil {
				s.logger.WarnContext(ctx, "analytics cache write failed", "error", setErr)
			}
		}
	}

	return summary, nil
}

// InvalidateSummary drops the cached summary so the next read recomputes it.
func (s *AnalyticsService) InvalidateSummary(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	if _, err := s.cache.Delete(ctx, summaryCacheKey); err != nil {
		return fmt.Errorf("invalidate summary cache: %w", err)
	}
	return nil
}

// exportRow is the flattened shape Export hands to the JMESPath expression.
type exportRow struct {
	Domain     string     `json:"domain"`
	Score      float64    `json:"score"`
	Status     string     `json:"status"`
	AnalyzedAt *time.Time `json:"analyzed_at,omitempty"`
	Payload    any        `json:"payload,omitempty"`
}

// Export flattens a run's scored prospects and optionally projects them
// through a JMESPath expression, e.g. "[?score >= `70`].domain".
// An empty expression returns the flattened rows unchanged.
func (s *AnalyticsService) Export(ctx context.Context, runID, expression string) (any, error) {
	if strings.TrimSpace(runID) == "" {
		return nil, apperrors.ValidationField("run_id", "run id is required")
	}
	if err := s.evaluator.Validate(expression); err != nil {
		return nil, apperrors.ValidationField("expression", fmt.Sprintf("invalid JMESPath expression: %v", err))
	}

	if _, err := s.runs.GetByID(ctx, runID); err != nil {
		return nil, err
	}

	rows := make([]exportRow, 0, exportPageSize)
	for offset := 0; ; offset += exportPageSize {
		page, err := s.results.ListByRun(ctx, runID, exportPageSize, offset)
		if err != nil {
			return nil, fmt.Errorf("list results: %w", err)
		}
		for _, result := range page {
			rows = append(rows, flattenResult(result))
		}
		if len(page) < exportPageSize {
			break
		}
	}

	if strings.TrimSpace(expression) == "" {
		return rows, nil
	}

	// JMESPath operates on decoded JSON shapes, so round-trip through json
	// to get []any/map[string]any instead of struct values.
	encoded, err := json.Marshal(rows)
	if err != nil {
		return nil, fmt.Errorf("encode export rows: %w", err)
	}
	var generic any
	if err := json.Unmarshal(encoded, &generic); err != nil {
		return nil, fmt.Errorf("decode export rows: %w", err)
	}

	projected, err := s.evaluator.Evaluate(expression, generic)
	if err != nil {
		return nil, apperrors.ValidationField("expression", fmt.Sprintf("evaluate JMESPath expression: %v", err))
	}
	return projected, nil
}

func flattenResult(result *model.ProspectResult) exportRow {
	row := exportRow{
		Domain:     result.Domain,
		Score:      result.Score,
		Status:     string(result.Status),
		AnalyzedAt: result.AnalyzedAt,
	}
	if len(result.Payload) > 0 {
		var payload any
		if err := json.Unmarshal(result.Payload, &payload); err == nil {
			row.Payload = payload
		}
	}
	return row
}
