package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	apperrors "github.com/aiqualifier/aiq-api/internal/errors"

	"github.com/aiqualifier/aiq-api/internal/data/pgxutil"
	"github.com/aiqualifier/aiq-api/internal/domain/model"
)

// ProspectResultRepo provides database operations for per-domain result rows.
type ProspectResultRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// ProspectResultRepoOptions bundles dependencies for NewProspectResultRepo.
type ProspectResultRepoOptions struct {
	DB           *sql.DB
	TimeProvider TimeProvider
	Logger       *slog.Logger
}

// NewProspectResultRepo creates a new ProspectResultRepo instance.
func NewProspectResultRepo(opts ProspectResultRepoOptions) *ProspectResultRepo {
	tp := opts.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	return &ProspectResultRepo{
		DB:           opts.DB,
		timeProvider: tp,
		logger:       opts.Logger,
	}
}

const prospectResultColumns = `
  id,
  run_id,
  domain,
  payload,
  score,
  status,
  analyzed_at,
  created_at,
  updated_at
`

func scanProspectResult(scanner interface{ Scan(dest ...any) error }) (*model.ProspectResult, error) {
	res := &model.ProspectResult{}
	var (
		payload    []byte
		score      sql.NullFloat64
		analyzedAt sql.NullTime
	)

	if err := scanner.Scan(
		&res.ID,
		&res.RunID,
		&res.Domain,
		&payload,
		&score,
		&res.Status,
		&analyzedAt,
		&res.CreatedAt,
		&res.UpdatedAt,
	); err != nil {
		return nil, err
	}

	res.Payload = cloneJSON(payload)
	if score.Valid {
		res.Score = score.Float64
	}
	res.AnalyzedAt = cloneNullableTime(analyzedAt)

	return res, nil
}

// UpsertBatch persists a batch of scored prospects in input order within one
// transaction, marking each row completed. A re-run of the same domains
// overwrites the earlier rows, so resumed runs stay idempotent.
func (r *ProspectResultRepo) UpsertBatch(ctx context.Context, runID string, scores []model.ProspectScore) error {
	if runID == "" {
		return errors.New("run id is required")
	}
	if len(scores) == 0 {
		return nil
	}

	now := r.timeProvider.Now().UTC()
	return pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			stmt, err := tx.PrepareContext(ctx, `
				INSERT INTO prospect_results (run_id, domain, payload, score, status, analyzed_at, created_at, updated_at)
				VALUES ($1, $2, $3, $4, 'completed', $5, $5, $5)
				ON CONFLICT (run_id, domain) DO UPDATE
				SET payload = EXCLUDED.payload,
				    score = EXCLUDED.score,
				    status = 'completed',
				    analyzed_at = EXCLUDED.analyzed_at,
				    updated_at = EXCLUDED.updated_at
			`)
			if err != nil {
				return fmt.Errorf("prepare upsert: %w", err)
			}
			defer func() {
				_ = stmt.Close()
			}()

			for _, s := range scores {
				payload := s.Payload
				if len(payload) == 0 {
					payload = []byte(`{}`)
				}
				if _, execErr := stmt.ExecContext(ctx, runID, s.Domain, []byte(payload), s.Score, now); execErr != nil {
					return apperrors.MapDBError(fmt.Errorf("upsert prospect result %s: %w", s.Domain, execErr))
				}
			}
			return nil
		},
	})
}

// ListByRun returns result rows for a run ordered by creation.
func (r *ProspectResultRepo) ListByRun(ctx context.Context, runID string, limit, offset int) ([]*model.ProspectResult, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 1000 {
		limit = 1000
	}
	offset = max(offset, 0)

	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+prospectResultColumns+`
		FROM prospect_results
		WHERE run_id = $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2 OFFSET $3
	`, runID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list prospect results: %w", err)
	}
	defer rows.Close()

	var results []*model.ProspectResult
	for rows.Next() {
		res, scanErr := scanProspectResult(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan prospect result: %w", scanErr)
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

// PendingDomains diffs the requested domains against completed result rows
// and returns, in input order, those still needing qualification.
func (r *ProspectResultRepo) PendingDomains(ctx context.Context, runID string, domains []string) ([]string, error) {
	if runID == "" {
		return nil, errors.New("run id is required")
	}
	if len(domains) == 0 {
		return nil, nil
	}

	rows, err := r.DB.QueryContext(ctx, `
		SELECT domain
		FROM prospect_results
		WHERE run_id = $1 AND status = 'completed'
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query completed domains: %w", err)
	}
	defer rows.Close()

	done := make(map[string]struct{})
	for rows.Next() {
		var d string
		if scanErr := rows.Scan(&d); scanErr != nil {
			return nil, fmt.Errorf("scan completed domain: %w", scanErr)
		}
		done[d] = struct{}{}
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, rowsErr
	}

	pending := make([]string, 0, len(domains))
	for _, d := range domains {
		if _, ok := done[d]; !ok {
			pending = append(pending, d)
		}
	}
	return pending, nil
}

// LastActivity returns the most recent analyzed_at for the run, or nil when
// no result has been written yet.
func (r *ProspectResultRepo) LastActivity(ctx context.Context, runID string) (*time.Time, error) {
	var last sql.NullTime
	err := r.DB.QueryRowContext(ctx, `
		SELECT max(analyzed_at)
		FROM prospect_results
		WHERE run_id = $1
	`, runID).Scan(&last)
	if err != nil {
		return nil, fmt.Errorf("last activity: %w", err)
	}
	return cloneNullableTime(last), nil
}
