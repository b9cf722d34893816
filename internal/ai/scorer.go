package ai

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/aiqualifier/aiq-api/internal/domain/model"
	apperrors "github.com/aiqualifier/aiq-api/internal/errors"
)

const scorerSystemPrompt = `You are a sales prospect qualification analyst.
Given a company domain and qualification criteria, estimate how well the
prospect fits on a 0-100 scale. Respond with a single JSON object of the form
{"score": <number 0-100>, "summary": "<one sentence rationale>"} and nothing else.`

// scoreResponse is the JSON shape the model is prompted to produce.
type scoreResponse struct {
	Score   float64 `json:"score"`
	Summary string  `json:"summary"`
}

// Completer is the slice of Client the scorer needs.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// ScorerOptions configure the prospect scorer.
type ScorerOptions struct {
	Completer Completer
	Now       func() time.Time
	Logger    *slog.Logger
}

// Scorer scores prospect domains against qualification criteria using a
// completion model. It implements core.ProspectScorer.
type Scorer struct {
	completer Completer
	now       func() time.Time
	logger    *slog.Logger
}

// NewScorer creates a prospect scorer with the given options.
func NewScorer(opts ScorerOptions) *Scorer {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "prospect_scorer")
	}
	return &Scorer{
		completer: opts.Completer,
		now:       now,
		logger:    logger,
	}
}

// Score evaluates one prospect domain and returns its score and rationale.
func (s *Scorer) Score(ctx context.Context, domain string, criteria string) (model.ProspectScore, error) {
	var sb strings.Builder
	sb.WriteString("Domain: ")
	sb.WriteString(domain)
	if criteria != "" {
		sb.WriteString("\nQualification criteria: ")
		sb.WriteString(criteria)
	}

	content, err := s.completer.Complete(ctx, scorerSystemPrompt, sb.String())
	if err != nil {
		return model.ProspectScore{}, err
	}

	parsed, err := parseScoreResponse(content)
	if err != nil {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "unparseable score response",
				"domain", domain,
				"content_prefix", truncate(content, 128),
			)
		}
		return model.ProspectScore{}, err
	}

	score := clampScore(parsed.Score)
	payload, err := json.Marshal(parsed)
	if err != nil {
		return model.ProspectScore{}, apperrors.Wrap(err, apperrors.ErrCodeInternal, "encode score payload")
	}

	return model.ProspectScore{
		Domain:     domain,
		Score:      score,
		Payload:    payload,
		AnalyzedAt: s.now().UTC(),
	}, nil
}

// parseScoreResponse extracts the JSON object from the model output. Models
// occasionally wrap the JSON in markdown fences or prose, so scan for the
// outermost braces before unmarshaling.
func parseScoreResponse(content string) (scoreResponse, error) {
	start := strings.IndexByte(content, '{')
	end := strings.LastIndexByte(content, '}')
	if start < 0 || end <= start {
		return scoreResponse{}, apperrors.Internal("score response contained no JSON object")
	}

	var parsed scoreResponse
	if err := json.Unmarshal([]byte(content[start:end+1]), &parsed); err != nil {
		return scoreResponse{}, apperrors.Wrap(err, apperrors.ErrCodeInternal, "decode score response")
	}
	return parsed, nil
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
