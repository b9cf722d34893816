package core

import (
	"context"

	"github.com/aiqualifier/aiq-api/internal/domain/model"
)

// ProspectScorer evaluates a single prospect domain and returns its score.
type ProspectScorer interface {
	Score(ctx context.Context, domain string, criteria string) (model.ProspectScore, error)
}
