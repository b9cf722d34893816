package config

import (
	"strings"
	"time"
)

// AIConfig contains completion provider configuration for prospect scoring.
type AIConfig struct {
	// APIKey authenticates against the completion API. Required when any
	// qualifier runner is enabled.
	APIKey string `env:"API_KEY"`

	// BaseURL is the OpenAI-compatible API root.
	BaseURL string `env:"BASE_URL" envDefault:"https://api.openai.com/v1"`

	// Model is the completion model used for scoring.
	Model string `env:"MODEL" envDefault:"gpt-4o-mini"`

	// Timeout bounds a single completion request.
	Timeout time.Duration `env:"TIMEOUT" envDefault:"60s"`

	// RequestsPerSecond rate-limits outbound completion calls.
	RequestsPerSecond float64 `env:"REQUESTS_PER_SECOND" envDefault:"2"`

	// Burst is the rate limiter burst allowance.
	Burst int `env:"BURST" envDefault:"4"`
}

// Sanitize applies guardrails to AI configuration values.
func (a *AIConfig) Sanitize() {
	a.APIKey = strings.TrimSpace(a.APIKey)
	a.BaseURL = strings.TrimRight(strings.TrimSpace(a.BaseURL), "/")
	if a.Timeout <= 0 {
		a.Timeout = 60 * time.Second
	}
	if a.RequestsPerSecond <= 0 {
		a.RequestsPerSecond = 2
	}
	if a.Burst < 1 {
		a.Burst = 1
	}
}
