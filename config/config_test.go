package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseServices(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    map[ServiceMode]bool
		wantErr bool
	}{
		{
			name:  "single service",
			input: "http",
			want:  map[ServiceMode]bool{ServiceModeHTTP: true},
		},
		{
			name:  "multiple services",
			input: "http,qualifier-runner,reaper",
			want: map[ServiceMode]bool{
				ServiceModeHTTP:            true,
				ServiceModeQualifierRunner: true,
				ServiceModeReaper:          true,
			},
		},
		{
			name:  "whitespace tolerated",
			input: " http , run-manager ",
			want: map[ServiceMode]bool{
				ServiceModeHTTP:       true,
				ServiceModeRunManager: true,
			},
		},
		{
			name:    "empty string",
			input:   "",
			wantErr: true,
		},
		{
			name:    "only commas",
			input:   ",,,",
			wantErr: true,
		},
		{
			name:    "invalid service name",
			input:   "http,scheduler",
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseServices(tc.input)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestValidServiceModes(t *testing.T) {
	modes := ValidServiceModes()
	assert.Len(t, modes, 4)
	assert.Contains(t, modes, ServiceModeHTTP)
	assert.Contains(t, modes, ServiceModeQualifierRunner)
	assert.Contains(t, modes, ServiceModeRunManager)
	assert.Contains(t, modes, ServiceModeReaper)
}

func TestAppConfig_ServiceFlags(t *testing.T) {
	cfg := AppConfig{Services: "http,run-manager"}

	assert.True(t, cfg.IsHTTPServerEnabled())
	assert.True(t, cfg.IsRunManagerEnabled())
	assert.False(t, cfg.IsQualifierRunnerEnabled())
	assert.False(t, cfg.IsReaperEnabled())
}

func TestAppConfig_ServiceFlagsInvalidList(t *testing.T) {
	cfg := AppConfig{Services: "nonsense"}

	assert.False(t, cfg.IsHTTPServerEnabled())
	assert.False(t, cfg.IsReaperEnabled())
}

func TestQualifierRunnerConfig_Sanitize(t *testing.T) {
	cfg := QualifierRunnerConfig{
		Concurrency:    0,
		JobLease:       time.Second,
		ScoreBatchSize: -5,
	}
	cfg.Sanitize()

	assert.Equal(t, 1, cfg.Concurrency)
	assert.Equal(t, 5*time.Second, cfg.JobLease)
	assert.Equal(t, 1, cfg.ScoreBatchSize)
}

func TestQualifierRunnerConfig_SanitizeKeepsValid(t *testing.T) {
	cfg := QualifierRunnerConfig{
		Concurrency:    4,
		JobLease:       90 * time.Second,
		ScoreBatchSize: 25,
	}
	cfg.Sanitize()

	assert.Equal(t, 4, cfg.Concurrency)
	assert.Equal(t, 90*time.Second, cfg.JobLease)
	assert.Equal(t, 25, cfg.ScoreBatchSize)
}

func TestRunManagerConfig_Sanitize(t *testing.T) {
	cfg := RunManagerConfig{
		Interval:   time.Second,
		RunTimeout: 0,
		StaleAfter: -time.Minute,
		BatchLimit: 0,
	}
	cfg.Sanitize()

	assert.Equal(t, 10*time.Second, cfg.Interval)
	assert.Equal(t, time.Minute, cfg.RunTimeout)
	assert.Equal(t, time.Minute, cfg.StaleAfter)
	assert.Equal(t, 1, cfg.BatchLimit)
}

func TestReaperConfig_Sanitize(t *testing.T) {
	cfg := ReaperConfig{
		Interval:        time.Second,
		PendingMaxAge:   time.Minute,
		CompletedMaxAge: time.Minute,
		FailedMaxAge:    time.Minute,
		RunsMaxAge:      time.Hour,
		BatchSize:       0,
	}
	cfg.Sanitize()

	assert.Equal(t, time.Minute, cfg.Interval)
	assert.Equal(t, 5*time.Minute, cfg.PendingMaxAge)
	assert.Equal(t, time.Hour, cfg.CompletedMaxAge)
	assert.Equal(t, time.Hour, cfg.FailedMaxAge)
	assert.Equal(t, 24*time.Hour, cfg.RunsMaxAge)
	assert.Equal(t, 1, cfg.BatchSize)
}

func TestReaperConfig_SanitizeClampsBatchSize(t *testing.T) {
	cfg := ReaperConfig{
		Interval:        5 * time.Minute,
		PendingMaxAge:   time.Hour,
		CompletedMaxAge: 24 * time.Hour,
		FailedMaxAge:    24 * time.Hour,
		RunsMaxAge:      48 * time.Hour,
		BatchSize:       50000,
	}
	cfg.Sanitize()

	assert.Equal(t, 10000, cfg.BatchSize)
}

func TestAIConfig_Sanitize(t *testing.T) {
	cfg := AIConfig{
		APIKey:            "  sk-test  ",
		BaseURL:           " https://api.example.com/v1/ ",
		Timeout:           0,
		RequestsPerSecond: -1,
		Burst:             0,
	}
	cfg.Sanitize()

	assert.Equal(t, "sk-test", cfg.APIKey)
	assert.Equal(t, "https://api.example.com/v1", cfg.BaseURL)
	assert.Equal(t, 60*time.Second, cfg.Timeout)
	assert.Equal(t, float64(2), cfg.RequestsPerSecond)
	assert.Equal(t, 1, cfg.Burst)
}

func TestHTTPConfig_Sanitize(t *testing.T) {
	cfg := HTTPConfig{SessionTTLMinutes: 1}
	cfg.Sanitize()
	assert.Equal(t, 5, cfg.SessionTTLMinutes)

	cfg = HTTPConfig{SessionTTLMinutes: 480}
	cfg.Sanitize()
	assert.Equal(t, 480, cfg.SessionTTLMinutes)
}

func TestObservabilityMetricsConfig_Sanitize(t *testing.T) {
	cfg := ObservabilityMetricsConfig{Enabled: true, StatsdAddress: "   "}
	cfg.Sanitize()

	assert.False(t, cfg.Enabled)
	assert.False(t, cfg.IsEnabled())

	cfg = ObservabilityMetricsConfig{Enabled: true, StatsdAddress: "127.0.0.1:8125"}
	cfg.Sanitize()
	assert.True(t, cfg.IsEnabled())
}

func TestAppConfig_DetectDevMode(t *testing.T) {
	t.Setenv("APP_ENV", "development")

	cfg := AppConfig{Services: "http"}
	cfg.Sanitize()

	assert.True(t, cfg.IsDev)
}

func TestAuthMode_UnmarshalText(t *testing.T) {
	var m AuthMode
	require.NoError(t, m.UnmarshalText([]byte("OAuth")))
	assert.Equal(t, AuthModeOAuth, m)

	require.NoError(t, m.UnmarshalText([]byte("mock")))
	assert.Equal(t, AuthModeMock, m)

	require.Error(t, m.UnmarshalText([]byte("saml")))
}
