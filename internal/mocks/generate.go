// Package mocks provides mock implementations for testing the qualification job system.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for our repository interfaces.
// The mocks are generated using go:generate directives and provide a fluent API for setting up test expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	defer ctrl.Finish()
//	mockRepo := mocks.NewMockJobRepository(ctrl)
//	mockRepo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(job, nil)
package mocks

// Generate mock for JobRepository interface from internal/core package.
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=job_repository_mock.go github.com/aiqualifier/aiq-api/internal/core JobRepository

// Generate mock for RunRepository interface from internal/core package.
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=run_repository_mock.go github.com/aiqualifier/aiq-api/internal/core RunRepository

// Generate mock for ProspectResultRepository interface from internal/core package.
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=prospect_result_repository_mock.go github.com/aiqualifier/aiq-api/internal/core ProspectResultRepository

// Generate mock for ProgressRepository interface from internal/core package.
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=progress_repository_mock.go github.com/aiqualifier/aiq-api/internal/core ProgressRepository

// Generate mock for UATRepository interface from internal/core package.
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=uat_repository_mock.go github.com/aiqualifier/aiq-api/internal/core UATRepository

// Generate mock for ReaperRepository interface from internal/core package.
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=reaper_repository_mock.go github.com/aiqualifier/aiq-api/internal/core ReaperRepository

// Generate mock for CacheRepository interface from internal/core package.
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=cache_repository_mock.go github.com/aiqualifier/aiq-api/internal/core CacheRepository

// Generate mock for ProspectScorer interface from internal/core package.
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=prospect_scorer_mock.go github.com/aiqualifier/aiq-api/internal/core ProspectScorer
