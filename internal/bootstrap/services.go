package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aiqualifier/aiq-api/config"
	"github.com/aiqualifier/aiq-api/internal/ai"
	"github.com/aiqualifier/aiq-api/internal/core"
	"github.com/aiqualifier/aiq-api/internal/data"
	"github.com/aiqualifier/aiq-api/internal/observability/statsd"
	"github.com/aiqualifier/aiq-api/internal/service"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Jobs          *service.JobService
	Qualification *service.QualificationService
	RunManager    *service.RunManagerService
	Analytics     *service.AnalyticsService
	Progress      *service.ProgressService
	UAT           *service.UATService
	Auth          *service.AuthService
	Observability ObservabilityContainer
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	MetricsSink   *statsd.Client
	MetricsConfig config.ObservabilityMetricsConfig
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// serviceRepositories groups data adapters backing service ports.
type serviceRepositories struct {
	DB           *sql.DB
	Redis        redis.UniversalClient
	JobRepo      *data.JobRepo
	RunRepo      *data.RunRepo
	ResultRepo   *data.ProspectResultRepo
	ProgressRepo *data.ProgressRepo
	UATRepo      *data.UATRepo
	CacheRepo    *data.RedisCacheRepo
}

// buildObservability configures the metrics sink.
func buildObservability(logger *slog.Logger, cfg config.ObservabilityConfig) ObservabilityContainer {
	obsLogger := logger
	if obsLogger == nil {
		obsLogger = slog.Default()
	}

	var metricsSink *statsd.Client
	if cfg.Metrics.IsEnabled() {
		client, err := statsd.NewClient(statsd.Config{
			Enabled: true,
			Address: cfg.Metrics.StatsdAddress,
			Prefix:  "aiqualifier",
			Logger:  obsLogger,
		})
		if err != nil {
			obsLogger.Error("failed to initialise statsd client", "error", err)
		} else {
			metricsSink = client
		}
	}

	return ObservabilityContainer{
		MetricsSink:   metricsSink,
		MetricsConfig: cfg.Metrics,
	}
}

// buildRepositories builds repositories backing service ports; no business rules here.
func buildRepositories(db *sql.DB, redisClient redis.UniversalClient, logger *slog.Logger) *serviceRepositories {
	repos := &serviceRepositories{
		DB:           db,
		Redis:        redisClient,
		JobRepo:      data.NewJobRepo(db, data.RepoConfig{}),
		RunRepo:      data.NewRunRepo(data.RunRepoOptions{DB: db, Logger: logger}),
		ResultRepo:   data.NewProspectResultRepo(data.ProspectResultRepoOptions{DB: db, Logger: logger}),
		ProgressRepo: data.NewProgressRepo(data.ProgressRepoOptions{DB: db, Logger: logger}),
		UATRepo:      data.NewUATRepo(data.UATRepoOptions{DB: db, Logger: logger}),
	}
	if redisClient != nil {
		repos.CacheRepo = data.NewRedisCacheRepo(redisClient)
	}
	return repos
}

// unconfiguredCompleter stands in when no completion API key is provided.
// Run creation still works; scoring fails with a clear error if a worker
// without credentials ever picks a job up.
type unconfiguredCompleter struct{}

func (unconfiguredCompleter) Complete(context.Context, string, string) (string, error) {
	return "", errors.New("completion provider not configured: AI_API_KEY is required")
}

// buildScorer builds the prospect scorer from AI configuration. Falls back to
// an unconfigured completer so HTTP-only deployments can run without a key.
func buildScorer(cfg config.AIConfig, logger *slog.Logger) core.ProspectScorer {
	client, err := ai.NewClient(ai.ClientOptions{
		APIKey:            cfg.APIKey,
		BaseURL:           cfg.BaseURL,
		Model:             cfg.Model,
		Timeout:           cfg.Timeout,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.Burst,
		Logger:            logger,
	})
	if err != nil {
		if logger != nil {
			logger.Warn("completion client unavailable; prospect scoring disabled", "error", err)
		}
		return ai.NewScorer(ai.ScorerOptions{Completer: unconfiguredCompleter{}, Logger: logger})
	}
	return ai.NewScorer(ai.ScorerOptions{Completer: client, Logger: logger})
}

func newJobService(repos *serviceRepositories, lease time.Duration, logger *slog.Logger) (*service.JobService, error) {
	if lease <= 0 {
		lease = 60 * time.Second
	}
	return service.NewJobService(service.JobServiceOptions{
		Repo:         repos.JobRepo,
		DefaultLease: lease,
		Logger:       logger,
	})
}

func newQualificationService(
	repos *serviceRepositories,
	cfg *config.AppConfig,
	metrics statsd.Sink,
	logger *slog.Logger,
) (*service.QualificationService, error) {
	return service.NewQualificationService(service.QualificationServiceOptions{
		DB:           repos.DB,
		Runs:         repos.RunRepo,
		RunTxCreator: repos.RunRepo,
		JobTxCreator: repos.JobRepo,
		Results:      repos.ResultRepo,
		Scorer:       buildScorer(cfg.AI, logger),
		BatchSize:    cfg.QualifierRunner.ScoreBatchSize,
		Metrics:      metrics,
		Logger:       logger,
	})
}

func newAnalyticsService(repos *serviceRepositories, ttl time.Duration, logger *slog.Logger) (*service.AnalyticsService, error) {
	opts := service.AnalyticsServiceOptions{
		Runs:       repos.RunRepo,
		Jobs:       repos.JobRepo,
		Results:    repos.ResultRepo,
		SummaryTTL: ttl,
		Logger:     logger,
	}
	if repos.CacheRepo != nil {
		opts.Cache = repos.CacheRepo
	}
	return service.NewAnalyticsService(opts)
}

// DomainServicesOptions groups inputs for buildDomainServices.
type DomainServicesOptions struct {
	Repos         *serviceRepositories
	Observability ObservabilityContainer
	Config        *config.AppConfig
	Logger        *slog.Logger
}

// buildDomainServices wires business services using repositories and observability adapters.
func buildDomainServices(opts *DomainServicesOptions) (ServiceContainer, error) {
	if opts == nil {
		return ServiceContainer{}, errors.New("domain services options are required")
	}
	svcLogger := opts.Logger
	if svcLogger == nil {
		svcLogger = slog.Default()
	}

	appCfg := opts.Config
	if appCfg == nil {
		appCfg = &config.AppConfig{}
	}
	metrics := opts.Observability.MetricsSink

	jobService, err := newJobService(opts.Repos, appCfg.QualifierRunner.JobLease, svcLogger)
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build job service: %w", err)
	}

	qualification, err := newQualificationService(opts.Repos, appCfg, metrics, svcLogger)
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build qualification service: %w", err)
	}

	runManager, err := service.NewRunManagerService(service.RunManagerServiceOptions{
		Runs:      opts.Repos.RunRepo,
		Results:   opts.Repos.ResultRepo,
		Jobs:      opts.Repos.JobRepo,
		Finalizer: qualification,
		Config:    appCfg.RunManager,
		Metrics:   metrics,
		Logger:    svcLogger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build run manager service: %w", err)
	}

	analytics, err := newAnalyticsService(opts.Repos, appCfg.Cache.AnalyticsTTL, svcLogger)
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build analytics service: %w", err)
	}

	progress, err := service.NewProgressService(service.ProgressServiceOptions{
		Repo:   opts.Repos.ProgressRepo,
		Logger: svcLogger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build progress service: %w", err)
	}

	uat, err := service.NewUATService(service.UATServiceOptions{
		Repo:   opts.Repos.UATRepo,
		Logger: svcLogger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build uat service: %w", err)
	}

	authService := BuildAuthService(AuthConfig{
		Auth:        appCfg.Auth,
		RedisClient: opts.Repos.Redis,
		Logger:      svcLogger,
	})

	return ServiceContainer{
		Jobs:          jobService,
		Qualification: qualification,
		RunManager:    runManager,
		Analytics:     analytics,
		Progress:      progress,
		UAT:           uat,
		Auth:          authService,
		Observability: opts.Observability,
	}, nil
}

// NewServices builds the full service container from connected dependencies.
func NewServices(deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil {
		return ServiceContainer{}, errors.New("service dependencies are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var obsCfg config.ObservabilityConfig
	if deps.Config != nil {
		obsCfg = deps.Config.Observability
	}
	observability := buildObservability(logger, obsCfg)
	repos := buildRepositories(deps.DB, deps.RedisClient, logger)
	return buildDomainServices(&DomainServicesOptions{
		Repos:         repos,
		Observability: observability,
		Config:        deps.Config,
		Logger:        logger,
	})
}

// ServiceOrchestrationConfig contains configuration for service orchestration.
type ServiceOrchestrationConfig struct {
	Config      *config.AppConfig
	Services    ServiceContainer
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

const (
	// shutdownWaitTimeout is the maximum time to wait for services to stop gracefully.
	shutdownWaitTimeout = 15 * time.Second
)

// serviceStartupDeps groups dependencies for service startup.
type serviceStartupDeps struct {
	ctx             context.Context
	cfg             *ServiceOrchestrationConfig
	logger          *slog.Logger
	enabledServices map[config.ServiceMode]bool
	errCh           chan error
}

// backgroundService describes a startable background component.
type backgroundService struct {
	mode  config.ServiceMode
	name  string
	start func(context.Context) error
}

// backgroundServiceHandle tracks a running background service.
type backgroundServiceHandle struct {
	mode config.ServiceMode
	name string
	done <-chan struct{}
}

// startHTTPServerIfEnabled starts the HTTP server if enabled.
func startHTTPServerIfEnabled(deps *serviceStartupDeps) *http.Server {
	if deps == nil || deps.cfg == nil || !deps.enabledServices[config.ServiceModeHTTP] {
		return nil
	}
	return StartHTTPServer(&HTTPServerConfig{
		Config:   deps.cfg.Config,
		Services: deps.cfg.Services,
		Logger:   deps.logger,
	})
}

func launchBackground(ctx context.Context, deps *serviceStartupDeps, descriptor backgroundService) <-chan struct{} {
	if deps == nil || !deps.enabledServices[descriptor.mode] {
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := descriptor.start(ctx); err != nil {
			errMsg := fmt.Errorf("%s failed: %w", descriptor.name, err)
			select {
			case deps.errCh <- errMsg:
			case <-ctx.Done():
			default:
				if deps.logger != nil {
					deps.logger.WarnContext(
						ctx,
						"dropping background service error",
						"service",
						descriptor.name,
						"error",
						errMsg,
					)
				} else {
					slog.Default().WarnContext(ctx, "dropping background service error", "service", descriptor.name, "error", errMsg)
				}
			}
		}
	}()

	if deps.logger != nil {
		deps.logger.InfoContext(ctx, "background service started", "service", descriptor.name, "mode", descriptor.mode)
	} else {
		slog.Default().InfoContext(ctx, "background service started", "service", descriptor.name, "mode", descriptor.mode)
	}

	return done
}

func startBackgroundServices(deps *serviceStartupDeps, services []backgroundService) []backgroundServiceHandle {
	if deps == nil {
		return nil
	}
	handles := make([]backgroundServiceHandle, 0, len(services))

	for _, svc := range services {
		done := launchBackground(deps.ctx, deps, svc)
		if done == nil {
			continue
		}

		handles = append(handles, backgroundServiceHandle{
			mode: svc.mode,
			name: svc.name,
			done: done,
		})
	}

	return handles
}

func newQualifierRunnerBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeQualifierRunner,
		name: "qualifier runner",
		start: func(ctx context.Context) error {
			if deps == nil || deps.cfg == nil {
				return nil
			}
			var runnerCfg config.QualifierRunnerConfig
			if deps.cfg.Config != nil {
				runnerCfg = deps.cfg.Config.QualifierRunner
			}
			return RunQualifierRunner(ctx, QualifierRunnerConfig{
				DB:          deps.cfg.DB,
				Logger:      deps.logger,
				Lease:       runnerCfg.JobLease,
				Concurrency: runnerCfg.Concurrency,
				Qualifier:   deps.cfg.Services.Qualification,
				Jobs:        deps.cfg.Services.Jobs,
				Metrics:     deps.cfg.Services.Observability.MetricsSink,
			})
		},
	}
}

func newRunManagerBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeRunManager,
		name: "run manager",
		start: func(ctx context.Context) error {
			if deps == nil || deps.cfg == nil {
				return nil
			}
			var managerCfg config.RunManagerConfig
			if deps.cfg.Config != nil {
				managerCfg = deps.cfg.Config.RunManager
			}
			return RunRunManager(ctx, RunManagerRunnerConfig{
				DB:        deps.cfg.DB,
				Logger:    deps.logger,
				Config:    managerCfg,
				Finalizer: deps.cfg.Services.Qualification,
				Metrics:   deps.cfg.Services.Observability.MetricsSink,
			})
		},
	}
}

func newReaperBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeReaper,
		name: "reaper",
		start: func(ctx context.Context) error {
			if deps == nil || deps.cfg == nil {
				return nil
			}
			var reaperCfg config.ReaperConfig
			if deps.cfg.Config != nil {
				reaperCfg = deps.cfg.Config.Reaper
			}
			return RunReaper(ctx, ReaperConfig{
				DB:      deps.cfg.DB,
				Logger:  deps.logger,
				Config:  reaperCfg,
				Metrics: deps.cfg.Services.Observability.MetricsSink,
			})
		},
	}
}

func buildBackgroundServices(deps *serviceStartupDeps) []backgroundService {
	if deps == nil {
		return nil
	}
	return []backgroundService{
		newQualifierRunnerBackgroundService(deps),
		newRunManagerBackgroundService(deps),
		newReaperBackgroundService(deps),
	}
}

// ServiceStartupResult holds the results of starting all services.
type ServiceStartupResult struct {
	HTTPServer *http.Server
	Background []backgroundServiceHandle
}

// startServices starts all enabled services and returns their completion channels.
func startServices(deps *serviceStartupDeps) ServiceStartupResult {
	return ServiceStartupResult{
		HTTPServer: startHTTPServerIfEnabled(deps),
		Background: startBackgroundServices(deps, buildBackgroundServices(deps)),
	}
}

// RunServicesWithShutdown starts all enabled services and manages their lifecycle.
// This function blocks until a shutdown signal is received or a service fails.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	ctx := context.Background()
	serviceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}

	// Determine which services are enabled
	enabledServices, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}
	errCh := make(chan error, errorChannelBufferSize(enabledServices))

	// Start all enabled services
	result := startServices(&serviceStartupDeps{
		ctx:             serviceCtx,
		cfg:             cfg,
		logger:          logger,
		enabledServices: enabledServices,
		errCh:           errCh,
	})

	// Wait for shutdown signal or error
	return waitForShutdown(shutdownConfig{
		ctx:         serviceCtx,
		cancel:      cancel,
		errCh:       errCh,
		httpServer:  result.HTTPServer,
		jobService:  cfg.Services.Jobs,
		logger:      logger,
		backgrounds: result.Background,
	})
}

func errorChannelCapacity(enabled map[config.ServiceMode]bool) int {
	modes := []config.ServiceMode{
		config.ServiceModeHTTP,
		config.ServiceModeQualifierRunner,
		config.ServiceModeRunManager,
		config.ServiceModeReaper,
	}

	count := 0
	for _, mode := range modes {
		if enabled[mode] {
			count++
		}
	}
	return count
}

func errorChannelBufferSize(enabled map[config.ServiceMode]bool) int {
	size := errorChannelCapacity(enabled) + 1
	if size < 1 {
		return 1
	}
	return size
}

// shutdownConfig contains dependencies for graceful shutdown.
type shutdownConfig struct {
	ctx         context.Context
	cancel      context.CancelFunc
	errCh       <-chan error
	httpServer  *http.Server
	jobService  *service.JobService
	logger      *slog.Logger
	backgrounds []backgroundServiceHandle
}

// waitForShutdown waits for shutdown signal or service error.
func waitForShutdown(cfg shutdownConfig) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
		cfg.logger.Info("shutting down services...")
		cfg.cancel() // Cancel service context before waiting
		return gracefulStop(cfg)
	case err := <-cfg.errCh:
		cfg.logger.Error("service error", "error", err)
		cfg.cancel() // Cancel service context before waiting
		if stopErr := gracefulStop(cfg); stopErr != nil {
			cfg.logger.Error("graceful stop failed", "error", stopErr)
		}
		return err
	}
}

// gracefulStop attempts to gracefully stop all services.
func gracefulStop(cfg shutdownConfig) error {
	// Gracefully stop HTTP server if running
	if cfg.httpServer != nil {
		// Create a timeout context for HTTP shutdown
		shutdownCtx, cancel := context.WithTimeout(cfg.ctx, shutdownWaitTimeout)
		defer cancel()

		if err := ShutdownHTTPServer(ShutdownConfig{
			Context:    shutdownCtx,
			Server:     cfg.httpServer,
			JobService: cfg.jobService,
			Logger:     cfg.logger,
		}); err != nil {
			return err
		}
	}

	// Wait for background services to finish
	for _, svc := range cfg.backgrounds {
		waitForService(svc.done, svc.name, cfg.logger)
	}

	return nil
}

// waitForService waits for a service to finish with timeout.
func waitForService(done <-chan struct{}, name string, logger *slog.Logger) {
	if done == nil {
		return
	}
	select {
	case <-done:
		logger.Info(name + " stopped")
	case <-time.After(shutdownWaitTimeout):
		logger.Warn("timeout waiting for " + name + " to stop")
	}
}
