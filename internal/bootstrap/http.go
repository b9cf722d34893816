package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/aiqualifier/aiq-api/config"
	httpx "github.com/aiqualifier/aiq-api/internal/http"
	"github.com/aiqualifier/aiq-api/internal/service"
)

const (
	defaultHTTPAddr     = ":8080"
	httpReadTimeout     = 30 * time.Second
	httpWriteTimeout    = 30 * time.Second
	httpIdleTimeout     = 120 * time.Second
	httpShutdownTimeout = 10 * time.Second
)

// HTTPServerConfig contains dependencies for HTTP server setup.
type HTTPServerConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	Logger   *slog.Logger
}

// StartHTTPServer builds the router, wraps it with middleware and starts
// listening in a goroutine. The returned server is used for shutdown.
func StartHTTPServer(cfg *HTTPServerConfig) *http.Server {
	if cfg == nil {
		return nil
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	handler := buildHTTPHandler(cfg, logger)
	return startServer(cfg, handler, logger)
}

// buildHTTPHandler wires services into the router and applies the
// request logging and panic recovery middleware.
func buildHTTPHandler(cfg *HTTPServerConfig, logger *slog.Logger) http.Handler {
	var cookieDomain string
	if cfg.Config != nil {
		cookieDomain = cfg.Config.HTTP.CookieDomain
	}

	// Auth may be disabled; avoid storing a typed nil in the interface.
	var authSvc httpx.AuthServiceInterface
	if cfg.Services.Auth != nil {
		authSvc = cfg.Services.Auth
	}

	router := httpx.NewRouter(httpx.RouterServices{
		Auth:          authSvc,
		Jobs:          cfg.Services.Jobs,
		Qualification: cfg.Services.Qualification,
		RunManager:    cfg.Services.RunManager,
		Progress:      cfg.Services.Progress,
		Analytics:     cfg.Services.Analytics,
		UAT:           cfg.Services.UAT,
		CookieDomain:  cookieDomain,
		Logger:        logger,
	})

	handler := httpx.Recover(logger)(router)
	handler = httpx.Logging(logger)(handler)
	return handler
}

func startServer(cfg *HTTPServerConfig, handler http.Handler, logger *slog.Logger) *http.Server {
	addr := defaultHTTPAddr
	if cfg.Config != nil && cfg.Config.HTTP.Addr != "" {
		addr = cfg.Config.HTTP.Addr
	}

	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  httpReadTimeout,
		WriteTimeout: httpWriteTimeout,
		IdleTimeout:  httpIdleTimeout,
	}

	go func() {
		logger.Info("http server listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err)
		}
	}()

	return server
}

// ShutdownConfig contains dependencies for HTTP server shutdown.
type ShutdownConfig struct {
	Context    context.Context
	Server     *http.Server
	JobService *service.JobService
	Logger     *slog.Logger
}

// ShutdownHTTPServer gracefully stops the HTTP server. Job notification
// listeners stop first so in-flight subscribers do not block shutdown.
func ShutdownHTTPServer(cfg ShutdownConfig) error {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Server == nil {
		return nil
	}

	if cfg.JobService != nil {
		cfg.JobService.StopAllListeners()
	}

	parent := cfg.Context
	if parent == nil {
		parent = context.Background()
	}
	shutdownCtx, cancel := context.WithTimeout(parent, httpShutdownTimeout)
	defer cancel()

	if err := cfg.Server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", "error", err)
		return err
	}

	logger.Info("http server stopped")
	return nil
}
