package httpx

import (
	"log/slog"
	"net/http"

	domainauth "github.com/aiqualifier/aiq-api/internal/domain/auth"
	"github.com/aiqualifier/aiq-api/internal/service"
)

// RouterServices carries the service dependencies the router wires into
// handlers.
type RouterServices struct {
	Auth          AuthServiceInterface
	Jobs          *service.JobService
	Qualification *service.QualificationService
	RunManager    *service.RunManagerService
	Progress      *service.ProgressService
	Analytics     *service.AnalyticsService
	UAT           *service.UATService

	CookieDomain string
	Logger       *slog.Logger
}

// NewRouter builds the HTTP routing table for the API. Callers wrap the
// returned handler with Logging and Recover middleware.
func NewRouter(svcs RouterServices) http.Handler {
	logger := svcs.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", healthHandler)
	mux.HandleFunc("HEAD /healthz", healthHandler)

	registerAuthRoutes(mux, svcs, logger)
	registerRunRoutes(mux, svcs, logger)
	registerJobRoutes(mux, svcs, logger)
	registerProgressRoutes(mux, svcs, logger)
	registerAnalyticsRoutes(mux, svcs, logger)
	registerUATRoutes(mux, svcs, logger)

	return mux
}

func registerAuthRoutes(mux *http.ServeMux, svcs RouterServices, logger *slog.Logger) {
	h := &AuthHandlers{Svc: svcs.Auth, CookieDomain: svcs.CookieDomain, Logger: logger}

	mux.HandleFunc("GET /auth/login", h.Login)
	mux.HandleFunc("GET /auth/callback", h.Callback)
	mux.HandleFunc("POST /auth/logout", h.Logout)
	mux.HandleFunc("GET /auth/status", h.Status)
}

func registerRunRoutes(mux *http.ServeMux, svcs RouterServices, logger *slog.Logger) {
	h := &RunHandlers{Qualification: svcs.Qualification, Manager: svcs.RunManager, Logger: logger}

	user := RequireAuth(svcs.Auth)
	instructor := RequireRole(svcs.Auth, domainauth.RoleInstructor)
	admin := RequireRole(svcs.Auth, domainauth.RoleAdmin)

	mux.Handle("POST /api/runs", user(http.HandlerFunc(h.Create)))
	mux.Handle("GET /api/runs", user(http.HandlerFunc(h.List)))
	// Registered before the {id} patterns so "health" is not taken for a run ID.
	mux.Handle("GET /api/runs/health", admin(http.HandlerFunc(h.Health)))
	mux.Handle("GET /api/runs/{id}", user(http.HandlerFunc(h.Get)))
	mux.Handle("GET /api/runs/{id}/results", user(http.HandlerFunc(h.Results)))
	mux.Handle("POST /api/runs/{id}/resume", instructor(http.HandlerFunc(h.Resume)))
	mux.Handle("POST /api/runs/{id}/fail", admin(http.HandlerFunc(h.Fail)))
}

func registerJobRoutes(mux *http.ServeMux, svcs RouterServices, logger *slog.Logger) {
	h := &JobHandlers{Svc: svcs.Jobs, Logger: logger}

	user := RequireAuth(svcs.Auth)
	admin := RequireRole(svcs.Auth, domainauth.RoleAdmin)

	mux.Handle("GET /api/jobs/{id}/progress", user(http.HandlerFunc(h.Progress)))
	mux.Handle("GET /api/jobs/{type}/stats", admin(http.HandlerFunc(h.Stats)))
	mux.Handle("POST /api/jobs/{id}/cancel", user(http.HandlerFunc(h.Cancel)))
}

func registerProgressRoutes(mux *http.ServeMux, svcs RouterServices, logger *slog.Logger) {
	h := &ProgressHandlers{Svc: svcs.Progress, Logger: logger}

	user := RequireAuth(svcs.Auth)

	mux.Handle("POST /api/progress", user(http.HandlerFunc(h.Upsert)))
	mux.Handle("PUT /api/progress", user(http.HandlerFunc(h.Upsert)))
	mux.Handle("GET /api/progress/{userID}", user(http.HandlerFunc(h.List)))
	mux.Handle("GET /api/progress/{userID}/{qualificationID}", user(http.HandlerFunc(h.Get)))
	mux.Handle("DELETE /api/progress/{userID}/{qualificationID}", user(http.HandlerFunc(h.Delete)))
}

func registerAnalyticsRoutes(mux *http.ServeMux, svcs RouterServices, logger *slog.Logger) {
	h := &AnalyticsHandlers{Svc: svcs.Analytics, Logger: logger}

	instructor := RequireRole(svcs.Auth, domainauth.RoleInstructor)

	mux.Handle("GET /api/analytics/summary", instructor(http.HandlerFunc(h.Summary)))
	mux.Handle("GET /api/analytics/export", instructor(http.HandlerFunc(h.Export)))
}

func registerUATRoutes(mux *http.ServeMux, svcs RouterServices, logger *slog.Logger) {
	h := &UATHandlers{Svc: svcs.UAT, Logger: logger}

	user := RequireAuth(svcs.Auth)
	admin := RequireRole(svcs.Auth, domainauth.RoleAdmin)

	mux.Handle("POST /api/uat/sessions", user(http.HandlerFunc(h.StartSession)))
	mux.Handle("PATCH /api/uat/sessions/{id}", user(http.HandlerFunc(h.UpdateSession)))
	mux.Handle("POST /api/uat/sessions/{id}/tasks", user(http.HandlerFunc(h.RecordTask)))
	mux.Handle("POST /api/uat/feedback", user(http.HandlerFunc(h.SubmitFeedback)))
	mux.Handle("GET /api/uat/feedback", admin(http.HandlerFunc(h.ListFeedback)))
}
