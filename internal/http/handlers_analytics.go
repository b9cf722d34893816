package httpx

import (
	"log/slog"
	"net/http"

	"github.com/aiqualifier/aiq-api/internal/service"
)

// AnalyticsHandlers provides HTTP handlers for analytics operations.
type AnalyticsHandlers struct {
	Svc    *service.AnalyticsService
	Logger *slog.Logger
}

// Summary returns the cached cross-run analytics summary.
// GET /api/analytics/summary.
func (h *AnalyticsHandlers) Summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.Svc.Summary(r.Context())
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, summary)
}

// Export returns a run's results projected through an optional JMESPath
// expression.
// GET /api/analytics/export?run_id=<id>&expression=<jmespath>.
func (h *AnalyticsHandlers) Export(w http.ResponseWriter, r *http.Request) {
	out, err := h.Svc.Export(r.Context(), r.URL.Query().Get("run_id"), r.URL.Query().Get("expression"))
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, out)
}
