package httpx

import (
	"errors"
	"log/slog"
	"net/http"

	domainauth "github.com/aiqualifier/aiq-api/internal/domain/auth"
	"github.com/aiqualifier/aiq-api/internal/domain/model"
	apperrors "github.com/aiqualifier/aiq-api/internal/errors"
	"github.com/aiqualifier/aiq-api/internal/service"
)

// RunHandlers provides HTTP handlers for qualification run operations.
type RunHandlers struct {
	Qualification *service.QualificationService
	Manager       *service.RunManagerService
	Logger        *slog.Logger
}

// Create starts a new qualification run.
// POST /api/runs.
func (h *RunHandlers) Create(w http.ResponseWriter, r *http.Request) {
	session, ok := requireSession(w, r)
	if !ok {
		return
	}

	var req model.CreateRunRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	// Runs are always created on behalf of the caller.
	req.UserID = session.UserID

	result, err := h.Qualification.Start(r.Context(), &req)
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusAccepted, result)
}

// List returns qualification runs. Regular users see only their own runs;
// admins see everything and may filter by user_id.
// GET /api/runs?status=<status>&page=<n>&limit=<n>.
func (h *RunHandlers) List(w http.ResponseWriter, r *http.Request) {
	session, ok := requireSession(w, r)
	if !ok {
		return
	}

	limit, offset := ParseLimitOffset(r, 50, 1000)
	opts := &model.RunListOptions{Limit: limit, Offset: offset}

	if session.Role.AtLeast(domainauth.RoleAdmin) {
		if userID := r.URL.Query().Get("user_id"); userID != "" {
			opts.UserID = &userID
		}
	} else {
		userID := session.UserID
		opts.UserID = &userID
	}

	if raw := r.URL.Query().Get("status"); raw != "" {
		status := model.RunStatus(raw)
		if !status.Valid() {
			WriteError(w, ErrorParams{
				Code:    http.StatusBadRequest,
				ErrCode: "invalid_status",
				Err:     errors.New("invalid run status"),
			})
			return
		}
		opts.Status = &status
	}

	runs, err := h.Qualification.ListRuns(r.Context(), opts)
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, runs)
}

// Get returns a single run by ID.
// GET /api/runs/{id}.
func (h *RunHandlers) Get(w http.ResponseWriter, r *http.Request) {
	run, ok := h.loadOwnedRun(w, r)
	if !ok {
		return
	}
	WriteJSON(w, http.StatusOK, run)
}

// Results returns the per-prospect results of a run.
// GET /api/runs/{id}/results?page=<n>&limit=<n>.
func (h *RunHandlers) Results(w http.ResponseWriter, r *http.Request) {
	run, ok := h.loadOwnedRun(w, r)
	if !ok {
		return
	}

	limit, offset := ParseLimitOffset(r, 50, 1000)
	results, err := h.Qualification.ListResults(r.Context(), run.ID, limit, offset)
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, results)
}

// Resume re-enqueues processing for a stalled run.
// POST /api/runs/{id}/resume.
func (h *RunHandlers) Resume(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.Manager.ResumeRun(r.Context(), id); err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "resumed"})
}

// Fail marks a run as failed and cancels its pending jobs.
// POST /api/runs/{id}/fail.
func (h *RunHandlers) Fail(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var body struct {
		Reason string `json:"reason"`
	}
	if !DecodeJSON(w, r, &body) {
		return
	}
	if body.Reason == "" {
		body.Reason = "failed by operator"
	}

	if err := h.Manager.FailRun(r.Context(), id, body.Reason); err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "failed"})
}

// Health reports run health. With a run_id query parameter it assesses that
// run; without one it returns aggregate run counts by status.
// GET /api/runs/health?run_id=<optional_id>.
func (h *RunHandlers) Health(w http.ResponseWriter, r *http.Request) {
	if runID := r.URL.Query().Get("run_id"); runID != "" {
		health, err := h.Manager.RunHealthStatus(r.Context(), runID)
		if err != nil {
			WriteServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, health)
		return
	}

	stats, err := h.Manager.Stats(r.Context())
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, stats)
}

// loadOwnedRun fetches the run from the path and enforces that regular users
// can only see their own runs. Instructors and admins can see any run.
func (h *RunHandlers) loadOwnedRun(w http.ResponseWriter, r *http.Request) (*model.Run, bool) {
	session, ok := requireSession(w, r)
	if !ok {
		return nil, false
	}

	run, err := h.Qualification.GetRun(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteServiceError(w, err)
		return nil, false
	}

	if run.UserID != session.UserID && !session.Role.AtLeast(domainauth.RoleInstructor) {
		// Hide the run's existence from non-owners.
		WriteServiceError(w, apperrors.NotFoundf("run %s not found", run.ID))
		return nil, false
	}
	return run, true
}
