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

// JobHandlers provides HTTP handlers for job operations.
type JobHandlers struct {
	Svc    *service.JobService
	Logger *slog.Logger
}

// Progress returns the status and progress of a job.
// GET /api/jobs/{id}/progress.
func (h *JobHandlers) Progress(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.loadOwnedJob(w, r); !ok {
		return
	}

	status, err := h.Svc.GetStatus(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, status)
}

// Stats returns aggregate job counts for a job type.
// GET /api/jobs/{type}/stats.
func (h *JobHandlers) Stats(w http.ResponseWriter, r *http.Request) {
	jobType := model.JobType(r.PathValue("type"))
	if !jobType.Valid() {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "invalid_job_type",
			Err:     errors.New("invalid job type"),
		})
		return
	}

	stats, err := h.Svc.Stats(r.Context(), jobType)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, stats)
}

// Cancel requests cancellation of a pending or running job.
// POST /api/jobs/{id}/cancel.
func (h *JobHandlers) Cancel(w http.ResponseWriter, r *http.Request) {
	job, ok := h.loadOwnedJob(w, r)
	if !ok {
		return
	}

	cancelled, err := h.Svc.Cancel(r.Context(), job.ID)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	if !cancelled {
		WriteError(w, ErrorParams{
			Code:    http.StatusConflict,
			ErrCode: "not_cancellable",
			Err:     errors.New("job has already started or finished"),
		})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// loadOwnedJob fetches the job from the path and enforces that regular users
// can only act on their own jobs. Instructors and admins can act on any job.
func (h *JobHandlers) loadOwnedJob(w http.ResponseWriter, r *http.Request) (*model.Job, bool) {
	session, ok := requireSession(w, r)
	if !ok {
		return nil, false
	}

	job, err := h.Svc.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteServiceError(w, err)
		return nil, false
	}

	owned := job.UserID != nil && *job.UserID == session.UserID
	if !owned && !session.Role.AtLeast(domainauth.RoleInstructor) {
		WriteServiceError(w, apperrors.NotFoundf("job %s not found", job.ID))
		return nil, false
	}
	return job, true
}
