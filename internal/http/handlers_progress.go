package httpx

import (
	"errors"
	"log/slog"
	"net/http"

	domainauth "github.com/aiqualifier/aiq-api/internal/domain/auth"
	"github.com/aiqualifier/aiq-api/internal/domain/model"
	"github.com/aiqualifier/aiq-api/internal/service"
)

// ProgressHandlers provides HTTP handlers for learner progress operations.
type ProgressHandlers struct {
	Svc    *service.ProgressService
	Logger *slog.Logger
}

// Upsert creates or updates a progress record.
// POST /api/progress and PUT /api/progress.
func (h *ProgressHandlers) Upsert(w http.ResponseWriter, r *http.Request) {
	session, ok := requireSession(w, r)
	if !ok {
		return
	}

	var req model.UpsertProgressRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if req.UserID == "" {
		req.UserID = session.UserID
	}
	if !canTouchProgress(session, req.UserID) {
		writeForbidden(w)
		return
	}

	progress, err := h.Svc.Upsert(r.Context(), &req)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, progress)
}

// Get returns one progress record.
// GET /api/progress/{userID}/{qualificationID}.
func (h *ProgressHandlers) Get(w http.ResponseWriter, r *http.Request) {
	session, ok := requireSession(w, r)
	if !ok {
		return
	}

	userID := r.PathValue("userID")
	if !canTouchProgress(session, userID) {
		writeForbidden(w)
		return
	}

	progress, err := h.Svc.Get(r.Context(), userID, r.PathValue("qualificationID"))
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, progress)
}

// List returns all progress records for a user.
// GET /api/progress/{userID}?page=<n>&limit=<n>.
func (h *ProgressHandlers) List(w http.ResponseWriter, r *http.Request) {
	session, ok := requireSession(w, r)
	if !ok {
		return
	}

	userID := r.PathValue("userID")
	if !canTouchProgress(session, userID) {
		writeForbidden(w)
		return
	}

	limit, offset := ParseLimitOffset(r, 50, 1000)
	records, err := h.Svc.ListByUser(r.Context(), userID, limit, offset)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, records)
}

// Delete removes a progress record.
// DELETE /api/progress/{userID}/{qualificationID}.
func (h *ProgressHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	session, ok := requireSession(w, r)
	if !ok {
		return
	}

	userID := r.PathValue("userID")
	if !canTouchProgress(session, userID) {
		writeForbidden(w)
		return
	}

	deleted, err := h.Svc.Delete(r.Context(), userID, r.PathValue("qualificationID"))
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	if !deleted {
		WriteError(w, ErrorParams{
			Code:    http.StatusNotFound,
			ErrCode: "not_found",
			Err:     errors.New("progress record not found"),
		})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// canTouchProgress reports whether the session may read or modify progress
// belonging to targetUserID. Users own their records; instructors and admins
// can reach anyone's.
func canTouchProgress(session *domainauth.Session, targetUserID string) bool {
	return session.UserID == targetUserID || session.Role.AtLeast(domainauth.RoleInstructor)
}

func requireSession(w http.ResponseWriter, r *http.Request) (*domainauth.Session, bool) {
	session, ok := GetUserSessionFromContext(r.Context())
	if !ok {
		WriteError(w, ErrorParams{
			Code:    http.StatusUnauthorized,
			ErrCode: "authentication_required",
			Err:     errors.New("authentication required"),
		})
		return nil, false
	}
	return session, true
}

func writeForbidden(w http.ResponseWriter) {
	WriteError(w, ErrorParams{
		Code:    http.StatusForbidden,
		ErrCode: "insufficient_permissions",
		Err:     errors.New("insufficient permissions"),
	})
}
