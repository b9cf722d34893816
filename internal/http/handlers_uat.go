package httpx

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/aiqualifier/aiq-api/internal/domain/model"
	"github.com/aiqualifier/aiq-api/internal/service"
)

// UATHandlers provides HTTP handlers for user acceptance testing sessions.
type UATHandlers struct {
	Svc    *service.UATService
	Logger *slog.Logger
}

// StartSession opens a new testing session for the caller.
// POST /api/uat/sessions.
func (h *UATHandlers) StartSession(w http.ResponseWriter, r *http.Request) {
	session, ok := requireSession(w, r)
	if !ok {
		return
	}

	var req model.StartUATSessionRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	req.UserID = session.UserID

	uatSession, err := h.Svc.StartSession(r.Context(), &req)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, uatSession)
}

// UpdateSession closes a session with a terminal status.
// PATCH /api/uat/sessions/{id}.
func (h *UATHandlers) UpdateSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status model.UATSessionStatus `json:"status"`
	}
	if !DecodeJSON(w, r, &body) {
		return
	}

	updated, err := h.Svc.CloseSession(r.Context(), r.PathValue("id"), body.Status)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	if !updated {
		WriteError(w, ErrorParams{
			Code:    http.StatusNotFound,
			ErrCode: "not_found",
			Err:     errors.New("session not found or already closed"),
		})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": string(body.Status)})
}

// RecordTask records a task outcome against an active session.
// POST /api/uat/sessions/{id}/tasks.
func (h *UATHandlers) RecordTask(w http.ResponseWriter, r *http.Request) {
	var req model.RecordUATTaskRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	task, err := h.Svc.RecordTask(r.Context(), r.PathValue("id"), &req)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, task)
}

// SubmitFeedback attaches feedback to a session.
// POST /api/uat/feedback?session_id=<id>.
func (h *UATHandlers) SubmitFeedback(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SessionID string `json:"session_id"`
		Rating    int    `json:"rating"`
		Comment   string `json:"comment"`
	}
	if !DecodeJSON(w, r, &body) {
		return
	}
	sessionID := body.SessionID
	if sessionID == "" {
		sessionID = r.URL.Query().Get("session_id")
	}

	feedback, err := h.Svc.SubmitFeedback(r.Context(), sessionID, &model.SubmitUATFeedbackRequest{
		Rating:  body.Rating,
		Comment: body.Comment,
	})
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, feedback)
}

// ListFeedback returns all feedback for a session.
// GET /api/uat/feedback?session_id=<id>.
func (h *UATHandlers) ListFeedback(w http.ResponseWriter, r *http.Request) {
	feedback, err := h.Svc.ListFeedback(r.Context(), r.URL.Query().Get("session_id"))
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, feedback)
}
