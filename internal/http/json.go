// Package httpx provides HTTP handlers and utilities for the qualifier API.
package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"

	apperrors "github.com/aiqualifier/aiq-api/internal/errors"
)

// envelope is the wire shape every API response uses.
type envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *errorBody `json:"error,omitempty"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// DecodeJSON decodes JSON from the request body into the destination and handles errors.
// Returns true if successful, false if there was an error (error response already written).
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_json", Err: err})
		return false
	}

	return true
}

// WriteJSON writes a success envelope with the given status code and data.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	writeEnvelope(w, code, envelope{Success: true, Data: v})
}

// ErrorParams groups the inputs for WriteError.
type ErrorParams struct {
	Code    int
	ErrCode string
	Err     error
}

// WriteError writes an error envelope using ErrorParams.
func WriteError(w http.ResponseWriter, p ErrorParams) {
	body := &errorBody{Code: p.ErrCode}
	if p.Err != nil {
		body.Message = p.Err.Error()
	}
	writeEnvelope(w, p.Code, envelope{Success: false, Error: body})
}

// WriteServiceError maps a service-layer error to the appropriate HTTP status
// and error envelope. AppError codes carry the mapping; anything else is a 500
// with the message withheld from the client.
func WriteServiceError(w http.ResponseWriter, err error) {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		writeEnvelope(w, statusForCode(appErr.Code), envelope{
			Success: false,
			Error: &errorBody{
				Code:    string(appErr.Code),
				Message: appErr.Message,
				Field:   appErr.Field,
			},
		})
		return
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		WriteError(w, ErrorParams{
			Code:    statusClientClosedRequest,
			ErrCode: string(apperrors.ErrCodeCanceled),
			Err:     errors.New("request canceled"),
		})
		return
	}

	WriteError(w, ErrorParams{
		Code:    http.StatusInternalServerError,
		ErrCode: string(apperrors.ErrCodeInternal),
		Err:     errors.New("internal server error"),
	})
}

// statusClientClosedRequest is nginx's non-standard 499 for canceled requests.
const statusClientClosedRequest = 499

func statusForCode(code apperrors.ErrorCode) int {
	switch code {
	case apperrors.ErrCodeNotFound:
		return http.StatusNotFound
	case apperrors.ErrCodeValidation:
		return http.StatusBadRequest
	case apperrors.ErrCodeConflict, apperrors.ErrCodeForeignKey:
		return http.StatusConflict
	case apperrors.ErrCodeTimeout:
		return http.StatusGatewayTimeout
	case apperrors.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case apperrors.ErrCodeUnavailable:
		return http.StatusServiceUnavailable
	case apperrors.ErrCodeCanceled:
		return statusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeEnvelope(w http.ResponseWriter, code int, env envelope) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(env); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := buf.WriteTo(w); err != nil {
		// Response writer errors (e.g., client disconnect) can't be recovered from here.
		return
	}
}
