package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiqualifier/aiq-api/internal/data"
	apperrors "github.com/aiqualifier/aiq-api/internal/errors"
)

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestWriteJSON_WrapsInSuccessEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusAccepted, map[string]string{"hello": "world"})

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	env := decodeEnvelope(t, rec)
	assert.True(t, env.Success)
	assert.Nil(t, env.Error)
	data, ok := env.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "world", data["hello"])
}

func TestWriteError_WrapsInErrorEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, ErrorParams{
		Code:    http.StatusBadRequest,
		ErrCode: "invalid_status",
		Err:     assert.AnError,
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.False(t, env.Success)
	require.NotNil(t, env.Error)
	assert.Equal(t, "invalid_status", env.Error.Code)
	assert.Equal(t, assert.AnError.Error(), env.Error.Message)
}

func TestWriteServiceError_MapsAppErrorCodes(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"not found", apperrors.NotFoundf("run %s not found", "abc"), http.StatusNotFound, "not_found"},
		{"validation", apperrors.Validation("score out of range"), http.StatusBadRequest, "validation"},
		{"conflict", apperrors.Conflictf("run %s is failed", "abc"), http.StatusConflict, "conflict"},
		{"canceled", apperrors.Wrap(context.Canceled, apperrors.ErrCodeCanceled, "canceled"), statusClientClosedRequest, "canceled"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteServiceError(rec, tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			env := decodeEnvelope(t, rec)
			assert.False(t, env.Success)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.wantCode, env.Error.Code)
		})
	}
}

func TestWriteServiceError_RepoNotFoundSentinels(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"run sentinel wrapped by service", fmt.Errorf("get run %s: %w", "missing-id", data.ErrRunNotFound)},
		{"job sentinel wrapped by service", fmt.Errorf("get job by id %s: %w", "missing-id", data.ErrJobNotFound)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteServiceError(rec, tt.err)

			assert.Equal(t, http.StatusNotFound, rec.Code)
			env := decodeEnvelope(t, rec)
			assert.False(t, env.Success)
			require.NotNil(t, env.Error)
			assert.Equal(t, "not_found", env.Error.Code)
		})
	}
}

func TestWriteServiceError_ExposesValidationField(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteServiceError(rec, apperrors.ValidationField("session_id", "session id is required"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	env := decodeEnvelope(t, rec)
	require.NotNil(t, env.Error)
	assert.Equal(t, "session_id", env.Error.Field)
}

func TestWriteServiceError_HidesUnknownErrorDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteServiceError(rec, assert.AnError)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	env := decodeEnvelope(t, rec)
	require.NotNil(t, env.Error)
	assert.Equal(t, "internal server error", env.Error.Message)
	assert.NotContains(t, rec.Body.String(), assert.AnError.Error())
}

func TestWriteServiceError_ContextCancellation(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteServiceError(rec, context.Canceled)

	assert.Equal(t, statusClientClosedRequest, rec.Code)
	env := decodeEnvelope(t, rec)
	require.NotNil(t, env.Error)
	assert.Equal(t, "request canceled", env.Error.Message)
}

func TestDecodeJSON_RejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"user_id":"u1","bogus":true}`))
	rec := httptest.NewRecorder()

	var dst struct {
		UserID string `json:"user_id"`
	}
	ok := DecodeJSON(rec, req, &dst)

	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	env := decodeEnvelope(t, rec)
	require.NotNil(t, env.Error)
	assert.Equal(t, "invalid_json", env.Error.Code)
}

func TestDecodeJSON_Valid(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"user_id":"u1"}`))
	rec := httptest.NewRecorder()

	var dst struct {
		UserID string `json:"user_id"`
	}
	ok := DecodeJSON(rec, req, &dst)

	assert.True(t, ok)
	assert.Equal(t, "u1", dst.UserID)
}
