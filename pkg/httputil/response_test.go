package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/estateops/pkg/apperrors"
	"github.com/platinummonkey/estateops/pkg/auth"
	"github.com/platinummonkey/estateops/pkg/tenant"
)

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"message": "success"}

	err := WriteJSON(w, http.StatusOK, data)

	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "success")
}

func TestWriteCreatedAndNoContent(t *testing.T) {
	w := httptest.NewRecorder()
	require.NoError(t, WriteCreated(w, map[string]string{"id": "1"}))
	assert.Equal(t, http.StatusCreated, w.Code)

	w = httptest.NewRecorder()
	WriteNoContent(w)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestWriteError_Envelope(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/v1/tasks", nil)
	w := httptest.NewRecorder()

	ae := WriteError(w, r, fmt.Errorf("%w: %w", auth.ErrUnauthorized, auth.ErrExpiredToken))

	assert.Equal(t, apperrors.KindUnauthorized, ae.Kind)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.NotEmpty(t, w.Header().Get("WWW-Authenticate"))

	body := decodeEnvelope(t, w)
	assert.Equal(t, "token has expired", body["detail"])
	assert.Equal(t, "token_expired", body["code"])
	_, err := time.Parse(time.RFC3339, body["timestamp"].(string))
	assert.NoError(t, err)
	assert.NotContains(t, body, "retry_after")
}

func TestWriteError_InvalidTenant(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/v1/tasks", nil)
	w := httptest.NewRecorder()

	WriteError(w, r, fmt.Errorf("%w: %q", tenant.ErrInvalidTenantID, "garbage"))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeEnvelope(t, w)
	assert.Equal(t, "invalid_tenant", body["code"])
	assert.NotContains(t, w.Body.String(), "garbage")
}

func TestWriteError_InternalHidesCause(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/v1/tasks", nil)
	w := httptest.NewRecorder()

	WriteError(w, r, errors.New("dial tcp 10.0.0.5:5432: connection refused"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "10.0.0.5")
	body := decodeEnvelope(t, w)
	assert.Equal(t, "internal_error", body["code"])
}

func TestWriteError_RateLimited(t *testing.T) {
	w := httptest.NewRecorder()

	WriteAppError(w, apperrors.RateLimited(2100*time.Millisecond))

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "3", w.Header().Get("Retry-After"))
	body := decodeEnvelope(t, w)
	assert.Equal(t, "rate_limited", body["code"])
	assert.Equal(t, float64(3), body["retry_after"])
}

func TestRetryAfterSeconds(t *testing.T) {
	assert.Equal(t, 1, RetryAfterSeconds(0))
	assert.Equal(t, 1, RetryAfterSeconds(time.Millisecond))
	assert.Equal(t, 1, RetryAfterSeconds(time.Second))
	assert.Equal(t, 2, RetryAfterSeconds(time.Second+time.Nanosecond))
	assert.Equal(t, 60, RetryAfterSeconds(time.Minute))
}
