package httputil

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/estateops/pkg/apperrors"
	"github.com/platinummonkey/estateops/pkg/observability"
)

// ErrorResponse is the envelope for every failed request
type ErrorResponse struct {
	Detail    string `json:"detail"`
	Code      string `json:"code,omitempty"`
	Timestamp string `json:"timestamp"`
	// RetryAfter is whole seconds, present on 429 only
	RetryAfter *int `json:"retry_after,omitempty"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteCreated writes a successful creation response (201 Created) with JSON data
func WriteCreated(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusCreated, data)
}

// WriteSuccess writes a successful response (200 OK) with JSON data
func WriteSuccess(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, data)
}

// WriteNoContent writes a successful response with no content (204 No Content)
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// WriteError classifies err and writes the error envelope. Internal errors
// are logged at Error with the request logger; callers log the expected
// kinds at whatever severity fits. The classified error is returned.
func WriteError(w http.ResponseWriter, r *http.Request, err error) *apperrors.Error {
	ae := apperrors.From(err)
	if ae == nil {
		ae = apperrors.New(apperrors.KindInternal, apperrors.CodeInternal, "internal server error")
	}

	if ae.Kind == apperrors.KindInternal && r != nil {
		observability.FromContext(r.Context()).WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).WithError(err).Error("Request failed")
	}

	writeEnvelope(w, ae)
	return ae
}

// WriteAppError writes an already classified error
func WriteAppError(w http.ResponseWriter, ae *apperrors.Error) {
	writeEnvelope(w, ae)
}

func writeEnvelope(w http.ResponseWriter, ae *apperrors.Error) {
	body := ErrorResponse{
		Detail:    ae.Detail,
		Code:      ae.Code,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if ae.Kind == apperrors.KindRateLimited {
		secs := RetryAfterSeconds(ae.RetryAfter)
		body.RetryAfter = &secs
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}
	if ae.Kind == apperrors.KindUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="estateops"`)
	}
	WriteJSON(w, ae.Status(), body)
}

// RetryAfterSeconds rounds a wait up to whole seconds, never below one
func RetryAfterSeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}
