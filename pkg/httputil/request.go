package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/platinummonkey/estateops/pkg/apperrors"
)

// ParseJSON decodes the request body into dest. Unknown fields and
// trailing data are rejected.
func ParseJSON(r *http.Request, dest interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return apperrors.Validation("request body is required")
		case errors.As(err, &maxErr):
			return apperrors.Validation(fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit))
		default:
			return apperrors.Wrap(err, apperrors.KindValidation, apperrors.CodeValidation, "request body is not valid JSON")
		}
	}
	if dec.More() {
		return apperrors.Validation("request body must contain a single JSON object")
	}
	return nil
}

// PathString extracts a non-empty path parameter
func PathString(r *http.Request, key string) (string, error) {
	val := mux.Vars(r)[key]
	if val == "" {
		return "", apperrors.Validation(fmt.Sprintf("missing path parameter: %s", key))
	}
	return val, nil
}

// PathUUID extracts a path parameter that must be a UUID
func PathUUID(r *http.Request, key string) (uuid.UUID, error) {
	val, err := PathString(r, key)
	if err != nil {
		return uuid.Nil, err
	}
	id, err := uuid.Parse(val)
	if err != nil {
		// an unparseable id can never name a record
		return uuid.Nil, apperrors.NotFound("resource not found")
	}
	return id, nil
}

// QueryInt extracts an integer query parameter in [0, max]. An absent
// parameter yields def.
func QueryInt(r *http.Request, key string, def, max int) (int, error) {
	str := r.URL.Query().Get(key)
	if str == "" {
		return def, nil
	}
	val, err := strconv.Atoi(str)
	if err != nil || val < 0 {
		return 0, apperrors.Validation(fmt.Sprintf("%s must be a non-negative integer", key))
	}
	if max > 0 && val > max {
		return max, nil
	}
	return val, nil
}

// QueryTime extracts an RFC 3339 timestamp query parameter; absent yields
// the zero time.
func QueryTime(r *http.Request, key string) (time.Time, error) {
	str := r.URL.Query().Get(key)
	if str == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, str)
	if err != nil {
		return time.Time{}, apperrors.Validation(fmt.Sprintf("%s must be an RFC 3339 timestamp", key))
	}
	return t, nil
}
