package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/soaringjerry/Formly/internal/middleware"
	"github.com/soaringjerry/Formly/internal/services"
	"github.com/soaringjerry/Formly/internal/utils"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Code            string `json:"code"`
	Title           string `json:"title"`
	Message         string `json:"message"`
	Field           string `json:"field,omitempty"`
	ExpectedVersion *int   `json:"expected_version,omitempty"`
	CurrentVersion  *int   `json:"current_version,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

var statusByCode = map[services.ErrorCode]int{
	services.ErrorInvalid:      http.StatusBadRequest,
	services.ErrorUnauthorized: http.StatusUnauthorized,
	services.ErrorForbidden:    http.StatusForbidden,
	services.ErrorNotFound:     http.StatusNotFound,
	services.ErrorConflict:     http.StatusConflict,
}

// writeError maps service errors to statuses. Anything that is not a ServiceError is logged
// and answered with a generic 500.
func (rt *Router) writeError(w http.ResponseWriter, r *http.Request, err error) {
	locale := middleware.LocaleFromContext(r.Context())
	se, ok := services.AsServiceError(err)
	if !ok {
		rt.log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]errorBody{"error": {
			Code:    "internal",
			Title:   utils.T(locale, "error.internal"),
			Message: utils.T(locale, "error.internal"),
		}})
		return
	}
	status, known := statusByCode[se.Code]
	if !known {
		status = http.StatusInternalServerError
	}
	body := errorBody{
		Code:    string(se.Code),
		Title:   utils.T(locale, "error."+string(se.Code)),
		Message: se.Message,
		Field:   se.Field,
	}
	if se.Code == services.ErrorConflict && se.Field == "" {
		expected, current := se.Expected, se.Current
		body.ExpectedVersion = &expected
		body.CurrentVersion = &current
	}
	writeJSON(w, status, map[string]errorBody{"error": body})
}

// decode reads a JSON body into dst. Malformed input is a validation error.
func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var tooBig *http.MaxBytesError
		switch {
		case errors.As(err, &tooBig):
			return services.NewInvalidError("request body too large")
		case errors.Is(err, io.EOF):
			return services.NewInvalidError("request body required")
		default:
			return services.NewInvalidError(fmt.Sprintf("invalid JSON: %v", err))
		}
	}
	return nil
}

// expectedVersion prefers the body's version and falls back to an If-Match header or a
// ?version= query parameter. A missing version is a validation error.
func expectedVersion(r *http.Request, fromBody *int) (int, error) {
	if fromBody != nil {
		return *fromBody, nil
	}
	raw := strings.Trim(r.Header.Get("If-Match"), `"W/`)
	if raw == "" {
		raw = r.URL.Query().Get("version")
	}
	if raw == "" {
		return 0, services.NewFieldError("version", "required")
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return 0, services.NewFieldError("version", "must be a positive integer")
	}
	return v, nil
}

func pathVar(r *http.Request, name string) string {
	return mux.Vars(r)[name]
}

func identity(r *http.Request) services.Identity {
	return middleware.IdentityFromContext(r.Context())
}

func setETag(w http.ResponseWriter, version int) {
	w.Header().Set("ETag", `"`+strconv.Itoa(version)+`"`)
}
