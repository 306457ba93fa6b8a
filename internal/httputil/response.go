// Package httputil holds the JSON response helpers shared by the middleware
// and the API handlers.
package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/Mouaddiguoug/feetflight/internal/errors"
	"github.com/Mouaddiguoug/feetflight/internal/logging"
)

// ErrorBody is the payload of every error response.
type ErrorBody struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

type errorEnvelope struct {
	Error ErrorBody `json:"error"`
}

// WriteJSON writes data with the given status.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(data)
}

// WriteErrorResponse writes the error envelope.
func WriteErrorResponse(w http.ResponseWriter, r *http.Request, status int, code, message string, details map[string]interface{}) {
	if traceID := logging.GetTraceID(r.Context()); traceID != "" {
		w.Header().Set("X-Trace-ID", traceID)
	}
	WriteJSON(w, status, errorEnvelope{Error: ErrorBody{Code: code, Message: message, Details: details}})
}

// WriteError maps err onto the envelope. Errors that are not ServiceErrors
// become 500 INTERNAL_ERROR; their text is only exposed when exposeCause is
// set.
func WriteError(w http.ResponseWriter, r *http.Request, err error, exposeCause bool) {
	se := errors.GetServiceError(err)
	if se == nil {
		se = errors.Internal("Internal server error", err)
	}
	details := se.Details
	if exposeCause && se.Err != nil {
		details = se.WithDetails("cause", se.Err.Error()).Details
	}
	WriteErrorResponse(w, r, se.HTTPStatus, string(se.Code), se.Message, details)
}

// Unauthorized writes a 401 envelope.
func Unauthorized(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, errors.Unauthorized(message), false)
}

// Forbidden writes a 403 envelope.
func Forbidden(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, errors.Forbidden(message), false)
}
