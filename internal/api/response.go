package api

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/fitflow/fitflow-backend/internal/logging"
)

type successResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

type errorResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Error     string `json:"error,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

func respondSuccess(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, successResponse{Success: true, Message: message, Data: data})
}

// respondError logs err with the request id and answers with message only.
// detail, when set, is exposed as the "error" field.
func respondError(w http.ResponseWriter, r *http.Request, status int, message string, detail string, err error) {
	requestID := logging.RequestIDFromContext(r.Context())
	if err != nil {
		event := logging.Ctx(r.Context()).Warn()
		if status >= http.StatusInternalServerError {
			event = logging.Ctx(r.Context()).Error()
		}
		event.Err(err).Str("method", r.Method).Str("path", r.URL.Path).Int("status", status).Msg(message)
	}
	writeJSON(w, status, errorResponse{Message: message, Error: detail, RequestID: requestID})
}
