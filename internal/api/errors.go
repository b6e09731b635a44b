package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"practicum.dev/assistant-gateway/internal/apperr"
	"practicum.dev/assistant-gateway/internal/observability"
)

// errorResponse is the body of every non-2xx reply. Answer is set only when a computed
// answer could not be recorded.
type errorResponse struct {
	Error         apperr.Kind `json:"error"`
	Message       string      `json:"message"`
	InteractionID *int64      `json:"interactionId,omitempty"`
	Answer        string      `json:"answer,omitempty"`
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindInvalidInput, apperr.KindInvalidFeedback:
		return http.StatusBadRequest
	case apperr.KindUnauthorized:
		return http.StatusUnauthorized
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindFeedbackAlreadySet:
		return http.StatusConflict
	case apperr.KindPromptTooLarge:
		return http.StatusRequestEntityTooLarge
	case apperr.KindModelError:
		return http.StatusBadGateway
	case apperr.KindModelUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	logFailure(r, err)
	writeJSON(w, statusFor(kind), errorResponse{Error: kind, Message: apperr.Message(err)})
}

// logFailure keeps provider and storage details in the logs only.
func logFailure(r *http.Request, err error) {
	logger := observability.LoggerFromContext(r.Context())
	kind := apperr.KindOf(err)
	if statusFor(kind) >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "request failed", "kind", kind, "error", err)
		return
	}
	logger.InfoContext(r.Context(), "request rejected", "kind", kind, "error", err)
}
