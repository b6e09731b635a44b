package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"practicum.dev/assistant-gateway/internal/apperr"
	"practicum.dev/assistant-gateway/internal/auth"
	"practicum.dev/assistant-gateway/internal/core"
	"practicum.dev/assistant-gateway/internal/observability"
	"practicum.dev/assistant-gateway/internal/store"
)

const maxBodyBytes = 1 << 20

// Gateway is what the handlers need from the core; *core.AssistantService implements it.
type Gateway interface {
	Ask(ctx context.Context, in core.AskInput) (*core.AskResult, error)
	RecordFeedback(ctx context.Context, id int64, value string) (*store.Interaction, error)
	ListInteractions(ctx context.Context, filter store.Filter) ([]store.Interaction, error)
	GetInteraction(ctx context.Context, id int64) (*store.Interaction, error)
}

type APIHandler struct {
	gateway   Gateway
	jwtSecret string
}

func NewAPIHandler(gw Gateway, jwtSecret string) *APIHandler {
	return &APIHandler{gateway: gw, jwtSecret: jwtSecret}
}

// ReviewerAuthMiddleware admits requests carrying a valid reviewer bearer token.
func (h *APIHandler) ReviewerAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeError(w, r, apperr.E(apperr.KindUnauthorized, "api.auth", "Authorization header is required", nil))
			return
		}

		tokenString, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok {
			writeError(w, r, apperr.E(apperr.KindUnauthorized, "api.auth", "Authorization header must use the Bearer scheme", nil))
			return
		}

		reviewer, err := auth.ValidateJWT(h.jwtSecret, strings.TrimSpace(tokenString))
		if err != nil {
			writeError(w, r, apperr.E(apperr.KindUnauthorized, "api.auth", "Invalid token", err))
			return
		}

		observability.LoggerFromContext(r.Context()).DebugContext(r.Context(), "reviewer authenticated", "reviewer", reviewer)
		next.ServeHTTP(w, r)
	})
}

type AskRequest struct {
	Question string      `json:"question"`
	History  []core.Turn `json:"history,omitempty"`
}

type AskResponse struct {
	Answer        string `json:"answer"`
	InteractionID int64  `json:"interactionId"`
}

func (h *APIHandler) AskHandler(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.gateway.Ask(r.Context(), core.AskInput{Question: req.Question, History: req.History})
	if err != nil {
		if errors.Is(err, context.Canceled) && r.Context().Err() != nil {
			observability.LoggerFromContext(r.Context()).InfoContext(r.Context(), "caller went away before the question was answered")
			return
		}
		resp := errorResponse{Error: apperr.KindOf(err), Message: apperr.Message(err)}
		if res != nil {
			if res.Interaction != nil {
				resp.InteractionID = &res.Interaction.ID
			}
			resp.Answer = res.Answer
		}
		logFailure(r, err)
		writeJSON(w, statusFor(resp.Error), resp)
		return
	}

	writeJSON(w, http.StatusOK, AskResponse{Answer: res.Answer, InteractionID: res.Interaction.ID})
}

type FeedbackRequest struct {
	InteractionID int64  `json:"interactionId"`
	Feedback      string `json:"feedback"`
}

type FeedbackResponse struct {
	InteractionID int64          `json:"interactionId"`
	Feedback      store.Feedback `json:"feedback"`
	Status        string         `json:"status"`
}

func (h *APIHandler) FeedbackHandler(w http.ResponseWriter, r *http.Request) {
	var req FeedbackRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	interaction, err := h.gateway.RecordFeedback(r.Context(), req.InteractionID, req.Feedback)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := FeedbackResponse{InteractionID: interaction.ID, Status: "recorded"}
	if interaction.Feedback != nil {
		resp.Feedback = *interaction.Feedback
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *APIHandler) ListInteractionsHandler(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	interactions, err := h.gateway.ListInteractions(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if interactions == nil {
		interactions = []store.Interaction{}
	}
	writeJSON(w, http.StatusOK, interactions)
}

func (h *APIHandler) GetInteractionHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "interactionID"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, r, apperr.E(apperr.KindInvalidInput, "api.GetInteraction", "interaction id must be a positive integer", err))
		return
	}

	interaction, err := h.gateway.GetInteraction(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, interaction)
}

func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func parseFilter(r *http.Request) (store.Filter, error) {
	const op = "api.parseFilter"
	q := r.URL.Query()
	invalid := func(msg string, err error) (store.Filter, error) {
		return store.Filter{}, apperr.E(apperr.KindInvalidInput, op, msg, err)
	}

	filter := store.Filter{Feedback: strings.ToLower(strings.TrimSpace(q.Get("feedback")))}

	if v := q.Get("failed"); v != "" {
		failed, err := strconv.ParseBool(v)
		if err != nil {
			return invalid("failed must be true or false", err)
		}
		filter.Failed = &failed
	}

	for _, p := range []struct {
		name string
		dst  *time.Time
	}{{"since", &filter.Since}, {"until", &filter.Until}} {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return invalid(p.name+" must be an RFC 3339 timestamp", err)
		}
		*p.dst = t
	}

	for _, p := range []struct {
		name string
		dst  *int
	}{{"limit", &filter.Limit}, {"offset", &filter.Offset}} {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return invalid(p.name+" must be an integer", err)
		}
		*p.dst = n
	}

	if err := filter.Validate(); err != nil {
		return store.Filter{}, err
	}
	return filter, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	const op = "api.decodeBody"
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return apperr.E(apperr.KindPromptTooLarge, op, "request body is too large", err)
		case errors.Is(err, io.EOF):
			return apperr.E(apperr.KindInvalidInput, op, "request body is required", err)
		default:
			return apperr.E(apperr.KindInvalidInput, op, "invalid request body", err)
		}
	}
	return nil
}
