package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"practicum.dev/assistant-gateway/internal/observability"
)

func NewRouter(apiHandler *APIHandler, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(observability.RequestID)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger:  slog.NewLogLogger(logger.Handler(), slog.LevelInfo),
		NoColor: true,
	}))
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)

	r.Get("/health", HealthHandler)

	r.Post("/ask", apiHandler.AskHandler)
	r.Post("/feedback", apiHandler.FeedbackHandler)

	// Review routes
	r.Group(func(r chi.Router) {
		r.Use(apiHandler.ReviewerAuthMiddleware)

		r.Get("/interactions", apiHandler.ListInteractionsHandler)
		r.Get("/interactions/{interactionID}", apiHandler.GetInteractionHandler)
	})

	return r
}
