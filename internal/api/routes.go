package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter creates a new router with all routes configured
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware (all routes)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware)
	r.Use(RecoveryMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		// Public routes
		r.Get("/health", h.Health)

		// Protected routes (auth required)
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(h.apiKey))
			r.Post("/generate", h.Generate)
			r.Post("/feedback", h.Feedback)
			r.Get("/feedback/summary", h.FeedbackSummary)
			r.Get("/knowledge", h.Knowledge)
			r.Get("/knowledge/emotions/{emotion}", h.KnowledgeEmotion)
			r.Get("/knowledge/snapshot", h.KnowledgeSnapshot)
			r.Post("/reflect", h.Reflect)
		})
	})

	return r
}
