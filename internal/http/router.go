package http

import (
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/daybook/server/internal/http/handlers"
	"github.com/daybook/server/internal/middleware"
)

// NewRouter creates a new HTTP router with all routes configured
func NewRouter(webhookHandler *handlers.WebhookHandler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)

	healthHandler := handlers.NewHealthHandler()
	r.Get("/health", healthHandler.ServeHTTP)

	// Coarse per-IP guard; the per-phone limit is enforced in the pipeline.
	ipLimiter := middleware.NewRateLimiter(1*time.Minute, 120)
	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimitMiddleware(ipLimiter, middleware.GetIPKey))
		r.Post("/webhook", webhookHandler.ServeHTTP)
	})

	return r
}
