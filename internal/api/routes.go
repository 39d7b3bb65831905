package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ignite/subscription-server/internal/domain"
)

// SetupRoutes configures all API routes. adminToken guards the /api/admin
// group; an empty token disables those routes entirely rather than leaving
// them open.
func SetupRoutes(h *Handlers, adminToken string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check (no auth required)
	r.Get("/health", h.HealthCheck)

	// Gateway webhooks authenticate via signature, not bearer token
	r.Post("/webhooks/stripe", h.HandleWebhook(domain.GatewayStripe))
	r.Post("/webhooks/razorpay", h.HandleWebhook(domain.GatewayRazorpay))

	r.Route("/api", func(r chi.Router) {
		r.Post("/subscriptions", h.HandleCreateSubscription)

		if adminToken != "" {
			r.Route("/admin", func(r chi.Router) {
				r.Use(bearerAuth(adminToken))
				r.Get("/subscribers", h.HandleListSubscribers)
				r.Get("/subscribers/{id}", h.HandleGetSubscriber)
				r.Post("/subscribers/{id}/resume", h.HandleResumeSubscriber)
			})
		}
	})

	return r
}

// bearerAuth requires "Authorization: Bearer <token>" with the configured
// admin token
func bearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			presented, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				respondError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
