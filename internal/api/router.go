package api

import (
	"crypto/ed25519"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/SoftwareDev-01/6.vybe/internal/api/middleware"
	"github.com/SoftwareDev-01/6.vybe/internal/gateway"
	"github.com/SoftwareDev-01/6.vybe/internal/handlers"
	"github.com/SoftwareDev-01/6.vybe/internal/media"
	"github.com/SoftwareDev-01/6.vybe/internal/store"
)

// NewRouter creates and configures the HTTP router.
func NewRouter(
	logger zerolog.Logger,
	st store.DataStore,
	redisStore *store.RedisStore,
	gw *gateway.Gateway,
	uploader media.Uploader,
	tokenPub ed25519.PublicKey,
	rateLimitWhitelist []string,
) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(12 << 20)) // multipart media uploads

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// Rate limiting (skipped in development when Redis is absent)
	if redisStore != nil {
		limiter := middleware.NewRateLimiter(redisStore, logger, rateLimitWhitelist)
		r.Use(limiter.Middleware)
	}

	// CORS for the SPA origin
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h := handlers.NewHandler(st, redisStore, gw, uploader, logger)
	auth := middleware.NewAuthMiddleware(tokenPub)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	// Public routes
	r.Get("/health", h.Health)

	// Authenticated routes (require a valid identity token)
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth)

		r.Post("/send/{receiverId}", h.SendMessage)
		r.Get("/messages/{counterpartyId}", h.GetMessages)
		r.Get("/conversationPeers", h.ConversationPeers)
		r.Post("/delete", h.DeleteMessage)
		r.Get("/ws", gw.HandleWS)
	})

	return r
}
