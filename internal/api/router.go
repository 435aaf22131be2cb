package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/fitflow/fitflow-backend/internal/metrics"
)

type RouterConfig struct {
	CORSAllowedOrigins []string
}

// NewRouter builds the public server's routes.
func NewRouter(apiHandler *APIHandler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", requestIDHeader},
		ExposedHeaders:   []string{requestIDHeader},
		AllowCredentials: !allowsAnyOrigin(cfg.CORSAllowedOrigins),
		MaxAge:           300,
	}))

	r.Get("/health", apiHandler.HealthHandler)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		// Public routes
		r.Get("/health", apiHandler.HealthHandler)
		r.Post("/auth/register", apiHandler.RegisterHandler)
		r.Post("/auth/login", apiHandler.LoginHandler)
		r.Post("/auth/google", apiHandler.GoogleLoginHandler)

		// User-authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(apiHandler.JWTAuthMiddleware)

			r.Get("/users/me", apiHandler.GetProfileHandler)
			r.Put("/users/me", apiHandler.UpdateProfileHandler)

			r.Post("/logs", apiHandler.CreateLogHandler)
			r.Get("/logs", apiHandler.ListLogsHandler)

			r.Post("/ai/recommend", apiHandler.RecommendHandler)
			r.Post("/youtube/recommend", apiHandler.RecommendVideosHandler)
		})
	})

	return r
}

// allowsAnyOrigin reports a wildcard or empty origin list. Credentials are only
// allowed with an explicit list.
func allowsAnyOrigin(origins []string) bool {
	if len(origins) == 0 {
		return true
	}
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}
