package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/fitflow/fitflow-backend/internal/metrics"
)

type AIRouterConfig struct {
	InternalAPIKey     string
	RateLimitPerMinute int
}

// NewAIRouter builds the internal AI service routes. Everything except the
// health and metrics endpoints requires the internal key.
func NewAIRouter(h *AIHandler, cfg AIRouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)

	r.Get("/health", h.HealthHandler)
	r.Handle("/metrics", metrics.Handler())

	limit := cfg.RateLimitPerMinute
	if limit <= 0 {
		limit = 5
	}
	rateLimit := httprate.Limit(limit, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			respondError(w, r, http.StatusTooManyRequests, "AI request limit exceeded. Please try again after a minute.", "", nil)
		}),
	)

	r.Route("/api/internal", func(r chi.Router) {
		r.Use(InternalAuth(cfg.InternalAPIKey))

		r.Group(func(r chi.Router) {
			r.Use(rateLimit)
			r.Post("/recommend", h.RecommendHandler)
			r.Post("/recommend/plan", h.PlanHandler)
			r.Post("/recommend/narrative", h.NarrativeHandler)
		})

		r.Post("/sources/search", h.SourceSearchHandler)
		r.Post("/sources/videos", h.IngestVideosHandler)
	})

	r.Route("/api/youtube", func(r chi.Router) {
		r.Use(InternalAuth(cfg.InternalAPIKey))
		r.Post("/recommend", h.YouTubeRecommendHandler)
	})

	return r
}
