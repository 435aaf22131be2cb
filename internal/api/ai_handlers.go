package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/fitflow/fitflow-backend/internal/core"
	"github.com/fitflow/fitflow-backend/internal/store"
	"github.com/fitflow/fitflow-backend/internal/youtube"
)

const maxSearchLimit = 50

// AIHandler serves the internal recommendation service.
type AIHandler struct {
	recommend *core.RecommendService
	retrieval *core.RetrievalService
	videos    *core.VideoService
	ingest    *core.IngestService
}

// NewAIHandler wires the AI service handlers. ingest may be nil when no corpus is configured.
func NewAIHandler(recommend *core.RecommendService, retrieval *core.RetrievalService, videos *core.VideoService, ingest *core.IngestService) *AIHandler {
	return &AIHandler{recommend: recommend, retrieval: retrieval, videos: videos, ingest: ingest}
}

type generateFunc func(context.Context, core.RecommendRequest) (map[string]any, error)

func (h *AIHandler) RecommendHandler(w http.ResponseWriter, r *http.Request) {
	h.generate(w, r, h.recommend.Recommend, "Failed to generate recommendation")
}

func (h *AIHandler) PlanHandler(w http.ResponseWriter, r *http.Request) {
	h.generate(w, r, h.recommend.GeneratePlan, "Failed to generate plan")
}

func (h *AIHandler) NarrativeHandler(w http.ResponseWriter, r *http.Request) {
	h.generate(w, r, h.recommend.GenerateNarrative, "Failed to generate narrative")
}

func (h *AIHandler) generate(w http.ResponseWriter, r *http.Request, fn generateFunc, failure string) {
	var req core.RecommendRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error(), "", nil)
		return
	}

	payload, err := fn(r.Context(), req)
	switch {
	case errors.Is(err, core.ErrProfileRequired):
		respondError(w, r, http.StatusBadRequest, err.Error(), "", nil)
		return
	case errors.Is(err, core.ErrGenerationTimeout):
		respondError(w, r, http.StatusGatewayTimeout, failure, err.Error(), err)
		return
	case err != nil:
		respondError(w, r, http.StatusInternalServerError, failure, err.Error(), err)
		return
	}
	respondSuccess(w, http.StatusOK, "Success", payload)
}

type SourceSearchRequest struct {
	Tags  []string `json:"tags"`
	Limit int      `json:"limit" validate:"omitempty,gte=1,lte=50"`
}

// SourceSearchHandler previews retrieval for an explicit tag list.
func (h *AIHandler) SourceSearchHandler(w http.ResponseWriter, r *http.Request) {
	var req SourceSearchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error(), "", nil)
		return
	}

	limit := req.Limit
	if limit <= 0 {
		limit = core.DefaultCandidateLimit
	}
	limit = min(limit, maxSearchLimit)

	sources := h.retrieval.RetrieveCandidates(r.Context(), req.Tags, limit)
	respondSuccess(w, http.StatusOK, "Success", map[string]any{
		"tags":    store.NormalizeTags(req.Tags),
		"sources": sources,
	})
}

type IngestVideosRequest struct {
	Videos []core.VideoIngest `json:"videos" validate:"required,min=1,dive"`
}

func (h *AIHandler) IngestVideosHandler(w http.ResponseWriter, r *http.Request) {
	if h.ingest == nil {
		respondError(w, r, http.StatusServiceUnavailable, "Knowledge corpus is not configured", "", nil)
		return
	}

	var req IngestVideosRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error(), "", nil)
		return
	}

	stored, err := h.ingest.IngestVideos(r.Context(), req.Videos)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, "Failed to ingest videos", err.Error(), err)
		return
	}
	respondSuccess(w, http.StatusCreated, "Videos ingested", map[string]int{"stored": stored})
}

type YouTubeRecommendRequest struct {
	Query string `json:"query" validate:"required"`
}

func (h *AIHandler) YouTubeRecommendHandler(w http.ResponseWriter, r *http.Request) {
	var req YouTubeRecommendRequest
	if err := decodeJSON(w, r, &req); err != nil || strings.TrimSpace(req.Query) == "" {
		respondError(w, r, http.StatusBadRequest, "query is required", "", nil)
		return
	}

	cards, err := h.videos.RecommendVideos(r.Context(), req.Query)
	if err != nil {
		var upstream *core.UpstreamError
		switch {
		case errors.As(err, &upstream):
			status := upstream.StatusCode
			if status < http.StatusBadRequest {
				status = http.StatusBadGateway
			}
			respondError(w, r, status, upstream.Message, "", err)
		case errors.Is(err, youtube.ErrMissingAPIKey):
			respondError(w, r, http.StatusInternalServerError, err.Error(), "", err)
		default:
			respondError(w, r, http.StatusInternalServerError, "Failed to fetch YouTube videos", "", err)
		}
		return
	}
	respondSuccess(w, http.StatusOK, "Success", map[string]any{"youtubeVideos": cards})
}

func (h *AIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"service":   "ai-service",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
