package core

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/api/googleapi"

	"github.com/fitflow/fitflow-backend/internal/logging"
	"github.com/fitflow/fitflow-backend/internal/metrics"
	"github.com/fitflow/fitflow-backend/internal/youtube"
)

const (
	DefaultVideoResults = 6
	watchURLPrefix      = "https://www.youtube.com/watch?v="
)

type VideoSearcher interface {
	Search(ctx context.Context, query string, maxResults int64) ([]youtube.Video, error)
}

// VideoCard is the client-facing shape of a video suggestion.
type VideoCard struct {
	VideoID   string `json:"videoId"`
	Title     string `json:"title"`
	Thumbnail string `json:"thumbnail"`
	URL       string `json:"url"`
}

// VideoService suggests workout videos. It is independent of the recommendation pipeline.
type VideoService struct {
	searcher VideoSearcher
}

func NewVideoService(searcher VideoSearcher) *VideoService {
	return &VideoService{searcher: searcher}
}

// BuildVideoQuery joins the non-empty goal and diet with the "workout" keyword.
func BuildVideoQuery(goal, diet string) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{goal, diet} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(append(parts, "workout"), " ")
}

// RecommendVideos searches once, without retry. Provider errors come back as
// *UpstreamError with the provider's status and message.
func (s *VideoService) RecommendVideos(ctx context.Context, query string) ([]VideoCard, error) {
	videos, err := s.searcher.Search(ctx, query, DefaultVideoResults)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("query", query).Msg("Video search failed")
		var gerr *googleapi.Error
		if errors.As(err, &gerr) {
			metrics.UpstreamErrors.WithLabelValues("youtube", statusLabel(gerr.Code)).Inc()
			msg := gerr.Message
			if msg == "" {
				msg = gerr.Error()
			}
			return nil, &UpstreamError{StatusCode: gerr.Code, Message: msg}
		}
		metrics.UpstreamErrors.WithLabelValues("youtube", "none").Inc()
		return nil, err
	}
	return NormalizeVideos(videos), nil
}

func NormalizeVideos(videos []youtube.Video) []VideoCard {
	cards := make([]VideoCard, 0, len(videos))
	for _, v := range videos {
		cards = append(cards, VideoCard{
			VideoID:   v.VideoID,
			Title:     v.Title,
			Thumbnail: v.Thumbnail,
			URL:       WatchURL(v.VideoID),
		})
	}
	return cards
}

func WatchURL(videoID string) string {
	return watchURLPrefix + videoID
}

func statusLabel(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	default:
		return "other"
	}
}
