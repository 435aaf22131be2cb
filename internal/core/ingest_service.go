package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/fitflow/fitflow-backend/internal/logging"
	"github.com/fitflow/fitflow-backend/internal/store"
)

// SourceWriter is the write side of the corpus.
type SourceWriter interface {
	CreateSource(ctx context.Context, src *store.Source) error
	ReplaceSources(ctx context.Context, sources []store.Source) (int, error)
}

// VideoIngest is a video picked from search results to become a corpus entry.
type VideoIngest struct {
	VideoID      string   `json:"videoId" validate:"required"`
	Title        string   `json:"title" validate:"required"`
	URL          string   `json:"url" validate:"omitempty,url"`
	Thumbnail    string   `json:"thumbnail"`
	ChannelTitle string   `json:"channelTitle"`
	Tags         []string `json:"tags"`
	Category     string   `json:"category" validate:"omitempty,oneof=weight-loss muscle-building home-workout injury-management nutrition cardio beginner advanced general"`
}

type IngestService struct {
	writer SourceWriter
}

func NewIngestService(writer SourceWriter) *IngestService {
	return &IngestService{writer: writer}
}

// IngestVideos stores each video as a "video" source. Every video is attempted;
// the count of stored ones is returned with the joined failures.
func (s *IngestService) IngestVideos(ctx context.Context, videos []VideoIngest) (int, error) {
	var errs []error
	stored := 0
	for _, v := range videos {
		url := v.URL
		if url == "" {
			url = WatchURL(v.VideoID)
		}
		src := &store.Source{
			Title:    v.Title,
			URL:      url,
			Type:     store.SourceTypeVideo,
			Tags:     v.Tags,
			Category: v.Category,
			Video: &store.VideoRef{
				VideoID:      v.VideoID,
				ChannelTitle: v.ChannelTitle,
				Thumbnail:    v.Thumbnail,
			},
		}
		if err := s.writer.CreateSource(ctx, src); err != nil {
			errs = append(errs, fmt.Errorf("video %s: %w", v.VideoID, err))
			continue
		}
		stored++
	}

	logging.Ctx(ctx).Info().Int("stored", stored).Int("failed", len(errs)).Msg("Ingested videos into corpus")
	return stored, errors.Join(errs...)
}

// SeedFromFile replaces the corpus with the YAML list at path.
func (s *IngestService) SeedFromFile(ctx context.Context, path string) (int, error) {
	sources, err := store.LoadSeedFile(path)
	if err != nil {
		return 0, err
	}
	n, err := s.writer.ReplaceSources(ctx, sources)
	if err != nil {
		return 0, fmt.Errorf("failed to seed corpus: %w", err)
	}
	logging.Info().Int("sources", n).Str("file", path).Msg("Corpus seeded")
	return n, nil
}
