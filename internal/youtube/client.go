// Package youtube searches the YouTube Data API for workout videos.
package youtube

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"
)

var ErrMissingAPIKey = errors.New("YOUTUBE_API_KEY not set")

// Video is one search result with its duration merged in.
type Video struct {
	VideoID     string `json:"videoId"`
	Title       string `json:"title"`
	Channel     string `json:"channel"`
	Thumbnail   string `json:"thumbnail"`
	PublishedAt string `json:"publishedAt"`
	Duration    string `json:"duration,omitempty"`
}

type Client struct {
	service *yt.Service
}

// NewClient builds a client for apiKey. With an empty key the client is
// still returned and every Search fails with ErrMissingAPIKey.
func NewClient(ctx context.Context, apiKey string, opts ...option.ClientOption) (*Client, error) {
	if apiKey == "" {
		return &Client{}, nil
	}
	svc, err := yt.NewService(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create YouTube service: %w", err)
	}
	return &Client{service: svc}, nil
}

// Search runs a moderated English video search, then fetches durations for the hits.
func (c *Client) Search(ctx context.Context, query string, maxResults int64) ([]Video, error) {
	if c == nil || c.service == nil {
		return nil, ErrMissingAPIKey
	}

	search, err := c.service.Search.List([]string{"snippet"}).
		Q(query).
		Type("video").
		MaxResults(maxResults).
		RelevanceLanguage("en").
		SafeSearch("moderate").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("youtube search failed: %w", err)
	}

	videos := make([]Video, 0, len(search.Items))
	ids := make([]string, 0, len(search.Items))
	for _, item := range search.Items {
		if item.Id == nil || item.Id.VideoId == "" {
			continue
		}
		v := Video{VideoID: item.Id.VideoId}
		if s := item.Snippet; s != nil {
			v.Title = s.Title
			v.Channel = s.ChannelTitle
			v.PublishedAt = s.PublishedAt
			v.Thumbnail = thumbnailURL(s.Thumbnails)
		}
		videos = append(videos, v)
		ids = append(ids, v.VideoID)
	}
	if len(videos) == 0 {
		return videos, nil
	}

	details, err := c.service.Videos.List([]string{"contentDetails"}).Id(ids...).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("youtube video details failed: %w", err)
	}
	durations := make(map[string]string, len(details.Items))
	for _, item := range details.Items {
		if item.ContentDetails != nil {
			durations[item.Id] = item.ContentDetails.Duration
		}
	}
	for i := range videos {
		videos[i].Duration = durations[videos[i].VideoID]
	}
	return videos, nil
}

func thumbnailURL(t *yt.ThumbnailDetails) string {
	if t == nil {
		return ""
	}
	for _, thumb := range []*yt.Thumbnail{t.High, t.Medium, t.Default} {
		if thumb != nil && thumb.Url != "" {
			return thumb.Url
		}
	}
	return ""
}
