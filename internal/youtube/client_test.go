package youtube

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const searchResponse = `{
  "items": [
    {"id": {"kind": "youtube#video", "videoId": "abc123"},
     "snippet": {"title": "Beginner HIIT", "channelTitle": "FitChan", "publishedAt": "2024-01-02T00:00:00Z",
                 "thumbnails": {"high": {"url": "https://i.ytimg.com/abc123/hq.jpg"}}}},
    {"id": {"kind": "youtube#video", "videoId": "def456"},
     "snippet": {"title": "Low Impact Cardio", "channelTitle": "Move", "publishedAt": "2024-02-03T00:00:00Z",
                 "thumbnails": {"default": {"url": "https://i.ytimg.com/def456/default.jpg"}}}}
  ]
}`

const videosResponse = `{
  "items": [
    {"id": "def456", "contentDetails": {"duration": "PT20M"}},
    {"id": "abc123", "contentDetails": {"duration": "PT12M30S"}}
  ]
}`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(context.Background(), "test-key", option.WithEndpoint(srv.URL+"/"), option.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return c
}

func TestSearchMergesDurations(t *testing.T) {
	var searchQuery string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/search"):
			searchQuery = r.URL.RawQuery
			w.Write([]byte(searchResponse))
		case strings.HasSuffix(r.URL.Path, "/videos"):
			w.Write([]byte(videosResponse))
		default:
			http.NotFound(w, r)
		}
	})

	videos, err := c.Search(context.Background(), "weight loss workout", 6)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(videos) != 2 {
		t.Fatalf("expected 2 videos, got %d", len(videos))
	}

	if videos[0].VideoID != "abc123" || videos[0].Duration != "PT12M30S" || videos[0].Channel != "FitChan" {
		t.Errorf("unexpected first video: %+v", videos[0])
	}
	if videos[1].Thumbnail != "https://i.ytimg.com/def456/default.jpg" {
		t.Errorf("expected default thumbnail fallback, got %q", videos[1].Thumbnail)
	}
	for _, want := range []string{"safeSearch=moderate", "relevanceLanguage=en", "type=video", "maxResults=6"} {
		if !strings.Contains(searchQuery, want) {
			t.Errorf("search query %q missing %q", searchQuery, want)
		}
	}
}

func TestSearchUpstreamError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error": {"code": 403, "message": "quotaExceeded"}}`))
	})

	_, err := c.Search(context.Background(), "q", 6)
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		t.Fatalf("expected googleapi.Error, got %v", err)
	}
	if gerr.Code != http.StatusForbidden || gerr.Message != "quotaExceeded" {
		t.Errorf("unexpected upstream error: %d %q", gerr.Code, gerr.Message)
	}
}

func TestSearchWithoutKey(t *testing.T) {
	c, err := NewClient(context.Background(), "")
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if _, err := c.Search(context.Background(), "q", 6); !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("expected ErrMissingAPIKey, got %v", err)
	}
}

func TestSearchNoResultsSkipsDetails(t *testing.T) {
	detailsCalled := false
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if strings.HasSuffix(r.URL.Path, "/videos") {
			detailsCalled = true
		}
		w.Write([]byte(`{"items": []}`))
	})

	videos, err := c.Search(context.Background(), "q", 6)
	if err != nil || len(videos) != 0 {
		t.Fatalf("expected empty result, got (%v, %v)", videos, err)
	}
	if detailsCalled {
		t.Error("details call should be skipped when search has no hits")
	}
}
