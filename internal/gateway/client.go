// Package gateway is the public server's HTTP client for the internal AI service.
package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/fitflow/fitflow-backend/internal/logging"
	"github.com/fitflow/fitflow-backend/internal/metrics"
)

const (
	DefaultRecommendTimeout = 30 * time.Second
	DefaultVideoTimeout     = 10 * time.Second

	// InternalKeyHeader carries the shared secret between the two processes.
	InternalKeyHeader = "X-Internal-Key"

	breakerName = "ai-service"
)

var ErrMissingInternalKey = errors.New("INTERNAL_API_KEY is not set. It must match the AI service and is sent as " + InternalKeyHeader)

// Error is a failed AI service call, already translated into the status and
// message the public API answers with.
type Error struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

type Options struct {
	RecommendTimeout time.Duration
	VideoTimeout     time.Duration
	HTTPClient       *http.Client
}

type Client struct {
	baseURL          string
	apiKey           string
	httpClient       *http.Client
	recommendTimeout time.Duration
	videoTimeout     time.Duration
	cb               *gobreaker.CircuitBreaker[*upstreamResponse]
}

type upstreamResponse struct {
	status int
	body   []byte
}

// envelope is the AI service response shape.
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

func NewClient(baseURL, apiKey string, opts Options) *Client {
	if opts.RecommendTimeout <= 0 {
		opts.RecommendTimeout = DefaultRecommendTimeout
	}
	if opts.VideoTimeout <= 0 {
		opts.VideoTimeout = DefaultVideoTimeout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}

	metrics.BreakerState.WithLabelValues(breakerName).Set(0)
	cb := gobreaker.NewCircuitBreaker[*upstreamResponse](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 2,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("Circuit breaker state changed")
			metrics.BreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	})

	return &Client{
		baseURL:          strings.TrimRight(baseURL, "/"),
		apiKey:           apiKey,
		httpClient:       opts.HTTPClient,
		recommendTimeout: opts.RecommendTimeout,
		videoTimeout:     opts.VideoTimeout,
		cb:               cb,
	}
}

// Recommend asks the AI service for a merged plan and narrative.
func (c *Client) Recommend(ctx context.Context, profile any, recentLogs any) (map[string]any, error) {
	body := map[string]any{"profile": profile, "recentLogs": recentLogs}
	env, err := c.post(ctx, "/api/internal/recommend", body, c.recommendTimeout)
	if err != nil {
		return nil, err
	}

	var recommendation map[string]any
	if err := json.Unmarshal(env.Data, &recommendation); err != nil || recommendation == nil {
		return nil, &Error{StatusCode: http.StatusBadGateway, Message: "AI service returned an unexpected response.", Err: err}
	}
	return recommendation, nil
}

// RecommendVideos forwards a search query to the AI service video endpoint.
func (c *Client) RecommendVideos(ctx context.Context, query string) ([]map[string]any, error) {
	env, err := c.post(ctx, "/api/youtube/recommend", map[string]string{"query": query}, c.videoTimeout)
	if err != nil {
		return nil, err
	}

	// Accept either {data: [...]} or {data: {youtubeVideos: [...]}}.
	var videos []map[string]any
	if err := json.Unmarshal(env.Data, &videos); err == nil && videos != nil {
		return videos, nil
	}
	var wrapped struct {
		YouTubeVideos []map[string]any `json:"youtubeVideos"`
	}
	if err := json.Unmarshal(env.Data, &wrapped); err == nil && wrapped.YouTubeVideos != nil {
		return wrapped.YouTubeVideos, nil
	}
	return []map[string]any{}, nil
}

func (c *Client) post(ctx context.Context, path string, payload any, timeout time.Duration) (*envelope, error) {
	if c.apiKey == "" {
		return nil, &Error{StatusCode: http.StatusInternalServerError, Message: ErrMissingInternalKey.Error(), Err: ErrMissingInternalKey}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode AI service request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := c.cb.Execute(func() (*upstreamResponse, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(InternalKeyHeader, c.apiKey)
		if id := logging.RequestIDFromContext(ctx); id != "" {
			req.Header.Set("X-Request-ID", id)
		}

		httpResp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer httpResp.Body.Close()

		data, err := io.ReadAll(httpResp.Body)
		if err != nil {
			return nil, err
		}
		out := &upstreamResponse{status: httpResp.StatusCode, body: data}
		// 4xx answers are the caller's problem and do not trip the breaker.
		if httpResp.StatusCode >= http.StatusInternalServerError {
			return out, fmt.Errorf("ai service answered %d", httpResp.StatusCode)
		}
		return out, nil
	})

	if resp != nil && resp.status >= http.StatusBadRequest {
		env := decodeEnvelope(resp.body)
		metrics.UpstreamErrors.WithLabelValues(breakerName, strconv.Itoa(resp.status)).Inc()
		return nil, &Error{StatusCode: resp.status, Message: statusMessage(resp.status, env), Err: err}
	}
	if err != nil {
		metrics.UpstreamErrors.WithLabelValues(breakerName, "transport").Inc()
		logging.Ctx(ctx).Error().Err(err).Str("path", path).Msg("AI service call failed")
		return nil, transportError(err)
	}

	env := decodeEnvelope(resp.body)
	return &env, nil
}

func decodeEnvelope(body []byte) envelope {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return envelope{}
	}
	return env
}

// statusMessage turns an AI service error answer into a user-facing message.
func statusMessage(status int, env envelope) string {
	upstream := env.Message
	if upstream == "" {
		upstream = env.Error
	}

	switch {
	case status == http.StatusForbidden:
		return "AI service rejected the request (403). Ensure INTERNAL_API_KEY is identical for the server and the AI service."
	case status == http.StatusBadRequest:
		if upstream != "" {
			return upstream
		}
		return "AI service: bad request."
	case status >= http.StatusInternalServerError:
		if upstream != "" {
			return upstream
		}
		return "AI service error. Check the AI service logs (e.g. GEMINI_API_KEY, YOUTUBE_API_KEY)."
	case upstream != "":
		return upstream
	default:
		return "AI service request failed."
	}
}

func transportError(err error) *Error {
	var netErr net.Error
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return &Error{StatusCode: http.StatusServiceUnavailable, Message: "AI service is temporarily unavailable. Try again in a moment.", Err: err}
	case errors.Is(err, syscall.ECONNREFUSED):
		return &Error{StatusCode: http.StatusServiceUnavailable, Message: "Cannot reach the AI service. Is it running? Check AI_SERVICE_URL.", Err: err}
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return &Error{StatusCode: http.StatusGatewayTimeout, Message: "AI service timed out. Try again in a moment.", Err: err}
	default:
		return &Error{StatusCode: http.StatusBadGateway, Message: "AI service request failed.", Err: err}
	}
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
