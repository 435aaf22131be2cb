package core

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/generative-ai-go/genai"
	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"

	"github.com/fitflow/fitflow-backend/internal/logging"
	"github.com/fitflow/fitflow-backend/internal/metrics"
)

const (
	DefaultModelName = "gemini-2.5-flash"

	jsonMIMEType        = "application/json"
	recommendationTemp  = float32(0.2)
	recommendationMaxTk = int32(4096)
)

var codeFence = regexp.MustCompile("(?i)```(?:json)?")

// GenerationRequest describes one single-turn call to a generative model.
type GenerationRequest struct {
	Prompt           string
	Temperature      *float32
	MaxOutputTokens  *int32
	ResponseMIMEType string
	ResponseSchema   *genai.Schema
}

// TextModel turns a prompt into raw model text.
type TextModel interface {
	GenerateText(ctx context.Context, req GenerationRequest) (string, error)
}

// GeminiModel is the TextModel backed by the Gemini API.
type GeminiModel struct {
	client *genai.Client
	name   string
}

func NewGeminiModel(ctx context.Context, apiKey, modelName string) (*GeminiModel, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	if modelName == "" {
		modelName = DefaultModelName
	}
	return &GeminiModel{client: client, name: modelName}, nil
}

func (m *GeminiModel) GenerateText(ctx context.Context, req GenerationRequest) (string, error) {
	model := m.client.GenerativeModel(m.name)
	model.GenerationConfig = genai.GenerationConfig{
		MaxOutputTokens:  req.MaxOutputTokens,
		Temperature:      req.Temperature,
		ResponseMIMEType: req.ResponseMIMEType,
		ResponseSchema:   req.ResponseSchema,
	}

	resp, err := model.GenerateContent(ctx, genai.Text(req.Prompt))
	if err != nil {
		return "", err
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini response was empty or had no valid candidates")
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			text.WriteString(string(txt))
		}
	}
	return text.String(), nil
}

func (m *GeminiModel) Close() {
	if m.client != nil {
		if err := m.client.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing GenAI client")
		} else {
			logging.Info().Msg("GenAI client closed")
		}
	}
}

// LLMService wraps a TextModel with the JSON discipline the recommendation pipeline needs.
type LLMService struct {
	model TextModel
}

// NewLLMService returns a service over model. A nil model makes every call fail
// with ErrMissingAPIKey, so a missing credential surfaces per request.
func NewLLMService(model TextModel) *LLMService {
	return &LLMService{model: model}
}

// GenerateJSON runs prompt in JSON mode and returns the fence-stripped text,
// guaranteed to be valid JSON.
func (s *LLMService) GenerateJSON(ctx context.Context, kind, prompt string) (string, error) {
	temp, maxTokens := recommendationTemp, recommendationMaxTk
	text, err := s.generate(ctx, kind, GenerationRequest{
		Prompt:           prompt,
		Temperature:      &temp,
		MaxOutputTokens:  &maxTokens,
		ResponseMIMEType: jsonMIMEType,
	})
	if err != nil {
		return "", err
	}

	text = StripCodeFences(text)
	if !json.Valid([]byte(text)) {
		logging.Ctx(ctx).Error().Str("kind", kind).Str("raw", truncate(text, 500)).Msg("Gemini returned invalid JSON")
		metrics.GenerationRequests.WithLabelValues(kind, "invalid_json").Inc()
		return "", ErrInvalidJSON
	}
	return text, nil
}

// GenerateIndexArray asks for a JSON array of integers and returns the raw, fence-stripped text.
func (s *LLMService) GenerateIndexArray(ctx context.Context, prompt string) (string, error) {
	text, err := s.generate(ctx, "rerank", GenerationRequest{
		Prompt:           prompt,
		ResponseMIMEType: jsonMIMEType,
		ResponseSchema: &genai.Schema{
			Type:  genai.TypeArray,
			Items: &genai.Schema{Type: genai.TypeInteger},
		},
	})
	if err != nil {
		return "", err
	}
	return StripCodeFences(text), nil
}

func (s *LLMService) generate(ctx context.Context, kind string, req GenerationRequest) (string, error) {
	if s == nil || s.model == nil {
		metrics.GenerationRequests.WithLabelValues(kind, "config_error").Inc()
		return "", ErrMissingAPIKey
	}

	start := time.Now()
	text, err := s.model.GenerateText(ctx, req)
	metrics.GenerationDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.GenerationRequests.WithLabelValues(kind, "error").Inc()
		logging.Ctx(ctx).Error().Err(err).Str("kind", kind).Msg("Gemini request failed")
		return "", classifyGenerationError(err)
	}

	metrics.GenerationRequests.WithLabelValues(kind, "ok").Inc()
	logging.Ctx(ctx).Debug().Str("kind", kind).Dur("elapsed", time.Since(start)).Msg("Gemini responded")
	return text, nil
}

func classifyGenerationError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	if isNotFound(err) {
		return fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	return fmt.Errorf("gemini request failed: %w", err)
}

func isNotFound(err error) bool {
	if ae, ok := apierror.FromError(err); ok {
		if ae.HTTPCode() == 404 || ae.GRPCStatus().Code() == codes.NotFound {
			return true
		}
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == 404 {
		return true
	}
	return strings.Contains(err.Error(), "404")
}

// StripCodeFences removes markdown code fences the model may emit around JSON.
func StripCodeFences(text string) string {
	return strings.TrimSpace(codeFence.ReplaceAllString(text, ""))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
