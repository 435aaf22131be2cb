package core

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/goccy/go-json"

	"github.com/fitflow/fitflow-backend/internal/logging"
	"github.com/fitflow/fitflow-backend/internal/store"
)

const (
	rerankMaxCandidates = 10
	rerankSnippetChars  = 200
)

// IndexGenerator produces a JSON array of candidate indices for a ranking prompt.
type IndexGenerator interface {
	GenerateIndexArray(ctx context.Context, prompt string) (string, error)
}

type RerankService struct {
	llm IndexGenerator
}

func NewRerankService(llm IndexGenerator) *RerankService {
	return &RerankService{llm: llm}
}

// Rerank asks the model to order candidates by relevance to profile. Only the
// first ten candidates are shown to the model. Any failure, including a
// response that is not a JSON array, yields the identity order.
func (s *RerankService) Rerank(ctx context.Context, profile *store.Profile, candidates []store.ScoredSource) []int {
	identity := IdentityOrder(len(candidates))
	if len(candidates) == 0 || s.llm == nil {
		return identity
	}

	prompt, err := buildRerankPrompt(profile, candidates)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("Could not build rerank prompt, using default order")
		return identity
	}

	text, err := s.llm.GenerateIndexArray(ctx, prompt)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("Gemini rerank failed, using default order")
		return identity
	}

	order, ok := ParseIndexArray(text)
	if !ok {
		logging.Ctx(ctx).Warn().Str("raw", truncate(text, 200)).Msg("Rerank response was not a JSON array, using default order")
		return identity
	}
	return order
}

func buildRerankPrompt(profile *store.Profile, candidates []store.ScoredSource) (string, error) {
	userContext, err := json.Marshal(map[string]any{"profile": profile})
	if err != nil {
		return "", fmt.Errorf("failed to encode user context: %w", err)
	}

	if len(candidates) > rerankMaxCandidates {
		candidates = candidates[:rerankMaxCandidates]
	}
	lines := make([]string, 0, len(candidates))
	for i, c := range candidates {
		lines = append(lines, fmt.Sprintf("[%d] %s: %s", i, c.Title, truncate(c.Content, rerankSnippetChars)))
	}

	return fmt.Sprintf(`
User context:
%s

Sources:
%s

You are a ranking system. Return ONLY a JSON array of integers representing the indices of the most relevant sources, in order of relevance.
Example: [0, 3, 1]
`, userContext, strings.Join(lines, "\n")), nil
}

// ParseIndexArray decodes a JSON array and keeps only its integral numbers.
// ok is false when text is not a JSON array.
func ParseIndexArray(text string) ([]int, bool) {
	var raw []any
	if err := json.Unmarshal([]byte(StripCodeFences(text)), &raw); err != nil {
		return nil, false
	}
	if raw == nil {
		return nil, false
	}

	out := make([]int, 0, len(raw))
	for _, v := range raw {
		n, ok := v.(float64)
		if !ok || n != math.Trunc(n) || math.IsInf(n, 0) {
			continue
		}
		out = append(out, int(n))
	}
	return out, true
}

// IdentityOrder returns [0, 1, ..., n-1].
func IdentityOrder(n int) []int {
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	return order
}
