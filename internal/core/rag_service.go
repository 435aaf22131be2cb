package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fitflow/fitflow-backend/internal/logging"
	"github.com/fitflow/fitflow-backend/internal/metrics"
	"github.com/fitflow/fitflow-backend/internal/store"
)

const (
	NumContextSources    = 3 // Number of sources assembled into the prompt context
	contextSnippetChars  = 500
	contextSeparator     = "\n\n---\n\n"
	DefaultRerankTimeout = 4 * time.Second
)

type RAGOptions struct {
	// UseLogTags adds workout types from recent logs to the retrieval tags.
	UseLogTags    bool
	RerankTimeout time.Duration
}

// RAGService assembles the reference context shared by the plan and narrative prompts.
type RAGService struct {
	retrieval *RetrievalService
	reranker  *RerankService
	opts      RAGOptions
}

func NewRAGService(retrieval *RetrievalService, reranker *RerankService, opts RAGOptions) *RAGService {
	if opts.RerankTimeout <= 0 {
		opts.RerankTimeout = DefaultRerankTimeout
	}
	return &RAGService{retrieval: retrieval, reranker: reranker, opts: opts}
}

// BuildContext retrieves, optionally reranks, and formats the top sources for
// profile. It never fails: any problem degrades to an empty context.
func (s *RAGService) BuildContext(ctx context.Context, profile *store.Profile, logs []store.LogEntry) (contextText string) {
	defer func() {
		if r := recover(); r != nil {
			logging.Ctx(ctx).Error().Interface("panic", r).Msg("Context build skipped")
			contextText = ""
		}
	}()

	if s == nil || s.retrieval == nil {
		return ""
	}

	tags := ProfileTags(profile)
	if s.opts.UseLogTags {
		tags = append(tags, LogTags(logs)...)
	}

	candidates := s.retrieval.RetrieveCandidates(ctx, tags, DefaultCandidateLimit)
	if len(candidates) == 0 {
		logging.Ctx(ctx).Info().Msg("No candidate sources, continuing without context")
		return ""
	}

	selected := s.selectSources(ctx, profile, candidates)
	logging.Ctx(ctx).Info().Int("candidates", len(candidates)).Int("selected", len(selected)).Msg("Built recommendation context")
	return AssembleContext(selected)
}

func (s *RAGService) selectSources(ctx context.Context, profile *store.Profile, candidates []store.ScoredSource) []store.ScoredSource {
	top := candidates
	if len(top) > NumContextSources {
		top = top[:NumContextSources]
	}
	if len(candidates) <= NumContextSources || s.reranker == nil {
		metrics.RerankOutcomes.WithLabelValues("skipped").Inc()
		return top
	}

	order := s.rerankWithDeadline(ctx, profile, candidates)
	selected := pickByOrder(candidates, order, NumContextSources)
	if len(selected) == 0 {
		return top
	}
	return selected
}

// rerankWithDeadline bounds the reranker by RerankTimeout. On expiry the
// rerank call's context is cancelled and the identity order is returned.
func (s *RAGService) rerankWithDeadline(ctx context.Context, profile *store.Profile, candidates []store.ScoredSource) []int {
	rctx, cancel := context.WithTimeout(ctx, s.opts.RerankTimeout)
	defer cancel()

	result := make(chan []int, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logging.Ctx(ctx).Error().Interface("panic", r).Msg("Reranker panicked")
				result <- nil
			}
		}()
		result <- s.reranker.Rerank(rctx, profile, candidates)
	}()

	select {
	case order := <-result:
		if order == nil {
			metrics.RerankOutcomes.WithLabelValues("identity").Inc()
			return IdentityOrder(len(candidates))
		}
		metrics.RerankOutcomes.WithLabelValues("ranked").Inc()
		return order
	case <-rctx.Done():
		metrics.RerankOutcomes.WithLabelValues("timeout").Inc()
		logging.Ctx(ctx).Warn().Dur("timeout", s.opts.RerankTimeout).Msg("Rerank timed out, using default order")
		return IdentityOrder(len(candidates))
	}
}

// pickByOrder resolves indices against candidates, skipping out-of-range and repeated ones.
func pickByOrder(candidates []store.ScoredSource, order []int, n int) []store.ScoredSource {
	seen := make(map[int]struct{}, n)
	out := make([]store.ScoredSource, 0, n)
	for _, i := range order {
		if len(out) == n {
			break
		}
		if i < 0 || i >= len(candidates) {
			continue
		}
		if _, dup := seen[i]; dup {
			continue
		}
		seen[i] = struct{}{}
		out = append(out, candidates[i])
	}
	return out
}

// AssembleContext formats each source as "Title: {title}\n{content}" with
// content cut to 500 characters, joined by a horizontal-rule separator.
func AssembleContext(sources []store.ScoredSource) string {
	parts := make([]string, 0, len(sources))
	for _, src := range sources {
		parts = append(parts, fmt.Sprintf("Title: %s\n%s", src.Title, truncate(src.Content, contextSnippetChars)))
	}
	return strings.Join(parts, contextSeparator)
}
