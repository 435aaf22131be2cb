package core

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/fitflow/fitflow-backend/internal/cache"
	"github.com/fitflow/fitflow-backend/internal/logging"
	"github.com/fitflow/fitflow-backend/internal/metrics"
	"github.com/fitflow/fitflow-backend/internal/store"
)

const DefaultGenerationTimeout = 20 * time.Second

// RecommendRequest is the input of every recommendation operation.
type RecommendRequest struct {
	Profile    *store.Profile   `json:"profile"`
	RecentLogs []store.LogEntry `json:"recentLogs"`
}

type ContextBuilder interface {
	BuildContext(ctx context.Context, profile *store.Profile, logs []store.LogEntry) string
}

type JSONGenerator interface {
	GenerateJSON(ctx context.Context, kind, prompt string) (string, error)
}

type RecommendOptions struct {
	GenerationTimeout time.Duration
	// Cache and Group are optional; when both are set identical requests are
	// answered from cache within its TTL and concurrent ones share one generation.
	Cache *cache.Cache
	Group *singleflight.Group
}

// RecommendService sequences context building, prompt building and generation.
type RecommendService struct {
	rag     ContextBuilder
	llm     JSONGenerator
	timeout time.Duration
	cache   *cache.Cache
	group   *singleflight.Group
}

func NewRecommendService(rag ContextBuilder, llm JSONGenerator, opts RecommendOptions) *RecommendService {
	if opts.GenerationTimeout <= 0 {
		opts.GenerationTimeout = DefaultGenerationTimeout
	}
	return &RecommendService{
		rag:     rag,
		llm:     llm,
		timeout: opts.GenerationTimeout,
		cache:   opts.Cache,
		group:   opts.Group,
	}
}

// Recommend returns the plan and narrative merged into one object. Both
// generations must succeed; there is no partial result.
func (s *RecommendService) Recommend(ctx context.Context, req RecommendRequest) (map[string]any, error) {
	if req.Profile == nil {
		return nil, ErrProfileRequired
	}
	if s.cache == nil || s.group == nil {
		return s.recommend(ctx, req)
	}

	key := cache.GenerateKey("recommend", req)
	if cached, ok := s.cache.Get(key); ok {
		metrics.RecommendCache.WithLabelValues("hit").Inc()
		logging.Ctx(ctx).Debug().Str("key", key).Msg("Recommendation served from cache")
		return maps.Clone(cached.(map[string]any)), nil
	}

	// The shared generation outlives any single caller; its own deadlines bound it.
	shared := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (any, error) {
		result, err := s.recommend(shared, req)
		if err != nil {
			return nil, err
		}
		s.cache.Set(key, result)
		return result, nil
	})

	select {
	case res := <-ch:
		if res.Shared {
			metrics.RecommendCache.WithLabelValues("shared").Inc()
		} else {
			metrics.RecommendCache.WithLabelValues("miss").Inc()
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return maps.Clone(res.Val.(map[string]any)), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *RecommendService) recommend(ctx context.Context, req RecommendRequest) (map[string]any, error) {
	contextText := s.rag.BuildContext(ctx, req.Profile, req.RecentLogs)
	planPrompt := BuildPlanPrompt(req.Profile, contextText)
	narrativePrompt := BuildNarrativePrompt(req.Profile, contextText)

	var plan, narrative map[string]any
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		plan, err = s.generateObject(gctx, "plan", planPrompt)
		return err
	})
	g.Go(func() error {
		var err error
		narrative, err = s.generateObject(gctx, "narrative", narrativePrompt)
		return err
	})
	if err := g.Wait(); err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("Recommendation generation failed")
		return nil, err
	}

	return MergeShallow(plan, narrative), nil
}

// GeneratePlan runs only the plan generation step.
func (s *RecommendService) GeneratePlan(ctx context.Context, req RecommendRequest) (map[string]any, error) {
	if req.Profile == nil {
		return nil, ErrProfileRequired
	}
	contextText := s.rag.BuildContext(ctx, req.Profile, req.RecentLogs)
	return s.generateObject(ctx, "plan", BuildPlanPrompt(req.Profile, contextText))
}

// GenerateNarrative runs only the narrative generation step.
func (s *RecommendService) GenerateNarrative(ctx context.Context, req RecommendRequest) (map[string]any, error) {
	if req.Profile == nil {
		return nil, ErrProfileRequired
	}
	contextText := s.rag.BuildContext(ctx, req.Profile, req.RecentLogs)
	return s.generateObject(ctx, "narrative", BuildNarrativePrompt(req.Profile, contextText))
}

type generation struct {
	text string
	err  error
}

// generateObject runs one generation under the per-call deadline and decodes
// the result as a JSON object. The deadline cancels the underlying request.
func (s *RecommendService) generateObject(ctx context.Context, kind, prompt string) (map[string]any, error) {
	gctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	done := make(chan generation, 1)
	go func() {
		text, err := s.llm.GenerateJSON(gctx, kind, prompt)
		done <- generation{text: text, err: err}
	}()

	var res generation
	select {
	case res = <-done:
	case <-gctx.Done():
		res.err = gctx.Err()
	}

	if res.err != nil {
		if ctx.Err() == nil && errors.Is(gctx.Err(), context.DeadlineExceeded) {
			metrics.GenerationRequests.WithLabelValues(kind, "timeout").Inc()
			return nil, fmt.Errorf("%w: %s generation exceeded %s", ErrGenerationTimeout, kind, s.timeout)
		}
		return nil, res.err
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(res.text), &obj); err != nil || obj == nil {
		return nil, fmt.Errorf("%w: %s response is not a JSON object", ErrInvalidJSON, kind)
	}
	return obj, nil
}

// MergeShallow returns the union of the objects' top-level keys; later objects win.
func MergeShallow(objects ...map[string]any) map[string]any {
	merged := make(map[string]any)
	for _, obj := range objects {
		for k, v := range obj {
			merged[k] = v
		}
	}
	return merged
}
