package core

import (
	"context"

	"github.com/fitflow/fitflow-backend/internal/logging"
	"github.com/fitflow/fitflow-backend/internal/metrics"
	"github.com/fitflow/fitflow-backend/internal/store"
)

const DefaultCandidateLimit = 8

// Corpus is the read side of the knowledge source store.
type Corpus interface {
	FindByTags(ctx context.Context, tags []string, limit int) ([]store.ScoredSource, error)
	SampleSources(ctx context.Context, limit int) ([]store.Source, error)
}

type RetrievalService struct {
	corpus   Corpus
	synonyms SynonymTable
}

// NewRetrievalService returns a retriever over corpus. A nil corpus makes every retrieval empty.
func NewRetrievalService(corpus Corpus, synonyms SynonymTable) *RetrievalService {
	return &RetrievalService{corpus: corpus, synonyms: synonyms}
}

// RetrieveCandidates returns at most limit sources ranked by how many of the
// (synonym-expanded) tags they carry. When no tag is usable or nothing matches,
// a random corpus sample is returned instead. Failures are logged, never returned.
func (s *RetrievalService) RetrieveCandidates(ctx context.Context, tags []string, limit int) []store.ScoredSource {
	if limit <= 0 {
		limit = DefaultCandidateLimit
	}
	if s.corpus == nil {
		logging.Ctx(ctx).Debug().Msg("No corpus configured, retrieval returns no candidates")
		return []store.ScoredSource{}
	}

	validTags := store.NormalizeTags(tags)
	if len(validTags) == 0 {
		logging.Ctx(ctx).Info().Msg("No valid tags for retrieval, using fallback sample")
		return s.fallback(ctx, limit, "no_tags")
	}

	query := store.NormalizeTags(append(validTags, s.synonyms.Expand(validTags)...))
	sources, err := s.corpus.FindByTags(ctx, query, limit)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Strs("tags", validTags).Msg("Tag retrieval failed, using fallback sample")
		return s.fallback(ctx, limit, "error")
	}
	if len(sources) == 0 {
		logging.Ctx(ctx).Info().Strs("tags", validTags).Msg("No sources matched tags, using fallback sample")
		return s.fallback(ctx, limit, "no_match")
	}
	if len(sources) > limit {
		sources = sources[:limit]
	}

	logging.Ctx(ctx).Debug().Int("count", len(sources)).Strs("tags", validTags).Msg("Retrieved candidate sources")
	return sources
}

func (s *RetrievalService) fallback(ctx context.Context, limit int, reason string) []store.ScoredSource {
	metrics.RetrievalFallbacks.WithLabelValues(reason).Inc()

	sample, err := s.corpus.SampleSources(ctx, limit)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("Fallback sample failed")
		return []store.ScoredSource{}
	}
	if len(sample) > limit {
		sample = sample[:limit]
	}
	out := make([]store.ScoredSource, 0, len(sample))
	for _, src := range sample {
		out = append(out, store.ScoredSource{Source: src})
	}
	return out
}


// ProfileTags derives retrieval tags from the profile goal and diet type.
func ProfileTags(profile *store.Profile) []string {
	if profile == nil {
		return nil
	}
	return store.NormalizeTags([]string{profile.Goals.Primary, profile.Preferences.DietType})
}

// LogTags returns the workout types of logs, newest first.
func LogTags(logs []store.LogEntry) []string {
	tags := make([]string, 0, len(logs))
	for _, l := range logs {
		if l.Workout != nil {
			tags = append(tags, l.Workout.Type)
		}
	}
	return store.NormalizeTags(tags)
}
