package core

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/fitflow/fitflow-backend/internal/store"
)

// stubModel is a TextModel whose answers come from respond.
type stubModel struct {
	mu      sync.Mutex
	calls   []GenerationRequest
	respond func(ctx context.Context, req GenerationRequest) (string, error)
}

func (m *stubModel) GenerateText(ctx context.Context, req GenerationRequest) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	m.mu.Unlock()
	return m.respond(ctx, req)
}

func (m *stubModel) Calls() []GenerationRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]GenerationRequest(nil), m.calls...)
}

func fixedModel(text string, err error) *stubModel {
	return &stubModel{respond: func(context.Context, GenerationRequest) (string, error) { return text, err }}
}

// fakeCorpus serves canned results and records queries.
type fakeCorpus struct {
	mu         sync.Mutex
	matches    []store.ScoredSource
	sample     []store.Source
	findErr    error
	sampleErr  error
	queries    [][]string
	sampleHits int
}

func (c *fakeCorpus) FindByTags(ctx context.Context, tags []string, limit int) ([]store.ScoredSource, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queries = append(c.queries, tags)
	if c.findErr != nil {
		return nil, c.findErr
	}
	out := c.matches
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (c *fakeCorpus) SampleSources(ctx context.Context, limit int) ([]store.Source, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sampleHits++
	if c.sampleErr != nil {
		return nil, c.sampleErr
	}
	out := c.sample
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type panickingCorpus struct{}

func (panickingCorpus) FindByTags(context.Context, []string, int) ([]store.ScoredSource, error) {
	panic("corpus exploded")
}

func (panickingCorpus) SampleSources(context.Context, int) ([]store.Source, error) {
	panic("corpus exploded")
}

var errCorpusDown = errors.New("corpus down")

func scoredSources(n int) []store.ScoredSource {
	out := make([]store.ScoredSource, n)
	for i := range out {
		out[i] = store.ScoredSource{
			Source:     store.Source{ID: fmt.Sprintf("s%d", i), Title: fmt.Sprintf("Source %d", i), Content: fmt.Sprintf("content %d", i)},
			MatchScore: n - i,
		}
	}
	return out
}

func newCorpusStore(t *testing.T, sources ...store.Source) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "corpus.db"))
	if err != nil {
		t.Fatalf("Failed to create corpus store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	for i := range sources {
		if err := s.CreateSource(context.Background(), &sources[i]); err != nil {
			t.Fatalf("CreateSource failed: %v", err)
		}
	}
	return s
}

func mustSynonyms(t *testing.T) SynonymTable {
	t.Helper()
	table, err := LoadSynonyms("")
	if err != nil {
		t.Fatalf("LoadSynonyms failed: %v", err)
	}
	return table
}
