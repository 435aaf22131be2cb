package core

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/fitflow/fitflow-backend/internal/store"
)

func newRAG(corpus Corpus, model TextModel, opts RAGOptions) *RAGService {
	llm := NewLLMService(model)
	return NewRAGService(NewRetrievalService(corpus, SynonymTable{}), NewRerankService(llm), opts)
}

var weightLossProfile = &store.Profile{
	Goals:       store.Goals{Primary: "weight loss"},
	Preferences: store.Preferences{DietType: "vegetarian"},
}

func TestAssembleContext(t *testing.T) {
	long := strings.Repeat("a", 600)
	got := AssembleContext([]store.ScoredSource{
		{Source: store.Source{Title: "First", Content: "short"}},
		{Source: store.Source{Title: "Second", Content: long}},
	})
	want := "Title: First\nshort\n\n---\n\nTitle: Second\n" + strings.Repeat("a", 500)
	if got != want {
		t.Errorf("unexpected context:\n%q\nwant\n%q", got, want)
	}
	if AssembleContext(nil) != "" {
		t.Error("expected empty context for no sources")
	}
}

func TestBuildContextSkipsRerankForFewCandidates(t *testing.T) {
	model := fixedModel("[2, 1, 0]", nil)
	rag := newRAG(&fakeCorpus{matches: scoredSources(3)}, model, RAGOptions{})

	got := rag.BuildContext(context.Background(), weightLossProfile, nil)
	if len(model.Calls()) != 0 {
		t.Error("reranker must not run for 3 or fewer candidates")
	}
	if !strings.HasPrefix(got, "Title: Source 0") {
		t.Errorf("expected original order, got %q", got)
	}
}

func TestBuildContextUsesRerankOrder(t *testing.T) {
	model := fixedModel("[4, 99, -1, 4, 2, 0]", nil)
	rag := newRAG(&fakeCorpus{matches: scoredSources(6)}, model, RAGOptions{})

	got := rag.BuildContext(context.Background(), weightLossProfile, nil)
	parts := strings.Split(got, contextSeparator)
	if len(parts) != 3 {
		t.Fatalf("expected 3 sources in context, got %d", len(parts))
	}
	for i, want := range []string{"Source 4", "Source 2", "Source 0"} {
		if !strings.HasPrefix(parts[i], "Title: "+want) {
			t.Errorf("part %d = %q, want title %s", i, parts[i], want)
		}
	}
}

func TestBuildContextUnresolvableRerankUsesTopThree(t *testing.T) {
	model := fixedModel("[42, 17]", nil)
	rag := newRAG(&fakeCorpus{matches: scoredSources(5)}, model, RAGOptions{})

	got := rag.BuildContext(context.Background(), weightLossProfile, nil)
	if !strings.HasPrefix(got, "Title: Source 0") || strings.Count(got, "Title: ") != 3 {
		t.Errorf("expected top three in original order, got %q", got)
	}
}

func TestBuildContextRerankTimeout(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	// Ignores cancellation to prove the caller does not wait for it.
	model := &stubModel{respond: func(ctx context.Context, req GenerationRequest) (string, error) {
		<-release
		return "[4, 3, 2]", nil
	}}
	rag := newRAG(&fakeCorpus{matches: scoredSources(5)}, model, RAGOptions{RerankTimeout: 50 * time.Millisecond})

	start := time.Now()
	got := rag.BuildContext(context.Background(), weightLossProfile, nil)
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("BuildContext blocked for %s past the rerank deadline", elapsed)
	}
	parts := strings.Split(got, contextSeparator)
	if len(parts) != 3 || !strings.HasPrefix(parts[0], "Title: Source 0") || !strings.HasPrefix(parts[2], "Title: Source 2") {
		t.Errorf("expected identity order after timeout, got %q", got)
	}
}

func TestBuildContextRerankCancelledOnTimeout(t *testing.T) {
	cancelled := make(chan struct{})
	model := &stubModel{respond: func(ctx context.Context, req GenerationRequest) (string, error) {
		<-ctx.Done()
		close(cancelled)
		return "", ctx.Err()
	}}
	rag := newRAG(&fakeCorpus{matches: scoredSources(5)}, model, RAGOptions{RerankTimeout: 20 * time.Millisecond})

	rag.BuildContext(context.Background(), weightLossProfile, nil)
	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("rerank call was not cancelled after the deadline")
	}
}

func TestBuildContextEmptyCorpus(t *testing.T) {
	corpus := newCorpusStore(t)
	rag := NewRAGService(NewRetrievalService(corpus, mustSynonyms(t)), NewRerankService(NewLLMService(nil)), RAGOptions{})

	if got := rag.BuildContext(context.Background(), weightLossProfile, nil); got != "" {
		t.Errorf("expected empty context, got %q", got)
	}
}

func TestBuildContextRecoversFromPanic(t *testing.T) {
	rag := newRAG(panickingCorpus{}, nil, RAGOptions{})
	if got := rag.BuildContext(context.Background(), weightLossProfile, nil); got != "" {
		t.Errorf("expected empty context after panic, got %q", got)
	}
}

func TestBuildContextLogTags(t *testing.T) {
	logs := []store.LogEntry{{Workout: &store.Workout{Type: "Cycling"}}}

	off := &fakeCorpus{}
	newRAG(off, nil, RAGOptions{}).BuildContext(context.Background(), weightLossProfile, logs)
	if len(off.queries) != 1 || strings.Contains(strings.Join(off.queries[0], ","), "cycling") {
		t.Errorf("log tags must be ignored by default, got %v", off.queries)
	}

	on := &fakeCorpus{}
	newRAG(on, nil, RAGOptions{UseLogTags: true}).BuildContext(context.Background(), weightLossProfile, logs)
	if len(on.queries) != 1 || !strings.Contains(strings.Join(on.queries[0], ","), "cycling") {
		t.Errorf("expected log tags in query when enabled, got %v", on.queries)
	}
}
