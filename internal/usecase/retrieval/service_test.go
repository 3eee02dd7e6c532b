package retrieval

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/paperqa/paperqa/internal/domain"
	"github.com/paperqa/paperqa/internal/store"
)

type mockStore struct {
	hits      []store.Hit
	err       error
	lastLimit int
}

func (m *mockStore) Search(_ context.Context, _ []float32, limit int) ([]store.Hit, error) {
	m.lastLimit = limit
	return m.hits, m.err
}

type mockEmbedder struct {
	err error
}

func (m *mockEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{0.1, 0.2}
	}
	return out, nil
}

func hit(text, filename string, chunkIndex int, score float64) store.Hit {
	return store.Hit{
		Score: score,
		Payload: store.Payload{
			Text:       text,
			ChunkIndex: chunkIndex,
			Filename:   filename,
		},
	}
}

func TestRetrieve_RankOrderPreserved(t *testing.T) {
	st := &mockStore{hits: []store.Hit{
		hit("most similar", "b.pdf", 7, 0.95),
		hit("second", "a.pdf", 2, 0.80),
		hit("third", "a.pdf", 0, 0.60),
	}}
	svc := New(st, &mockEmbedder{}, zap.NewNop(), 3)

	snippets, err := svc.Retrieve(context.Background(), "what is this about?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.lastLimit != 3 {
		t.Errorf("search limit = %d, want 3", st.lastLimit)
	}
	if len(snippets) != 3 {
		t.Fatalf("expected 3 snippets, got %d", len(snippets))
	}
	if snippets[0].Text != "most similar" || snippets[2].Text != "third" {
		t.Errorf("snippet order broken: %+v", snippets)
	}
	// the citation rank is the slice position, not the chunk index
	if snippets[0].ChunkIndex != 7 {
		t.Errorf("chunk index must survive untouched, got %d", snippets[0].ChunkIndex)
	}
}

func TestRetrieve_EmptyQuery(t *testing.T) {
	svc := New(&mockStore{}, &mockEmbedder{}, zap.NewNop(), 3)

	_, err := svc.Retrieve(context.Background(), "   ")
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestRetrieve_EmbedderError(t *testing.T) {
	svc := New(&mockStore{}, &mockEmbedder{err: domain.ErrEmbeddingProvider}, zap.NewNop(), 3)

	_, err := svc.Retrieve(context.Background(), "question")
	if !errors.Is(err, domain.ErrEmbeddingProvider) {
		t.Errorf("expected ErrEmbeddingProvider, got %v", err)
	}
}

func TestRetrieve_SearchError(t *testing.T) {
	st := &mockStore{err: domain.ErrStoreRead}
	svc := New(st, &mockEmbedder{}, zap.NewNop(), 3)

	_, err := svc.Retrieve(context.Background(), "question")
	if !errors.Is(err, domain.ErrStoreRead) {
		t.Errorf("expected ErrStoreRead, got %v", err)
	}
}

func TestBuildPrompt(t *testing.T) {
	snippets := []domain.ContextSnippet{
		{Text: "alpha", Filename: "a.pdf", ChunkIndex: 4},
		{Text: "beta", Filename: "b.txt", ChunkIndex: 0},
	}
	prompt := BuildPrompt("why?", snippets)

	if !strings.Contains(prompt, "[source#0, filename=a.pdf, chunk=4]alpha") {
		t.Errorf("missing first context entry:\n%s", prompt)
	}
	if !strings.Contains(prompt, "[source#1, filename=b.txt, chunk=0]beta") {
		t.Errorf("missing second context entry:\n%s", prompt)
	}
	if !strings.Contains(prompt, "## Question\nwhy?") {
		t.Errorf("missing question section:\n%s", prompt)
	}
	if strings.Index(prompt, "[source#0") > strings.Index(prompt, "[source#1") {
		t.Errorf("context entries out of rank order")
	}
}

func TestBuildPrompt_EmptyContext(t *testing.T) {
	prompt := BuildPrompt("why?", nil)

	for _, section := range []string{"## Task", "## Answering Rules", "## Context", "## Question", "## Output Format"} {
		if !strings.Contains(prompt, section) {
			t.Errorf("missing section %q", section)
		}
	}
	// the template's instruction lines mention [source#N]; only rank-zero
	// entries betray actual context
	if strings.Contains(prompt, "[source#0") {
		t.Errorf("unexpected context entry in empty prompt")
	}
	if !strings.Contains(prompt, "## Context\n\n\n## Question") {
		t.Errorf("context section body must be empty:\n%s", prompt)
	}
}
