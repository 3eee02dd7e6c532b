// Package retrieval finds the chunks nearest a question and folds them
// into a grounded prompt.
package retrieval

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/paperqa/paperqa/internal/domain"
	"github.com/paperqa/paperqa/internal/metrics"
)

// Service answers similarity queries against the chunk store.
type Service struct {
	store    Store
	embedder Embedder
	log      *zap.Logger
	topK     int
}

// New creates a retrieval service returning at most topK snippets per query.
func New(st Store, embedder Embedder, log *zap.Logger, topK int) *Service {
	if topK <= 0 {
		topK = 5
	}
	return &Service{store: st, embedder: embedder, log: log, topK: topK}
}

// Retrieve embeds the query and returns the nearest chunks in
// descending similarity order. The position of a snippet in the result
// is its citation rank; it is unrelated to the chunk's index within
// its source document.
func (s *Service) Retrieve(ctx context.Context, query string) ([]domain.ContextSnippet, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query is empty: %w", domain.ErrValidation)
	}

	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		metrics.RetrievalRequestsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) != 1 {
		metrics.RetrievalRequestsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("got %d query vectors: %w", len(vectors), domain.ErrEmbeddingProvider)
	}

	hits, err := s.store.Search(ctx, vectors[0], s.topK)
	if err != nil {
		metrics.RetrievalRequestsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("search chunks: %w", err)
	}

	snippets := make([]domain.ContextSnippet, 0, len(hits))
	for _, h := range hits {
		snippets = append(snippets, domain.ContextSnippet{
			Text:       h.Payload.Text,
			ChunkIndex: h.Payload.ChunkIndex,
			Filename:   h.Payload.Filename,
			Score:      h.Score,
		})
	}

	metrics.RetrievalRequestsTotal.WithLabelValues("ok").Inc()
	s.log.Debug("retrieved context", zap.Int("snippets", len(snippets)))
	return snippets, nil
}

// BuildPrompt renders the grounded prompt sent to the model in place of
// the raw question. Context entries are tagged [source#N] by their rank
// in the snippet slice; an empty slice still yields a valid prompt with
// an empty context section.
func BuildPrompt(query string, snippets []domain.ContextSnippet) string {
	entries := make([]string, 0, len(snippets))
	for i, c := range snippets {
		entries = append(entries, fmt.Sprintf(
			"[source#%d, filename=%s, chunk=%d]%s", i, c.Filename, c.ChunkIndex, c.Text,
		))
	}

	return fmt.Sprintf(`## Task
Answer the question using the provided context.

## Answering Rules
- Use only the Context below.
- If uncertain, say so.
- Cite with [source#N].

## Context
%s

## Question
%s

## Output Format
- Respond in Markdown.
- Start with a 2-3 sentence direct answer.
- Then add details with bullet points and source tags [source#N].
`, strings.Join(entries, "\n"), query)
}
