// Package embedding batches text through a vector provider while
// preserving input order.
package embedding

import (
	"context"
	"fmt"

	"github.com/paperqa/paperqa/internal/domain"
)

// Provider turns a slice of texts into one vector per text, in order.
type Provider interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Batcher splits large inputs into provider-sized batches.
type Batcher struct {
	provider  Provider
	batchSize int
}

// NewBatcher creates a batcher. batchSize must be positive.
func NewBatcher(provider Provider, batchSize int) *Batcher {
	if batchSize <= 0 {
		batchSize = 32
	}
	return &Batcher{provider: provider, batchSize: batchSize}
}

// Embed vectorizes texts in consecutive batches of at most batchSize,
// returning one vector per input in the same order. Any batch failure
// aborts the whole call: callers never see a partial result.
func (b *Batcher) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += b.batchSize {
		end := start + b.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		vectors, err := b.provider.EmbedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("embed batch %d: %w", start/b.batchSize, err)
		}
		if len(vectors) != end-start {
			return nil, fmt.Errorf(
				"embed batch %d: got %d vectors for %d texts: %w",
				start/b.batchSize, len(vectors), end-start, domain.ErrEmbeddingProvider,
			)
		}
		out = append(out, vectors...)
	}
	return out, nil
}
