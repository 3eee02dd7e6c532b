package retrieval

import (
	"context"

	"github.com/paperqa/paperqa/internal/store"
)

// Store answers nearest-neighbour queries over stored chunks.
type Store interface {
	Search(ctx context.Context, vector []float32, limit int) ([]store.Hit, error)
}

// Embedder vectorizes texts, one vector per text in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}
