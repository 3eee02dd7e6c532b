package ingest

import (
	"context"

	"github.com/paperqa/paperqa/internal/store"
)

// Store persists chunk records and answers filename uniqueness checks.
type Store interface {
	Upsert(ctx context.Context, records []store.Record) error
	FilenameExists(ctx context.Context, filename string) (bool, error)
}

// Embedder vectorizes texts, one vector per text in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}
