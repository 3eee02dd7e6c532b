package files

import (
	"context"

	"github.com/paperqa/paperqa/internal/store"
)

// Store reads and deletes chunk records.
type Store interface {
	Scroll(ctx context.Context, cursor string, limit int) (records []store.Record, next string, err error)
	FilenameExists(ctx context.Context, filename string) (bool, error)
	DeleteByFileID(ctx context.Context, fileID string) error
}
