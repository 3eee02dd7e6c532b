// Package store defines the vector store contract. The similarity engine
// itself is external; drivers in the subpackages adapt Qdrant (REST) and
// Redis (RediSearch via rueidis) to this surface.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/paperqa/paperqa/internal/domain"
)

// Payload is the typed record payload. Legacy or malformed records may come
// back with FileID or Filename empty; readers skip those instead of failing.
type Payload struct {
	Text       string
	ChunkIndex int
	Filename   string
	FileID     string
}

// Record is one stored point: a fresh unique id, a fixed-dimension vector and
// the chunk payload. Records are written once and never mutated; deletion
// happens only through a file_id filter.
type Record struct {
	ID      string
	Vector  []float32
	Payload Payload
}

// Hit is one ranked search result. Vectors are never fetched back.
type Hit struct {
	ID      string
	Score   float64
	Payload Payload
}

// Store is the capability surface of the external vector store. Every method
// honors the driver's per-call timeout; deadline hits surface as
// domain.ErrTimeout, other failures as domain.ErrStoreWrite (Upsert) or
// domain.ErrStoreRead (everything else).
type Store interface {
	// EnsureCollection creates the collection with the given vector size and
	// cosine distance if it does not exist yet.
	EnsureCollection(ctx context.Context, vectorSize int) error
	// Upsert writes records with a durability-confirmed acknowledgment.
	Upsert(ctx context.Context, records []Record) error
	// Search returns the top-limit hits by descending similarity score, with
	// payloads and without vectors.
	Search(ctx context.Context, vector []float32, limit int) ([]Hit, error)
	// Scroll pages through the whole collection. cursor is opaque; the empty
	// string starts from the beginning, and an empty next cursor means the
	// scan is done.
	Scroll(ctx context.Context, cursor string, limit int) (records []Record, next string, err error)
	// FilenameExists runs an exact-match filename filter with limit 1 and no
	// payload fetch.
	FilenameExists(ctx context.Context, filename string) (bool, error)
	// DeleteByFileID removes every record whose file_id matches, durably.
	DeleteByFileID(ctx context.Context, fileID string) error
	// Ping checks store connectivity.
	Ping(ctx context.Context) error
	Close()
}

// WrapRead classifies a read-path driver error (search/scroll/delete/exists).
func WrapRead(op string, err error) error {
	return wrap(op, err, domain.ErrStoreRead)
}

// WrapWrite classifies a write-path driver error (upsert).
func WrapWrite(op string, err error) error {
	return wrap(op, err, domain.ErrStoreWrite)
}

func wrap(op string, err error, kind error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %w", op, err, domain.ErrTimeout)
	}
	return fmt.Errorf("%s: %w: %w", op, err, kind)
}
