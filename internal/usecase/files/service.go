// Package files aggregates stored chunk records into per-document views.
package files

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/paperqa/paperqa/internal/domain"
)

const scrollPageSize = 1000

// Service lists, checks, and deletes ingested documents.
type Service struct {
	store Store
	log   *zap.Logger
}

// New creates a files service.
func New(st Store, log *zap.Logger) *Service {
	return &Service{store: st, log: log}
}

// ListGrouped walks the whole collection and groups chunk records by
// file id. Groups come back in the order their file was first seen;
// chunks within a group are ordered by chunk index. Records without a
// file id or filename are skipped.
func (s *Service) ListGrouped(ctx context.Context) ([]domain.FileGroup, error) {
	var (
		order  []string
		groups = map[string]*domain.FileGroup{}
		cursor string
	)
	for {
		records, next, err := s.store.Scroll(ctx, cursor, scrollPageSize)
		if err != nil {
			return nil, fmt.Errorf("scroll records: %w", err)
		}
		for _, rec := range records {
			if rec.Payload.FileID == "" || rec.Payload.Filename == "" {
				s.log.Warn("skipping record without file identity", zap.String("id", rec.ID))
				continue
			}
			g, ok := groups[rec.Payload.FileID]
			if !ok {
				g = &domain.FileGroup{
					FileID:   rec.Payload.FileID,
					Filename: rec.Payload.Filename,
				}
				groups[rec.Payload.FileID] = g
				order = append(order, rec.Payload.FileID)
			}
			g.Chunks = append(g.Chunks, domain.ChunkInfo{
				ChunkIndex: rec.Payload.ChunkIndex,
				Text:       rec.Payload.Text,
			})
		}
		if next == "" {
			break
		}
		cursor = next
	}

	out := make([]domain.FileGroup, 0, len(order))
	for _, id := range order {
		g := groups[id]
		sort.Slice(g.Chunks, func(i, j int) bool {
			return g.Chunks[i].ChunkIndex < g.Chunks[j].ChunkIndex
		})
		out = append(out, *g)
	}
	return out, nil
}

// Exists reports whether any chunk is stored under the given filename.
func (s *Service) Exists(ctx context.Context, filename string) (bool, error) {
	ok, err := s.store.FilenameExists(ctx, filename)
	if err != nil {
		return false, fmt.Errorf("check filename: %w", err)
	}
	return ok, nil
}

// Delete removes every chunk belonging to the given file id.
func (s *Service) Delete(ctx context.Context, fileID string) error {
	if fileID == "" {
		return fmt.Errorf("file id is empty: %w", domain.ErrValidation)
	}
	if err := s.store.DeleteByFileID(ctx, fileID); err != nil {
		return fmt.Errorf("delete file %s: %w", fileID, err)
	}
	s.log.Info("document deleted", zap.String("file_id", fileID))
	return nil
}
