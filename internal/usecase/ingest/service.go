// Package ingest embeds document chunks and writes them to the vector
// store in batches.
package ingest

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/paperqa/paperqa/internal/domain"
	"github.com/paperqa/paperqa/internal/metrics"
	"github.com/paperqa/paperqa/internal/store"
)

// Service runs the chunk-embed-upsert pipeline for one document at a time.
type Service struct {
	store     Store
	embedder  Embedder
	log       *zap.Logger
	batchSize int
}

// New creates an ingest service. batchSize bounds each upsert request.
func New(st Store, embedder Embedder, log *zap.Logger, batchSize int) *Service {
	if batchSize <= 0 {
		batchSize = 32
	}
	return &Service{store: st, embedder: embedder, log: log, batchSize: batchSize}
}

// Ingest embeds the chunks of a single document and upserts them in
// batches. Embedding is all-or-nothing: a provider failure aborts the
// call before anything is written. Upserts are isolated per batch: a
// failed batch is recorded in the report and the remaining batches
// still run, so a document can land partially.
//
// The filename uniqueness check is read-then-write and not transactional;
// concurrent uploads of the same name can both pass it.
func (s *Service) Ingest(ctx context.Context, filename string, chunks []domain.Chunk) (domain.IngestReport, error) {
	report := domain.IngestReport{Filename: filename, Submitted: len(chunks)}
	if len(chunks) == 0 {
		return report, nil
	}

	exists, err := s.store.FilenameExists(ctx, filename)
	if err != nil {
		return report, fmt.Errorf("check filename: %w", err)
	}
	if exists {
		return report, fmt.Errorf("%s: %w", filename, domain.ErrDuplicateFilename)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		metrics.IngestChunksTotal.WithLabelValues("failed").Add(float64(len(chunks)))
		return report, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		metrics.IngestChunksTotal.WithLabelValues("failed").Add(float64(len(chunks)))
		return report, fmt.Errorf(
			"got %d vectors for %d chunks: %w",
			len(vectors), len(chunks), domain.ErrEmbeddingProvider,
		)
	}

	report.FileID = uuid.NewString()
	records := make([]store.Record, len(chunks))
	for i, c := range chunks {
		records[i] = store.Record{
			ID:     uuid.NewString(),
			Vector: vectors[i],
			Payload: store.Payload{
				Text:       c.Text,
				ChunkIndex: c.Index,
				Filename:   filename,
				FileID:     report.FileID,
			},
		}
	}

	for start := 0; start < len(records); start += s.batchSize {
		end := start + s.batchSize
		if end > len(records) {
			end = len(records)
		}
		batch := domain.BatchResult{Batch: start / s.batchSize, Size: end - start}

		if err := s.store.Upsert(ctx, records[start:end]); err != nil {
			batch.Err = err
			metrics.IngestBatchesTotal.WithLabelValues("failed").Inc()
			metrics.IngestChunksTotal.WithLabelValues("failed").Add(float64(batch.Size))
			s.log.Error("upsert batch failed",
				zap.String("filename", filename),
				zap.String("file_id", report.FileID),
				zap.Int("batch", batch.Batch),
				zap.Int("size", batch.Size),
				zap.Error(err),
			)
		} else {
			for _, rec := range records[start:end] {
				report.Uploaded = append(report.Uploaded, domain.UploadedChunk{
					ID:         rec.ID,
					Filename:   filename,
					ChunkIndex: rec.Payload.ChunkIndex,
					FileID:     report.FileID,
				})
			}
			metrics.IngestBatchesTotal.WithLabelValues("committed").Inc()
			metrics.IngestChunksTotal.WithLabelValues("committed").Add(float64(batch.Size))
		}
		report.Batches = append(report.Batches, batch)
	}

	s.log.Info("document ingested",
		zap.String("filename", filename),
		zap.String("file_id", report.FileID),
		zap.Int("submitted", report.Submitted),
		zap.Int("uploaded", len(report.Uploaded)),
	)
	return report, nil
}
