package ingest

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/paperqa/paperqa/internal/domain"
	"github.com/paperqa/paperqa/internal/store"
)

type mockStore struct {
	upserts    [][]store.Record
	failBatch  int // index into upserts that fails, -1 for none
	exists     bool
	existsErr  error
	upsertDone int
}

func (m *mockStore) Upsert(_ context.Context, records []store.Record) error {
	idx := len(m.upserts)
	m.upserts = append(m.upserts, records)
	if m.failBatch == idx {
		return domain.ErrStoreWrite
	}
	m.upsertDone += len(records)
	return nil
}

func (m *mockStore) FilenameExists(_ context.Context, _ string) (bool, error) {
	return m.exists, m.existsErr
}

type mockEmbedder struct {
	err   error
	calls int
}

func (m *mockEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{float32(i)}
	}
	return out, nil
}

func chunksOf(n int) []domain.Chunk {
	out := make([]domain.Chunk, n)
	for i := range out {
		out[i] = domain.Chunk{Text: "text", Index: i, Filename: "paper.pdf"}
	}
	return out
}

func TestIngest_EmptyChunks(t *testing.T) {
	st := &mockStore{failBatch: -1}
	svc := New(st, &mockEmbedder{}, zap.NewNop(), 2)

	report, err := svc.Ingest(context.Background(), "paper.pdf", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Submitted != 0 || len(report.Uploaded) != 0 || report.FileID != "" {
		t.Errorf("expected empty report, got %+v", report)
	}
	if len(st.upserts) != 0 {
		t.Errorf("store should not be touched")
	}
}

func TestIngest_DuplicateFilename(t *testing.T) {
	st := &mockStore{failBatch: -1, exists: true}
	emb := &mockEmbedder{}
	svc := New(st, emb, zap.NewNop(), 2)

	_, err := svc.Ingest(context.Background(), "paper.pdf", chunksOf(3))
	if !errors.Is(err, domain.ErrDuplicateFilename) {
		t.Fatalf("expected ErrDuplicateFilename, got %v", err)
	}
	if emb.calls != 0 {
		t.Errorf("embedder should not run for duplicate filename")
	}
}

func TestIngest_EmbedFailureWritesNothing(t *testing.T) {
	st := &mockStore{failBatch: -1}
	emb := &mockEmbedder{err: domain.ErrEmbeddingProvider}
	svc := New(st, emb, zap.NewNop(), 2)

	_, err := svc.Ingest(context.Background(), "paper.pdf", chunksOf(5))
	if !errors.Is(err, domain.ErrEmbeddingProvider) {
		t.Fatalf("expected ErrEmbeddingProvider, got %v", err)
	}
	if len(st.upserts) != 0 {
		t.Errorf("nothing must be written when embedding fails")
	}
}

func TestIngest_BatchedUpserts(t *testing.T) {
	st := &mockStore{failBatch: -1}
	svc := New(st, &mockEmbedder{}, zap.NewNop(), 2)

	report, err := svc.Ingest(context.Background(), "paper.pdf", chunksOf(5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(st.upserts) != 3 {
		t.Fatalf("expected 3 batches, got %d", len(st.upserts))
	}
	if len(report.Uploaded) != 5 || report.Submitted != 5 {
		t.Errorf("report = %+v", report)
	}
	for i, u := range report.Uploaded {
		if u.FileID != report.FileID || u.ChunkIndex != i || u.Filename != "paper.pdf" {
			t.Errorf("uploaded[%d] = %+v", i, u)
		}
	}
	if !report.Complete() {
		t.Errorf("expected complete report")
	}
	if report.FileID == "" {
		t.Errorf("expected a file id")
	}

	// every record carries the same file id and its chunk index
	seen := map[string]bool{}
	for bi, batch := range st.upserts {
		for ri, rec := range batch {
			if rec.Payload.FileID != report.FileID {
				t.Errorf("batch %d record %d has file id %q", bi, ri, rec.Payload.FileID)
			}
			if rec.Payload.ChunkIndex != bi*2+ri {
				t.Errorf("batch %d record %d has chunk index %d", bi, ri, rec.Payload.ChunkIndex)
			}
			if seen[rec.ID] {
				t.Errorf("duplicate record id %q", rec.ID)
			}
			seen[rec.ID] = true
		}
	}
}

func TestIngest_FailedBatchDoesNotStopOthers(t *testing.T) {
	st := &mockStore{failBatch: 1}
	svc := New(st, &mockEmbedder{}, zap.NewNop(), 2)

	report, err := svc.Ingest(context.Background(), "paper.pdf", chunksOf(6))
	if err != nil {
		t.Fatalf("per-batch failures must not fail the call, got %v", err)
	}
	if len(st.upserts) != 3 {
		t.Fatalf("expected all 3 batches attempted, got %d", len(st.upserts))
	}
	if len(report.Uploaded) != 4 {
		t.Errorf("expected 4 uploaded, got %d", len(report.Uploaded))
	}
	if report.Complete() {
		t.Errorf("report must not be complete")
	}
	if got := report.FailedBatches(); got != 1 {
		t.Errorf("failed batches = %d, want 1", got)
	}
	if report.Batches[1].OK() || !errors.Is(report.Batches[1].Err, domain.ErrStoreWrite) {
		t.Errorf("expected ErrStoreWrite in batch 1, got %+v", report.Batches[1])
	}
}
