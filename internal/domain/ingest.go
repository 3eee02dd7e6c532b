package domain

// BatchResult is the outcome of one storage batch during ingestion.
type BatchResult struct {
	Batch int   // zero-based batch number
	Size  int   // chunks in the batch
	Err   error // nil when the batch was committed
}

// OK reports whether the batch was committed.
func (b BatchResult) OK() bool { return b.Err == nil }

// IngestReport is the structured result of one ingestion call. Batches commit
// independently, so a file can end up durably partially ingested: callers
// compare Submitted against len(Uploaded) to detect it. There is no rollback
// of already-committed batches.
type IngestReport struct {
	FileID    string
	Filename  string
	Submitted int
	Uploaded  []UploadedChunk
	Batches   []BatchResult
}

// Complete reports whether every submitted chunk was committed.
func (r IngestReport) Complete() bool { return len(r.Uploaded) == r.Submitted }

// FailedBatches returns the number of batches that failed to commit.
func (r IngestReport) FailedBatches() int {
	n := 0
	for _, b := range r.Batches {
		if !b.OK() {
			n++
		}
	}
	return n
}
