package domain

import "errors"

var (
	// ErrValidation signals malformed or oversized caller input, rejected
	// before any external call is made.
	ErrValidation = errors.New("validation failed")
	// ErrDuplicateFilename signals that a filename is already ingested.
	ErrDuplicateFilename = errors.New("filename already ingested")
	// ErrUnsupportedFormat signals that the document reader cannot handle
	// the file's content or extension.
	ErrUnsupportedFormat = errors.New("unsupported file format")
	// ErrEmbeddingProvider signals an embedding capability failure. Embedding
	// is all-or-nothing per call: it aborts the whole embed/ingest/retrieve
	// operation with no internal retry.
	ErrEmbeddingProvider = errors.New("embedding provider error")
	// ErrGenerationProvider signals a text-generation capability failure.
	ErrGenerationProvider = errors.New("generation provider error")
	// ErrStoreWrite signals a vector store upsert failure. During ingestion
	// it is confined to one batch: that batch's chunks are dropped from the
	// result and the remaining batches are still attempted.
	ErrStoreWrite = errors.New("vector store write failed")
	// ErrStoreRead signals a vector store search/scroll/delete failure,
	// always surfaced to the caller unrecovered.
	ErrStoreRead = errors.New("vector store read failed")
	// ErrTimeout signals that an external call exceeded its deadline.
	ErrTimeout = errors.New("external call timed out")
)
