package rag

import (
	"errors"
	"fmt"
)

// ErrBackendUnavailable is returned when a dependency (LLM backend, vector
// index) cannot be reached and no fallback applies.
var ErrBackendUnavailable = errors.New("backend unavailable")

// ValidationError indicates the uploaded file was rejected before any
// processing started. It is the only error class the pipeline surfaces to
// callers directly.
type ValidationError struct {
	Filename string
	Reason   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Filename, e.Reason)
}

// ExtractionError wraps a failure of the document extraction stage.
type ExtractionError struct {
	Filename string
	Err      error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed for %s: %v", e.Filename, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// EmbeddingError wraps a failure to generate embeddings for a chunk batch.
type EmbeddingError struct {
	Batch int
	Err   error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding failed for batch %d: %v", e.Batch, e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// IndexingError wraps a failure to upsert chunks into the vector index.
type IndexingError struct {
	Err error
}

func (e *IndexingError) Error() string {
	return fmt.Sprintf("indexing failed: %v", e.Err)
}

func (e *IndexingError) Unwrap() error { return e.Err }
