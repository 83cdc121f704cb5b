package services

import (
	"context"

	"github.com/thegovind/adaptiverag-work/pkg/rag"
)

// nullIndex satisfies rag.SearchIndex when no vector store is configured.
// Upserts report failure so ingestion results reflect that nothing was
// indexed; searches return no hits so retrieval falls back to its mock
// corpus.
type nullIndex struct{}

func (nullIndex) UpsertChunks(ctx context.Context, chunks []rag.Chunk, meta rag.DocumentMetadata, credibility float64) (int, error) {
	return 0, &rag.IndexingError{Err: rag.ErrBackendUnavailable}
}

func (nullIndex) Search(ctx context.Context, query rag.SearchQuery) ([]rag.RetrievedDocument, error) {
	return nil, nil
}

func (nullIndex) Stats(ctx context.Context) (*rag.IndexStats, error) {
	return nil, rag.ErrBackendUnavailable
}

func (nullIndex) Healthy(ctx context.Context) bool { return false }
