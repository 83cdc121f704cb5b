package agents

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/thegovind/adaptiverag-work/pkg/rag"
)

// curatorMinParagraphLen filters out headings and boilerplate fragments.
const curatorMinParagraphLen = 100

// CuratorAgent maintains the knowledge base directly: it ingests a document
// from a local path while narrating each step to the caller. It backs the
// knowledge management chat mode, where the "answer" is the narration
// itself.
type CuratorAgent struct {
	extractor *rag.DocumentExtractor
	embedder  *rag.EmbeddingService
	index     rag.SearchIndex
	logger    *slog.Logger
}

// NewCuratorAgent creates a curator. embedder and index may be nil, in which
// case ingestion stops after chunking.
func NewCuratorAgent(extractor *rag.DocumentExtractor, embedder *rag.EmbeddingService, index rag.SearchIndex) *CuratorAgent {
	return &CuratorAgent{
		extractor: extractor,
		embedder:  embedder,
		index:     index,
		logger:    slog.Default().With("component", "curator-agent"),
	}
}

// StreamIngest processes the file at path into the knowledge base, emitting
// a narration line for each step. A missing file emits an error line and
// stops.
func (a *CuratorAgent) StreamIngest(ctx context.Context, path string, emit func(string)) {
	if emit == nil {
		emit = func(string) {}
	}

	emit("Starting document processing...\n")

	if _, err := os.Stat(path); err != nil {
		emit(fmt.Sprintf("Error: File %s not found\n", path))
		return
	}

	filename := filepath.Base(path)
	emit(fmt.Sprintf("Reading %s...\n", filename))

	content, err := a.extractor.ExtractBasic(path, filename)
	if err != nil || content == "" {
		emit(fmt.Sprintf("Error: could not extract text from %s\n", filename))
		return
	}
	emit(fmt.Sprintf("Extracted %d characters\n", len(content)))

	chunks := a.chunkParagraphs(content, filename)
	emit(fmt.Sprintf("Created %d knowledge chunks\n", len(chunks)))

	if len(chunks) == 0 {
		emit("No substantial paragraphs found, nothing to index\n")
		return
	}

	if a.embedder != nil && a.index != nil {
		emit("Generating embeddings...\n")
		embedded, err := a.embedder.GenerateEmbeddingsForChunks(ctx, chunks)
		if err != nil {
			emit(fmt.Sprintf("Embedding failed: %v\n", err))
			return
		}
		emit(fmt.Sprintf("Embedded %d chunks\n", embedded))

		meta := rag.ExtractMetadata(filename, content)
		indexed, err := a.index.UpsertChunks(ctx, chunks, meta, 0.8)
		if err != nil {
			emit(fmt.Sprintf("Indexing failed: %v\n", err))
			return
		}
		emit(fmt.Sprintf("Indexed %d chunks for %s\n", indexed, meta.Company))
	}

	emit("Knowledge base update complete\n")

	a.logger.Info("Curator ingestion finished", "path", path, "chunks", len(chunks))
}

// chunkParagraphs keeps paragraphs long enough to carry substance, with IDs
// derived from the filename, position and a content prefix.
func (a *CuratorAgent) chunkParagraphs(content, filename string) []rag.Chunk {
	var chunks []rag.Chunk
	for i, para := range strings.Split(content, "\n\n") {
		para = strings.TrimSpace(para)
		if len(para) <= curatorMinParagraphLen {
			continue
		}
		prefix := para
		if len(prefix) > 50 {
			prefix = prefix[:50]
		}
		sum := md5.Sum([]byte(fmt.Sprintf("%s_%d_%s", filename, i, prefix)))
		chunks = append(chunks, rag.Chunk{
			ID:         hex.EncodeToString(sum[:]),
			Content:    para,
			Source:     filename,
			ChunkIndex: len(chunks),
		})
	}
	return chunks
}
