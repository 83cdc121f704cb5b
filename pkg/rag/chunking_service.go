package rag

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/pkoukk/tiktoken-go"
)

// ChunkingService splits extracted filing text into token-bounded chunks
// suitable for embedding. Token counts use the cl100k_base encoding so chunk
// boundaries line up with what the embedding model actually sees.
type ChunkingService struct {
	config  *ChunkingConfig
	encoder *tiktoken.Tiktoken
	logger  *slog.Logger
	metrics *ChunkingMetrics
}

// ChunkingConfig holds configuration for the chunking service
type ChunkingConfig struct {
	ChunkSize    int `json:"chunk_size"`    // Target chunk size in tokens
	ChunkOverlap int `json:"chunk_overlap"` // Overlap between consecutive chunks in tokens
	MinChunkLen  int `json:"min_chunk_len"` // Minimum chunk length in characters after trimming

	// Structure-aware chunking
	ParagraphCharBudget int `json:"paragraph_char_budget"` // Character budget per structure-aware chunk
	ParagraphOverlap    int `json:"paragraph_overlap"`     // Trailing paragraphs carried into the next chunk
}

// ChunkingMetrics tracks chunking throughput and output shape
type ChunkingMetrics struct {
	TotalDocuments   int64         `json:"total_documents"`
	TotalChunks      int64         `json:"total_chunks"`
	AverageChunkSize float64       `json:"average_chunk_size"`
	TotalTime        time.Duration `json:"total_time"`
	LastProcessedAt  time.Time     `json:"last_processed_at"`
	mutex            sync.RWMutex
}

// getDefaultChunkingConfig returns default configuration for the chunking service
func getDefaultChunkingConfig() *ChunkingConfig {
	return &ChunkingConfig{
		ChunkSize:           512,
		ChunkOverlap:        50,
		MinChunkLen:         50,
		ParagraphCharBudget: 1000,
		ParagraphOverlap:    2,
	}
}

// NewChunkingService creates a new chunking service with the specified
// configuration. Passing nil uses defaults.
func NewChunkingService(config *ChunkingConfig) (*ChunkingService, error) {
	if config == nil {
		config = getDefaultChunkingConfig()
	}
	if config.ChunkOverlap >= config.ChunkSize {
		return nil, fmt.Errorf("chunk overlap %d must be smaller than chunk size %d", config.ChunkOverlap, config.ChunkSize)
	}

	encoder, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("failed to load tiktoken encoding: %w", err)
	}

	return &ChunkingService{
		config:  config,
		encoder: encoder,
		logger:  slog.Default().With("component", "chunking-service"),
		metrics: &ChunkingMetrics{LastProcessedAt: time.Now()},
	}, nil
}

// ChunkID derives a stable chunk identifier from the source name, chunk index
// and a content prefix. Re-chunking the same document yields the same IDs, so
// re-ingestion overwrites instead of duplicating.
func ChunkID(source string, index int, content string) string {
	prefix := content
	if len(prefix) > 100 {
		prefix = prefix[:100]
	}
	sum := md5.Sum([]byte(fmt.Sprintf("%s_%d_%s", source, index, prefix)))
	return hex.EncodeToString(sum[:])
}

// ChunkDocument splits content into overlapping token windows. Windows whose
// trimmed text falls below the minimum length are discarded.
func (cs *ChunkingService) ChunkDocument(content, source string) []Chunk {
	start := time.Now()

	tokens := cs.encoder.Encode(content, nil, nil)
	stride := cs.config.ChunkSize - cs.config.ChunkOverlap

	var chunks []Chunk
	index := 0
	for pos := 0; pos < len(tokens); pos += stride {
		end := pos + cs.config.ChunkSize
		if end > len(tokens) {
			end = len(tokens)
		}

		text := strings.TrimSpace(cs.encoder.Decode(tokens[pos:end]))
		if len(text) >= cs.config.MinChunkLen {
			chunks = append(chunks, Chunk{
				ID:         ChunkID(source, index, text),
				Content:    text,
				Source:     source,
				ChunkIndex: index,
				TokenCount: end - pos,
			})
			index++
		}

		if end == len(tokens) {
			break
		}
	}

	cs.updateMetrics(len(chunks), time.Since(start))
	cs.logger.Info("Document chunked",
		"source", source,
		"tokens", len(tokens),
		"chunks", len(chunks),
		"duration", time.Since(start))

	return chunks
}

// ChunkParagraphs builds chunks from recovered document structure. Headings
// start a fresh chunk and the last paragraphs of each chunk are carried into
// the next one to preserve context across boundaries.
func (cs *ChunkingService) ChunkParagraphs(paragraphs []ParagraphInfo, source string) []Chunk {
	start := time.Now()

	var chunks []Chunk
	var current []string
	currentLen := 0
	index := 0

	flush := func() {
		if currentLen == 0 {
			return
		}
		text := strings.TrimSpace(strings.Join(current, "\n\n"))
		if len(text) >= cs.config.MinChunkLen {
			chunks = append(chunks, Chunk{
				ID:         ChunkID(source, index, text),
				Content:    text,
				Source:     source,
				ChunkIndex: index,
				TokenCount: len(cs.encoder.Encode(text, nil, nil)),
			})
			index++
		}

		// Carry trailing paragraphs forward as overlap.
		carry := cs.config.ParagraphOverlap
		if carry > len(current) {
			carry = len(current)
		}
		current = append([]string(nil), current[len(current)-carry:]...)
		currentLen = 0
		for _, p := range current {
			currentLen += len(p)
		}
	}

	for _, para := range paragraphs {
		content := strings.TrimSpace(para.Content)
		if content == "" {
			continue
		}

		if isHeadingRole(para.Role) {
			flush()
			current = current[:0]
			currentLen = 0
		} else if currentLen+len(content) > cs.config.ParagraphCharBudget && currentLen > 0 {
			flush()
		}

		current = append(current, content)
		currentLen += len(content)
	}
	flush()

	cs.updateMetrics(len(chunks), time.Since(start))
	cs.logger.Info("Structured document chunked",
		"source", source,
		"paragraphs", len(paragraphs),
		"chunks", len(chunks),
		"duration", time.Since(start))

	return chunks
}

func isHeadingRole(role string) bool {
	switch role {
	case "title", "sectionHeading", "heading":
		return true
	}
	return false
}

// TokenCount returns the number of cl100k_base tokens in text.
func (cs *ChunkingService) TokenCount(text string) int {
	return len(cs.encoder.Encode(text, nil, nil))
}

func (cs *ChunkingService) updateMetrics(chunkCount int, elapsed time.Duration) {
	cs.metrics.mutex.Lock()
	defer cs.metrics.mutex.Unlock()

	cs.metrics.TotalDocuments++
	cs.metrics.TotalChunks += int64(chunkCount)
	if cs.metrics.TotalDocuments > 0 {
		cs.metrics.AverageChunkSize = float64(cs.metrics.TotalChunks) / float64(cs.metrics.TotalDocuments)
	}
	cs.metrics.TotalTime += elapsed
	cs.metrics.LastProcessedAt = time.Now()
}

// GetMetrics returns a copy of the current chunking metrics.
func (cs *ChunkingService) GetMetrics() ChunkingMetrics {
	cs.metrics.mutex.RLock()
	defer cs.metrics.mutex.RUnlock()

	return ChunkingMetrics{
		TotalDocuments:   cs.metrics.TotalDocuments,
		TotalChunks:      cs.metrics.TotalChunks,
		AverageChunkSize: cs.metrics.AverageChunkSize,
		TotalTime:        cs.metrics.TotalTime,
		LastProcessedAt:  cs.metrics.LastProcessedAt,
	}
}
