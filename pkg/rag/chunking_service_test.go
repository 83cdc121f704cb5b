package rag

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewChunkingServiceRejectsBadOverlap(t *testing.T) {
	_, err := NewChunkingService(&ChunkingConfig{ChunkSize: 100, ChunkOverlap: 100})
	assert.Error(t, err)

	_, err = NewChunkingService(&ChunkingConfig{ChunkSize: 100, ChunkOverlap: 150})
	assert.Error(t, err)
}

func TestChunkIDDeterministic(t *testing.T) {
	id1 := ChunkID("apple_10k.pdf", 3, "Revenue increased year over year")
	id2 := ChunkID("apple_10k.pdf", 3, "Revenue increased year over year")
	assert.Equal(t, id1, id2)
	assert.Len(t, id1, 32)

	assert.NotEqual(t, id1, ChunkID("apple_10k.pdf", 4, "Revenue increased year over year"))
	assert.NotEqual(t, id1, ChunkID("other.pdf", 3, "Revenue increased year over year"))
}

func TestChunkIDUsesContentPrefix(t *testing.T) {
	long := strings.Repeat("a", 100)
	id1 := ChunkID("f.pdf", 0, long+"tail one")
	id2 := ChunkID("f.pdf", 0, long+"different tail")
	assert.Equal(t, id1, id2, "content beyond the first 100 chars should not affect the ID")
}

func TestChunkDocumentProducesOverlappingChunks(t *testing.T) {
	cs, err := NewChunkingService(&ChunkingConfig{
		ChunkSize:    50,
		ChunkOverlap: 10,
		MinChunkLen:  50,
	})
	require.NoError(t, err)

	var sb strings.Builder
	for i := 0; i < 200; i++ {
		sb.WriteString("The company reported consolidated revenue growth across all segments. ")
	}

	chunks := cs.ChunkDocument(sb.String(), "filing.pdf")
	require.NotEmpty(t, chunks)

	for i, chunk := range chunks {
		assert.GreaterOrEqual(t, len(chunk.Content), 50, "chunk %d below minimum length", i)
		assert.Equal(t, i, chunk.ChunkIndex)
		assert.Equal(t, "filing.pdf", chunk.Source)
		assert.NotEmpty(t, chunk.ID)
		assert.LessOrEqual(t, chunk.TokenCount, 50)
	}
	assert.Greater(t, len(chunks), 1)
}

func TestChunkDocumentIdempotent(t *testing.T) {
	cs, err := NewChunkingService(nil)
	require.NoError(t, err)

	content := strings.Repeat("Item 1A Risk Factors. The company faces competitive pressure. ", 100)
	first := cs.ChunkDocument(content, "doc.pdf")
	second := cs.ChunkDocument(content, "doc.pdf")

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.Equal(t, first[i].Content, second[i].Content)
	}
}

func TestChunkDocumentDropsShortContent(t *testing.T) {
	cs, err := NewChunkingService(nil)
	require.NoError(t, err)

	chunks := cs.ChunkDocument("too short", "tiny.pdf")
	assert.Empty(t, chunks)
}

func TestChunkParagraphsStartsFreshAtHeadings(t *testing.T) {
	cs, err := NewChunkingService(&ChunkingConfig{
		ChunkSize:           512,
		ChunkOverlap:        50,
		MinChunkLen:         50,
		ParagraphCharBudget: 200,
		ParagraphOverlap:    1,
	})
	require.NoError(t, err)

	paragraphs := []ParagraphInfo{
		{Content: strings.Repeat("Revenue discussion paragraph one. ", 5)},
		{Content: strings.Repeat("Revenue discussion paragraph two. ", 5)},
		{Content: "Item 1A. Risk Factors", Role: "sectionHeading"},
		{Content: strings.Repeat("Risk paragraph content here. ", 5)},
	}

	chunks := cs.ChunkParagraphs(paragraphs, "structured.pdf")
	require.NotEmpty(t, chunks)

	// The heading begins a new chunk, so risk content never shares a chunk
	// with the start of the revenue discussion.
	for _, chunk := range chunks {
		if strings.Contains(chunk.Content, "Risk paragraph") {
			assert.NotContains(t, chunk.Content, "paragraph one")
		}
	}
}

func TestChunkParagraphsRespectsBudget(t *testing.T) {
	cs, err := NewChunkingService(&ChunkingConfig{
		ChunkSize:           512,
		ChunkOverlap:        50,
		MinChunkLen:         50,
		ParagraphCharBudget: 300,
		ParagraphOverlap:    2,
	})
	require.NoError(t, err)

	var paragraphs []ParagraphInfo
	for i := 0; i < 10; i++ {
		paragraphs = append(paragraphs, ParagraphInfo{
			Content: strings.Repeat("Filing disclosure text. ", 8),
		})
	}

	chunks := cs.ChunkParagraphs(paragraphs, "long.pdf")
	assert.Greater(t, len(chunks), 1, "content exceeding the budget should split")
}

func TestChunkingMetricsAccumulate(t *testing.T) {
	cs, err := NewChunkingService(nil)
	require.NoError(t, err)

	content := strings.Repeat("Consolidated balance sheet disclosure text. ", 200)
	cs.ChunkDocument(content, "a.pdf")
	cs.ChunkDocument(content, "b.pdf")

	metrics := cs.GetMetrics()
	assert.Equal(t, int64(2), metrics.TotalDocuments)
	assert.Greater(t, metrics.TotalChunks, int64(0))
}
