package agents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thegovind/adaptiverag-work/pkg/llm"
	"github.com/thegovind/adaptiverag-work/pkg/rag"
)

type fakeStreamer struct {
	deltas    []string
	err       error
	available bool
	messages  []llm.Message
}

func (f *fakeStreamer) StreamChat(ctx context.Context, messages []llm.Message, temperature float64, onDelta func(string)) (*llm.Usage, error) {
	f.messages = messages
	if f.err != nil {
		return nil, f.err
	}
	for _, d := range f.deltas {
		onDelta(d)
	}
	return &llm.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}, nil
}

func (f *fakeStreamer) Available() bool { return f.available }

func filingDocs(n int) []rag.RetrievedDocument {
	docs := make([]rag.RetrievedDocument, 0, n)
	for i := 0; i < n; i++ {
		docs = append(docs, rag.RetrievedDocument{
			ID:      fmt.Sprintf("doc-%d", i),
			Company: "Apple",
			Year:    2024 - i,
			Source:  fmt.Sprintf("apple_10k_%d.pdf", 2024-i),
			Content: "Total net revenue increased driven by services growth.",
			Score:   0.9,
		})
	}
	return docs
}

func TestSynthesizeNoDocuments(t *testing.T) {
	writer := NewWriterAgent(nil, EmissionPolicy{})

	var sb strings.Builder
	result, err := writer.Synthesize(context.Background(), "revenue?", nil, nil, func(s string) { sb.WriteString(s) })
	require.NoError(t, err)

	assert.Equal(t, insufficientContextAnswer, result.Answer)
	assert.Empty(t, result.Citations)
	assert.Equal(t, insufficientContextAnswer, sb.String())
}

func TestSynthesizeStreamsLLMAnswer(t *testing.T) {
	streamer := &fakeStreamer{deltas: []string{"Revenue ", "grew ", "8% [^1]."}, available: true}
	writer := NewWriterAgent(streamer, EmissionPolicy{})

	var sb strings.Builder
	result, err := writer.Synthesize(context.Background(), "revenue?", nil, filingDocs(2), func(s string) { sb.WriteString(s) })
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(result.Answer, "Revenue grew 8% [^1]."))
	assert.Contains(t, result.Answer, "Sources:")
	assert.Contains(t, result.Answer, "<sup>1</sup> Apple 10-K Filing (2024)")
	assert.Equal(t, result.Answer, sb.String(), "emitted stream matches the returned answer")
	require.NotNil(t, result.Usage)
	assert.Equal(t, 15, result.Usage.TotalTokens)
	require.Len(t, result.Citations, 2)
	assert.Equal(t, 1, result.Citations[0].Index)
}

func TestSynthesizeOfflineWhenUnavailable(t *testing.T) {
	writer := NewWriterAgent(&fakeStreamer{available: false}, EmissionPolicy{})

	result, err := writer.Synthesize(context.Background(), "what are the risk factors?", nil, filingDocs(1), nil)
	require.NoError(t, err)

	assert.Contains(t, result.Answer, "risk factors")
	assert.Contains(t, result.Answer, "[^1]")
	assert.Contains(t, result.Answer, "Sources:")
	assert.Nil(t, result.Usage)
}

func TestSynthesizeOfflineStreamMatchesAnswer(t *testing.T) {
	writer := NewWriterAgent(nil, EmissionPolicy{})

	var sb strings.Builder
	result, err := writer.Synthesize(context.Background(), "revenue growth", nil, filingDocs(2), func(s string) { sb.WriteString(s) })
	require.NoError(t, err)

	assert.Equal(t, result.Answer, sb.String(), "emitted stream matches the returned answer")
	assert.NotContains(t, result.Answer, "  ", "words are joined by single spaces")
}

func TestSynthesizeForwardsHistory(t *testing.T) {
	streamer := &fakeStreamer{deltas: []string{"Margins expanded."}, available: true}
	writer := NewWriterAgent(streamer, EmissionPolicy{})

	history := []ChatTurn{
		{Role: "user", Content: "How did Apple do in 2024?"},
		{Role: "assistant", Content: "Revenue grew 8%."},
		{Role: "", Content: ""},
	}
	_, err := writer.Synthesize(context.Background(), "and margins?", history, filingDocs(1), nil)
	require.NoError(t, err)

	require.Len(t, streamer.messages, 4, "system, two history turns, question")
	assert.Equal(t, "system", streamer.messages[0].Role)
	assert.Equal(t, "How did Apple do in 2024?", streamer.messages[1].Content)
	assert.Equal(t, "assistant", streamer.messages[2].Role)
	assert.Contains(t, streamer.messages[3].Content, "Question: and margins?")
}

func TestSynthesizeFallsBackOnStreamError(t *testing.T) {
	streamer := &fakeStreamer{err: errors.New("backend gone"), available: true}
	writer := NewWriterAgent(streamer, EmissionPolicy{})

	result, err := writer.Synthesize(context.Background(), "revenue growth", nil, filingDocs(1), nil)
	require.NoError(t, err)

	assert.Contains(t, result.Answer, "revenue growth across product and service segments")
	assert.Contains(t, result.Answer, "Sources:")
}

func TestSynthesizeCapsCitations(t *testing.T) {
	writer := NewWriterAgent(nil, EmissionPolicy{})

	result, err := writer.Synthesize(context.Background(), "revenue", nil, filingDocs(12), nil)
	require.NoError(t, err)

	assert.Len(t, result.Citations, 5)
	assert.NotContains(t, result.Answer, "<sup>6</sup>")
}

func TestBuildContextNumbersExcerpts(t *testing.T) {
	docs := filingDocs(3)
	docs[0].Content = strings.Repeat("x", 900)

	prompt := buildContext("how did revenue trend?", docs)

	assert.Contains(t, prompt, "[^1] Apple (2024):")
	assert.Contains(t, prompt, "[^3] Apple (2022):")
	assert.Contains(t, prompt, "Question: how did revenue trend?")
	assert.NotContains(t, prompt, strings.Repeat("x", 501), "excerpts are truncated")
}
