package agents

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRewriter struct {
	response  string
	err       error
	available bool
	prompts   []string
}

func (f *fakeRewriter) Complete(ctx context.Context, prompt string, temperature float64, maxTokens int) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.response, f.err
}

func (f *fakeRewriter) Available() bool { return f.available }

func TestAgenticRetrieveWithRewrites(t *testing.T) {
	rewriter := &fakeRewriter{
		available: true,
		response:  "1. Apple revenue by segment\n2. iPhone sales trends\n\n3. services revenue growth",
	}
	agentic := NewAgenticRetriever(NewRetrieverAgent(nil, nil), rewriter)

	docs, rewrites, method := agentic.Retrieve(context.Background(), "how is revenue trending?", 10)

	assert.Equal(t, "mock", method)
	require.Len(t, rewrites, 3)
	assert.Equal(t, "Apple revenue by segment", rewrites[0])
	assert.Equal(t, "iPhone sales trends", rewrites[1])
	assert.Equal(t, "services revenue growth", rewrites[2])

	assert.NotEmpty(t, docs)
	assert.LessOrEqual(t, len(docs), 10)

	seen := make(map[string]bool)
	for _, d := range docs {
		assert.False(t, seen[d.ID], "merged results contain no duplicate IDs")
		seen[d.ID] = true
	}
}

func TestAgenticRetrieveCapsRewrites(t *testing.T) {
	rewriter := &fakeRewriter{
		available: true,
		response:  "one\ntwo\nthree\nfour\nfive",
	}
	agentic := NewAgenticRetriever(NewRetrieverAgent(nil, nil), rewriter)

	_, rewrites, _ := agentic.Retrieve(context.Background(), "query", 10)
	assert.Len(t, rewrites, 3)
}

func TestAgenticRetrieveSkipsEchoedQuery(t *testing.T) {
	rewriter := &fakeRewriter{
		available: true,
		response:  "Revenue Trends\nrevenue trends\nsegment results",
	}
	agentic := NewAgenticRetriever(NewRetrieverAgent(nil, nil), rewriter)

	_, rewrites, _ := agentic.Retrieve(context.Background(), "revenue trends", 10)

	require.Len(t, rewrites, 1)
	assert.Equal(t, "segment results", rewrites[0])
}

func TestAgenticRetrieveWithoutRewriter(t *testing.T) {
	agentic := NewAgenticRetriever(NewRetrieverAgent(nil, nil), nil)

	docs, rewrites, method := agentic.Retrieve(context.Background(), "risk factors", 10)

	assert.Empty(t, rewrites)
	assert.Equal(t, "mock", method)
	assert.NotEmpty(t, docs)
}

func TestAgenticRetrieveRewriteFailureIsSilent(t *testing.T) {
	rewriter := &fakeRewriter{available: true, err: errors.New("timeout")}
	agentic := NewAgenticRetriever(NewRetrieverAgent(nil, nil), rewriter)

	docs, rewrites, _ := agentic.Retrieve(context.Background(), "risk factors", 10)

	assert.Empty(t, rewrites)
	assert.NotEmpty(t, docs, "retrieval proceeds with the original query")
}

func TestAgenticRetrieveUnavailableRewriterNotCalled(t *testing.T) {
	rewriter := &fakeRewriter{available: false, response: "should not matter"}
	agentic := NewAgenticRetriever(NewRetrieverAgent(nil, nil), rewriter)

	_, rewrites, _ := agentic.Retrieve(context.Background(), "risk factors", 10)

	assert.Empty(t, rewrites)
	assert.Empty(t, rewriter.prompts)
}
