package agents

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thegovind/adaptiverag-work/pkg/rag"
)

type fakeIndex struct {
	healthy bool
	docs    []rag.RetrievedDocument
	err     error

	searches []rag.SearchQuery
}

func (f *fakeIndex) UpsertChunks(ctx context.Context, chunks []rag.Chunk, meta rag.DocumentMetadata, credibility float64) (int, error) {
	return len(chunks), nil
}

func (f *fakeIndex) Search(ctx context.Context, query rag.SearchQuery) ([]rag.RetrievedDocument, error) {
	f.searches = append(f.searches, query)
	return f.docs, f.err
}

func (f *fakeIndex) Stats(ctx context.Context) (*rag.IndexStats, error) {
	return &rag.IndexStats{TotalChunks: len(f.docs)}, nil
}

func (f *fakeIndex) Healthy(ctx context.Context) bool { return f.healthy }

type fakeQueryEmbedder struct{ vector []float32 }

func (f *fakeQueryEmbedder) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = f.vector
	}
	return out, nil
}

func (f *fakeQueryEmbedder) EmbeddingModel() string { return "fake-embed" }

func TestRetrieveUsesMockWithoutIndex(t *testing.T) {
	agent := NewRetrieverAgent(nil, nil)

	docs, method := agent.Retrieve(context.Background(), "What are the main risk factors?", 10)

	assert.Equal(t, "mock", method)
	require.Len(t, docs, 6)
	for _, doc := range docs {
		assert.Len(t, doc.ID, 8)
		assert.Contains(t, doc.Content, "Risk Factors")
		assert.Equal(t, "mock", doc.RetrievalLayer)
	}
	assert.Equal(t, "Apple", docs[0].Company)
	assert.Equal(t, 2024, docs[0].Year)
	assert.InDelta(t, 0.9, docs[0].Score, 1e-9)
}

func TestRetrieveMockIsDeterministic(t *testing.T) {
	agent := NewRetrieverAgent(nil, nil)

	first, _ := agent.Retrieve(context.Background(), "revenue growth", 10)
	second, _ := agent.Retrieve(context.Background(), "revenue growth", 10)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.Equal(t, first[i].Content, second[i].Content)
	}
}

func TestRetrieveMockRespectsLimit(t *testing.T) {
	agent := NewRetrieverAgent(nil, nil)

	docs, _ := agent.Retrieve(context.Background(), "cash flow", 4)
	assert.Len(t, docs, 4)
}

func TestRetrieveUsesHealthyIndex(t *testing.T) {
	index := &fakeIndex{
		healthy: true,
		docs: []rag.RetrievedDocument{
			{ID: "a", Company: "Apple", Year: 2023, Score: 0.7},
			{ID: "b", Company: "Microsoft", Year: 2023, Score: 0.9},
		},
	}
	agent := NewRetrieverAgent(index, &fakeQueryEmbedder{vector: []float32{0.1, 0.2}})

	docs, method := agent.Retrieve(context.Background(), "segment revenue", 10)

	assert.Equal(t, "weaviate", method)
	require.Len(t, docs, 2)
	assert.Equal(t, "b", docs[0].ID, "results come back ranked by score")

	require.Len(t, index.searches, 1)
	assert.Equal(t, []float32{0.1, 0.2}, index.searches[0].QueryVector)
}

func TestRetrieveFallsBackOnSearchError(t *testing.T) {
	index := &fakeIndex{healthy: true, err: errors.New("connection reset")}
	agent := NewRetrieverAgent(index, nil)

	docs, method := agent.Retrieve(context.Background(), "risk", 10)

	assert.Equal(t, "mock", method)
	assert.NotEmpty(t, docs)
}

func TestRetrieveFallsBackOnUnhealthyIndex(t *testing.T) {
	index := &fakeIndex{healthy: false, docs: []rag.RetrievedDocument{{ID: "a"}}}
	agent := NewRetrieverAgent(index, nil)

	_, method := agent.Retrieve(context.Background(), "risk", 10)

	assert.Equal(t, "mock", method)
	assert.Empty(t, index.searches)
}

func TestRankDocumentsPrefersRerankerScore(t *testing.T) {
	docs := []rag.RetrievedDocument{
		{ID: "low", Score: 0.9, RerankerScore: 0.1},
		{ID: "high", Score: 0.2, RerankerScore: 0.8},
		{ID: "plain", Score: 0.5},
	}

	ranked := RankDocuments(docs)

	assert.Equal(t, "high", ranked[0].ID)
	assert.Equal(t, "plain", ranked[1].ID)
	assert.Equal(t, "low", ranked[2].ID)
	assert.Equal(t, "low", docs[0].ID, "input slice is not reordered")
}

func TestMockContentKeyedByTopic(t *testing.T) {
	risk := mockContent("biggest risks", "Apple", 2024)
	revenue := mockContent("revenue trends", "Apple", 2024)
	general := mockContent("tell me about the filing", "Apple", 2024)

	assert.Contains(t, risk, "Risk Factors")
	assert.Contains(t, revenue, "Management's Discussion")
	assert.Contains(t, general, "GAAP")
}
