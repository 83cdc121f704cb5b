// Package agents implements the retrieval, verification, writing and
// curation agents plus the orchestrator that sequences them per chat mode.
package agents

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/thegovind/adaptiverag-work/pkg/rag"
)

// RetrieverAgent finds filing chunks relevant to a query. It prefers the
// vector index and falls back to a deterministic mock corpus so chat keeps
// working with no index configured, which matters for demos and tests.
type RetrieverAgent struct {
	index    rag.SearchIndex
	embedder rag.EmbeddingClient
	logger   *slog.Logger
}

// NewRetrieverAgent creates a retriever. Both index and embedder may be nil.
func NewRetrieverAgent(index rag.SearchIndex, embedder rag.EmbeddingClient) *RetrieverAgent {
	return &RetrieverAgent{
		index:    index,
		embedder: embedder,
		logger:   slog.Default().With("component", "retriever-agent"),
	}
}

// Retrieve returns ranked documents for the query together with the
// retrieval method used ("weaviate" or "mock").
func (a *RetrieverAgent) Retrieve(ctx context.Context, query string, limit int) ([]rag.RetrievedDocument, string) {
	if limit <= 0 {
		limit = 10
	}

	if a.index != nil && a.index.Healthy(ctx) {
		search := rag.SearchQuery{Query: query, Limit: limit}
		if a.embedder != nil {
			if vecs, err := a.embedder.CreateEmbeddings(ctx, []string{query}); err == nil && len(vecs) == 1 {
				search.QueryVector = vecs[0]
			}
		}

		docs, err := a.index.Search(ctx, search)
		if err == nil && len(docs) > 0 {
			a.logger.Info("Retrieved documents from index", "query", query, "count", len(docs))
			return RankDocuments(docs), "weaviate"
		}
		if err != nil {
			a.logger.Warn("Index search failed, using mock corpus", "error", err)
		}
	}

	docs := mockRetrieve(query, limit)
	a.logger.Info("Retrieved documents from mock corpus", "query", query, "count", len(docs))
	return docs, "mock"
}

// RankDocuments orders documents by reranker score when present, falling
// back to the retrieval score. The sort is stable so equal-scored documents
// keep their retrieval order.
func RankDocuments(docs []rag.RetrievedDocument) []rag.RetrievedDocument {
	ranked := append([]rag.RetrievedDocument(nil), docs...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return effectiveScore(ranked[i]) > effectiveScore(ranked[j])
	})
	return ranked
}

func effectiveScore(doc rag.RetrievedDocument) float64 {
	if doc.RerankerScore != 0 {
		return doc.RerankerScore
	}
	return doc.Score
}

var (
	mockCompanies = []string{"Apple", "Microsoft", "Google", "Meta", "JPMC", "Citi"}
	mockYears     = []int{2024, 2023, 2022, 2021}
)

// mockRetrieve produces a deterministic result set shaped like real filing
// hits: three companies, two filing years each, scores decaying with
// position.
func mockRetrieve(query string, limit int) []rag.RetrievedDocument {
	var docs []rag.RetrievedDocument
	for i, company := range mockCompanies[:3] {
		for j, year := range mockYears[:2] {
			sum := md5.Sum([]byte(fmt.Sprintf("%s_%d_%s", company, year, query)))
			docs = append(docs, rag.RetrievedDocument{
				ID:             hex.EncodeToString(sum[:])[:8],
				Content:        mockContent(query, company, year),
				Source:         fmt.Sprintf("%s_10K_%d.pdf", strings.ToLower(company), year),
				Company:        company,
				Year:           year,
				Score:          0.9 - 0.1*float64(i) - 0.05*float64(j),
				RetrievalLayer: "mock",
			})
		}
	}

	docs = RankDocuments(docs)
	if len(docs) > limit {
		docs = docs[:limit]
	}
	return docs
}

func mockContent(query, company string, year int) string {
	lower := strings.ToLower(query)
	switch {
	case strings.Contains(lower, "risk"):
		return fmt.Sprintf(
			"%s %d Annual Report, Item 1A Risk Factors: The company faces risks related to "+
				"macroeconomic conditions, intense competition, supply chain disruption, "+
				"cybersecurity threats and evolving regulatory requirements. Changes in consumer "+
				"demand or adverse developments in global markets could materially affect results "+
				"of operations and financial condition.", company, year)
	case strings.Contains(lower, "revenue") || strings.Contains(lower, "r&d"):
		return fmt.Sprintf(
			"%s %d Form 10-K, Management's Discussion and Analysis: Total net revenue increased "+
				"year over year driven by growth across product and service segments. Research and "+
				"development expense grew as the company continued to invest in new technologies "+
				"and platform capabilities. Operating margin remained consistent with the prior year.", company, year)
	default:
		return fmt.Sprintf(
			"%s %d Form 10-K: The company reported consolidated financial statements prepared in "+
				"accordance with GAAP, including balance sheet, cash flow and stockholders' equity "+
				"disclosures, together with notes covering significant accounting policies and "+
				"segment information.", company, year)
	}
}
