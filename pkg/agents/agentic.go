package agents

import (
	"context"
	"log/slog"
	"strings"

	"github.com/thegovind/adaptiverag-work/pkg/rag"
)

// QueryRewriter produces alternative phrasings of a query. Implemented by
// the LLM client; nil disables rewriting.
type QueryRewriter interface {
	Complete(ctx context.Context, prompt string, temperature float64, maxTokens int) (string, error)
	Available() bool
}

// AgenticRetriever runs multi-query retrieval: the original query plus LLM
// generated rewrites, with results merged and deduplicated by document ID.
type AgenticRetriever struct {
	retriever *RetrieverAgent
	rewriter  QueryRewriter
	logger    *slog.Logger
}

// NewAgenticRetriever creates the agentic retrieval layer on top of the base
// retriever.
func NewAgenticRetriever(retriever *RetrieverAgent, rewriter QueryRewriter) *AgenticRetriever {
	return &AgenticRetriever{
		retriever: retriever,
		rewriter:  rewriter,
		logger:    slog.Default().With("component", "agentic-retriever"),
	}
}

const maxRewrites = 3

// Retrieve expands the query, retrieves for each variant and merges the
// results. It returns the merged documents, the rewrites used and the
// retrieval method of the primary query.
func (a *AgenticRetriever) Retrieve(ctx context.Context, query string, limit int) ([]rag.RetrievedDocument, []string, string) {
	rewrites := a.rewriteQuery(ctx, query)

	docs, method := a.retriever.Retrieve(ctx, query, limit)
	seen := make(map[string]bool, len(docs))
	for _, d := range docs {
		seen[d.ID] = true
	}

	for _, rewrite := range rewrites {
		extra, _ := a.retriever.Retrieve(ctx, rewrite, limit)
		for _, d := range extra {
			if !seen[d.ID] {
				seen[d.ID] = true
				docs = append(docs, d)
			}
		}
	}

	docs = RankDocuments(docs)
	if len(docs) > limit {
		docs = docs[:limit]
	}

	a.logger.Info("Agentic retrieval completed",
		"query", query,
		"rewrites", len(rewrites),
		"documents", len(docs))

	return docs, rewrites, method
}

// rewriteQuery asks the LLM for up to three rephrasings, one per line. Any
// failure returns no rewrites so retrieval proceeds with the original query.
func (a *AgenticRetriever) rewriteQuery(ctx context.Context, query string) []string {
	if a.rewriter == nil || !a.rewriter.Available() {
		return nil
	}

	prompt := "Rewrite the following question about SEC filings into up to 3 alternative " +
		"search queries, one per line, without numbering or commentary.\n\nQuestion: " + query
	resp, err := a.rewriter.Complete(ctx, prompt, 0.3, 150)
	if err != nil {
		a.logger.Debug("Query rewriting failed", "error", err)
		return nil
	}

	var rewrites []string
	for _, line := range strings.Split(resp, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(line, "-*0123456789. "))
		if line == "" || strings.EqualFold(line, query) {
			continue
		}
		rewrites = append(rewrites, line)
		if len(rewrites) == maxRewrites {
			break
		}
	}
	return rewrites
}
