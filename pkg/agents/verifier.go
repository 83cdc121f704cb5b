package agents

import (
	"context"
	"log/slog"
	"sort"

	"github.com/thegovind/adaptiverag-work/pkg/rag"
)

// verifiedThreshold is the confidence above which a document counts as
// verified.
const verifiedThreshold = 0.7

// VerifierAgent scores retrieved documents for credibility and marks the
// ones that clear the verification threshold.
type VerifierAgent struct {
	scorer *rag.CredibilityScorer
	logger *slog.Logger
}

// NewVerifierAgent creates a verifier backed by the given scorer.
func NewVerifierAgent(scorer *rag.CredibilityScorer) *VerifierAgent {
	return &VerifierAgent{
		scorer: scorer,
		logger: slog.Default().With("component", "verifier-agent"),
	}
}

// Verify assigns each document a confidence score, flags those above the
// threshold and returns the set ordered by confidence, highest first.
func (a *VerifierAgent) Verify(ctx context.Context, docs []rag.RetrievedDocument, query string) []rag.RetrievedDocument {
	verified := append([]rag.RetrievedDocument(nil), docs...)

	verifiedCount := 0
	for i := range verified {
		verified[i].Confidence = a.scorer.Score(ctx, verified[i], query)
		verified[i].Verified = verified[i].Confidence > verifiedThreshold
		if verified[i].Verified {
			verifiedCount++
		}
	}

	sort.SliceStable(verified, func(i, j int) bool {
		return verified[i].Confidence > verified[j].Confidence
	})

	a.logger.Info("Document verification completed",
		"documents", len(verified),
		"verified", verifiedCount)

	return verified
}
