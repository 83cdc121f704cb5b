package rag

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

type stubCompleter struct {
	response  string
	err       error
	available bool
}

func (s *stubCompleter) Complete(ctx context.Context, prompt string, temperature float64, maxTokens int) (string, error) {
	return s.response, s.err
}

func (s *stubCompleter) Available() bool { return s.available }

func TestScoreHeuristicBounds(t *testing.T) {
	scorer := NewCredibilityScorer(nil)
	rng := rand.New(rand.NewSource(42))
	companies := []string{"Apple", "Microsoft", "JPMC", "Citi", "Unknown", ""}

	for i := 0; i < 200; i++ {
		doc := RetrievedDocument{
			Content: fmt.Sprintf("revenue growth risk factor %d", rng.Intn(1000)),
			Company: companies[rng.Intn(len(companies))],
			Year:    2015 + rng.Intn(12),
		}
		score := scorer.ScoreHeuristic(doc, "revenue risk analysis")
		assert.GreaterOrEqual(t, score, 0.0)
		assert.LessOrEqual(t, score, 1.0)
	}
}

func TestScoreHeuristicBonuses(t *testing.T) {
	scorer := NewCredibilityScorer(nil)

	recent := RetrievedDocument{Content: "none", Company: "Citi", Year: 2024}
	old := RetrievedDocument{Content: "none", Company: "Citi", Year: 2019}
	assert.Greater(t, scorer.ScoreHeuristic(recent, "query"), scorer.ScoreHeuristic(old, "query"))

	authority := RetrievedDocument{Content: "none", Company: "Apple", Year: 2019}
	assert.Greater(t, scorer.ScoreHeuristic(authority, "query"), scorer.ScoreHeuristic(old, "query"))

	matching := RetrievedDocument{Content: "revenue grew strongly", Company: "Citi", Year: 2019}
	assert.Greater(t, scorer.ScoreHeuristic(matching, "revenue"), scorer.ScoreHeuristic(old, "revenue"))
}

func TestScoreUsesLLMWhenAvailable(t *testing.T) {
	scorer := NewCredibilityScorer(&stubCompleter{response: "0.42", available: true})
	score := scorer.Score(context.Background(), RetrievedDocument{Company: "Apple", Year: 2024}, "q")
	assert.InDelta(t, 0.42, score, 0.001)
}

func TestScoreClampsLLMResponse(t *testing.T) {
	scorer := NewCredibilityScorer(&stubCompleter{response: "3.7", available: true})
	score := scorer.Score(context.Background(), RetrievedDocument{}, "q")
	assert.Equal(t, 1.0, score)

	scorer = NewCredibilityScorer(&stubCompleter{response: "-1", available: true})
	score = scorer.Score(context.Background(), RetrievedDocument{}, "q")
	assert.Equal(t, 0.0, score)
}

func TestScoreFallsBackOnBadResponse(t *testing.T) {
	doc := RetrievedDocument{Content: "revenue", Company: "Apple", Year: 2024}
	heuristic := NewCredibilityScorer(nil).ScoreHeuristic(doc, "revenue")

	scorer := NewCredibilityScorer(&stubCompleter{response: "not a number", available: true})
	assert.Equal(t, heuristic, scorer.Score(context.Background(), doc, "revenue"))

	scorer = NewCredibilityScorer(&stubCompleter{err: fmt.Errorf("boom"), available: true})
	assert.Equal(t, heuristic, scorer.Score(context.Background(), doc, "revenue"))

	scorer = NewCredibilityScorer(&stubCompleter{response: "0.9", available: false})
	assert.Equal(t, heuristic, scorer.Score(context.Background(), doc, "revenue"))
}

func TestStructuralScoreDefaults(t *testing.T) {
	scorer := NewCredibilityScorer(nil)
	assert.Equal(t, 0.5, scorer.StructuralScore(nil))
	assert.Equal(t, 0.5, scorer.StructuralScore(&ExtractedDocument{}))
}

func TestStructuralScoreParagraphThreshold(t *testing.T) {
	scorer := NewCredibilityScorer(nil)

	paragraphs := func(n int) []ParagraphInfo {
		out := make([]ParagraphInfo, n)
		for i := range out {
			out[i] = ParagraphInfo{Content: fmt.Sprintf("Paragraph %d", i+1)}
		}
		return out
	}

	four := &ExtractedDocument{
		Content:   "quarterly overview",
		Structure: StructureInfo{Paragraphs: paragraphs(4)},
	}
	five := &ExtractedDocument{
		Content:   "quarterly overview",
		Structure: StructureInfo{Paragraphs: paragraphs(5)},
	}
	assert.InDelta(t, 0.15, scorer.StructuralScore(five)-scorer.StructuralScore(four), 1e-9)

	synthetic := &ExtractedDocument{
		Content:   "quarterly overview",
		Structure: StructureInfo{Paragraphs: paragraphs(5), Synthetic: true},
	}
	assert.Equal(t, scorer.StructuralScore(four), scorer.StructuralScore(synthetic))
}

func TestStructuralScoreRewardsFilingSignals(t *testing.T) {
	scorer := NewCredibilityScorer(nil)

	plain := &ExtractedDocument{Content: "short note"}
	rich := &ExtractedDocument{
		Content: strings.Repeat("SECURITIES AND EXCHANGE COMMISSION 10-K CONSOLIDATED REVENUE BALANCE SHEET\n\nItem 1 Business\n\n", 800),
		Structure: StructureInfo{
			Pages:  make([]PageInfo, 15),
			Tables: []TableInfo{{PageNumber: 3}},
			Paragraphs: []ParagraphInfo{
				{Content: "Item 1", Role: "sectionHeading"},
			},
			Synthetic: false,
		},
	}

	plainScore := scorer.StructuralScore(plain)
	richScore := scorer.StructuralScore(rich)
	assert.Greater(t, richScore, plainScore)
	assert.LessOrEqual(t, richScore, 1.0)
	assert.GreaterOrEqual(t, plainScore, 0.0)
}
