package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// ChatCompleter is the narrow LLM surface the credibility scorer needs.
type ChatCompleter interface {
	Complete(ctx context.Context, prompt string, temperature float64, maxTokens int) (string, error)
	Available() bool
}

// CredibilityScorer rates retrieved documents and ingested filings for
// trustworthiness. Scores are always in [0, 1]. When an LLM backend is
// configured it is asked for a single numeric judgment; any failure falls
// back to the heuristic silently so scoring never blocks a request.
type CredibilityScorer struct {
	completer ChatCompleter
	logger    *slog.Logger
}

// NewCredibilityScorer creates a scorer. completer may be nil, in which case
// only the heuristic path is used.
func NewCredibilityScorer(completer ChatCompleter) *CredibilityScorer {
	return &CredibilityScorer{
		completer: completer,
		logger:    slog.Default().With("component", "credibility-scorer"),
	}
}

// authorityCompanies get the larger authority bonus in heuristic scoring.
var authorityCompanies = map[string]bool{
	"Apple":     true,
	"Microsoft": true,
	"Google":    true,
	"Meta":      true,
}

// ScoreHeuristic computes a credibility score from query overlap, filing
// recency and issuer recognition.
func (s *CredibilityScorer) ScoreHeuristic(doc RetrievedDocument, query string) float64 {
	score := 0.8

	terms := strings.Fields(strings.ToLower(query))
	if len(terms) > 0 {
		content := strings.ToLower(doc.Content)
		matched := 0
		for _, term := range terms {
			if strings.Contains(content, term) {
				matched++
			}
		}
		score += 0.2 * float64(matched) / float64(len(terms))
	}

	switch {
	case doc.Year >= 2022:
		score += 0.1
	case doc.Year >= 2020:
		score += 0.05
	}

	if authorityCompanies[doc.Company] {
		score += 0.1
	} else {
		score += 0.05
	}

	if score > 1.0 {
		score = 1.0
	}
	return score
}

// Score asks the LLM backend for a credibility judgment, falling back to the
// heuristic when no backend is available or the response is unusable.
func (s *CredibilityScorer) Score(ctx context.Context, doc RetrievedDocument, query string) float64 {
	if s.completer == nil || !s.completer.Available() {
		return s.ScoreHeuristic(doc, query)
	}

	prompt := fmt.Sprintf(
		"Rate the credibility of this document excerpt for answering the query. "+
			"Respond with a single number between 0 and 1.\n\n"+
			"Query: %s\n\nDocument (%s, %d):\n%s\n\nCredibility score:",
		query, doc.Company, doc.Year, truncate(doc.Content, 500))

	resp, err := s.completer.Complete(ctx, prompt, 0.1, 10)
	if err != nil {
		s.logger.Debug("LLM credibility scoring failed, using heuristic", "error", err)
		return s.ScoreHeuristic(doc, query)
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(resp), 64)
	if err != nil {
		s.logger.Debug("Unparseable credibility response, using heuristic", "response", resp)
		return s.ScoreHeuristic(doc, query)
	}

	if value < 0 {
		value = 0
	}
	if value > 1 {
		value = 1
	}
	return value
}

// financialKeywords each contribute to the structural score, capped as a
// group.
var financialKeywords = []string{
	"SECURITIES AND EXCHANGE COMMISSION",
	"SEC",
	"10-K",
	"10-Q",
	"FINANCIAL STATEMENTS",
	"CONSOLIDATED",
	"REVENUE",
	"ASSETS",
	"LIABILITIES",
	"CASH FLOW",
	"BALANCE SHEET",
}

// StructuralScore rates an extracted document on document-level signals:
// length, tables, recovered structure, formatting and financial vocabulary.
// The raw score is out of 10 and normalized to [0, 1].
func (s *CredibilityScorer) StructuralScore(doc *ExtractedDocument) float64 {
	if doc == nil || doc.Content == "" {
		return 0.5
	}

	raw := 0.0

	switch {
	case len(doc.Content) > 50000:
		raw += 2
	case len(doc.Content) > 10000:
		raw += 1
	}

	if len(doc.Structure.Tables) > 0 {
		raw += 2
	}
	if len(doc.Structure.Paragraphs) >= 5 && !doc.Structure.Synthetic {
		raw += 1.5
	}
	if hasProfessionalFormatting(doc.Content) {
		raw += 1.5
	}

	upper := strings.ToUpper(doc.Content)
	keywordScore := 0.0
	for _, kw := range financialKeywords {
		if strings.Contains(upper, kw) {
			keywordScore += 0.3
		}
	}
	if keywordScore > 2.0 {
		keywordScore = 2.0
	}
	raw += keywordScore

	if len(doc.Structure.Pages) > 10 {
		raw += 1
	}

	if raw > 10 {
		raw = 10
	}
	return raw / 10
}

// hasProfessionalFormatting looks for signals of a formally prepared filing:
// numbered items, all-caps section headers, consistent paragraph breaks.
func hasProfessionalFormatting(content string) bool {
	signals := 0
	if strings.Contains(content, "Item 1") || strings.Contains(content, "ITEM 1") {
		signals++
	}
	if strings.Contains(content, "\n\n") {
		signals++
	}
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if len(trimmed) > 10 && trimmed == strings.ToUpper(trimmed) && strings.ContainsAny(trimmed, "ABCDEFGHIJKLMNOPQRSTUVWXYZ") {
			signals++
			break
		}
	}
	return signals >= 2
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
