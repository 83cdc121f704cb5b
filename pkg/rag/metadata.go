package rag

import (
	"regexp"
	"strconv"
	"strings"
)

// companyAliases maps filename and ticker fragments to canonical company
// names.
var companyAliases = []struct {
	fragments []string
	company   string
}{
	{[]string{"meta", "facebook", "fb"}, "Meta"},
	{[]string{"apple", "aapl"}, "Apple"},
	{[]string{"google", "alphabet", "googl", "goog"}, "Google"},
	{[]string{"microsoft", "msft"}, "Microsoft"},
	{[]string{"amazon", "amzn"}, "Amazon"},
	{[]string{"tesla", "tsla"}, "Tesla"},
	{[]string{"netflix", "nflx"}, "Netflix"},
	{[]string{"nvidia", "nvda"}, "NVIDIA"},
}

var yearPattern = regexp.MustCompile(`20\d{2}`)

// ExtractMetadata infers company, document type and filing year from a
// filename and the leading document content. Unrecognized inputs produce
// "Unknown" / "Financial Document" / the current reporting default year
// rather than an error.
func ExtractMetadata(filename, content string) DocumentMetadata {
	return DocumentMetadata{
		Company:      detectCompany(filename, content),
		DocumentType: detectDocumentType(filename, content),
		Year:         detectYear(filename, content),
		Filename:     filename,
	}
}

func detectCompany(filename, content string) string {
	haystack := strings.ToLower(filename)
	for _, alias := range companyAliases {
		for _, frag := range alias.fragments {
			if strings.Contains(haystack, frag) {
				return alias.company
			}
		}
	}

	// Filenames like uploaded UUIDs carry no signal; fall back to the start
	// of the document text.
	head := strings.ToLower(truncate(content, 2000))
	for _, alias := range companyAliases {
		for _, frag := range alias.fragments {
			if len(frag) > 2 && strings.Contains(head, frag) {
				return alias.company
			}
		}
	}
	return "Unknown"
}

func detectDocumentType(filename, content string) string {
	haystack := strings.ToLower(filename + " " + truncate(content, 2000))
	switch {
	case strings.Contains(haystack, "10-k") || strings.Contains(haystack, "10k"):
		return "10-K"
	case strings.Contains(haystack, "10-q") || strings.Contains(haystack, "10q"):
		return "10-Q"
	case strings.Contains(haystack, "earnings"):
		return "Earnings Report"
	case strings.Contains(haystack, "annual report"):
		return "Annual Report"
	}
	return "Financial Document"
}

func detectYear(filename, content string) int {
	if m := yearPattern.FindString(filename); m != "" {
		if y, err := strconv.Atoi(m); err == nil {
			return y
		}
	}
	if m := yearPattern.FindString(truncate(content, 2000)); m != "" {
		if y, err := strconv.Atoi(m); err == nil {
			return y
		}
	}
	return 2024
}
