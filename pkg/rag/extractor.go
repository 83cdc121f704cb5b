package rag

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"
)

// LayoutAnalyzer recovers rich document structure (pages, tables, paragraph
// roles) from a file. Implementations typically wrap an external document
// intelligence service; the extractor synthesizes structure locally when no
// analyzer is configured or the analyzer fails.
type LayoutAnalyzer interface {
	Analyze(ctx context.Context, filePath string) (*ExtractedDocument, error)
	Available() bool
}

// allowedExtensions are the upload formats the extractor accepts.
var allowedExtensions = map[string]bool{
	".pdf":  true,
	".html": true,
	".htm":  true,
}

// SupportedExtension reports whether the filename has an ingestible
// extension.
func SupportedExtension(filename string) bool {
	return allowedExtensions[strings.ToLower(filepath.Ext(filename))]
}

// DocumentExtractor turns uploaded filings into text plus structure.
type DocumentExtractor struct {
	analyzer LayoutAnalyzer
	logger   *slog.Logger
}

// NewDocumentExtractor creates an extractor. analyzer may be nil.
func NewDocumentExtractor(analyzer LayoutAnalyzer) *DocumentExtractor {
	return &DocumentExtractor{
		analyzer: analyzer,
		logger:   slog.Default().With("component", "document-extractor"),
	}
}

// Extract reads the file and produces an ExtractedDocument. A configured
// layout analyzer is tried first; on failure or absence the extractor falls
// back to local text extraction with synthesized structure.
func (e *DocumentExtractor) Extract(ctx context.Context, filePath, filename string) (*ExtractedDocument, error) {
	if !SupportedExtension(filename) {
		return nil, &ValidationError{Filename: filename, Reason: fmt.Sprintf("unsupported extension %q", filepath.Ext(filename))}
	}

	if e.analyzer != nil && e.analyzer.Available() {
		doc, err := e.analyzer.Analyze(ctx, filePath)
		if err == nil {
			e.logger.Info("Layout analysis succeeded",
				"filename", filename,
				"pages", len(doc.Structure.Pages),
				"tables", len(doc.Structure.Tables))
			return doc, nil
		}
		e.logger.Warn("Layout analysis failed, falling back to local extraction",
			"filename", filename, "error", err)
	}

	var content string
	var pageTexts []string
	var err error

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		pageTexts, err = extractPDFPages(filePath)
		content = strings.Join(pageTexts, "\n\n")
	default:
		content, err = extractHTMLText(filePath)
	}
	if err != nil {
		return nil, &ExtractionError{Filename: filename, Err: err}
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, &ExtractionError{Filename: filename, Err: fmt.Errorf("no text content extracted")}
	}

	doc := &ExtractedDocument{
		Content:   content,
		Structure: synthesizeStructure(content, pageTexts),
	}

	e.logger.Info("Local extraction completed",
		"filename", filename,
		"chars", len(content),
		"pages", len(doc.Structure.Pages),
		"paragraphs", len(doc.Structure.Paragraphs))

	return doc, nil
}

// ExtractBasic is the minimal extraction path used by the fallback pipeline:
// raw text only, no structure recovery.
func (e *DocumentExtractor) ExtractBasic(filePath, filename string) (string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		pages, err := extractPDFPages(filePath)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(strings.Join(pages, "\n\n")), nil
	default:
		data, err := os.ReadFile(filePath)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(data)), nil
	}
}

func extractPDFPages(filePath string) ([]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat PDF: %w", err)
	}

	reader, err := pdf.NewReader(file, info.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to parse PDF: %w", err)
	}

	var pages []string
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		pages = append(pages, text)
	}
	return pages, nil
}

func extractHTMLText(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open HTML: %w", err)
	}
	defer file.Close()

	root, err := html.Parse(file)
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				sb.WriteString(text)
				sb.WriteString("\n")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	return sb.String(), nil
}

// syntheticPageSize approximates one filing page worth of characters when no
// real page boundaries are known.
const syntheticPageSize = 3000

// synthesizeStructure approximates pages and paragraphs from plain text.
// When real per-page texts are available they are used directly; otherwise
// the content is segmented into fixed-size synthetic pages.
func synthesizeStructure(content string, pageTexts []string) StructureInfo {
	structure := StructureInfo{Synthetic: true}

	if len(pageTexts) > 0 {
		for i, text := range pageTexts {
			structure.Pages = append(structure.Pages, PageInfo{
				PageNumber: i + 1,
				Text:       text,
				CharCount:  len(text),
			})
		}
	} else {
		for i := 0; i*syntheticPageSize < len(content); i++ {
			end := (i + 1) * syntheticPageSize
			if end > len(content) {
				end = len(content)
			}
			text := content[i*syntheticPageSize : end]
			structure.Pages = append(structure.Pages, PageInfo{
				PageNumber: i + 1,
				Text:       text,
				CharCount:  len(text),
			})
		}
	}

	for _, block := range strings.Split(content, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		structure.Paragraphs = append(structure.Paragraphs, ParagraphInfo{Content: block})
	}

	return structure
}
