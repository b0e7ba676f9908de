package services

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/xuri/excelize/v2"

	"merchant-docs-rag/internal/config"
	"merchant-docs-rag/internal/logger"
	"merchant-docs-rag/models"
)

// Extraction is the output of text extraction: plain text plus metadata
// about how trustworthy the extraction is.
type Extraction struct {
	Text  string
	Pages int
	Meta  models.ExtractionMeta
}

// Extractor converts uploaded document bytes into plain text. Every MIME
// type resolves to some text: unknown or failed types degrade to a
// low-confidence placeholder instead of erroring, so a document always
// remains discoverable by name.
type Extractor struct {
	config *config.Config
	pdf    *PDFExtractor
	ocr    *OCRClient
}

func NewExtractor(cfg *config.Config) *Extractor {
	return &Extractor{
		config: cfg,
		pdf:    NewPDFExtractor(cfg),
		ocr:    NewOCRClient(cfg),
	}
}

// Extract dispatches on MIME type. The returned Extraction is never nil;
// the error is non-nil only for input that cannot even be placeholdered
// (empty name and type).
func (e *Extractor) Extract(ctx context.Context, doc *models.Document) (*Extraction, error) {
	mimeType := normalizeMimeType(doc.MimeType, doc.Name)

	var (
		result *Extraction
		err    error
	)
	switch {
	case isPlainText(mimeType):
		result = e.extractDirect(doc.Content)
	case mimeType == "text/html":
		result, err = e.extractHTML(doc.Content)
	case mimeType == "application/pdf":
		result, err = e.pdf.Extract(ctx, doc.Content)
	case isSpreadsheet(mimeType):
		result, err = e.extractSpreadsheet(doc.Content)
	case strings.HasPrefix(mimeType, "image/"):
		result, err = e.extractImage(ctx, doc.Content, doc.Name)
	default:
		err = fmt.Errorf("unsupported content type: %s", mimeType)
	}

	if err != nil || strings.TrimSpace(result.Text) == "" {
		if err != nil {
			logger.Warn("Extraction degraded to placeholder",
				"document", doc.Name, "mime_type", mimeType, "error", err)
		}
		return e.placeholder(doc), nil
	}
	return result, nil
}

func (e *Extractor) extractDirect(content []byte) *Extraction {
	text := string(content)
	return &Extraction{
		Text:  text,
		Pages: 1,
		Meta:  models.ExtractionMeta{Confidence: 1.0, Method: "direct"},
	}
}

// extractHTML strips markup and boilerplate elements, keeping visible text.
func (e *Extractor) extractHTML(content []byte) (*Extraction, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	doc.Find("script, style, noscript, iframe, nav, footer").Remove()

	var sb strings.Builder
	doc.Find("body").Each(func(_ int, sel *goquery.Selection) {
		sb.WriteString(sel.Text())
	})
	text := sb.String()
	if strings.TrimSpace(text) == "" {
		// Fragment without a body tag.
		text = doc.Text()
	}
	text = collapseWhitespace(text)

	return &Extraction{
		Text:  text,
		Pages: 1,
		Meta:  models.ExtractionMeta{Confidence: 0.9, Method: "html"},
	}, nil
}

// extractSpreadsheet flattens every sheet into tab-separated rows so cell
// values stay adjacent to their row context.
func (e *Extractor) extractSpreadsheet(content []byte) (*Extraction, error) {
	wb, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to open spreadsheet: %w", err)
	}
	defer wb.Close()

	var sb strings.Builder
	sheets := wb.GetSheetList()
	for _, sheet := range sheets {
		rows, err := wb.GetRows(sheet)
		if err != nil {
			logger.Warn("Failed to read sheet", "sheet", sheet, "error", err)
			continue
		}
		sb.WriteString(sheet)
		sb.WriteString("\n")
		for _, row := range rows {
			line := strings.TrimSpace(strings.Join(row, "\t"))
			if line == "" {
				continue
			}
			sb.WriteString(line)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	return &Extraction{
		Text:  sb.String(),
		Pages: len(sheets),
		Meta:  models.ExtractionMeta{Confidence: 0.9, Method: "xlsx"},
	}, nil
}

func (e *Extractor) extractImage(ctx context.Context, content []byte, name string) (*Extraction, error) {
	if !e.config.OCRServiceEnabled {
		return nil, fmt.Errorf("OCR service disabled")
	}
	resp, err := e.ocr.ExtractImage(ctx, content, name)
	if err != nil {
		return nil, err
	}
	pages := resp.Pages
	if pages == 0 {
		pages = 1
	}
	return &Extraction{
		Text:  resp.Text,
		Pages: pages,
		Meta:  models.ExtractionMeta{Confidence: resp.QualityScore, Method: "ocr"},
	}, nil
}

// placeholder produces the minimal indexable text for a document whose
// content could not be extracted. Low confidence flags it for review.
func (e *Extractor) placeholder(doc *models.Document) *Extraction {
	return &Extraction{
		Text:  fmt.Sprintf("Document: %s - Content type: %s", doc.Name, doc.MimeType),
		Pages: 1,
		Meta:  models.ExtractionMeta{Confidence: 0.3, Method: "fallback"},
	}
}

// normalizeMimeType resolves a usable MIME type, inferring from the file
// extension when the declared type is missing or generic.
func normalizeMimeType(mimeType, name string) string {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if idx := strings.Index(mimeType, ";"); idx >= 0 {
		mimeType = strings.TrimSpace(mimeType[:idx])
	}
	if mimeType != "" && mimeType != "application/octet-stream" {
		return mimeType
	}

	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".txt"), strings.HasSuffix(lower, ".md"):
		return "text/plain"
	case strings.HasSuffix(lower, ".html"), strings.HasSuffix(lower, ".htm"):
		return "text/html"
	case strings.HasSuffix(lower, ".pdf"):
		return "application/pdf"
	case strings.HasSuffix(lower, ".csv"):
		return "text/csv"
	case strings.HasSuffix(lower, ".json"):
		return "application/json"
	case strings.HasSuffix(lower, ".xlsx"), strings.HasSuffix(lower, ".xlsm"):
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case strings.HasSuffix(lower, ".png"):
		return "image/png"
	case strings.HasSuffix(lower, ".jpg"), strings.HasSuffix(lower, ".jpeg"):
		return "image/jpeg"
	}
	return mimeType
}

func isPlainText(mimeType string) bool {
	switch mimeType {
	case "text/plain", "text/markdown", "text/csv", "application/json":
		return true
	}
	return strings.HasPrefix(mimeType, "text/") && mimeType != "text/html"
}

func isSpreadsheet(mimeType string) bool {
	switch mimeType {
	case "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		"application/vnd.ms-excel":
		return true
	}
	return false
}

// collapseWhitespace squeezes runs of blank lines and spaces left behind
// by markup removal.
func collapseWhitespace(text string) string {
	lines := strings.Split(text, "\n")
	var out []string
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
