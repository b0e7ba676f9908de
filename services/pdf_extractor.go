package services

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/ledongthuc/pdf"
	"google.golang.org/api/option"

	"merchant-docs-rag/internal/config"
	"merchant-docs-rag/internal/logger"
)

// Per-method extraction confidence. The dispatcher copies these into the
// document's extraction metadata so retrieval can weigh low-trust text.
const (
	confidenceGemini  = 0.9
	confidencePoppler = 0.8
	confidenceGoPDF   = 0.6
)

// PDFExtractor pulls text out of PDF bytes using a chain of methods in
// order of preference: Gemini file upload, pdftotext, then the pure-Go
// reader. The first result with acceptable quality wins.
type PDFExtractor struct {
	config       *config.Config
	geminiClient *genai.Client
}

func NewPDFExtractor(cfg *config.Config) *PDFExtractor {
	return &PDFExtractor{config: cfg}
}

// Extract runs the method chain and returns the best result. A method that
// errors is skipped; a method whose text scores below the quality floor is
// kept only as the best-so-far candidate.
func (e *PDFExtractor) Extract(ctx context.Context, content []byte) (*Extraction, error) {
	methods := []struct {
		name       string
		confidence float64
		extract    func(context.Context, []byte) (string, int, error)
	}{
		{"gemini", confidenceGemini, e.extractWithGemini},
		{"poppler", confidencePoppler, e.extractWithPoppler},
		{"go-pdf", confidenceGoPDF, e.extractWithGoPDF},
	}

	var lastErr error
	var best *Extraction
	var bestScore float64

	for _, method := range methods {
		text, pages, err := method.extract(ctx, content)
		if err != nil {
			logger.Debug("PDF extraction method failed", "method", method.name, "error", err)
			lastErr = err
			continue
		}

		score := evaluateTextQuality(text)
		logger.Debug("PDF extraction method result",
			"method", method.name, "chars", len(text), "quality", score)

		result := &Extraction{Text: text, Pages: pages}
		result.Meta.Method = method.name
		result.Meta.Confidence = method.confidence

		if score >= 0.7 {
			return result, nil
		}
		if best == nil || score > bestScore {
			best = result
			bestScore = score
		}
	}

	if best != nil && bestScore >= 0.3 {
		logger.Warn("Using degraded PDF extraction result",
			"method", best.Meta.Method, "quality", bestScore)
		return best, nil
	}
	return nil, fmt.Errorf("all PDF extraction methods failed: %w", lastErr)
}

func (e *PDFExtractor) extractWithGemini(ctx context.Context, content []byte) (string, int, error) {
	if e.config.GeminiAPIKey == "" {
		return "", 0, fmt.Errorf("gemini API key not configured")
	}

	if e.geminiClient == nil {
		client, err := genai.NewClient(ctx, option.WithAPIKey(e.config.GeminiAPIKey))
		if err != nil {
			return "", 0, fmt.Errorf("failed to create gemini client: %w", err)
		}
		e.geminiClient = client
	}

	file, err := e.geminiClient.UploadFile(ctx, "", bytes.NewReader(content), &genai.UploadFileOptions{
		MIMEType: "application/pdf",
	})
	if err != nil {
		return "", 0, fmt.Errorf("failed to upload file to gemini: %w", err)
	}
	defer e.geminiClient.DeleteFile(ctx, file.Name)

	model := e.geminiClient.GenerativeModel("gemini-2.0-flash")
	model.SetTemperature(0.1)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(`You are a precise document text extractor. Extract ALL text content from this PDF exactly as it appears, maintaining original formatting, line breaks, and structure. Do not summarize, interpret, or modify the content. Include headers, footers, captions, and all readable text elements.`)},
	}

	resp, err := model.GenerateContent(ctx,
		genai.FileData{URI: file.URI},
		genai.Text("Extract all text content from this PDF document. Maintain original formatting and structure."),
	)
	if err != nil {
		return "", 0, fmt.Errorf("gemini text extraction failed: %w", err)
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", 0, fmt.Errorf("no text extracted by gemini")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if textPart, ok := part.(genai.Text); ok {
			sb.WriteString(string(textPart))
		}
	}
	text := sb.String()
	return text, guessPageCount(text), nil
}

func (e *PDFExtractor) extractWithPoppler(ctx context.Context, content []byte) (string, int, error) {
	if _, err := exec.LookPath("pdftotext"); err != nil {
		return "", 0, fmt.Errorf("pdftotext not available")
	}

	extractCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cmd := exec.CommandContext(extractCtx, "pdftotext", "-layout", "-", "-")
	cmd.Stdin = bytes.NewReader(content)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", 0, fmt.Errorf("pdftotext failed: %v, stderr: %s", err, stderr.String())
	}

	text := stdout.String()
	if len(text) == 0 {
		return "", 0, fmt.Errorf("no text extracted by pdftotext")
	}
	return text, guessPageCount(text), nil
}

func (e *PDFExtractor) extractWithGoPDF(_ context.Context, content []byte) (string, int, error) {
	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", 0, fmt.Errorf("failed to create PDF reader: %w", err)
	}

	var textBuilder strings.Builder
	pages := reader.NumPage()

	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		fonts := make(map[string]*pdf.Font)
		text, err := page.GetPlainText(fonts)
		if err != nil {
			logger.Debug("Failed to extract text from page", "page", i, "error", err)
			continue
		}
		textBuilder.WriteString(text)
		textBuilder.WriteString("\n\n")
	}

	text := textBuilder.String()
	if len(strings.TrimSpace(text)) == 0 {
		return "", 0, fmt.Errorf("no text extracted by go-pdf")
	}
	return text, pages, nil
}

// evaluateTextQuality scores extracted text in [0,1] based on how much of
// it looks like real prose versus replacement runes and binary noise.
func evaluateTextQuality(text string) float64 {
	text = strings.TrimSpace(text)
	if len(text) < 10 {
		return 0.1
	}

	var alphanumeric, printable, corrupted int
	for _, r := range text {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'):
			alphanumeric++
			printable++
		case r == ' ' || r == '\n' || r == '\t':
			printable++
		case r == '�':
			corrupted++
		case r >= 32 && r <= 126:
			printable++
		default:
			if r > 127 {
				printable++
			}
		}
	}

	total := len([]rune(text))
	alphanumericRatio := float64(alphanumeric) / float64(total)
	printableRatio := float64(printable) / float64(total)
	corruptedRatio := float64(corrupted) / float64(total)

	score := printableRatio * 0.4
	if alphanumericRatio >= 0.3 {
		score += 0.3
	} else {
		score += alphanumericRatio
	}
	score -= corruptedRatio * 2.0
	if len(text) > 100 {
		score += 0.1
	}
	if hasProsePatterns(text) {
		score += 0.2
	}

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// hasProsePatterns is a cheap check for sentence structure in the text.
func hasProsePatterns(text string) bool {
	lower := strings.ToLower(text)
	hits := 0
	for _, word := range []string{" the ", " and ", " of ", " to ", " in ", " for "} {
		if strings.Contains(lower, word) {
			hits++
		}
	}
	if strings.ContainsAny(text, ".!?") {
		hits++
	}
	return hits >= 3
}

// guessPageCount estimates pages from form feeds or text length.
func guessPageCount(text string) int {
	if n := strings.Count(text, "\f"); n > 0 {
		return n + 1
	}
	charCount := len(text)
	switch {
	case charCount < 3000:
		return 1
	default:
		return charCount / 3000
	}
}
