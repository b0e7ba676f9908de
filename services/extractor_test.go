package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"merchant-docs-rag/internal/config"
	"merchant-docs-rag/models"
)

func testExtractor() *Extractor {
	return NewExtractor(&config.Config{
		OCRServiceEnabled: false,
	})
}

func TestExtractDirectText(t *testing.T) {
	e := testExtractor()

	doc := &models.Document{
		ID:       "d1",
		Name:     "notes.txt",
		MimeType: "text/plain",
		Content:  []byte("Interchange fees are negotiated per merchant."),
	}
	result, err := e.Extract(context.Background(), doc)
	require.NoError(t, err)

	assert.Equal(t, "direct", result.Meta.Method)
	assert.Equal(t, 1.0, result.Meta.Confidence)
	assert.Equal(t, "Interchange fees are negotiated per merchant.", result.Text)
}

func TestExtractHTMLStripsMarkup(t *testing.T) {
	e := testExtractor()

	html := `<html><head><style>body{color:red}</style></head>
		<body><script>alert("x")</script><h1>Fee Schedule</h1>
		<p>Processing rate is 2.9 percent.</p></body></html>`
	doc := &models.Document{
		ID:       "d2",
		Name:     "fees.html",
		MimeType: "text/html",
		Content:  []byte(html),
	}
	result, err := e.Extract(context.Background(), doc)
	require.NoError(t, err)

	assert.Equal(t, "html", result.Meta.Method)
	assert.Equal(t, 0.9, result.Meta.Confidence)
	assert.Contains(t, result.Text, "Fee Schedule")
	assert.Contains(t, result.Text, "Processing rate is 2.9 percent.")
	assert.NotContains(t, result.Text, "alert")
	assert.NotContains(t, result.Text, "color:red")
}

func TestExtractUnknownTypeFallsBackToPlaceholder(t *testing.T) {
	e := testExtractor()

	doc := &models.Document{
		ID:       "d3",
		Name:     "firmware.bin",
		MimeType: "application/x-binary",
		Content:  []byte{0x00, 0x01, 0x02},
	}
	result, err := e.Extract(context.Background(), doc)
	require.NoError(t, err)

	assert.Equal(t, "fallback", result.Meta.Method)
	assert.LessOrEqual(t, result.Meta.Confidence, 0.3)
	assert.Equal(t, "Document: firmware.bin - Content type: application/x-binary", result.Text)
}

func TestExtractImageWithOCRDisabledUsesPlaceholder(t *testing.T) {
	e := testExtractor()

	doc := &models.Document{
		ID:       "d4",
		Name:     "receipt.png",
		MimeType: "image/png",
		Content:  []byte("not-a-real-png"),
	}
	result, err := e.Extract(context.Background(), doc)
	require.NoError(t, err)

	assert.Equal(t, "fallback", result.Meta.Method)
}

func TestNormalizeMimeType(t *testing.T) {
	assert.Equal(t, "text/plain", normalizeMimeType("", "readme.md"))
	assert.Equal(t, "application/pdf", normalizeMimeType("application/octet-stream", "report.pdf"))
	assert.Equal(t, "text/html", normalizeMimeType("text/html; charset=utf-8", "page.html"))
	assert.Equal(t, "image/jpeg", normalizeMimeType("", "scan.JPG"))
	assert.Equal(t,
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		normalizeMimeType("", "rates.xlsx"))
}

func TestEvaluateTextQuality(t *testing.T) {
	good := "The interchange rate for standard cards is 1.8 percent. Settlement occurs on the next business day for most merchants."
	assert.GreaterOrEqual(t, evaluateTextQuality(good), 0.7)

	garbage := "�����������"
	assert.Less(t, evaluateTextQuality(garbage), 0.3)

	assert.Equal(t, 0.1, evaluateTextQuality("short"))
}
