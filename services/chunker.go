package services

import (
	"regexp"
	"strings"

	"merchant-docs-rag/internal/config"
	"merchant-docs-rag/models"
)

// genericPhrases mark placeholder or boilerplate text produced by degraded
// extraction. A chunk containing one is capped at low quality no matter
// what else it says.
var genericPhrases = []string{
	"this pdf document contains",
	"document contains information",
	"this document is available for processing",
	"found document:",
}

// Chunker splits extracted text into bounded, sentence-aligned chunks and
// scores each one. Chunk IDs are deterministic per document and ordinal,
// so re-chunking a document overwrites its prior records by upsert.
type Chunker struct {
	maxChunkSize  int
	minChunkSize  int
	merchantTerms []string
	sentenceRegex *regexp.Regexp
}

func NewChunker(cfg *config.Config) *Chunker {
	terms := make([]string, 0, len(cfg.MerchantTerms))
	for _, t := range cfg.MerchantTerms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			terms = append(terms, t)
		}
	}
	return &Chunker{
		maxChunkSize:  cfg.MaxChunkSize,
		minChunkSize:  cfg.MinChunkSize,
		merchantTerms: terms,
		sentenceRegex: regexp.MustCompile(`[.!?]+`),
	}
}

// ChunkText splits text on sentence boundaries and greedily packs
// sentences until the next one would push the chunk past the size cap.
// A single sentence longer than the cap becomes its own oversized chunk
// rather than being cut mid-sentence. Indices are contiguous from zero.
func (c *Chunker) ChunkText(documentID, text string) []models.Chunk {
	sentences := c.splitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	var chunks []models.Chunk
	var current strings.Builder

	flush := func() {
		content := strings.TrimSpace(current.String())
		current.Reset()
		if content == "" {
			return
		}
		chunks = append(chunks, c.buildChunk(documentID, len(chunks), content))
	}

	for _, sentence := range sentences {
		if current.Len() > 0 && current.Len()+len(sentence)+1 > c.maxChunkSize {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(sentence)
	}
	flush()

	return chunks
}

// splitSentences breaks text on terminal punctuation, restoring a period
// so each piece reads as a sentence.
func (c *Chunker) splitSentences(text string) []string {
	parts := c.sentenceRegex.Split(text, -1)
	sentences := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		sentences = append(sentences, part+".")
	}
	return sentences
}

func (c *Chunker) buildChunk(documentID string, index int, content string) models.Chunk {
	quality, keywords := c.scoreChunk(content)
	return models.Chunk{
		ID:         models.ChunkID(documentID, index),
		DocumentID: documentID,
		Index:      index,
		Content:    content,
		Quality:    quality,
		Keywords:   keywords,
	}
}

// scoreChunk assigns a deterministic quality label. Length below the
// minimum is penalized, domain vocabulary and structural signals raise
// the score, and generic placeholder phrasing caps the chunk at low.
func (c *Chunker) scoreChunk(content string) (models.ChunkQuality, []string) {
	lower := strings.ToLower(content)

	var keywords []string
	for _, term := range c.merchantTerms {
		if strings.Contains(lower, term) {
			keywords = append(keywords, term)
		}
	}

	for _, phrase := range genericPhrases {
		if strings.Contains(lower, phrase) {
			return models.QualityLow, keywords
		}
	}

	score := 0
	if len(content) >= c.minChunkSize {
		score++
	} else {
		score--
	}
	if len(keywords) > 0 {
		score++
	}
	if len(keywords) >= 3 {
		score++
	}
	if hasStructuralSignal(content) {
		score++
	}

	switch {
	case score >= 3:
		return models.QualityHigh, keywords
	case score >= 1:
		return models.QualityMedium, keywords
	default:
		return models.QualityLow, keywords
	}
}

// hasStructuralSignal detects concrete data in the chunk: figures,
// percentages, currency, or list formatting.
func hasStructuralSignal(content string) bool {
	if strings.ContainsAny(content, "$%") {
		return true
	}
	for _, r := range content {
		if r >= '0' && r <= '9' {
			return true
		}
	}
	for _, marker := range []string{"\n- ", "\n* ", "\n1.", ": "} {
		if strings.Contains(content, marker) {
			return true
		}
	}
	return false
}
