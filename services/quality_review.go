package services

import (
	"fmt"
	"strings"
	"time"

	"merchant-docs-rag/models"
)

// reviewConfidenceFloor marks extractions that only produced placeholder
// or near-placeholder text.
const reviewConfidenceFloor = 0.5

// QualityReport summarizes corpus health for operators and the sweep job.
type QualityReport struct {
	TotalDocuments int              `json:"total_documents"`
	Completed      int              `json:"completed"`
	Failed         int              `json:"failed"`
	Pending        int              `json:"pending"`
	NeedsReview    []QualityFinding `json:"needs_review"`
}

// QualityFinding names one document that should be looked at or
// reprocessed, with the reason it was flagged.
type QualityFinding struct {
	DocumentID string  `json:"document_id"`
	Name       string  `json:"name"`
	Reason     string  `json:"reason"`
	Method     string  `json:"method,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

// QualityReviewer audits the registry for documents whose indexed content
// is unlikely to be useful: failed runs, placeholder extractions, and
// documents that produced no chunks.
type QualityReviewer struct {
	registry *DocumentRegistry
}

func NewQualityReviewer(registry *DocumentRegistry) *QualityReviewer {
	return &QualityReviewer{registry: registry}
}

func (q *QualityReviewer) Review() QualityReport {
	report := QualityReport{NeedsReview: []QualityFinding{}}

	for _, doc := range q.registry.List() {
		report.TotalDocuments++

		switch doc.Status {
		case models.StatusCompleted:
			report.Completed++
		case models.StatusFailed:
			report.Failed++
			report.NeedsReview = append(report.NeedsReview, QualityFinding{
				DocumentID: doc.ID,
				Name:       doc.Name,
				Reason:     "indexing failed: " + doc.ErrorMsg,
			})
			continue
		default:
			report.Pending++
			continue
		}

		if doc.Extraction.Method == "fallback" || doc.Extraction.Confidence <= reviewConfidenceFloor {
			report.NeedsReview = append(report.NeedsReview, QualityFinding{
				DocumentID: doc.ID,
				Name:       doc.Name,
				Reason:     "low-confidence extraction",
				Method:     doc.Extraction.Method,
				Confidence: doc.Extraction.Confidence,
			})
			continue
		}
		if doc.ChunkCount == 0 {
			report.NeedsReview = append(report.NeedsReview, QualityFinding{
				DocumentID: doc.ID,
				Name:       doc.Name,
				Reason:     "no chunks produced",
			})
		}
	}
	return report
}

// Markdown renders the report for operators, worst findings first.
func (r QualityReport) Markdown() string {
	var b strings.Builder
	b.WriteString("# Document Quality Report\n\n")
	fmt.Fprintf(&b, "Generated: %s\n\n", time.Now().UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "- Total documents: %d\n", r.TotalDocuments)
	fmt.Fprintf(&b, "- Completed: %d\n", r.Completed)
	fmt.Fprintf(&b, "- Failed: %d\n", r.Failed)
	fmt.Fprintf(&b, "- Pending: %d\n\n", r.Pending)

	if len(r.NeedsReview) == 0 {
		b.WriteString("No documents need review.\n")
		return b.String()
	}

	b.WriteString("## Needs review\n\n")
	for _, f := range r.NeedsReview {
		fmt.Fprintf(&b, "- **%s** (`%s`): %s", f.Name, f.DocumentID, f.Reason)
		if f.Method != "" {
			fmt.Fprintf(&b, " (method=%s, confidence=%.2f)", f.Method, f.Confidence)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// ReprocessCandidates returns the documents the sweep should re-enqueue:
// failed runs plus anything stuck in pending.
func (q *QualityReviewer) ReprocessCandidates() []*models.Document {
	candidates := q.registry.ListByStatus(models.StatusFailed)
	candidates = append(candidates, q.registry.ListByStatus(models.StatusPending)...)
	return candidates
}
