package services

import (
	"time"

	"github.com/go-co-op/gocron"

	"merchant-docs-rag/internal/logger"
	"merchant-docs-rag/models"
)

// SweepScheduler periodically re-enqueues documents that failed indexing
// or never left the pending state. Enqueueing is injected so the service
// layer stays independent of the task queue wiring.
type SweepScheduler struct {
	scheduler *gocron.Scheduler
	reviewer  *QualityReviewer
	enqueue   func(doc *models.Document) error
}

func NewSweepScheduler(reviewer *QualityReviewer, enqueue func(doc *models.Document) error) *SweepScheduler {
	s := gocron.NewScheduler(time.UTC)
	s.TagsUnique()
	return &SweepScheduler{
		scheduler: s,
		reviewer:  reviewer,
		enqueue:   enqueue,
	}
}

// Start registers the sweep on the given cron expression and runs the
// scheduler in the background.
func (s *SweepScheduler) Start(cronExpr string) error {
	if _, err := s.scheduler.Cron(cronExpr).Tag("reprocess-sweep").Do(s.sweep); err != nil {
		return err
	}
	s.scheduler.StartAsync()
	logger.Info("Reprocess sweep scheduled", "cron", cronExpr)
	return nil
}

func (s *SweepScheduler) Stop() {
	s.scheduler.Stop()
}

func (s *SweepScheduler) sweep() {
	candidates := s.reviewer.ReprocessCandidates()
	if len(candidates) == 0 {
		return
	}

	enqueued := 0
	for _, doc := range candidates {
		if err := s.enqueue(doc); err != nil {
			logger.Warn("Failed to enqueue document for reprocessing",
				"document_id", doc.ID, "error", err)
			continue
		}
		enqueued++
	}
	logger.Info("Reprocess sweep completed", "candidates", len(candidates), "enqueued", enqueued)
}
