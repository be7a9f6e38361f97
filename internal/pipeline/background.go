package pipeline

import (
	"context"
	"slices"

	"github.com/google/uuid"

	"github.com/spigell/job-preprocessor/internal/model"
	"github.com/spigell/job-preprocessor/internal/scheduler"
)

// Preprocessor is the entry point for background preprocessing.
type Preprocessor struct {
	pipeline  *Pipeline
	scheduler *scheduler.Scheduler
}

func NewPreprocessor(p *Pipeline, s *scheduler.Scheduler) *Preprocessor {
	return &Preprocessor{pipeline: p, scheduler: s}
}

// PreprocessInBackground queues posting and returns immediately. The outcome is
// only visible through the posting fields, logs and telemetry.
func (pp *Preprocessor) PreprocessInBackground(posting *model.JobPosting, cards []model.KnowledgeCard) {
	if posting == nil {
		return
	}

	jobID := uuid.NewString()
	cards = slices.Clone(cards)

	pp.scheduler.Enqueue(scheduler.Job{
		ID:        jobID,
		PostingID: posting.ID,
		Name:      "Preprocess " + posting.ID,
		Run: func(ctx context.Context) error {
			return pp.pipeline.Run(ctx, jobID, posting, cards)
		},
	})
}

// Wait blocks until every queued posting has been processed.
func (pp *Preprocessor) Wait(ctx context.Context) error {
	return pp.scheduler.Wait(ctx)
}
