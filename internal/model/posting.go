// Package model holds the data shared by the preprocessing pipeline: job postings,
// knowledge cards, skills and the extracted requirements record.
package model

import (
	"slices"
	"sync"
)

// JobPosting is a free-text job description owned by the caller. The pipeline only
// ever replaces the extracted requirements and the relevant card ids, both at once.
type JobPosting struct {
	ID          string
	Description string

	mu                    sync.RWMutex
	extractedRequirements *ExtractedRequirements
	relevantCardIDs       []string
}

func NewJobPosting(id, description string) *JobPosting {
	return &JobPosting{ID: id, Description: description}
}

// ExtractedRequirements returns the last stored record or nil when preprocessing
// never completed for this posting.
func (p *JobPosting) ExtractedRequirements() *ExtractedRequirements {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.extractedRequirements
}

// RelevantCardIDs returns a copy of the card ids flagged as relevant, or nil.
func (p *JobPosting) RelevantCardIDs() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.relevantCardIDs)
}

// IsPreprocessed reports whether a record has been written onto the posting.
func (p *JobPosting) IsPreprocessed() bool {
	return p.ExtractedRequirements() != nil
}

// SetPreprocessed replaces both pipeline-owned fields in a single step.
func (p *JobPosting) SetPreprocessed(record *ExtractedRequirements, relevantCardIDs []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.extractedRequirements = record
	p.relevantCardIDs = slices.Clone(relevantCardIDs)
}
