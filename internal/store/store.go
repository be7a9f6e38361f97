// Package store persists job postings and their preprocessing results.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spigell/job-preprocessor/internal/model"
	"github.com/spigell/job-preprocessor/internal/requirements"
)

// ErrNotFound is returned when no posting has the requested id.
var ErrNotFound = errors.New("job posting not found")

// Store is durable storage for job postings.
type Store interface {
	// Save upserts the posting including its current preprocessing result.
	Save(ctx context.Context, posting *model.JobPosting) error
	// Import upserts the posting description and clears any previous result.
	Import(ctx context.Context, posting *model.JobPosting) error
	Get(ctx context.Context, id string) (*model.JobPosting, error)
	// List returns postings ordered by id, only those without a result when onlyPending is set.
	List(ctx context.Context, onlyPending bool) ([]*model.JobPosting, error)
	Close() error
}

// Open connects to the store selected by driver ("sqlite" or "postgres").
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case "sqlite", "":
		s, err := OpenSQLite(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "postgres":
		s, err := OpenPostgres(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported store driver %q", driver)
	}
}

// row is the storage shape of a posting. Nil byte slices map to NULL.
type row struct {
	ID           string
	Description  string
	Requirements []byte
	CardIDs      []byte
}

func toRow(p *model.JobPosting) (row, error) {
	r := row{ID: p.ID, Description: p.Description}

	if record := p.ExtractedRequirements(); record != nil {
		data, err := requirements.Encode(record)
		if err != nil {
			return row{}, fmt.Errorf("encode requirements of %s: %w", p.ID, err)
		}
		r.Requirements = data
	}

	if ids := p.RelevantCardIDs(); ids != nil {
		data, err := json.Marshal(ids)
		if err != nil {
			return row{}, fmt.Errorf("encode relevant cards of %s: %w", p.ID, err)
		}
		r.CardIDs = data
	}

	return r, nil
}

func (r row) posting() (*model.JobPosting, error) {
	p := model.NewJobPosting(r.ID, r.Description)
	if r.Requirements == nil && r.CardIDs == nil {
		return p, nil
	}

	var record *model.ExtractedRequirements
	if r.Requirements != nil {
		decoded, err := requirements.Decode(r.Requirements)
		if err != nil {
			return nil, fmt.Errorf("decode requirements of %s: %w", r.ID, err)
		}
		record = decoded
	}

	var ids []string
	if r.CardIDs != nil {
		if err := json.Unmarshal(r.CardIDs, &ids); err != nil {
			return nil, fmt.Errorf("decode relevant cards of %s: %w", r.ID, err)
		}
		if ids == nil {
			ids = []string{}
		}
	}

	p.SetPreprocessed(record, ids)
	return p, nil
}
