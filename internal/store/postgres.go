package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spigell/job-preprocessor/internal/model"
)

const postgresSchema = `CREATE TABLE IF NOT EXISTS job_postings (
	id                     TEXT PRIMARY KEY,
	description            TEXT NOT NULL,
	extracted_requirements JSONB,
	relevant_card_ids      JSONB,
	updated_at             TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// Postgres stores postings in PostgreSQL. The table is created on first use.
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres establishes a connection pool to databaseURL.
func OpenPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Save(ctx context.Context, posting *model.JobPosting) error {
	r, err := toRow(posting)
	if err != nil {
		return err
	}

	err = p.withTable(ctx, func() error {
		_, err := p.pool.Exec(ctx,
			`INSERT INTO job_postings (id, description, extracted_requirements, relevant_card_ids, updated_at)
			 VALUES ($1, $2, $3, $4, NOW())
			 ON CONFLICT (id) DO UPDATE SET description = $2, extracted_requirements = $3,
			   relevant_card_ids = $4, updated_at = NOW()`,
			r.ID, r.Description, r.Requirements, r.CardIDs,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to save job posting %s: %w", r.ID, err)
	}
	return nil
}

func (p *Postgres) Import(ctx context.Context, posting *model.JobPosting) error {
	err := p.withTable(ctx, func() error {
		_, err := p.pool.Exec(ctx,
			`INSERT INTO job_postings (id, description, updated_at)
			 VALUES ($1, $2, NOW())
			 ON CONFLICT (id) DO UPDATE SET description = $2, extracted_requirements = NULL,
			   relevant_card_ids = NULL, updated_at = NOW()`,
			posting.ID, posting.Description,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to import job posting %s: %w", posting.ID, err)
	}
	return nil
}

func (p *Postgres) Get(ctx context.Context, id string) (*model.JobPosting, error) {
	var r row
	err := p.withTable(ctx, func() error {
		return p.pool.QueryRow(ctx,
			`SELECT id, description, extracted_requirements, relevant_card_ids FROM job_postings WHERE id = $1`, id,
		).Scan(&r.ID, &r.Description, &r.Requirements, &r.CardIDs)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job posting %s: %w", id, err)
	}
	return r.posting()
}

func (p *Postgres) List(ctx context.Context, onlyPending bool) ([]*model.JobPosting, error) {
	query := `SELECT id, description, extracted_requirements, relevant_card_ids FROM job_postings`
	if onlyPending {
		query += ` WHERE extracted_requirements IS NULL`
	}
	query += ` ORDER BY id`

	var rows []row
	err := p.withTable(ctx, func() error {
		result, err := p.pool.Query(ctx, query)
		if err != nil {
			return err
		}
		rows, err = pgx.CollectRows(result, func(rs pgx.CollectableRow) (row, error) {
			var r row
			err := rs.Scan(&r.ID, &r.Description, &r.Requirements, &r.CardIDs)
			return r, err
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list job postings: %w", err)
	}

	postings := make([]*model.JobPosting, 0, len(rows))
	for _, r := range rows {
		posting, err := r.posting()
		if err != nil {
			return nil, err
		}
		postings = append(postings, posting)
	}
	return postings, nil
}

// Close closes the connection pool.
func (p *Postgres) Close() error {
	if p.pool != nil {
		p.pool.Close()
	}
	return nil
}

// withTable runs fn and, if the table does not exist yet, creates it and runs fn again.
func (p *Postgres) withTable(ctx context.Context, fn func() error) error {
	err := fn()
	if !isUndefinedTable(err) {
		return err
	}

	if _, err := p.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("creating job_postings table: %w", err)
	}
	return fn()
}

func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UndefinedTable
}
