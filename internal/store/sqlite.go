package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/spigell/job-preprocessor/internal/model"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS job_postings (
	id                     TEXT PRIMARY KEY,
	description            TEXT NOT NULL,
	extracted_requirements TEXT,
	relevant_card_ids      TEXT,
	updated_at             TEXT NOT NULL
)`

// SQLite stores postings in an embedded SQLite database.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (or creates) the database at path and ensures the schema exists.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	// One writer at a time; concurrent jobs save through the same handle.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite db: %w", err)
	}

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating job_postings table: %w", err)
	}

	return &SQLite{db: db, now: time.Now}, nil
}

func (s *SQLite) Save(ctx context.Context, posting *model.JobPosting) error {
	r, err := toRow(posting)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO job_postings (id, description, extracted_requirements, relevant_card_ids, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   description = excluded.description,
		   extracted_requirements = excluded.extracted_requirements,
		   relevant_card_ids = excluded.relevant_card_ids,
		   updated_at = excluded.updated_at`,
		r.ID, r.Description, nullText(r.Requirements), nullText(r.CardIDs), s.timestamp(),
	)
	if err != nil {
		return fmt.Errorf("saving job posting %s: %w", r.ID, err)
	}
	return nil
}

func (s *SQLite) Import(ctx context.Context, posting *model.JobPosting) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO job_postings (id, description, extracted_requirements, relevant_card_ids, updated_at)
		 VALUES (?, ?, NULL, NULL, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   description = excluded.description,
		   extracted_requirements = NULL,
		   relevant_card_ids = NULL,
		   updated_at = excluded.updated_at`,
		posting.ID, posting.Description, s.timestamp(),
	)
	if err != nil {
		return fmt.Errorf("importing job posting %s: %w", posting.ID, err)
	}
	return nil
}

func (s *SQLite) Get(ctx context.Context, id string) (*model.JobPosting, error) {
	var (
		r       row
		reqs    sql.NullString
		cardIDs sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, description, extracted_requirements, relevant_card_ids FROM job_postings WHERE id = ?`, id,
	).Scan(&r.ID, &r.Description, &reqs, &cardIDs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting job posting %s: %w", id, err)
	}

	r.Requirements = textBytes(reqs)
	r.CardIDs = textBytes(cardIDs)
	return r.posting()
}

func (s *SQLite) List(ctx context.Context, onlyPending bool) ([]*model.JobPosting, error) {
	query := `SELECT id, description, extracted_requirements, relevant_card_ids FROM job_postings`
	if onlyPending {
		query += ` WHERE extracted_requirements IS NULL`
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing job postings: %w", err)
	}
	defer rows.Close()

	var postings []*model.JobPosting
	for rows.Next() {
		var (
			r       row
			reqs    sql.NullString
			cardIDs sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Description, &reqs, &cardIDs); err != nil {
			return nil, fmt.Errorf("scanning job posting: %w", err)
		}
		r.Requirements = textBytes(reqs)
		r.CardIDs = textBytes(cardIDs)

		p, err := r.posting()
		if err != nil {
			return nil, err
		}
		postings = append(postings, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing job postings: %w", err)
	}

	return postings, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) timestamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

func nullText(b []byte) sql.NullString {
	if b == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}

func textBytes(s sql.NullString) []byte {
	if !s.Valid {
		return nil
	}
	return []byte(s.String)
}
