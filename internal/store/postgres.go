package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ezsolvy/api/internal/model"
)

// Postgres implements Store backed by PostgreSQL.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a store backed by the given connection pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// CreateJob inserts a new job record.
func (s *Postgres) CreateJob(ctx context.Context, job *model.Job) error {
	progress, err := marshalNullable(job.Progress)
	if err != nil {
		return fmt.Errorf("failed to marshal progress: %w", err)
	}

	query := `
INSERT INTO jobs (id, org_id, document_id, type, status, payload, progress)
VALUES ($1, $2, $3, $4, $5, $6, $7);
`
	_, err = s.pool.Exec(ctx, query,
		job.ID,
		job.OrgID,
		job.DocumentID,
		job.Type,
		job.Status,
		nullableBytes(job.Payload),
		progress,
	)
	return err
}

// GetJob fetches a job by its identifier.
func (s *Postgres) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	query := `
SELECT id, org_id, document_id, type, status, payload, progress, error, created_at, updated_at
FROM jobs
WHERE id = $1;
`
	row := s.pool.QueryRow(ctx, query, jobID)

	var (
		job           model.Job
		progressBytes []byte
		errorBytes    []byte
	)
	if err := row.Scan(
		&job.ID,
		&job.OrgID,
		&job.DocumentID,
		&job.Type,
		&job.Status,
		&job.Payload,
		&progressBytes,
		&errorBytes,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if len(progressBytes) > 0 {
		job.Progress = &model.JobProgress{}
		if err := json.Unmarshal(progressBytes, job.Progress); err != nil {
			return nil, fmt.Errorf("failed to unmarshal progress: %w", err)
		}
	}
	if len(errorBytes) > 0 {
		job.Error = &model.JobError{}
		if err := json.Unmarshal(errorBytes, job.Error); err != nil {
			return nil, fmt.Errorf("failed to unmarshal error: %w", err)
		}
	}
	return &job, nil
}

// UpdateJob overwrites status/progress/error. The WHERE clause drops writes
// against terminal rows, and error is cleared unless the new status is
// failed, keeping error non-null exactly when status is failed.
func (s *Postgres) UpdateJob(ctx context.Context, jobID string, upd model.JobUpdate) error {
	progress, err := marshalNullable(upd.Progress)
	if err != nil {
		return fmt.Errorf("failed to marshal progress: %w", err)
	}

	var errBytes []byte
	if upd.Status == model.JobStatusFailed {
		jobErr := upd.Error
		if jobErr == nil {
			jobErr = &model.JobError{Message: "job failed"}
		}
		errBytes, err = json.Marshal(jobErr)
		if err != nil {
			return fmt.Errorf("failed to marshal error: %w", err)
		}
	}

	query := `
UPDATE jobs
SET status = $2,
    progress = COALESCE($3, progress),
    error = $4,
    updated_at = NOW()
WHERE id = $1
  AND status NOT IN ('done', 'failed');
`
	_, err = s.pool.Exec(ctx, query, jobID, upd.Status, progress, nullableBytes(errBytes))
	return err
}

// CreateDocument inserts a new document record.
func (s *Postgres) CreateDocument(ctx context.Context, doc *model.Document) error {
	query := `
INSERT INTO documents (id, org_id, title, source, text, file_url)
VALUES ($1, $2, $3, $4, $5, $6);
`
	_, err := s.pool.Exec(ctx, query, doc.ID, doc.OrgID, doc.Title, doc.Source, doc.Text, doc.FileURL)
	return err
}

// GetDocument fetches a document by id.
func (s *Postgres) GetDocument(ctx context.Context, documentID string) (*model.Document, error) {
	query := `
SELECT id, org_id, title, source, text, file_url, created_at
FROM documents
WHERE id = $1;
`
	row := s.pool.QueryRow(ctx, query, documentID)
	var doc model.Document
	if err := row.Scan(&doc.ID, &doc.OrgID, &doc.Title, &doc.Source, &doc.Text, &doc.FileURL, &doc.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &doc, nil
}

// InsertTranscript stores a generated transcript against a document.
func (s *Postgres) InsertTranscript(ctx context.Context, t *model.Transcript) error {
	query := `
INSERT INTO transcripts (id, document_id, content, tokens, model)
VALUES ($1, $2, $3, $4, $5);
`
	_, err := s.pool.Exec(ctx, query, t.ID, t.DocumentID, t.Content, t.Tokens, t.Model)
	return err
}

// ListTranscripts returns a document's transcripts, newest first.
func (s *Postgres) ListTranscripts(ctx context.Context, documentID string) ([]model.Transcript, error) {
	query := `
SELECT id, document_id, content, tokens, model, created_at
FROM transcripts
WHERE document_id = $1
ORDER BY created_at DESC;
`
	rows, err := s.pool.Query(ctx, query, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Transcript
	for rows.Next() {
		var t model.Transcript
		if err := rows.Scan(&t.ID, &t.DocumentID, &t.Content, &t.Tokens, &t.Model, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// InsertAsset stores an artifact reference.
func (s *Postgres) InsertAsset(ctx context.Context, a *model.Asset) error {
	bbox, err := marshalNullable(a.BBox)
	if err != nil {
		return fmt.Errorf("failed to marshal bbox: %w", err)
	}
	query := `
INSERT INTO assets (id, document_id, kind, url, bbox)
VALUES ($1, $2, $3, $4, $5);
`
	_, err = s.pool.Exec(ctx, query, a.ID, a.DocumentID, a.Kind, a.URL, bbox)
	return err
}

// ListAssets returns a document's assets in insertion order.
func (s *Postgres) ListAssets(ctx context.Context, documentID string) ([]model.Asset, error) {
	query := `
SELECT id, document_id, kind, url, bbox, created_at
FROM assets
WHERE document_id = $1
ORDER BY created_at ASC;
`
	rows, err := s.pool.Query(ctx, query, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Asset
	for rows.Next() {
		var (
			a         model.Asset
			bboxBytes []byte
		)
		if err := rows.Scan(&a.ID, &a.DocumentID, &a.Kind, &a.URL, &bboxBytes, &a.CreatedAt); err != nil {
			return nil, err
		}
		if len(bboxBytes) > 0 {
			a.BBox = &model.BBox{}
			if err := json.Unmarshal(bboxBytes, a.BBox); err != nil {
				return nil, fmt.Errorf("failed to unmarshal bbox: %w", err)
			}
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// InsertEmbedding stores one transcript chunk vector.
func (s *Postgres) InsertEmbedding(ctx context.Context, e *model.Embedding) error {
	vec, err := json.Marshal(e.Vector)
	if err != nil {
		return fmt.Errorf("failed to marshal vector: %w", err)
	}
	query := `
INSERT INTO embeddings (document_id, chunk, vec)
VALUES ($1, $2, $3);
`
	_, err = s.pool.Exec(ctx, query, e.DocumentID, e.Chunk, vec)
	return err
}

func marshalNullable(v interface{}) ([]byte, error) {
	switch t := v.(type) {
	case *model.JobProgress:
		if t == nil {
			return nil, nil
		}
	case *model.BBox:
		if t == nil {
			return nil, nil
		}
	}
	return json.Marshal(v)
}

func nullableBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}

var _ Store = (*Postgres)(nil)
