package store

import (
	"context"
	"errors"

	"github.com/ezsolvy/api/internal/model"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// JobStore is the durable source of truth for job state. The queue
// consumer is its only writer; the status endpoints only read.
type JobStore interface {
	CreateJob(ctx context.Context, job *model.Job) error
	GetJob(ctx context.Context, jobID string) (*model.Job, error)
	// UpdateJob overwrites status/progress/error for a job. Updates against
	// a job already in a terminal state are silently dropped; terminal rows
	// are never rewritten.
	UpdateJob(ctx context.Context, jobID string, upd model.JobUpdate) error
}

// DocumentStore persists documents and their derived content.
type DocumentStore interface {
	CreateDocument(ctx context.Context, doc *model.Document) error
	GetDocument(ctx context.Context, documentID string) (*model.Document, error)
	InsertTranscript(ctx context.Context, t *model.Transcript) error
	ListTranscripts(ctx context.Context, documentID string) ([]model.Transcript, error)
	InsertAsset(ctx context.Context, a *model.Asset) error
	ListAssets(ctx context.Context, documentID string) ([]model.Asset, error)
	InsertEmbedding(ctx context.Context, e *model.Embedding) error
}

// Store bundles the two concerns behind one backend.
type Store interface {
	JobStore
	DocumentStore
}
