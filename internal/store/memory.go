package store

import (
	"context"
	"sync"
	"time"

	"github.com/ezsolvy/api/internal/model"
)

// Memory is an in-process Store used when Postgres is not configured and in
// tests. It applies the same terminal-state and error/status rules as the
// Postgres store.
type Memory struct {
	mu          sync.RWMutex
	jobs        map[string]*model.Job
	documents   map[string]*model.Document
	transcripts map[string][]model.Transcript
	assets      map[string][]model.Asset
	embeddings  map[string][]model.Embedding
}

// NewMemory creates an empty in-process store.
func NewMemory() *Memory {
	return &Memory{
		jobs:        make(map[string]*model.Job),
		documents:   make(map[string]*model.Document),
		transcripts: make(map[string][]model.Transcript),
		assets:      make(map[string][]model.Asset),
		embeddings:  make(map[string][]model.Embedding),
	}
}

func (s *Memory) CreateJob(ctx context.Context, job *model.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *job
	now := time.Now()
	cp.CreatedAt = now
	cp.UpdatedAt = now
	s.jobs[job.ID] = &cp
	return nil
}

func (s *Memory) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *job
	return &cp, nil
}

func (s *Memory) UpdateJob(ctx context.Context, jobID string, upd model.JobUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return nil
	}
	if job.Status.IsTerminal() {
		return nil
	}

	job.Status = upd.Status
	if upd.Progress != nil {
		job.Progress = upd.Progress
	}
	if upd.Status == model.JobStatusFailed {
		job.Error = upd.Error
		if job.Error == nil {
			job.Error = &model.JobError{Message: "job failed"}
		}
	} else {
		job.Error = nil
	}
	job.UpdatedAt = time.Now()
	return nil
}

func (s *Memory) CreateDocument(ctx context.Context, doc *model.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *doc
	cp.CreatedAt = time.Now()
	s.documents[doc.ID] = &cp
	return nil
}

func (s *Memory) GetDocument(ctx context.Context, documentID string) (*model.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.documents[documentID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *doc
	return &cp, nil
}

func (s *Memory) InsertTranscript(ctx context.Context, t *model.Transcript) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *t
	cp.CreatedAt = time.Now()
	s.transcripts[t.DocumentID] = append(s.transcripts[t.DocumentID], cp)
	return nil
}

func (s *Memory) ListTranscripts(ctx context.Context, documentID string) ([]model.Transcript, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Transcript(nil), s.transcripts[documentID]...), nil
}

func (s *Memory) InsertAsset(ctx context.Context, a *model.Asset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *a
	cp.CreatedAt = time.Now()
	s.assets[a.DocumentID] = append(s.assets[a.DocumentID], cp)
	return nil
}

func (s *Memory) ListAssets(ctx context.Context, documentID string) ([]model.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Asset(nil), s.assets[documentID]...), nil
}

func (s *Memory) InsertEmbedding(ctx context.Context, e *model.Embedding) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.embeddings[e.DocumentID] = append(s.embeddings[e.DocumentID], *e)
	return nil
}

var _ Store = (*Memory)(nil)
