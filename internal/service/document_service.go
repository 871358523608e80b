package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/ezsolvy/api/internal/model"
	"github.com/ezsolvy/api/internal/store"
)

// DocumentService manages documents and spawns explain jobs for typed
// sources.
type DocumentService struct {
	store    store.Store
	enqueuer TaskEnqueuer
}

func NewDocumentService(st store.Store, enqueuer TaskEnqueuer) *DocumentService {
	return &DocumentService{store: st, enqueuer: enqueuer}
}

// CreateDocument stores a new document. A typed document with text also
// gets an explain job queued against it.
func (s *DocumentService) CreateDocument(ctx context.Context, userID, orgID string, req *model.CreateDocumentRequest) (*model.CreateDocumentResponse, error) {
	doc := &model.Document{
		ID:      uuid.New().String(),
		OrgID:   orgID,
		Title:   req.Title,
		Source:  req.Source,
		Text:    req.Text,
		FileURL: req.FileURL,
	}
	if err := s.store.CreateDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to create document: %w", err)
	}

	resp := &model.CreateDocumentResponse{DocumentID: doc.ID}

	if req.Source == model.DocumentSourceTyped && req.Text != "" {
		jobID, err := s.enqueueExplain(ctx, userID, orgID, doc.ID, req.Text)
		if err != nil {
			return nil, err
		}
		resp.JobID = jobID
	}

	return resp, nil
}

// GetDocument returns a document with its transcripts and assets.
func (s *DocumentService) GetDocument(ctx context.Context, orgID, documentID string) (*model.GetDocumentResponse, error) {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if orgID != "" && doc.OrgID != orgID {
		return nil, store.ErrNotFound
	}

	transcripts, err := s.store.ListTranscripts(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transcripts: %w", err)
	}
	assets, err := s.store.ListAssets(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}

	return &model.GetDocumentResponse{
		Document:    *doc,
		Transcripts: transcripts,
		Assets:      assets,
	}, nil
}

func (s *DocumentService) enqueueExplain(ctx context.Context, userID, orgID, documentID, text string) (string, error) {
	jobID := uuid.New().String()

	reqBytes, err := json.Marshal(&model.ExplainRequest{DocumentID: documentID, Text: text})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	job := &model.Job{
		ID:         jobID,
		Type:       model.JobTypeExplain,
		Status:     model.JobStatusQueued,
		OrgID:      orgID,
		DocumentID: &documentID,
		Payload:    reqBytes,
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		return "", fmt.Errorf("failed to create job: %w", err)
	}

	msg := &model.TaskMessage{
		JobID:      jobID,
		Type:       model.JobTypeExplain,
		OrgID:      orgID,
		UserID:     userID,
		DocumentID: &documentID,
		Request:    reqBytes,
		Attempt:    0,
	}
	task, err := NewPipelineTask(msg)
	if err != nil {
		return "", err
	}
	if _, err := s.enqueuer.Enqueue(task, asynq.Retention(24*time.Hour)); err != nil {
		return "", fmt.Errorf("failed to enqueue task: %w", err)
	}

	return jobID, nil
}
