package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/ezsolvy/api/internal/model"
	"github.com/ezsolvy/api/internal/store"
)

// ExportService queues PDF export jobs and assembles the PDF itself.
type ExportService struct {
	store    store.Store
	enqueuer TaskEnqueuer
}

func NewExportService(st store.Store, enqueuer TaskEnqueuer) *ExportService {
	return &ExportService{store: st, enqueuer: enqueuer}
}

// StartExport queues a pdf-export job for a document. The document must
// exist and belong to the caller's organization.
func (s *ExportService) StartExport(ctx context.Context, userID, orgID string, req *model.ExportRequest) (*model.ExportResponse, error) {
	doc, err := s.store.GetDocument(ctx, req.DocumentID)
	if err != nil {
		return nil, err
	}
	if orgID != "" && doc.OrgID != orgID {
		return nil, store.ErrNotFound
	}

	jobID := uuid.New().String()

	reqBytes, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	job := &model.Job{
		ID:         jobID,
		Type:       model.JobTypePDFExport,
		Status:     model.JobStatusQueued,
		OrgID:      orgID,
		DocumentID: &req.DocumentID,
		Payload:    reqBytes,
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	msg := &model.TaskMessage{
		JobID:      jobID,
		Type:       model.JobTypePDFExport,
		OrgID:      orgID,
		UserID:     userID,
		DocumentID: &req.DocumentID,
		Request:    reqBytes,
		Attempt:    0,
	}
	task, err := NewPipelineTask(msg)
	if err != nil {
		return nil, err
	}
	if _, err := s.enqueuer.Enqueue(task, asynq.Retention(24*time.Hour)); err != nil {
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	return &model.ExportResponse{JobID: jobID, Status: model.JobStatusQueued}, nil
}

// BuildPDF assembles page images into a single PDF, one image per page,
// and returns the PDF bytes. Page order is preserved.
func (s *ExportService) BuildPDF(pages [][]byte) ([]byte, error) {
	if len(pages) == 0 {
		return nil, fmt.Errorf("no pages to export")
	}

	dir, err := os.MkdirTemp("", "export-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	imgFiles := make([]string, 0, len(pages))
	for i, page := range pages {
		name := filepath.Join(dir, fmt.Sprintf("page-%03d.png", i+1))
		if err := os.WriteFile(name, page, 0o600); err != nil {
			return nil, fmt.Errorf("failed to write page %d: %w", i+1, err)
		}
		imgFiles = append(imgFiles, name)
	}

	outFile := filepath.Join(dir, "out.pdf")
	if err := pdfapi.ImportImagesFile(imgFiles, outFile, nil, nil); err != nil {
		return nil, fmt.Errorf("failed to build PDF: %w", err)
	}

	pdfBytes, err := os.ReadFile(outFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read PDF: %w", err)
	}
	return pdfBytes, nil
}
