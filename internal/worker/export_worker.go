package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/hibiken/asynq"

	"github.com/ezsolvy/api/internal/client"
	"github.com/ezsolvy/api/internal/model"
	"github.com/ezsolvy/api/internal/service"
	"github.com/ezsolvy/api/internal/store"
	"github.com/ezsolvy/api/internal/websocket"
)

const exportTotalSteps = 3

// ExportWorker composes a document's rendered pages into a PDF and
// stores it.
type ExportWorker struct {
	store      store.Store
	enqueuer   service.TaskEnqueuer
	exportSvc  *service.ExportService
	r2         client.StorageClient
	hub        *websocket.Hub
	httpClient *http.Client
}

// NewExportWorker creates a new export worker
func NewExportWorker(st store.Store, enqueuer service.TaskEnqueuer, exportSvc *service.ExportService, r2 client.StorageClient, hub *websocket.Hub) *ExportWorker {
	return &ExportWorker{
		store:     st,
		enqueuer:  enqueuer,
		exportSvc: exportSvc,
		r2:        r2,
		hub:       hub,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// ProcessTask handles one pdf-export message
func (w *ExportWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	msg, err := decodeMessage(t)
	if err != nil {
		return err
	}

	_, ok, err := claimJob(ctx, w.store, msg.JobID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	log.Printf("Starting export job %s (attempt %d)", msg.JobID, msg.Attempt)

	var req model.ExportRequest
	if err := json.Unmarshal(msg.Request, &req); err != nil {
		return failJob(ctx, w.store, w.hub, msg.JobID, fmt.Errorf("invalid request payload: %w", err))
	}

	result, err := w.run(ctx, msg.JobID, &req)
	if err != nil {
		return retryOrFail(ctx, w.store, w.hub, w.enqueuer, msg, err)
	}

	if err := completeJob(ctx, w.store, w.hub, msg.JobID, exportTotalSteps, result); err != nil {
		return err
	}

	log.Printf("Export job %s completed", msg.JobID)
	return nil
}

func (w *ExportWorker) run(ctx context.Context, jobID string, req *model.ExportRequest) (*model.ExportResult, error) {
	step := func(idx int, name, message string) {
		checkpoint(ctx, w.store, w.hub, jobID, &model.JobProgress{
			Step:       name,
			StepIndex:  idx,
			TotalSteps: exportTotalSteps,
			Message:    message,
		})
	}

	// Step 1: collect the document's rendered pages
	assets, err := w.store.ListAssets(ctx, req.DocumentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}

	var pages [][]byte
	for _, asset := range assets {
		if asset.Kind != model.AssetKindImage && asset.Kind != model.AssetKindDiagram {
			continue
		}
		page, err := w.fetch(ctx, asset.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch page %s: %w", asset.ID, err)
		}
		pages = append(pages, page)
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("document %s has no renderable pages", req.DocumentID)
	}
	step(1, "collect", fmt.Sprintf("collected %d page(s)", len(pages)))

	// Step 2: compose the PDF
	pdfBytes, err := w.exportSvc.BuildPDF(pages)
	if err != nil {
		return nil, err
	}
	step(2, "compose", "PDF assembled")

	// Step 3: store it
	key := fmt.Sprintf("exports/%s/%s.pdf", req.DocumentID, jobID)
	var pdfURL string
	if w.r2 != nil {
		pdfURL, err = w.r2.Upload(ctx, key, bytes.NewReader(pdfBytes), "application/pdf")
		if err != nil {
			return nil, fmt.Errorf("failed to upload PDF: %w", err)
		}
	} else {
		pdfURL = "/" + key
	}
	step(3, "upload", "PDF stored")

	return &model.ExportResult{PDFURL: pdfURL}, nil
}

func (w *ExportWorker) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
