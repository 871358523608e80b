package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/hibiken/asynq"

	"github.com/ezsolvy/api/internal/model"
	"github.com/ezsolvy/api/internal/service"
	"github.com/ezsolvy/api/internal/store"
	"github.com/ezsolvy/api/internal/websocket"
)

// ExplanationWorker processes queued image explanation jobs
type ExplanationWorker struct {
	store    store.JobStore
	svc      *service.ExplanationService
	enqueuer service.TaskEnqueuer
	hub      *websocket.Hub
}

// NewExplanationWorker creates a new explanation worker
func NewExplanationWorker(st store.JobStore, svc *service.ExplanationService, enqueuer service.TaskEnqueuer, hub *websocket.Hub) *ExplanationWorker {
	return &ExplanationWorker{
		store:    st,
		svc:      svc,
		enqueuer: enqueuer,
		hub:      hub,
	}
}

// ProcessTask handles one image explanation message
func (w *ExplanationWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
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

	log.Printf("Starting explanation job %s (attempt %d)", msg.JobID, msg.Attempt)

	var req model.ExplanationRequest
	if err := json.Unmarshal(msg.Request, &req); err != nil {
		// An unreadable request can never succeed on retry.
		return failJob(ctx, w.store, w.hub, msg.JobID, fmt.Errorf("invalid request payload: %w", err))
	}

	totalSteps := 4 * len(req.Sources())
	checkpoint(ctx, w.store, w.hub, msg.JobID, &model.JobProgress{
		Step:       "analyze",
		StepIndex:  0,
		TotalSteps: totalSteps,
		Message:    "starting pipeline",
	})

	result, err := w.svc.RunWithProgress(ctx, &req, func(step string, stepIndex, total int, message string) {
		checkpoint(ctx, w.store, w.hub, msg.JobID, &model.JobProgress{
			Step:       step,
			StepIndex:  stepIndex,
			TotalSteps: total,
			Message:    message,
		})
	})
	if err != nil {
		return retryOrFail(ctx, w.store, w.hub, w.enqueuer, msg, err)
	}

	if err := completeJob(ctx, w.store, w.hub, msg.JobID, totalSteps, result); err != nil {
		return err
	}

	log.Printf("Explanation job %s completed", msg.JobID)
	return nil
}
