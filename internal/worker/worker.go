package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"github.com/ezsolvy/api/internal/model"
	"github.com/ezsolvy/api/internal/service"
	"github.com/ezsolvy/api/internal/store"
	"github.com/ezsolvy/api/internal/websocket"
)

// decodeMessage unmarshals the shared pipeline task message.
func decodeMessage(t *asynq.Task) (*model.TaskMessage, error) {
	var msg model.TaskMessage
	if err := json.Unmarshal(t.Payload(), &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task message: %w", err)
	}
	return &msg, nil
}

// claimJob loads the job for a message and decides whether to run it.
// A missing row means the job was deleted out from under the queue; a
// terminal row means a duplicate or stale delivery. Both are dropped.
func claimJob(ctx context.Context, st store.JobStore, jobID string) (*model.Job, bool, error) {
	job, err := st.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Printf("Dropping message for unknown job %s", jobID)
			return nil, false, nil
		}
		return nil, false, err
	}
	if job.Status.IsTerminal() {
		log.Printf("Dropping message for terminal job %s (%s)", jobID, job.Status)
		return nil, false, nil
	}
	return job, true, nil
}

// checkpoint persists a progress snapshot and mirrors it to open sockets.
// Snapshots that would move the step index backwards (a retry re-running
// earlier steps) are skipped, keeping the stored index monotonic.
func checkpoint(ctx context.Context, st store.JobStore, hub *websocket.Hub, jobID string, progress *model.JobProgress) {
	if job, err := st.GetJob(ctx, jobID); err == nil &&
		job.Progress != nil && progress.StepIndex < job.Progress.StepIndex {
		return
	}
	upd := model.JobUpdate{Status: model.JobStatusWorking, Progress: progress}
	if err := st.UpdateJob(ctx, jobID, upd); err != nil {
		log.Printf("Failed to checkpoint job %s: %v", jobID, err)
	}
	if hub != nil {
		hub.BroadcastProgress(jobID, model.JobStatusWorking, progress)
	}
}

// completeJob marks a job done with its result embedded in the final
// progress snapshot.
func completeJob(ctx context.Context, st store.JobStore, hub *websocket.Hub, jobID string, totalSteps int, result interface{}) error {
	resultBytes, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	progress := &model.JobProgress{
		Step:       "done",
		StepIndex:  totalSteps,
		TotalSteps: totalSteps,
		Result:     resultBytes,
	}
	if err := st.UpdateJob(ctx, jobID, model.JobUpdate{Status: model.JobStatusDone, Progress: progress}); err != nil {
		return fmt.Errorf("failed to mark job done: %w", err)
	}
	if hub != nil {
		hub.BroadcastComplete(jobID, result)
	}
	return nil
}

// retryOrFail consumes a failed run. While the attempt budget lasts, a
// copy of the message with attempt+1 goes back on the queue and the job
// stays non-terminal; once the budget is spent, the job fails for good.
// It always returns nil so asynq never layers its own retry on top.
func retryOrFail(ctx context.Context, st store.JobStore, hub *websocket.Hub, enqueuer service.TaskEnqueuer, msg *model.TaskMessage, cause error) error {
	if msg.Attempt+1 < service.MaxAttempts {
		next := *msg
		next.Attempt++

		task, err := service.NewPipelineTask(&next)
		if err != nil {
			log.Printf("Failed to build retry task for job %s: %v", msg.JobID, err)
			return failJob(ctx, st, hub, msg.JobID, cause)
		}
		if _, err := enqueuer.Enqueue(task, asynq.Retention(24*time.Hour)); err != nil {
			log.Printf("Failed to re-enqueue job %s: %v", msg.JobID, err)
			return failJob(ctx, st, hub, msg.JobID, cause)
		}

		// Progress stays untouched so step indices never move backwards
		// across attempts.
		if err := st.UpdateJob(ctx, msg.JobID, model.JobUpdate{Status: model.JobStatusWorking}); err != nil {
			log.Printf("Failed to record retry for job %s: %v", msg.JobID, err)
		}
		log.Printf("Job %s re-enqueued (attempt %d): %v", msg.JobID, next.Attempt, cause)
		return nil
	}

	return failJob(ctx, st, hub, msg.JobID, cause)
}

func failJob(ctx context.Context, st store.JobStore, hub *websocket.Hub, jobID string, cause error) error {
	upd := model.JobUpdate{
		Status: model.JobStatusFailed,
		Error:  &model.JobError{Message: cause.Error()},
	}
	if err := st.UpdateJob(ctx, jobID, upd); err != nil {
		log.Printf("Failed to mark job %s failed: %v", jobID, err)
		return err
	}
	if hub != nil {
		hub.BroadcastError(jobID, "PIPELINE_FAILED", cause.Error())
	}
	log.Printf("Job %s failed: %v", jobID, cause)
	return nil
}
