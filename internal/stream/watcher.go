package stream

import (
	"context"
	"errors"
	"time"

	"github.com/ezsolvy/api/internal/model"
	"github.com/ezsolvy/api/internal/store"
)

// Watcher turns a job's stored state into an ordered event feed. The
// transport (SSE handler) only drains the channel, so the polling
// strategy can be swapped without touching it.
type Watcher interface {
	// Watch emits the job's current snapshot immediately, then the
	// current snapshot again on every poll tick. Snapshots repeat even
	// when nothing changed, so a transport writing each event notices a
	// dead client within one tick. The channel closes after a terminal
	// event, on context cancellation, or after a single error event for
	// an unknown job.
	Watch(ctx context.Context, jobID string) <-chan model.JobEvent
}

// PollWatcher implements Watcher by re-reading the job row on a fixed
// interval.
type PollWatcher struct {
	store    store.JobStore
	interval time.Duration
}

func NewPollWatcher(st store.JobStore, interval time.Duration) *PollWatcher {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &PollWatcher{store: st, interval: interval}
}

func (w *PollWatcher) Watch(ctx context.Context, jobID string) <-chan model.JobEvent {
	out := make(chan model.JobEvent, 8)

	go func() {
		defer close(out)

		job, err := w.store.GetJob(ctx, jobID)
		if err != nil {
			out <- errorEvent(jobID, err)
			return
		}
		if !emit(ctx, out, job) {
			return
		}
		if job.Status.IsTerminal() {
			return
		}

		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			job, err := w.store.GetJob(ctx, jobID)
			if err != nil {
				out <- errorEvent(jobID, err)
				return
			}

			if !emit(ctx, out, job) {
				return
			}
			if job.Status.IsTerminal() {
				return
			}
		}
	}()

	return out
}

func emit(ctx context.Context, out chan<- model.JobEvent, job *model.Job) bool {
	event := model.JobEvent{
		Type:      model.EventTypeForStatus(job.Status),
		JobID:     job.ID,
		Timestamp: time.Now(),
		Data: model.JobEventData{
			Status:   job.Status,
			Progress: job.Progress,
			Error:    job.Error,
		},
	}
	select {
	case out <- event:
		return true
	case <-ctx.Done():
		return false
	}
}

func errorEvent(jobID string, err error) model.JobEvent {
	message := "failed to load job"
	if errors.Is(err, store.ErrNotFound) {
		message = "job not found"
	}
	return model.JobEvent{
		Type:      model.EventTypeError,
		JobID:     jobID,
		Timestamp: time.Now(),
		Data:      model.JobEventData{Message: message},
	}
}
