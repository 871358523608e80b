package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"

	"github.com/ezsolvy/api/internal/middleware"
	"github.com/ezsolvy/api/internal/model"
	"github.com/ezsolvy/api/internal/service"
	"github.com/ezsolvy/api/internal/store"
	"github.com/ezsolvy/api/internal/stream"
	"github.com/ezsolvy/api/pkg/response"
)

type JobsHandler struct {
	service *service.JobsService
	watcher stream.Watcher
}

func NewJobsHandler(svc *service.JobsService, watcher stream.Watcher) *JobsHandler {
	return &JobsHandler{
		service: svc,
		watcher: watcher,
	}
}

// Get handles GET /v1/jobs/:jobId
func (h *JobsHandler) Get(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	orgID := middleware.GetOrgID(c)
	result, err := h.service.GetJob(c.Context(), orgID, jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return response.NotFound(c, "Job not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}

// Stream handles GET /v1/jobs/:jobId/stream as server-sent events. Each
// state change becomes one event frame; the connection closes after a
// terminal event.
func (h *JobsHandler) Stream(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	orgID := middleware.GetOrgID(c)
	if _, err := h.service.GetJob(c.Context(), orgID, jobID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// One error frame, then EOF. Stream consumers treat this the
			// same as a watcher-reported unknown job.
			event := model.JobEvent{
				Type:      model.EventTypeError,
				JobID:     jobID,
				Timestamp: time.Now(),
				Data:      model.JobEventData{Message: "job not found"},
			}
			return c.SendString(formatEvent(&event))
		}
		return response.ServiceError(c, err.Error())
	}

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		events := h.watcher.Watch(ctx, jobID)
		for event := range events {
			if _, err := fmt.Fprint(w, formatEvent(&event)); err != nil {
				return
			}
			// Flush failure means the client went away.
			if err := w.Flush(); err != nil {
				return
			}
		}
	}))

	return nil
}

func formatEvent(event *model.JobEvent) string {
	data, err := json.Marshal(event)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("event: %s\ndata: %s\n\n", event.Type, data)
}
