package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/ezsolvy/api/internal/client"
	"github.com/ezsolvy/api/internal/middleware"
	"github.com/ezsolvy/api/internal/model"
	"github.com/ezsolvy/api/internal/service"
	"github.com/ezsolvy/api/pkg/response"
)

type ExplanationHandler struct {
	service   *service.ExplanationService
	validator *validator.Validate
}

func NewExplanationHandler(svc *service.ExplanationService, v *validator.Validate) *ExplanationHandler {
	return &ExplanationHandler{
		service:   svc,
		validator: v,
	}
}

// Dispatch handles POST /v1/explanation. Small requests run inline and
// return the finished result; large ones come back as 202 with a job id.
func (h *ExplanationHandler) Dispatch(c *fiber.Ctx) error {
	var req model.ExplanationRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	userID := middleware.GetUserID(c)
	orgID := middleware.GetOrgID(c)

	outcome, err := h.service.Dispatch(c.Context(), userID, orgID, &req)
	if err != nil {
		var rejected *service.ImageRejectedError
		switch {
		case errors.Is(err, service.ErrNoImages):
			return response.ValidationError(c, "At least one image is required", nil)
		case errors.As(err, &rejected):
			return response.PayloadTooLarge(c, rejected.Reason, fiber.Map{"index": rejected.Index})
		case client.IsMalformedResponse(err):
			return response.ProviderError(c, err.Error())
		default:
			return response.ServiceError(c, err.Error())
		}
	}

	if outcome.Mode == model.DispatchModeSync {
		return response.OK(c, model.ExplanationSyncResponse{
			Mode:   model.DispatchModeSync,
			Result: outcome.Result,
		})
	}

	return response.Accepted(c, model.ExplanationAsyncResponse{
		Mode:    model.DispatchModeAsync,
		JobID:   outcome.JobID,
		Message: "Explanation queued",
	})
}
