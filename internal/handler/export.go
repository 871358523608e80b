package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/ezsolvy/api/internal/middleware"
	"github.com/ezsolvy/api/internal/model"
	"github.com/ezsolvy/api/internal/service"
	"github.com/ezsolvy/api/internal/store"
	"github.com/ezsolvy/api/pkg/response"
)

type ExportHandler struct {
	service   *service.ExportService
	validator *validator.Validate
}

func NewExportHandler(svc *service.ExportService, v *validator.Validate) *ExportHandler {
	return &ExportHandler{
		service:   svc,
		validator: v,
	}
}

// Start handles POST /v1/export
func (h *ExportHandler) Start(c *fiber.Ctx) error {
	var req model.ExportRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	userID := middleware.GetUserID(c)
	orgID := middleware.GetOrgID(c)

	result, err := h.service.StartExport(c.Context(), userID, orgID, &req)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return response.NotFound(c, "Document not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.Accepted(c, result)
}
