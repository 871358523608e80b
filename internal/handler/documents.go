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

type DocumentsHandler struct {
	service   *service.DocumentService
	validator *validator.Validate
}

func NewDocumentsHandler(svc *service.DocumentService, v *validator.Validate) *DocumentsHandler {
	return &DocumentsHandler{
		service:   svc,
		validator: v,
	}
}

// Create handles POST /v1/documents
func (h *DocumentsHandler) Create(c *fiber.Ctx) error {
	var req model.CreateDocumentRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}
	if req.Source == model.DocumentSourceTyped && req.Text == "" {
		return response.ValidationError(c, "Typed documents require text", nil)
	}
	if req.Source == model.DocumentSourcePDF && req.FileURL == "" {
		return response.ValidationError(c, "PDF documents require a file URL", nil)
	}

	userID := middleware.GetUserID(c)
	orgID := middleware.GetOrgID(c)

	result, err := h.service.CreateDocument(c.Context(), userID, orgID, &req)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	return response.Created(c, result)
}

// Get handles GET /v1/documents/:documentId
func (h *DocumentsHandler) Get(c *fiber.Ctx) error {
	documentID := c.Params("documentId")
	if documentID == "" {
		return response.ValidationError(c, "Document ID is required", nil)
	}

	orgID := middleware.GetOrgID(c)
	result, err := h.service.GetDocument(c.Context(), orgID, documentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return response.NotFound(c, "Document not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}
