package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/readably/api/internal/model"
	"github.com/readably/api/internal/service"
	"github.com/readably/api/pkg/response"
)

type VocabularyHandler struct {
	service   *service.VocabularyService
	validator *validator.Validate
}

func NewVocabularyHandler(svc *service.VocabularyService, v *validator.Validate) *VocabularyHandler {
	return &VocabularyHandler{
		service:   svc,
		validator: v,
	}
}

// Start handles POST /api/vocabulary/start
func (h *VocabularyHandler) Start(c *fiber.Ctx) error {
	var req model.VocabularyStartRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.Start(c.Context(), &req)
	if err != nil {
		if errors.Is(err, service.ErrDuplicateJob) {
			return response.Conflict(c, "A job with this ID is already running")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.Accepted(c, result)
}

// formatValidationErrors formats validator errors for response
func formatValidationErrors(err error) interface{} {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		errors := make(map[string]string)
		for _, e := range validationErrors {
			errors[e.Field()] = e.Tag()
		}
		return errors
	}
	return nil
}
