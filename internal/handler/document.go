package handler

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/readably/api/internal/model"
	"github.com/readably/api/internal/service"
	"github.com/readably/api/pkg/response"
)

type DocumentHandler struct {
	service     *service.DocumentService
	validator   *validator.Validate
	maxUploadMB int
}

func NewDocumentHandler(svc *service.DocumentService, v *validator.Validate, maxUploadMB int) *DocumentHandler {
	if maxUploadMB <= 0 {
		maxUploadMB = 50
	}
	return &DocumentHandler{
		service:     svc,
		validator:   v,
		maxUploadMB: maxUploadMB,
	}
}

// Process handles POST /api/documents/process
func (h *DocumentHandler) Process(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return response.ValidationError(c, "File is required", nil)
	}

	maxSize := int64(h.maxUploadMB) * 1024 * 1024
	if file.Size > maxSize {
		return response.ValidationError(c, fmt.Sprintf("File size exceeds %dMB limit", h.maxUploadMB), map[string]interface{}{
			"maxSize":  maxSize,
			"fileSize": file.Size,
		})
	}

	contentType := file.Header.Get("Content-Type")
	if contentType != "" && contentType != "application/pdf" && contentType != "application/octet-stream" {
		return response.ValidationError(c, "Invalid file type. Supported: PDF", map[string]interface{}{
			"contentType": contentType,
		})
	}

	f, err := file.Open()
	if err != nil {
		return response.ServiceError(c, "Failed to open file")
	}
	defer f.Close()

	pdf, err := io.ReadAll(f)
	if err != nil {
		return response.ServiceError(c, "Failed to read file")
	}

	opts := model.ProcessingOptions{
		EnableImages:     formBool(c, "enableImages"),
		EnableVocabulary: formBool(c, "enableVocabulary"),
		EnablePhonemes:   formBool(c, "enablePhonemes"),
		MaxConcurrent:    formInt(c, "maxConcurrent"),
		WordLimit:        formInt(c, "wordLimit"),
	}

	result, err := h.service.Submit(c.Context(), c.FormValue("jobId"), file.Filename, pdf, opts)
	if err != nil {
		if errors.Is(err, service.ErrInvalidDocument) {
			return response.ValidationError(c, err.Error(), nil)
		}
		if errors.Is(err, service.ErrDuplicateJob) {
			return response.Conflict(c, "A job with this ID is already running")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.Accepted(c, result)
}

// Status handles GET /api/documents/status/:jobId
func (h *DocumentHandler) Status(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.GetStatus(c.Context(), jobID)
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			return response.NotFound(c, "Job not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}

// Result handles GET /api/documents/result/:jobId
func (h *DocumentHandler) Result(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	data, err := h.service.GetResult(c.Context(), jobID)
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			return response.NotFound(c, "Job not found")
		}
		if errors.Is(err, service.ErrResultNotReady) {
			return response.NotReady(c, "Job not completed yet")
		}
		return response.ServiceError(c, err.Error())
	}

	// Stored aggregates are already JSON; serve them as-is.
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(data)
}

// Cancel handles POST /api/documents/cancel/:jobId
func (h *DocumentHandler) Cancel(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.Cancel(c.Context(), jobID)
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			return response.NotFound(c, "Job not found")
		}
		if errors.Is(err, service.ErrJobFinished) {
			return response.Conflict(c, "Job already finished")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}

func formBool(c *fiber.Ctx, key string) bool {
	v, _ := strconv.ParseBool(c.FormValue(key))
	return v
}

func formInt(c *fiber.Ctx, key string) int {
	v, _ := strconv.Atoi(c.FormValue(key))
	return v
}
