package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/readably/api/internal/callback"
	"github.com/readably/api/pkg/response"
)

// DeadLetterHandler exposes parked callbacks for inspection and replay.
type DeadLetterHandler struct {
	dispatcher *callback.Dispatcher
}

func NewDeadLetterHandler(d *callback.Dispatcher) *DeadLetterHandler {
	return &DeadLetterHandler{dispatcher: d}
}

// List handles GET /api/callbacks/deadletter
func (h *DeadLetterHandler) List(c *fiber.Ctx) error {
	entries, err := h.dispatcher.ListDeadLetters(c.Context())
	if err != nil {
		return response.ServiceError(c, err.Error())
	}
	return response.OK(c, fiber.Map{
		"entries": entries,
		"count":   len(entries),
	})
}

// Replay handles POST /api/callbacks/deadletter/:jobId/replay
func (h *DeadLetterHandler) Replay(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}
	kind := c.Query("kind")
	if kind == "" {
		return response.ValidationError(c, "kind query parameter is required", nil)
	}

	if err := h.dispatcher.Replay(c.Context(), jobID, kind); err != nil {
		if errors.Is(err, callback.ErrEntryNotFound) {
			return response.NotFound(c, "No dead-letter entry for this job and kind")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, fiber.Map{
		"jobId":    jobID,
		"kind":     kind,
		"replayed": true,
	})
}
