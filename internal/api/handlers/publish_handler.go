package handlers

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/queue"
	"github.com/maheshrc27/crosspost/internal/service"
)

type PublishHandler struct {
	s        service.PublishService
	enqueuer queue.Enqueuer
}

// NewPublishHandler accepts a nil enqueuer; scheduled requests are then rejected.
func NewPublishHandler(s service.PublishService, enqueuer queue.Enqueuer) *PublishHandler {
	return &PublishHandler{s: s, enqueuer: enqueuer}
}

func (h *PublishHandler) Publish(c *fiber.Ctx) error {
	var req models.PublishRequest
	if err := c.BodyParser(&req); err != nil {
		slog.Info(err.Error())
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	req.UserID = GetUserID(c)

	if req.ScheduledAt != nil && req.ScheduledAt.After(time.Now()) {
		return h.schedule(c, &req)
	}

	outcome, err := h.s.Publish(c.Context(), &req)
	if err != nil {
		return c.Status(errorStatus(err)).JSON(fiber.Map{
			"success": false,
			"error":   errorMessage(err),
		})
	}

	status := fiber.StatusOK
	if outcome.Status == models.OutcomeFailed {
		status = fiber.StatusInternalServerError
	}

	body := fiber.Map{
		"success": outcome.Succeeded(),
		"status":  outcome.Status,
		"results": outcome.Results,
	}
	if errs := outcome.Errors(); len(errs) > 0 {
		body["errors"] = errs
	}

	return c.Status(status).JSON(body)
}

func (h *PublishHandler) schedule(c *fiber.Ctx, req *models.PublishRequest) error {
	if h.enqueuer == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Scheduling is not available",
		})
	}

	if err := h.s.Validate(req); err != nil {
		return errorJSON(c, err)
	}

	taskID, err := queue.EnqueuePublish(c.Context(), h.enqueuer, queue.ScheduledPublishPayload{Request: *req}, time.Until(*req.ScheduledAt))
	if err != nil {
		slog.Error("unable to schedule publish", "user_id", req.UserID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Error scheduling post",
		})
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"scheduled": true,
		"task_id":   taskID,
	})
}
