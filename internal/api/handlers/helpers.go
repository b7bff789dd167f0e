package handlers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/crosspost/internal/service"
)

func GetUserID(c *fiber.Ctx) int64 {
	s, _ := c.Locals("user_id").(string)
	userID, _ := strconv.ParseInt(s, 10, 64)
	return userID
}

// errorStatus maps service error kinds to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		return fiber.StatusBadRequest
	case errors.Is(err, service.ErrUnsupportedPlatform), errors.Is(err, service.ErrNoCredentialsAvailable):
		return fiber.StatusNotFound
	case errors.Is(err, service.ErrConfiguration):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, service.ErrTokenExchangeFailed),
		errors.Is(err, service.ErrProfileFetchFailed),
		errors.Is(err, service.ErrMediaUploadFailed),
		errors.Is(err, service.ErrUpstreamAPI):
		return fiber.StatusBadGateway
	case errors.Is(err, service.ErrUpstreamTimeout):
		return fiber.StatusGatewayTimeout
	default:
		return fiber.StatusInternalServerError
	}
}

// errorMessage hides errors that did not come from the service taxonomy.
func errorMessage(err error) string {
	var se *service.Error
	if errors.As(err, &se) {
		return se.Error()
	}
	return "Something went wrong"
}

func errorJSON(c *fiber.Ctx, err error) error {
	return c.Status(errorStatus(err)).JSON(fiber.Map{
		"error": errorMessage(err),
	})
}
