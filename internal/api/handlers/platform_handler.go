package handlers

import (
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
	config "github.com/maheshrc27/crosspost/configs"
	"github.com/maheshrc27/crosspost/internal/service"
)

type PlatformHandler struct {
	ps  service.PlatformService
	cfg *config.Config
}

func NewPlatformHandler(ps service.PlatformService, cfg *config.Config) *PlatformHandler {
	return &PlatformHandler{
		ps:  ps,
		cfg: cfg,
	}
}

type completeConnectionRequest struct {
	Code  string `json:"code"`
	State string `json:"state"`
}

func (h *PlatformHandler) BeginConnection(c *fiber.Ctx) error {
	authURL, err := h.ps.BeginConnection(c.Context(), GetUserID(c), c.Params("platform"))
	if err != nil {
		return errorJSON(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"auth_url": authURL,
	})
}

// AddSocialAccount is the browser variant of BeginConnection.
func (h *PlatformHandler) AddSocialAccount(c *fiber.Ctx) error {
	authURL, err := h.ps.BeginConnection(c.Context(), GetUserID(c), c.Params("platform"))
	if err != nil {
		return errorJSON(c, err)
	}
	return c.Redirect(authURL)
}

func (h *PlatformHandler) CompleteConnection(c *fiber.Ctx) error {
	var req completeConnectionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	account, err := h.ps.CompleteConnection(c.Context(), GetUserID(c), c.Params("platform"), req.Code, req.State)
	if err != nil {
		return errorJSON(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success":      true,
		"account_name": account.AccountName,
		"account_type": account.AccountType,
	})
}

func (h *PlatformHandler) CallbackHandler(c *fiber.Ctx) error {
	platform := c.Params("platform")

	if errMsg := c.Query("error"); errMsg != "" {
		log.Printf("%s authorization denied: %s", platform, errMsg)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Authorization was denied",
		})
	}

	_, err := h.ps.CompleteConnection(c.Context(), GetUserID(c), platform, c.Query("code"), c.Query("state"))
	if err != nil {
		return errorJSON(c, err)
	}

	redirectURL := fmt.Sprintf("%s/dashboard/accounts", h.cfg.FrontendURL)
	return c.Redirect(redirectURL, fiber.StatusTemporaryRedirect)
}

func (h *PlatformHandler) ListSocialAccounts(c *fiber.Ctx) error {
	userID := GetUserID(c)

	accountList, err := h.ps.List(c.Context(), userID)
	if err != nil {
		log.Println(err.Error())
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch social accounts",
		})
	}

	return c.Status(fiber.StatusOK).JSON(accountList)
}

func (h *PlatformHandler) DeleteSocialAccount(c *fiber.Ctx) error {
	userID := GetUserID(c)
	accountId := c.QueryInt("id", 0)

	err := h.ps.Delete(c.Context(), userID, int64(accountId))
	if err != nil {
		return errorJSON(c, err)
	}

	return c.SendStatus(fiber.StatusOK)
}
