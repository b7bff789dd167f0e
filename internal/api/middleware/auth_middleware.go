package middleware

import (
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
	config "github.com/maheshrc27/crosspost/configs"
	"github.com/maheshrc27/crosspost/pkg/utils"
)

type AuthMiddleware struct {
	cfg *config.Config
}

func NewAuthMiddleware(cfg *config.Config) *AuthMiddleware {
	return &AuthMiddleware{cfg: cfg}
}

// sessionToken reads the session JWT from the cookie, a Bearer header or the
// token query parameter, in that order.
func (m *AuthMiddleware) sessionToken(c *fiber.Ctx) (string, bool) {
	if tokenString := c.Cookies(m.cfg.CookieName); tokenString != "" {
		return tokenString, true
	}
	if auth := c.Get(fiber.HeaderAuthorization); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer "), false
	}
	return c.Query("token"), false
}

func (m *AuthMiddleware) AuthMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString, fromCookie := m.sessionToken(c)
		if tokenString == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing token or cookie",
			})
		}

		claims, err := utils.ValidateToken(m.cfg.SecretKey, tokenString)
		if err == nil {
			_, err = claims.UserIDInt()
		}
		if err != nil {
			if fromCookie {
				c.Cookie(&fiber.Cookie{
					Name:   m.cfg.CookieName,
					Value:  "",
					Path:   "/",
					MaxAge: -1, // Delete cookie
				})
			}

			log.Printf("Token validation failed: %v", err)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}

		c.Locals("user_id", claims.UserID)
		return c.Next()
	}
}
