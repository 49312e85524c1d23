package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

const userIDLocal = "user_id"

// JWTMiddleware accepts access tokens only and stores user_id in locals.
func JWTMiddleware(secret string) fiber.Handler {
	key := []byte(secret)
	return func(c *fiber.Ctx) error {
		token := bearerToken(c.Get(fiber.HeaderAuthorization))
		if token == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing bearer token")
		}
		claims, err := parseToken(key, token, useAccess)
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, ErrTokenInvalid.Error())
		}
		c.Locals(userIDLocal, claims.UserID)
		return c.Next()
	}
}

// UserID returns the authenticated user stored by JWTMiddleware.
func UserID(c *fiber.Ctx) (string, error) {
	userID, _ := c.Locals(userIDLocal).(string)
	if userID == "" {
		return "", fiber.NewError(fiber.StatusUnauthorized, "missing user")
	}
	return userID, nil
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
