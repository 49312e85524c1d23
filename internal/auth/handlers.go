package auth

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Post("/register", func(c *fiber.Ctx) error {
		var req RegisterRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
		}
		session, err := svc.Register(c.Context(), req)
		if err != nil {
			return httpError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(session)
	})

	r.Post("/login", func(c *fiber.Ctx) error {
		var req LoginRequest
		if err := c.BodyParser(&req); err != nil || req.Login == "" || req.Password == "" {
			return fiber.NewError(fiber.StatusBadRequest, "login and password required")
		}
		session, err := svc.Login(c.Context(), req)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(session)
	})

	r.Post("/refresh", func(c *fiber.Ctx) error {
		token, err := refreshToken(c)
		if err != nil {
			return err
		}
		tokens, err := svc.Refresh(c.Context(), token)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(tokens)
	})

	r.Post("/logout", func(c *fiber.Ctx) error {
		token, err := refreshToken(c)
		if err != nil {
			return err
		}
		if err := svc.Revoke(c.Context(), token); err != nil {
			return httpError(err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	r.Get("/jwt/verify", func(c *fiber.Ctx) error {
		token := bearerToken(c.Get(fiber.HeaderAuthorization))
		if token == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing bearer token")
		}
		userID, err := svc.ValidateAccessToken(token)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(fiber.Map{"user_id": userID})
	})

	r.Get("/me", authMiddleware, func(c *fiber.Ctx) error {
		userID, err := UserID(c)
		if err != nil {
			return err
		}
		user, err := svc.Me(c.Context(), userID)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(user)
	})
}

func refreshToken(c *fiber.Ctx) (string, error) {
	var req RefreshRequest
	if err := c.BodyParser(&req); err != nil || req.RefreshToken == "" {
		return "", fiber.NewError(fiber.StatusBadRequest, "refresh_token required")
	}
	return req.RefreshToken, nil
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrMissingFields), errors.Is(err, ErrWeakPassword), errors.Is(err, ErrInvalidUsername):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, ErrUserExists):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrRefreshInvalid), errors.Is(err, ErrTokenInvalid):
		return fiber.NewError(fiber.StatusUnauthorized, err.Error())
	case errors.Is(err, ErrUserNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}
