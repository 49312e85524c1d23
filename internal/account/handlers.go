package account

import (
	"errors"

	"backend-carbonsaver/internal/auth"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Get("/", authMiddleware, func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		a, err := svc.Get(c.Context(), userID)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(a)
	})

	r.Get("/stats", authMiddleware, func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		stats, err := svc.Stats(c.Context(), userID)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(stats)
	})

}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrAccountNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}
