package rewards

import (
	"errors"

	"backend-carbonsaver/internal/account"
	"backend-carbonsaver/internal/auth"
	"backend-carbonsaver/internal/carbon"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(svc.Catalog())
	})

	r.Post("/redeem", authMiddleware, func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		var req RedeemRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if req.Type == "" {
			return fiber.NewError(fiber.StatusBadRequest, "type required")
		}
		receipt, err := svc.Redeem(c.Context(), userID, req.Type, req.UserName)
		if err != nil {
			var short *carbon.InsufficientPointsError
			switch {
			case errors.As(err, &short):
				return c.Status(fiber.StatusConflict).JSON(fiber.Map{
					"error":           short.Error(),
					"points_required": short.Required,
					"points_balance":  short.Balance,
				})
			case errors.Is(err, ErrUnknownReward):
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			case errors.Is(err, account.ErrAccountNotFound):
				return fiber.NewError(fiber.StatusNotFound, err.Error())
			}
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.Status(fiber.StatusCreated).JSON(receipt)
	})

	r.Get("/history", authMiddleware, func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		history, err := svc.History(c.Context(), userID)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(history)
	})
}
