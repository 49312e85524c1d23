package tracking

import (
	"errors"

	"backend-carbonsaver/internal/account"
	"backend-carbonsaver/internal/auth"
	"backend-carbonsaver/internal/carbon"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Post("/sessions", authMiddleware, func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		var req StartRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if req.TransportationType == "" {
			return fiber.NewError(fiber.StatusBadRequest, "transportation_type required")
		}
		session, err := svc.Start(c.Context(), userID, req.TransportationType)
		if err != nil {
			return httpError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(session)
	})

	r.Get("/active", authMiddleware, func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		session, err := svc.Active(c.Context(), userID)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(session)
	})

	r.Get("/sessions/:id", authMiddleware, func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		session, err := svc.Get(c.Context(), userID, c.Params("id"))
		if err != nil {
			return httpError(err)
		}
		return c.JSON(session)
	})

	r.Post("/sessions/:id/points", authMiddleware, func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		var req TrackPoint
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		result, err := svc.AddPoint(c.Context(), userID, c.Params("id"), req)
		if err != nil {
			return httpError(err)
		}
		if !result.Accepted {
			return c.Status(fiber.StatusOK).JSON(result)
		}
		return c.Status(fiber.StatusCreated).JSON(result)
	})

	r.Get("/sessions/:id/summary", authMiddleware, func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		summary, err := svc.Summary(c.Context(), userID, c.Params("id"))
		if err != nil {
			return httpError(err)
		}
		return c.JSON(summary)
	})

	r.Get("/sessions/:id/points", authMiddleware, func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		points, err := svc.Points(c.Context(), userID, c.Params("id"))
		if err != nil {
			return httpError(err)
		}
		return c.JSON(points)
	})

	r.Post("/sessions/:id/stop", authMiddleware, func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		trip, err := svc.Stop(c.Context(), userID, c.Params("id"))
		if err != nil {
			return httpError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(trip)
	})

	r.Delete("/sessions/:id", authMiddleware, func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		if err := svc.Reset(c.Context(), userID, c.Params("id")); err != nil {
			return httpError(err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, account.ErrAccountNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, ErrAlreadyTracking), errors.Is(err, ErrSessionNotActive):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, ErrNoLocations):
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrInvalidCoordinate), errors.Is(err, carbon.ErrUnknownTransportation),
		errors.Is(err, carbon.ErrDistanceTooLarge):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}
