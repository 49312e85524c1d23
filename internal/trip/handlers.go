package trip

import (
	"errors"
	"strconv"

	"backend-carbonsaver/internal/account"
	"backend-carbonsaver/internal/auth"
	"backend-carbonsaver/internal/carbon"

	"github.com/gofiber/fiber/v2"
)

const defaultListLimit = 50

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Post("/", authMiddleware, func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		var req RecordRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if req.TransportationType == "" {
			return fiber.NewError(fiber.StatusBadRequest, "transportation_type required")
		}
		t, err := Build(req)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		t, err = svc.Record(c.Context(), userID, t)
		if err != nil {
			return recordError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(t)
	})

	r.Get("/", authMiddleware, func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		limit := c.QueryInt("limit", defaultListLimit)
		trips, err := svc.List(c.Context(), userID, limit)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(trips)
	})

	r.Get("/near", authMiddleware, func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
		lng, errLng := strconv.ParseFloat(c.Query("lng"), 64)
		if errLat != nil || errLng != nil {
			return fiber.NewError(fiber.StatusBadRequest, "lat and lng required")
		}
		radius := 1.0
		if v := c.Query("radius_km"); v != "" {
			radius, err = strconv.ParseFloat(v, 64)
			if err != nil || radius <= 0 {
				return fiber.NewError(fiber.StatusBadRequest, "radius_km must be positive")
			}
		}
		trips, err := svc.Near(c.Context(), userID, lat, lng, radius)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(trips)
	})

	r.Get("/:id", authMiddleware, func(c *fiber.Ctx) error {
		t, err := ownedTrip(c, svc)
		if err != nil {
			return err
		}
		return c.JSON(t)
	})

	r.Get("/:id/summary", authMiddleware, func(c *fiber.Ctx) error {
		t, err := ownedTrip(c, svc)
		if err != nil {
			return err
		}
		return c.JSON(t.Summary())
	})
}

// ownedTrip hides trips of other users behind a 404.
func ownedTrip(c *fiber.Ctx, svc *Service) (carbon.Trip, error) {
	userID, err := auth.UserID(c)
	if err != nil {
		return carbon.Trip{}, err
	}
	t, err := svc.Get(c.Context(), c.Params("id"))
	if err != nil {
		if errors.Is(err, ErrTripNotFound) {
			return carbon.Trip{}, fiber.NewError(fiber.StatusNotFound, "trip not found")
		}
		return carbon.Trip{}, fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	if t.UserID != userID {
		return carbon.Trip{}, fiber.NewError(fiber.StatusNotFound, "trip not found")
	}
	return t, nil
}

func recordError(err error) error {
	if errors.Is(err, account.ErrAccountNotFound) {
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	}
	return fiber.NewError(fiber.StatusInternalServerError, err.Error())
}
