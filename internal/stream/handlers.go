package stream

import (
	"context"

	"backend-carbonsaver/internal/auth"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog/log"
)

// Watchers decides whether a user may follow a session's samples.
type Watchers interface {
	CanWatch(ctx context.Context, userID, sessionID string) (bool, error)
}

// RegisterRoutes mounts the live sample feed. Subscribers must hold an access
// token for the session's owner; browsers pass it as ?access_token= because
// they cannot set headers on the handshake.
func RegisterRoutes(r fiber.Router, hub *Hub, authMiddleware fiber.Handler, watchers Watchers) {
	r.Use("/ws", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		return c.Next()
	}, bearerFromQuery, authMiddleware)

	r.Get("/ws/:sessionID", ownerOnly(watchers), websocket.New(func(c *websocket.Conn) {
		sessionID := c.Params("sessionID")
		client := hub.Register(sessionID)
		log.Debug().Str("session_id", sessionID).Msg("stream: subscriber joined")

		done := make(chan struct{})
		go func() {
			defer close(done)
			for msg := range client.Send {
				if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
					return
				}
			}
		}()

		for {
			if _, _, err := c.ReadMessage(); err != nil {
				break
			}
		}
		hub.Unregister(client)
		<-done
	}))
}

func bearerFromQuery(c *fiber.Ctx) error {
	if c.Get(fiber.HeaderAuthorization) == "" {
		if token := c.Query("access_token"); token != "" {
			c.Request().Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
		}
	}
	return c.Next()
}

// ownerOnly rejects the handshake before upgrading when the caller does not
// own the session. Unknown and foreign sessions look the same.
func ownerOnly(watchers Watchers) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		sessionID := c.Params("sessionID")
		ok, err := watchers.CanWatch(c.UserContext(), userID, sessionID)
		if err != nil {
			log.Error().Err(err).Str("session_id", sessionID).Msg("stream: ownership check")
			return fiber.ErrInternalServerError
		}
		if !ok {
			return fiber.NewError(fiber.StatusNotFound, "tracking session not found")
		}
		return c.Next()
	}
}
