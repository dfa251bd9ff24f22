package realtime

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/aldoetobex/legal-bid-backend/internal/auth"
	"github.com/aldoetobex/legal-bid-backend/pkg/models"
)

// Upgrade authenticates a websocket handshake. Browsers cannot set headers on
// websocket requests, so the JWT travels as ?token=.
func Upgrade(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		actor, err := auth.ParseToken(secret, c.Query("token"))
		if err != nil {
			return err
		}
		c.Locals("actor", actor)
		return c.Next()
	}
}

// Gateway streams the caller's user and role topics over the socket.
func Gateway(hub *Hub, log *zap.Logger) fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		actor, ok := conn.Locals("actor").(models.Actor)
		if !ok {
			_ = conn.Close()
			return
		}
		sub := hub.Subscribe(UserTopic(actor.ID), RoleTopic(actor.Role))
		defer sub.Close()

		log.Debug("realtime client connected", zap.String("user_id", actor.ID.String()))

		// Reader: clients only send pings; a read error means the peer went away.
		gone := make(chan struct{})
		go func() {
			defer close(gone)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case <-gone:
				return
			case payload, ok := <-sub.C:
				if !ok {
					return
				}
				if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
					return
				}
			}
		}
	})
}
