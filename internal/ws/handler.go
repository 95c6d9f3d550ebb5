package ws

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// Handler upgrades the request and streams hub events. The operator local
// set by the admin middleware is kept for logging.
func Handler(hub *Hub, logger *slog.Logger) fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		operator, _ := c.Locals("operator").(string)

		client := &Client{
			hub:      hub,
			conn:     c,
			operator: operator,
			send:     make(chan []byte, 256),
		}

		if !hub.join(client) {
			_ = c.Close()
			return
		}
		logger.Info("progress console connected", "operator", operator)

		go client.WritePump()
		client.ReadPump()

		logger.Info("progress console disconnected", "operator", operator)
	})
}

func UpgradeMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
}
