package handlers

import (
	"encoding/json"
	"log"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"seshtrack/internal/services"
)

// EventsHandler streams realtime sesh events to connected clients over
// websocket, fed by the Redis-backed pub/sub hub.
type EventsHandler struct {
	pubsub *services.PubSubService
}

// NewEventsHandler creates a new events handler
func NewEventsHandler(pubsub *services.PubSubService) *EventsHandler {
	return &EventsHandler{pubsub: pubsub}
}

// Upgrade gates the websocket upgrade and carries identity into locals
func (h *EventsHandler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	userID := c.Get("X-User-ID")
	if userID == "" {
		userID = c.Query("user")
	}
	if userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Authentication required"})
	}

	c.Locals("user_id", userID)
	return c.Next()
}

// Stream is the websocket handler for GET /ws/events. The subscription is
// always cancelled when the connection goes away.
func (h *EventsHandler) Stream() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		userID, _ := conn.Locals("user_id").(string)

		events := make(chan *services.SeshEvent, 16)
		sub := h.pubsub.Subscribe("user:"+userID+":events", func(channel string, event *services.SeshEvent) {
			select {
			case events <- event:
			default:
				// Slow consumer; drop rather than block the hub
			}
		})
		defer sub.Cancel()

		log.Printf("🔌 [WS] User %s connected to event stream", userID)

		// Reader goroutine: we only care about the close
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case <-done:
				log.Printf("🔌 [WS] User %s disconnected", userID)
				return
			case event := <-events:
				data, err := json.Marshal(event)
				if err != nil {
					continue
				}
				if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
					return
				}
			}
		}
	})
}
