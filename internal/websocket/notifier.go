package websocket

import (
	"encoding/json"
	"log"
	"time"

	"backend/internal/events"
)

type wsMessage struct {
	Event     string         `json:"event"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   events.Payload `json:"payload"`
}

// SubscribeHub forwards every published domain event to connected
// WebSocket clients as a JSON message. Registered once at startup.
func SubscribeHub(bus *events.Bus, hub *Hub) {
	handler := func(evt events.Event) {
		raw, err := json.Marshal(wsMessage{
			Event:     evt.Name,
			Timestamp: evt.Timestamp,
			Payload:   evt.Payload,
		})
		if err != nil {
			log.Printf("failed to marshal ws notification for %s: %v", evt.Name, err)
			return
		}
		hub.Broadcast <- raw
	}
	for _, name := range events.AllEventNames() {
		bus.Subscribe(name, handler)
	}
}
