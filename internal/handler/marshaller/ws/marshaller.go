package wsmarshaller

import (
	"encoding/json"
	"time"

	"github.com/webitel/im-context-relay/internal/domain/model"
)

const (
	EventConnected = "connected"
	EventContext   = "context_event"
)

// WSEvent is a generic wrapper for WebSocket messages to provide consistent structure
type WSEvent struct {
	Event    string `json:"event"` // e.g., "context_event", "connected"
	ID       string `json:"id"`
	SentAt   int64  `json:"sent_at"`
	Priority int32  `json:"priority,omitempty"`
	Payload  any    `json:"payload"`
}

// MarshallContextEvent prepares a relayed event for WebSocket transmission.
func MarshallContextEvent(ev *model.Event) ([]byte, error) {
	return json.Marshal(&WSEvent{
		Event:    EventContext,
		ID:       ev.ID,
		SentAt:   time.Now().UnixMilli(),
		Priority: int32(ev.Action.Priority()),
		Payload:  ev,
	})
}

// MarshallConnected is the greeting written right after the upgrade.
func MarshallConnected(connID string) ([]byte, error) {
	return json.Marshal(&WSEvent{
		Event:  EventConnected,
		ID:     connID,
		SentAt: time.Now().UnixMilli(),
		Payload: &model.ConnectedPayload{
			Ok:            true,
			ConnectionID:  connID,
			ServerVersion: model.ServerVersion,
		},
	})
}
