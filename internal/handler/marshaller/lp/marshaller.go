package lpmarshaller

import (
	"encoding/json"

	"github.com/webitel/im-context-relay/internal/domain/model"
)

// LPEvent represents a single event structured for long-polling consumers.
type LPEvent struct {
	Type    string       `json:"type"`
	ID      string       `json:"id"`
	Payload *model.Event `json:"payload"`
}

// Response defines the top-level JSON array to support event batching.
type Response struct {
	Events  []LPEvent `json:"events"`
	Dropped uint64    `json:"dropped,omitempty"`
}

// MarshallEvents converts a batch of relayed events into a single JSON document.
// dropped reports how many events the session shed under backpressure.
func MarshallEvents(events []*model.Event, dropped uint64) ([]byte, error) {
	res := Response{
		Events:  make([]LPEvent, 0, len(events)),
		Dropped: dropped,
	}

	for _, ev := range events {
		if ev == nil {
			continue
		}
		res.Events = append(res.Events, LPEvent{
			Type:    "context_" + string(ev.Action),
			ID:      ev.ID,
			Payload: ev,
		})
	}

	return json.Marshal(res)
}
