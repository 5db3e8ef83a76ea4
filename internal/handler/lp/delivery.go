package lp

import (
	"net/http"
	"time"

	"github.com/webitel/im-context-relay/internal/domain/model"
	"github.com/webitel/im-context-relay/internal/domain/registry"
	lpmarshaller "github.com/webitel/im-context-relay/internal/handler/marshaller/lp"
	"github.com/webitel/im-context-relay/internal/service"
)

const maxBatch = 16

type LPHandler struct {
	deliverer service.Deliverer
	timeout   time.Duration
}

func NewLPHandler(deliverer service.Deliverer, timeout time.Duration) *LPHandler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &LPHandler{
		deliverer: deliverer,
		timeout:   timeout,
	}
}

// Poll handles the long-polling request.
// It holds the connection until an event arrives or timeout occurs.
func (h *LPHandler) Poll(w http.ResponseWriter, r *http.Request) {
	// 1. Temporary subscription living only for the duration of this HTTP request.
	conn, err := h.deliverer.Subscribe(r.Context(), registry.ConnectMetadata{
		Transport: "long-poll",
		RemoteIP:  r.RemoteAddr,
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		http.Error(w, "failed to subscribe", http.StatusInternalServerError)
		return
	}

	// Ensure cleanup: the hub removes and closes the connector.
	defer h.deliverer.Unsubscribe(conn.GetID())

	var events []*model.Event

	timer := time.NewTimer(h.timeout)
	defer timer.Stop()

	// 2. Wait for data or timeout.
	select {
	case <-r.Context().Done():
		// Client disconnected.
		return

	case <-timer.C:
		w.WriteHeader(http.StatusNoContent)
		return

	case ev, ok := <-conn.Recv():
		if !ok {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		events = append(events, ev)

		// Drain what is already buffered to provide batching.
	drainLoop:
		for range maxBatch - 1 {
			select {
			case nextEv, ok := <-conn.Recv():
				if !ok {
					break drainLoop
				}
				events = append(events, nextEv)
			default:
				break drainLoop
			}
		}
	}

	// 3. Final transmission.
	data, err := lpmarshaller.MarshallEvents(events, conn.Dropped())
	if err != nil {
		http.Error(w, "marshal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
