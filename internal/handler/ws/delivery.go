package ws

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/webitel/im-context-relay/internal/domain/registry"
	wsmarshaller "github.com/webitel/im-context-relay/internal/handler/marshaller/ws"
	"github.com/webitel/im-context-relay/internal/service"
)

const writeWait = 10 * time.Second

type WSHandler struct {
	logger    *slog.Logger
	deliverer service.Deliverer
	upgrader  websocket.Upgrader
}

func NewWSHandler(logger *slog.Logger, deliverer service.Deliverer) *WSHandler {
	return &WSHandler{
		logger:    logger,
		deliverer: deliverer,
		upgrader: websocket.Upgrader{
			// the relay listens on loopback for browser extensions of any origin
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// 1. UPGRADE TO WEBSOCKET
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("WS_UPGRADE_FAILED", "err", err)
		return
	}
	defer ws.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// 2. SUBSCRIBE VIA THE DELIVERY SERVICE
	conn, err := h.deliverer.Subscribe(ctx, registry.ConnectMetadata{
		Transport: "websocket",
		RemoteIP:  r.RemoteAddr,
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		return
	}
	defer h.deliverer.Unsubscribe(conn.GetID())

	connID := conn.GetID().String()
	h.logger.Info("WS_OPENED", "conn_id", connID, "remote_ip", r.RemoteAddr)
	defer h.logger.Info("WS_CLOSED", "conn_id", connID, "dropped", conn.Dropped())

	// 3. READ PUMP: processes control frames and notices the peer going away
	go func() {
		defer cancel()
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	hello, err := wsmarshaller.MarshallConnected(connID)
	if err == nil {
		if err := h.write(ws, hello); err != nil {
			return
		}
	}

	// 4. MAIN WS PUMP LOOP
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-conn.Recv():
			if !ok {
				return
			}

			data, err := wsmarshaller.MarshallContextEvent(ev)
			if err != nil {
				h.logger.Error("WS_MARSHAL_FAILED", "err", err, "event_id", ev.ID)
				continue
			}

			if err := h.write(ws, data); err != nil {
				h.logger.Warn("WS_SEND_FAILED", "err", err, "conn_id", connID)
				return
			}
		}
	}
}

func (h *WSHandler) write(ws *websocket.Conn, data []byte) error {
	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	return ws.WriteMessage(websocket.TextMessage, data)
}
