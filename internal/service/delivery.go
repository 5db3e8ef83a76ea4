package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/webitel/im-context-relay/internal/domain/registry"
)

// [DELIVERY_SERVICE] PRIMARY INTERFACE FOR STREAM HANDLERS (Websocket/Long-poll)
type Deliverer interface {
	Subscribe(ctx context.Context, meta registry.ConnectMetadata) (registry.Connector, error)
	Unsubscribe(connID uuid.UUID)
}

type DeliveryService struct {
	hub        registry.Hubber
	bufferSize int
}

const defaultBufferSize = 64

func NewDeliveryService(hub registry.Hubber) *DeliveryService {
	return &DeliveryService{
		hub:        hub,
		bufferSize: defaultBufferSize,
	}
}

// [SUBSCRIBE] HANDLES CONNECTION LIFECYCLE INITIATION
func (s *DeliveryService) Subscribe(ctx context.Context, meta registry.ConnectMetadata) (registry.Connector, error) {
	// 1. Create a connector bound to the transport's context
	conn := registry.NewConnector(ctx, meta, s.bufferSize)

	// 2. Attach to the hub so new events start flowing
	s.hub.Register(conn)

	return conn, nil
}

// [UNSUBSCRIBE] Hub.Unregister closes the connector after removing it.
func (s *DeliveryService) Unsubscribe(connID uuid.UUID) {
	s.hub.Unregister(connID)
}
