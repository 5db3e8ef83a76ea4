package bus

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/webitel/im-context-relay/internal/adapter/pubsub"
	"github.com/webitel/im-context-relay/internal/domain/registry"
)

const (
	HandlerContextEvents = "ON_CONTEXT_EVENT"
	PoisonSuffix         = ".poison"
)

type EventHandler struct {
	hub        registry.Hubber
	logger     *slog.Logger
	wmLogger   watermill.LoggerAdapter
	subscriber message.Subscriber
	dispatcher pubsub.EventDispatcher
}

func NewEventHandler(
	hub registry.Hubber,
	logger *slog.Logger,
	wmLogger watermill.LoggerAdapter,
	sub message.Subscriber,
	dispatcher pubsub.EventDispatcher,
) *EventHandler {
	return &EventHandler{hub: hub, logger: logger, wmLogger: wmLogger, subscriber: sub, dispatcher: dispatcher}
}

func NewWatermillRouter(logger watermill.LoggerAdapter) (*message.Router, error) {
	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: 5 * time.Second}, logger)
	if err != nil {
		return nil, fmt.Errorf("ROUTER_SETUP_FAILED: %w", err)
	}
	router.AddMiddleware(middleware.Recoverer)
	return router, nil
}

// [REGISTRATION_PIPELINE]
func (h *EventHandler) RegisterHandlers(router *message.Router) error {
	topic := h.dispatcher.Topic()

	poison, err := middleware.PoisonQueue(h.dispatcher.Publisher(), topic+PoisonSuffix)
	if err != nil {
		return fmt.Errorf("POISON_SETUP_FAILED: %w", err)
	}

	configs := []struct {
		name    string
		topic   string
		handler message.NoPublishHandlerFunc
	}{
		{HandlerContextEvents, topic, Bind(h, h.OnContextEvent)},
	}

	for _, c := range configs {
		router.AddConsumerHandler(c.name, c.topic, h.subscriber, c.handler).AddMiddleware(
			TraceIDMiddleware,
			AudienceMiddleware(h.hub, h.logger),
			LoggingMiddleware(h.logger),
			poison,
			NewRetryMiddleware(h.wmLogger).Middleware,
			middleware.NewThrottle(200, time.Second).Middleware,
			middleware.Timeout(5*time.Second),
		)
	}

	h.logger.Info("BUS_PIPELINE_READY", "topic", topic)
	return nil
}
