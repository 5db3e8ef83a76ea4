package bus

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/google/uuid"
	"github.com/webitel/im-context-relay/internal/adapter/pubsub"
	"github.com/webitel/im-context-relay/internal/domain/model"
	"github.com/webitel/im-context-relay/internal/domain/registry"
)

const (
	metaTraceID  = "trace_id"
	metaEventID  = "event_id"
	metaAction   = "action"
	metaPriority = "priority"
)

// [TRACE_ID_MIDDLEWARE]
// Events published outside an HTTP request carry no trace id; one is minted so retries and
// the poison queue share it.
func TraceIDMiddleware(h message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		traceID := msg.Metadata.Get(metaTraceID)
		if traceID == "" {
			traceID = uuid.NewString()
			msg.Metadata.Set(metaTraceID, traceID)
		}
		msg.SetContext(context.WithValue(msg.Context(), pubsub.TraceIDKey, traceID))
		return h(msg)
	}
}

// [AUDIENCE_MIDDLEWARE]
// Low priority events (reads) are acked without decoding while nobody is streaming.
// Trigger-bearing events always reach the hub.
func AudienceMiddleware(hub registry.Hubber, logger *slog.Logger) message.HandlerMiddleware {
	return func(h message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			if hub.Sessions() == 0 && priorityOf(msg) <= model.PriorityLow {
				logger.Debug("BUS_EVENT_SKIPPED",
					"event_id", msg.Metadata.Get(metaEventID),
					"action", msg.Metadata.Get(metaAction),
				)
				return nil, nil
			}
			return h(msg)
		}
	}
}

func priorityOf(msg *message.Message) model.EventPriority {
	p, err := strconv.Atoi(msg.Metadata.Get(metaPriority))
	if err != nil {
		return model.PriorityNormal
	}
	return model.EventPriority(p)
}

// [LOGGING_MIDDLEWARE]
func LoggingMiddleware(logger *slog.Logger) message.HandlerMiddleware {
	return func(h message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			start := time.Now()
			msgs, err := h(msg)

			attrs := []any{
				"msg_id", msg.UUID,
				"event_id", msg.Metadata.Get(metaEventID),
				"action", msg.Metadata.Get(metaAction),
				"trace_id", msg.Metadata.Get(metaTraceID),
				"duration_ms", time.Since(start).Milliseconds(),
			}
			if err != nil {
				logger.Warn("BUS_DELIVERY_FAILED", append(attrs, "err", err)...)
				return msgs, err
			}
			logger.Debug("BUS_DELIVERED", attrs...)
			return msgs, nil
		}
	}
}

// [RETRY_MIDDLEWARE]
// In-process delivery only fails on handler errors, so retries stay short.
func NewRetryMiddleware(logger watermill.LoggerAdapter) middleware.Retry {
	return middleware.Retry{
		MaxRetries:      3,
		InitialInterval: 50 * time.Millisecond,
		MaxInterval:     500 * time.Millisecond,
		Multiplier:      2.0,
		Logger:          logger,
	}
}
