// internal/adapter/pubsub/dispatcher.go

package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/webitel/im-context-relay/internal/domain/model"
	"golang.org/x/sync/errgroup"
)

// EventDispatcher defines the high-level contract for outgoing events.
// This allows the relay to stay agnostic of the transport implementation.
type EventDispatcher interface {
	Publish(ctx context.Context, ev *model.Event) error
	Publisher() message.Publisher
	Topic() string
}

// eventDispatcher publishes to the in-process bus and to every configured exporter.
type eventDispatcher struct {
	topic     string
	bus       message.Publisher
	exporters []message.Publisher
}

func NewEventDispatcher(topic string, bus message.Publisher, exporters ...message.Publisher) EventDispatcher {
	return &eventDispatcher{
		topic:     topic,
		bus:       bus,
		exporters: exporters,
	}
}

func (d *eventDispatcher) Publish(ctx context.Context, ev *model.Event) error {
	if ev == nil {
		return fmt.Errorf("event dispatcher: cannot publish nil event")
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("event dispatcher: marshal failure: %w", err)
	}

	// [FAN_OUT] a message carries ack state, so every publisher gets its own copy
	g, gCtx := errgroup.WithContext(ctx)
	for _, pub := range append([]message.Publisher{d.bus}, d.exporters...) {
		g.Go(func() error {
			msg := newMessage(gCtx, ev, payload)
			if err := pub.Publish(d.topic, msg); err != nil {
				return fmt.Errorf("event dispatcher: failed to publish to topic %s: %w", d.topic, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func newMessage(ctx context.Context, ev *model.Event, payload []byte) *message.Message {
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("event_id", ev.ID)
	msg.Metadata.Set("action", ev.Action.String())
	msg.Metadata.Set("priority", strconv.Itoa(int(ev.Action.Priority())))
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok && traceID != "" {
		msg.Metadata.Set("trace_id", traceID)
	}
	msg.SetContext(ctx)
	return msg
}

func (d *eventDispatcher) Publisher() message.Publisher {
	return d.bus
}

func (d *eventDispatcher) Topic() string {
	return d.topic
}

type traceIDKey struct{}

// TraceIDKey carries the trace id between the HTTP layer, the bus and its handlers.
var TraceIDKey = traceIDKey{}
