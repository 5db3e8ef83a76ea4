package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/webitel/im-context-relay/internal/domain/model"
)

type failingPublisher struct{}

func (failingPublisher) Publish(string, ...*message.Message) error { return errors.New("broker down") }
func (failingPublisher) Close() error                              { return nil }

func TestDispatcherPublishesToBus(t *testing.T) {
	bus := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 4}, watermill.NopLogger{})
	t.Cleanup(func() { _ = bus.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgs, err := bus.Subscribe(ctx, "context.events")
	require.NoError(t, err)

	d := NewEventDispatcher("context.events", bus)
	ev := &model.Event{ID: "e1", Action: model.ActionLike, NarrativeText: "n"}

	traced := context.WithValue(context.Background(), TraceIDKey, "trace-1")
	require.NoError(t, d.Publish(traced, ev))

	select {
	case msg := <-msgs:
		msg.Ack()
		assert.Equal(t, "e1", msg.Metadata.Get("event_id"))
		assert.Equal(t, "like", msg.Metadata.Get("action"))
		assert.Equal(t, "30", msg.Metadata.Get("priority"))
		assert.Equal(t, "trace-1", msg.Metadata.Get("trace_id"))

		var got model.Event
		require.NoError(t, json.Unmarshal(msg.Payload, &got))
		assert.Equal(t, "e1", got.ID)
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}
}

func TestDispatcherReportsExporterFailure(t *testing.T) {
	bus := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	t.Cleanup(func() { _ = bus.Close() })

	d := NewEventDispatcher("context.events", bus, failingPublisher{})
	err := d.Publish(context.Background(), &model.Event{ID: "e1", Action: model.ActionRead})
	assert.ErrorContains(t, err, "broker down")

	assert.Error(t, d.Publish(context.Background(), nil))
	assert.Equal(t, "context.events", d.Topic())
}
