package pubsub

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/webitel/im-context-relay/internal/domain/model"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestWebhookExporterRegistry(t *testing.T) {
	w := NewWebhookExporter(time.Second, discardLogger, model.WebhookTarget{URL: "http://a.local", Name: "preset"})
	defer w.Close()

	assert.False(t, w.Register(model.WebhookTarget{URL: "http://a.local", Name: "other"}))
	assert.True(t, w.Register(model.WebhookTarget{URL: "http://b.local", Events: []model.Action{model.ActionLike}}))

	list := w.List()
	require.Len(t, list, 2)
	assert.Equal(t, "preset", list[0].Name)
	assert.Equal(t, []model.Action{model.ActionLike}, list[1].Events)

	list[1].Events[0] = model.ActionRead
	assert.Equal(t, []model.Action{model.ActionLike}, w.List()[1].Events, "List returns copies")

	assert.True(t, w.Unregister("http://a.local"))
	assert.False(t, w.Unregister("http://a.local"))
	assert.Len(t, w.List(), 1)
}

func TestWebhookExporterDeliversMatchingActions(t *testing.T) {
	var (
		mu     sync.Mutex
		bodies []webhookBody
		ids    []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		var b webhookBody
		_ = json.NewDecoder(r.Body).Decode(&b)
		mu.Lock()
		bodies = append(bodies, b)
		ids = append(ids, r.Header.Get("X-Event-ID"))
		mu.Unlock()
		rw.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	w := NewWebhookExporter(time.Second, discardLogger)
	defer w.Close()
	w.Register(model.WebhookTarget{URL: srv.URL, Events: []model.Action{model.ActionComment}})

	d := NewEventDispatcher("context.events", w)
	ctx := context.WithValue(context.Background(), TraceIDKey, "trace-9")
	require.NoError(t, d.Publish(ctx, &model.Event{ID: "e1", Action: model.ActionRead, NarrativeText: "n"}))
	require.NoError(t, d.Publish(ctx, &model.Event{ID: "e2", Action: model.ActionComment, NarrativeText: "n"}))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, bodies, 1)
	assert.Equal(t, "e2", bodies[0].EventID)
	assert.Equal(t, model.ActionComment, bodies[0].Action)
	assert.Equal(t, "trace-9", bodies[0].TraceID)
	assert.Equal(t, webhookSource, bodies[0].Source)
	assert.Equal(t, []string{"e2"}, ids)

	var ev model.Event
	require.NoError(t, json.Unmarshal(bodies[0].Event, &ev))
	assert.Equal(t, "e2", ev.ID)
}

func TestWebhookExporterIsBestEffort(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		rw.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	w := NewWebhookExporter(time.Second, discardLogger)
	defer w.Close()
	w.Register(model.WebhookTarget{URL: srv.URL})

	d := NewEventDispatcher("context.events", w)
	for range 5 {
		assert.NoError(t, d.Publish(context.Background(), &model.Event{ID: "e1", Action: model.ActionLike, NarrativeText: "n"}))
	}
	// the breaker opens after three consecutive failures
	assert.EqualValues(t, 3, hits.Load())
}
