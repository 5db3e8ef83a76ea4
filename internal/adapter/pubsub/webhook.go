package pubsub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/sony/gobreaker"
	"github.com/webitel/im-context-relay/internal/domain/model"
	"golang.org/x/sync/errgroup"
)

const webhookSource = "im-context-relay"

var _ message.Publisher = (*WebhookExporter)(nil)

// WebhookExporter pushes published events to registered HTTP targets.
// Delivery is best-effort: failures are logged, never returned to the dispatcher.
type WebhookExporter struct {
	client *http.Client
	logger *slog.Logger

	mu      sync.RWMutex
	targets []*webhookTarget
}

// webhookTarget owns a breaker so one dead endpoint stops costing a timeout per event.
type webhookTarget struct {
	model.WebhookTarget
	cb *gobreaker.CircuitBreaker
}

type webhookBody struct {
	Source  string          `json:"source"`
	Topic   string          `json:"topic"`
	EventID string          `json:"eventId"`
	Action  model.Action    `json:"action"`
	TraceID string          `json:"traceId,omitempty"`
	SentAt  time.Time       `json:"sentAt"`
	Event   json.RawMessage `json:"event"`
}

func NewWebhookExporter(timeout time.Duration, logger *slog.Logger, preset ...model.WebhookTarget) *WebhookExporter {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	w := &WebhookExporter{
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
	for _, t := range preset {
		w.Register(t)
	}
	return w
}

// Register adds the target. Reports false when the URL is already registered.
func (w *WebhookExporter) Register(t model.WebhookTarget) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, existing := range w.targets {
		if existing.URL == t.URL {
			return false
		}
	}
	w.targets = append(w.targets, &webhookTarget{
		WebhookTarget: t.Clone(),
		cb:            newWebhookBreaker(t.Label(), w.logger),
	})
	w.logger.Info("WEBHOOK_REGISTERED", "target", t.Label(), "events", t.Events)
	return true
}

// Unregister removes the target with the given URL. Reports whether one was removed.
func (w *WebhookExporter) Unregister(url string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	for i, t := range w.targets {
		if t.URL == url {
			w.targets = append(w.targets[:i:i], w.targets[i+1:]...)
			w.logger.Info("WEBHOOK_UNREGISTERED", "target", t.Label())
			return true
		}
	}
	return false
}

// List returns the registered targets in registration order.
func (w *WebhookExporter) List() []model.WebhookTarget {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := make([]model.WebhookTarget, 0, len(w.targets))
	for _, t := range w.targets {
		out = append(out, t.WebhookTarget.Clone())
	}
	return out
}

func (w *WebhookExporter) matching(a model.Action) []*webhookTarget {
	w.mu.RLock()
	defer w.mu.RUnlock()

	var out []*webhookTarget
	for _, t := range w.targets {
		if t.Accepts(a) {
			out = append(out, t)
		}
	}
	return out
}

// Publish delivers every message to the targets subscribed to its action and waits for them.
func (w *WebhookExporter) Publish(topic string, messages ...*message.Message) error {
	for _, msg := range messages {
		action := model.ParseAction(msg.Metadata.Get("action"))
		targets := w.matching(action)
		if len(targets) == 0 {
			continue
		}

		body, err := json.Marshal(webhookBody{
			Source:  webhookSource,
			Topic:   topic,
			EventID: msg.Metadata.Get("event_id"),
			Action:  action,
			TraceID: msg.Metadata.Get("trace_id"),
			SentAt:  time.Now().UTC(),
			Event:   json.RawMessage(msg.Payload),
		})
		if err != nil {
			w.logger.Warn("WEBHOOK_ENCODE_FAILED", "msg_id", msg.UUID, "err", err)
			continue
		}

		// the ingesting request may finish first; the client timeout bounds each call
		ctx := context.WithoutCancel(msg.Context())

		var g errgroup.Group
		for _, t := range targets {
			g.Go(func() error {
				w.deliver(ctx, t, msg.Metadata.Get("event_id"), body)
				return nil
			})
		}
		_ = g.Wait()
	}
	return nil
}

func (w *WebhookExporter) deliver(ctx context.Context, t *webhookTarget, eventID string, body []byte) {
	_, err := t.cb.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.URL, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Event-ID", eventID)

		resp, err := w.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)

		if resp.StatusCode >= http.StatusMultipleChoices {
			return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
		return nil, nil
	})
	if err != nil {
		w.logger.Warn("WEBHOOK_DELIVERY_FAILED", "target", t.Label(), "event_id", eventID, "err", err)
		return
	}
	w.logger.Debug("WEBHOOK_DELIVERED", "target", t.Label(), "event_id", eventID)
}

func (w *WebhookExporter) Close() error {
	w.client.CloseIdleConnections()
	return nil
}

func newWebhookBreaker(name string, logger *slog.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "webhook:" + name,
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("WEBHOOK_BREAKER_STATE", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
}
