package service

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"github.com/webitel/im-context-relay/internal/domain/model"
)

// WebhookRegistry holds the targets the exporter delivers to.
type WebhookRegistry interface {
	Register(t model.WebhookTarget) bool
	Unregister(url string) bool
	List() []model.WebhookTarget
}

// Webhooker manages external webhook subscriptions.
type Webhooker interface {
	Register(ctx context.Context, req WebhookRequest) (bool, error)
	Unregister(ctx context.Context, rawURL string) (bool, error)
	List(ctx context.Context) []model.WebhookTarget
}

// WebhookRequest is the body of POST /context/webhooks.
type WebhookRequest struct {
	URL    string   `json:"url"`
	Name   string   `json:"name"`
	Events []string `json:"events"`
}

type WebhookService struct {
	registry WebhookRegistry
	logger   *slog.Logger
}

func NewWebhookService(registry WebhookRegistry, logger *slog.Logger) *WebhookService {
	return &WebhookService{registry: registry, logger: logger}
}

// Register reports false when the URL was already registered; the existing target is kept.
func (s *WebhookService) Register(ctx context.Context, req WebhookRequest) (bool, error) {
	target, err := webhookURL(req.URL)
	if err != nil {
		return false, err
	}

	t := model.WebhookTarget{URL: target, Name: strings.TrimSpace(req.Name)}
	for _, raw := range req.Events {
		a := model.ParseAction(raw)
		if a == "" {
			return false, model.NewValidationError("events", "must not contain empty actions")
		}
		t.Events = append(t.Events, a)
	}

	added := s.registry.Register(t)
	if !added {
		s.logger.WarnContext(ctx, "WEBHOOK_ALREADY_REGISTERED", "url", target)
	}
	return added, nil
}

func (s *WebhookService) Unregister(_ context.Context, rawURL string) (bool, error) {
	if strings.TrimSpace(rawURL) == "" {
		return false, model.NewValidationError("url", "is required")
	}
	return s.registry.Unregister(strings.TrimSpace(rawURL)), nil
}

func (s *WebhookService) List(context.Context) []model.WebhookTarget {
	return s.registry.List()
}

func webhookURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", model.NewValidationError("url", "is required")
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", model.NewValidationError("url", "must be an absolute http(s) URL")
	}
	return raw, nil
}
