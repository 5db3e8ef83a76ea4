package service

import (
	"log/slog"

	"github.com/webitel/im-context-relay/config"
	"github.com/webitel/im-context-relay/internal/domain/store"
	"github.com/webitel/im-context-relay/internal/injection"
	"github.com/webitel/im-context-relay/internal/platform"
	"go.uber.org/fx"
)

var Module = fx.Module(
	"service",

	fx.Provide(
		fx.Annotate(
			NewDeliveryService,
			fx.As(new(Deliverer)),
		),
		fx.Annotate(
			NewWebhookService,
			fx.As(new(Webhooker)),
		),
		func(s store.Storer, pub EventPublisher, logger *slog.Logger, cfg *config.Config) Relayer {
			return NewRelayService(s, pub, platform.Default(), logger, RelayOptionsFrom(cfg))
		},
	),

	// [DECORATION_LAYER] Intercept Relayer to add cross-cutting concerns
	fx.Decorate(func(orig Relayer, logger *slog.Logger) Relayer {
		return NewRelayMiddleware(orig, logger)
	}),
)

func RelayOptionsFrom(cfg *config.Config) RelayOptions {
	return RelayOptions{
		DefaultMaxAge:    cfg.Relay.DefaultMaxAge,
		MaxAgeLimit:      cfg.Relay.MaxAgeLimit,
		PreviewMaxAge:    cfg.Relay.PreviewMaxAge,
		IdempotencyCache: cfg.Relay.IdempotencyCache,
		Synth:            injection.SynthOptionsFrom(cfg),
	}
}
