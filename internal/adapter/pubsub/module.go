package pubsub

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/webitel/im-context-relay/config"
	"github.com/webitel/im-context-relay/internal/domain/model"
	"go.uber.org/fx"
)

var Module = fx.Module("pubsub",
	fx.Provide(
		NewPublisherProvider,
		func(lc fx.Lifecycle, pp *PublisherProvider, cfg *config.Config) *gochannel.GoChannel {
			bus := pp.Bus(cfg.Stream.MailboxSize)
			lc.Append(fx.Hook{
				OnStop: func(context.Context) error { return bus.Close() },
			})
			return bus
		},
		func(bus *gochannel.GoChannel) message.Subscriber { return bus },
		func(cfg *config.Config, logger *slog.Logger) *WebhookExporter {
			preset := make([]model.WebhookTarget, 0, len(cfg.Webhook.Targets))
			for _, url := range cfg.Webhook.Targets {
				preset = append(preset, model.WebhookTarget{URL: url, Name: "preset"})
			}
			return NewWebhookExporter(cfg.Webhook.Timeout, logger.With("component", "webhook"), preset...)
		},
		func(lc fx.Lifecycle, pp *PublisherProvider, bus *gochannel.GoChannel, wh *WebhookExporter, cfg *config.Config) (EventDispatcher, error) {
			exporters, err := pp.Exporters()
			if err != nil {
				return nil, err
			}
			exporters = append(exporters, wh)
			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					var errs []error
					for _, e := range exporters {
						errs = append(errs, e.Close())
					}
					return errors.Join(errs...)
				},
			})
			return NewEventDispatcher(cfg.Bus.Topic, bus, exporters...), nil
		},
	),
)
