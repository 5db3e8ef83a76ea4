package cmd

import (
	"github.com/webitel/im-context-relay/config"
	httpsrv "github.com/webitel/im-context-relay/infra/server/http"
	"github.com/webitel/im-context-relay/internal/adapter/pubsub"
	"github.com/webitel/im-context-relay/internal/domain/registry"
	"github.com/webitel/im-context-relay/internal/domain/store"
	"github.com/webitel/im-context-relay/internal/handler/bus"
	"github.com/webitel/im-context-relay/internal/handler/rest"
	"github.com/webitel/im-context-relay/internal/injection"
	"github.com/webitel/im-context-relay/internal/poller"
	"github.com/webitel/im-context-relay/internal/service"
	"go.uber.org/fx"
)

// NewApp assembles the relay backend.
func NewApp(cfg *config.Config) *fx.App {
	return fx.New(
		fx.Provide(
			func() *config.Config { return cfg },
			ProvideLogger,
			ProvideWatermillLogger,
			func() rest.BuildInfo { return rest.BuildInfo{Service: ServiceName, Version: version} },
			func(d pubsub.EventDispatcher) service.EventPublisher { return d },
			func(w *pubsub.WebhookExporter) service.WebhookRegistry { return w },
		),
		fx.Invoke(watchConfig),
		store.Module,
		registry.Module,
		pubsub.Module,
		service.Module,
		bus.Module,
		rest.Module,
		httpsrv.Module,
	)
}

// NewWatchApp assembles the consumer side: polling client plus injection engine.
func NewWatchApp(cfg *config.Config) *fx.App {
	return fx.New(
		fx.Provide(
			func() *config.Config { return cfg },
			ProvideLogger,
			NewLogComposer,
			NewDryRunNotifier,
		),
		fx.Invoke(watchConfig),
		injection.Module,
		poller.Module,
	)
}
