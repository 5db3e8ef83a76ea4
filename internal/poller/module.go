package poller

import (
	"context"
	"log/slog"

	"github.com/webitel/im-context-relay/config"
	"github.com/webitel/im-context-relay/internal/injection"
	"go.uber.org/fx"
)

var Module = fx.Module("poller",
	fx.Provide(
		func(cfg *config.Config, logger *slog.Logger) Source {
			return NewClient(cfg.Poller.URL, cfg.Poller.Timeout, logger)
		},
		func(src Source, cache *injection.Cache, engine *injection.Engine, notifier Notifier, logger *slog.Logger, cfg *config.Config) *Poller {
			opts := []Option{WithNotifier(notifier)}
			if cfg.Poller.CursorFile != "" {
				opts = append(opts, WithCursor(NewFileCursor(cfg.Poller.CursorFile)))
			}
			return New(src, cache, engine, logger, Options{
				Interval: cfg.Poller.Interval,
				MaxAge:   cfg.Poller.MaxAge,
			}, opts...)
		},
	),
	fx.Invoke(func(lc fx.Lifecycle, p *Poller, cfg *config.Config, logger *slog.Logger) {
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				// the loop must outlive the start context
				p.Start(context.Background())
				logger.Info("POLLER_STARTED", "url", cfg.Poller.URL, "interval", cfg.Poller.Interval)
				return nil
			},
			OnStop: func(context.Context) error {
				p.Stop()
				return nil
			},
		})
	}),
)
