package bus

import (
	"context"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.uber.org/fx"
)

var Module = fx.Module("bus-handler",
	fx.Provide(
		NewEventHandler,
		NewWatermillRouter,
	),

	fx.Invoke(Run),
)

// Run registers the handlers and ties the router to the application lifecycle.
func Run(lc fx.Lifecycle, router *message.Router, h *EventHandler, logger *slog.Logger) error {
	if err := h.RegisterHandlers(router); err != nil {
		return err
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := router.Run(context.Background()); err != nil {
					logger.Error("BUS_ROUTER_STOPPED", "err", err)
				}
			}()
			select {
			case <-router.Running():
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
		OnStop: func(context.Context) error {
			return router.Close()
		},
	})
	return nil
}
