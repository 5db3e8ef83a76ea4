package rest

import (
	"log/slog"
	"net/http"

	"github.com/webitel/im-context-relay/config"
	"github.com/webitel/im-context-relay/internal/handler/lp"
	"github.com/webitel/im-context-relay/internal/handler/ws"
	"github.com/webitel/im-context-relay/internal/service"
	"go.uber.org/fx"
)

var Module = fx.Module("rest-handler",
	fx.Provide(
		NewContextHandler,
		NewWebhookHandler,
		ws.NewWSHandler,
		func(d service.Deliverer, cfg *config.Config) *lp.LPHandler {
			return lp.NewLPHandler(d, cfg.Stream.PollTimeout)
		},
		func(h *ContextHandler, wh *WebhookHandler, wsh *ws.WSHandler, lph *lp.LPHandler, logger *slog.Logger) http.Handler {
			return NewRouter(h, wh, wsh, lph, logger)
		},
	),
)
