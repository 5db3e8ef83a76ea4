package rest

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/webitel/im-context-relay/internal/handler/lp"
	"github.com/webitel/im-context-relay/internal/handler/ws"
)

// NewRouter mounts every relay endpoint.
func NewRouter(h *ContextHandler, wh *WebhookHandler, wsh *ws.WSHandler, lph *lp.LPHandler, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		TraceID,
		Logging(logger),
		middleware.Recoverer,
		CORS,
	)

	r.Get("/health", h.Health)

	r.Route("/context", func(r chi.Router) {
		r.Post("/events", h.Ingest)
		r.Post("/ambient-note", h.AmbientNote)
		r.Post("/trigger", h.Trigger)
		r.Post("/clear", h.Clear)

		r.Get("/latest", h.Latest)
		r.Get("/history", h.History)
		r.Get("/status", h.Status)
		r.Get("/preview", h.Preview)

		if wh != nil {
			r.Route("/webhooks", func(r chi.Router) {
				r.Post("/", wh.Register)
				r.Delete("/", wh.Unregister)
				r.Get("/", wh.List)
			})
		}

		r.Route("/stream", func(r chi.Router) {
			if wsh != nil {
				r.Handle("/ws", wsh)
			}
			if lph != nil {
				r.Get("/poll", lph.Poll)
			}
		})
	})

	return r
}
