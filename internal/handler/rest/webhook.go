package rest

import (
	"log/slog"
	"net/http"

	"github.com/webitel/im-context-relay/internal/service"
)

type WebhookHandler struct {
	webhooks service.Webhooker
	logger   *slog.Logger
}

func NewWebhookHandler(webhooks service.Webhooker, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{webhooks: webhooks, logger: logger}
}

// Register handles POST /context/webhooks. Registering a known URL succeeds without replacing it.
func (h *WebhookHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req service.WebhookRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	added, err := h.webhooks.Register(r.Context(), req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	msg := "webhook registered"
	if !added {
		msg = "webhook already registered"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"registered": added,
		"message":    msg,
	})
}

// Unregister handles DELETE /context/webhooks?url=...
func (h *WebhookHandler) Unregister(w http.ResponseWriter, r *http.Request) {
	removed, err := h.webhooks.Unregister(r.Context(), r.URL.Query().Get("url"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if !removed {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "webhook not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "webhook unregistered",
	})
}

// List handles GET /context/webhooks.
func (h *WebhookHandler) List(w http.ResponseWriter, r *http.Request) {
	targets := h.webhooks.List(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"count":    len(targets),
		"webhooks": targets,
	})
}
