package rest

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/webitel/im-context-relay/internal/service"
)

// maxAgeSecondsCap keeps absurd query values from overflowing before the relay clamps them.
const maxAgeSecondsCap = 7 * 24 * 3600

// BuildInfo identifies the running binary on /health.
type BuildInfo struct {
	Service string
	Version string
}

type ContextHandler struct {
	relay  service.Relayer
	logger *slog.Logger
	info   BuildInfo
}

func NewContextHandler(relay service.Relayer, logger *slog.Logger, info BuildInfo) *ContextHandler {
	return &ContextHandler{relay: relay, logger: logger, info: info}
}

type ingestResponse struct {
	Success   bool   `json:"success"`
	ID        string `json:"id"`
	Message   string `json:"message"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Triggered bool   `json:"triggered,omitempty"`
}

// Ingest handles POST /context/events.
func (h *ContextHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req service.IngestRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	res, err := h.relay.Ingest(r.Context(), req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	msg := "context stored"
	if res.Duplicate {
		msg = "duplicate ignored"
	}
	writeJSON(w, http.StatusOK, ingestResponse{
		Success:   true,
		ID:        res.ID,
		Message:   msg,
		Duplicate: res.Duplicate,
		Triggered: res.Triggered,
	})
}

// AmbientNote handles POST /context/ambient-note.
func (h *ContextHandler) AmbientNote(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	note, err := h.relay.SetAmbientNote(r.Context(), req.Text)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"length":  len([]rune(note.Text)),
	})
}

// Trigger handles POST /context/trigger. The body is optional and informational.
func (h *ContextHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Action string `json:"action"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"hasContext": h.relay.Trigger(r.Context(), req.Action),
	})
}

// Latest handles GET /context/latest?maxAgeSeconds=N.
func (h *ContextHandler) Latest(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.relay.Latest(r.Context(), maxAgeParam(r)))
}

// History handles GET /context/history?limit=N.
func (h *ContextHandler) History(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	items := h.relay.History(r.Context(), limit)
	writeJSON(w, http.StatusOK, map[string]any{
		"count": len(items),
		"items": items,
	})
}

// Clear handles POST /context/clear.
func (h *ContextHandler) Clear(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IncludeHistory bool `json:"includeHistory"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"cleared": h.relay.Clear(r.Context(), req.IncludeHistory),
	})
}

// Status handles GET /context/status.
func (h *ContextHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.relay.Status(r.Context()))
}

// Preview handles GET /context/preview?maxAgeSeconds=N.
func (h *ContextHandler) Preview(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.relay.Preview(r.Context(), maxAgeParam(r)))
}

// Health handles GET /health.
func (h *ContextHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"service":      h.info.Service,
		"version":      h.info.Version,
		"historyCount": h.relay.Status(r.Context()).HistoryCount,
	})
}

// maxAgeParam returns 0 for a missing or invalid value; the relay applies its default.
func maxAgeParam(r *http.Request) time.Duration {
	raw := r.URL.Query().Get("maxAgeSeconds")
	if raw == "" {
		return 0
	}
	secs, err := strconv.ParseFloat(raw, 64)
	if err != nil || secs <= 0 {
		return 0
	}
	if secs > maxAgeSecondsCap {
		secs = maxAgeSecondsCap
	}
	return time.Duration(secs * float64(time.Second))
}
