package cmd

import (
	"context"
	"log/slog"

	"github.com/webitel/im-context-relay/internal/domain/model"
	"github.com/webitel/im-context-relay/internal/injection"
	"github.com/webitel/im-context-relay/internal/poller"
)

// logComposer stands in for a host text box: visible injections are logged instead of sent.
type logComposer struct {
	logger *slog.Logger
}

func NewLogComposer(logger *slog.Logger) injection.Composer {
	return &logComposer{logger: logger}
}

func (c *logComposer) Submit(ctx context.Context, text string) error {
	c.logger.InfoContext(ctx, "VISIBLE_INJECTION", "text", text)
	return nil
}

// dryRunNotifier runs the per-cycle interceptor on a sample conversation for every novel event,
// so the watch command shows where and what would be injected.
type dryRunNotifier struct {
	engine *injection.Engine
	logger *slog.Logger
}

func NewDryRunNotifier(engine *injection.Engine, logger *slog.Logger) poller.Notifier {
	return &dryRunNotifier{engine: engine, logger: logger}
}

func (n *dryRunNotifier) Notify(ctx context.Context, ev *model.Event) {
	conv := &model.Messages{
		{Role: model.RoleSystem, Text: "persona"},
		{Role: model.RoleUser, Text: "..."},
	}
	out := n.engine.Intercept(ctx, conv, injection.KindNormal)

	attrs := []any{
		"event_id", ev.ID,
		"decision", out.Decision,
		"ambient", out.Ambient,
	}
	if out.Decision == injection.DecisionInserted {
		attrs = append(attrs, "index", out.Index, "text", conv.At(out.Index).Text)
	}
	n.logger.DebugContext(ctx, "INTERCEPT_DRY_RUN", attrs...)
}
