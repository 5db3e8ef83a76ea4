package bus

import (
	"context"

	"github.com/webitel/im-context-relay/internal/domain/model"
)

// [ON_CONTEXT_EVENT]
// Accepted events are already validated by the store; malformed bus traffic is dropped here.
func (h *EventHandler) OnContextEvent(ctx context.Context, ev *model.Event) (*model.Event, error) {
	if err := ev.Validate(); err != nil {
		h.logger.WarnContext(ctx, "BUS_EVENT_DROPPED", "err", err)
		return nil, nil
	}
	return ev, nil
}
