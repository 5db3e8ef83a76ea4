package injection

import (
	"sync"

	"github.com/webitel/im-context-relay/internal/domain/model"
)

// Cache is the consumer side view of the relay: the polling client writes it,
// the engine reads it on every generation cycle.
type Cache struct {
	mu      sync.RWMutex
	event   *model.Event
	ambient string

	// seen keeps recently observed novel events for correlation, most recent first.
	seen     []*model.Event
	seenSize int
}

func NewCache(historySize int) *Cache {
	if historySize <= 0 {
		historySize = 20
	}
	return &Cache{seenSize: historySize}
}

// SetEvent replaces the cached latest event and records it in the local history.
func (c *Cache) SetEvent(ev *model.Event) {
	if ev == nil {
		return
	}
	stored := ev.Clone()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.event = stored
	for _, s := range c.seen {
		if s.ID == stored.ID {
			return
		}
	}
	c.seen = append([]*model.Event{stored}, c.seen...)
	if len(c.seen) > c.seenSize {
		c.seen = c.seen[:c.seenSize]
	}
}

// Event returns a copy of the cached event, or nil.
func (c *Cache) Event() *model.Event {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.event.Clone()
}

// ClearEvent forgets the cached event so the engine stops offering it.
func (c *Cache) ClearEvent() {
	c.mu.Lock()
	c.event = nil
	c.mu.Unlock()
}

// MarkInjected flags the event as visibly materialised. Reports whether id was the cached event.
func (c *Cache) MarkInjected(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, s := range c.seen {
		if s.ID == id {
			s.Injected = true
		}
	}
	if c.event == nil || c.event.ID != id {
		return false
	}
	c.event.Injected = true
	return true
}

// UnmarkInjected reverts MarkInjected after a visible submit failed.
func (c *Cache) UnmarkInjected(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, s := range c.seen {
		if s.ID == id {
			s.Injected = false
		}
	}
	if c.event != nil && c.event.ID == id {
		c.event.Injected = false
	}
}

func (c *Cache) SetAmbientNote(text string) {
	c.mu.Lock()
	c.ambient = text
	c.mu.Unlock()
}

func (c *Cache) AmbientNote() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ambient
}

// History implements HistorySource over the locally observed events.
func (c *Cache) History(limit int) []*model.Event {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if limit <= 0 || limit > len(c.seen) {
		limit = len(c.seen)
	}
	out := make([]*model.Event, 0, limit)
	for _, ev := range c.seen[:limit] {
		out = append(out, ev.Clone())
	}
	return out
}
