/*
Package store holds the relay's process-lifetime context: the latest behavioural event,
a bounded most-recent-first history ring, the ambient note and the one-shot trigger flag.

Every state transition runs under a single mutex. Operations are plain field assignments,
so the lock is never held across I/O and readers never observe a torn event/history pair.
*/
package store

import (
	"sync"
	"time"

	"github.com/webitel/im-context-relay/internal/domain/model"
)

// Storer is the contract endpoint handlers and the relay service depend on.
type Storer interface {
	Put(ev *model.Event) error
	Latest(maxAge time.Duration) model.LatestResult
	Peek() *model.Event
	History(limit int) []*model.Event
	Clear(includeHistory bool) bool
	SetAmbientNote(text string) model.AmbientNote
	AmbientNote() model.AmbientNote
	SetTrigger() bool
	Status() model.Status
	Capacity() int
	Reset()
}

var _ Storer = (*Store)(nil)

// Store is the single owned context instance.
type Store struct {
	mu sync.Mutex

	// [FOREGROUND] exactly one latest event, nil until the first put or after a clear.
	latest *model.Event

	// [RING] most-recent-first, never longer than capacity.
	history []*model.Event

	ambient model.AmbientNote

	// [ONE_SHOT] consumed by the next Latest call.
	trigger bool

	lastReceivedAt time.Time
	config         config
}

type config struct {
	capacity int
	now      func() time.Time
}

const DefaultCapacity = 20

func New(opts ...Option) *Store {
	s := &Store{
		config: config{
			capacity: DefaultCapacity,
			now:      time.Now,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.config.capacity <= 0 {
		s.config.capacity = DefaultCapacity
	}
	s.history = make([]*model.Event, 0, s.config.capacity)
	return s
}

// Put stores ev as latest and prepends it to the ring, evicting the oldest entry when full.
// Validation happens before any mutation: a rejected put leaves the store unchanged.
func (s *Store) Put(ev *model.Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	stored := ev.Clone()
	stored.Payload.Normalize()
	stored.Injected = false

	s.mu.Lock()
	defer s.mu.Unlock()

	// receivedAt never goes backwards, even if the wall clock does.
	now := s.config.now()
	if now.Before(s.lastReceivedAt) {
		now = s.lastReceivedAt
	}
	stored.ReceivedAt = now
	if stored.OccurredAt.IsZero() {
		stored.OccurredAt = now
	}
	s.lastReceivedAt = now

	s.latest = stored
	s.history = append(s.history, nil)
	copy(s.history[1:], s.history)
	s.history[0] = stored
	if len(s.history) > s.config.capacity {
		s.history[s.config.capacity] = nil
		s.history = s.history[:s.config.capacity]
	}

	// write the assigned timestamps back so the caller sees what was stored
	ev.ReceivedAt = stored.ReceivedAt
	ev.OccurredAt = stored.OccurredAt
	return nil
}

// Latest returns the latest event when its age is within maxAge (inclusive).
// The trigger flag is read and reset on every call; it is only reported on an available result.
func (s *Store) Latest(maxAge time.Duration) model.LatestResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	trigger := s.trigger
	s.trigger = false

	if s.latest == nil {
		return model.LatestResult{Reason: model.ReasonEmpty}
	}

	age := s.config.now().Sub(s.latest.ReceivedAt)
	if age > maxAge {
		return model.LatestResult{Age: age, Reason: model.ReasonExpired}
	}

	return model.LatestResult{
		Available:     true,
		Event:         s.latest.Clone(),
		Age:           age,
		ShouldTrigger: trigger,
	}
}

// Peek returns a copy of the latest event without touching the trigger flag.
func (s *Store) Peek() *model.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest.Clone()
}

// History returns up to limit events, most recent first.
func (s *Store) History(limit int) []*model.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 || limit > len(s.history) {
		limit = len(s.history)
	}
	out := make([]*model.Event, 0, limit)
	for _, ev := range s.history[:limit] {
		out = append(out, ev.Clone())
	}
	return out
}

// Clear drops the latest event and optionally the whole ring.
// It reports whether there was a latest event to drop.
func (s *Store) Clear(includeHistory bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	cleared := s.latest != nil
	s.latest = nil
	if includeHistory {
		clear(s.history)
		s.history = s.history[:0]
	}
	return cleared
}

func (s *Store) SetAmbientNote(text string) model.AmbientNote {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ambient = model.AmbientNote{Text: text, UpdatedAt: s.config.now()}
	return s.ambient
}

func (s *Store) AmbientNote() model.AmbientNote {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ambient
}

// SetTrigger arms the one-shot flag, overwriting any unconsumed one.
// It reports whether a latest event exists.
func (s *Store) SetTrigger() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.trigger = true
	return s.latest != nil
}

func (s *Store) Status() model.Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := model.Status{
		HasContext:   s.latest != nil,
		HistoryCount: len(s.history),
	}
	if s.latest != nil {
		st.LatestAction = s.latest.Action
		st.LatestAgeSeconds = model.Seconds(s.config.now().Sub(s.latest.ReceivedAt))
	}
	return st
}

func (s *Store) Capacity() int { return s.config.capacity }

// Reset returns the store to its freshly created state.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.latest = nil
	clear(s.history)
	s.history = s.history[:0]
	s.ambient = model.AmbientNote{}
	s.trigger = false
	s.lastReceivedAt = time.Time{}
}
