/*
Package registry fans newly ingested events out to live stream sessions (websocket, long-poll).

The relay is single-tenant, so one Hub owns one mailbox and every session. The mailbox decouples
the bus consumer from slow sessions: Broadcast never blocks, delivery happens on the Hub's own goroutine.
*/
package registry

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/webitel/im-context-relay/internal/domain/model"
)

// Hubber defines the gateway for session management and event routing.
type Hubber interface {
	Broadcast(ev *model.Event) bool
	Register(conn Connector)
	Unregister(connID uuid.UUID)
	Sessions() int
	Shutdown()
}

var _ Hubber = (*Hub)(nil)

type Hub struct {
	// [MAILBOX] shock absorber between the bus and session delivery.
	mailbox chan *model.Event

	sessions map[uuid.UUID]Connector
	mu       sync.RWMutex

	doneCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	config hubConfig
}

type hubConfig struct {
	mailboxSize int
	sendTimeout time.Duration
}

func NewHub(opts ...Option) *Hub {
	h := &Hub{
		sessions: make(map[uuid.UUID]Connector),
		doneCh:   make(chan struct{}),
		config: hubConfig{
			mailboxSize: 256,
			sendTimeout: 500 * time.Millisecond,
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	h.mailbox = make(chan *model.Event, h.config.mailboxSize)

	h.wg.Add(1)
	go h.loop()
	return h
}

// Broadcast queues ev for delivery. Returns false when nobody listens or the mailbox is full.
func (h *Hub) Broadcast(ev *model.Event) bool {
	if ev == nil || h.Sessions() == 0 {
		return false
	}
	select {
	case <-h.doneCh:
		return false
	case h.mailbox <- ev:
		return true
	default:
		return false
	}
}

func (h *Hub) Register(conn Connector) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[conn.GetID()] = conn
}

// Unregister detaches and closes the session. Safe to call more than once.
func (h *Hub) Unregister(connID uuid.UUID) {
	h.mu.Lock()
	conn, ok := h.sessions[connID]
	delete(h.sessions, connID)
	h.mu.Unlock()

	if ok {
		conn.Close()
	}
}

func (h *Hub) Sessions() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Shutdown stops the delivery loop and closes every session.
func (h *Hub) Shutdown() {
	h.stopOnce.Do(func() {
		close(h.doneCh)
		h.wg.Wait()

		h.mu.Lock()
		sessions := h.sessions
		h.sessions = make(map[uuid.UUID]Connector)
		h.mu.Unlock()

		for _, conn := range sessions {
			conn.Close()
		}
	})
}

func (h *Hub) loop() {
	defer h.wg.Done()
	for {
		select {
		case <-h.doneCh:
			return
		case ev := <-h.mailbox:
			h.deliver(ev)
		}
	}
}

func (h *Hub) deliver(ev *model.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, conn := range h.sessions {
		// each session gets its own copy; handlers may marshal concurrently
		conn.Send(ev.Clone(), h.config.sendTimeout)
	}
}
