package registry

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/webitel/im-context-relay/internal/domain/model"
)

// Interface guard
var _ Connector = (*connect)(nil)

// [CONNECTOR] THE INTERFACE FOR EXTERNAL LAYERS (HUB / STREAM HANDLERS)
type Connector interface {
	GetID() uuid.UUID
	Send(ev *model.Event, timeout time.Duration) bool // Thread-safe send with backpressure handling
	Recv() <-chan *model.Event
	Done() <-chan struct{}
	Dropped() uint64
	Close() // Terminate connection and release resources
}

// [METADATA] EXPORTED FOR TRANSPORT AND ANALYTICS LAYERS
type ConnectMetadata struct {
	Transport string
	RemoteIP  string
	UserAgent string
}

// [CONNECT] CONCRETE IMPLEMENTATION (UNEXPORTED TO FORCE INTERFACE USAGE)
type connect struct {
	id           uuid.UUID
	metadata     ConnectMetadata
	createdAt    time.Time
	ctx          context.Context
	cancelFn     context.CancelFunc
	sendCh       chan *model.Event
	closeOnce    sync.Once // [PROTECTION]
	droppedCount uint64    // [ATOMIC_FIELD]
}

// NewConnector creates a session bound to ctx. Cancelling ctx stops further sends.
func NewConnector(ctx context.Context, meta ConnectMetadata, bufferSize int) Connector {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	childCtx, cancel := context.WithCancel(ctx)
	return &connect{
		id:        uuid.New(),
		metadata:  meta,
		createdAt: time.Now(),
		ctx:       childCtx,
		cancelFn:  cancel,
		sendCh:    make(chan *model.Event, bufferSize),
	}
}

func (c *connect) GetID() uuid.UUID { return c.id }

func (c *connect) Done() <-chan struct{} { return c.ctx.Done() }

func (c *connect) Dropped() uint64 { return atomic.LoadUint64(&c.droppedCount) }

// Send attempts to push an event into the session buffer.
// If the buffer stays full for the whole timeout, lower priority events are shed.
func (c *connect) Send(ev *model.Event, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	// 1. [LIFECYCLE_GATE] Abort if the transport is already dead.
	case <-c.ctx.Done():
		return false

	// 2. [PRIMARY_DELIVERY]
	case c.sendCh <- ev:
		return true

	// 3. [BACKPRESSURE_THRESHOLD] persistent slow consumer.
	case <-timer.C:
		return c.handleBackpressure(ev)
	}
}

// handleBackpressure makes room for high priority events by evicting the oldest buffered one
// when it ranks lower. Low priority events are dropped outright.
func (c *connect) handleBackpressure(ev *model.Event) bool {
	prio := ev.Action.Priority()
	if prio <= model.PriorityLow {
		atomic.AddUint64(&c.droppedCount, 1)
		return false
	}

	select {
	case oldEv := <-c.sendCh:
		if oldEv.Action.Priority() < prio {
			select {
			case c.sendCh <- ev:
				atomic.AddUint64(&c.droppedCount, 1)
				return true
			default:
			}
		} else {
			// put it back (best effort)
			select {
			case c.sendCh <- oldEv:
			default:
			}
		}
	default:
	}

	atomic.AddUint64(&c.droppedCount, 1)
	return false
}

func (c *connect) Recv() <-chan *model.Event { return c.sendCh }

// Close terminates the session. Only the Hub calls it, after detaching the session,
// so no Send can race with the channel close.
func (c *connect) Close() {
	c.closeOnce.Do(func() {
		c.cancelFn()
		close(c.sendCh)
	})
}
