/*
Package poller is the consumer side loop: it reads the relay on a fixed cadence, detects novel
events by id and hands them to the injection cache, the notifier and, when the relay asked for
it, the visible injection path.

Failures are swallowed: the tick interval is the retry cadence.
*/
package poller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/webitel/im-context-relay/internal/domain/model"
	"github.com/webitel/im-context-relay/internal/injection"
)

// Surfacer materialises an event visibly in the conversation.
type Surfacer interface {
	Surface(ctx context.Context, ev *model.Event) error
}

// Notifier is the optional "something new happened" side effect.
type Notifier interface {
	Notify(ctx context.Context, ev *model.Event)
}

type Options struct {
	Interval time.Duration
	MaxAge   time.Duration
}

type Option func(*Poller)

func WithNotifier(n Notifier) Option { return func(p *Poller) { p.notifier = n } }

func WithCursor(c Cursor) Option { return func(p *Poller) { p.cursor = c } }

type Poller struct {
	source   Source
	cache    *injection.Cache
	surfacer Surfacer
	notifier Notifier
	cursor   Cursor
	logger   *slog.Logger
	opts     Options

	mu       sync.Mutex
	lastSeen string

	// [LIVENESS] responses arriving after Stop are discarded
	alive    atomic.Bool
	started  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func New(source Source, cache *injection.Cache, surfacer Surfacer, logger *slog.Logger, opts Options, options ...Option) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &Poller{
		source:   source,
		cache:    cache,
		surfacer: surfacer,
		cursor:   NewMemoryCursor(),
		logger:   logger,
		opts:     opts,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	for _, o := range options {
		o(p)
	}
	p.alive.Store(true)
	if id, err := p.cursor.Load(); err != nil {
		p.logger.Warn("POLL_CURSOR_LOAD_FAILED", "err", err)
	} else {
		p.lastSeen = id
	}
	return p
}

// Start launches the loop. The first tick fires immediately.
func (p *Poller) Start(ctx context.Context) {
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	go p.loop(ctx)
}

// Run blocks until ctx is done or Stop is called.
func (p *Poller) Run(ctx context.Context) error {
	p.Start(ctx)
	select {
	case <-ctx.Done():
		p.Stop()
		return ctx.Err()
	case <-p.doneCh:
		return nil
	}
}

// Stop flips the liveness flag and waits for the loop to exit. An in-flight request is not
// aborted; its result is dropped.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() {
		p.alive.Store(false)
		close(p.stopCh)
	})
	if p.started.Load() {
		<-p.doneCh
	}
}

func (p *Poller) Alive() bool { return p.alive.Load() }

func (p *Poller) LastSeen() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastSeen
}

func (p *Poller) loop(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()

	for {
		_ = p.Tick(ctx)

		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			p.alive.Store(false)
			return
		case <-ticker.C:
		}
	}
}

// Tick performs one poll. The returned error is informational; the loop ignores it.
func (p *Poller) Tick(ctx context.Context) error {
	// the request outlives cancellation; only its result is discarded
	view, err := p.source.Latest(context.WithoutCancel(ctx), p.opts.MaxAge)
	if !p.alive.Load() {
		return nil
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			p.logger.Debug("POLL_TIMEOUT", "err", err)
		} else {
			p.logger.Debug("POLL_FAILED", "err", err)
		}
		return err
	}
	p.apply(ctx, view)
	return nil
}

func (p *Poller) apply(ctx context.Context, view *model.LatestView) {
	p.cache.SetAmbientNote(view.AmbientNote)

	if !view.Available || view.Event == nil {
		p.cache.ClearEvent()
		return
	}
	ev := view.Event

	p.mu.Lock()
	novel := ev.ID != p.lastSeen
	if novel {
		p.lastSeen = ev.ID
	}
	p.mu.Unlock()

	if !novel {
		cached := p.cache.Event()
		if cached == nil || cached.ID != ev.ID {
			// seen before a restart (cursor) or after a transient gap: offer it again, no renotify
			p.cache.SetEvent(ev)
			cached = p.cache.Event()
		}
		// a trigger set after the event was first seen still surfaces it once
		if view.ShouldTrigger && !cached.Injected {
			p.surface(ctx, cached)
		}
		return
	}

	if err := p.cursor.Save(ev.ID); err != nil {
		p.logger.Debug("POLL_CURSOR_SAVE_FAILED", "err", err)
	}
	p.cache.SetEvent(ev)
	p.logger.Info("CONTEXT_EVENT_RECEIVED", "event_id", ev.ID, "action", ev.Action, "trigger", view.ShouldTrigger)

	if p.notifier != nil {
		p.notifier.Notify(ctx, ev)
	}
	if view.ShouldTrigger {
		p.surface(ctx, ev)
	}
}

func (p *Poller) surface(ctx context.Context, ev *model.Event) {
	if p.surfacer == nil {
		return
	}
	if err := p.surfacer.Surface(ctx, ev); err != nil {
		p.logger.Warn("SURFACE_FAILED", "event_id", ev.ID, "err", err)
	}
}
