package injection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/webitel/im-context-relay/internal/domain/model"
)

var ErrDisabled = errors.New("injection disabled")

// GenerationKind tags the host generation cycle the engine is invoked for.
type GenerationKind string

const (
	KindNormal      GenerationKind = "normal"
	KindQuiet       GenerationKind = "quiet"
	KindContinue    GenerationKind = "continue"
	KindRegenerate  GenerationKind = "regenerate"
	KindSwipe       GenerationKind = "swipe"
	KindImpersonate GenerationKind = "impersonate"
)

// Silent reports background generations (summaries, maintenance) that must never see injected text.
func (k GenerationKind) Silent() bool { return k == KindQuiet }

// Position selects where an event message is spliced into the conversation.
type Position string

const (
	PositionStart      Position = "start"
	PositionEnd        Position = "end"
	PositionBeforeLast Position = "before-last"
)

func ParsePosition(raw string) (Position, error) {
	switch p := Position(strings.ToLower(strings.TrimSpace(raw))); p {
	case PositionStart, PositionEnd, PositionBeforeLast:
		return p, nil
	case "":
		return PositionBeforeLast, nil
	default:
		return "", fmt.Errorf("unknown injection position %q", raw)
	}
}

// Voice selects how an injected event is presented: as narration or as if the user wrote it.
type Voice string

const (
	VoiceNarrator Voice = "narrator"
	VoiceUser     Voice = "user"
)

func ParseVoice(raw string) (Voice, error) {
	switch v := Voice(strings.ToLower(strings.TrimSpace(raw))); v {
	case VoiceNarrator, VoiceUser:
		return v, nil
	case "":
		return VoiceNarrator, nil
	default:
		return "", fmt.Errorf("unknown injection voice %q", raw)
	}
}

type Options struct {
	Enabled  bool
	Position Position
	Voice    Voice
	MaxAge   time.Duration
}

func DefaultOptions() Options {
	return Options{
		Enabled:  true,
		Position: PositionBeforeLast,
		Voice:    VoiceNarrator,
		MaxAge:   300 * time.Second,
	}
}

// Conversation is the host owned message sequence. The engine only reads its length and
// entries and splices through Insert, Replace and Append.
type Conversation interface {
	Len() int
	At(i int) model.Message
	Insert(i int, msg model.Message)
	Replace(i int, msg model.Message)
	Append(msg model.Message)
}

// Composer is the host text input: Submit behaves as if the user typed and sent text.
type Composer interface {
	Submit(ctx context.Context, text string) error
}

// Renderer turns an event into injectable text.
type Renderer interface {
	Render(ev *model.Event) (string, error)
}

type Decision string

const (
	DecisionQuiet           Decision = "quiet"
	DecisionDisabled        Decision = "disabled"
	DecisionNoEvent         Decision = "no_event"
	DecisionAlreadyInjected Decision = "already_injected"
	DecisionStale           Decision = "stale"
	DecisionRenderEmpty     Decision = "render_empty"
	DecisionInserted        Decision = "inserted"
	DecisionReplaced        Decision = "replaced"
)

type AmbientChange string

const (
	AmbientNone     AmbientChange = ""
	AmbientInserted AmbientChange = "inserted"
	AmbientReplaced AmbientChange = "replaced"
)

// Outcome reports what a single Intercept call did to the conversation.
type Outcome struct {
	Decision Decision
	Ambient  AmbientChange
	EventID  string
	Index    int
}

// Mutated reports whether the conversation was changed.
func (o Outcome) Mutated() bool {
	return o.Ambient != AmbientNone || o.Decision == DecisionInserted || o.Decision == DecisionReplaced
}

type EngineOption func(*Engine)

func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// Engine decides on every generation cycle whether and how to splice relay context
// into the conversation.
type Engine struct {
	cache    *Cache
	renderer Renderer
	composer Composer
	logger   *slog.Logger
	now      func() time.Time

	mu   sync.RWMutex
	opts Options
}

func NewEngine(cache *Cache, renderer Renderer, composer Composer, logger *slog.Logger, opts Options, options ...EngineOption) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		cache:    cache,
		renderer: renderer,
		composer: composer,
		logger:   logger,
		now:      time.Now,
		opts:     opts,
	}
	for _, o := range options {
		o(e)
	}
	return e
}

func (e *Engine) SetOptions(opts Options) {
	e.mu.Lock()
	e.opts = opts
	e.mu.Unlock()
}

func (e *Engine) Options() Options {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.opts
}

// Intercept runs the per-cycle decision chain. Every step is an early exit; only the
// ambient note upsert and the event splice ever mutate conv.
func (e *Engine) Intercept(ctx context.Context, conv Conversation, kind GenerationKind) Outcome {
	if kind.Silent() {
		return Outcome{Decision: DecisionQuiet}
	}

	opts := e.Options()
	if !opts.Enabled {
		return Outcome{Decision: DecisionDisabled}
	}

	var out Outcome
	if note := strings.TrimSpace(e.cache.AmbientNote()); note != "" {
		out.Ambient = upsertAmbient(conv, note)
	}

	ev := e.cache.Event()
	if ev == nil {
		out.Decision = DecisionNoEvent
		return out
	}
	out.EventID = ev.ID

	if ev.Injected {
		out.Decision = DecisionAlreadyInjected
		return out
	}

	if age := ev.Age(e.now()); opts.MaxAge > 0 && age > opts.MaxAge {
		e.logger.DebugContext(ctx, "INJECTION_STALE", "event_id", ev.ID, "age", age)
		out.Decision = DecisionStale
		return out
	}

	text, err := e.renderer.Render(ev)
	if err != nil || strings.TrimSpace(text) == "" {
		e.logger.DebugContext(ctx, "INJECTION_RENDER_EMPTY", "event_id", ev.ID, "err", err)
		out.Decision = DecisionRenderEmpty
		return out
	}

	msg := eventMessage(ev, text, opts.Voice)
	if i := indexOf(conv, func(m model.Message) bool {
		return m.Meta.Marker == model.MarkerEvent && m.Meta.EventID == ev.ID
	}); i >= 0 {
		conv.Replace(i, msg)
		out.Decision, out.Index = DecisionReplaced, i
		return out
	}

	out.Index = insertAt(conv, opts.Position, msg)
	out.Decision = DecisionInserted
	e.logger.DebugContext(ctx, "INJECTION_INSERTED",
		"event_id", ev.ID,
		"action", ev.Action,
		"index", out.Index,
		"kind", kind,
	)
	return out
}

// Surface is the visible path: the synthesized text is submitted through the composer as if the
// user sent it. The event is flagged injected so Intercept will not offer it again.
func (e *Engine) Surface(ctx context.Context, ev *model.Event) error {
	if ev == nil {
		return model.ErrNotAvailable
	}
	if !e.Options().Enabled {
		return ErrDisabled
	}
	if ev.Injected {
		return nil
	}
	if e.composer == nil {
		return errors.New("no composer configured")
	}

	text, err := e.renderer.Render(ev)
	if err != nil {
		return fmt.Errorf("surface %s: %w", ev.ID, err)
	}

	// [MARK_BEFORE_SUBMIT] Submit runs the host pipeline, which calls Intercept before it returns.
	e.cache.MarkInjected(ev.ID)
	ev.Injected = true
	if err := e.composer.Submit(ctx, text); err != nil {
		e.cache.UnmarkInjected(ev.ID)
		ev.Injected = false
		return fmt.Errorf("surface %s: submit: %w", ev.ID, err)
	}

	e.logger.InfoContext(ctx, "EVENT_SURFACED", "event_id", ev.ID, "action", ev.Action, "chars", len([]rune(text)))
	return nil
}

// upsertAmbient replaces the existing ambient entry in place, otherwise inserts it right after the head
// so a leading persona entry keeps index 0.
func upsertAmbient(conv Conversation, note string) AmbientChange {
	msg := model.Message{
		Role: model.RoleSystem,
		Name: "ambient",
		Text: note,
		Meta: model.MessageMeta{Marker: model.MarkerAmbient},
	}
	if i := indexOf(conv, func(m model.Message) bool { return m.Meta.Marker == model.MarkerAmbient }); i >= 0 {
		if conv.At(i) == msg {
			return AmbientNone
		}
		conv.Replace(i, msg)
		return AmbientReplaced
	}
	if conv.Len() > 0 {
		conv.Insert(1, msg)
	} else {
		conv.Append(msg)
	}
	return AmbientInserted
}

func eventMessage(ev *model.Event, text string, voice Voice) model.Message {
	msg := model.Message{
		Role: model.RoleSystem,
		Name: "narrator",
		Text: text,
		Meta: model.MessageMeta{
			Marker:  model.MarkerEvent,
			Action:  ev.Action,
			EventID: ev.ID,
		},
	}
	if voice == VoiceUser {
		msg.Role, msg.Name = model.RoleUser, ""
	}
	return msg
}

func insertAt(conv Conversation, pos Position, msg model.Message) int {
	n := conv.Len()
	switch {
	case pos == PositionStart:
		conv.Insert(0, msg)
		return 0
	case pos == PositionBeforeLast && n > 0:
		conv.Insert(n-1, msg)
		return n - 1
	default:
		conv.Append(msg)
		return n
	}
}

func indexOf(conv Conversation, match func(model.Message) bool) int {
	for i := 0; i < conv.Len(); i++ {
		if match(conv.At(i)) {
			return i
		}
	}
	return -1
}
