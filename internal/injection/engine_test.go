package injection

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/webitel/im-context-relay/internal/domain/model"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type recordingComposer struct {
	texts []string
	err   error
}

func (c *recordingComposer) Submit(_ context.Context, text string) error {
	if c.err != nil {
		return c.err
	}
	c.texts = append(c.texts, text)
	return nil
}

type staticRenderer struct {
	text string
	err  error
}

func (r staticRenderer) Render(*model.Event) (string, error) { return r.text, r.err }

func newTestEngine(t *testing.T, r Renderer, composer Composer, opts Options) (*Engine, *Cache) {
	t.Helper()
	cache := NewCache(10)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := NewEngine(cache, r, composer, logger, opts, WithClock(func() time.Time { return baseTime }))
	return e, cache
}

func freshEvent(id string) *model.Event {
	return &model.Event{
		ID:            id,
		Action:        model.ActionLike,
		NarrativeText: "A liked note",
		Payload:       model.Payload{Title: "T"},
		ReceivedAt:    baseTime.Add(-10 * time.Second),
	}
}

func conversation() *model.Messages {
	return &model.Messages{
		{Role: model.RoleSystem, Text: "persona"},
		{Role: model.RoleUser, Text: "hi"},
		{Role: model.RoleAssistant, Text: "hello"},
		{Role: model.RoleUser, Text: "what's up"},
	}
}

func TestInterceptQuietNeverMutates(t *testing.T) {
	e, cache := newTestEngine(t, staticRenderer{text: "narrative"}, nil, DefaultOptions())
	cache.SetAmbientNote("background hum")
	cache.SetEvent(freshEvent("e1"))

	conv := conversation()
	before := append(model.Messages(nil), *conv...)

	out := e.Intercept(context.Background(), conv, KindQuiet)

	assert.Equal(t, DecisionQuiet, out.Decision)
	assert.False(t, out.Mutated())
	assert.Equal(t, before, *conv)
}

func TestInterceptDisabled(t *testing.T) {
	opts := DefaultOptions()
	opts.Enabled = false
	e, cache := newTestEngine(t, staticRenderer{text: "narrative"}, nil, opts)
	cache.SetAmbientNote("note")
	cache.SetEvent(freshEvent("e1"))

	conv := conversation()
	out := e.Intercept(context.Background(), conv, KindNormal)

	assert.Equal(t, DecisionDisabled, out.Decision)
	assert.Equal(t, 4, conv.Len())
}

func TestInterceptAmbientUpsertIsIdempotent(t *testing.T) {
	e, cache := newTestEngine(t, staticRenderer{text: "narrative"}, nil, DefaultOptions())
	cache.SetAmbientNote("it is raining")

	conv := conversation()

	first := e.Intercept(context.Background(), conv, KindNormal)
	assert.Equal(t, AmbientInserted, first.Ambient)
	assert.Equal(t, DecisionNoEvent, first.Decision)
	require.Equal(t, 5, conv.Len())
	assert.Equal(t, "persona", conv.At(0).Text)
	assert.Equal(t, model.MarkerAmbient, conv.At(1).Meta.Marker)

	second := e.Intercept(context.Background(), conv, KindNormal)
	assert.Equal(t, AmbientNone, second.Ambient)
	assert.Equal(t, 5, conv.Len())

	cache.SetAmbientNote("the rain stopped")
	third := e.Intercept(context.Background(), conv, KindNormal)
	assert.Equal(t, AmbientReplaced, third.Ambient)
	assert.Equal(t, 5, conv.Len())
	assert.Equal(t, "the rain stopped", conv.At(1).Text)

	markers := 0
	for i := 0; i < conv.Len(); i++ {
		if conv.At(i).Meta.Marker == model.MarkerAmbient {
			markers++
		}
	}
	assert.Equal(t, 1, markers)
}

func TestInterceptAmbientOnEmptyConversationAppends(t *testing.T) {
	e, cache := newTestEngine(t, staticRenderer{text: "narrative"}, nil, DefaultOptions())
	cache.SetAmbientNote("note")

	conv := &model.Messages{}
	e.Intercept(context.Background(), conv, KindNormal)

	require.Equal(t, 1, conv.Len())
	assert.Equal(t, model.MarkerAmbient, conv.At(0).Meta.Marker)
}

func TestInterceptPositions(t *testing.T) {
	cases := []struct {
		name     string
		position Position
		empty    bool
		want     int
	}{
		{name: "start", position: PositionStart, want: 0},
		{name: "end", position: PositionEnd, want: 4},
		{name: "before-last", position: PositionBeforeLast, want: 3},
		{name: "before-last empty", position: PositionBeforeLast, empty: true, want: 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			opts := DefaultOptions()
			opts.Position = tc.position
			e, cache := newTestEngine(t, staticRenderer{text: "narrative"}, nil, opts)
			cache.SetEvent(freshEvent("e1"))

			conv := conversation()
			if tc.empty {
				conv = &model.Messages{}
			}
			out := e.Intercept(context.Background(), conv, KindNormal)

			require.Equal(t, DecisionInserted, out.Decision)
			assert.Equal(t, tc.want, out.Index)
			msg := conv.At(tc.want)
			assert.Equal(t, "narrative", msg.Text)
			assert.Equal(t, model.MarkerEvent, msg.Meta.Marker)
			assert.Equal(t, "e1", msg.Meta.EventID)
			assert.Equal(t, model.ActionLike, msg.Meta.Action)
		})
	}
}

func TestInterceptVoice(t *testing.T) {
	opts := DefaultOptions()
	opts.Voice = VoiceUser
	e, cache := newTestEngine(t, staticRenderer{text: "narrative"}, nil, opts)
	cache.SetEvent(freshEvent("e1"))

	conv := conversation()
	out := e.Intercept(context.Background(), conv, KindNormal)

	assert.Equal(t, model.RoleUser, conv.At(out.Index).Role)
}

func TestInterceptRepeatedCycleReplacesSameEvent(t *testing.T) {
	e, cache := newTestEngine(t, staticRenderer{text: "narrative"}, nil, DefaultOptions())
	cache.SetEvent(freshEvent("e1"))

	conv := conversation()
	first := e.Intercept(context.Background(), conv, KindNormal)
	second := e.Intercept(context.Background(), conv, KindRegenerate)

	assert.Equal(t, DecisionInserted, first.Decision)
	assert.Equal(t, DecisionReplaced, second.Decision)
	assert.Equal(t, first.Index, second.Index)
	assert.Equal(t, 5, conv.Len())
}

func TestInterceptSkips(t *testing.T) {
	t.Run("no event", func(t *testing.T) {
		e, _ := newTestEngine(t, staticRenderer{text: "narrative"}, nil, DefaultOptions())
		conv := conversation()
		assert.Equal(t, DecisionNoEvent, e.Intercept(context.Background(), conv, KindNormal).Decision)
		assert.Equal(t, 4, conv.Len())
	})

	t.Run("stale", func(t *testing.T) {
		e, cache := newTestEngine(t, staticRenderer{text: "narrative"}, nil, DefaultOptions())
		ev := freshEvent("e1")
		ev.ReceivedAt = baseTime.Add(-301 * time.Second)
		cache.SetEvent(ev)

		conv := conversation()
		assert.Equal(t, DecisionStale, e.Intercept(context.Background(), conv, KindNormal).Decision)
		assert.Equal(t, 4, conv.Len())
		assert.NotNil(t, cache.Event(), "stale events stay cached until the poller drops them")
	})

	t.Run("stale boundary is inclusive", func(t *testing.T) {
		e, cache := newTestEngine(t, staticRenderer{text: "narrative"}, nil, DefaultOptions())
		ev := freshEvent("e1")
		ev.ReceivedAt = baseTime.Add(-300 * time.Second)
		cache.SetEvent(ev)

		assert.Equal(t, DecisionInserted, e.Intercept(context.Background(), conversation(), KindNormal).Decision)
	})

	t.Run("empty render", func(t *testing.T) {
		e, cache := newTestEngine(t, staticRenderer{err: model.ErrRender}, nil, DefaultOptions())
		cache.SetEvent(freshEvent("e1"))

		conv := conversation()
		assert.Equal(t, DecisionRenderEmpty, e.Intercept(context.Background(), conv, KindNormal).Decision)
		assert.Equal(t, 4, conv.Len())
	})
}

func TestSurfaceSuppressesInterceptor(t *testing.T) {
	composer := &recordingComposer{}
	e, cache := newTestEngine(t, staticRenderer{text: "narrative"}, composer, DefaultOptions())

	ev := freshEvent("e1")
	cache.SetEvent(ev)

	require.NoError(t, e.Surface(context.Background(), ev))
	assert.True(t, ev.Injected)
	assert.Equal(t, []string{"narrative"}, composer.texts)

	conv := conversation()
	out := e.Intercept(context.Background(), conv, KindNormal)
	assert.Equal(t, DecisionAlreadyInjected, out.Decision)
	assert.Equal(t, 4, conv.Len())

	// a second surface of the same event is a no-op
	require.NoError(t, e.Surface(context.Background(), ev))
	assert.Len(t, composer.texts, 1)
}

// hostComposer behaves like a real host: submitting text starts a generation cycle
// that runs the interceptor before Submit returns.
type hostComposer struct {
	engine    *Engine
	conv      *model.Messages
	decisions []Decision
}

func (c *hostComposer) Submit(ctx context.Context, text string) error {
	c.conv.Append(model.Message{Role: model.RoleUser, Text: text})
	out := c.engine.Intercept(ctx, c.conv, KindNormal)
	c.decisions = append(c.decisions, out.Decision)
	return nil
}

func TestSurfaceMarksBeforeHostGeneration(t *testing.T) {
	host := &hostComposer{conv: conversation()}
	e, cache := newTestEngine(t, staticRenderer{text: "narrative"}, host, DefaultOptions())
	host.engine = e

	ev := freshEvent("e1")
	cache.SetEvent(ev)

	require.NoError(t, e.Surface(context.Background(), ev))

	require.Len(t, host.decisions, 1)
	assert.Equal(t, DecisionAlreadyInjected, host.decisions[0])
	assert.Equal(t, 5, host.conv.Len(), "only the submitted text is added")
	for _, m := range *host.conv {
		assert.NotEqual(t, model.MarkerEvent, m.Meta.Marker)
	}
	assert.True(t, cache.Event().Injected)
}

func TestSurfaceErrors(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		opts := DefaultOptions()
		opts.Enabled = false
		e, _ := newTestEngine(t, staticRenderer{text: "narrative"}, &recordingComposer{}, opts)
		assert.ErrorIs(t, e.Surface(context.Background(), freshEvent("e1")), ErrDisabled)
	})

	t.Run("submit failure leaves event eligible", func(t *testing.T) {
		boom := errors.New("boom")
		e, cache := newTestEngine(t, staticRenderer{text: "narrative"}, &recordingComposer{err: boom}, DefaultOptions())
		ev := freshEvent("e1")
		cache.SetEvent(ev)

		assert.ErrorIs(t, e.Surface(context.Background(), ev), boom)
		assert.False(t, ev.Injected)
		assert.False(t, cache.Event().Injected)
	})

	t.Run("render failure", func(t *testing.T) {
		e, _ := newTestEngine(t, staticRenderer{err: model.ErrRender}, &recordingComposer{}, DefaultOptions())
		assert.ErrorIs(t, e.Surface(context.Background(), freshEvent("e1")), model.ErrRender)
	})
}

func TestParsePositionAndVoice(t *testing.T) {
	p, err := ParsePosition(" Before-Last ")
	require.NoError(t, err)
	assert.Equal(t, PositionBeforeLast, p)

	p, err = ParsePosition("")
	require.NoError(t, err)
	assert.Equal(t, PositionBeforeLast, p)

	_, err = ParsePosition("middle")
	assert.Error(t, err)

	v, err := ParseVoice("USER")
	require.NoError(t, err)
	assert.Equal(t, VoiceUser, v)

	_, err = ParseVoice("ghost")
	assert.Error(t, err)
}
