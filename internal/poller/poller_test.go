package poller

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/webitel/im-context-relay/internal/domain/model"
	"github.com/webitel/im-context-relay/internal/injection"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// scriptedSource returns queued views, repeating the last one.
type scriptedSource struct {
	mu    sync.Mutex
	views []*model.LatestView
	err   error
	calls int
}

func (s *scriptedSource) Latest(context.Context, time.Duration) (*model.LatestView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	v := s.views[0]
	if len(s.views) > 1 {
		s.views = s.views[1:]
	}
	return v, nil
}

func (s *scriptedSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type recordingSurfacer struct {
	mu  sync.Mutex
	ids []string
}

func (r *recordingSurfacer) Surface(_ context.Context, ev *model.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, ev.ID)
	return nil
}

type countingNotifier struct{ n atomic.Int32 }

func (c *countingNotifier) Notify(context.Context, *model.Event) { c.n.Add(1) }

func available(id string, trigger bool) *model.LatestView {
	return &model.LatestView{
		Available:     true,
		Event:         &model.Event{ID: id, Action: model.ActionLike, NarrativeText: "n"},
		ShouldTrigger: trigger,
	}
}

func TestTickNoveltyAndTrigger(t *testing.T) {
	src := &scriptedSource{views: []*model.LatestView{
		available("e1", true),
		available("e1", false),
		available("e2", false),
	}}
	cache := injection.NewCache(10)
	surf := &recordingSurfacer{}
	notes := &countingNotifier{}

	p := New(src, cache, surf, discard, Options{Interval: time.Hour}, WithNotifier(notes))

	require.NoError(t, p.Tick(context.Background()))
	assert.Equal(t, "e1", cache.Event().ID)
	assert.Equal(t, []string{"e1"}, surf.ids)
	assert.EqualValues(t, 1, notes.n.Load())

	require.NoError(t, p.Tick(context.Background()))
	assert.EqualValues(t, 1, notes.n.Load(), "same id is not novel")
	assert.Len(t, surf.ids, 1)

	require.NoError(t, p.Tick(context.Background()))
	assert.Equal(t, "e2", cache.Event().ID)
	assert.Equal(t, "e2", p.LastSeen())
	assert.EqualValues(t, 2, notes.n.Load())
	assert.Len(t, surf.ids, 1, "no trigger, no visible injection")
}

func TestTickLateTriggerSurfacesOnce(t *testing.T) {
	src := &scriptedSource{views: []*model.LatestView{
		available("e1", false),
		available("e1", true),
	}}
	cache := injection.NewCache(10)
	surf := &recordingSurfacer{}
	p := New(src, cache, surf, discard, Options{Interval: time.Hour})

	require.NoError(t, p.Tick(context.Background()))
	assert.Empty(t, surf.ids)
	require.NoError(t, p.Tick(context.Background()))
	assert.Equal(t, []string{"e1"}, surf.ids)
}

func TestTickUnavailableClearsCacheAndKeepsAmbient(t *testing.T) {
	src := &scriptedSource{views: []*model.LatestView{
		available("e1", false),
		{Available: false, Reason: model.ReasonExpired, AmbientNote: "hum"},
	}}
	cache := injection.NewCache(10)
	p := New(src, cache, nil, discard, Options{Interval: time.Hour})

	require.NoError(t, p.Tick(context.Background()))
	require.NotNil(t, cache.Event())

	require.NoError(t, p.Tick(context.Background()))
	assert.Nil(t, cache.Event())
	assert.Equal(t, "hum", cache.AmbientNote())
}

func TestTickErrorsAreSwallowed(t *testing.T) {
	src := &scriptedSource{err: errors.New("connection refused")}
	cache := injection.NewCache(10)
	cache.SetEvent(&model.Event{ID: "keep"})
	p := New(src, cache, nil, discard, Options{Interval: time.Hour})

	assert.Error(t, p.Tick(context.Background()))
	assert.Equal(t, "keep", cache.Event().ID, "transport failures do not touch the cache")
}

func TestStopDiscardsLateResults(t *testing.T) {
	src := &scriptedSource{views: []*model.LatestView{available("e1", true)}}
	cache := injection.NewCache(10)
	surf := &recordingSurfacer{}
	p := New(src, cache, surf, discard, Options{Interval: time.Hour})

	p.Stop()
	assert.False(t, p.Alive())
	assert.NoError(t, p.Tick(context.Background()))
	assert.Nil(t, cache.Event())
	assert.Empty(t, surf.ids)
}

func TestRunLoopTicksUntilCancelled(t *testing.T) {
	src := &scriptedSource{views: []*model.LatestView{available("e1", false)}}
	p := New(src, injection.NewCache(10), nil, discard, Options{Interval: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(ctx) }()

	require.Eventually(t, func() bool { return src.Calls() >= 3 }, time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)
	assert.False(t, p.Alive())
}

func TestCursorSuppressesRenotifyAfterRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cursor")
	cursor := NewFileCursor(path)

	src := &scriptedSource{views: []*model.LatestView{available("e1", false)}}
	notes := &countingNotifier{}

	first := New(src, injection.NewCache(10), nil, discard, Options{}, WithCursor(cursor), WithNotifier(notes))
	require.NoError(t, first.Tick(context.Background()))
	assert.EqualValues(t, 1, notes.n.Load())

	cache := injection.NewCache(10)
	second := New(src, cache, nil, discard, Options{}, WithCursor(NewFileCursor(path)), WithNotifier(notes))
	assert.Equal(t, "e1", second.LastSeen())
	require.NoError(t, second.Tick(context.Background()))
	assert.EqualValues(t, 1, notes.n.Load())

	cached := cache.Event()
	require.NotNil(t, cached, "a restored cursor must not starve the engine")
	assert.Equal(t, "e1", cached.ID)
}

func TestCursorRestoredEventStillSurfacesTrigger(t *testing.T) {
	cursor := NewMemoryCursor()
	require.NoError(t, cursor.Save("e1"))

	src := &scriptedSource{views: []*model.LatestView{available("e1", true), available("e1", false)}}
	cache := injection.NewCache(10)
	surf := &recordingSurfacer{}
	notes := &countingNotifier{}

	p := New(src, cache, surf, discard, Options{}, WithCursor(cursor), WithNotifier(notes))
	require.NoError(t, p.Tick(context.Background()))
	require.NoError(t, p.Tick(context.Background()))

	assert.Equal(t, []string{"e1"}, surf.ids)
	assert.Zero(t, notes.n.Load())
	require.NotNil(t, cache.Event())
	assert.Equal(t, "e1", cache.Event().ID)
}

func TestFileCursorMissingFile(t *testing.T) {
	id, err := NewFileCursor(filepath.Join(t.TempDir(), "nope")).Load()
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestClientLatest(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("maxAgeSeconds")
		_ = json.NewEncoder(w).Encode(available("e1", true))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", time.Second, discard)
	view, err := c.Latest(context.Background(), 300*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "300", gotQuery)
	assert.True(t, view.Available)
	assert.Equal(t, "e1", view.Event.ID)
	srv.CloseClientConnections()
	c.http.CloseIdleConnections()
}

func TestClientTransportErrorAndBreaker(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, discard)
	defer c.http.CloseIdleConnections()

	for range 5 {
		_, err := c.Latest(context.Background(), 0)
		var te *model.TransportError
		require.ErrorAs(t, err, &te)
	}
	assert.EqualValues(t, 5, hits.Load())

	// breaker is open now: fail fast without reaching the relay
	_, err := c.Latest(context.Background(), 0)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, gobreaker.StateOpen, c.cb.State())
	assert.EqualValues(t, 5, hits.Load())
}
