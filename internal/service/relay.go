package service

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/webitel/im-context-relay/internal/domain/model"
	"github.com/webitel/im-context-relay/internal/domain/store"
	"github.com/webitel/im-context-relay/internal/injection"
	"github.com/webitel/im-context-relay/internal/platform"
)

// Relayer is the primary interface of the relay backend, consumed by the HTTP handlers.
type Relayer interface {
	Ingest(ctx context.Context, req IngestRequest) (IngestResult, error)
	SetAmbientNote(ctx context.Context, text string) (model.AmbientNote, error)
	Trigger(ctx context.Context, action string) bool
	Latest(ctx context.Context, maxAge time.Duration) model.LatestView
	History(ctx context.Context, limit int) []*model.Event
	Clear(ctx context.Context, includeHistory bool) bool
	Status(ctx context.Context) model.Status
	Preview(ctx context.Context, maxAge time.Duration) Preview
}

// EventPublisher forwards accepted events to live subscribers. Publishing is best-effort.
type EventPublisher interface {
	Publish(ctx context.Context, ev *model.Event) error
}

// IngestRequest is the body of POST /context/events.
type IngestRequest struct {
	Action         string           `json:"action"`
	NarrativeText  string           `json:"narrativeText"`
	UserAnnotation string           `json:"userAnnotation"`
	Payload        *model.Payload   `json:"payload"`
	NoteData       map[string]any   `json:"noteData"`
	URL            string           `json:"url"`
	Telemetry      *model.Telemetry `json:"telemetry"`
	OccurredAt     *time.Time       `json:"occurredAt"`
	Trigger        *bool            `json:"trigger"`
	IdempotencyKey string           `json:"idempotencyKey"`
}

type IngestResult struct {
	ID        string
	Duplicate bool
	Triggered bool
}

// Preview is the synthesized text the consumer would inject for the current event.
type Preview struct {
	Available bool   `json:"available"`
	Text      string `json:"text,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

type RelayOptions struct {
	DefaultMaxAge    time.Duration
	MaxAgeLimit      time.Duration
	PreviewMaxAge    time.Duration
	IdempotencyCache int
	Synth            injection.SynthOptions
}

type RelayService struct {
	store     store.Storer
	publisher EventPublisher
	adapters  *platform.Registry
	synth     *injection.Synthesizer
	seen      *lru.Cache[string, string]
	keyMu     sync.Mutex
	logger    *slog.Logger
	opts      RelayOptions
	newID     func() string
	now       func() time.Time
}

func NewRelayService(s store.Storer, pub EventPublisher, adapters *platform.Registry, logger *slog.Logger, opts RelayOptions) *RelayService {
	if opts.IdempotencyCache <= 0 {
		opts.IdempotencyCache = 1024
	}
	if opts.DefaultMaxAge <= 0 {
		opts.DefaultMaxAge = 300 * time.Second
	}
	if opts.MaxAgeLimit < opts.DefaultMaxAge {
		opts.MaxAgeLimit = opts.DefaultMaxAge
	}
	if opts.PreviewMaxAge <= 0 {
		opts.PreviewMaxAge = opts.MaxAgeLimit
	}
	if adapters == nil {
		adapters = platform.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}

	// [MEMORY_MANAGEMENT] bounded window of idempotency keys; only errors on a non-positive size
	seen, _ := lru.New[string, string](opts.IdempotencyCache)

	return &RelayService{
		store:     s,
		publisher: pub,
		adapters:  adapters,
		synth:     injection.NewSynthesizer(s, opts.Synth, time.Now),
		seen:      seen,
		logger:    logger,
		opts:      opts,
		newID:     NewEventID,
		now:       time.Now,
	}
}

// Ingest normalises the request into an Event and stores it as the new latest.
func (s *RelayService) Ingest(ctx context.Context, req IngestRequest) (IngestResult, error) {
	action := model.ParseAction(req.Action)
	if action == "" {
		return IngestResult{}, model.NewValidationError("action", "is required")
	}

	key := strings.TrimSpace(req.IdempotencyKey)
	if key != "" {
		// check, put and remember form one step so concurrent retries with the same key store once
		s.keyMu.Lock()
		if id, ok := s.seen.Get(key); ok {
			s.keyMu.Unlock()
			return IngestResult{ID: id, Duplicate: true}, nil
		}
	}

	ev := &model.Event{
		ID:             s.newID(),
		Action:         action,
		NarrativeText:  platform.Sanitize(req.NarrativeText),
		UserAnnotation: strings.TrimSpace(req.UserAnnotation),
		SourceURL:      strings.TrimSpace(req.URL),
		Telemetry:      req.Telemetry,
	}
	if req.OccurredAt != nil {
		ev.OccurredAt = *req.OccurredAt
	}
	ev.Payload = s.payload(req)

	err := s.store.Put(ev)
	if key != "" {
		if err == nil {
			s.seen.Add(key, ev.ID)
		}
		s.keyMu.Unlock()
	}
	if err != nil {
		return IngestResult{}, err
	}

	res := IngestResult{ID: ev.ID}
	// like and comment ask to be surfaced unless the producer opts out
	want := action.Triggers()
	if req.Trigger != nil {
		want = *req.Trigger
	}
	if want {
		res.Triggered = s.store.SetTrigger()
	}

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, ev); err != nil {
			s.logger.WarnContext(ctx, "EVENT_PUBLISH_FAILED", "event_id", ev.ID, "err", err)
		}
	}
	return res, nil
}

// payload merges the explicit payload, raw scraped note data and identity parsed from the URL.
func (s *RelayService) payload(req IngestRequest) model.Payload {
	var p model.Payload
	if req.Payload != nil {
		p = req.Payload.Clone()
	}

	adapter, ok := s.adapters.Resolve(req.URL)
	if !ok && p.Platform != "" {
		adapter, ok = s.adapters.Lookup(p.Platform)
	}
	if ok {
		if p.Platform == "" {
			p.Platform = adapter.Name()
		}
		if p.ID == "" {
			if id, found := adapter.ParseIdentity(req.URL); found {
				p.ID = id
			}
		}
		if len(req.NoteData) > 0 {
			p = merge(p, adapter.ExtractPayload(p.ID, req.NoteData))
		}
	}

	p.Title = platform.Sanitize(p.Title)
	p.Summary = platform.Sanitize(p.Summary)
	p.Normalize()
	return p
}

// merge fills empty fields of p from extracted.
func merge(p, extracted model.Payload) model.Payload {
	if p.ID == "" {
		p.ID = extracted.ID
	}
	if p.Kind == "" {
		p.Kind = extracted.Kind
	}
	if p.Title == "" {
		p.Title = extracted.Title
	}
	if p.Summary == "" {
		p.Summary = extracted.Summary
	}
	if p.Author.Name == "" {
		p.Author = extracted.Author
	}
	if p.Engagement == (model.Engagement{}) {
		p.Engagement = extracted.Engagement
	}
	if len(p.TopComments) == 0 {
		p.TopComments = extracted.TopComments
	}
	if len(p.Tags) == 0 {
		p.Tags = extracted.Tags
	}
	if p.Progress == nil {
		p.Progress = extracted.Progress
	}
	return p
}

func (s *RelayService) SetAmbientNote(_ context.Context, text string) (model.AmbientNote, error) {
	text = platform.Sanitize(text)
	if text == "" {
		return model.AmbientNote{}, model.NewValidationError("text", "is required")
	}
	return s.store.SetAmbientNote(text), nil
}

// Trigger arms the one-shot flag and reports whether there is an event to surface.
// action is informational only.
func (s *RelayService) Trigger(ctx context.Context, action string) bool {
	has := s.store.SetTrigger()
	s.logger.DebugContext(ctx, "TRIGGER_SET", "action", action, "has_context", has)
	return has
}

func (s *RelayService) Latest(_ context.Context, maxAge time.Duration) model.LatestView {
	res := s.store.Latest(s.clampMaxAge(maxAge))

	view := model.LatestView{
		Available:     res.Available,
		Reason:        res.Reason,
		ShouldTrigger: res.ShouldTrigger,
		AmbientNote:   s.store.AmbientNote().Text,
	}
	if res.Available {
		view.Event = res.Event
	}
	if res.Available || res.Reason == model.ReasonExpired {
		view.AgeSeconds = model.Seconds(res.Age)
	}
	return view
}

func (s *RelayService) clampMaxAge(maxAge time.Duration) time.Duration {
	switch {
	case maxAge <= 0:
		return s.opts.DefaultMaxAge
	case maxAge > s.opts.MaxAgeLimit:
		return s.opts.MaxAgeLimit
	default:
		return maxAge
	}
}

func (s *RelayService) History(_ context.Context, limit int) []*model.Event {
	if limit <= 0 || limit > s.store.Capacity() {
		limit = s.store.Capacity()
	}
	return s.store.History(limit)
}

func (s *RelayService) Clear(ctx context.Context, includeHistory bool) bool {
	cleared := s.store.Clear(includeHistory)
	s.logger.InfoContext(ctx, "CONTEXT_CLEARED", "include_history", includeHistory, "cleared", cleared)
	return cleared
}

func (s *RelayService) Status(_ context.Context) model.Status {
	return s.store.Status()
}

// Preview renders the latest event the way the consumer would. It does not consume the trigger flag.
func (s *RelayService) Preview(_ context.Context, maxAge time.Duration) Preview {
	if maxAge <= 0 {
		maxAge = s.opts.PreviewMaxAge
	}
	ev := s.store.Peek()
	if ev == nil {
		return Preview{Reason: model.ReasonEmpty}
	}
	if ev.Age(s.now()) > maxAge {
		return Preview{Reason: model.ReasonExpired}
	}
	text, err := s.synth.Render(ev)
	if err != nil {
		return Preview{Reason: err.Error()}
	}
	return Preview{Available: true, Text: text}
}
