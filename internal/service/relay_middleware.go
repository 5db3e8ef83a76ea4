package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/webitel/im-context-relay/internal/domain/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/webitel/im-context-relay/internal/service"

// relayMiddleware implements [DECORATOR_PATTERN] to add logging and tracing
// to the relay without touching its logic.
type relayMiddleware struct {
	next   Relayer
	logger *slog.Logger
	tracer trace.Tracer
}

func NewRelayMiddleware(next Relayer, logger *slog.Logger) Relayer {
	return &relayMiddleware{
		next:   next,
		logger: logger,
		tracer: otel.Tracer(tracerName),
	}
}

func (m *relayMiddleware) Ingest(ctx context.Context, req IngestRequest) (IngestResult, error) {
	ctx, span := m.tracer.Start(ctx, "relay.Ingest", trace.WithAttributes(attribute.String("action", req.Action)))
	defer span.End()

	start := time.Now()
	res, err := m.next.Ingest(ctx, req)
	duration := time.Since(start)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		level := slog.LevelError
		if model.IsValidation(err) {
			level = slog.LevelWarn
		}
		m.logger.Log(ctx, level, "EVENT_INGEST_FAILED",
			"action", req.Action,
			"err", err,
			"duration_ms", duration.Milliseconds(),
		)
		return res, err
	}

	span.SetAttributes(
		attribute.String("event.id", res.ID),
		attribute.Bool("event.duplicate", res.Duplicate),
		attribute.Bool("event.triggered", res.Triggered),
	)
	m.logger.InfoContext(ctx, "EVENT_INGESTED",
		"event_id", res.ID,
		"action", req.Action,
		"duplicate", res.Duplicate,
		"triggered", res.Triggered,
		"duration_ms", duration.Milliseconds(),
	)
	return res, nil
}

func (m *relayMiddleware) SetAmbientNote(ctx context.Context, text string) (model.AmbientNote, error) {
	ctx, span := m.tracer.Start(ctx, "relay.SetAmbientNote")
	defer span.End()

	note, err := m.next.SetAmbientNote(ctx, text)
	if err != nil {
		span.RecordError(err)
		m.logger.WarnContext(ctx, "AMBIENT_NOTE_REJECTED", "err", err)
		return note, err
	}
	m.logger.DebugContext(ctx, "AMBIENT_NOTE_UPDATED", "length", len([]rune(note.Text)))
	return note, nil
}

func (m *relayMiddleware) Trigger(ctx context.Context, action string) bool {
	ctx, span := m.tracer.Start(ctx, "relay.Trigger")
	defer span.End()
	return m.next.Trigger(ctx, action)
}

func (m *relayMiddleware) Latest(ctx context.Context, maxAge time.Duration) model.LatestView {
	ctx, span := m.tracer.Start(ctx, "relay.Latest")
	defer span.End()

	view := m.next.Latest(ctx, maxAge)
	span.SetAttributes(
		attribute.Bool("available", view.Available),
		attribute.Bool("should_trigger", view.ShouldTrigger),
	)
	if view.ShouldTrigger {
		m.logger.DebugContext(ctx, "TRIGGER_DELIVERED", "event_id", view.Event.ID)
	}
	return view
}

func (m *relayMiddleware) History(ctx context.Context, limit int) []*model.Event {
	ctx, span := m.tracer.Start(ctx, "relay.History")
	defer span.End()
	return m.next.History(ctx, limit)
}

func (m *relayMiddleware) Clear(ctx context.Context, includeHistory bool) bool {
	ctx, span := m.tracer.Start(ctx, "relay.Clear")
	defer span.End()
	return m.next.Clear(ctx, includeHistory)
}

func (m *relayMiddleware) Status(ctx context.Context) model.Status {
	return m.next.Status(ctx)
}

func (m *relayMiddleware) Preview(ctx context.Context, maxAge time.Duration) Preview {
	ctx, span := m.tracer.Start(ctx, "relay.Preview")
	defer span.End()
	return m.next.Preview(ctx, maxAge)
}
