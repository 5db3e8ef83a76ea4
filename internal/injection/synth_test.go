package injection

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/webitel/im-context-relay/internal/domain/model"
)

type sliceHistory []*model.Event

func (h sliceHistory) History(limit int) []*model.Event {
	if limit <= 0 || limit > len(h) {
		limit = len(h)
	}
	return append([]*model.Event(nil), h[:limit]...)
}

func synthAt(history HistorySource, opts SynthOptions) *Synthesizer {
	return NewSynthesizer(history, opts, func() time.Time { return baseTime })
}

func TestRenderNarrativePrefixAndScene(t *testing.T) {
	s := synthAt(nil, DefaultSynthOptions())
	ev := &model.Event{
		ID:            "e1",
		Action:        model.ActionLike,
		NarrativeText: "A liked note",
		Payload:       model.Payload{Title: "T", Platform: "xiaohongshu", Author: model.Author{Name: "ann"}},
		OccurredAt:    baseTime,
	}

	text, err := s.Render(ev)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(text, "A liked note\n\n"))
	assert.Contains(t, text, "[Xiaohongshu · midday] The user liked a note \"T\" by ann.")
	assert.NotContains(t, text, "<draft>")
}

func TestRenderCardWhenNoNarrative(t *testing.T) {
	s := synthAt(nil, DefaultSynthOptions())
	ev := &model.Event{
		ID:             "e1",
		Action:         model.ActionComment,
		UserAnnotation: "so good",
		Payload:        model.Payload{Title: "Noodles", Platform: "xiaohongshu", Tags: []string{"food"}},
	}

	text, err := s.Render(ev)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(text, "<details>"))
	assert.Contains(t, text, "My comment: \"so good\"")
	assert.NotContains(t, text, "Their own words", "annotation is quoted once")
}

func TestRenderRejectsMissingAction(t *testing.T) {
	_, err := synthAt(nil, DefaultSynthOptions()).Render(&model.Event{ID: "e1"})
	assert.ErrorIs(t, err, model.ErrRender)
}

func TestRenderBinge(t *testing.T) {
	var history sliceHistory
	for i := 0; i < 4; i++ {
		history = append(history, &model.Event{ID: string(rune('a' + i)), Action: model.ActionRead, ReceivedAt: baseTime.Add(-time.Minute)})
	}
	history = append(history, &model.Event{ID: "old", Action: model.ActionRead, ReceivedAt: baseTime.Add(-time.Hour)})

	ev := &model.Event{ID: "e1", Action: model.ActionRead, NarrativeText: "n", ReceivedAt: baseTime}

	text, err := synthAt(history, DefaultSynthOptions()).Render(ev)
	require.NoError(t, err)
	assert.Contains(t, text, "5 posts in the last 15 min")

	opts := DefaultSynthOptions()
	opts.BingeThreshold = 6
	text, err = synthAt(history, opts).Render(ev)
	require.NoError(t, err)
	assert.NotContains(t, text, "scrolling nonstop")
}

func TestRenderCrossReferenceFirstMatchWins(t *testing.T) {
	history := sliceHistory{
		{ID: "h1", Action: model.ActionRead, Payload: model.Payload{Platform: "xiaohongshu", Title: "unrelated", Tags: []string{"cats"}}},
		{ID: "h2", Action: model.ActionRead, Payload: model.Payload{Platform: "xiaohongshu", Title: "Tokyo ramen map", Tags: []string{"Ramen"}}},
		{ID: "h3", Action: model.ActionRead, Payload: model.Payload{Platform: "xiaohongshu", Title: "more ramen", Tags: []string{"ramen"}}},
		{ID: "h4", Action: model.ActionRead, Payload: model.Payload{Platform: "bilibili", Title: "same platform", Tags: []string{"ramen"}}},
	}
	ev := &model.Event{
		ID:            "e1",
		Action:        model.ActionLike,
		NarrativeText: "n",
		Payload:       model.Payload{Platform: "bilibili", Title: "Ramen vlog", Tags: []string{"ramen"}},
	}

	text, err := synthAt(history, DefaultSynthOptions()).Render(ev)
	require.NoError(t, err)
	assert.Contains(t, text, "\"Tokyo ramen map\"")
	assert.NotContains(t, text, "more ramen")
	assert.Contains(t, text, "<draft></draft>")
}

func TestRenderCrossReferenceByKeyword(t *testing.T) {
	history := sliceHistory{
		{ID: "h1", Payload: model.Payload{Platform: "xiaohongshu", Title: "Best hiking boots"}},
	}
	ev := &model.Event{
		ID:            "e1",
		Action:        model.ActionRead,
		NarrativeText: "n",
		Payload:       model.Payload{Platform: "bilibili", Title: "trail day", Tags: []string{"hiking"}},
	}

	text, err := synthAt(history, DefaultSynthOptions()).Render(ev)
	require.NoError(t, err)
	assert.Contains(t, text, "shared topic: hiking")
}

func TestRenderProgressAndTelemetry(t *testing.T) {
	s := synthAt(nil, DefaultSynthOptions())

	early := &model.Event{ID: "e1", Action: model.ActionRead, NarrativeText: "n",
		Payload: model.Payload{Platform: "bilibili", Progress: &model.Progress{Ratio: 0.1}}}
	text, err := s.Render(early)
	require.NoError(t, err)
	assert.Contains(t, text, "only 10% of the way in")

	late := early.Clone()
	late.Payload.Progress.Ratio = 0.8
	text, err = s.Render(late)
	require.NoError(t, err)
	assert.Contains(t, text, "almost to the end (80%)")

	mid := early.Clone()
	mid.Payload.Progress.Ratio = 0.5
	mid.Telemetry = &model.Telemetry{
		MemoryPressure: true,
		LastSession:    model.Session{Name: "Elden Ring", DurationMinutes: 120, MinutesAgo: 5},
	}
	text, err = s.Render(mid)
	require.NoError(t, err)
	assert.NotContains(t, text, "%)")
	assert.Contains(t, text, "heavy memory load")
	assert.Contains(t, text, "closed Elden Ring 5 min ago after 120 min")
}

func TestRenderBudgetDropsOptionalClausesFirst(t *testing.T) {
	history := sliceHistory{
		{ID: "h1", Payload: model.Payload{Platform: "xiaohongshu", Title: "ramen", Tags: []string{"ramen"}}},
	}
	ev := &model.Event{
		ID:            "e1",
		Action:        model.ActionLike,
		NarrativeText: "n",
		Payload:       model.Payload{Platform: "bilibili", Title: "Ramen", Tags: []string{"ramen"}, Progress: &model.Progress{Ratio: 0.9}},
		Telemetry:     &model.Telemetry{MemoryPressure: true},
	}

	full, err := synthAt(history, SynthOptions{}).Render(ev)
	require.NoError(t, err)
	require.Contains(t, full, "heavy memory load")

	scene := "n\n\n[Bilibili · midday] The user liked a video \"Ramen\"."
	opts := DefaultSynthOptions()
	opts.MaxChars = utf8.RuneCountInString(scene) + 5

	text, err := synthAt(history, opts).Render(ev)
	require.NoError(t, err)
	assert.Equal(t, scene, text)

	opts.MaxChars = 10
	text, err = synthAt(history, opts).Render(ev)
	require.NoError(t, err)
	assert.Equal(t, 10, utf8.RuneCountInString(text))
	assert.True(t, strings.HasSuffix(text, "…"))
}
