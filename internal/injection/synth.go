package injection

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/webitel/im-context-relay/internal/domain/model"
)

// HistorySource yields recent events, most recent first. Both the relay store
// and the consumer Cache implement it.
type HistorySource interface {
	History(limit int) []*model.Event
}

type SynthOptions struct {
	MaxChars       int
	BingeThreshold int
	BingeWindow    time.Duration
	ProgressLow    float64
	ProgressHigh   float64
}

func DefaultSynthOptions() SynthOptions {
	return SynthOptions{
		MaxChars:       1200,
		BingeThreshold: 5,
		BingeWindow:    15 * time.Minute,
		ProgressLow:    0.2,
		ProgressHigh:   0.8,
	}
}

const draftInstruction = "If it fits the moment, suggest one short reply they could post themselves, wrapped in <draft></draft>."

// Synthesizer turns an event into the narrative text offered to the conversational agent.
type Synthesizer struct {
	history HistorySource
	now     func() time.Time

	mu   sync.RWMutex
	opts SynthOptions
}

func NewSynthesizer(history HistorySource, opts SynthOptions, now func() time.Time) *Synthesizer {
	if now == nil {
		now = time.Now
	}
	return &Synthesizer{history: history, opts: opts, now: now}
}

func (s *Synthesizer) SetOptions(opts SynthOptions) {
	s.mu.Lock()
	s.opts = opts
	s.mu.Unlock()
}

func (s *Synthesizer) Options() SynthOptions {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.opts
}

// Render composes prefix + scene + optional cross-reference, observation, sensory and draft clauses,
// then fits the result into the character budget. Optional clauses are dropped before the
// scene and the prefix are cut.
func (s *Synthesizer) Render(ev *model.Event) (string, error) {
	if ev == nil || strings.TrimSpace(string(ev.Action)) == "" {
		return "", model.ErrRender
	}
	opts := s.Options()
	now := s.now()

	narrative := strings.TrimSpace(ev.NarrativeText)
	prefix := narrative
	if prefix == "" {
		prefix = RenderCard(ev)
	}

	history := s.recent(ev.ID)

	scene := s.scene(ev, history, now, opts)
	cross := crossReference(ev, history)
	observation := observe(ev, narrative != "", opts)
	sensory := sense(ev.Telemetry)

	draft := ""
	if cross != "" {
		draft = draftInstruction
	}

	text := fit(prefix, scene, []clause{
		{text: cross, tail: draft},
		{text: observation},
		{text: sensory},
	}, opts.MaxChars)

	if strings.TrimSpace(text) == "" {
		return "", model.ErrRender
	}
	return text, nil
}

func (s *Synthesizer) recent(excludeID string) []*model.Event {
	if s.history == nil {
		return nil
	}
	items := s.history.History(0)
	out := items[:0]
	for _, h := range items {
		if h != nil && h.ID != excludeID {
			out = append(out, h)
		}
	}
	return out
}

// scene is clause (a): platform, action, time of day and the binge heuristic.
func (s *Synthesizer) scene(ev *model.Event, history []*model.Event, now time.Time, opts SynthOptions) string {
	var b strings.Builder

	fmt.Fprintf(&b, "[%s · %s] The user %s %s", sceneLabel(ev.Payload.Platform), timeOfDay(ev, now), actionVerb(ev.Action), contentNoun(ev.Payload.Platform))
	if t := strings.TrimSpace(ev.Payload.Title); t != "" {
		fmt.Fprintf(&b, " %q", t)
	}
	if a := strings.TrimSpace(ev.Payload.Author.Name); a != "" {
		fmt.Fprintf(&b, " by %s", a)
	}
	b.WriteString(".")

	if n := bingeCount(history, now, opts.BingeWindow) + 1; opts.BingeThreshold > 0 && n >= opts.BingeThreshold {
		fmt.Fprintf(&b, " They have been scrolling nonstop: %d posts in the last %s.", n, humanWindow(opts.BingeWindow))
	}
	return b.String()
}

func bingeCount(history []*model.Event, now time.Time, window time.Duration) int {
	if window <= 0 {
		return 0
	}
	n := 0
	for _, h := range history {
		if age := h.Age(now); age >= 0 && age <= window {
			n++
		}
	}
	return n
}

// crossReference is clause (b): the first history entry from another platform sharing a topic.
func crossReference(ev *model.Event, history []*model.Event) string {
	platform := ev.Payload.Platform
	if platform == "" {
		return ""
	}
	for _, h := range history {
		other := h.Payload.Platform
		if other == "" || other == platform {
			continue
		}
		topic := sharedTopic(ev.Payload, h.Payload)
		if topic == "" {
			continue
		}
		title := strings.TrimSpace(h.Payload.Title)
		if title == "" {
			title = "something related"
		} else {
			title = fmt.Sprintf("%q", title)
		}
		return fmt.Sprintf("This ties back to %s they came across on %s earlier (shared topic: %s).", title, sceneLabel(other), topic)
	}
	return ""
}

// sharedTopic matches tags first (case-insensitive), then tags of one side inside the other's title.
func sharedTopic(a, b model.Payload) string {
	for _, ta := range a.Tags {
		for _, tb := range b.Tags {
			if strings.EqualFold(strings.TrimSpace(ta), strings.TrimSpace(tb)) && strings.TrimSpace(ta) != "" {
				return strings.TrimSpace(ta)
			}
		}
	}
	if k := keywordIn(a.Tags, b.Title); k != "" {
		return k
	}
	return keywordIn(b.Tags, a.Title)
}

func keywordIn(tags []string, title string) string {
	title = strings.ToLower(title)
	if title == "" {
		return ""
	}
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if len([]rune(t)) < 2 {
			continue
		}
		if strings.Contains(title, strings.ToLower(t)) {
			return t
		}
	}
	return ""
}

// observe is clause (c): action specific secondary signals.
func observe(ev *model.Event, hasNarrative bool, opts SynthOptions) string {
	var parts []string
	if p := ev.Payload.Progress; p != nil && p.Ratio > 0 {
		pct := int(math.Round(p.Ratio * 100))
		switch {
		case p.Ratio < opts.ProgressLow:
			parts = append(parts, fmt.Sprintf("They bailed out early, only %d%% of the way in.", pct))
		case p.Ratio >= opts.ProgressHigh:
			parts = append(parts, fmt.Sprintf("They stayed with it almost to the end (%d%%).", pct))
		}
	}
	// without a narrative the card already quotes the annotation
	if a := strings.TrimSpace(ev.UserAnnotation); a != "" && hasNarrative {
		parts = append(parts, fmt.Sprintf("Their own words: %q.", a))
	}
	return strings.Join(parts, " ")
}

// sense is clause (d): ambient sensory detail from machine telemetry.
func sense(t *model.Telemetry) string {
	if t == nil {
		return ""
	}
	var parts []string
	if t.MemoryPressure {
		parts = append(parts, "Their computer is straining under heavy memory load.")
	}
	switch {
	case t.Activity.Active():
		parts = append(parts, fmt.Sprintf("They are in the middle of a %s session with %s (%d min so far).", orDefault(t.Activity.Type, "long"), t.Activity.Name, t.Activity.DurationMinutes))
	case t.LastSession.Name != "":
		parts = append(parts, fmt.Sprintf("They closed %s %d min ago after %d min.", t.LastSession.Name, t.LastSession.MinutesAgo, t.LastSession.DurationMinutes))
	}
	return strings.Join(parts, " ")
}

type clause struct {
	text string
	tail string
}

func (c clause) render() string {
	if c.text == "" {
		return ""
	}
	if c.tail == "" {
		return c.text
	}
	return c.text + " " + c.tail
}

// fit drops optional clauses from the end until the text fits maxChars,
// then hard-cuts what remains. maxChars <= 0 disables the budget.
func fit(prefix, scene string, optional []clause, maxChars int) string {
	for keep := len(optional); keep >= 0; keep-- {
		text := join(prefix, scene, optional[:keep])
		if maxChars <= 0 || len([]rune(text)) <= maxChars {
			return text
		}
	}
	return clip(join(prefix, scene, nil), maxChars-1, "") + "…"
}

func join(prefix, scene string, optional []clause) string {
	parts := []string{scene}
	for _, c := range optional {
		if r := c.render(); r != "" {
			parts = append(parts, r)
		}
	}
	body := strings.Join(parts, " ")
	if prefix == "" {
		return body
	}
	return prefix + "\n\n" + body
}

func timeOfDay(ev *model.Event, now time.Time) string {
	at := ev.OccurredAt
	if at.IsZero() {
		at = now
	}
	switch h := at.Hour(); {
	case h >= 5 && h < 11:
		return "morning"
	case h >= 11 && h < 14:
		return "midday"
	case h >= 14 && h < 18:
		return "afternoon"
	case h >= 18 && h < 23:
		return "evening"
	default:
		return "late night"
	}
}

func sceneLabel(platform string) string {
	if platform == "" {
		return "Web"
	}
	return platformLabel(platform)
}

func contentNoun(platform string) string {
	switch platform {
	case "bilibili":
		return "a video"
	case "xiaohongshu":
		return "a note"
	default:
		return "a post"
	}
}

func humanWindow(d time.Duration) string {
	if d >= time.Hour && d%time.Hour == 0 {
		return fmt.Sprintf("%d h", int(d/time.Hour))
	}
	return fmt.Sprintf("%d min", int(math.Round(d.Minutes())))
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
