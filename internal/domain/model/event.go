package model

import (
	"slices"
	"strings"
	"time"
)

// Action is the behavioural tag of a relayed event.
// Platforms may send tags outside the well-known set; they are accepted as-is.
type Action string

const (
	ActionLike    Action = "like"
	ActionComment Action = "comment"
	ActionCollect Action = "collect"
	ActionShare   Action = "share"
	ActionRead    Action = "read"
	ActionCoin    Action = "coin"
)

var knownActions = []Action{ActionLike, ActionComment, ActionCollect, ActionShare, ActionRead, ActionCoin}

// ParseAction normalises a raw tag (trim + lower case).
func ParseAction(raw string) Action {
	return Action(strings.ToLower(strings.TrimSpace(raw)))
}

func (a Action) String() string { return string(a) }

// Known reports whether the action belongs to the cross-platform set.
func (a Action) Known() bool { return slices.Contains(knownActions, a) }

// Triggers reports whether the action asks the consumer to surface the event actively.
func (a Action) Triggers() bool { return a == ActionLike || a == ActionComment }

type EventPriority int32

const (
	PriorityLow    EventPriority = 10
	PriorityNormal EventPriority = 20
	PriorityHigh   EventPriority = 30
)

// Priority drives shedding order on saturated stream sessions.
func (a Action) Priority() EventPriority {
	switch {
	case a.Triggers():
		return PriorityHigh
	case a == ActionRead:
		return PriorityLow
	default:
		return PriorityNormal
	}
}

// Event is one relayed behavioural signal.
type Event struct {
	ID             string     `json:"id"`
	Action         Action     `json:"action"`
	Payload        Payload    `json:"payload"`
	NarrativeText  string     `json:"narrativeText"`
	UserAnnotation string     `json:"userAnnotation"`
	SourceURL      string     `json:"url,omitempty"`
	Telemetry      *Telemetry `json:"telemetry,omitempty"`
	OccurredAt     time.Time  `json:"occurredAt"`
	ReceivedAt     time.Time  `json:"receivedAt"`

	// Injected is set once the event was materialised visibly in the conversation.
	Injected bool `json:"injected"`
}

// Validate checks the minimal shape a store accepts.
func (e *Event) Validate() error {
	if e == nil {
		return NewValidationError("event", "is required")
	}
	if strings.TrimSpace(e.ID) == "" {
		return NewValidationError("id", "is required")
	}
	if strings.TrimSpace(string(e.Action)) == "" {
		return NewValidationError("action", "is required")
	}
	if strings.TrimSpace(e.NarrativeText) == "" && !e.Payload.Populated() {
		return NewValidationError("payload", "narrativeText or a populated payload is required")
	}
	return nil
}

// Age is measured from ReceivedAt, falling back to OccurredAt for events that never went through a store.
func (e *Event) Age(now time.Time) time.Duration {
	ref := e.ReceivedAt
	if ref.IsZero() {
		ref = e.OccurredAt
	}
	if ref.IsZero() {
		return 0
	}
	return now.Sub(ref)
}

// Clone returns a deep copy so holders never share slices with the store.
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	c := *e
	c.Payload = e.Payload.Clone()
	if e.Telemetry != nil {
		t := *e.Telemetry
		c.Telemetry = &t
	}
	return &c
}
