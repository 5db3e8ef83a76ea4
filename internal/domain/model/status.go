package model

import "time"

// AmbientNote is slow-changing background context with no expiry.
type AmbientNote struct {
	Text      string    `json:"text"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// LatestResult is the store level answer of a freshness-bounded read.
type LatestResult struct {
	Available     bool
	Event         *Event
	Age           time.Duration
	Reason        string
	ShouldTrigger bool
}

const (
	ReasonEmpty   = "no context stored"
	ReasonExpired = "expired"
)

// LatestView is the wire shape of GET /context/latest, shared by the relay and the polling client.
type LatestView struct {
	Available     bool     `json:"available"`
	Event         *Event   `json:"event,omitempty"`
	AgeSeconds    *float64 `json:"ageSeconds,omitempty"`
	Reason        string   `json:"reason,omitempty"`
	ShouldTrigger bool     `json:"shouldTrigger"`
	AmbientNote   string   `json:"ambientNote,omitempty"`
}

// Status summarises the store for GET /context/status.
type Status struct {
	HasContext       bool     `json:"hasContext"`
	HistoryCount     int      `json:"historyCount"`
	LatestAction     Action   `json:"latestAction,omitempty"`
	LatestAgeSeconds *float64 `json:"latestAgeSeconds,omitempty"`
}

// Seconds renders a duration as a JSON friendly pointer.
func Seconds(d time.Duration) *float64 {
	s := d.Seconds()
	return &s
}
