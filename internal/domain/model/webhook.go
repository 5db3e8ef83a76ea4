package model

import "slices"

// WebhookTarget is an external endpoint that receives every accepted event it subscribed to.
// Empty Events means every action.
type WebhookTarget struct {
	URL    string   `json:"url"`
	Name   string   `json:"name,omitempty"`
	Events []Action `json:"events,omitempty"`
}

func (t WebhookTarget) Accepts(a Action) bool {
	return len(t.Events) == 0 || slices.Contains(t.Events, a)
}

// Label is what logs show for the target.
func (t WebhookTarget) Label() string {
	if t.Name != "" {
		return t.Name
	}
	return t.URL
}

func (t WebhookTarget) Clone() WebhookTarget {
	t.Events = slices.Clone(t.Events)
	return t
}
