package model

import "strings"

// Payload is the loosely typed description of the content the user acted upon.
// Any field may be empty; producers fill what their platform exposes.
type Payload struct {
	ID          string     `json:"id,omitempty"`
	Platform    string     `json:"platform,omitempty"`
	Kind        string     `json:"kind,omitempty"`
	Title       string     `json:"title,omitempty"`
	Summary     string     `json:"summary,omitempty"`
	Author      Author     `json:"author"`
	Engagement  Engagement `json:"engagement"`
	TopComments []Comment  `json:"topComments"`
	Tags        []string   `json:"tags"`
	Progress    *Progress  `json:"progress,omitempty"`
}

type Author struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

type Engagement struct {
	Likes    int64 `json:"likes,omitempty"`
	Collects int64 `json:"collects,omitempty"`
	Comments int64 `json:"comments,omitempty"`
	Shares   int64 `json:"shares,omitempty"`
	Coins    int64 `json:"coins,omitempty"`
}

type Comment struct {
	Author string `json:"author,omitempty"`
	Text   string `json:"text"`
	Likes  int64  `json:"likes,omitempty"`
}

// Progress is the platform specific progress indicator (playback position, scroll depth).
// Ratio is normalised to [0,1]; Label keeps the raw platform text ("03:12/10:00").
type Progress struct {
	Label string  `json:"label,omitempty"`
	Ratio float64 `json:"ratio"`
}

// Populated reports whether the payload carries enough to describe the content.
func (p Payload) Populated() bool {
	return strings.TrimSpace(p.Title) != "" ||
		strings.TrimSpace(p.Summary) != "" ||
		strings.TrimSpace(p.Author.Name) != "" ||
		strings.TrimSpace(p.ID) != "" ||
		len(p.Tags) > 0
}

// Normalize replaces nil collections with empty ones so JSON consumers never see null.
func (p *Payload) Normalize() {
	if p.TopComments == nil {
		p.TopComments = []Comment{}
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}
	p.Platform = strings.ToLower(strings.TrimSpace(p.Platform))
}

func (p Payload) Clone() Payload {
	c := p
	if p.TopComments != nil {
		c.TopComments = append([]Comment(nil), p.TopComments...)
	}
	if p.Tags != nil {
		c.Tags = append([]string(nil), p.Tags...)
	}
	if p.Progress != nil {
		pr := *p.Progress
		c.Progress = &pr
	}
	return c
}
