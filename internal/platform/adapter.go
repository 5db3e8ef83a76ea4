// Package platform hides per-platform knowledge (identity parsing, payload shapes, like-state
// detection) behind one capability interface. The relay core only sees model.Payload.
package platform

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/webitel/im-context-relay/internal/domain/model"
)

const (
	Xiaohongshu = "xiaohongshu"
	Bilibili    = "bilibili"
)

// Adapter is implemented once per content platform.
type Adapter interface {
	Name() string
	// Match reports whether rawURL belongs to this platform.
	Match(rawURL string) bool
	// ParseIdentity extracts the content id from a platform URL.
	ParseIdentity(rawURL string) (string, bool)
	// ExtractPayload maps a raw scraped note object onto the normalised payload.
	ExtractPayload(id string, raw map[string]any) model.Payload
	// IsActionActive inspects element attributes to tell whether e.g. a like button is pressed.
	IsActionActive(attrs map[string]string) bool
}

// Registry resolves adapters by URL or name.
type Registry struct {
	adapters []Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	return &Registry{adapters: adapters}
}

// Default returns a registry with every built-in adapter.
func Default() *Registry {
	return NewRegistry(NewXiaohongshu(), NewBilibili())
}

func (r *Registry) Resolve(rawURL string) (Adapter, bool) {
	for _, a := range r.adapters {
		if a.Match(rawURL) {
			return a, true
		}
	}
	return nil, false
}

func (r *Registry) Lookup(name string) (Adapter, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, a := range r.adapters {
		if a.Name() == name {
			return a, true
		}
	}
	return nil, false
}

func hostOf(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

func pathOf(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	return u.Path
}

var (
	zeroWidth    = regexp.MustCompile("[\u200b\u200c\u200d\ufeff]")
	extraNewline = regexp.MustCompile(`\n{3,}`)
)

// Sanitize strips zero-width characters, collapses runs of blank lines and trims.
func Sanitize(text string) string {
	if text == "" {
		return ""
	}
	text = zeroWidth.ReplaceAllString(text, "")
	text = extraNewline.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
