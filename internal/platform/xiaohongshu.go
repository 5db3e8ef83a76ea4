package platform

import (
	"regexp"
	"strings"

	"github.com/webitel/im-context-relay/internal/domain/model"
)

var xhsNotePath = regexp.MustCompile(`/(?:explore|discovery/item)/([a-f0-9]+)`)

type xiaohongshu struct{}

func NewXiaohongshu() Adapter { return xiaohongshu{} }

func (xiaohongshu) Name() string { return Xiaohongshu }

func (xiaohongshu) Match(rawURL string) bool {
	host := hostOf(rawURL)
	return strings.HasSuffix(host, "xiaohongshu.com") || strings.HasSuffix(host, "xhslink.com")
}

// ParseIdentity supports explore/discovery links and xhslink short links.
func (xiaohongshu) ParseIdentity(rawURL string) (string, bool) {
	host := hostOf(rawURL)
	path := pathOf(rawURL)
	switch {
	case strings.HasSuffix(host, "xiaohongshu.com"):
		if m := xhsNotePath.FindStringSubmatch(path); m != nil {
			return m[1], true
		}
	case strings.HasSuffix(host, "xhslink.com"):
		if id := strings.Trim(path, "/"); id != "" {
			return id, true
		}
	}
	return "", false
}

func (xiaohongshu) ExtractPayload(id string, raw map[string]any) model.Payload {
	p := extractCommon(Xiaohongshu, id, raw)
	if p.Kind == "" {
		p.Kind = "normal"
	}
	return p
}

func (xiaohongshu) IsActionActive(attrs map[string]string) bool {
	return hasClass(attrs, "like-active") || hasClass(attrs, "collect-active") ||
		strings.EqualFold(attrs["aria-pressed"], "true")
}
