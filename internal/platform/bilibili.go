package platform

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/webitel/im-context-relay/internal/domain/model"
)

var biliVideoPath = regexp.MustCompile(`/video/(BV[0-9A-Za-z]+|av\d+)`)

type bilibili struct{}

func NewBilibili() Adapter { return bilibili{} }

func (bilibili) Name() string { return Bilibili }

func (bilibili) Match(rawURL string) bool {
	host := hostOf(rawURL)
	return strings.HasSuffix(host, "bilibili.com") || host == "b23.tv"
}

func (bilibili) ParseIdentity(rawURL string) (string, bool) {
	if hostOf(rawURL) == "b23.tv" {
		if id := strings.Trim(pathOf(rawURL), "/"); id != "" {
			return id, true
		}
		return "", false
	}
	if m := biliVideoPath.FindStringSubmatch(pathOf(rawURL)); m != nil {
		return m[1], true
	}
	return "", false
}

func (bilibili) ExtractPayload(id string, raw map[string]any) model.Payload {
	p := extractCommon(Bilibili, id, raw)
	if p.Kind == "" {
		p.Kind = "video"
	}
	if label := str(raw, "play_progress"); label != "" {
		p.Progress = &model.Progress{Label: label, Ratio: ParseProgress(label)}
	}
	return p
}

// IsActionActive matches the toolbar buttons, which carry an "on" class once pressed.
func (bilibili) IsActionActive(attrs map[string]string) bool {
	return hasClass(attrs, "on") || strings.EqualFold(attrs["aria-pressed"], "true")
}

// ParseProgress turns "03:12/10:00" (or "1:02:03/2:00:00") into a ratio in [0,1].
// Unparseable labels yield 0.
func ParseProgress(label string) float64 {
	cur, total, ok := strings.Cut(label, "/")
	if !ok {
		return 0
	}
	c, ok1 := clockSeconds(cur)
	t, ok2 := clockSeconds(total)
	if !ok1 || !ok2 || t <= 0 {
		return 0
	}
	r := float64(c) / float64(t)
	if r > 1 {
		r = 1
	}
	return r
}

func clockSeconds(s string) (int, bool) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, false
	}
	total := 0
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0, false
		}
		total = total*60 + n
	}
	return total, true
}
