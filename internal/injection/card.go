package injection

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/webitel/im-context-relay/internal/domain/model"
)

const (
	cardRule       = "> ─────────────────"
	cardSummaryMax = 200
	cardCommentMax = 50
)

var actionVerbs = map[model.Action]string{
	model.ActionLike:    "liked",
	model.ActionComment: "commented on",
	model.ActionRead:    "read through",
	model.ActionCollect: "saved",
	model.ActionShare:   "shared",
	model.ActionCoin:    "tossed a coin to",
}

func actionVerb(a model.Action) string {
	if v, ok := actionVerbs[a]; ok {
		return v
	}
	return "browsed"
}

// RenderCard renders the payload as a collapsible phone-card block, used when the
// producer sent no pre-rendered narrative. Returns "" for an unpopulated payload.
func RenderCard(ev *model.Event) string {
	if ev == nil || !ev.Payload.Populated() {
		return ""
	}
	if ev.Payload.Platform == "bilibili" {
		return renderVideoCard(ev)
	}
	return renderNoteCard(ev)
}

func renderNoteCard(ev *model.Event) string {
	p := ev.Payload
	lines := []string{
		"<details>",
		fmt.Sprintf("<summary>📱 %s · %s</summary>", platformLabel(p.Platform), actionVerb(ev.Action)),
		"",
		cardRule,
	}
	if t := strings.TrimSpace(p.Title); t != "" {
		lines = append(lines, fmt.Sprintf("> 「%s」", t))
	}
	if a := strings.TrimSpace(p.Author.Name); a != "" {
		lines = append(lines, "> by "+a)
	}
	lines = append(lines, ">")

	if s := flatten(p.Summary); s != "" {
		s = strings.ReplaceAll(s, "#", "＃")
		lines = append(lines, "> "+clip(s, cardSummaryMax, "..."), ">")
	}

	var stats []string
	if p.Engagement.Likes > 0 {
		stats = append(stats, "❤️ "+FormatCount(p.Engagement.Likes))
	}
	if p.Engagement.Collects > 0 {
		stats = append(stats, "⭐ "+FormatCount(p.Engagement.Collects))
	}
	if p.Engagement.Comments > 0 {
		stats = append(stats, "💬 "+FormatCount(p.Engagement.Comments))
	}
	statsLine := strings.Join(stats, "  ")

	if len(p.Tags) > 0 {
		var tags []string
		for _, t := range firstN(p.Tags, 5) {
			tags = append(tags, "「"+t+"」")
		}
		tagLine := strings.Join(tags, " ")
		if statsLine != "" {
			lines = append(lines, "> "+statsLine+"  ｜  "+tagLine)
		} else {
			lines = append(lines, "> "+tagLine)
		}
	} else if statsLine != "" {
		lines = append(lines, "> "+statsLine)
	}

	lines = appendCommentsAndAnnotation(lines, ev)
	lines = append(lines, "</details>")
	return strings.Join(lines, "\n")
}

func renderVideoCard(ev *model.Event) string {
	p := ev.Payload
	lines := []string{
		"<details>",
		fmt.Sprintf("<summary>📺 Bilibili · %s</summary>", actionVerb(ev.Action)),
		"",
		cardRule,
	}
	if t := strings.TrimSpace(p.Title); t != "" {
		lines = append(lines, fmt.Sprintf("> 🍡 **%s**", t))
	}

	var infos []string
	if a := strings.TrimSpace(p.Author.Name); a != "" {
		infos = append(infos, "Uploader: "+a)
	}
	if p.Progress != nil && p.Progress.Label != "" {
		infos = append(infos, "Progress: "+p.Progress.Label)
	}
	if len(infos) > 0 {
		lines = append(lines, "> "+strings.Join(infos, "  "))
	}
	lines = append(lines, ">")

	if s := flatten(p.Summary); s != "" {
		lines = append(lines, "> "+clip(s, 100, "")+"...", ">")
	}

	var stats []string
	if p.Engagement.Coins > 0 {
		stats = append(stats, "🪙 "+FormatCount(p.Engagement.Coins))
	}
	if p.Engagement.Likes > 0 {
		stats = append(stats, "👍 "+FormatCount(p.Engagement.Likes))
	}
	if p.Engagement.Collects > 0 {
		stats = append(stats, "⭐ "+FormatCount(p.Engagement.Collects))
	}
	var tags []string
	for _, t := range firstN(p.Tags, 3) {
		tags = append(tags, "#"+t)
	}
	if len(stats) > 0 || len(tags) > 0 {
		lines = append(lines, strings.TrimRight("> "+strings.Join(stats, "  ")+"   "+strings.Join(tags, " "), " "))
	}

	lines = appendCommentsAndAnnotation(lines, ev)
	lines = append(lines, "</details>")
	return strings.Join(lines, "\n")
}

func appendCommentsAndAnnotation(lines []string, ev *model.Event) []string {
	if len(ev.Payload.TopComments) > 0 {
		lines = append(lines, cardRule, "> 💬 Top comments:")
		for _, c := range firstN(ev.Payload.TopComments, 3) {
			name := c.Author
			if name == "" {
				name = "someone"
			}
			lines = append(lines, fmt.Sprintf("> › %s: %s", name, clip(flatten(c.Text), cardCommentMax, "")))
		}
	}
	if a := strings.TrimSpace(ev.UserAnnotation); a != "" {
		lines = append(lines, cardRule, fmt.Sprintf("> 🗣️ My comment: %q", a))
	}
	return lines
}

// FormatCount renders counters the way the platforms do: 12345 -> 1.2w, 1234 -> 1.2k.
func FormatCount(n int64) string {
	switch {
	case n <= 0:
		return "0"
	case n >= 10000:
		return fmt.Sprintf("%.1fw", float64(n)/10000)
	case n >= 1000:
		return fmt.Sprintf("%.1fk", float64(n)/1000)
	default:
		return fmt.Sprintf("%d", n)
	}
}

func platformLabel(platform string) string {
	switch platform {
	case "xiaohongshu", "":
		return "Xiaohongshu"
	case "bilibili":
		return "Bilibili"
	default:
		r, size := utf8.DecodeRuneInString(platform)
		return string(unicode.ToUpper(r)) + platform[size:]
	}
}

func flatten(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "\n", " "))
}

// clip cuts s to limit runes, appending tail when something was cut.
func clip(s string, limit int, tail string) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + tail
}

func firstN[T any](items []T, n int) []T {
	if len(items) > n {
		return items[:n]
	}
	return items
}
