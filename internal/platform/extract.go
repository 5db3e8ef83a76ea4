package platform

import (
	"math"
	"strconv"
	"strings"

	"github.com/webitel/im-context-relay/internal/domain/model"
)

const (
	summaryLimit  = 200
	commentsLimit = 3
)

// extractCommon reads the note shape shared by the browser scrapers.
func extractCommon(platform, id string, raw map[string]any) model.Payload {
	author := mapOf(raw, "author")
	interaction := mapOf(raw, "interaction")

	if v := str(raw, "note_id"); v != "" {
		id = v
	}

	p := model.Payload{
		ID:       id,
		Platform: platform,
		Kind:     str(raw, "note_type"),
		Title:    Sanitize(str(raw, "title")),
		Summary:  truncateRunes(Sanitize(str(raw, "content")), summaryLimit),
		Author: model.Author{
			ID:   str(author, "user_id"),
			Name: Sanitize(str(author, "nickname")),
		},
		Engagement: model.Engagement{
			Likes:    num(interaction, "like_count"),
			Collects: num(interaction, "collect_count"),
			Comments: num(interaction, "comment_count"),
			Shares:   num(interaction, "share_count"),
			Coins:    num(interaction, "coin_count"),
		},
		Tags:        strs(raw, "tags"),
		TopComments: []model.Comment{},
	}

	if list, ok := raw["top_comments"].([]any); ok {
		for _, item := range list {
			c, ok := item.(map[string]any)
			if !ok {
				continue
			}
			p.TopComments = append(p.TopComments, model.Comment{
				Author: str(c, "user_nickname"),
				Text:   Sanitize(str(c, "content")),
				Likes:  num(c, "like_count"),
			})
			if len(p.TopComments) == commentsLimit {
				break
			}
		}
	}
	return p
}

func mapOf(raw map[string]any, key string) map[string]any {
	if m, ok := raw[key].(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

func str(raw map[string]any, key string) string {
	switch v := raw[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

func num(raw map[string]any, key string) int64 {
	switch v := raw[key].(type) {
	case float64:
		if math.IsNaN(v) || v < 0 {
			return 0
		}
		return int64(v)
	case int:
		return int64(v)
	case int64:
		return v
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

func strs(raw map[string]any, key string) []string {
	out := []string{}
	list, ok := raw[key].([]any)
	if !ok {
		return out
	}
	for _, item := range list {
		if s, ok := item.(string); ok {
			if s = strings.TrimSpace(strings.TrimPrefix(s, "#")); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

func truncateRunes(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}

func hasClass(attrs map[string]string, class string) bool {
	for _, c := range strings.Fields(attrs["class"]) {
		if c == class {
			return true
		}
	}
	return false
}
