package injection

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/webitel/im-context-relay/internal/domain/model"
)

func TestFormatCount(t *testing.T) {
	cases := map[int64]string{
		0:     "0",
		-3:    "0",
		999:   "999",
		1234:  "1.2k",
		12345: "1.2w",
	}
	for in, want := range cases {
		assert.Equal(t, want, FormatCount(in), "count %d", in)
	}
}

func TestRenderCardEmptyPayload(t *testing.T) {
	assert.Empty(t, RenderCard(nil))
	assert.Empty(t, RenderCard(&model.Event{ID: "e1", Action: model.ActionLike}))
}

func TestRenderNoteCard(t *testing.T) {
	ev := &model.Event{
		Action: model.ActionCollect,
		Payload: model.Payload{
			Platform:   "xiaohongshu",
			Title:      "Spring outfits",
			Summary:    "line one\nline #two " + strings.Repeat("x", 300),
			Author:     model.Author{Name: "mia"},
			Engagement: model.Engagement{Likes: 15000, Comments: 12},
			Tags:       []string{"fashion", "spring"},
			TopComments: []model.Comment{
				{Author: "a", Text: "love it"},
				{Text: "anon"},
				{Author: "c", Text: "3"},
				{Author: "d", Text: "not shown"},
			},
		},
	}

	card := RenderCard(ev)
	assert.True(t, strings.HasPrefix(card, "<details>\n<summary>📱 Xiaohongshu · saved</summary>"))
	assert.Contains(t, card, "> 「Spring outfits」")
	assert.Contains(t, card, "> by mia")
	assert.Contains(t, card, "line one line ＃two")
	assert.Contains(t, card, "...")
	assert.Contains(t, card, "❤️ 1.5w  💬 12  ｜  「fashion」 「spring」")
	assert.Contains(t, card, "> › someone: anon")
	assert.NotContains(t, card, "not shown")
	assert.True(t, strings.HasSuffix(card, "</details>"))
}

func TestRenderVideoCard(t *testing.T) {
	ev := &model.Event{
		Action:         model.ActionCoin,
		UserAnnotation: "great",
		Payload: model.Payload{
			Platform:   "bilibili",
			Title:      "Build log",
			Author:     model.Author{Name: "up"},
			Progress:   &model.Progress{Label: "03:12/10:00", Ratio: 0.32},
			Engagement: model.Engagement{Coins: 2000, Likes: 5},
			Tags:       []string{"diy", "tools", "wood", "extra"},
		},
	}

	card := RenderCard(ev)
	assert.Contains(t, card, "📺 Bilibili · tossed a coin to")
	assert.Contains(t, card, "> 🍡 **Build log**")
	assert.Contains(t, card, "Uploader: up  Progress: 03:12/10:00")
	assert.Contains(t, card, "🪙 2.0k  👍 5   #diy #tools #wood")
	assert.NotContains(t, card, "#extra")
	assert.Contains(t, card, "My comment: \"great\"")
}

func TestPlatformLabel(t *testing.T) {
	cases := map[string]string{
		"":            "Xiaohongshu",
		"xiaohongshu": "Xiaohongshu",
		"bilibili":    "Bilibili",
		"weibo":       "Weibo",
		"抖音":          "抖音",
		"éclair":      "Éclair",
	}
	for in, want := range cases {
		got := platformLabel(in)
		assert.Equal(t, want, got, "platform %q", in)
		assert.True(t, utf8.ValidString(got))
	}
}
