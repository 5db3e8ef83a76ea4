package injection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/webitel/im-context-relay/internal/domain/model"
)

func TestCacheEventLifecycle(t *testing.T) {
	c := NewCache(2)
	assert.Nil(t, c.Event())

	ev := &model.Event{ID: "e1", Action: model.ActionLike}
	c.SetEvent(ev)
	ev.Action = model.ActionRead

	got := c.Event()
	require.NotNil(t, got)
	assert.Equal(t, model.ActionLike, got.Action, "cache keeps its own copy")

	assert.False(t, c.MarkInjected("other"))
	assert.True(t, c.MarkInjected("e1"))
	assert.True(t, c.Event().Injected)
	assert.True(t, c.History(0)[0].Injected)

	c.ClearEvent()
	assert.Nil(t, c.Event())
	assert.Len(t, c.History(0), 1, "history survives clearing the current event")
}

func TestCacheHistoryBoundedAndDeduplicated(t *testing.T) {
	c := NewCache(2)
	c.SetEvent(&model.Event{ID: "e1"})
	c.SetEvent(&model.Event{ID: "e1"})
	c.SetEvent(&model.Event{ID: "e2"})
	c.SetEvent(&model.Event{ID: "e3"})

	items := c.History(10)
	require.Len(t, items, 2)
	assert.Equal(t, "e3", items[0].ID)
	assert.Equal(t, "e2", items[1].ID)
	assert.Len(t, c.History(1), 1)
}

func TestCacheAmbientNote(t *testing.T) {
	c := NewCache(0)
	assert.Empty(t, c.AmbientNote())
	c.SetAmbientNote("hum")
	assert.Equal(t, "hum", c.AmbientNote())
}
