package entity

import (
	"testing"

	"discord-entity-cache/internal/payload"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTextChannel(t *testing.T, reg *Registry) *Channel {
	t.Helper()

	c, _, err := reg.ChannelFromPayload(payload.Payload{"id": "10", "type": 0, "name": "general"}, nil)
	require.NoError(t, err)
	return c
}

func postMessage(t *testing.T, reg *Registry, msgID, content string) *Message {
	t.Helper()

	m, _, err := reg.MessageFromPayload(payload.Payload{
		"id": msgID, "channel_id": "10", "content": content,
		"author": map[string]any{"id": "7", "username": "bob"},
	})
	require.NoError(t, err)
	return m
}

func historyIDs(c *Channel) []uint64 {
	out := make([]uint64, 0, c.History().Len())
	for _, m := range c.History().Items() {
		out = append(out, m.ID())
	}
	return out
}

func TestMessageCreate(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	c := newTextChannel(t, reg)
	m := postMessage(t, reg, "1", "hello")

	assert.False(t, m.Partial())
	assert.Equal(t, "default", m.Kind())
	assert.False(t, m.Rich())
	assert.Same(t, c, m.Channel())
	assert.Equal(t, "bob", m.Author().Name)
	assert.Same(t, m.Author(), reg.Users.Get(7))

	unknown, _, err := reg.MessageFromPayload(payload.Payload{"id": "2", "channel_id": "10", "type": 250})
	require.NoError(t, err)
	assert.Equal(t, "unknown", unknown.Kind())
}

func TestMessageEditKeepsAbsentFields(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	m := postMessage(t, reg, "1", "hello")

	changes, err := m.ApplyAndDiff(payload.Payload{"id": "1", "channel_id": "10", "pinned": true})
	require.NoError(t, err)
	assert.Equal(t, Changes{"pinned": false}, changes)
	assert.Equal(t, "hello", m.Content)

	changes, err = m.ApplyAndDiff(payload.Payload{
		"id": "1", "content": "edited", "edited_timestamp": "2024-05-01T10:00:00Z",
	})
	require.NoError(t, err)
	assert.Equal(t, Changes{"content": "hello", "edited_at": nil}, changes)
	require.True(t, m.Rich())
	assert.Equal(t, 2024, m.EditedAt().Year())
	assert.True(t, m.Pinned)
}

func TestMessageReferenceIsBuiltThroughRegistry(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	reply, created, err := reg.MessageFromPayload(payload.Payload{
		"id": "20", "channel_id": "10", "type": 19, "content": "yes",
		"message_reference":  map[string]any{"message_id": "19"},
		"referenced_message": map[string]any{"id": "19", "channel_id": "10", "content": "orig"},
	})
	require.NoError(t, err)
	require.True(t, created)

	assert.Equal(t, "reply", reply.Kind())
	require.NotNil(t, reply.Referenced())
	assert.Equal(t, "orig", reply.Referenced().Content)
	assert.Same(t, reply.Referenced(), reg.Messages.Get(19))

	// A later payload for the referenced id finds the existing object
	again, created, err := reg.MessageFromPayload(payload.Payload{"id": "19", "channel_id": "10", "content": "other"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Same(t, reply.Referenced(), again)
	assert.Equal(t, "orig", again.Content)
}

func TestRemoveMessagesMixedSources(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(WithHistoryCapacity(2))
	c := newTextChannel(t, reg)

	evicted := postMessage(t, reg, "1", "a")
	c.InsertMessage(evicted)
	c.InsertMessage(postMessage(t, reg, "2", "b"))
	local := postMessage(t, reg, "3", "c")
	c.InsertMessage(local)
	require.Equal(t, []uint64{3, 2}, historyIDs(c))

	removed := c.RemoveMessages([]uint64{1, 3, 99})
	require.Len(t, removed, 2)
	assert.Same(t, local, removed[0])
	assert.Same(t, evicted, removed[1])

	assert.Equal(t, []uint64{2}, historyIDs(c))
	assert.True(t, local.Deleted())
	assert.True(t, evicted.Deleted())
	assert.Nil(t, reg.Messages.Get(1))
	assert.Nil(t, reg.Messages.Get(3))
}

func TestRemoveMessageFallsBackToRegistry(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(WithHistoryCapacity(1))
	c := newTextChannel(t, reg)

	old := postMessage(t, reg, "1", "a")
	c.InsertMessage(old)
	c.InsertMessage(postMessage(t, reg, "2", "b"))

	assert.Same(t, old, c.RemoveMessage(1))
	assert.True(t, old.Deleted())
	assert.Nil(t, c.RemoveMessage(1))
	assert.Nil(t, c.RemoveMessage(42))

	// Messages of another channel are never removed through this one
	_, _, err := reg.ChannelFromPayload(payload.Payload{"id": "11", "type": 0}, nil)
	require.NoError(t, err)
	other, _, err := reg.MessageFromPayload(payload.Payload{"id": "5", "channel_id": "11"})
	require.NoError(t, err)
	assert.Nil(t, c.RemoveMessage(5))
	assert.False(t, other.Deleted())
}

func TestInsertDuplicateReturnsOriginal(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	c := newTextChannel(t, reg)

	original := postMessage(t, reg, "1", "a")
	got, inserted := c.InsertMessage(original)
	require.True(t, inserted)
	require.Same(t, original, got)

	impostor := &Message{id: 1, reg: reg, variant: messageVariantOf(0), channelID: 10, Content: "b"}
	got, inserted = c.InsertMessage(impostor)
	assert.False(t, inserted)
	assert.Same(t, original, got)
}

func TestProcessHistoryChunk(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	c := newTextChannel(t, reg)
	known := postMessage(t, reg, "5", "known")
	c.InsertMessage(known)

	page := []payload.Payload{
		{"id": "5", "content": "refetched"},
		{"id": "4", "content": "four"},
		{"id": "3", "content": "three"},
	}
	got := c.ProcessHistoryChunk(page)

	require.Len(t, got, 3)
	assert.Same(t, known, got[0])
	assert.Equal(t, "known", known.Content)
	assert.Equal(t, uint64(10), got[1].ChannelID())
	assert.Equal(t, "three", got[2].Content)
	assert.Equal(t, []uint64{5, 4, 3}, historyIDs(c))

	// A repeated page changes nothing
	again := c.ProcessHistoryChunk(page)
	for i := range got {
		assert.Same(t, got[i], again[i])
	}
	assert.Equal(t, []uint64{5, 4, 3}, historyIDs(c))
}

func TestDeletedChannelDropsHistory(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	c := newTextChannel(t, reg)
	m := postMessage(t, reg, "1", "a")
	c.InsertMessage(m)

	require.NoError(t, c.Delete())
	assert.Nil(t, c.History())
	assert.True(t, m.Deleted())
	assert.Nil(t, m.Channel())

	_, err := m.ApplyAndDiff(payload.Payload{"id": "1", "content": "b"})
	assert.ErrorIs(t, err, ErrDeleted)
}
