package entity

import (
	"discord-entity-cache/internal/payload"
)

// InsertMessage files a real-time message into the window. The returned
// message is authoritative: a duplicate id yields the buffered original.
func (c *Channel) InsertMessage(m *Message) (*Message, bool) {
	if c.history == nil {
		return m, false
	}
	return c.history.InsertNew(m)
}

// RemoveMessage deletes a message of this channel. Messages evicted from the
// window are still found through the registry.
func (c *Channel) RemoveMessage(id uint64) *Message {
	var m *Message
	if c.history != nil {
		m, _ = c.history.Remove(id)
	}
	if m == nil {
		m, _ = c.lookupMessage(id)
	}
	if m == nil {
		return nil
	}
	m.delete()
	return m
}

// RemoveMessages handles a bulk delete: one result per id found, newest first
func (c *Channel) RemoveMessages(ids []uint64) []*Message {
	var out []*Message
	if c.history != nil {
		out = c.history.RemoveBatch(ids, c.lookupMessage)
	} else {
		seen := make(map[uint64]struct{}, len(ids))
		for _, id := range ids {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			if m, ok := c.lookupMessage(id); ok {
				out = append(out, m)
			}
		}
	}

	for _, m := range out {
		m.delete()
	}
	return out
}

// lookupMessage finds a live message of this channel in the registry
func (c *Channel) lookupMessage(id uint64) (*Message, bool) {
	m := c.reg.Messages.Get(id)
	if m == nil || m.deleted || m.channelID != c.id {
		return nil, false
	}
	return m, true
}

// ProcessHistoryChunk merges a newest-first page of fetched messages.
//
// Pages are fetched backward, so anything already known sits at the front of
// the page: that prefix reuses the existing objects, the rest is constructed.
// Every message goes through InsertOlder, which keeps the original on duplicate
// ids. The returned slice mirrors the page.
func (c *Channel) ProcessHistoryChunk(raws []payload.Payload) []*Message {
	out := make([]*Message, 0, len(raws))

	i := 0
	for ; i < len(raws); i++ {
		m, ok := c.lookupMessage(raws[i].ID("id"))
		if !ok || m.Partial() {
			break
		}
		out = append(out, c.insertOlder(m))
	}

	for ; i < len(raws); i++ {
		p := raws[i]
		if !p.Has("channel_id") || (c.guildID != 0 && !p.Has("guild_id")) {
			p = c.fillLocation(p)
		}
		m, _, err := c.reg.MessageFromPayload(p)
		if err != nil {
			continue
		}
		out = append(out, c.insertOlder(m))
	}
	return out
}

func (c *Channel) insertOlder(m *Message) *Message {
	if c.history == nil {
		return m
	}
	m, _ = c.history.InsertOlder(m)
	return m
}

// fillLocation copies p with the channel and guild ids REST pages omit
func (c *Channel) fillLocation(p payload.Payload) payload.Payload {
	out := make(payload.Payload, len(p)+2)
	for k, v := range p {
		out[k] = v
	}
	if !p.Has("channel_id") {
		out["channel_id"] = c.id
	}
	if c.guildID != 0 && !p.Has("guild_id") {
		out["guild_id"] = c.guildID
	}
	return out
}
