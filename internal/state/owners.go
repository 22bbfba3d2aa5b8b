package state

import (
	"discord-entity-cache/internal/entity"
)

// ownerKey identifies a detached entity; ids are only unique per kind
// (a guild and its @everyone role share one)
type ownerKey struct {
	kind string
	id   uint64
}

func (c *Cache) hold(kind string, id uint64, e any) {
	c.detached[ownerKey{kind, id}] = e
}

func (c *Cache) release(kind string, id uint64) {
	delete(c.detached, ownerKey{kind, id})
}

// holdChannel keeps a synchronized channel alive: private channels belong to
// the client, guild channels to their guild, anything else is detached
func (c *Cache) holdChannel(ch *entity.Channel) {
	id := ch.ID()
	switch {
	case ch.Deleted():
		delete(c.private, id)
		c.release(KindChannel, id)
	case ch.IsPrivate():
		c.private[id] = ch
		c.release(KindChannel, id)
	case ownedByGuild(ch):
		c.release(KindChannel, id)
	default:
		c.hold(KindChannel, id, ch)
	}
}

func ownedByGuild(ch *entity.Channel) bool {
	g := ch.Guild()
	return g != nil && g.Channel(ch.ID()) == ch
}

// settleChannels releases detached channels a guild has since linked
func (c *Cache) settleChannels() {
	for key, e := range c.detached {
		ch, ok := e.(*entity.Channel)
		if !ok {
			continue
		}
		if ch.Deleted() || ownedByGuild(ch) {
			delete(c.detached, key)
		}
	}
}

// holdUser keeps a user met outside every guild alive
func (c *Cache) holdUser(u *entity.User) {
	if u == c.self || len(u.GuildIDs()) > 0 {
		c.release(KindUser, u.ID())
		return
	}
	c.hold(KindUser, u.ID(), u)
}

// retain keeps m alive past its eviction from the channel window, dropping
// the oldest retained message once the limit is reached
func (c *Cache) retain(m *entity.Message) {
	if m == nil {
		return
	}
	c.retained.PushBack(m)
	for c.retained.Len() > c.retainLimit {
		c.retained.PopFront()
	}
}

// Release drops the cache's own hold on an entity no guild, channel or
// client list owns: a guild-less channel, a user outside every guild, a
// placeholder or a retained message. The registry forgets it once the
// application holds no reference either. Release reports whether the cache
// held the entity.
func (c *Cache) Release(kind string, id uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := ownerKey{kind, id}
	_, found := c.detached[key]
	delete(c.detached, key)

	if kind == KindMessage {
		for i := 0; i < c.retained.Len(); {
			if c.retained.At(i).ID() == id {
				c.retained.RemoveAt(i)
				found = true
				continue
			}
			i++
		}
	}
	return found
}
