package state

import (
	"fmt"

	"discord-entity-cache/internal/entity"
	"discord-entity-cache/internal/payload"
)

// Entity kinds accepted by Refresh
const (
	KindGuild   = "guild"
	KindChannel = "channel"
	KindRole    = "role"
	KindUser    = "user"
	KindMessage = "message"
	KindCommand = "application_command"
)

// Refresh applies a full object, typically a REST response, without recording
// changes. Entities not cached yet are created. Role payloads must carry the
// guild_id of their guild.
func (c *Cache) Refresh(kind string, p payload.Payload) (Result, error) {
	id := p.ID("id")
	if id == 0 {
		return Result{Kind: kind}, entity.ErrMissingID
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	res, err := c.refresh(kind, id, p)
	res.Kind = kind
	if err != nil {
		return res, fmt.Errorf("refresh %s %d: %w", kind, id, err)
	}
	if res.Created {
		c.metrics.EntityCreated(kind)
	}
	return res, nil
}

func (c *Cache) refresh(kind string, id uint64, p payload.Payload) (Result, error) {
	switch kind {
	case KindGuild:
		g := c.reg.Guilds.Get(id)
		if g == nil || g.Partial() {
			g, created, err := c.reg.GuildFromPayload(p, c.clientID)
			if g != nil {
				c.guilds[id] = g
				c.release(KindGuild, id)
			}
			return Result{Entity: g, Created: created}, err
		}
		return Result{Entity: g}, g.ApplySilently(p)

	case KindChannel:
		ch := c.reg.Channels.Get(id)
		if ch == nil || ch.Deleted() || ch.Partial() {
			var g *entity.Guild
			if gid := p.ID("guild_id"); gid != 0 {
				g = c.reg.Guilds.Get(gid)
			}
			ch, created, err := c.reg.ChannelFromPayload(p, g)
			if ch != nil {
				c.holdChannel(ch)
			}
			return Result{Entity: ch, Created: created}, err
		}
		err := ch.ApplySilently(p)
		c.holdChannel(ch)
		return Result{Entity: ch}, err

	case KindRole:
		g, err := c.joinedGuild(p)
		if err != nil {
			return Result{}, err
		}
		if role := g.Role(id); role != nil {
			return Result{Entity: role}, role.ApplySilently(p)
		}
		role, created, err := c.reg.RoleFromPayload(p, g)
		return Result{Entity: role, Created: created}, err

	case KindUser:
		u, created, err := c.reg.UserFromPayload(p)
		if err != nil {
			return Result{}, err
		}
		if !created {
			u.ApplySilently(p)
		}
		c.holdUser(u)
		return Result{Entity: u, Created: created}, nil

	case KindMessage:
		m := c.reg.Messages.Get(id)
		if m != nil && !m.Deleted() && !m.Partial() {
			return Result{Entity: m}, m.ApplySilently(p)
		}
		m, created, err := c.reg.MessageFromPayload(p)
		if err != nil {
			return Result{}, err
		}
		if ch := c.reg.Channels.Get(m.ChannelID()); ch != nil {
			m, _ = ch.InsertMessage(m)
		}
		c.retain(m)
		return Result{Entity: m, Created: created}, nil

	case KindCommand:
		cmd := c.reg.Commands.Get(id)
		if cmd != nil && !cmd.Deleted() && !cmd.Partial() {
			return Result{Entity: cmd}, cmd.ApplySilently(p)
		}
		cmd, created, err := c.reg.CommandFromPayload(p)
		if err != nil {
			return Result{}, err
		}
		c.commands[id] = cmd
		return Result{Entity: cmd, Created: created}, nil
	}
	return Result{}, fmt.Errorf("%w: %s", ErrUnhandledEvent, kind)
}

// PrecreateGuild registers a placeholder guild built from whatever fields are
// known; a later full payload completes it in place. Placeholders stay held
// until completed, deleted or released.
func (c *Cache) PrecreateGuild(id uint64, fields payload.Payload) *entity.Guild {
	c.mu.Lock()
	defer c.mu.Unlock()

	g := c.reg.PrecreateGuild(id, fields)
	if _, joined := c.guilds[id]; !joined {
		c.hold(KindGuild, id, g)
	}
	return g
}

func (c *Cache) PrecreateChannel(id uint64, fields payload.Payload) *entity.Channel {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := c.reg.PrecreateChannel(id, fields)
	c.holdChannel(ch)
	return ch
}

func (c *Cache) PrecreateRole(id uint64, fields payload.Payload) *entity.Role {
	c.mu.Lock()
	defer c.mu.Unlock()

	role := c.reg.PrecreateRole(id, fields)
	if role.Partial() {
		c.hold(KindRole, id, role)
	}
	return role
}

func (c *Cache) PrecreateUser(id uint64, fields payload.Payload) *entity.User {
	c.mu.Lock()
	defer c.mu.Unlock()

	u := c.reg.PrecreateUser(id, fields)
	c.holdUser(u)
	return u
}

func (c *Cache) PrecreateMessage(id uint64, fields payload.Payload) *entity.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.reg.PrecreateMessage(id, fields)
	c.retain(m)
	return m
}
