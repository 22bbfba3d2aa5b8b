package state

import (
	"fmt"

	"discord-entity-cache/internal/entity"
	"discord-entity-cache/internal/payload"

	"github.com/bwmarrin/discordgo"
)

// Result describes what one event did to the cache
type Result struct {
	Kind string
	// Entity is the created or updated entity, nil when the event touched
	// nothing cached
	Entity  any
	Created bool
	// Changes maps field names to old values for incremental updates
	Changes entity.Changes
	// Removed lists messages dropped by message deletions
	Removed []*entity.Message
	// Deleted is set when Entity was removed and is now an inert shell
	Deleted bool
}

type handler func(c *Cache, p payload.Payload) (Result, error)

var handlers = map[string]handler{
	"READY": (*Cache).ready,

	"GUILD_CREATE": (*Cache).guildCreate,
	"GUILD_UPDATE": (*Cache).guildUpdate,
	"GUILD_DELETE": (*Cache).guildDelete,

	"GUILD_ROLE_CREATE": (*Cache).roleUpsert,
	"GUILD_ROLE_UPDATE": (*Cache).roleUpsert,
	"GUILD_ROLE_DELETE": (*Cache).roleDelete,

	"CHANNEL_CREATE": (*Cache).channelUpsert,
	"CHANNEL_UPDATE": (*Cache).channelUpsert,
	"CHANNEL_DELETE": (*Cache).channelDelete,
	"THREAD_CREATE":  (*Cache).channelUpsert,
	"THREAD_UPDATE":  (*Cache).channelUpsert,
	"THREAD_DELETE":  (*Cache).channelDelete,

	"MESSAGE_CREATE":      (*Cache).messageCreate,
	"MESSAGE_UPDATE":      (*Cache).messageUpdate,
	"MESSAGE_DELETE":      (*Cache).messageDelete,
	"MESSAGE_DELETE_BULK": (*Cache).messageDeleteBulk,

	"GUILD_MEMBER_ADD":    (*Cache).memberAdd,
	"GUILD_MEMBER_UPDATE": (*Cache).memberUpdate,
	"GUILD_MEMBER_REMOVE": (*Cache).memberRemove,
	"GUILD_MEMBERS_CHUNK": (*Cache).membersChunk,
	"PRESENCE_UPDATE":     (*Cache).presenceUpdate,
	"USER_UPDATE":         (*Cache).userUpdate,

	"APPLICATION_COMMAND_CREATE": (*Cache).commandUpsert,
	"APPLICATION_COMMAND_UPDATE": (*Cache).commandUpsert,
	"APPLICATION_COMMAND_DELETE": (*Cache).commandDelete,
}

// Handles reports whether Synchronize understands kind
func Handles(kind string) bool {
	_, ok := handlers[kind]
	return ok
}

// Synchronize applies one gateway event. Unknown kinds return ErrUnhandledEvent;
// errors from ordered lists signal a desync between the cache and upstream.
func (c *Cache) Synchronize(kind string, p payload.Payload) (Result, error) {
	h, ok := handlers[kind]
	if !ok {
		return Result{Kind: kind}, fmt.Errorf("%w: %s", ErrUnhandledEvent, kind)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	res, err := h(c, p)
	res.Kind = kind
	c.metrics.Event(kind)
	if err != nil {
		return res, fmt.Errorf("synchronize %s: %w", kind, err)
	}
	if res.Entity != nil {
		if res.Created {
			c.metrics.EntityCreated(entityKind(res.Entity))
		}
		c.metrics.FieldsChanged(entityKind(res.Entity), len(res.Changes))
	}
	return res, nil
}

func entityKind(e any) string {
	switch e.(type) {
	case *entity.Guild:
		return "guild"
	case *entity.Channel:
		return "channel"
	case *entity.Role:
		return "role"
	case *entity.User:
		return "user"
	case *entity.Message:
		return "message"
	case *entity.ApplicationCommand:
		return "application_command"
	default:
		return "unknown"
	}
}

func (c *Cache) ready(p payload.Payload) (Result, error) {
	u, created, err := c.reg.UserFromPayload(p.Map("user"))
	if err != nil {
		return Result{}, err
	}
	u.ApplySilently(p.Map("user"))
	c.self = u
	c.clientID = u.ID()

	for _, cp := range p.Maps("private_channels") {
		ch, _, err := c.reg.ChannelFromPayload(cp, nil)
		if err != nil {
			return Result{}, err
		}
		c.holdChannel(ch)
	}
	// Guilds arrive unavailable and are completed by GUILD_CREATE
	for _, gp := range p.Maps("guilds") {
		if id := gp.ID("id"); id != 0 {
			c.guilds[id] = c.reg.PrecreateGuild(id, nil)
		}
	}
	return Result{Entity: u, Created: created}, nil
}

func (c *Cache) guildCreate(p payload.Payload) (Result, error) {
	id := p.ID("id")
	if id == 0 {
		return Result{}, entity.ErrMissingID
	}
	if p.Bool("unavailable", false) {
		// Outage notice; the full object follows once the guild is back
		g := c.reg.PrecreateGuild(id, nil)
		c.guilds[id] = g
		c.release(KindGuild, id)
		return Result{Entity: g, Changes: g.MarkUnavailable()}, nil
	}

	g, created, err := c.reg.GuildFromPayload(p, c.clientID)
	if err != nil {
		return Result{Entity: g, Created: created}, err
	}
	c.guilds[id] = g
	c.release(KindGuild, id)
	if !created {
		// Rejoin after an outage or a new session
		err = g.Resync(p)
	}
	c.settleChannels()
	return Result{Entity: g, Created: created}, err
}

func (c *Cache) guildUpdate(p payload.Payload) (Result, error) {
	id := p.ID("id")
	if id == 0 {
		return Result{}, entity.ErrMissingID
	}
	g := c.reg.Guilds.Get(id)
	if g == nil {
		g = c.reg.PrecreateGuild(id, p)
		c.hold(KindGuild, id, g)
		return Result{Entity: g, Created: true}, nil
	}
	changes, err := g.ApplyAndDiff(p)
	return Result{Entity: g, Changes: changes}, err
}

func (c *Cache) guildDelete(p payload.Payload) (Result, error) {
	g := c.reg.Guilds.Get(p.ID("id"))
	if g == nil {
		return Result{}, nil
	}
	if p.Bool("unavailable", false) {
		return Result{Entity: g, Changes: g.MarkUnavailable()}, nil
	}
	if g.RemoveClient(c.clientID) > 0 {
		// Another client still sees the guild
		return Result{Entity: g}, nil
	}

	delete(c.guilds, g.ID())
	c.release(KindGuild, g.ID())
	return Result{Entity: g, Deleted: true}, g.Delete()
}

// joinedGuild resolves the guild an event is scoped to
func (c *Cache) joinedGuild(p payload.Payload) (*entity.Guild, error) {
	id := p.ID("guild_id")
	g := c.reg.Guilds.Get(id)
	if g == nil || g.Deleted() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownGuild, id)
	}
	return g, nil
}

func (c *Cache) roleUpsert(p payload.Payload) (Result, error) {
	g, err := c.joinedGuild(p)
	if err != nil {
		return Result{}, err
	}

	rp := p.Map("role")
	if role := g.Role(rp.ID("id")); role != nil {
		changes, err := role.ApplyAndDiff(rp)
		return Result{Entity: role, Changes: changes}, err
	}
	role, created, err := c.reg.RoleFromPayload(rp, g)
	if role == nil {
		return Result{}, err
	}
	return Result{Entity: role, Created: created}, err
}

func (c *Cache) roleDelete(p payload.Payload) (Result, error) {
	g, err := c.joinedGuild(p)
	if err != nil {
		return Result{}, err
	}
	role := g.Role(p.ID("role_id"))
	if role == nil {
		return Result{}, nil
	}
	return Result{Entity: role, Deleted: true}, role.Delete()
}

func (c *Cache) channelUpsert(p payload.Payload) (Result, error) {
	id := p.ID("id")
	if id == 0 {
		return Result{}, entity.ErrMissingID
	}

	var g *entity.Guild
	if gid := p.ID("guild_id"); gid != 0 {
		g = c.reg.Guilds.Get(gid)
	}

	ch := c.reg.Channels.Get(id)
	if ch != nil && !ch.Deleted() && !(ch.Partial() && (g != nil || isPrivate(p))) {
		changes, err := ch.ApplyAndDiff(p)
		c.holdChannel(ch)
		return Result{Entity: ch, Changes: changes}, err
	}

	ch, created, err := c.reg.ChannelFromPayload(p, g)
	if ch == nil {
		return Result{}, err
	}
	c.holdChannel(ch)
	return Result{Entity: ch, Created: created}, err
}

func isPrivate(p payload.Payload) bool {
	switch discordgo.ChannelType(p.Int("type", -1)) {
	case discordgo.ChannelTypeDM, discordgo.ChannelTypeGroupDM:
		return true
	}
	return false
}

func (c *Cache) channelDelete(p payload.Payload) (Result, error) {
	id := p.ID("id")
	ch := c.reg.Channels.Get(id)
	delete(c.private, id)
	c.release(KindChannel, id)
	if ch == nil || ch.Deleted() {
		return Result{}, nil
	}
	return Result{Entity: ch, Deleted: true}, ch.Delete()
}

func (c *Cache) messageCreate(p payload.Payload) (Result, error) {
	m, created, err := c.reg.MessageFromPayload(p)
	if err != nil {
		return Result{}, err
	}
	if ch := c.reg.Channels.Get(m.ChannelID()); ch != nil {
		m, _ = ch.InsertMessage(m)
	}
	c.retain(m)
	return Result{Entity: m, Created: created}, nil
}

func (c *Cache) messageUpdate(p payload.Payload) (Result, error) {
	m := c.reg.Messages.Get(p.ID("id"))
	if m == nil || m.Deleted() {
		// Edits of messages outside every window are not tracked
		return Result{}, nil
	}
	changes, err := m.ApplyAndDiff(p)
	return Result{Entity: m, Changes: changes}, err
}

func (c *Cache) messageDelete(p payload.Payload) (Result, error) {
	id := p.ID("id")
	var m *entity.Message
	if ch := c.reg.Channels.Get(p.ID("channel_id")); ch != nil {
		m = ch.RemoveMessage(id)
	} else if m = c.reg.Messages.Get(id); m != nil {
		m.Delete()
	}
	if m == nil {
		return Result{}, nil
	}
	return Result{Entity: m, Removed: []*entity.Message{m}, Deleted: true}, nil
}

func (c *Cache) messageDeleteBulk(p payload.Payload) (Result, error) {
	ids := p.IDs("ids")
	if ch := c.reg.Channels.Get(p.ID("channel_id")); ch != nil {
		return Result{Entity: ch, Removed: ch.RemoveMessages(ids)}, nil
	}

	var removed []*entity.Message
	for _, id := range ids {
		if m := c.reg.Messages.Get(id); m != nil && !m.Deleted() {
			m.Delete()
			removed = append(removed, m)
		}
	}
	return Result{Removed: removed}, nil
}

func (c *Cache) memberAdd(p payload.Payload) (Result, error) {
	g, err := c.joinedGuild(p)
	if err != nil {
		return Result{}, err
	}
	u, created, err := g.AddMember(p)
	if err != nil {
		return Result{}, err
	}
	if created {
		g.MemberCount++
	}
	return Result{Entity: u, Created: created}, nil
}

func (c *Cache) memberUpdate(p payload.Payload) (Result, error) {
	g, err := c.joinedGuild(p)
	if err != nil {
		return Result{}, err
	}
	u, changes, created, err := g.UpdateMember(p)
	if u == nil {
		return Result{}, err
	}
	return Result{Entity: u, Changes: changes, Created: created}, err
}

func (c *Cache) memberRemove(p payload.Payload) (Result, error) {
	g, err := c.joinedGuild(p)
	if err != nil {
		return Result{}, err
	}
	u, ok := g.RemoveMember(p.Map("user").ID("id"))
	if !ok {
		return Result{}, nil
	}
	if g.MemberCount > 0 {
		g.MemberCount--
	}
	return Result{Entity: u}, nil
}

func (c *Cache) membersChunk(p payload.Payload) (Result, error) {
	g, err := c.joinedGuild(p)
	if err != nil {
		return Result{}, err
	}
	if err := g.AddMembers(p.Maps("members")); err != nil {
		return Result{Entity: g}, err
	}
	for _, pp := range p.Maps("presences") {
		if u := g.Member(pp.Map("user").ID("id")); u != nil {
			u.ApplyPresence(pp)
		}
	}
	return Result{Entity: g}, nil
}

func (c *Cache) presenceUpdate(p payload.Payload) (Result, error) {
	u := c.reg.Users.Get(p.Map("user").ID("id"))
	if u == nil {
		return Result{}, nil
	}
	return Result{Entity: u, Changes: u.ApplyPresence(p)}, nil
}

func (c *Cache) userUpdate(p payload.Payload) (Result, error) {
	u, created, err := c.reg.UserFromPayload(p)
	if err != nil {
		return Result{}, err
	}
	c.holdUser(u)
	if created {
		return Result{Entity: u, Created: true}, nil
	}
	return Result{Entity: u, Changes: u.ApplyAndDiff(p)}, nil
}

func (c *Cache) commandUpsert(p payload.Payload) (Result, error) {
	cmd := c.reg.Commands.Get(p.ID("id"))
	if cmd != nil && !cmd.Partial() && !cmd.Deleted() {
		changes, err := cmd.ApplyAndDiff(p)
		return Result{Entity: cmd, Changes: changes}, err
	}

	cmd, created, err := c.reg.CommandFromPayload(p)
	if err != nil {
		return Result{}, err
	}
	c.commands[cmd.ID()] = cmd
	return Result{Entity: cmd, Created: created}, nil
}

func (c *Cache) commandDelete(p payload.Payload) (Result, error) {
	id := p.ID("id")
	cmd := c.reg.Commands.Get(id)
	delete(c.commands, id)
	if cmd == nil {
		return Result{}, nil
	}
	cmd.Delete()
	return Result{Entity: cmd, Deleted: true}, nil
}
