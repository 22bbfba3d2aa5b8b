package entity

import (
	"slices"

	"discord-entity-cache/internal/flags"
	"discord-entity-cache/internal/history"
	"discord-entity-cache/internal/ordered"
	"discord-entity-cache/internal/payload"

	"github.com/bwmarrin/discordgo"
)

// Channel is any guild, thread or private channel.
//
// Absent keys reset to defaults for every channel field except type, which
// keeps the current value.
type Channel struct {
	id      uint64
	reg     *Registry
	variant *channelVariant
	kind    discordgo.ChannelType

	guildID    uint64
	parentID   uint64
	position   int
	overwrites []Overwrite

	Name string
	Meta ChannelMetadata

	// list is the ordered list this channel currently sits in
	list    *ordered.List[*Channel]
	history *history.Buffer[*Message]
	perms   map[uint64]flags.Permission

	// linked is set once an owning collection holds the channel
	linked  bool
	deleted bool
}

func newChannel(r *Registry, id uint64, kind int) *Channel {
	c := &Channel{
		id:    id,
		reg:   r,
		perms: make(map[uint64]flags.Permission),
	}
	c.setVariant(kind)
	return c
}

func (c *Channel) ID() uint64 {
	return c.id
}

// Type is the raw wire type, which may be one the variant table does not know
func (c *Channel) Type() discordgo.ChannelType {
	return c.kind
}

// Kind names the variant (text, voice, ..., unknown)
func (c *Channel) Kind() string {
	return c.variant.name
}

func (c *Channel) GuildID() uint64 {
	return c.guildID
}

func (c *Channel) ParentID() uint64 {
	return c.parentID
}

func (c *Channel) Position() int {
	return c.position
}

// Overwrites returns a copy with the default role's overwrite first
func (c *Channel) Overwrites() []Overwrite {
	return slices.Clone(c.overwrites)
}

func (c *Channel) Guild() *Guild {
	if c.guildID == 0 {
		return nil
	}
	return c.reg.Guilds.Get(c.guildID)
}

func (c *Channel) Parent() *Channel {
	if c.parentID == 0 {
		return nil
	}
	return c.reg.Channels.Get(c.parentID)
}

// Partial reports whether no owning collection holds the channel yet
func (c *Channel) Partial() bool {
	return !c.linked
}

func (c *Channel) Deleted() bool {
	return c.deleted
}

func (c *Channel) IsThread() bool {
	return c.variant.thread
}

func (c *Channel) IsPrivate() bool {
	return c.variant.private
}

func (c *Channel) Messageable() bool {
	return c.variant.messageable
}

// Text returns the text metadata of text and news channels
func (c *Channel) Text() (*TextMetadata, bool) {
	switch m := c.Meta.(type) {
	case *TextMetadata:
		return m, true
	case *NewsMetadata:
		return &m.TextMetadata, true
	}
	return nil, false
}

// Children lists a category's channels in display order
func (c *Channel) Children() []*Channel {
	if m, ok := c.Meta.(*CategoryMetadata); ok {
		return m.Children()
	}
	return nil
}

// History is the message window, nil when the channel can't hold messages
func (c *Channel) History() *history.Buffer[*Message] {
	return c.history
}

func (c *Channel) rank() ordered.Rank {
	return ordered.Rank{Group: c.variant.group, Position: c.position, ID: c.id}
}

func (c *Channel) setVariant(kind int) {
	c.kind = discordgo.ChannelType(kind)
	c.variant = channelVariantOf(kind)
	c.Meta = c.variant.new()

	switch {
	case c.variant.messageable && c.history == nil:
		c.history = history.New[*Message](c.reg.historyCapacity)
	case !c.variant.messageable && c.history != nil:
		c.dropHistory()
	}
}

func (c *Channel) initialize(p payload.Payload) error {
	c.guildID = p.ID("guild_id")
	return c.update(p, nil)
}

// ApplySilently overwrites the channel from a full payload
func (c *Channel) ApplySilently(p payload.Payload) error {
	if c.deleted {
		return ErrDeleted
	}
	c.invalidatePermissions()
	return c.update(p, nil)
}

// ApplyAndDiff applies an update event and returns the old values of changed fields
func (c *Channel) ApplyAndDiff(p payload.Payload) (Changes, error) {
	if c.deleted {
		return nil, ErrDeleted
	}
	c.invalidatePermissions()
	d := newDiffer()
	err := c.update(p, d)
	return d.result(), err
}

func (c *Channel) update(p payload.Payload, d *differ) error {
	regroup := false
	if kind := p.Int("type", int(c.kind)); kind != int(c.kind) {
		d.record("type", int(c.kind))
		regroup = channelVariantOf(kind).group != c.variant.group
		if err := c.swapVariant(kind); err != nil {
			return err
		}
	}

	set(d, "name", &c.Name, p.String("name", ""))
	relink := set(d, "parent_id", &c.parentID, p.ID("parent_id"))
	moved := set(d, "position", &c.position, p.Int("position", 0))
	setSlice(d, "permission_overwrites", &c.overwrites, parseOverwrites(p.Maps("permission_overwrites"), c.guildID))
	c.Meta.update(c, p, d)

	if !c.linked {
		return nil
	}
	switch {
	case relink || regroup:
		if c.container() != c.list {
			return c.relink()
		}
		if c.list != nil {
			return c.list.Move(c, c.rank())
		}
	case moved && c.list != nil:
		return c.list.Switch(c, c.position)
	}
	return nil
}

// swapVariant replaces the metadata when the type changes. A category handing
// over its children moves them to the guild's top level.
func (c *Channel) swapVariant(kind int) error {
	if m, ok := c.Meta.(*CategoryMetadata); ok {
		for _, child := range m.Children() {
			child.parentID = 0
			if err := child.relink(); err != nil {
				return err
			}
		}
	}
	c.setVariant(kind)
	return nil
}

// container is the ordered list the channel belongs in, nil for threads and
// private channels
func (c *Channel) container() *ordered.List[*Channel] {
	if c.variant.thread {
		return nil
	}
	g := c.Guild()
	if g == nil {
		return nil
	}
	if parent := c.Parent(); parent != nil {
		if m, ok := parent.Meta.(*CategoryMetadata); ok {
			return m.children
		}
	}
	return g.topLevel
}

// relink moves the channel into the list its parent dictates
func (c *Channel) relink() error {
	next := c.container()
	if c.list != nil {
		if err := c.list.Remove(c); err != nil {
			return err
		}
	}
	c.list = next
	if next == nil {
		return nil
	}
	return next.Append(c, c.rank())
}

// link attaches a freshly initialized channel to its guild
func (c *Channel) link(g *Guild) error {
	c.linked = true
	if g == nil {
		return nil
	}
	g.channels[c.id] = c
	c.list = c.container()
	if c.list == nil {
		return nil
	}
	return c.list.Append(c, c.rank())
}

// linkPrivate marks a private channel as held by the cache
func (c *Channel) linkPrivate() {
	c.linked = true
}

// delete detaches the channel from every collection and leaves an inert shell
func (c *Channel) delete() error {
	if c.deleted {
		return nil
	}

	var err error
	if m, ok := c.Meta.(*CategoryMetadata); ok {
		for _, child := range m.Children() {
			child.parentID = 0
			if e := child.relink(); e != nil && err == nil {
				err = e
			}
		}
	}
	if c.list != nil {
		if e := c.list.Remove(c); e != nil && err == nil {
			err = e
		}
		c.list = nil
	}
	if g := c.Guild(); g != nil {
		delete(g.channels, c.id)
	}

	c.reg.Channels.Remove(c.id)
	c.dropHistory()
	c.Meta.clear()
	c.invalidatePermissions()
	c.guildID = 0
	c.parentID = 0
	c.overwrites = nil
	c.linked = false
	c.deleted = true
	return err
}

// Delete removes the channel from its guild and the registry
func (c *Channel) Delete() error {
	return c.delete()
}

// dropHistory unregisters buffered messages and releases the buffer
func (c *Channel) dropHistory() {
	if c.history == nil {
		return
	}
	for _, m := range c.history.Items() {
		m.delete()
	}
	c.history.Clear()
	c.history = nil
}

func (c *Channel) invalidatePermissions() {
	clear(c.perms)
}

func (r *Registry) channel(id uint64, kind int) (*Channel, bool) {
	return r.Channels.GetOrCreate(id, func() *Channel {
		return newChannel(r, id, kind)
	})
}

// ChannelFromPayload creates or completes a channel. A partial channel is
// initialized in place; a complete one is returned untouched.
// g may be nil for private channels or when the guild is not known yet.
func (r *Registry) ChannelFromPayload(p payload.Payload, g *Guild) (*Channel, bool, error) {
	id := p.ID("id")
	if id == 0 {
		return nil, false, ErrMissingID
	}

	c, created := r.channel(id, p.Int("type", 0))
	if !c.Partial() {
		return c, false, nil
	}
	if !created {
		if kind := p.Int("type", int(c.kind)); kind != int(c.kind) {
			c.setVariant(kind)
		}
	}

	if g != nil && p.ID("guild_id") == 0 {
		p = withGuildID(p, g.id)
	}
	if err := c.initialize(p); err != nil {
		return c, true, err
	}

	if c.guildID == 0 {
		// Guild channels without a guild stay partial
		if c.variant.private {
			c.linkPrivate()
		}
		return c, true, nil
	}
	if g == nil {
		g = c.Guild()
	}
	if g == nil {
		return c, true, nil
	}
	return c, true, c.link(g)
}

// PrecreateChannel registers a placeholder channel
func (r *Registry) PrecreateChannel(id uint64, p payload.Payload) *Channel {
	c, created := r.channel(id, p.Int("type", 0))
	if created {
		c.guildID = p.ID("guild_id")
		_ = c.update(p, nil)
	}
	return c
}

// withGuildID copies p with guild_id filled in
func withGuildID(p payload.Payload, guildID uint64) payload.Payload {
	out := make(payload.Payload, len(p)+1)
	for k, v := range p {
		out[k] = v
	}
	out["guild_id"] = guildID
	return out
}
