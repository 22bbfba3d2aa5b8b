package entity

import (
	"cmp"
	"slices"

	"discord-entity-cache/internal/flags"
	"discord-entity-cache/internal/ordered"
	"discord-entity-cache/internal/payload"

	"github.com/bwmarrin/discordgo"
)

// Guild owns its roles, channels and members.
//
// Absent keys reset to defaults, except member_count and large, which the
// gateway only sends on GUILD_CREATE and which keep their value otherwise.
type Guild struct {
	id  uint64
	reg *Registry

	Name                   string
	Icon                   string
	Banner                 string
	Splash                 string
	Description            *string
	OwnerID                uint64
	AFKChannelID           uint64
	AFKTimeout             int
	SystemChannelID        uint64
	SystemChannelFlags     flags.SystemChannelFlag
	RulesChannelID         uint64
	PublicUpdatesChannelID uint64
	VerificationLevel      int
	ExplicitContentFilter  int
	MFALevel               int
	NSFWLevel              int
	PremiumTier            int
	BoostCount             int
	Features               []string
	VanityCode             *string
	PreferredLocale        string
	MaxMembers             int
	MemberCount            int
	Large                  bool
	Available              bool

	roles    *ordered.List[*Role]
	roleByID map[uint64]*Role
	channels map[uint64]*Channel
	topLevel *ordered.List[*Channel]
	users    map[uint64]*User
	clients  map[uint64]struct{}

	deleted bool
}

func newGuild(r *Registry, id uint64) *Guild {
	return &Guild{
		id:              id,
		reg:             r,
		PreferredLocale: "en-US",
		Available:       true,
		roles:           ordered.New[*Role](),
		roleByID:        make(map[uint64]*Role),
		channels:        make(map[uint64]*Channel),
		topLevel:        ordered.New[*Channel](),
		users:           make(map[uint64]*User),
		clients:         make(map[uint64]struct{}),
	}
}

func (g *Guild) ID() uint64 {
	return g.id
}

// Partial reports whether no client has joined the guild
func (g *Guild) Partial() bool {
	return len(g.clients) == 0
}

func (g *Guild) Deleted() bool {
	return g.deleted
}

// Roles returns the roles ordered by position
func (g *Guild) Roles() []*Role {
	return g.roles.Items()
}

func (g *Guild) Role(id uint64) *Role {
	return g.roleByID[id]
}

// DefaultRole is @everyone, whose id equals the guild's
func (g *Guild) DefaultRole() *Role {
	return g.roleByID[g.id]
}

func (g *Guild) Channel(id uint64) *Channel {
	return g.channels[id]
}

// Channels returns every channel and thread ordered by id
func (g *Guild) Channels() []*Channel {
	out := make([]*Channel, 0, len(g.channels))
	for _, c := range g.channels {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b *Channel) int { return cmp.Compare(a.id, b.id) })
	return out
}

// TopLevel returns uncategorized channels and categories in display order
func (g *Guild) TopLevel() []*Channel {
	return g.topLevel.Items()
}

func (g *Guild) Member(userID uint64) *User {
	return g.users[userID]
}

func (g *Guild) Members() int {
	return len(g.users)
}

// Clients lists the client ids that joined the guild
func (g *Guild) Clients() []uint64 {
	out := make([]uint64, 0, len(g.clients))
	for id := range g.clients {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// AddClient records that clientID can see the guild
func (g *Guild) AddClient(clientID uint64) {
	g.clients[clientID] = struct{}{}
}

// RemoveClient forgets clientID and reports how many clients remain
func (g *Guild) RemoveClient(clientID uint64) int {
	delete(g.clients, clientID)
	return len(g.clients)
}

// MarkUnavailable handles a GUILD_DELETE caused by an outage; the guild keeps
// its state until the next GUILD_CREATE.
func (g *Guild) MarkUnavailable() Changes {
	d := newDiffer()
	set(d, "available", &g.Available, false)
	return d.result()
}

// initialize loads a full GUILD_CREATE payload
func (g *Guild) initialize(p payload.Payload) error {
	if err := g.update(p, nil); err != nil {
		return err
	}

	if err := g.loadChannels(p.Maps("channels")); err != nil {
		return err
	}
	if err := g.loadChannels(p.Maps("threads")); err != nil {
		return err
	}
	if err := g.AddMembers(p.Maps("members")); err != nil {
		return err
	}
	g.loadPresences(p.Maps("presences"))
	return nil
}

// Resync reloads a guild that was already joined from a fresh GUILD_CREATE,
// after an outage or on a new session.
//
// Roles and channels are reconciled with the snapshot: new ones are linked,
// known ones overwritten and missing ones deleted. Threads and members are
// only added or refreshed, as the snapshot carries active threads only and
// large guilds send part of their member list.
func (g *Guild) Resync(p payload.Payload) error {
	if g.deleted {
		return ErrDeleted
	}
	g.invalidatePermissions()
	if err := g.update(p, nil); err != nil {
		return err
	}

	if err := g.syncChannels(p.Maps("channels")); err != nil {
		return err
	}
	if err := g.loadChannels(p.Maps("threads")); err != nil {
		return err
	}
	if err := g.AddMembers(p.Maps("members")); err != nil {
		return err
	}
	g.loadPresences(p.Maps("presences"))
	return nil
}

// categoriesFirst orders a channel list so children find their category
func categoriesFirst(list []payload.Payload) []payload.Payload {
	list = slices.Clone(list)
	slices.SortStableFunc(list, func(a, b payload.Payload) int {
		ac := a.Int("type", 0) == int(discordgo.ChannelTypeGuildCategory)
		bc := b.Int("type", 0) == int(discordgo.ChannelTypeGuildCategory)
		switch {
		case ac && !bc:
			return -1
		case bc && !ac:
			return 1
		}
		return 0
	})
	return list
}

// loadChannels creates or refreshes channels in bulk
func (g *Guild) loadChannels(list []payload.Payload) error {
	for _, cp := range categoriesFirst(list) {
		if err := g.loadChannel(cp); err != nil {
			return err
		}
	}
	return nil
}

func (g *Guild) loadChannel(cp payload.Payload) error {
	if c, ok := g.channels[cp.ID("id")]; ok {
		if cp.ID("guild_id") == 0 {
			cp = withGuildID(cp, g.id)
		}
		return c.ApplySilently(cp)
	}
	_, _, err := g.reg.ChannelFromPayload(cp, g)
	return err
}

// syncChannels reconciles the non-thread channels with a full snapshot
func (g *Guild) syncChannels(list []payload.Payload) error {
	seen := make(map[uint64]struct{}, len(list))
	for _, cp := range list {
		seen[cp.ID("id")] = struct{}{}
	}
	if err := g.loadChannels(list); err != nil {
		return err
	}

	for _, c := range g.Channels() {
		if _, ok := seen[c.id]; ok || c.IsThread() || c.deleted {
			continue
		}
		if err := c.delete(); err != nil {
			return err
		}
	}
	return nil
}

func (g *Guild) loadPresences(list []payload.Payload) {
	for _, pp := range list {
		if u := g.users[pp.Map("user").ID("id")]; u != nil {
			u.updatePresence(pp, nil)
		}
	}
}

// ApplySilently overwrites the guild from a full payload
func (g *Guild) ApplySilently(p payload.Payload) error {
	if g.deleted {
		return ErrDeleted
	}
	g.invalidatePermissions()
	return g.update(p, nil)
}

// ApplyAndDiff applies GUILD_UPDATE and returns the old values of changed fields
func (g *Guild) ApplyAndDiff(p payload.Payload) (Changes, error) {
	if g.deleted {
		return nil, ErrDeleted
	}
	g.invalidatePermissions()
	d := newDiffer()
	err := g.update(p, d)
	return d.result(), err
}

func (g *Guild) update(p payload.Payload, d *differ) error {
	set(d, "name", &g.Name, p.String("name", ""))
	set(d, "icon", &g.Icon, p.String("icon", ""))
	set(d, "banner", &g.Banner, p.String("banner", ""))
	set(d, "splash", &g.Splash, p.String("splash", ""))
	setNullable(d, "description", &g.Description, p.NullableString("description", nil))
	set(d, "owner_id", &g.OwnerID, p.ID("owner_id"))
	set(d, "afk_channel_id", &g.AFKChannelID, p.ID("afk_channel_id"))
	set(d, "afk_timeout", &g.AFKTimeout, p.Int("afk_timeout", 0))
	set(d, "system_channel_id", &g.SystemChannelID, p.ID("system_channel_id"))
	set(d, "system_channel_flags", &g.SystemChannelFlags, flags.SystemChannelFlag(p.Bits("system_channel_flags", 0)))
	set(d, "rules_channel_id", &g.RulesChannelID, p.ID("rules_channel_id"))
	set(d, "public_updates_channel_id", &g.PublicUpdatesChannelID, p.ID("public_updates_channel_id"))
	set(d, "verification_level", &g.VerificationLevel, p.Int("verification_level", 0))
	set(d, "explicit_content_filter", &g.ExplicitContentFilter, p.Int("explicit_content_filter", 0))
	set(d, "mfa_level", &g.MFALevel, p.Int("mfa_level", 0))
	set(d, "nsfw_level", &g.NSFWLevel, p.Int("nsfw_level", 0))
	set(d, "premium_tier", &g.PremiumTier, p.Int("premium_tier", 0))
	set(d, "boost_count", &g.BoostCount, p.Int("premium_subscription_count", 0))
	setSlice(d, "features", &g.Features, p.Strings("features"))
	setNullable(d, "vanity_code", &g.VanityCode, p.NullableString("vanity_url_code", nil))
	set(d, "preferred_locale", &g.PreferredLocale, p.String("preferred_locale", "en-US"))
	set(d, "max_members", &g.MaxMembers, p.Int("max_members", 0))
	set(d, "member_count", &g.MemberCount, p.Int("member_count", g.MemberCount))
	set(d, "large", &g.Large, p.Bool("large", g.Large))
	set(d, "available", &g.Available, !p.Bool("unavailable", false))

	if p.Has("roles") {
		return g.syncRoles(p.Maps("roles"), d)
	}
	return nil
}

// syncRoles reconciles the role list with a full snapshot
func (g *Guild) syncRoles(list []payload.Payload, d *differ) error {
	old := g.RoleIDs()
	seen := make(map[uint64]struct{}, len(list))

	for _, rp := range list {
		id := rp.ID("id")
		if id == 0 {
			continue
		}
		seen[id] = struct{}{}
		if role, ok := g.roleByID[id]; ok {
			if err := role.update(rp, nil); err != nil {
				return err
			}
			continue
		}
		if _, _, err := g.reg.RoleFromPayload(rp, g); err != nil {
			return err
		}
	}

	for id, role := range g.roleByID {
		if _, ok := seen[id]; !ok {
			if err := role.delete(); err != nil {
				return err
			}
		}
	}

	if now := g.RoleIDs(); !slices.Equal(old, now) {
		d.record("roles", old)
	}
	return nil
}

// RoleIDs lists role ids in position order
func (g *Guild) RoleIDs() []uint64 {
	ids := make([]uint64, 0, g.roles.Len())
	for _, r := range g.roles.Items() {
		ids = append(ids, r.id)
	}
	return ids
}

// AddMember handles GUILD_MEMBER_ADD. A member already known is refreshed in
// place; permission memos are dropped when the member is new or its roles
// changed.
func (g *Guild) AddMember(p payload.Payload) (*User, bool, error) {
	u, created, changed, err := g.addMember(p)
	if err != nil {
		return nil, false, err
	}
	if changed {
		g.invalidatePermissions()
	}
	return u, created, nil
}

// AddMembers handles member lists of GUILD_CREATE and GUILD_MEMBERS_CHUNK,
// invalidating permission memos at most once
func (g *Guild) AddMembers(list []payload.Payload) error {
	changed := false
	defer func() {
		if changed {
			g.invalidatePermissions()
		}
	}()

	for _, mp := range list {
		_, _, c, err := g.addMember(mp)
		if err != nil {
			return err
		}
		changed = changed || c
	}
	return nil
}

// addMember reports whether the member is new and whether its roles changed
func (g *Guild) addMember(p payload.Payload) (*User, bool, bool, error) {
	u, _, err := g.reg.UserFromPayload(p.Map("user"))
	if err != nil {
		return nil, false, false, err
	}
	_, known := g.users[u.id]
	profile := u.profile(g.id)
	roles := slices.Clone(profile.RoleIDs)
	profile.update(p, nil)
	g.users[u.id] = u
	return u, !known, !known || !slices.Equal(roles, profile.RoleIDs), nil
}

// UpdateMember handles GUILD_MEMBER_UPDATE. User and profile changes share one
// change set; a member unknown so far is added and reported as created.
func (g *Guild) UpdateMember(p payload.Payload) (*User, Changes, bool, error) {
	if g.deleted {
		return nil, nil, false, ErrDeleted
	}
	up := p.Map("user")
	id := up.ID("id")
	if id == 0 {
		return nil, nil, false, ErrMissingID
	}

	u, ok := g.users[id]
	if !ok {
		added, _, err := g.AddMember(p)
		return added, nil, err == nil, err
	}

	// Member roles feed every permission computation of the guild
	g.invalidatePermissions()
	d := newDiffer()
	u.update(up, d)
	u.profile(g.id).update(p, d)
	return u, d.result(), false, nil
}

// RemoveMember handles GUILD_MEMBER_REMOVE
func (g *Guild) RemoveMember(userID uint64) (*User, bool) {
	u, ok := g.users[userID]
	if !ok {
		return nil, false
	}
	delete(g.users, userID)
	delete(u.profiles, g.id)
	g.invalidatePermissions()
	return u, true
}

// invalidatePermissions drops the guild memo and every channel memo
func (g *Guild) invalidatePermissions() {
	if g.reg.perms != nil {
		g.reg.perms.Invalidate(g.id)
	}
	for _, c := range g.channels {
		c.invalidatePermissions()
	}
}

// delete tears down the guild, its channels and roles, leaving an inert shell
func (g *Guild) delete() error {
	if g.deleted {
		return nil
	}

	var err error
	keep := func(e error) {
		if e != nil && err == nil {
			err = e
		}
	}
	for _, c := range g.Channels() {
		keep(c.delete())
	}
	for _, r := range g.Roles() {
		keep(r.delete())
	}
	for _, u := range g.users {
		delete(u.profiles, g.id)
	}

	g.reg.Guilds.Remove(g.id)
	if g.reg.perms != nil {
		g.reg.perms.Forget(g.id)
	}
	clear(g.users)
	clear(g.clients)
	g.topLevel.Clear()
	g.OwnerID = 0
	g.deleted = true
	return err
}

// Delete removes the guild from the cache
func (g *Guild) Delete() error {
	return g.delete()
}

func (r *Registry) guild(id uint64) (*Guild, bool) {
	return r.Guilds.GetOrCreate(id, func() *Guild {
		return newGuild(r, id)
	})
}

// GuildFromPayload handles GUILD_CREATE. A partial guild is fully loaded and
// reported as created; a guild already joined only gains the client.
func (r *Registry) GuildFromPayload(p payload.Payload, clientID uint64) (*Guild, bool, error) {
	id := p.ID("id")
	if id == 0 {
		return nil, false, ErrMissingID
	}

	g, _ := r.guild(id)
	if !g.Partial() {
		g.AddClient(clientID)
		return g, false, nil
	}

	g.AddClient(clientID)
	return g, true, g.initialize(p)
}

// PrecreateGuild registers a placeholder guild
func (r *Registry) PrecreateGuild(id uint64, p payload.Payload) *Guild {
	g, created := r.guild(id)
	if created {
		_ = g.update(p, nil)
	}
	return g
}
