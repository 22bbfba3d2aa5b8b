package entity

import (
	"slices"
	"time"

	"discord-entity-cache/internal/flags"
	"discord-entity-cache/internal/payload"
)

// User is a Discord account plus its per-guild profiles and presence.
// Account fields reset to defaults when absent.
type User struct {
	id  uint64
	reg *Registry

	Name          string
	Discriminator string
	GlobalName    *string
	Avatar        string
	Bot           bool
	System        bool
	Flags         flags.UserFlag

	// Presence
	Status     string
	Activities []*Activity

	profiles map[uint64]*GuildProfile
	loaded   bool
}

// GuildProfile is a user's membership data in one guild
type GuildProfile struct {
	GuildID       uint64
	Nick          *string
	RoleIDs       []uint64
	JoinedAt      time.Time
	Avatar        string
	Pending       bool
	TimedOutUntil *time.Time
	BoostedSince  *time.Time
}

func newUser(r *Registry, id uint64) *User {
	return &User{
		id:            id,
		reg:           r,
		Discriminator: "0",
		Status:        "offline",
		profiles:      make(map[uint64]*GuildProfile),
	}
}

func (u *User) ID() uint64 {
	return u.id
}

// Partial reports whether no full user object has arrived yet
func (u *User) Partial() bool {
	return !u.loaded
}

// Profile returns the user's membership in guildID
func (u *User) Profile(guildID uint64) *GuildProfile {
	return u.profiles[guildID]
}

// GuildIDs lists the guilds the user has a profile in
func (u *User) GuildIDs() []uint64 {
	ids := make([]uint64, 0, len(u.profiles))
	for id := range u.profiles {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (u *User) profile(guildID uint64) *GuildProfile {
	p, ok := u.profiles[guildID]
	if !ok {
		p = &GuildProfile{GuildID: guildID}
		u.profiles[guildID] = p
	}
	return p
}

// ApplySilently overwrites the account fields from a full payload
func (u *User) ApplySilently(p payload.Payload) {
	u.update(p, nil)
}

// ApplyAndDiff applies USER_UPDATE and returns the old values of changed fields
func (u *User) ApplyAndDiff(p payload.Payload) Changes {
	d := newDiffer()
	u.update(p, d)
	return d.result()
}

func (u *User) update(p payload.Payload, d *differ) {
	set(d, "name", &u.Name, p.String("username", ""))
	set(d, "discriminator", &u.Discriminator, p.String("discriminator", "0"))
	setNullable(d, "global_name", &u.GlobalName, p.NullableString("global_name", nil))
	set(d, "avatar", &u.Avatar, p.String("avatar", ""))
	set(d, "bot", &u.Bot, p.Bool("bot", false))
	set(d, "system", &u.System, p.Bool("system", false))
	set(d, "flags", &u.Flags, flags.UserFlag(p.Bits("public_flags", 0)))
	u.loaded = true
}

// ApplyPresence handles PRESENCE_UPDATE. Activities are matched by identity and
// diffed in place; when any differs the whole previous list is recorded as
// "activities" (a []Activity snapshot).
func (u *User) ApplyPresence(p payload.Payload) Changes {
	d := newDiffer()
	u.updatePresence(p, d)
	return d.result()
}

func (u *User) updatePresence(p payload.Payload, d *differ) {
	set(d, "status", &u.Status, p.String("status", "offline"))

	var snapshot []Activity
	if d != nil {
		snapshot = make([]Activity, len(u.Activities))
		for i, a := range u.Activities {
			snapshot[i] = *a
		}
	}

	list := p.Maps("activities")
	changed := len(list) != len(u.Activities)
	next := make([]*Activity, 0, len(list))
	used := make([]bool, len(u.Activities))

	for i, ap := range list {
		key := activityKeyOf(ap)
		match := -1
		for j, a := range u.Activities {
			if !used[j] && a.key() == key {
				match = j
				break
			}
		}
		if match < 0 {
			next = append(next, NewActivity(ap))
			changed = true
			continue
		}

		used[match] = true
		a := u.Activities[match]
		if match != i {
			changed = true
		}
		if d == nil {
			a.ApplySilently(ap)
		} else if len(a.ApplyAndDiff(ap)) > 0 {
			changed = true
		}
		next = append(next, a)
	}

	if changed {
		d.record("activities", snapshot)
	}
	u.Activities = next
}

func (g *GuildProfile) update(p payload.Payload, d *differ) {
	setNullable(d, "nick", &g.Nick, p.NullableString("nick", nil))
	setSlice(d, "role_ids", &g.RoleIDs, p.IDs("roles"))
	// joined_at never changes and partial member objects omit it
	setTime(d, "joined_at", &g.JoinedAt, timeOr(p, "joined_at", g.JoinedAt))
	set(d, "avatar", &g.Avatar, p.String("avatar", ""))
	set(d, "pending", &g.Pending, p.Bool("pending", false))
	setNullableTime(d, "timed_out_until", &g.TimedOutUntil, p.NullableTime("communication_disabled_until", nil))
	setNullableTime(d, "boosted_since", &g.BoostedSince, p.NullableTime("premium_since", nil))
}

// HasRole reports whether the profile holds roleID
func (g *GuildProfile) HasRole(roleID uint64) bool {
	return slices.Contains(g.RoleIDs, roleID)
}

func timeOr(p payload.Payload, key string, def time.Time) time.Time {
	if !p.Has(key) {
		return def
	}
	return p.Time(key)
}

func (r *Registry) user(id uint64) (*User, bool) {
	return r.Users.GetOrCreate(id, func() *User {
		return newUser(r, id)
	})
}

// UserFromPayload creates a user or completes a partial one. A user already
// loaded is returned untouched; account changes arrive through USER_UPDATE.
func (r *Registry) UserFromPayload(p payload.Payload) (*User, bool, error) {
	id := p.ID("id")
	if id == 0 {
		return nil, false, ErrMissingID
	}

	u, created := r.user(id)
	if !u.Partial() {
		return u, false, nil
	}
	u.update(p, nil)
	return u, created, nil
}

// PrecreateUser registers a placeholder user
func (r *Registry) PrecreateUser(id uint64, p payload.Payload) *User {
	u, created := r.user(id)
	if created {
		u.update(p, nil)
		u.loaded = false
	}
	return u
}
