package entity

import (
	"slices"

	"discord-entity-cache/internal/flags"
	"discord-entity-cache/internal/ordered"
	"discord-entity-cache/internal/payload"
)

// Role is a guild role. Every field resets to its default when absent.
type Role struct {
	id       uint64
	reg      *Registry
	guildID  uint64
	position int

	Name         string
	Color        int
	Separated    bool
	Permissions  flags.Permission
	Managed      bool
	Mentionable  bool
	Icon         string
	UnicodeEmoji *string
	Flags        flags.RoleFlag

	linked  bool
	deleted bool
}

func (r *Role) ID() uint64 {
	return r.id
}

func (r *Role) GuildID() uint64 {
	return r.guildID
}

func (r *Role) Position() int {
	return r.position
}

func (r *Role) Guild() *Guild {
	if r.guildID == 0 {
		return nil
	}
	return r.reg.Guilds.Get(r.guildID)
}

// Partial reports whether the role is not in a guild's role list yet
func (r *Role) Partial() bool {
	return !r.linked
}

func (r *Role) Deleted() bool {
	return r.deleted
}

// IsDefault reports whether this is @everyone
func (r *Role) IsDefault() bool {
	return r.guildID != 0 && r.id == r.guildID
}

func (r *Role) rank() ordered.Rank {
	return ordered.Rank{Position: r.position, ID: r.id}
}

// ApplySilently overwrites the role from a full payload
func (r *Role) ApplySilently(p payload.Payload) error {
	if r.deleted {
		return ErrDeleted
	}
	r.invalidatePermissions()
	return r.update(p, nil)
}

// ApplyAndDiff applies GUILD_ROLE_UPDATE and returns the old values of changed fields
func (r *Role) ApplyAndDiff(p payload.Payload) (Changes, error) {
	if r.deleted {
		return nil, ErrDeleted
	}
	r.invalidatePermissions()
	d := newDiffer()
	err := r.update(p, d)
	return d.result(), err
}

func (r *Role) update(p payload.Payload, d *differ) error {
	set(d, "name", &r.Name, p.String("name", ""))
	set(d, "color", &r.Color, p.Int("color", 0))
	set(d, "separated", &r.Separated, p.Bool("hoist", false))
	set(d, "permissions", &r.Permissions, flags.Permission(p.Bits("permissions", 0)))
	set(d, "managed", &r.Managed, p.Bool("managed", false))
	set(d, "mentionable", &r.Mentionable, p.Bool("mentionable", false))
	set(d, "icon", &r.Icon, p.String("icon", ""))
	setNullable(d, "unicode_emoji", &r.UnicodeEmoji, p.NullableString("unicode_emoji", nil))
	set(d, "flags", &r.Flags, flags.RoleFlag(p.Bits("flags", 0)))

	// Position routes through the guild's ordered list
	if set(d, "position", &r.position, p.Int("position", 0)) && r.linked {
		if g := r.Guild(); g != nil {
			return g.roles.Switch(r, r.position)
		}
	}
	return nil
}

func (r *Role) invalidatePermissions() {
	if g := r.Guild(); g != nil {
		g.invalidatePermissions()
	}
}

// delete removes the role from its guild and every member, leaving an inert shell
func (r *Role) delete() error {
	if r.deleted {
		return nil
	}

	var err error
	if g := r.Guild(); g != nil {
		if r.linked {
			err = g.roles.Remove(r)
		}
		delete(g.roleByID, r.id)
		for _, u := range g.users {
			if profile := u.profiles[g.id]; profile != nil {
				profile.RoleIDs = slices.DeleteFunc(profile.RoleIDs, func(id uint64) bool { return id == r.id })
			}
		}
		g.invalidatePermissions()
	}

	r.reg.Roles.Remove(r.id)
	r.guildID = 0
	r.Permissions = 0
	r.linked = false
	r.deleted = true
	return err
}

// Delete removes the role from its guild and the registry
func (r *Role) Delete() error {
	return r.delete()
}

func (r *Registry) role(id uint64) (*Role, bool) {
	return r.Roles.GetOrCreate(id, func() *Role {
		return &Role{id: id, reg: r}
	})
}

// RoleFromPayload creates or completes a role of g
func (r *Registry) RoleFromPayload(p payload.Payload, g *Guild) (*Role, bool, error) {
	id := p.ID("id")
	if id == 0 {
		return nil, false, ErrMissingID
	}

	role, _ := r.role(id)
	if !role.Partial() {
		return role, false, nil
	}

	role.guildID = g.id
	if err := role.update(p, nil); err != nil {
		return role, true, err
	}
	role.linked = true
	g.roleByID[id] = role
	g.invalidatePermissions()
	return role, true, g.roles.Append(role, role.rank())
}

// PrecreateRole registers a placeholder role
func (r *Registry) PrecreateRole(id uint64, p payload.Payload) *Role {
	role, created := r.role(id)
	if created {
		_ = role.update(p, nil)
	}
	return role
}
