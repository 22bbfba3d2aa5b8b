package entity

import (
	"discord-entity-cache/internal/flags"

	"github.com/bwmarrin/discordgo"
)

// PermissionsFor resolves userID's guild-wide permissions.
// Owner and administrator short-circuit to every permission.
func (g *Guild) PermissionsFor(userID uint64) flags.Permission {
	if g.deleted {
		return 0
	}
	// FAST PATH: owner needs no role lookup
	if userID == g.OwnerID {
		return flags.PermissionAll
	}

	if g.reg.perms != nil {
		if p, ok := g.reg.perms.Get(g.id, userID); ok {
			return p
		}
	}

	p := g.basePermissions(userID)
	if p.Administrator() {
		p = flags.PermissionAll
	}

	if g.reg.perms != nil {
		g.reg.perms.Set(g.id, userID, p)
	}
	return p
}

// basePermissions folds the default role and every role the user holds
func (g *Guild) basePermissions(userID uint64) flags.Permission {
	var p flags.Permission
	if everyone := g.DefaultRole(); everyone != nil {
		p = everyone.Permissions
	}

	u := g.users[userID]
	if u == nil {
		return p
	}
	profile := u.profiles[g.id]
	if profile == nil {
		return p
	}
	for _, id := range profile.RoleIDs {
		if role := g.roleByID[id]; role != nil {
			p = p.Union(role.Permissions)
		}
	}
	return p
}

// PermissionsFor resolves userID's permissions in the channel.
//
// Guild channels start from the guild-wide set, then apply the default role's
// overwrite (always stored first), then role and member overwrites in stored
// order, and finally drop the bits the channel type can't use. Threads resolve
// through their parent; private channels grant the private set to recipients.
func (c *Channel) PermissionsFor(userID uint64) flags.Permission {
	if c.deleted {
		return 0
	}

	switch m := c.Meta.(type) {
	case *GroupMetadata:
		if userID == m.OwnerID || m.HasRecipient(userID) {
			return flags.PermissionPrivate
		}
		return 0
	case *DirectMetadata:
		if m.HasRecipient(userID) {
			return flags.PermissionPrivate
		}
		return 0
	}

	if c.variant.thread {
		parent := c.Parent()
		if parent == nil {
			return 0
		}
		return parent.PermissionsFor(userID).Without(c.variant.mask)
	}

	if p, ok := c.perms[userID]; ok {
		return p
	}

	p := c.resolve(userID)
	c.perms[userID] = p
	return p
}

func (c *Channel) resolve(userID uint64) flags.Permission {
	g := c.Guild()
	if g == nil {
		return 0
	}
	if userID == g.OwnerID {
		return flags.PermissionAll
	}

	base := g.PermissionsFor(userID)
	if base.Administrator() {
		return flags.PermissionAll
	}

	var roles []uint64
	if u := g.users[userID]; u != nil {
		if profile := u.profiles[g.id]; profile != nil {
			roles = profile.RoleIDs
		}
	}

	overwrites := c.overwrites
	if len(overwrites) > 0 && overwrites[0].TargetID == g.id {
		base = overwrites[0].Apply(base)
		overwrites = overwrites[1:]
	}
	for _, o := range overwrites {
		if appliesTo(o, userID, roles) {
			base = o.Apply(base)
		}
	}

	return base.Without(c.variant.mask)
}

func appliesTo(o Overwrite, userID uint64, roles []uint64) bool {
	if o.Type == discordgo.PermissionOverwriteTypeMember {
		return o.TargetID == userID
	}
	for _, id := range roles {
		if id == o.TargetID {
			return true
		}
	}
	return false
}
