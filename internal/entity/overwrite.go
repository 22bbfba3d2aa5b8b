package entity

import (
	"discord-entity-cache/internal/flags"
	"discord-entity-cache/internal/payload"

	"github.com/bwmarrin/discordgo"
)

// Overwrite is a per-target allow/deny pair scoped to one channel
type Overwrite struct {
	TargetID uint64
	Type     discordgo.PermissionOverwriteType
	Allow    flags.Permission
	Deny     flags.Permission
}

// Apply denies then allows on top of base
func (o Overwrite) Apply(base flags.Permission) flags.Permission {
	return base.Without(o.Deny).Union(o.Allow)
}

// parseOverwrites keeps wire order, except that the default role's overwrite
// (target == guild id) is moved to index 0.
func parseOverwrites(list []payload.Payload, guildID uint64) []Overwrite {
	if len(list) == 0 {
		return nil
	}

	out := make([]Overwrite, 0, len(list))
	for _, p := range list {
		o := Overwrite{
			TargetID: p.ID("id"),
			Type:     overwriteType(p),
			Allow:    flags.Permission(p.Bits("allow", 0)),
			Deny:     flags.Permission(p.Bits("deny", 0)),
		}
		if guildID != 0 && o.TargetID == guildID && o.Type == discordgo.PermissionOverwriteTypeRole {
			out = append(out, Overwrite{})
			copy(out[1:], out)
			out[0] = o
			continue
		}
		out = append(out, o)
	}
	return out
}

// overwriteType accepts both the numeric form and the legacy "role"/"member" strings
func overwriteType(p payload.Payload) discordgo.PermissionOverwriteType {
	switch p.String("type", "") {
	case "member":
		return discordgo.PermissionOverwriteTypeMember
	case "role":
		return discordgo.PermissionOverwriteTypeRole
	}
	return discordgo.PermissionOverwriteType(p.Int("type", int(discordgo.PermissionOverwriteTypeRole)))
}
