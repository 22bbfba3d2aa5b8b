package entity

import (
	"discord-entity-cache/internal/flags"
	"discord-entity-cache/internal/payload"
)

// ApplicationCommand is a registered slash / context-menu command.
// Every field resets to its default when absent.
type ApplicationCommand struct {
	id  uint64
	reg *Registry

	ApplicationID            uint64
	GuildID                  uint64
	Name                     string
	Description              string
	Type                     int
	Version                  uint64
	DefaultMemberPermissions *flags.Permission
	NSFW                     bool
	DMPermission             bool
	Options                  int

	loaded  bool
	deleted bool
}

func (c *ApplicationCommand) ID() uint64 {
	return c.id
}

// Partial reports whether only the id is known
func (c *ApplicationCommand) Partial() bool {
	return !c.loaded
}

func (c *ApplicationCommand) Deleted() bool {
	return c.deleted
}

func (c *ApplicationCommand) ApplySilently(p payload.Payload) error {
	if c.deleted {
		return ErrDeleted
	}
	c.update(p, nil)
	return nil
}

// ApplyAndDiff applies APPLICATION_COMMAND_UPDATE and returns the old values of changed fields
func (c *ApplicationCommand) ApplyAndDiff(p payload.Payload) (Changes, error) {
	if c.deleted {
		return nil, ErrDeleted
	}
	d := newDiffer()
	c.update(p, d)
	return d.result(), nil
}

func (c *ApplicationCommand) update(p payload.Payload, d *differ) {
	set(d, "application_id", &c.ApplicationID, p.ID("application_id"))
	set(d, "guild_id", &c.GuildID, p.ID("guild_id"))
	set(d, "name", &c.Name, p.String("name", ""))
	set(d, "description", &c.Description, p.String("description", ""))
	set(d, "type", &c.Type, p.Int("type", 1))
	set(d, "version", &c.Version, p.ID("version"))
	setNullable(d, "default_member_permissions", &c.DefaultMemberPermissions, nullablePermission(p, "default_member_permissions"))
	set(d, "nsfw", &c.NSFW, p.Bool("nsfw", false))
	set(d, "dm_permission", &c.DMPermission, p.Bool("dm_permission", true))
	set(d, "options", &c.Options, len(p.List("options")))
	c.loaded = true
}

// delete unregisters the command and leaves an inert shell
func (c *ApplicationCommand) delete() {
	if c.reg.Commands.Get(c.id) == c {
		c.reg.Commands.Remove(c.id)
	}
	c.deleted = true
}

// Delete removes the command from the registry
func (c *ApplicationCommand) Delete() {
	c.delete()
}

func nullablePermission(p payload.Payload, key string) *flags.Permission {
	if !p.Has(key) || p.IsNull(key) {
		return nil
	}
	perm := flags.Permission(p.Bits(key, 0))
	return &perm
}

func (r *Registry) command(id uint64) (*ApplicationCommand, bool) {
	return r.Commands.GetOrCreate(id, func() *ApplicationCommand {
		return &ApplicationCommand{id: id, reg: r, Type: 1, DMPermission: true}
	})
}

// CommandFromPayload creates a command or completes a partial one
func (r *Registry) CommandFromPayload(p payload.Payload) (*ApplicationCommand, bool, error) {
	id := p.ID("id")
	if id == 0 {
		return nil, false, ErrMissingID
	}

	c, _ := r.command(id)
	if !c.Partial() {
		return c, false, nil
	}
	c.update(p, nil)
	return c, true, nil
}
