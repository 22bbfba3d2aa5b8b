// Package entity holds the synchronized object graph: guilds, channels, roles,
// users, messages, activities and application commands.
//
// Every kind exposes the same three update protocols:
//
//   - initialize, used only at construction; every field is set or defaulted.
//   - ApplySilently, for full-refresh payloads; no change record.
//   - ApplyAndDiff, for incremental events; returns field name -> old value.
//
// Each field documents what an absent key means for it: most reset to their
// default, some (counts streamed separately, message fields in partial edits)
// keep the current value.
//
// Cross references that point "up" the graph (channel -> guild, role -> guild,
// message -> channel) are stored as IDs and resolved through the Registry, so a
// deleted or collected target simply resolves to nil.
package entity

import (
	"errors"

	"discord-entity-cache/internal/history"
	"discord-entity-cache/internal/permcache"
	"discord-entity-cache/internal/registry"
)

var (
	ErrMissingID = errors.New("entity: payload has no id")
	ErrDeleted   = errors.New("entity: entity was deleted")
)

// Registry is the identity map of every entity kind.
// One Registry is created per cache instance; it is not safe for concurrent use.
type Registry struct {
	Guilds   *registry.Map[Guild]
	Channels *registry.Map[Channel]
	Roles    *registry.Map[Role]
	Users    *registry.Map[User]
	Messages *registry.Map[Message]
	Commands *registry.Map[ApplicationCommand]

	historyCapacity int
	perms           *permcache.Cache
}

// Option configures a Registry
type Option func(*Registry)

// WithHistoryCapacity sets the bounded window of every messageable channel
func WithHistoryCapacity(n int) Option {
	return func(r *Registry) {
		r.historyCapacity = n
	}
}

// WithPermissionCache enables guild-level permission memoization
func WithPermissionCache(c *permcache.Cache) Option {
	return func(r *Registry) {
		r.perms = c
	}
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		Guilds:          registry.New[Guild]("guilds"),
		Channels:        registry.New[Channel]("channels"),
		Roles:           registry.New[Role]("roles"),
		Users:           registry.New[User]("users"),
		Messages:        registry.New[Message]("messages"),
		Commands:        registry.New[ApplicationCommand]("application_commands"),
		historyCapacity: history.DefaultCapacity,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// HistoryCapacity is the window new channels start with
func (r *Registry) HistoryCapacity() int {
	return r.historyCapacity
}

// Sweep drops collected entries of every kind, reporting counts per kind
func (r *Registry) Sweep() map[string]int {
	return map[string]int{
		r.Guilds.Kind():   r.Guilds.Sweep(),
		r.Channels.Kind(): r.Channels.Sweep(),
		r.Roles.Kind():    r.Roles.Sweep(),
		r.Users.Kind():    r.Users.Sweep(),
		r.Messages.Kind(): r.Messages.Sweep(),
		r.Commands.Kind(): r.Commands.Sweep(),
	}
}

// Counts reports registered entries per kind, including ones not yet swept
func (r *Registry) Counts() map[string]int {
	return map[string]int{
		r.Guilds.Kind():   r.Guilds.Len(),
		r.Channels.Kind(): r.Channels.Len(),
		r.Roles.Kind():    r.Roles.Len(),
		r.Users.Kind():    r.Users.Len(),
		r.Messages.Kind(): r.Messages.Len(),
		r.Commands.Kind(): r.Commands.Len(),
	}
}
