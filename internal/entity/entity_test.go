package entity

import (
	"strconv"
	"testing"

	"discord-entity-cache/internal/flags"
	"discord-entity-cache/internal/payload"
	"discord-entity-cache/internal/permcache"

	"github.com/stretchr/testify/require"
)

const (
	guildID   = 100
	ownerID   = 1
	memberID  = 2
	adminID   = 3
	adminRole = 200
	sendRole  = 300
)

func perm(p flags.Permission) string {
	return strconv.FormatUint(uint64(p), 10)
}

func id(n uint64) string {
	return strconv.FormatUint(n, 10)
}

// guildPayload is a small GUILD_CREATE: a category with one child, a
// top-level text channel with overwrites, a voice channel and a thread.
func guildPayload() payload.Payload {
	return payload.Payload{
		"id":           id(guildID),
		"name":         "test guild",
		"owner_id":     id(ownerID),
		"member_count": 3,
		"large":        false,
		"roles": []any{
			map[string]any{"id": id(guildID), "name": "@everyone", "position": 0, "permissions": perm(flags.PermissionViewChannel)},
			map[string]any{"id": id(adminRole), "name": "admin", "position": 2, "permissions": perm(flags.PermissionAdministrator)},
			map[string]any{"id": id(sendRole), "name": "talker", "position": 1, "permissions": perm(flags.PermissionSendMessages | flags.PermissionConnect)},
		},
		"channels": []any{
			map[string]any{"id": "21", "type": 0, "name": "child", "position": 0, "parent_id": "20"},
			map[string]any{"id": "20", "type": 4, "name": "category", "position": 0},
			map[string]any{
				"id": "10", "type": 0, "name": "general", "position": 1, "topic": "hello",
				"permission_overwrites": []any{
					map[string]any{"id": id(sendRole), "type": 0, "allow": "0", "deny": perm(flags.PermissionSendMessages)},
					map[string]any{"id": id(guildID), "type": 0, "allow": "0", "deny": perm(flags.PermissionViewChannel)},
				},
			},
			map[string]any{"id": "11", "type": 2, "name": "voice", "position": 0, "bitrate": 96000},
		},
		"threads": []any{
			map[string]any{
				"id": "30", "type": 11, "name": "thread", "parent_id": "21", "owner_id": id(memberID),
				"message_count": 4,
				"thread_metadata": map[string]any{"archived": true, "auto_archive_duration": 60},
			},
		},
		"members": []any{
			map[string]any{"user": map[string]any{"id": id(ownerID), "username": "owner"}, "roles": []any{}, "joined_at": "2021-01-01T00:00:00Z"},
			map[string]any{"user": map[string]any{"id": id(memberID), "username": "member"}, "roles": []any{id(sendRole)}, "nick": "m"},
			map[string]any{"user": map[string]any{"id": id(adminID), "username": "admin"}, "roles": []any{id(adminRole)}},
		},
		"presences": []any{
			map[string]any{
				"user":       map[string]any{"id": id(memberID)},
				"status":     "online",
				"activities": []any{map[string]any{"type": 0, "name": "chess"}},
			},
		},
	}
}

func newTestGuild(t *testing.T, opts ...Option) (*Registry, *Guild) {
	t.Helper()

	reg := NewRegistry(opts...)
	g, created, err := reg.GuildFromPayload(guildPayload(), 999)
	require.NoError(t, err)
	require.True(t, created)
	return reg, g
}

func newPermCache(t *testing.T) *permcache.Cache {
	t.Helper()

	c, err := permcache.New(permcache.Config{})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func channelIDs(list []*Channel) []uint64 {
	out := make([]uint64, 0, len(list))
	for _, c := range list {
		out = append(out, c.ID())
	}
	return out
}
