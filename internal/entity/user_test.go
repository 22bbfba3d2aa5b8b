package entity

import (
	"testing"
	"time"

	"discord-entity-cache/internal/payload"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserNullableGlobalName(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	u, created, err := reg.UserFromPayload(payload.Payload{"id": "5", "username": "alice"})
	require.NoError(t, err)
	require.True(t, created)
	assert.Nil(t, u.GlobalName)

	assert.Empty(t, u.ApplyAndDiff(payload.Payload{"id": "5", "username": "alice", "global_name": nil}))
	assert.Empty(t, u.ApplyAndDiff(payload.Payload{"id": "5", "username": "alice"}))

	changes := u.ApplyAndDiff(payload.Payload{"id": "5", "username": "alice", "global_name": "Alice"})
	assert.Equal(t, Changes{"global_name": nil}, changes)
	assert.Equal(t, "Alice", *u.GlobalName)
}

func TestPrecreatedUserCompletes(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	placeholder := reg.PrecreateUser(9, payload.Payload{"username": "guess"})
	require.True(t, placeholder.Partial())
	assert.Equal(t, "guess", placeholder.Name)

	u, _, err := reg.UserFromPayload(payload.Payload{"id": "9", "username": "real", "bot": true})
	require.NoError(t, err)
	assert.Same(t, placeholder, u)
	assert.False(t, u.Partial())
	assert.Equal(t, "real", u.Name)
	assert.True(t, u.Bot)

	// Loaded users are not overwritten by embedded user objects
	again, created, err := reg.UserFromPayload(payload.Payload{"id": "9", "username": "stale"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Same(t, u, again)
	assert.Equal(t, "real", u.Name)
}

func TestPresenceDiff(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	u, _, err := reg.UserFromPayload(payload.Payload{"id": "5", "username": "alice"})
	require.NoError(t, err)

	presence := payload.Payload{
		"status":     "online",
		"activities": []any{map[string]any{"type": 0, "name": "chess"}},
	}
	changes := u.ApplyPresence(presence)
	assert.Equal(t, Changes{"status": "offline", "activities": []Activity{}}, changes)
	require.Len(t, u.Activities, 1)
	chess := u.Activities[0]
	assert.Equal(t, "simple", chess.Kind())

	assert.Empty(t, u.ApplyPresence(presence))
	assert.Same(t, chess, u.Activities[0])

	changes = u.ApplyPresence(payload.Payload{"status": "idle"})
	assert.Equal(t, "online", changes["status"])
	old, ok := changes["activities"].([]Activity)
	require.True(t, ok)
	require.Len(t, old, 1)
	assert.Equal(t, "chess", old[0].Name)
	assert.Empty(t, u.Activities)
}

func TestActivityUpgradesToRich(t *testing.T) {
	t.Parallel()

	simple := NewActivity(payload.Payload{"type": 0, "name": "chess", "url": "", "created_at": 1})
	assert.Equal(t, "simple", simple.Kind())

	rich := NewActivity(payload.Payload{
		"type": 0, "name": "chess", "details": "ranked", "application_id": "42",
		"timestamps": map[string]any{"start": 1000},
	})
	assert.True(t, rich.Rich())
	assert.Equal(t, uint64(42), rich.ApplicationID)
	assert.Equal(t, time.UnixMilli(1000).UTC(), rich.Timestamps.Start)

	// Upgrades are one way
	simple.ApplySilently(rich.toPayload())
	assert.True(t, simple.Rich())
	simple.ApplySilently(payload.Payload{"type": 0, "name": "chess"})
	assert.True(t, simple.Rich())

	unknown := NewActivity(payload.Payload{"type": 42, "name": "future"})
	assert.Equal(t, "unknown", unknown.Kind())

	custom := NewActivity(payload.Payload{"type": 4, "name": "Custom Status", "state": "busy", "emoji": map[string]any{"name": "🔥"}})
	assert.Equal(t, "custom", custom.Kind())
	assert.Equal(t, "busy", *custom.State)
	assert.Equal(t, "🔥", custom.Emoji)
}

func TestActivityNestedDiff(t *testing.T) {
	t.Parallel()

	base := func() payload.Payload {
		return payload.Payload{"type": 0, "name": "chess", "details": "ranked", "application_id": "42"}
	}

	start := base()
	start["timestamps"] = map[string]any{"start": 1000}
	start["party"] = map[string]any{"id": "p1", "size": []any{1, 4}}
	a := NewActivity(start)
	require.True(t, a.Rich())
	assert.Equal(t, 1, a.Party.Size)
	assert.Equal(t, 4, a.Party.Max)

	// Only one child of timestamps changes
	next := base()
	next["timestamps"] = map[string]any{"start": 1000, "end": 2000}
	next["party"] = map[string]any{"id": "p1", "size": []any{1, 4}}
	changes := a.ApplyAndDiff(next)
	require.Len(t, changes, 1)
	end, ok := changes["timestamp_end"].(time.Time)
	require.True(t, ok)
	assert.True(t, end.IsZero())

	// Parent keys absent: every child falls back to its default
	changes = a.ApplyAndDiff(base())
	assert.ElementsMatch(t,
		[]string{"timestamp_start", "timestamp_end", "party_id", "party_size", "party_max"},
		keys(changes))
	assert.True(t, a.Timestamps.Start.IsZero())
	assert.Equal(t, ActivityParty{}, a.Party)

	assert.Empty(t, a.ApplyAndDiff(base()))
}

func keys(c Changes) []string {
	out := make([]string, 0, len(c))
	for k := range c {
		out = append(out, k)
	}
	return out
}

// toPayload renders the fields the activity tests round-trip
func (a *Activity) toPayload() payload.Payload {
	return payload.Payload{
		"type": int(a.Type), "name": a.Name, "details": a.Details,
		"application_id": id(a.ApplicationID),
		"timestamps":     map[string]any{"start": a.Timestamps.Start.UnixMilli()},
	}
}
