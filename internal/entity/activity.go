package entity

import (
	"strconv"
	"time"

	"discord-entity-cache/internal/flags"
	"discord-entity-cache/internal/payload"

	"github.com/bwmarrin/discordgo"
)

// activityVariant selects which fields an activity stores
type activityVariant struct {
	name   string
	custom bool
	rich   bool
	// limit is the largest payload the variant can hold without losing data
	limit int
}

var (
	simpleActivity  = &activityVariant{name: "simple", limit: 4}
	customActivity  = &activityVariant{name: "custom", custom: true, limit: 6}
	richActivity    = &activityVariant{name: "rich", custom: true, rich: true, limit: -1}
	unknownActivity = &activityVariant{name: "unknown", limit: 4}
)

// activityVariants is indexed by discordgo.ActivityType
var activityVariants = [...]*activityVariant{
	discordgo.ActivityTypeGame:      simpleActivity,
	discordgo.ActivityTypeStreaming: simpleActivity,
	discordgo.ActivityTypeListening: simpleActivity,
	discordgo.ActivityTypeWatching:  simpleActivity,
	discordgo.ActivityTypeCustom:    customActivity,
	discordgo.ActivityTypeCompeting: simpleActivity,
}

// activityVariantOf dispatches on the type tag, upgrading to the rich variant
// when the payload carries more keys than the minimal variant holds
func activityVariantOf(p payload.Payload) *activityVariant {
	t := p.Int("type", 0)
	v := unknownActivity
	if t >= 0 && t < len(activityVariants) && activityVariants[t] != nil {
		v = activityVariants[t]
	}
	if v.limit >= 0 && p.Len() > v.limit {
		return richActivity
	}
	return v
}

type ActivityTimestamps struct {
	Start time.Time
	End   time.Time
}

type ActivityParty struct {
	ID   string
	Size int
	Max  int
}

type ActivityAssets struct {
	LargeImage string
	LargeText  string
	SmallImage string
	SmallText  string
}

type ActivitySecrets struct {
	Join     string
	Spectate string
	Match    string
}

// Activity is one entry of a user's presence.
// Every field resets to its default when absent; nested objects reset every
// child when the parent key is missing.
type Activity struct {
	variant *activityVariant

	Type      discordgo.ActivityType
	Name      string
	URL       string
	CreatedAt time.Time

	// Custom and rich
	State *string
	Emoji string

	// Rich only
	Details       string
	ApplicationID uint64
	Flags         flags.ActivityFlag
	SyncID        string
	SessionID     string
	Timestamps    ActivityTimestamps
	Party         ActivityParty
	Assets        ActivityAssets
	Secrets       ActivitySecrets
}

// NewActivity constructs the variant the payload calls for
func NewActivity(p payload.Payload) *Activity {
	a := &Activity{variant: activityVariantOf(p)}
	a.update(p, nil)
	return a
}

// Kind names the variant (simple, custom, rich, unknown)
func (a *Activity) Kind() string {
	return a.variant.name
}

func (a *Activity) Rich() bool {
	return a.variant.rich
}

// key identifies an activity across presence updates
func (a *Activity) key() string {
	return activityKey(int(a.Type), a.Name, a.ApplicationID)
}

func activityKeyOf(p payload.Payload) string {
	return activityKey(p.Int("type", 0), p.String("name", ""), p.ID("application_id"))
}

func activityKey(t int, name string, appID uint64) string {
	return strconv.Itoa(t) + ":" + strconv.FormatUint(appID, 10) + ":" + name
}

func (a *Activity) ApplySilently(p payload.Payload) {
	a.upgrade(p)
	a.update(p, nil)
}

// ApplyAndDiff applies an activity payload; nested objects are diffed per child
// under keys like "timestamp_start" and "party_size".
func (a *Activity) ApplyAndDiff(p payload.Payload) Changes {
	a.upgrade(p)
	d := newDiffer()
	a.update(p, d)
	return d.result()
}

// upgrade never downgrades; a rich activity keeps storing every field
func (a *Activity) upgrade(p payload.Payload) {
	if !a.variant.rich && activityVariantOf(p).rich {
		a.variant = richActivity
	}
}

func (a *Activity) update(p payload.Payload, d *differ) {
	set(d, "type", &a.Type, discordgo.ActivityType(p.Int("type", 0)))
	set(d, "name", &a.Name, p.String("name", ""))
	set(d, "url", &a.URL, p.String("url", ""))
	setTime(d, "created_at", &a.CreatedAt, millis(p, "created_at"))

	if a.variant.custom {
		setNullable(d, "state", &a.State, p.NullableString("state", nil))
		set(d, "emoji", &a.Emoji, p.Map("emoji").String("name", ""))
	}
	if !a.variant.rich {
		return
	}

	set(d, "details", &a.Details, p.String("details", ""))
	set(d, "application_id", &a.ApplicationID, p.ID("application_id"))
	set(d, "flags", &a.Flags, flags.ActivityFlag(p.Bits("flags", 0)))
	set(d, "sync_id", &a.SyncID, p.String("sync_id", ""))
	set(d, "session_id", &a.SessionID, p.String("session_id", ""))

	ts := p.Map("timestamps")
	setTime(d, "timestamp_start", &a.Timestamps.Start, millis(ts, "start"))
	setTime(d, "timestamp_end", &a.Timestamps.End, millis(ts, "end"))

	party := p.Map("party")
	set(d, "party_id", &a.Party.ID, party.String("id", ""))
	size, limit := partySize(party)
	set(d, "party_size", &a.Party.Size, size)
	set(d, "party_max", &a.Party.Max, limit)

	assets := p.Map("assets")
	set(d, "asset_large_image", &a.Assets.LargeImage, assets.String("large_image", ""))
	set(d, "asset_large_text", &a.Assets.LargeText, assets.String("large_text", ""))
	set(d, "asset_small_image", &a.Assets.SmallImage, assets.String("small_image", ""))
	set(d, "asset_small_text", &a.Assets.SmallText, assets.String("small_text", ""))

	secrets := p.Map("secrets")
	set(d, "secret_join", &a.Secrets.Join, secrets.String("join", ""))
	set(d, "secret_spectate", &a.Secrets.Spectate, secrets.String("spectate", ""))
	set(d, "secret_match", &a.Secrets.Match, secrets.String("match", ""))
}

// millis reads a unix millisecond timestamp
func millis(p payload.Payload, key string) time.Time {
	ms, ok := p.Int64(key)
	if !ok || ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// partySize decodes the [current, max] pair
func partySize(party payload.Payload) (int, int) {
	list := party.List("size")
	if len(list) != 2 {
		return 0, 0
	}
	pair := payload.Payload{"size": list[0], "max": list[1]}
	return pair.Int("size", 0), pair.Int("max", 0)
}
