package entity

import (
	"slices"
	"time"

	"discord-entity-cache/internal/flags"
	"discord-entity-cache/internal/ordered"
	"discord-entity-cache/internal/payload"

	"github.com/bwmarrin/discordgo"
)

// ChannelMetadata holds the fields that depend on the channel type
type ChannelMetadata interface {
	update(c *Channel, p payload.Payload, d *differ)
	clear()
}

// Ordering groups inside a parent list: text-like first, then voice-like, then categories
const (
	groupText = iota
	groupVoice
	groupCategory
	groupUnknown
)

// channelVariant describes one wire channel type
type channelVariant struct {
	name        string
	group       int
	thread      bool
	private     bool
	messageable bool
	// mask is removed from resolved permissions
	mask flags.Permission
	new  func() ChannelMetadata
}

var (
	textVariant = &channelVariant{
		name: "text", group: groupText, messageable: true, mask: flags.PermissionVoiceOnly,
		new: func() ChannelMetadata { return newTextMetadata() },
	}
	newsVariant = &channelVariant{
		name: "news", group: groupText, messageable: true, mask: flags.PermissionVoiceOnly,
		new: func() ChannelMetadata { return &NewsMetadata{TextMetadata: *newTextMetadata()} },
	}
	voiceVariant = &channelVariant{
		name: "voice", group: groupVoice, mask: flags.PermissionTextOnly,
		new: func() ChannelMetadata { return newVoiceMetadata() },
	}
	stageVariant = &channelVariant{
		name: "stage", group: groupVoice, mask: flags.PermissionTextOnly,
		new: func() ChannelMetadata { return &StageMetadata{VoiceMetadata: *newVoiceMetadata()} },
	}
	categoryVariant = &channelVariant{
		name: "category", group: groupCategory,
		new: func() ChannelMetadata { return &CategoryMetadata{children: ordered.New[*Channel]()} },
	}
	forumVariant = &channelVariant{
		name: "forum", group: groupText, mask: flags.PermissionVoiceOnly,
		new: func() ChannelMetadata { return newForumMetadata() },
	}
	mediaVariant = &channelVariant{
		name: "media", group: groupText, mask: flags.PermissionVoiceOnly,
		new: func() ChannelMetadata { return newForumMetadata() },
	}
	newsThreadVariant = &channelVariant{
		name: "news_thread", thread: true, messageable: true, mask: flags.PermissionVoiceOnly,
		new: func() ChannelMetadata { return newThreadMetadata() },
	}
	publicThreadVariant = &channelVariant{
		name: "public_thread", thread: true, messageable: true, mask: flags.PermissionVoiceOnly,
		new: func() ChannelMetadata { return newThreadMetadata() },
	}
	privateThreadVariant = &channelVariant{
		name: "private_thread", thread: true, messageable: true, mask: flags.PermissionVoiceOnly,
		new: func() ChannelMetadata { return newThreadMetadata() },
	}
	directVariant = &channelVariant{
		name: "direct", private: true, messageable: true,
		new: func() ChannelMetadata { return &DirectMetadata{} },
	}
	groupVariant = &channelVariant{
		name: "group", private: true, messageable: true,
		new: func() ChannelMetadata { return &GroupMetadata{} },
	}

	// unknownChannelVariant absorbs type tags this client does not know yet
	unknownChannelVariant = &channelVariant{
		name: "unknown", group: groupUnknown,
		new: func() ChannelMetadata { return UnknownMetadata{} },
	}
)

// channelVariants is indexed by the wire type; gaps fall back to unknown
var channelVariants = [...]*channelVariant{
	discordgo.ChannelTypeGuildText:          textVariant,
	discordgo.ChannelTypeDM:                 directVariant,
	discordgo.ChannelTypeGuildVoice:         voiceVariant,
	discordgo.ChannelTypeGroupDM:            groupVariant,
	discordgo.ChannelTypeGuildCategory:      categoryVariant,
	discordgo.ChannelTypeGuildNews:          newsVariant,
	discordgo.ChannelTypeGuildNewsThread:    newsThreadVariant,
	discordgo.ChannelTypeGuildPublicThread:  publicThreadVariant,
	discordgo.ChannelTypeGuildPrivateThread: privateThreadVariant,
	discordgo.ChannelTypeGuildStageVoice:    stageVariant,
	discordgo.ChannelTypeGuildForum:         forumVariant,
	16:                                      mediaVariant,
}

func channelVariantOf(t int) *channelVariant {
	if t < 0 || t >= len(channelVariants) || channelVariants[t] == nil {
		return unknownChannelVariant
	}
	return channelVariants[t]
}

// TextMetadata is a guild text channel
type TextMetadata struct {
	Topic                      string
	NSFW                       bool
	Slowmode                   int
	DefaultAutoArchiveDuration int
	DefaultThreadSlowmode      int
	Flags                      flags.ChannelFlag
}

func newTextMetadata() *TextMetadata {
	return &TextMetadata{DefaultAutoArchiveDuration: 1440}
}

func (m *TextMetadata) update(_ *Channel, p payload.Payload, d *differ) {
	set(d, "topic", &m.Topic, p.String("topic", ""))
	set(d, "nsfw", &m.NSFW, p.Bool("nsfw", false))
	set(d, "slowmode", &m.Slowmode, p.Int("rate_limit_per_user", 0))
	set(d, "default_auto_archive_duration", &m.DefaultAutoArchiveDuration, p.Int("default_auto_archive_duration", 1440))
	set(d, "default_thread_slowmode", &m.DefaultThreadSlowmode, p.Int("default_thread_rate_limit_per_user", 0))
	set(d, "flags", &m.Flags, flags.ChannelFlag(p.Bits("flags", 0)))
}

func (m *TextMetadata) clear() {
	*m = TextMetadata{}
}

// NewsMetadata is an announcement channel
type NewsMetadata struct {
	TextMetadata
}

// VoiceMetadata is a guild voice channel
type VoiceMetadata struct {
	Bitrate          int
	UserLimit        int
	Region           *string
	VideoQualityMode int
	NSFW             bool
}

func newVoiceMetadata() *VoiceMetadata {
	return &VoiceMetadata{Bitrate: 64000, VideoQualityMode: 1}
}

func (m *VoiceMetadata) update(_ *Channel, p payload.Payload, d *differ) {
	set(d, "bitrate", &m.Bitrate, p.Int("bitrate", 64000))
	set(d, "user_limit", &m.UserLimit, p.Int("user_limit", 0))
	setNullable(d, "region", &m.Region, p.NullableString("rtc_region", nil))
	set(d, "video_quality_mode", &m.VideoQualityMode, p.Int("video_quality_mode", 1))
	set(d, "nsfw", &m.NSFW, p.Bool("nsfw", false))
}

func (m *VoiceMetadata) clear() {
	*m = VoiceMetadata{}
}

// StageMetadata is a stage channel
type StageMetadata struct {
	VoiceMetadata
	Topic string
}

func (m *StageMetadata) update(c *Channel, p payload.Payload, d *differ) {
	m.VoiceMetadata.update(c, p, d)
	set(d, "topic", &m.Topic, p.String("topic", ""))
}

func (m *StageMetadata) clear() {
	*m = StageMetadata{}
}

// CategoryMetadata owns the ordered list of its children
type CategoryMetadata struct {
	children *ordered.List[*Channel]
}

func (m *CategoryMetadata) update(*Channel, payload.Payload, *differ) {}

func (m *CategoryMetadata) clear() {
	m.children.Clear()
}

// Children returns the channels of the category in display order
func (m *CategoryMetadata) Children() []*Channel {
	return m.children.Items()
}

// ForumMetadata is a forum or media channel; posts are threads
type ForumMetadata struct {
	Topic                      string
	NSFW                       bool
	Slowmode                   int
	DefaultAutoArchiveDuration int
	DefaultThreadSlowmode      int
	DefaultLayout              int
	Flags                      flags.ChannelFlag
}

func newForumMetadata() *ForumMetadata {
	return &ForumMetadata{DefaultAutoArchiveDuration: 1440}
}

func (m *ForumMetadata) update(_ *Channel, p payload.Payload, d *differ) {
	set(d, "topic", &m.Topic, p.String("topic", ""))
	set(d, "nsfw", &m.NSFW, p.Bool("nsfw", false))
	set(d, "slowmode", &m.Slowmode, p.Int("rate_limit_per_user", 0))
	set(d, "default_auto_archive_duration", &m.DefaultAutoArchiveDuration, p.Int("default_auto_archive_duration", 1440))
	set(d, "default_thread_slowmode", &m.DefaultThreadSlowmode, p.Int("default_thread_rate_limit_per_user", 0))
	set(d, "default_layout", &m.DefaultLayout, p.Int("default_forum_layout", 0))
	set(d, "flags", &m.Flags, flags.ChannelFlag(p.Bits("flags", 0)))
}

func (m *ForumMetadata) clear() {
	*m = ForumMetadata{}
}

// ThreadMetadata is a news, public or private thread
type ThreadMetadata struct {
	OwnerID      uint64
	Slowmode     int
	Flags        flags.ChannelFlag
	MessageCount int
	MemberCount  int

	// Decomposed from the thread_metadata sub-object
	Archived            bool
	ArchivedAt          time.Time
	AutoArchiveDuration int
	Locked              bool
	Invitable           bool
}

func newThreadMetadata() *ThreadMetadata {
	return &ThreadMetadata{AutoArchiveDuration: 1440, Invitable: true}
}

func (m *ThreadMetadata) update(_ *Channel, p payload.Payload, d *differ) {
	set(d, "owner_id", &m.OwnerID, p.ID("owner_id"))
	set(d, "slowmode", &m.Slowmode, p.Int("rate_limit_per_user", 0))
	set(d, "flags", &m.Flags, flags.ChannelFlag(p.Bits("flags", 0)))
	// Counts are streamed separately; keep when absent
	set(d, "message_count", &m.MessageCount, p.Int("message_count", m.MessageCount))
	set(d, "member_count", &m.MemberCount, p.Int("member_count", m.MemberCount))

	// Parent absent => every child takes its default
	meta := p.Map("thread_metadata")
	set(d, "archived", &m.Archived, meta.Bool("archived", false))
	setTime(d, "archive_timestamp", &m.ArchivedAt, meta.Time("archive_timestamp"))
	set(d, "auto_archive_duration", &m.AutoArchiveDuration, meta.Int("auto_archive_duration", 1440))
	set(d, "locked", &m.Locked, meta.Bool("locked", false))
	set(d, "invitable", &m.Invitable, meta.Bool("invitable", true))
}

func (m *ThreadMetadata) clear() {
	*m = ThreadMetadata{}
}

// DirectMetadata is a one-to-one private channel. Recipients are owned here.
type DirectMetadata struct {
	Recipients []*User
}

func (m *DirectMetadata) update(c *Channel, p payload.Payload, d *differ) {
	m.updateRecipients(c, p, d)
}

func (m *DirectMetadata) updateRecipients(c *Channel, p payload.Payload, d *differ) {
	list := p.Maps("recipients")
	users := make([]*User, 0, len(list))
	for _, up := range list {
		if u, _, err := c.reg.UserFromPayload(up); err == nil {
			users = append(users, u)
		}
	}

	old := m.RecipientIDs()
	next := make([]uint64, len(users))
	for i, u := range users {
		next[i] = u.id
	}
	if !slices.Equal(old, next) {
		d.record("recipients", old)
	}
	m.Recipients = users
}

// RecipientIDs lists recipients in wire order
func (m *DirectMetadata) RecipientIDs() []uint64 {
	ids := make([]uint64, len(m.Recipients))
	for i, u := range m.Recipients {
		ids[i] = u.id
	}
	return ids
}

// HasRecipient reports whether userID takes part in the conversation
func (m *DirectMetadata) HasRecipient(userID uint64) bool {
	for _, u := range m.Recipients {
		if u.id == userID {
			return true
		}
	}
	return false
}

func (m *DirectMetadata) clear() {
	m.Recipients = nil
}

// GroupMetadata is a group private channel
type GroupMetadata struct {
	DirectMetadata
	OwnerID uint64
	Icon    string
}

func (m *GroupMetadata) update(c *Channel, p payload.Payload, d *differ) {
	m.updateRecipients(c, p, d)
	set(d, "owner_id", &m.OwnerID, p.ID("owner_id"))
	set(d, "icon", &m.Icon, p.String("icon", ""))
}

func (m *GroupMetadata) clear() {
	*m = GroupMetadata{}
}

// UnknownMetadata carries no type-specific fields
type UnknownMetadata struct{}

func (UnknownMetadata) update(*Channel, payload.Payload, *differ) {}
func (UnknownMetadata) clear()                                    {}
