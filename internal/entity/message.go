package entity

import (
	"strconv"
	"time"

	"discord-entity-cache/internal/flags"
	"discord-entity-cache/internal/payload"

	"github.com/bwmarrin/discordgo"
)

// simpleMessageKeys covers id, type, channel_id, guild_id, author, member,
// content, flags, pinned, tts, timestamp and mention_everyone
const simpleMessageKeys = 12

// messageVariant describes one wire message type
type messageVariant struct {
	name   string
	system bool
	// limit is the payload size a message without extras can hold
	limit int
}

var unknownMessageVariant = &messageVariant{name: "unknown", limit: simpleMessageKeys}

// messageTypes is indexed by discordgo.MessageType; gaps fall back to unknown
var messageTypes = [...]*messageVariant{
	discordgo.MessageTypeDefault:              {name: "default", limit: simpleMessageKeys},
	1:                                         {name: "recipient_add", system: true, limit: simpleMessageKeys},
	2:                                         {name: "recipient_remove", system: true, limit: simpleMessageKeys},
	3:                                         {name: "call", system: true, limit: simpleMessageKeys},
	4:                                         {name: "channel_name_change", system: true, limit: simpleMessageKeys},
	5:                                         {name: "channel_icon_change", system: true, limit: simpleMessageKeys},
	discordgo.MessageTypeChannelPinnedMessage: {name: "channel_pinned_message", system: true, limit: simpleMessageKeys},
	discordgo.MessageTypeGuildMemberJoin:      {name: "guild_member_join", system: true, limit: simpleMessageKeys},
	8:                                         {name: "guild_boost", system: true, limit: simpleMessageKeys},
	9:                                         {name: "guild_boost_tier_1", system: true, limit: simpleMessageKeys},
	10:                                        {name: "guild_boost_tier_2", system: true, limit: simpleMessageKeys},
	11:                                        {name: "guild_boost_tier_3", system: true, limit: simpleMessageKeys},
	12:                                        {name: "channel_follow_add", system: true, limit: simpleMessageKeys},
	14:                                        {name: "guild_discovery_disqualified", system: true, limit: simpleMessageKeys},
	15:                                        {name: "guild_discovery_requalified", system: true, limit: simpleMessageKeys},
	18:                                        {name: "thread_created", system: true, limit: simpleMessageKeys},
	discordgo.MessageTypeReply:                {name: "reply", limit: simpleMessageKeys},
	discordgo.MessageTypeChatInputCommand:     {name: "chat_input_command", limit: simpleMessageKeys},
	21:                                        {name: "thread_starter_message", system: true, limit: simpleMessageKeys},
	22:                                        {name: "guild_invite_reminder", system: true, limit: simpleMessageKeys},
	23:                                        {name: "context_menu_command", limit: simpleMessageKeys},
	24:                                        {name: "auto_moderation_action", system: true, limit: simpleMessageKeys},
}

func messageVariantOf(t int) *messageVariant {
	if t < 0 || t >= len(messageTypes) || messageTypes[t] == nil {
		return unknownMessageVariant
	}
	return messageTypes[t]
}

// richMessageKeys are stored only once a message carries extras
var richMessageKeys = []string{
	"edited_timestamp", "mentions", "mention_roles", "mention_channels", "attachments",
	"embeds", "referenced_message", "message_reference", "nonce", "webhook_id",
	"application_id", "thread",
}

// messageExtra holds the fields most messages leave empty
type messageExtra struct {
	editedAt        *time.Time
	mentions        []uint64
	mentionRoles    []uint64
	mentionChannels []uint64
	attachments     int
	embeds          int
	nonce           *string
	webhookID       uint64
	applicationID   uint64
	threadID        uint64
	referencedID    uint64
	referenced      *Message
}

// Message is a chat message.
//
// Edits arrive as partial objects, so every field keeps its current value when
// its key is absent.
type Message struct {
	id        uint64
	reg       *Registry
	variant   *messageVariant
	channelID uint64
	guildID   uint64
	author    *User

	Type            discordgo.MessageType
	Content         string
	Flags           flags.MessageFlag
	Pinned          bool
	TTS             bool
	MentionEveryone bool

	extra   *messageExtra
	deleted bool
}

func newMessage(r *Registry, id uint64) *Message {
	return &Message{id: id, reg: r, variant: messageVariantOf(0)}
}

func (m *Message) ID() uint64 {
	return m.id
}

func (m *Message) ChannelID() uint64 {
	return m.channelID
}

func (m *Message) GuildID() uint64 {
	return m.guildID
}

func (m *Message) Channel() *Channel {
	if m.channelID == 0 {
		return nil
	}
	return m.reg.Channels.Get(m.channelID)
}

func (m *Message) Guild() *Guild {
	if m.guildID == 0 {
		return nil
	}
	return m.reg.Guilds.Get(m.guildID)
}

func (m *Message) Author() *User {
	return m.author
}

// Kind names the type variant (default, reply, ..., unknown)
func (m *Message) Kind() string {
	return m.variant.name
}

// System reports whether the message is generated by Discord
func (m *Message) System() bool {
	return m.variant.system
}

// Rich reports whether the message stores extras
func (m *Message) Rich() bool {
	return m.extra != nil
}

// Partial reports whether only the id is known
func (m *Message) Partial() bool {
	return m.channelID == 0
}

func (m *Message) Deleted() bool {
	return m.deleted
}

func (m *Message) EditedAt() *time.Time {
	if m.extra == nil {
		return nil
	}
	return m.extra.editedAt
}

func (m *Message) Mentions() []uint64 {
	if m.extra == nil {
		return nil
	}
	return m.extra.mentions
}

func (m *Message) MentionRoles() []uint64 {
	if m.extra == nil {
		return nil
	}
	return m.extra.mentionRoles
}

func (m *Message) MentionChannels() []uint64 {
	if m.extra == nil {
		return nil
	}
	return m.extra.mentionChannels
}

func (m *Message) Attachments() int {
	if m.extra == nil {
		return 0
	}
	return m.extra.attachments
}

func (m *Message) Embeds() int {
	if m.extra == nil {
		return 0
	}
	return m.extra.embeds
}

func (m *Message) Nonce() *string {
	if m.extra == nil {
		return nil
	}
	return m.extra.nonce
}

func (m *Message) WebhookID() uint64 {
	if m.extra == nil {
		return 0
	}
	return m.extra.webhookID
}

func (m *Message) ApplicationID() uint64 {
	if m.extra == nil {
		return 0
	}
	return m.extra.applicationID
}

func (m *Message) ThreadID() uint64 {
	if m.extra == nil {
		return 0
	}
	return m.extra.threadID
}

// ReferencedID is the replied-to message id, zero when none
func (m *Message) ReferencedID() uint64 {
	if m.extra == nil {
		return 0
	}
	return m.extra.referencedID
}

// Referenced resolves the replied-to message, if it is still known
func (m *Message) Referenced() *Message {
	if m.extra == nil {
		return nil
	}
	if m.extra.referenced != nil {
		return m.extra.referenced
	}
	if m.extra.referencedID == 0 {
		return nil
	}
	return m.reg.Messages.Get(m.extra.referencedID)
}

func (m *Message) initialize(p payload.Payload) {
	m.channelID = p.ID("channel_id")
	m.guildID = p.ID("guild_id")
	m.Type = discordgo.MessageType(p.Int("type", 0))
	m.variant = messageVariantOf(int(m.Type))
	if ap := p.Map("author"); ap != nil {
		m.author, _, _ = m.reg.UserFromPayload(ap)
	}
	m.update(p, nil)

	if m.extra == nil {
		return
	}
	m.extra.referencedID = p.Map("message_reference").ID("message_id")
	if rp := p.Map("referenced_message"); rp != nil {
		// Constructed through the registry; may recurse into this function
		if ref, _, err := m.reg.MessageFromPayload(rp); err == nil {
			m.extra.referenced = ref
			m.extra.referencedID = ref.id
		}
	}
}

// ApplySilently overwrites the message from a fetched payload
func (m *Message) ApplySilently(p payload.Payload) error {
	if m.deleted {
		return ErrDeleted
	}
	m.update(p, nil)
	return nil
}

// ApplyAndDiff applies MESSAGE_UPDATE and returns the old values of changed fields
func (m *Message) ApplyAndDiff(p payload.Payload) (Changes, error) {
	if m.deleted {
		return nil, ErrDeleted
	}
	d := newDiffer()
	m.update(p, d)
	return d.result(), nil
}

func (m *Message) update(p payload.Payload, d *differ) {
	set(d, "content", &m.Content, p.String("content", m.Content))
	set(d, "flags", &m.Flags, flags.MessageFlag(p.Bits("flags", uint64(m.Flags))))
	set(d, "pinned", &m.Pinned, p.Bool("pinned", m.Pinned))
	set(d, "tts", &m.TTS, p.Bool("tts", m.TTS))
	set(d, "mention_everyone", &m.MentionEveryone, p.Bool("mention_everyone", m.MentionEveryone))

	if m.extra == nil {
		if !m.needsExtra(p) {
			return
		}
		m.extra = &messageExtra{}
	}

	e := m.extra
	setNullableTime(d, "edited_at", &e.editedAt, p.NullableTime("edited_timestamp", e.editedAt))
	setSlice(d, "mentions", &e.mentions, objectIDsOr(p, "mentions", e.mentions))
	setSlice(d, "mention_roles", &e.mentionRoles, idsOr(p, "mention_roles", e.mentionRoles))
	setSlice(d, "mention_channels", &e.mentionChannels, objectIDsOr(p, "mention_channels", e.mentionChannels))
	set(d, "attachments", &e.attachments, lenOr(p, "attachments", e.attachments))
	set(d, "embeds", &e.embeds, lenOr(p, "embeds", e.embeds))
	setNullable(d, "nonce", &e.nonce, nonceOr(p, e.nonce))
	set(d, "webhook_id", &e.webhookID, idOr(p, "webhook_id", e.webhookID))
	set(d, "application_id", &e.applicationID, idOr(p, "application_id", e.applicationID))
	if p.Has("thread") {
		set(d, "thread_id", &e.threadID, p.Map("thread").ID("id"))
	}
}

// needsExtra applies the size-limit upgrade, and also upgrades when a small
// payload still carries extra data that would otherwise be lost
func (m *Message) needsExtra(p payload.Payload) bool {
	if p.Len() > m.variant.limit {
		return true
	}
	for _, key := range richMessageKeys {
		switch v := p[key].(type) {
		case nil:
		case []any:
			if len(v) > 0 {
				return true
			}
		default:
			return true
		}
	}
	return false
}

// delete unregisters the message and leaves an inert shell
func (m *Message) delete() {
	if m.deleted {
		return
	}
	if m.reg.Messages.Get(m.id) == m {
		m.reg.Messages.Remove(m.id)
	}
	m.channelID = 0
	m.guildID = 0
	m.author = nil
	m.extra = nil
	m.Content = ""
	m.deleted = true
}

// Delete unregisters the message. Channels drop it through RemoveMessage.
func (m *Message) Delete() {
	m.delete()
}

func idOr(p payload.Payload, key string, def uint64) uint64 {
	if !p.Has(key) {
		return def
	}
	return p.ID(key)
}

func idsOr(p payload.Payload, key string, def []uint64) []uint64 {
	if !p.Has(key) {
		return def
	}
	return p.IDs(key)
}

// objectIDsOr collects the id of every object in a list
func objectIDsOr(p payload.Payload, key string, def []uint64) []uint64 {
	if !p.Has(key) {
		return def
	}
	list := p.Maps(key)
	ids := make([]uint64, 0, len(list))
	for _, o := range list {
		if id := o.ID("id"); id != 0 {
			ids = append(ids, id)
		}
	}
	return ids
}

func lenOr(p payload.Payload, key string, def int) int {
	if !p.Has(key) {
		return def
	}
	return len(p.List(key))
}

// nonceOr accepts string and integer nonces
func nonceOr(p payload.Payload, def *string) *string {
	if !p.Has("nonce") {
		return def
	}
	if s := p.NullableString("nonce", nil); s != nil {
		return s
	}
	if n, ok := p.Int64("nonce"); ok {
		s := strconv.FormatInt(n, 10)
		return &s
	}
	return nil
}

func (r *Registry) message(id uint64) (*Message, bool) {
	return r.Messages.GetOrCreate(id, func() *Message {
		return newMessage(r, id)
	})
}

// MessageFromPayload creates a message or completes a partial one. An already
// known message is returned untouched; the caller decides whether to diff it.
func (r *Registry) MessageFromPayload(p payload.Payload) (*Message, bool, error) {
	id := p.ID("id")
	if id == 0 {
		return nil, false, ErrMissingID
	}

	var built bool
	m, created := r.Messages.GetOrCreate(id, func() *Message {
		built = true
		msg := newMessage(r, id)
		msg.initialize(p)
		return msg
	})
	if created || !m.Partial() {
		return m, created, nil
	}
	if built {
		// Lost the race against a reentrant construction of the same id
		return m, false, nil
	}

	m.initialize(p)
	return m, true, nil
}

// PrecreateMessage registers a placeholder message
func (r *Registry) PrecreateMessage(id uint64, p payload.Payload) *Message {
	m, created := r.message(id)
	if created {
		m.update(p, nil)
	}
	return m
}
