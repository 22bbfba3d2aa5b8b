package flags

import "iter"

// Permission is a guild / channel permission bitfield
type Permission uint64

const (
	shiftCreateInstantInvite uint = iota
	shiftKickMembers
	shiftBanMembers
	shiftAdministrator
	shiftManageChannels
	shiftManageGuild
	shiftAddReactions
	shiftViewAuditLog
	shiftPrioritySpeaker
	shiftStream
	shiftViewChannel
	shiftSendMessages
	shiftSendTTSMessages
	shiftManageMessages
	shiftEmbedLinks
	shiftAttachFiles
	shiftReadMessageHistory
	shiftMentionEveryone
	shiftUseExternalEmojis
	shiftViewGuildInsights
	shiftConnect
	shiftSpeak
	shiftMuteMembers
	shiftDeafenMembers
	shiftMoveMembers
	shiftUseVAD
	shiftChangeNickname
	shiftManageNicknames
	shiftManageRoles
	shiftManageWebhooks
	shiftManageEmojis
	shiftUseApplicationCommands
	shiftRequestToSpeak
	shiftManageEvents
	shiftManageThreads
	shiftCreatePublicThreads
	shiftCreatePrivateThreads
	shiftUseExternalStickers
	shiftSendMessagesInThreads
	shiftUseEmbeddedActivities
	shiftModerateMembers
)

var PermissionLayout = Layout{
	{"create_instant_invite", shiftCreateInstantInvite},
	{"kick_members", shiftKickMembers},
	{"ban_members", shiftBanMembers},
	{"administrator", shiftAdministrator},
	{"manage_channels", shiftManageChannels},
	{"manage_guild", shiftManageGuild},
	{"add_reactions", shiftAddReactions},
	{"view_audit_log", shiftViewAuditLog},
	{"priority_speaker", shiftPrioritySpeaker},
	{"stream", shiftStream},
	{"view_channel", shiftViewChannel},
	{"send_messages", shiftSendMessages},
	{"send_tts_messages", shiftSendTTSMessages},
	{"manage_messages", shiftManageMessages},
	{"embed_links", shiftEmbedLinks},
	{"attach_files", shiftAttachFiles},
	{"read_message_history", shiftReadMessageHistory},
	{"mention_everyone", shiftMentionEveryone},
	{"use_external_emojis", shiftUseExternalEmojis},
	{"view_guild_insights", shiftViewGuildInsights},
	{"connect", shiftConnect},
	{"speak", shiftSpeak},
	{"mute_members", shiftMuteMembers},
	{"deafen_members", shiftDeafenMembers},
	{"move_members", shiftMoveMembers},
	{"use_vad", shiftUseVAD},
	{"change_nickname", shiftChangeNickname},
	{"manage_nicknames", shiftManageNicknames},
	{"manage_roles", shiftManageRoles},
	{"manage_webhooks", shiftManageWebhooks},
	{"manage_emojis", shiftManageEmojis},
	{"use_application_commands", shiftUseApplicationCommands},
	{"request_to_speak", shiftRequestToSpeak},
	{"manage_events", shiftManageEvents},
	{"manage_threads", shiftManageThreads},
	{"create_public_threads", shiftCreatePublicThreads},
	{"create_private_threads", shiftCreatePrivateThreads},
	{"use_external_stickers", shiftUseExternalStickers},
	{"send_messages_in_threads", shiftSendMessagesInThreads},
	{"use_embedded_activities", shiftUseEmbeddedActivities},
	{"moderate_members", shiftModerateMembers},
}

const (
	PermissionAdministrator      Permission = 1 << shiftAdministrator
	PermissionViewChannel        Permission = 1 << shiftViewChannel
	PermissionSendMessages       Permission = 1 << shiftSendMessages
	PermissionReadMessageHistory Permission = 1 << shiftReadMessageHistory
	PermissionConnect            Permission = 1 << shiftConnect
	PermissionSpeak              Permission = 1 << shiftSpeak
	PermissionManageRoles        Permission = 1 << shiftManageRoles
	PermissionManageChannels     Permission = 1 << shiftManageChannels

	// PermissionAll is every named permission bit
	PermissionAll Permission = 1<<(shiftModerateMembers+1) - 1
)

var (
	// PermissionTextOnly are bits meaningless outside text-capable channels
	PermissionTextOnly = Permission(FromNames(PermissionLayout,
		"send_messages", "send_tts_messages", "manage_messages", "embed_links",
		"attach_files", "read_message_history", "mention_everyone", "use_external_emojis",
		"use_application_commands", "manage_threads", "create_public_threads",
		"create_private_threads", "use_external_stickers", "send_messages_in_threads",
	))

	// PermissionVoiceOnly are bits meaningless outside voice-capable channels
	PermissionVoiceOnly = Permission(FromNames(PermissionLayout,
		"priority_speaker", "stream", "connect", "speak", "mute_members", "deafen_members",
		"move_members", "use_vad", "request_to_speak", "use_embedded_activities",
	))

	// PermissionPrivate is what a recipient holds in a direct or group channel
	PermissionPrivate = Permission(FromNames(PermissionLayout,
		"add_reactions", "view_channel", "send_messages", "send_tts_messages",
		"embed_links", "attach_files", "read_message_history", "mention_everyone",
		"use_external_emojis", "connect", "speak", "stream", "use_vad",
		"use_application_commands", "use_external_stickers", "use_embedded_activities",
	))
)

// Has reports whether every bit of other is set
func (p Permission) Has(other Permission) bool { return p&other == other }

func (p Permission) Union(other Permission) Permission   { return p | other }
func (p Permission) Without(other Permission) Permission { return p &^ other }

// Names yields set bit names in ascending bit order
func (p Permission) Names() iter.Seq[string] { return names(p, PermissionLayout) }
func (p Permission) String() string          { return format("Permission", p, PermissionLayout) }

func (p Permission) CreateInstantInvite() bool    { return has(p, shiftCreateInstantInvite) }
func (p Permission) KickMembers() bool            { return has(p, shiftKickMembers) }
func (p Permission) BanMembers() bool             { return has(p, shiftBanMembers) }
func (p Permission) Administrator() bool          { return has(p, shiftAdministrator) }
func (p Permission) ManageChannels() bool         { return has(p, shiftManageChannels) }
func (p Permission) ManageGuild() bool            { return has(p, shiftManageGuild) }
func (p Permission) AddReactions() bool           { return has(p, shiftAddReactions) }
func (p Permission) ViewAuditLog() bool           { return has(p, shiftViewAuditLog) }
func (p Permission) PrioritySpeaker() bool        { return has(p, shiftPrioritySpeaker) }
func (p Permission) Stream() bool                 { return has(p, shiftStream) }
func (p Permission) ViewChannel() bool            { return has(p, shiftViewChannel) }
func (p Permission) SendMessages() bool           { return has(p, shiftSendMessages) }
func (p Permission) SendTTSMessages() bool        { return has(p, shiftSendTTSMessages) }
func (p Permission) ManageMessages() bool         { return has(p, shiftManageMessages) }
func (p Permission) EmbedLinks() bool             { return has(p, shiftEmbedLinks) }
func (p Permission) AttachFiles() bool            { return has(p, shiftAttachFiles) }
func (p Permission) ReadMessageHistory() bool     { return has(p, shiftReadMessageHistory) }
func (p Permission) MentionEveryone() bool        { return has(p, shiftMentionEveryone) }
func (p Permission) UseExternalEmojis() bool      { return has(p, shiftUseExternalEmojis) }
func (p Permission) ViewGuildInsights() bool      { return has(p, shiftViewGuildInsights) }
func (p Permission) Connect() bool                { return has(p, shiftConnect) }
func (p Permission) Speak() bool                  { return has(p, shiftSpeak) }
func (p Permission) MuteMembers() bool            { return has(p, shiftMuteMembers) }
func (p Permission) DeafenMembers() bool          { return has(p, shiftDeafenMembers) }
func (p Permission) MoveMembers() bool            { return has(p, shiftMoveMembers) }
func (p Permission) UseVAD() bool                 { return has(p, shiftUseVAD) }
func (p Permission) ChangeNickname() bool         { return has(p, shiftChangeNickname) }
func (p Permission) ManageNicknames() bool        { return has(p, shiftManageNicknames) }
func (p Permission) ManageRoles() bool            { return has(p, shiftManageRoles) }
func (p Permission) ManageWebhooks() bool         { return has(p, shiftManageWebhooks) }
func (p Permission) ManageEmojis() bool           { return has(p, shiftManageEmojis) }
func (p Permission) UseApplicationCommands() bool { return has(p, shiftUseApplicationCommands) }
func (p Permission) RequestToSpeak() bool         { return has(p, shiftRequestToSpeak) }
func (p Permission) ManageEvents() bool           { return has(p, shiftManageEvents) }
func (p Permission) ManageThreads() bool          { return has(p, shiftManageThreads) }
func (p Permission) CreatePublicThreads() bool    { return has(p, shiftCreatePublicThreads) }
func (p Permission) CreatePrivateThreads() bool   { return has(p, shiftCreatePrivateThreads) }
func (p Permission) UseExternalStickers() bool    { return has(p, shiftUseExternalStickers) }
func (p Permission) SendMessagesInThreads() bool  { return has(p, shiftSendMessagesInThreads) }
func (p Permission) UseEmbeddedActivities() bool  { return has(p, shiftUseEmbeddedActivities) }
func (p Permission) ModerateMembers() bool        { return has(p, shiftModerateMembers) }
