package flags

import "iter"

// ActivityFlag describes what a rich presence activity supports
type ActivityFlag uint64

var ActivityFlagLayout = Layout{
	{"instance", 0},
	{"join", 1},
	{"spectate", 2},
	{"join_request", 3},
	{"sync", 4},
	{"play", 5},
	{"party_privacy_friends", 6},
	{"party_privacy_voice_channel", 7},
	{"embedded", 8},
}

func (f ActivityFlag) Names() iter.Seq[string]               { return names(f, ActivityFlagLayout) }
func (f ActivityFlag) String() string                        { return format("ActivityFlag", f, ActivityFlagLayout) }
func (f ActivityFlag) Union(other ActivityFlag) ActivityFlag { return f | other }
func (f ActivityFlag) Without(other ActivityFlag) ActivityFlag {
	return f &^ other
}
func (f ActivityFlag) Instance() bool    { return has(f, 0) }
func (f ActivityFlag) Join() bool        { return has(f, 1) }
func (f ActivityFlag) Spectate() bool    { return has(f, 2) }
func (f ActivityFlag) JoinRequest() bool { return has(f, 3) }
func (f ActivityFlag) Sync() bool        { return has(f, 4) }
func (f ActivityFlag) Play() bool        { return has(f, 5) }
func (f ActivityFlag) Embedded() bool    { return has(f, 8) }

// MessageFlag carries per-message state bits
type MessageFlag uint64

var MessageFlagLayout = Layout{
	{"crossposted", 0},
	{"is_crosspost", 1},
	{"suppress_embeds", 2},
	{"source_message_deleted", 3},
	{"urgent", 4},
	{"has_thread", 5},
	{"ephemeral", 6},
	{"loading", 7},
	{"failed_to_mention_roles_in_thread", 8},
	{"suppress_notifications", 12},
	{"is_voice_message", 13},
}

func (f MessageFlag) Names() iter.Seq[string]             { return names(f, MessageFlagLayout) }
func (f MessageFlag) String() string                      { return format("MessageFlag", f, MessageFlagLayout) }
func (f MessageFlag) Union(other MessageFlag) MessageFlag { return f | other }
func (f MessageFlag) Without(other MessageFlag) MessageFlag {
	return f &^ other
}
func (f MessageFlag) Crossposted() bool           { return has(f, 0) }
func (f MessageFlag) IsCrosspost() bool           { return has(f, 1) }
func (f MessageFlag) SuppressEmbeds() bool        { return has(f, 2) }
func (f MessageFlag) SourceMessageDeleted() bool  { return has(f, 3) }
func (f MessageFlag) Urgent() bool                { return has(f, 4) }
func (f MessageFlag) HasThread() bool             { return has(f, 5) }
func (f MessageFlag) Ephemeral() bool             { return has(f, 6) }
func (f MessageFlag) Loading() bool               { return has(f, 7) }
func (f MessageFlag) SuppressNotifications() bool { return has(f, 12) }
func (f MessageFlag) IsVoiceMessage() bool        { return has(f, 13) }

// SystemChannelFlag holds the guild's system channel suppression bits.
// The positive accessors read the inverse: Welcome() is true unless join
// notifications are suppressed.
type SystemChannelFlag uint64

var SystemChannelFlagLayout = Layout{
	{"suppress_join_notifications", 0},
	{"suppress_premium_subscriptions", 1},
	{"suppress_guild_reminder_notifications", 2},
	{"suppress_join_notification_replies", 3},
}

func (f SystemChannelFlag) Names() iter.Seq[string] { return names(f, SystemChannelFlagLayout) }
func (f SystemChannelFlag) String() string {
	return format("SystemChannelFlag", f, SystemChannelFlagLayout)
}
func (f SystemChannelFlag) Union(other SystemChannelFlag) SystemChannelFlag   { return f | other }
func (f SystemChannelFlag) Without(other SystemChannelFlag) SystemChannelFlag { return f &^ other }
func (f SystemChannelFlag) Welcome() bool                                     { return !has(f, 0) }
func (f SystemChannelFlag) Boost() bool                                       { return !has(f, 1) }
func (f SystemChannelFlag) SetupTips() bool                                   { return !has(f, 2) }
func (f SystemChannelFlag) JoinReplies() bool                                 { return !has(f, 3) }

// UserFlag is the public badge set of a user
type UserFlag uint64

var UserFlagLayout = Layout{
	{"staff", 0},
	{"partner", 1},
	{"hypesquad", 2},
	{"bug_hunter_level_1", 3},
	{"hypesquad_bravery", 6},
	{"hypesquad_brilliance", 7},
	{"hypesquad_balance", 8},
	{"early_supporter", 9},
	{"team_user", 10},
	{"bug_hunter_level_2", 14},
	{"verified_bot", 16},
	{"verified_developer", 17},
	{"certified_moderator", 18},
	{"bot_http_interactions", 19},
	{"active_developer", 22},
}

func (f UserFlag) Names() iter.Seq[string]       { return names(f, UserFlagLayout) }
func (f UserFlag) String() string                { return format("UserFlag", f, UserFlagLayout) }
func (f UserFlag) Union(other UserFlag) UserFlag { return f | other }
func (f UserFlag) Without(other UserFlag) UserFlag {
	return f &^ other
}
func (f UserFlag) Staff() bool       { return has(f, 0) }
func (f UserFlag) Partner() bool     { return has(f, 1) }
func (f UserFlag) VerifiedBot() bool { return has(f, 16) }

// ChannelFlag carries per-channel state bits
type ChannelFlag uint64

var ChannelFlagLayout = Layout{
	{"pinned", 1},
	{"require_tag", 4},
	{"hide_media_download_options", 15},
}

func (f ChannelFlag) Names() iter.Seq[string]             { return names(f, ChannelFlagLayout) }
func (f ChannelFlag) String() string                      { return format("ChannelFlag", f, ChannelFlagLayout) }
func (f ChannelFlag) Union(other ChannelFlag) ChannelFlag { return f | other }
func (f ChannelFlag) Without(other ChannelFlag) ChannelFlag {
	return f &^ other
}
func (f ChannelFlag) Pinned() bool     { return has(f, 1) }
func (f ChannelFlag) RequireTag() bool { return has(f, 4) }

// RoleFlag carries per-role state bits
type RoleFlag uint64

var RoleFlagLayout = Layout{
	{"in_prompt", 0},
}

func (f RoleFlag) Names() iter.Seq[string] { return names(f, RoleFlagLayout) }
func (f RoleFlag) String() string          { return format("RoleFlag", f, RoleFlagLayout) }
func (f RoleFlag) InPrompt() bool          { return has(f, 0) }
