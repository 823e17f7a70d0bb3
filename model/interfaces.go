package model

import (
	"context"
	"time"

	"github.com/bwmarrin/discordgo"
)

// Platform is the subset of the chat gateway/REST API the bot drives.
// Implementations classify refusals as ErrPermissionDenied and missing
// resources as ErrNotFound.
type Platform interface {
	Send(channelID string, msg *discordgo.MessageSend) (*discordgo.Message, error)
	AddReaction(channelID, messageID, emoji string) error
	FetchMessage(channelID, messageID string) (*discordgo.Message, error)
	DeleteMessage(channelID, messageID string) error

	TimeoutMember(guildID, userID string, until *time.Time) error
	InVoice(guildID, userID string) bool
	SetVoiceState(guildID, userID string, mute, deafen bool) error

	GuildRoles(guildID string) ([]*discordgo.Role, error)
	MemberRoles(guildID, userID string) ([]string, error)
	AddRole(guildID, userID, roleID string) error
	RemoveRole(guildID, userID, roleID string) error

	GuildChannels(guildID string) ([]*discordgo.Channel, error)
	SetMemberOverwrite(channelID, userID string, overwrite Overwrite) error
	ClearMemberOverwrite(channelID, userID string) error

	GuildOwnerID(guildID string) (string, error)
}

// IncidentJournal records moderation incidents for auditing.
type IncidentJournal interface {
	Record(ctx context.Context, incident Incident) error
}
