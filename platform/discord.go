// Package platform adapts a discordgo session to model.Platform.
package platform

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"harold-bot/model"

	"github.com/bwmarrin/discordgo"
)

// Discord drives the Discord REST API and reads voice state from the
// session state cache.
type Discord struct {
	s *discordgo.Session
}

func NewDiscord(s *discordgo.Session) *Discord {
	return &Discord{s: s}
}

// Classify maps Discord REST failures onto the model sentinels so callers can
// use errors.Is. Unrecognised errors are returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) {
		return err
	}
	if restErr.Message != nil {
		switch restErr.Message.Code {
		case discordgo.ErrCodeMissingPermissions, discordgo.ErrCodeMissingAccess:
			return fmt.Errorf("%w: %w", model.ErrPermissionDenied, err)
		case discordgo.ErrCodeUnknownMessage, discordgo.ErrCodeUnknownChannel,
			discordgo.ErrCodeUnknownMember, discordgo.ErrCodeUnknownRole,
			discordgo.ErrCodeUnknownUser, discordgo.ErrCodeUnknownGuild:
			return fmt.Errorf("%w: %w", model.ErrNotFound, err)
		}
	}
	if restErr.Response != nil {
		switch restErr.Response.StatusCode {
		case http.StatusForbidden:
			return fmt.Errorf("%w: %w", model.ErrPermissionDenied, err)
		case http.StatusNotFound:
			return fmt.Errorf("%w: %w", model.ErrNotFound, err)
		}
	}
	return err
}

func (d *Discord) Send(channelID string, msg *discordgo.MessageSend) (*discordgo.Message, error) {
	m, err := d.s.ChannelMessageSendComplex(channelID, msg)
	return m, Classify(err)
}

func (d *Discord) AddReaction(channelID, messageID, emoji string) error {
	return Classify(d.s.MessageReactionAdd(channelID, messageID, emoji))
}

func (d *Discord) FetchMessage(channelID, messageID string) (*discordgo.Message, error) {
	m, err := d.s.ChannelMessage(channelID, messageID)
	return m, Classify(err)
}

func (d *Discord) DeleteMessage(channelID, messageID string) error {
	return Classify(d.s.ChannelMessageDelete(channelID, messageID))
}

func (d *Discord) TimeoutMember(guildID, userID string, until *time.Time) error {
	return Classify(d.s.GuildMemberTimeout(guildID, userID, until))
}

func (d *Discord) InVoice(guildID, userID string) bool {
	if d.s.State == nil {
		return false
	}
	vs, err := d.s.State.VoiceState(guildID, userID)
	return err == nil && vs != nil && vs.ChannelID != ""
}

func (d *Discord) SetVoiceState(guildID, userID string, mute, deafen bool) error {
	_, err := d.s.GuildMemberEdit(guildID, userID, &discordgo.GuildMemberParams{
		Mute: &mute,
		Deaf: &deafen,
	})
	return Classify(err)
}

func (d *Discord) GuildRoles(guildID string) ([]*discordgo.Role, error) {
	roles, err := d.s.GuildRoles(guildID)
	return roles, Classify(err)
}

func (d *Discord) MemberRoles(guildID, userID string) ([]string, error) {
	m, err := d.s.GuildMember(guildID, userID)
	if err != nil {
		return nil, Classify(err)
	}
	return m.Roles, nil
}

func (d *Discord) AddRole(guildID, userID, roleID string) error {
	return Classify(d.s.GuildMemberRoleAdd(guildID, userID, roleID))
}

func (d *Discord) RemoveRole(guildID, userID, roleID string) error {
	return Classify(d.s.GuildMemberRoleRemove(guildID, userID, roleID))
}

func (d *Discord) GuildChannels(guildID string) ([]*discordgo.Channel, error) {
	chs, err := d.s.GuildChannels(guildID)
	return chs, Classify(err)
}

func (d *Discord) SetMemberOverwrite(channelID, userID string, overwrite model.Overwrite) error {
	return Classify(d.s.ChannelPermissionSet(channelID, userID, discordgo.PermissionOverwriteTypeMember, overwrite.Allow, overwrite.Deny))
}

func (d *Discord) ClearMemberOverwrite(channelID, userID string) error {
	return Classify(d.s.ChannelPermissionDelete(channelID, userID))
}

func (d *Discord) GuildOwnerID(guildID string) (string, error) {
	if d.s.State != nil {
		if g, err := d.s.State.Guild(guildID); err == nil && g.OwnerID != "" {
			return g.OwnerID, nil
		}
	}
	g, err := d.s.Guild(guildID)
	if err != nil {
		return "", Classify(err)
	}
	return g.OwnerID, nil
}

var _ model.Platform = (*Discord)(nil)
