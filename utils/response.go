package utils

import (
	"harold-bot/model"

	"github.com/bwmarrin/discordgo"
)

// SendText posts a plain message to a channel.
func SendText(p model.Platform, channelID, content string) error {
	_, err := p.Send(channelID, &discordgo.MessageSend{Content: content})
	return err
}

// Reply answers a message, quoting it.
func Reply(p model.Platform, msg model.InboundMessage, content string) error {
	_, err := p.Send(msg.ChannelID, &discordgo.MessageSend{
		Content:   content,
		Reference: replyTo(msg),
	})
	return err
}

// ReplyEmbed answers a message with an embed.
func ReplyEmbed(p model.Platform, msg model.InboundMessage, embed *discordgo.MessageEmbed) error {
	_, err := p.Send(msg.ChannelID, &discordgo.MessageSend{
		Embeds:    []*discordgo.MessageEmbed{embed},
		Reference: replyTo(msg),
	})
	return err
}

// SendErrorReply answers a message with an error marker.
func SendErrorReply(p model.Platform, msg model.InboundMessage, content string) error {
	return Reply(p, msg, "❌ "+content)
}

func replyTo(msg model.InboundMessage) *discordgo.MessageReference {
	if msg.ID == "" {
		return nil
	}
	return &discordgo.MessageReference{
		MessageID: msg.ID,
		ChannelID: msg.ChannelID,
		GuildID:   msg.GuildID,
	}
}
