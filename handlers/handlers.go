package handlers

import (
	"context"

	"harold-bot/bot"
	"harold-bot/commands"
	"harold-bot/model"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

func Register(b *bot.Bot) {
	b.CommandHandlers = commandHandlers()
	addHandlers(b)
}

func addHandlers(b *bot.Bot) {
	b.Session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		b.Log.Info("logged in", zap.String("user", r.User.Username), zap.Int("guilds", len(r.Guilds)))
	})
	b.Session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		HandleMessage(b.Context(), b, inbound(m))
	})
}

// HandleMessage moderates a message and, unless it was punished, runs the
// command it carries.
func HandleMessage(ctx context.Context, b *bot.Bot, msg model.InboundMessage) {
	if b.Dispatcher.Handle(ctx, msg).Punished() {
		return
	}
	if msg.AuthorBot {
		return
	}

	inv, ok := commands.Parse(msg.Content, b.Config.Bot.Prefix)
	if !ok {
		return
	}
	h, ok := b.CommandHandlers[inv.Name]
	if !ok {
		return
	}
	b.Log.Debug("command", zap.String("name", inv.Name), zap.String("user", msg.AuthorID), zap.String("channel", msg.ChannelID))
	h(ctx, b, msg, inv)
}

func inbound(m *discordgo.MessageCreate) model.InboundMessage {
	msg := model.InboundMessage{
		ID:        m.ID,
		GuildID:   m.GuildID,
		ChannelID: m.ChannelID,
		Content:   m.Content,
	}
	if m.Author != nil {
		msg.AuthorID = m.Author.ID
		msg.AuthorBot = m.Author.Bot
		msg.AuthorName = m.Author.Username
		if m.Author.GlobalName != "" {
			msg.AuthorName = m.Author.GlobalName
		}
	}
	if m.Member != nil && m.Member.Nick != "" {
		msg.AuthorName = m.Member.Nick
	}
	msg.IsMember = m.GuildID != "" && m.WebhookID == "" && m.Author != nil
	for _, u := range m.Mentions {
		msg.Mentions = append(msg.Mentions, u.ID)
	}
	return msg
}
