package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"harold-bot/bot"
	"harold-bot/chat"
	"harold-bot/commands"
	"harold-bot/model"
	"harold-bot/moderation"
	"harold-bot/poll"
	"harold-bot/utils"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TaskKindChat labels detached completion requests.
const TaskKindChat = "chat"

const maxEmbedDescription = 4096

func commandHandlers() map[string]bot.CommandHandler {
	return map[string]bot.CommandHandler{
		"poll":     handlePoll,
		"unexhile": handleUnexhile,
		"gpt":      handleGPT,
		"clear":    handleClear,
		"hello":    handleHello,
		"status":   SystemInfoHandler,
		"help":     handleHelp,
	}
}

func replyUsage(b *bot.Bot, msg model.InboundMessage, name string) {
	def, _ := commands.Lookup(name)
	if err := utils.Reply(b.Platform, msg, def.UsageText(b.Config.Bot.Prefix)); err != nil {
		b.Log.Warn("failed to send usage", zap.String("command", name), zap.Error(err))
	}
}

func reply(b *bot.Bot, msg model.InboundMessage, content string) {
	if err := utils.Reply(b.Platform, msg, content); err != nil {
		b.Log.Warn("failed to reply", zap.String("channel", msg.ChannelID), zap.Error(err))
	}
}

func handleHello(_ context.Context, b *bot.Bot, msg model.InboundMessage, _ commands.Invocation) {
	if err := utils.SendText(b.Platform, msg.ChannelID, fmt.Sprintf("Hello, %s!", msg.AuthorName)); err != nil {
		b.Log.Warn("failed to greet", zap.Error(err))
	}
}

func handleHelp(_ context.Context, b *bot.Bot, msg model.InboundMessage, _ commands.Invocation) {
	if err := utils.ReplyEmbed(b.Platform, msg, commands.HelpEmbed(b.Config.Bot.Prefix)); err != nil {
		b.Log.Warn("failed to send help", zap.Error(err))
	}
}

func handlePoll(ctx context.Context, b *bot.Bot, msg model.InboundMessage, inv commands.Invocation) {
	if len(inv.Args) < 2 {
		replyUsage(b, msg, "poll")
		return
	}

	_, err := b.Polls.Start(ctx, poll.Request{
		GuildID:     msg.GuildID,
		ChannelID:   msg.ChannelID,
		CreatorID:   msg.AuthorID,
		CreatorName: msg.AuthorName,
		Duration:    inv.Args[0],
		Question:    inv.Args[1],
		Options:     inv.Args[2:],
	})
	var verr *poll.ValidationError
	switch {
	case err == nil:
	case errors.As(err, &verr):
		reply(b, msg, verr.Msg)
	default:
		b.Log.Error("failed to start poll", zap.String("channel", msg.ChannelID), zap.Error(err))
		if err := utils.SendErrorReply(b.Platform, msg, "Could not create the poll."); err != nil {
			b.Log.Warn("failed to reply", zap.Error(err))
		}
	}
}

func handleUnexhile(ctx context.Context, b *bot.Bot, msg model.InboundMessage, inv commands.Invocation) {
	if msg.GuildID == "" {
		return
	}
	isOwner, err := utils.IsGuildOwner(b.Platform, msg.GuildID, msg.AuthorID)
	if err != nil {
		b.Log.Warn("failed to resolve guild owner", zap.String("guild", msg.GuildID), zap.Error(err))
	}
	if !isOwner {
		reply(b, msg, "Only the server owner can use this command.")
		return
	}

	target, ok := "", false
	if len(inv.Args) > 0 {
		target, ok = utils.ParseMemberRef(inv.Args[0])
	}
	if !ok {
		replyUsage(b, msg, "unexhile")
		return
	}

	out := b.Actuator.ReverseContentPunishment(ctx, msg.GuildID, target)
	b.Metrics.ObservePunishment(string(out.Kind), string(out.Status))
	journalReversal(ctx, b, msg, target, out)

	for _, line := range moderation.Describe(out, b.Config.Moderation) {
		reply(b, msg, line)
	}
	mention := "<@" + target + ">"
	if out.Status == model.StatusSkipped && len(out.Failures) == 0 {
		reply(b, msg, mention+" is not exhiled.")
		return
	}
	reply(b, msg, mention+" has been unexhiled and access has been restored.")
	if history := recentIncidents(ctx, b, msg.GuildID, target); history != "" {
		reply(b, msg, history)
	}
}

const incidentHistoryLimit = 5

// recentIncidents renders the latest journaled incidents of a member, or ""
// when there is no journal or nothing recorded.
func recentIncidents(ctx context.Context, b *bot.Bot, guildID, userID string) string {
	if b.Journal == nil {
		return ""
	}
	incidents, err := b.Journal.ForMember(ctx, guildID, userID, incidentHistoryLimit)
	if err != nil {
		b.Log.Warn("failed to read member incidents", zap.String("user", userID), zap.Error(err))
		return ""
	}
	if len(incidents) == 0 {
		return ""
	}
	lines := make([]string, 0, len(incidents)+1)
	lines = append(lines, fmt.Sprintf("Recent incidents for <@%s>:", userID))
	for _, inc := range incidents {
		lines = append(lines, fmt.Sprintf("• %s (%s) <t:%d:R>", inc.Kind, inc.Status, inc.CreatedAt))
	}
	return strings.Join(lines, "\n")
}

func journalReversal(ctx context.Context, b *bot.Bot, msg model.InboundMessage, target string, out model.Outcome) {
	if b.Journal == nil {
		return
	}
	err := b.Journal.Record(ctx, model.Incident{
		ID:        uuid.NewString(),
		GuildID:   msg.GuildID,
		ChannelID: msg.ChannelID,
		UserID:    target,
		Kind:      string(out.Kind),
		Status:    string(out.Status),
		Detail:    fmt.Sprintf("by=%s %s", msg.AuthorID, out),
		CreatedAt: b.Clock.Now().Unix(),
	})
	if err != nil {
		b.Log.Warn("failed to journal reversal", zap.Error(err))
	}
}

func handleGPT(_ context.Context, b *bot.Bot, msg model.InboundMessage, inv commands.Invocation) {
	if inv.Rest == "" {
		replyUsage(b, msg, "gpt")
		return
	}
	b.Tasks.Go(TaskKindChat, msg.ChannelID, func(ctx context.Context) {
		answer, err := b.Chat.Ask(ctx, msg.ChannelID, inv.Rest)
		if err != nil {
			reply(b, msg, chatErrorText(err))
			return
		}
		if err := utils.ReplyEmbed(b.Platform, msg, &discordgo.MessageEmbed{
			Title:       "Harold says:",
			Description: truncate(answer, maxEmbedDescription),
		}); err != nil {
			b.Log.Warn("failed to send answer", zap.Error(err))
		}
	})
}

func chatErrorText(err error) string {
	var apiErr *chat.APIError
	switch {
	case errors.Is(err, chat.ErrNotConfigured):
		return "OpenAI API key is not set. Please configure it."
	case errors.As(err, &apiErr):
		return truncate(apiErr.Error(), 2000)
	case errors.Is(err, chat.ErrNoChoices):
		return "No valid response received from the API."
	default:
		return truncate("An error occurred: "+err.Error(), 2000)
	}
}

func handleClear(_ context.Context, b *bot.Bot, msg model.InboundMessage, _ commands.Invocation) {
	b.Chat.Clear(msg.ChannelID)
	reply(b, msg, "Conversation history cleared!")
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-1]) + "…"
}
