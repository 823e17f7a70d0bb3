package commands

import (
	"fmt"
	"strings"

	"harold-bot/utils"

	"github.com/bwmarrin/discordgo"
)

// Definition describes one prefix command for help output.
type Definition struct {
	Name        string
	Usage       string
	Description string
	OwnerOnly   bool
}

var definitions = []Definition{
	{
		Name:        "poll",
		Usage:       `poll <duration> "question" "option1" "option2" ...`,
		Description: "Create a timed poll. Durations: 5m, 15m, 30m, 1h, 1d. Provide 2-10 options.",
	},
	{
		Name:        "unexhile",
		Usage:       "unexhile @member",
		Description: "Unmute, undeafen, remove the exile role and restore channel access.",
		OwnerOnly:   true,
	},
	{
		Name:        "gpt",
		Usage:       "gpt <prompt>",
		Description: "Chat with Harold. Conversation history is kept per channel.",
	},
	{
		Name:        "clear",
		Usage:       "clear",
		Description: "Clear the conversation history for this channel.",
	},
	{
		Name:        "hello",
		Usage:       "hello",
		Description: "Say hello.",
	},
	{
		Name:        "status",
		Usage:       "status",
		Description: "Show host, runtime and moderation statistics.",
	},
	{
		Name:        "help",
		Usage:       "help",
		Description: "List the available commands.",
	},
}

// Definitions returns every command, in help order.
func Definitions() []Definition {
	return append([]Definition(nil), definitions...)
}

func Lookup(name string) (Definition, bool) {
	for _, d := range definitions {
		if d.Name == name {
			return d, true
		}
	}
	return Definition{}, false
}

// UsageText renders the usage line of a command with the prefix.
func (d Definition) UsageText(prefix string) string {
	return "Usage: " + prefix + d.Usage
}

// HelpEmbed lists every command.
func HelpEmbed(prefix string) *discordgo.MessageEmbed {
	lines := make([]string, 0, len(definitions))
	for _, d := range definitions {
		line := fmt.Sprintf("`%s%s`\n%s", prefix, d.Usage, d.Description)
		if d.OwnerOnly {
			line += " (server owner only)"
		}
		lines = append(lines, line)
	}
	return &discordgo.MessageEmbed{
		Title:       "Harold commands",
		Description: strings.Join(lines, "\n\n"),
		Color:       utils.ColorBlurple,
	}
}
