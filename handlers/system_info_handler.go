package handlers

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"time"

	"harold-bot/bot"
	"harold-bot/commands"
	"harold-bot/model"
	"harold-bot/storage"
	"harold-bot/utils"

	"github.com/bwmarrin/discordgo"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"
)

// SystemInfoHandler answers !status with host, runtime and moderation stats.
func SystemInfoHandler(ctx context.Context, b *bot.Bot, msg model.InboundMessage, _ commands.Invocation) {
	if err := utils.ReplyEmbed(b.Platform, msg, statusEmbed(ctx, b)); err != nil {
		b.Log.Warn("failed to send status", zap.Error(err))
	}
}

func statusEmbed(ctx context.Context, b *bot.Bot) *discordgo.MessageEmbed {
	fields := hostFields(ctx)
	fields = append(fields,
		&discordgo.MessageEmbedField{Name: "🐹 Go Version", Value: runtime.Version(), Inline: true},
		&discordgo.MessageEmbedField{Name: "🚀 Goroutines", Value: fmt.Sprintf("%d", runtime.NumGoroutine()), Inline: true},
		&discordgo.MessageEmbedField{Name: "⏱️ Uptime", Value: b.Clock.Since(b.StartedAt).Truncate(time.Second).String(), Inline: true},
	)
	if b.Session != nil {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "📡 WebSocket Latency", Value: b.Session.HeartbeatLatency().String(), Inline: true})
	}
	fields = append(fields,
		&discordgo.MessageEmbedField{Name: "🧵 Background Tasks", Value: formatTaskCounts(b.Tasks.CountByKind()), Inline: true},
		&discordgo.MessageEmbedField{Name: "⛓️ Tracked Punishments", Value: fmt.Sprintf("%d", b.Actuator.PunishedCount()), Inline: true},
		&discordgo.MessageEmbedField{Name: "💬 Conversations", Value: fmt.Sprintf("%d", b.Chat.Channels()), Inline: true},
	)
	if b.Journal != nil {
		value := "unavailable"
		if totals, err := b.Journal.Totals(ctx); err != nil {
			b.Log.Warn("failed to read incident totals", zap.Error(err))
		} else {
			value = formatIncidentTotals(totals)
		}
		fields = append(fields, &discordgo.MessageEmbedField{Name: "📒 Incidents", Value: value})
	}

	return &discordgo.MessageEmbed{
		Title:  "System Information",
		Color:  utils.ColorBlurple,
		Fields: fields,
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("System monitor • %s", b.Clock.Now().Format("15:04")),
		},
	}
}

func hostFields(ctx context.Context) []*discordgo.MessageEmbedField {
	var fields []*discordgo.MessageEmbedField

	if hostInfo, err := host.InfoWithContext(ctx); err == nil {
		fields = append(fields,
			&discordgo.MessageEmbedField{Name: "💻 OS", Value: fmt.Sprintf("%s %s", hostInfo.Platform, hostInfo.PlatformVersion), Inline: true},
			&discordgo.MessageEmbedField{Name: "🔧 Kernel", Value: hostInfo.KernelVersion, Inline: true},
		)
	}
	if cpuCount, err := cpu.CountsWithContext(ctx, true); err == nil {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "🔼 CPUs", Value: fmt.Sprintf("%d", cpuCount), Inline: true})
	}
	if cpuPercent, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(cpuPercent) > 0 {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "🔥 CPU Usage", Value: fmt.Sprintf("%.1f%%", cpuPercent[0]), Inline: true})
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:   "🧠 Memory",
			Value:  fmt.Sprintf("%.1f%% (%d MB / %d MB)", vm.UsedPercent, vm.Used/1024/1024, vm.Total/1024/1024),
			Inline: true,
		})
	}
	return fields
}

func formatTaskCounts(counts map[string]int) string {
	if len(counts) == 0 {
		return "none"
	}
	kinds := make([]string, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	parts := make([]string, len(kinds))
	for i, k := range kinds {
		parts[i] = fmt.Sprintf("%s: %d", k, counts[k])
	}
	return strings.Join(parts, "\n")
}

func formatIncidentTotals(totals []storage.Total) string {
	if len(totals) == 0 {
		return "none"
	}
	parts := make([]string, len(totals))
	for i, t := range totals {
		parts[i] = fmt.Sprintf("%s %s: %d", t.Kind, t.Status, t.Count)
	}
	return strings.Join(parts, "\n")
}
