package utils

import (
	"fmt"
	"time"

	"harold-bot/model"

	"github.com/bwmarrin/discordgo"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the process logger.
// level: debug, info, warn, error
// format: json or console
func NewLogger(level, format string) (*zap.Logger, error) {
	atomicLevel := zap.NewAtomicLevel()
	if err := atomicLevel.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", level, err)
	}

	var cfg zap.Config
	switch format {
	case "console":
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	default:
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = atomicLevel

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}

type LogLevel string

const (
	Info  LogLevel = "INFO"
	Warn  LogLevel = "WARN"
	Error LogLevel = "ERROR"
)

func getColor(level LogLevel) int {
	switch level {
	case Info:
		return 3066993 // Green
	case Warn:
		return 15105570 // Orange
	case Error:
		return 15158332 // Red
	default:
		return 3447003 // Blue
	}
}

// Reporter posts operational reports to the moderation channel. When no
// moderation channel is configured the report goes to the channel the
// incident happened in.
type Reporter struct {
	platform  model.Platform
	channelID string
	clock     clockwork.Clock
	log       *zap.Logger
}

func NewReporter(p model.Platform, channelID string, clock clockwork.Clock, log *zap.Logger) *Reporter {
	return &Reporter{platform: p, channelID: channelID, clock: clock, log: log.With(zap.String("module", "reporter"))}
}

func (r *Reporter) send(level LogLevel, fallbackChannelID, module, operation, extraInfo string) {
	if r == nil {
		return
	}
	target := r.channelID
	if target == "" {
		target = fallbackChannelID
	}
	if target == "" {
		r.log.Warn("no channel to report to", zap.String("operation", operation), zap.String("detail", extraInfo))
		return
	}

	embed := &discordgo.MessageEmbed{
		Title: string(level) + " Log",
		Color: getColor(level),
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Module", Value: module},
			{Name: "Operation", Value: operation},
			{Name: "Details", Value: extraInfo},
		},
		Timestamp: r.clock.Now().Format(time.RFC3339),
	}
	if _, err := r.platform.Send(target, &discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{embed}}); err != nil {
		r.log.Warn("failed to post report", zap.String("channel", target), zap.Error(err))
	}
}

func (r *Reporter) Info(fallbackChannelID, module, operation, extraInfo string) {
	r.send(Info, fallbackChannelID, module, operation, extraInfo)
}

func (r *Reporter) Warn(fallbackChannelID, module, operation, extraInfo string) {
	r.send(Warn, fallbackChannelID, module, operation, extraInfo)
}

func (r *Reporter) Error(fallbackChannelID, module, operation, extraInfo string) {
	r.send(Error, fallbackChannelID, module, operation, extraInfo)
}
