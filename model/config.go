package model

import "time"

// ModerationConfig holds the fixed moderation policy supplied at start.
type ModerationConfig struct {
	ChannelID      string        `mapstructure:"channel_id"`
	MsgLimit       int           `mapstructure:"msg_limit"`
	Window         time.Duration `mapstructure:"window"`
	Timeout        time.Duration `mapstructure:"timeout"`
	PenaltyRole    string        `mapstructure:"penalty_role"`
	ExileRole      string        `mapstructure:"exile_role"`
	AppealChannels []string      `mapstructure:"appeal_channels"`
	BannedTerms    []string      `mapstructure:"banned_terms"`
}

// ChatConfig configures the conversational completion collaborator.
type ChatConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	Endpoint    string  `mapstructure:"endpoint"`
	Model       string  `mapstructure:"model"`
	Temperature float64 `mapstructure:"temperature"`
	MaxHistory  int     `mapstructure:"max_history"`
	MaxChannels int     `mapstructure:"max_channels"`
}

type BotConfig struct {
	Token  string `mapstructure:"token"`
	Prefix string `mapstructure:"prefix"`
}

type StorageConfig struct {
	IncidentDB string `mapstructure:"incident_db"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Config holds the process configuration. It is immutable after Load.
type Config struct {
	Bot        BotConfig        `mapstructure:"bot"`
	Moderation ModerationConfig `mapstructure:"moderation"`
	Chat       ChatConfig       `mapstructure:"chat"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Log        LogConfig        `mapstructure:"log"`
}
