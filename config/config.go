package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"harold-bot/model"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	bootstrapLogger     *zap.Logger
	bootstrapLoggerOnce sync.Once
)

// Load loads the configuration from .env, an optional config.yaml and
// environment variables. Nested keys map to upper-case variables, e.g.
// moderation.msg_limit reads MODERATION_MSG_LIMIT.
func Load() (*model.Config, error) {
	if err := godotenv.Load(); err != nil {
		logBootstrap(".env file not found, relying on environment variables")
	}
	return load(newViper(".", "./config", "./data"))
}

func newViper(paths ...string) *viper.Viper {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Legacy variable names for the secrets.
	_ = v.BindEnv("bot.token", "BOT_TOKEN", "DISCORD_TOKEN")
	_ = v.BindEnv("chat.api_key", "CHAT_API_KEY", "OPEN_AI_KEY")

	setDefaults(v)
	return v
}

func load(v *viper.Viper) (*model.Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg model.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the settings the bot cannot start without.
func Validate(c *model.Config) error {
	var errs []error
	if c.Bot.Token == "" {
		errs = append(errs, errors.New("BOT_TOKEN environment variable not set"))
	}
	if c.Bot.Prefix == "" {
		errs = append(errs, errors.New("bot.prefix must not be empty"))
	}
	if c.Moderation.MsgLimit < 1 {
		errs = append(errs, fmt.Errorf("moderation.msg_limit must be at least 1, got %d", c.Moderation.MsgLimit))
	}
	if c.Moderation.Window <= 0 {
		errs = append(errs, errors.New("moderation.window must be positive"))
	}
	if c.Moderation.Timeout <= 0 {
		errs = append(errs, errors.New("moderation.timeout must be positive"))
	}
	if c.Moderation.PenaltyRole == "" || c.Moderation.ExileRole == "" {
		errs = append(errs, errors.New("moderation role names must not be empty"))
	}
	if c.Chat.MaxHistory < 1 || c.Chat.MaxChannels < 1 {
		errs = append(errs, errors.New("chat.max_history and chat.max_channels must be at least 1"))
	}
	return errors.Join(errs...)
}

func setDefaults(v *viper.Viper) {
	// Bot
	v.SetDefault("bot.token", "")
	v.SetDefault("bot.prefix", "!")

	// Moderation
	v.SetDefault("moderation.channel_id", "")
	v.SetDefault("moderation.msg_limit", 5)
	v.SetDefault("moderation.window", "5s")
	v.SetDefault("moderation.timeout", "5m")
	v.SetDefault("moderation.penalty_role", "timeout due to spamming messages")
	v.SetDefault("moderation.exile_role", "exhiled")
	v.SetDefault("moderation.appeal_channels", []string{"court", "court-text"})
	v.SetDefault("moderation.banned_terms", []string{"badword1", "nonoword"})

	// Chat
	v.SetDefault("chat.api_key", "")
	v.SetDefault("chat.endpoint", "https://api.openai.com/v1/chat/completions")
	v.SetDefault("chat.model", "gpt-4o-mini")
	v.SetDefault("chat.temperature", 0.9)
	v.SetDefault("chat.max_history", 20)
	v.SetDefault("chat.max_channels", 1000)

	// Storage
	v.SetDefault("storage.incident_db", "data/incidents.db")

	// Metrics
	v.SetDefault("metrics.addr", "")

	// Logging
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

func logBootstrap(msg string, fields ...zap.Field) {
	bootstrapLoggerOnce.Do(func() {
		l, err := zap.NewProduction()
		if err != nil {
			bootstrapLogger = zap.NewNop()
			return
		}
		bootstrapLogger = l
	})
	bootstrapLogger.Info(msg, fields...)
}
