package bot

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"harold-bot/chat"
	"harold-bot/commands"
	"harold-bot/metrics"
	"harold-bot/model"
	"harold-bot/moderation"
	"harold-bot/platform"
	"harold-bot/poll"
	"harold-bot/storage"
	"harold-bot/tasks"
	"harold-bot/utils"

	"github.com/bwmarrin/discordgo"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const shutdownTimeout = 30 * time.Second

// CommandHandler runs one prefix command.
type CommandHandler func(ctx context.Context, b *Bot, msg model.InboundMessage, inv commands.Invocation)

type Bot struct {
	Session  *discordgo.Session
	Platform model.Platform
	Config   *model.Config
	Log      *zap.Logger
	Clock    clockwork.Clock

	Tasks      *tasks.Registry
	Metrics    *metrics.Metrics
	Registry   *prometheus.Registry
	Reporter   *utils.Reporter
	Actuator   *moderation.Actuator
	Dispatcher *moderation.Dispatcher
	Polls      *poll.Engine
	Chat       *chat.Service
	Journal    *storage.Journal

	CommandHandlers map[string]CommandHandler
	StartedAt       time.Time

	metricsServer *http.Server
}

// New connects the Discord session, the incident journal and the metrics
// registry and wires the bot around them. The session is opened by Run.
func New(cfg *model.Config, log *zap.Logger) (*Bot, error) {
	dg, err := discordgo.New("Bot " + cfg.Bot.Token)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentMessageContent |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsGuildMessageReactions
	dg.StateEnabled = true
	// Messages are moderated in arrival order; slow commands detach into tasks.
	dg.SyncEvents = true

	var journal *storage.Journal
	if cfg.Storage.IncidentDB != "" {
		journal, err = storage.Open(cfg.Storage.IncidentDB)
		if err != nil {
			return nil, fmt.Errorf("open incident journal: %w", err)
		}
	}

	b, err := NewCore(cfg, platform.NewDiscord(dg), clockwork.NewRealClock(), log, journal, metrics.NewRegistry())
	if err != nil {
		if journal != nil {
			journal.Close()
		}
		return nil, err
	}
	b.Session = dg
	return b, nil
}

// NewCore wires every component against p. It does not touch the network,
// so tests drive it with an in-memory platform. journal may be nil.
func NewCore(cfg *model.Config, p model.Platform, clock clockwork.Clock, log *zap.Logger, journal *storage.Journal, reg *prometheus.Registry) (*Bot, error) {
	history, err := chat.NewHistory(cfg.Chat.MaxHistory, cfg.Chat.MaxChannels)
	if err != nil {
		return nil, err
	}
	var completer chat.Completer
	if cfg.Chat.APIKey != "" {
		completer = chat.NewClient(cfg.Chat)
	}
	var incidents model.IncidentJournal
	if journal != nil {
		incidents = journal
	}

	m := metrics.New(reg)
	registry := tasks.NewRegistry(context.Background(), clock, log)
	metrics.RegisterTaskGauge(reg, registry.Count)

	reporter := utils.NewReporter(p, cfg.Moderation.ChannelID, clock, log)
	actuator := moderation.NewActuator(p, cfg.Moderation, registry, clock, log)

	b := &Bot{
		Platform:   p,
		Config:     cfg,
		Log:        log,
		Clock:      clock,
		Tasks:      registry,
		Metrics:    m,
		Registry:   reg,
		Reporter:   reporter,
		Actuator:   actuator,
		Dispatcher: moderation.NewDispatcher(cfg.Moderation, p, actuator, reporter, incidents, m, clock, log),
		Polls:      poll.NewEngine(p, registry, clock, m, log),
		Chat:       chat.NewService(completer, history, m, log),
		Journal:    journal,
		StartedAt:  clock.Now(),
	}
	return b, nil
}

// Context is the root context of the bot's background work. It is
// cancelled on Close.
func (b *Bot) Context() context.Context {
	return b.Tasks.Context()
}

// Close drains the background tasks and releases every resource.
func (b *Bot) Close() {
	b.Log.Info("gracefully shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if left := b.Tasks.Shutdown(ctx); len(left) > 0 {
		b.Log.Warn("background tasks abandoned", zap.Int("count", len(left)))
	}
	if b.metricsServer != nil {
		if err := b.metricsServer.Shutdown(ctx); err != nil {
			b.Log.Warn("metrics server shutdown", zap.Error(err))
		}
	}
	if b.Journal != nil {
		if err := b.Journal.Close(); err != nil {
			b.Log.Warn("close incident journal", zap.Error(err))
		}
	}
	if b.Session != nil {
		if err := b.Session.Close(); err != nil {
			b.Log.Warn("close session", zap.Error(err))
		}
	}
	_ = b.Log.Sync()
}
