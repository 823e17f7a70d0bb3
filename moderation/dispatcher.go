package moderation

import (
	"context"
	"fmt"
	"time"

	"harold-bot/metrics"
	"harold-bot/model"
	"harold-bot/utils"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Punisher is the part of the Actuator the dispatcher drives.
type Punisher interface {
	ApplyRatePunishment(ctx context.Context, guildID, userID string) model.Outcome
	ApplyContentPunishment(ctx context.Context, guildID, channelID, messageID, userID string) model.Outcome
}

// Verdict is what the dispatcher decided for one message.
type Verdict int

const (
	VerdictNone Verdict = iota
	VerdictIgnored
	VerdictRatePunished
	VerdictContentPunished
)

func (v Verdict) String() string {
	switch v {
	case VerdictIgnored:
		return "ignored"
	case VerdictRatePunished:
		return "rate-punished"
	case VerdictContentPunished:
		return "content-punished"
	default:
		return "none"
	}
}

// Punished reports whether the message triggered a punishment. Command
// processing stops for such messages.
func (v Verdict) Punished() bool {
	return v == VerdictRatePunished || v == VerdictContentPunished
}

// Dispatcher runs the per-message moderation pipeline: rate check first,
// content check second, at most one punishment per message.
type Dispatcher struct {
	cfg      model.ModerationConfig
	rate     *RateWindowTracker
	filter   *ContentFilter
	punisher Punisher
	platform model.Platform
	reporter *utils.Reporter
	journal  model.IncidentJournal
	metrics  *metrics.Metrics
	clock    clockwork.Clock
	log      *zap.Logger
}

// NewDispatcher wires the pipeline. journal and m may be nil.
func NewDispatcher(
	cfg model.ModerationConfig,
	p model.Platform,
	punisher Punisher,
	reporter *utils.Reporter,
	journal model.IncidentJournal,
	m *metrics.Metrics,
	clock clockwork.Clock,
	log *zap.Logger,
) *Dispatcher {
	return &Dispatcher{
		cfg:      cfg,
		rate:     NewRateWindowTracker(cfg.Window),
		filter:   NewContentFilter(cfg.BannedTerms),
		punisher: punisher,
		platform: p,
		reporter: reporter,
		journal:  journal,
		metrics:  m,
		clock:    clock,
		log:      log.With(zap.String("module", "dispatcher")),
	}
}

// Tracker exposes the rate window, mainly for status reporting.
func (d *Dispatcher) Tracker() *RateWindowTracker {
	return d.rate
}

// Handle evaluates one inbound message.
func (d *Dispatcher) Handle(ctx context.Context, msg model.InboundMessage) Verdict {
	if msg.AuthorBot || !msg.IsMember {
		return VerdictIgnored
	}

	if n := d.rate.Record(msg.AuthorID, d.clock.Now()); n >= d.cfg.MsgLimit {
		d.rate.Reset(msg.AuthorID)
		out := d.punisher.ApplyRatePunishment(ctx, msg.GuildID, msg.AuthorID)
		d.conclude(ctx, msg, out, "", fmt.Sprintf("%s has been timed out for %s for spamming.",
			msg.Mention(), humanDuration(d.cfg.Timeout)))
		return VerdictRatePunished
	}

	if term := d.filter.Match(msg.Content); term != "" {
		out := d.punisher.ApplyContentPunishment(ctx, msg.GuildID, msg.ChannelID, msg.ID, msg.AuthorID)
		d.conclude(ctx, msg, out, term, fmt.Sprintf("%s has been exhiled for using inappropriate language.", msg.Mention()))
		return VerdictContentPunished
	}

	return VerdictNone
}

func (d *Dispatcher) conclude(ctx context.Context, msg model.InboundMessage, out model.Outcome, term, announcement string) {
	log := d.log.With(zap.String("guild", msg.GuildID), zap.String("user", msg.AuthorID),
		zap.String("kind", string(out.Kind)), zap.Stringer("outcome", out))
	if term != "" {
		log = log.With(zap.String("term", term))
	}
	log.Info("member punished")

	d.metrics.ObservePunishment(string(out.Kind), string(out.Status))

	for _, line := range Describe(out, d.cfg) {
		d.reporter.Warn(msg.ChannelID, "moderation", string(out.Kind)+" punishment", line)
	}

	if ctx.Err() == nil {
		if err := utils.SendText(d.platform, msg.ChannelID, announcement); err != nil {
			log.Warn("failed to announce punishment", zap.Error(err))
		}
	}

	d.journalize(ctx, msg, out, term)
}

func (d *Dispatcher) journalize(ctx context.Context, msg model.InboundMessage, out model.Outcome, term string) {
	if d.journal == nil {
		return
	}
	detail := out.String()
	if term != "" {
		detail = fmt.Sprintf("term=%q %s", term, detail)
	}
	incident := model.Incident{
		ID:        uuid.NewString(),
		GuildID:   msg.GuildID,
		ChannelID: msg.ChannelID,
		UserID:    msg.AuthorID,
		Kind:      string(out.Kind),
		Status:    string(out.Status),
		Detail:    detail,
		CreatedAt: d.clock.Now().Unix(),
	}
	if err := d.journal.Record(ctx, incident); err != nil {
		d.log.Warn("failed to journal incident", zap.String("incident", incident.ID), zap.Error(err))
	}
}

func humanDuration(d time.Duration) string {
	switch {
	case d >= time.Minute && d%time.Minute == 0:
		n := int(d / time.Minute)
		if n == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", n)
	default:
		return d.String()
	}
}
