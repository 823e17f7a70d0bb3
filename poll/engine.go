// Package poll runs timed reaction polls.
package poll

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"harold-bot/metrics"
	"harold-bot/model"
	"harold-bot/tasks"
	"harold-bot/utils"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// TaskKind labels poll tasks in the registry.
const TaskKind = "poll"

const (
	MinOptions = 2
	MaxOptions = 10

	// ReminderLead is how long before closing the reminder goes out. Polls
	// not longer than this get no reminder.
	ReminderLead = 5 * time.Minute
)

// Duration is one of the allowed poll lengths.
type Duration struct {
	Key    string
	Label  string
	Length time.Duration
}

var Durations = []Duration{
	{Key: "5m", Label: "5 minutes", Length: 5 * time.Minute},
	{Key: "15m", Label: "15 minutes", Length: 15 * time.Minute},
	{Key: "30m", Label: "30 minutes", Length: 30 * time.Minute},
	{Key: "1h", Label: "1 hour", Length: time.Hour},
	{Key: "1d", Label: "1 day", Length: 24 * time.Hour},
}

// NumberEmojis are the reaction symbols bound to options, in order.
var NumberEmojis = []string{
	"1\u20e3", "2\u20e3", "3\u20e3", "4\u20e3", "5\u20e3",
	"6\u20e3", "7\u20e3", "8\u20e3", "9\u20e3", "\U0001f51f",
}

// LookupDuration finds a duration by key, ignoring case.
func LookupDuration(key string) (Duration, bool) {
	key = strings.ToLower(key)
	for _, d := range Durations {
		if d.Key == key {
			return d, true
		}
	}
	return Duration{}, false
}

func durationKeys() string {
	keys := make([]string, len(Durations))
	for i, d := range Durations {
		keys[i] = d.Key
	}
	return strings.Join(keys, ", ")
}

// ValidationError is a rejected poll request. Its message is meant for the
// requesting user.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

var ErrShuttingDown = errors.New("poll engine is shutting down")

// Request is a poll creation request as parsed from a command.
type Request struct {
	GuildID     string
	ChannelID   string
	CreatorID   string
	CreatorName string
	Duration    string
	Question    string
	Options     []string
}

// Spec is a validated Request.
type Spec struct {
	ChannelID   string
	CreatorName string
	Question    string
	Options     []string
	Duration    Duration
}

// Validate checks the duration and option count.
func Validate(req Request) (Spec, error) {
	d, ok := LookupDuration(req.Duration)
	if !ok {
		return Spec{}, &ValidationError{Msg: "Invalid duration. Choose one of: " + durationKeys()}
	}
	if len(req.Options) < MinOptions {
		return Spec{}, &ValidationError{Msg: "You need at least 2 options. Wrap each option in quotes."}
	}
	if len(req.Options) > MaxOptions {
		return Spec{}, &ValidationError{Msg: "You can have at most 10 options."}
	}
	return Spec{
		ChannelID:   req.ChannelID,
		CreatorName: req.CreatorName,
		Question:    req.Question,
		Options:     append([]string(nil), req.Options...),
		Duration:    d,
	}, nil
}

type Phase string

const (
	PhaseCreated     Phase = "created"
	PhaseRunning     Phase = "running"
	PhaseReminderDue Phase = "reminder-due"
	PhaseClosing     Phase = "closing"
	PhaseReported    Phase = "reported"
	PhaseAborted     Phase = "aborted"
)

// Poll is a running poll.
type Poll struct {
	ID        string
	Spec      Spec
	MessageID string
	CreatedAt time.Time

	mu    sync.Mutex
	phase Phase
}

func (p *Poll) Phase() Phase {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.phase
}

// Result is the final vote count of one option.
type Result struct {
	Option string
	Votes  int
}

// Engine creates polls and runs each one as a detached task.
type Engine struct {
	platform model.Platform
	tasks    *tasks.Registry
	clock    clockwork.Clock
	metrics  *metrics.Metrics
	log      *zap.Logger
}

func NewEngine(p model.Platform, reg *tasks.Registry, clock clockwork.Clock, m *metrics.Metrics, log *zap.Logger) *Engine {
	return &Engine{
		platform: p,
		tasks:    reg,
		clock:    clock,
		metrics:  m,
		log:      log.With(zap.String("module", "poll")),
	}
}

// Start validates the request, posts the poll with one reaction per option
// and schedules the reminder and the closing. It returns as soon as the
// poll is posted.
func (e *Engine) Start(ctx context.Context, req Request) (*Poll, error) {
	spec, err := Validate(req)
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil || e.tasks.Context().Err() != nil {
		return nil, ErrShuttingDown
	}

	p := &Poll{ID: uuid.NewString(), Spec: spec, CreatedAt: e.clock.Now()}
	e.setPhase(p, PhaseCreated)

	msg, err := e.platform.Send(spec.ChannelID, &discordgo.MessageSend{
		Content: "@everyone 📊 **New poll!**",
		Embeds:  []*discordgo.MessageEmbed{pollEmbed(spec)},
	})
	if err != nil {
		return nil, fmt.Errorf("post poll: %w", err)
	}
	p.MessageID = msg.ID

	for i := range spec.Options {
		if err := e.platform.AddReaction(spec.ChannelID, msg.ID, NumberEmojis[i]); err != nil {
			e.log.Warn("failed to add poll reaction", zap.String("poll", p.ID), zap.String("emoji", NumberEmojis[i]), zap.Error(err))
		}
	}

	if id := e.tasks.Go(TaskKind, spec.Question, func(ctx context.Context) { e.run(ctx, p) }); id == "" {
		e.setPhase(p, PhaseAborted)
		return nil, ErrShuttingDown
	}
	return p, nil
}

func (e *Engine) run(ctx context.Context, p *Poll) {
	e.setPhase(p, PhaseRunning)
	length := p.Spec.Duration.Length

	if length > ReminderLead {
		if !e.sleep(ctx, length-ReminderLead) {
			return
		}
		e.setPhase(p, PhaseReminderDue)
		reminder := fmt.Sprintf("@everyone ⏰ **There are five minutes left to answer the poll: \"%s\"!**", p.Spec.Question)
		if err := utils.SendText(e.platform, p.Spec.ChannelID, reminder); err != nil {
			e.log.Warn("failed to send poll reminder", zap.String("poll", p.ID), zap.Error(err))
		}
		if !e.sleep(ctx, ReminderLead) {
			return
		}
	} else if !e.sleep(ctx, length) {
		return
	}

	e.setPhase(p, PhaseClosing)
	msg, err := e.platform.FetchMessage(p.Spec.ChannelID, p.MessageID)
	if err != nil {
		if !errors.Is(err, model.ErrNotFound) {
			e.log.Error("failed to fetch poll message", zap.String("poll", p.ID), zap.Error(err))
		}
		e.setPhase(p, PhaseAborted)
		return
	}

	results := Tally(p.Spec.Options, msg)
	if _, err := e.platform.Send(p.Spec.ChannelID, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{resultsEmbed(p.Spec, results)},
	}); err != nil {
		e.log.Error("failed to post poll results", zap.String("poll", p.ID), zap.Error(err))
		e.setPhase(p, PhaseAborted)
		return
	}
	e.setPhase(p, PhaseReported)
}

// sleep waits on the clock and reports false if ctx ended first.
func (e *Engine) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-e.clock.After(d):
		return true
	}
}

func (e *Engine) setPhase(p *Poll, phase Phase) {
	p.mu.Lock()
	p.phase = phase
	p.mu.Unlock()

	e.metrics.ObservePollPhase(string(phase))
	e.log.Debug("poll phase", zap.String("poll", p.ID), zap.String("question", p.Spec.Question), zap.String("phase", string(phase)))
}

// Tally counts the votes per option from the reactions on msg, not counting
// the bot's own reaction. Options are ordered by votes, most first; ties
// keep their original order.
func Tally(options []string, msg *discordgo.Message) []Result {
	counts := make(map[string]int, len(msg.Reactions))
	for _, r := range msg.Reactions {
		if r.Emoji != nil {
			counts[r.Emoji.Name] = r.Count
		}
	}

	results := make([]Result, len(options))
	for i, opt := range options {
		votes := 0
		if n, ok := counts[NumberEmojis[i]]; ok && n > 1 {
			votes = n - 1
		}
		results[i] = Result{Option: opt, Votes: votes}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Votes > results[j].Votes
	})
	return results
}

// FormatResults renders one line per option.
func FormatResults(results []Result) string {
	lines := make([]string, len(results))
	for i, r := range results {
		noun := "votes"
		if r.Votes == 1 {
			noun = "vote"
		}
		lines[i] = fmt.Sprintf("**%s** — %d %s", r.Option, r.Votes, noun)
	}
	return strings.Join(lines, "\n")
}

func pollEmbed(spec Spec) *discordgo.MessageEmbed {
	lines := make([]string, len(spec.Options))
	for i, opt := range spec.Options {
		lines[i] = NumberEmojis[i] + "  " + opt
	}
	return &discordgo.MessageEmbed{
		Title:       "📊  " + spec.Question,
		Description: strings.Join(lines, "\n"),
		Color:       utils.ColorBlurple,
		Footer:      &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("Poll by %s • Ends in %s", spec.CreatorName, spec.Duration.Label)},
	}
}

func resultsEmbed(spec Spec, results []Result) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "📊  Poll Results: " + spec.Question,
		Description: FormatResults(results),
		Color:       utils.ColorGreen,
		Footer:      &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("Poll by %s • Ended", spec.CreatorName)},
	}
}
