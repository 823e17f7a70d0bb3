package moderation

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"harold-bot/model"
	"harold-bot/tasks"
	"harold-bot/utils"

	"github.com/bwmarrin/discordgo"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// TaskKindRateReversal labels the detached penalty-role removal tasks.
const TaskKindRateReversal = "rate-reversal"

// Steps of the punishment procedures, used in StepFailure.Step.
const (
	StepTimeout         = "timeout"
	StepPenaltyRole     = "penalty-role"
	StepVoice           = "voice"
	StepExileRole       = "exile-role"
	StepChannels        = "channels"
	StepOverwrite       = "overwrite"
	StepDeleteMessage   = "delete-message"
	StepVoiceRestore    = "voice-restore"
	StepExileRoleRemove = "exile-role-remove"
	StepOverwriteClear  = "overwrite-clear"
)

// Record is the explicit per-member punishment state this process applied.
// It mirrors the platform-side effects so reversal does not depend on
// guessing from live state alone.
type Record struct {
	Kind       model.PunishmentKind
	GuildID    string
	UserID     string
	AppliedAt  time.Time
	ExpiresAt  time.Time
	Voice      bool
	Overwrites []string
}

// Actuator applies and reverts punishments against the platform. Every step
// is best-effort: failures are collected in the returned model.Outcome and
// never abort sibling steps.
type Actuator struct {
	platform model.Platform
	cfg      model.ModerationConfig
	tasks    *tasks.Registry
	clock    clockwork.Clock
	log      *zap.Logger
	locks    *utils.KeyedMutex
	appeal   map[string]struct{}

	mu      sync.Mutex
	records map[string]Record
}

func NewActuator(p model.Platform, cfg model.ModerationConfig, reg *tasks.Registry, clock clockwork.Clock, log *zap.Logger) *Actuator {
	appeal := make(map[string]struct{}, len(cfg.AppealChannels))
	for _, name := range cfg.AppealChannels {
		appeal[name] = struct{}{}
	}
	return &Actuator{
		platform: p,
		cfg:      cfg,
		tasks:    reg,
		clock:    clock,
		log:      log.With(zap.String("module", "actuator")),
		locks:    utils.NewKeyedMutex(),
		appeal:   appeal,
		records:  make(map[string]Record),
	}
}

// ApplyRatePunishment times the member out, grants the penalty role and
// schedules a detached task that removes the role when the timeout ends.
func (a *Actuator) ApplyRatePunishment(ctx context.Context, guildID, userID string) model.Outcome {
	if err := ctx.Err(); err != nil {
		return skipped(model.KindRate, "shutting down")
	}
	b := newOutcome(model.KindRate)
	now := a.clock.Now()
	until := now.Add(a.cfg.Timeout)

	if err := a.platform.TimeoutMember(guildID, userID, &until); err != nil {
		b.fail(StepTimeout, err)
	} else {
		b.ok()
	}

	role, err := a.roleByName(guildID, a.cfg.PenaltyRole)
	if err != nil {
		b.fail(StepPenaltyRole, err)
	} else {
		if err := a.platform.AddRole(guildID, userID, role.ID); err != nil {
			b.fail(StepPenaltyRole, err)
		} else {
			b.ok()
		}
		a.scheduleRoleReversal(guildID, userID, role.ID)
	}

	a.remember(Record{Kind: model.KindRate, GuildID: guildID, UserID: userID, AppliedAt: now, ExpiresAt: until})

	out := b.outcome()
	a.log.Info("rate punishment applied", zap.String("guild", guildID), zap.String("user", userID), zap.Stringer("outcome", out))
	return out
}

func (a *Actuator) scheduleRoleReversal(guildID, userID, roleID string) {
	a.tasks.Go(TaskKindRateReversal, guildID+"/"+userID, func(ctx context.Context) {
		select {
		case <-ctx.Done():
			return
		case <-a.clock.After(a.cfg.Timeout):
		}
		a.revertPenaltyRole(guildID, userID, roleID)
	})
}

func (a *Actuator) revertPenaltyRole(guildID, userID, roleID string) {
	log := a.log.With(zap.String("guild", guildID), zap.String("user", userID))

	defer a.forgetExpiredRate(guildID, userID)

	roles, err := a.platform.MemberRoles(guildID, userID)
	if err != nil {
		log.Warn("could not read member roles for penalty reversal", zap.Error(err))
		return
	}
	if !slices.Contains(roles, roleID) {
		log.Debug("penalty role already gone")
		return
	}
	if err := a.platform.RemoveRole(guildID, userID, roleID); err != nil {
		log.Warn("failed to remove penalty role", zap.Error(err))
		return
	}
	log.Info("penalty role removed after timeout")
}

// ApplyContentPunishment mutes and deafens the member if they are in voice,
// grants the exile role, locks them out of every channel except the appeal
// channels and deletes the offending message.
func (a *Actuator) ApplyContentPunishment(ctx context.Context, guildID, channelID, messageID, userID string) model.Outcome {
	if err := ctx.Err(); err != nil {
		return skipped(model.KindContent, "shutting down")
	}
	unlock := a.locks.Lock(guildID)
	defer unlock()

	b := newOutcome(model.KindContent)
	rec := Record{Kind: model.KindContent, GuildID: guildID, UserID: userID, AppliedAt: a.clock.Now()}

	if a.platform.InVoice(guildID, userID) {
		if err := a.platform.SetVoiceState(guildID, userID, true, true); err != nil {
			b.fail(StepVoice, err)
		} else {
			b.ok()
			rec.Voice = true
		}
	}

	role, err := a.roleByName(guildID, a.cfg.ExileRole)
	if err != nil {
		b.fail(StepExileRole, err)
	} else if err := a.platform.AddRole(guildID, userID, role.ID); err != nil {
		b.fail(StepExileRole, err)
	} else {
		b.ok()
	}

	channels, chErr := a.platform.GuildChannels(guildID)
	if chErr != nil {
		b.fail(StepChannels, chErr)
	}
	for _, ch := range channels {
		overwrite := model.OverwriteDenyAll
		if a.isAppealChannel(ch.Name) {
			overwrite = model.OverwriteAllowAll
		}
		if err := a.platform.SetMemberOverwrite(ch.ID, userID, overwrite); err != nil {
			b.fail(channelStep(StepOverwrite, ch), err)
			continue
		}
		b.ok()
		rec.Overwrites = append(rec.Overwrites, ch.ID)
	}

	if messageID != "" {
		if err := a.platform.DeleteMessage(channelID, messageID); err != nil {
			b.fail(StepDeleteMessage, err)
		} else {
			b.ok()
		}
	}

	a.remember(rec)

	out := b.outcome()
	a.log.Info("content punishment applied", zap.String("guild", guildID), zap.String("user", userID),
		zap.Int("overwrites", len(rec.Overwrites)), zap.Stringer("outcome", out))
	return out
}

// ReverseContentPunishment undoes ApplyContentPunishment. The caller must
// have verified that the invoker owns the guild. A member that is not
// tracked, does not hold the exile role and has no member overwrite on any
// channel is left untouched.
func (a *Actuator) ReverseContentPunishment(ctx context.Context, guildID, userID string) model.Outcome {
	if err := ctx.Err(); err != nil {
		return skipped(model.KindReversal, "shutting down")
	}
	unlock := a.locks.Lock(guildID)
	defer unlock()

	rec, tracked := a.Punishment(guildID, userID)
	tracked = tracked && rec.Kind == model.KindContent

	role, roleErr := a.roleByName(guildID, a.cfg.ExileRole)
	holds := false
	var memberErr error
	if roleErr == nil {
		var roles []string
		roles, memberErr = a.platform.MemberRoles(guildID, userID)
		holds = memberErr == nil && slices.Contains(roles, role.ID)
	}

	channels, chErr := a.platform.GuildChannels(guildID)
	if !tracked && !holds && !hasMemberOverwrite(channels, userID) {
		return skipped(model.KindReversal, "member is not exiled")
	}

	b := newOutcome(model.KindReversal)

	if a.platform.InVoice(guildID, userID) {
		if err := a.platform.SetVoiceState(guildID, userID, false, false); err != nil {
			b.fail(StepVoiceRestore, err)
		} else {
			b.ok()
		}
	}

	switch {
	case holds:
		if err := a.platform.RemoveRole(guildID, userID, role.ID); err != nil {
			b.fail(StepExileRoleRemove, err)
		} else {
			b.ok()
		}
	case roleErr != nil:
		b.fail(StepExileRoleRemove, roleErr)
	case memberErr != nil && !errors.Is(memberErr, model.ErrNotFound):
		b.fail(StepExileRoleRemove, memberErr)
	}

	if chErr != nil {
		b.fail(StepChannels, chErr)
	}
	for _, ch := range channels {
		err := a.platform.ClearMemberOverwrite(ch.ID, userID)
		switch {
		case err == nil:
			b.ok()
		case errors.Is(err, model.ErrNotFound):
			// nothing to clear
		default:
			b.fail(channelStep(StepOverwriteClear, ch), err)
		}
	}

	a.forget(guildID, userID, model.KindContent)

	out := b.outcome()
	a.log.Info("content punishment reversed", zap.String("guild", guildID), zap.String("user", userID), zap.Stringer("outcome", out))
	return out
}

// hasMemberOverwrite reports whether userID has a member overwrite on any of
// channels. Overwrites outlive the process, so they mark an exile that is no
// longer tracked.
func hasMemberOverwrite(channels []*discordgo.Channel, userID string) bool {
	for _, ch := range channels {
		for _, ow := range ch.PermissionOverwrites {
			if ow.Type == discordgo.PermissionOverwriteTypeMember && ow.ID == userID {
				return true
			}
		}
	}
	return false
}

// Punishment returns the tracked punishment for a member, if any.
func (a *Actuator) Punishment(guildID, userID string) (Record, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	rec, ok := a.records[recordKey(guildID, userID)]
	return rec, ok
}

// PunishedCount returns how many members are currently tracked as punished.
func (a *Actuator) PunishedCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.records)
}

func (a *Actuator) remember(rec Record) {
	a.mu.Lock()
	defer a.mu.Unlock()
	k := recordKey(rec.GuildID, rec.UserID)
	if cur, ok := a.records[k]; ok && cur.Kind == model.KindContent && rec.Kind == model.KindRate {
		return
	}
	a.records[k] = rec
}

func (a *Actuator) forget(guildID, userID string, kind model.PunishmentKind) {
	a.mu.Lock()
	defer a.mu.Unlock()
	k := recordKey(guildID, userID)
	if cur, ok := a.records[k]; ok && cur.Kind == kind {
		delete(a.records, k)
	}
}

// forgetExpiredRate drops a rate record once its expiry has passed. A later
// stacked punishment keeps its own, later expiry.
func (a *Actuator) forgetExpiredRate(guildID, userID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	k := recordKey(guildID, userID)
	if cur, ok := a.records[k]; ok && cur.Kind == model.KindRate && !cur.ExpiresAt.After(a.clock.Now()) {
		delete(a.records, k)
	}
}

func (a *Actuator) roleByName(guildID, name string) (*discordgo.Role, error) {
	roles, err := a.platform.GuildRoles(guildID)
	if err != nil {
		return nil, err
	}
	for _, r := range roles {
		if r.Name == name {
			return r, nil
		}
	}
	return nil, fmt.Errorf("role %q: %w", name, model.ErrConfigurationMissing)
}

func (a *Actuator) isAppealChannel(name string) bool {
	_, ok := a.appeal[name]
	return ok
}

func recordKey(guildID, userID string) string {
	return guildID + "/" + userID
}

func channelStep(step string, ch *discordgo.Channel) string {
	return step + " #" + ch.Name
}

// StepChannelName extracts the channel name from a per-channel step.
func StepChannelName(step string) (string, bool) {
	_, name, ok := strings.Cut(step, " #")
	return name, ok
}

type outcomeBuilder struct {
	kind     model.PunishmentKind
	applied  int
	failures []model.StepFailure
}

func newOutcome(kind model.PunishmentKind) *outcomeBuilder {
	return &outcomeBuilder{kind: kind}
}

func (b *outcomeBuilder) ok() {
	b.applied++
}

func (b *outcomeBuilder) fail(step string, err error) {
	b.failures = append(b.failures, model.StepFailure{Step: step, Kind: failureKind(err), Err: err})
}

func (b *outcomeBuilder) outcome() model.Outcome {
	out := model.Outcome{Kind: b.kind, Failures: b.failures}
	switch {
	case len(b.failures) == 0 && b.applied > 0:
		out.Status = model.StatusApplied
	case len(b.failures) == 0:
		out.Status = model.StatusSkipped
		out.Reason = "nothing to do"
	case b.applied > 0:
		out.Status = model.StatusPartiallyApplied
	default:
		out.Status = model.StatusSkipped
		out.Reason = "every step failed"
	}
	return out
}

func skipped(kind model.PunishmentKind, reason string) model.Outcome {
	return model.Outcome{Kind: kind, Status: model.StatusSkipped, Reason: reason}
}

func failureKind(err error) model.FailureKind {
	switch {
	case errors.Is(err, model.ErrPermissionDenied):
		return model.FailurePermission
	case errors.Is(err, model.ErrConfigurationMissing):
		return model.FailureConfiguration
	case errors.Is(err, model.ErrNotFound):
		return model.FailureNotFound
	default:
		return model.FailurePlatform
	}
}
