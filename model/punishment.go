package model

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
)

type PunishmentKind string

const (
	KindRate     PunishmentKind = "rate"
	KindContent  PunishmentKind = "content"
	KindReversal PunishmentKind = "reversal"
)

type OutcomeStatus string

const (
	StatusApplied          OutcomeStatus = "applied"
	StatusPartiallyApplied OutcomeStatus = "partially-applied"
	StatusSkipped          OutcomeStatus = "skipped"
)

type FailureKind string

const (
	FailurePermission    FailureKind = "permission-denied"
	FailureConfiguration FailureKind = "configuration-missing"
	FailureNotFound      FailureKind = "not-found"
	FailurePlatform      FailureKind = "platform-error"
)

// StepFailure describes one best-effort step that did not go through.
type StepFailure struct {
	Step string
	Kind FailureKind
	Err  error
}

func (f StepFailure) Error() string {
	return fmt.Sprintf("%s: %v", f.Step, f.Err)
}

// Outcome is the structured result of a punishment procedure.
type Outcome struct {
	Kind     PunishmentKind
	Status   OutcomeStatus
	Reason   string
	Failures []StepFailure
}

func (o Outcome) String() string {
	switch o.Status {
	case StatusApplied:
		return string(o.Status)
	case StatusSkipped:
		return fmt.Sprintf("%s(%s)", o.Status, o.Reason)
	}
	reasons := make([]string, 0, len(o.Failures))
	for _, f := range o.Failures {
		reasons = append(reasons, f.Error())
	}
	return fmt.Sprintf("%s(%s)", o.Status, strings.Join(reasons, "; "))
}

// Overwrite is a per-member channel permission overwrite.
type Overwrite struct {
	Allow int64
	Deny  int64
}

const lockoutPermissions = discordgo.PermissionViewChannel |
	discordgo.PermissionSendMessages |
	discordgo.PermissionVoiceConnect |
	discordgo.PermissionVoiceSpeak

var (
	OverwriteDenyAll  = Overwrite{Deny: lockoutPermissions}
	OverwriteAllowAll = Overwrite{Allow: lockoutPermissions}
)

// Incident is one journaled moderation action.
// The database table will be named 'incidents'.
type Incident struct {
	ID        string `db:"id"`
	GuildID   string `db:"guild_id"`
	ChannelID string `db:"channel_id"`
	UserID    string `db:"user_id"`
	Kind      string `db:"kind"`
	Status    string `db:"status"`
	Detail    string `db:"detail"`
	CreatedAt int64  `db:"created_at"`
}
