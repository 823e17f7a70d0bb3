package moderation

import (
	"fmt"
	"strings"

	"harold-bot/model"
)

func stepAction(step string, cfg model.ModerationConfig) string {
	switch step {
	case StepTimeout:
		return "timeout that user"
	case StepPenaltyRole:
		return fmt.Sprintf("assign the %s role", cfg.PenaltyRole)
	case StepVoice:
		return "mute/deafen that user"
	case StepExileRole:
		return fmt.Sprintf("assign the %s role", cfg.ExileRole)
	case StepChannels:
		return "list the channels of this server"
	case StepOverwrite:
		return "lock that user out"
	case StepDeleteMessage:
		return "delete that message"
	case StepVoiceRestore:
		return "unmute/undeafen that user"
	case StepExileRoleRemove:
		return fmt.Sprintf("remove the %s role", cfg.ExileRole)
	case StepOverwriteClear:
		return "restore channel access"
	}
	return step
}

// Describe renders the failures of an outcome as short human-readable
// lines. Per-channel permission failures of one step are folded into a
// single line.
func Describe(out model.Outcome, cfg model.ModerationConfig) []string {
	var (
		lines    []string
		channels = map[string][]string{}
		order    []string
	)
	for _, f := range out.Failures {
		step, name, perChannel := f.Step, "", false
		if n, ok := StepChannelName(f.Step); ok {
			step, _, _ = strings.Cut(f.Step, " #")
			name, perChannel = n, true
		}
		if perChannel && f.Kind == model.FailurePermission {
			if _, seen := channels[step]; !seen {
				order = append(order, step)
			}
			channels[step] = append(channels[step], "#"+name)
			continue
		}
		lines = append(lines, describeFailure(step, name, f, cfg))
	}
	for _, step := range order {
		lines = append(lines, fmt.Sprintf("I don't have permission to %s in %s.",
			stepAction(step, cfg), strings.Join(channels[step], ", ")))
	}
	return lines
}

func describeFailure(step, channel string, f model.StepFailure, cfg model.ModerationConfig) string {
	action := stepAction(step, cfg)
	if channel != "" {
		action += " in #" + channel
	}
	switch f.Kind {
	case model.FailurePermission:
		return fmt.Sprintf("I don't have permission to %s.", action)
	case model.FailureConfiguration:
		role := cfg.ExileRole
		if step == StepPenaltyRole {
			role = cfg.PenaltyRole
		}
		return fmt.Sprintf("⚠️ The \"%s\" role doesn't exist in this server. Please create it.", role)
	case model.FailureNotFound:
		return fmt.Sprintf("Could not %s: it no longer exists.", action)
	default:
		return fmt.Sprintf("Could not %s: %v", action, f.Err)
	}
}
