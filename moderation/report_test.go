package moderation

import (
	"errors"
	"testing"

	"harold-bot/model"

	"github.com/stretchr/testify/assert"
)

func TestDescribe(t *testing.T) {
	cfg := testModerationConfig()
	out := model.Outcome{
		Kind:   model.KindContent,
		Status: model.StatusPartiallyApplied,
		Failures: []model.StepFailure{
			{Step: StepVoice, Kind: model.FailurePermission},
			{Step: "overwrite #general", Kind: model.FailurePermission},
			{Step: StepExileRole, Kind: model.FailureConfiguration},
			{Step: "overwrite #lounge", Kind: model.FailurePermission},
			{Step: StepDeleteMessage, Kind: model.FailurePlatform, Err: errors.New("boom")},
		},
	}

	assert.Equal(t, []string{
		"I don't have permission to mute/deafen that user.",
		`⚠️ The "exhiled" role doesn't exist in this server. Please create it.`,
		"Could not delete that message: boom",
		"I don't have permission to lock that user out in #general, #lounge.",
	}, Describe(out, cfg))
}

func TestDescribe_PenaltyRoleNamesRole(t *testing.T) {
	cfg := testModerationConfig()
	out := model.Outcome{Failures: []model.StepFailure{
		{Step: StepPenaltyRole, Kind: model.FailureConfiguration},
		{Step: StepTimeout, Kind: model.FailurePermission},
	}}

	assert.Equal(t, []string{
		`⚠️ The "timeout due to spamming messages" role doesn't exist in this server. Please create it.`,
		"I don't have permission to timeout that user.",
	}, Describe(out, cfg))
}
