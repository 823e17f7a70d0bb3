package moderation

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"harold-bot/model"
	"harold-bot/platform/platformtest"
	"harold-bot/tasks"

	"github.com/bwmarrin/discordgo"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testGuild = "g1"
	testUser  = "u1"
)

func testModerationConfig() model.ModerationConfig {
	return model.ModerationConfig{
		ChannelID:      "mod",
		MsgLimit:       5,
		Window:         5 * time.Second,
		Timeout:        5 * time.Minute,
		PenaltyRole:    "timeout due to spamming messages",
		ExileRole:      "exhiled",
		AppealChannels: []string{"court", "court-text"},
		BannedTerms:    []string{"badword1", "nonoword"},
	}
}

type actuatorFixture struct {
	fake  *platformtest.Fake
	clock *clockwork.FakeClock
	reg   *tasks.Registry
	act   *Actuator
}

func newActuatorFixture(t *testing.T, seed func(f *platformtest.Fake)) *actuatorFixture {
	t.Helper()
	fake := platformtest.New()
	if seed == nil {
		seed = seedGuild
	}
	seed(fake)

	clock := clockwork.NewFakeClockAt(time.Unix(1_700_000_000, 0))
	reg := tasks.NewRegistry(context.Background(), clock, zap.NewNop())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		reg.Shutdown(ctx)
	})

	return &actuatorFixture{
		fake:  fake,
		clock: clock,
		reg:   reg,
		act:   NewActuator(fake, testModerationConfig(), reg, clock, zap.NewNop()),
	}
}

func seedGuild(f *platformtest.Fake) {
	f.AddGuildRole(testGuild, "r-penalty", "timeout due to spamming messages")
	f.AddGuildRole(testGuild, "r-exile", "exhiled")
	f.AddChannel(testGuild, "c-general", "general")
	f.AddChannel(testGuild, "c-lounge", "lounge")
	f.AddChannel(testGuild, "c-court", "court")
	f.AddChannel(testGuild, "c-court-text", "court-text")
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestApplyRatePunishment_TimesOutAndRevertsRole(t *testing.T) {
	fx := newActuatorFixture(t, nil)
	start := fx.clock.Now()

	out := fx.act.ApplyRatePunishment(context.Background(), testGuild, testUser)

	assert.Equal(t, model.StatusApplied, out.Status)
	require.NotNil(t, fx.fake.Timeout(testGuild, testUser))
	assert.Equal(t, start.Add(5*time.Minute), *fx.fake.Timeout(testGuild, testUser))
	assert.Contains(t, fx.fake.MemberRoleIDs(testGuild, testUser), "r-penalty")
	assert.Equal(t, map[string]int{TaskKindRateReversal: 1}, fx.reg.CountByKind())

	require.NoError(t, fx.clock.BlockUntilContext(waitCtx(t), 1))
	fx.clock.Advance(5 * time.Minute)
	fx.reg.Wait()

	assert.NotContains(t, fx.fake.MemberRoleIDs(testGuild, testUser), "r-penalty")
	_, tracked := fx.act.Punishment(testGuild, testUser)
	assert.False(t, tracked)
}

func TestApplyRatePunishment_MissingRoleIsConfigurationFailure(t *testing.T) {
	fx := newActuatorFixture(t, func(f *platformtest.Fake) {
		f.AddGuildRole(testGuild, "r-exile", "exhiled")
	})

	out := fx.act.ApplyRatePunishment(context.Background(), testGuild, testUser)

	assert.Equal(t, model.StatusPartiallyApplied, out.Status)
	require.Len(t, out.Failures, 1)
	assert.Equal(t, StepPenaltyRole, out.Failures[0].Step)
	assert.Equal(t, model.FailureConfiguration, out.Failures[0].Kind)
	assert.NotNil(t, fx.fake.Timeout(testGuild, testUser))
	assert.Zero(t, fx.reg.Count(), "no reversal without a role to revert")
}

func TestApplyRatePunishment_PermissionDeniedIsNotFatal(t *testing.T) {
	fx := newActuatorFixture(t, nil)
	fx.fake.FailWith("TimeoutMember", "", model.ErrPermissionDenied)

	out := fx.act.ApplyRatePunishment(context.Background(), testGuild, testUser)

	assert.Equal(t, model.StatusPartiallyApplied, out.Status)
	require.Len(t, out.Failures, 1)
	assert.Equal(t, StepTimeout, out.Failures[0].Step)
	assert.Equal(t, model.FailurePermission, out.Failures[0].Kind)
	assert.Contains(t, fx.fake.MemberRoleIDs(testGuild, testUser), "r-penalty")
}

func TestApplyRatePunishment_StackedReversalsRunIndependently(t *testing.T) {
	fx := newActuatorFixture(t, nil)
	ctx := waitCtx(t)

	fx.act.ApplyRatePunishment(context.Background(), testGuild, testUser)
	require.NoError(t, fx.clock.BlockUntilContext(ctx, 1))
	fx.clock.Advance(time.Minute)

	fx.act.ApplyRatePunishment(context.Background(), testGuild, testUser)
	require.NoError(t, fx.clock.BlockUntilContext(ctx, 2))
	assert.Equal(t, 2, fx.reg.Count())

	fx.clock.Advance(4 * time.Minute)
	assert.Eventually(t, func() bool { return fx.reg.Count() == 1 }, time.Second, time.Millisecond)
	assert.NotContains(t, fx.fake.MemberRoleIDs(testGuild, testUser), "r-penalty")
	_, tracked := fx.act.Punishment(testGuild, testUser)
	assert.True(t, tracked, "the later punishment has not expired yet")

	fx.clock.Advance(time.Minute)
	fx.reg.Wait()
	_, tracked = fx.act.Punishment(testGuild, testUser)
	assert.False(t, tracked)
}

func TestApplyRatePunishment_ShutdownCancelsReversal(t *testing.T) {
	fx := newActuatorFixture(t, nil)

	fx.act.ApplyRatePunishment(context.Background(), testGuild, testUser)
	require.NoError(t, fx.clock.BlockUntilContext(waitCtx(t), 1))

	left := fx.reg.Shutdown(waitCtx(t))
	assert.Empty(t, left)
	assert.Contains(t, fx.fake.MemberRoleIDs(testGuild, testUser), "r-penalty")
}

func TestApplyContentPunishment_LocksMemberOut(t *testing.T) {
	fx := newActuatorFixture(t, nil)
	fx.fake.SetInVoice(testGuild, testUser, true)

	out := fx.act.ApplyContentPunishment(context.Background(), testGuild, "c-general", "msg-1", testUser)

	assert.Equal(t, model.StatusApplied, out.Status)
	mute, deafen := fx.fake.VoiceState(testGuild, testUser)
	assert.True(t, mute)
	assert.True(t, deafen)
	assert.Contains(t, fx.fake.MemberRoleIDs(testGuild, testUser), "r-exile")

	for channelID, want := range map[string]model.Overwrite{
		"c-general":    model.OverwriteDenyAll,
		"c-lounge":     model.OverwriteDenyAll,
		"c-court":      model.OverwriteAllowAll,
		"c-court-text": model.OverwriteAllowAll,
	} {
		got, ok := fx.fake.Overwrite(channelID, testUser)
		require.True(t, ok, channelID)
		assert.Equal(t, want, got, channelID)
	}
	assert.Equal(t, []string{"msg-1"}, fx.fake.Deleted())

	rec, tracked := fx.act.Punishment(testGuild, testUser)
	require.True(t, tracked)
	assert.Equal(t, model.KindContent, rec.Kind)
	assert.True(t, rec.Voice)
	assert.Len(t, rec.Overwrites, 4)
}

func TestApplyContentPunishment_NotInVoiceSkipsVoiceStep(t *testing.T) {
	fx := newActuatorFixture(t, nil)

	out := fx.act.ApplyContentPunishment(context.Background(), testGuild, "c-general", "msg-1", testUser)

	assert.Equal(t, model.StatusApplied, out.Status)
	for _, c := range fx.fake.MutatingCalls() {
		assert.NotEqual(t, "SetVoiceState", c.Op)
	}
}

func TestApplyContentPunishment_ChannelsAreIndependent(t *testing.T) {
	fx := newActuatorFixture(t, nil)
	fx.fake.FailWith("SetMemberOverwrite", "c-general", fmt.Errorf("set: %w", model.ErrPermissionDenied))

	out := fx.act.ApplyContentPunishment(context.Background(), testGuild, "c-lounge", "msg-1", testUser)

	assert.Equal(t, model.StatusPartiallyApplied, out.Status)
	require.Len(t, out.Failures, 1)
	assert.Equal(t, "overwrite #general", out.Failures[0].Step)
	assert.Equal(t, model.FailurePermission, out.Failures[0].Kind)

	_, ok := fx.fake.Overwrite("c-general", testUser)
	assert.False(t, ok)
	for _, ch := range []string{"c-lounge", "c-court", "c-court-text"} {
		_, ok := fx.fake.Overwrite(ch, testUser)
		assert.True(t, ok, ch)
	}
	rec, _ := fx.act.Punishment(testGuild, testUser)
	assert.Len(t, rec.Overwrites, 3)
}

func TestApplyContentPunishment_MissingExileRoleReportedOnce(t *testing.T) {
	fx := newActuatorFixture(t, func(f *platformtest.Fake) {
		f.AddChannel(testGuild, "c-general", "general")
	})

	out := fx.act.ApplyContentPunishment(context.Background(), testGuild, "c-general", "msg-1", testUser)

	assert.Equal(t, model.StatusPartiallyApplied, out.Status)
	require.Len(t, out.Failures, 1)
	assert.Equal(t, StepExileRole, out.Failures[0].Step)
	assert.Equal(t, model.FailureConfiguration, out.Failures[0].Kind)
	_, ok := fx.fake.Overwrite("c-general", testUser)
	assert.True(t, ok)
}

func TestApplyContentPunishment_ConcurrentMembers(t *testing.T) {
	fx := newActuatorFixture(t, nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(user string) {
			defer wg.Done()
			fx.act.ApplyContentPunishment(context.Background(), testGuild, "c-general", "", user)
		}(fmt.Sprintf("u%d", i))
	}
	wg.Wait()

	assert.Equal(t, 10, fx.act.PunishedCount())
	for i := 0; i < 10; i++ {
		_, ok := fx.fake.Overwrite("c-court", fmt.Sprintf("u%d", i))
		assert.True(t, ok)
	}
}

func TestReverseContentPunishment_NoStateIsNoOp(t *testing.T) {
	fx := newActuatorFixture(t, nil)

	out := fx.act.ReverseContentPunishment(context.Background(), testGuild, testUser)

	assert.Equal(t, model.StatusSkipped, out.Status)
	assert.Empty(t, out.Failures)
	assert.Empty(t, fx.fake.MutatingCalls())
}

func TestReverseContentPunishment_RestoresAccess(t *testing.T) {
	fx := newActuatorFixture(t, nil)
	fx.fake.SetInVoice(testGuild, testUser, true)
	fx.act.ApplyContentPunishment(context.Background(), testGuild, "c-general", "msg-1", testUser)

	out := fx.act.ReverseContentPunishment(context.Background(), testGuild, testUser)

	assert.Equal(t, model.StatusApplied, out.Status)
	mute, deafen := fx.fake.VoiceState(testGuild, testUser)
	assert.False(t, mute)
	assert.False(t, deafen)
	assert.NotContains(t, fx.fake.MemberRoleIDs(testGuild, testUser), "r-exile")
	for _, ch := range []string{"c-general", "c-lounge", "c-court", "c-court-text"} {
		_, ok := fx.fake.Overwrite(ch, testUser)
		assert.False(t, ok, ch)
	}
	_, tracked := fx.act.Punishment(testGuild, testUser)
	assert.False(t, tracked)

	before := len(fx.fake.MutatingCalls())
	again := fx.act.ReverseContentPunishment(context.Background(), testGuild, testUser)
	assert.Equal(t, model.StatusSkipped, again.Status)
	assert.Len(t, fx.fake.MutatingCalls(), before, "second reversal changes nothing")
}

func TestReverseContentPunishment_UntrackedButExiled(t *testing.T) {
	fx := newActuatorFixture(t, nil)
	fx.fake.SetMemberRoles(testGuild, testUser, "r-exile")
	fx.fake.SetOverwrite("c-general", testUser, model.OverwriteDenyAll)

	out := fx.act.ReverseContentPunishment(context.Background(), testGuild, testUser)

	assert.Equal(t, model.StatusApplied, out.Status)
	assert.Empty(t, out.Failures, "channels without an overwrite are not failures")
	assert.Empty(t, fx.fake.MemberRoleIDs(testGuild, testUser))
	_, ok := fx.fake.Overwrite("c-general", testUser)
	assert.False(t, ok)
}

func TestReverseContentPunishment_PermissionFailuresCollected(t *testing.T) {
	fx := newActuatorFixture(t, nil)
	fx.act.ApplyContentPunishment(context.Background(), testGuild, "c-general", "", testUser)
	fx.fake.FailWith("RemoveRole", "", model.ErrPermissionDenied)

	out := fx.act.ReverseContentPunishment(context.Background(), testGuild, testUser)

	assert.Equal(t, model.StatusPartiallyApplied, out.Status)
	require.Len(t, out.Failures, 1)
	assert.Equal(t, StepExileRoleRemove, out.Failures[0].Step)
	_, ok := fx.fake.Overwrite("c-lounge", testUser)
	assert.False(t, ok)
}

func TestReverseContentPunishment_OverwritesSurviveRestart(t *testing.T) {
	fx := newActuatorFixture(t, func(f *platformtest.Fake) {
		f.AddChannel(testGuild, "c-general", "general")
		f.AddChannel(testGuild, "c-court", "court")
	})
	fx.act.ApplyContentPunishment(context.Background(), testGuild, "c-general", "", testUser)
	_, ok := fx.fake.Overwrite("c-general", testUser)
	require.True(t, ok)

	restarted := NewActuator(fx.fake, testModerationConfig(), fx.reg, fx.clock, zap.NewNop())
	out := restarted.ReverseContentPunishment(context.Background(), testGuild, testUser)

	assert.Equal(t, model.StatusPartiallyApplied, out.Status)
	require.Len(t, out.Failures, 1)
	assert.Equal(t, model.FailureConfiguration, out.Failures[0].Kind, "the missing exile role is still reported")
	for _, ch := range []string{"c-general", "c-court"} {
		_, ok := fx.fake.Overwrite(ch, testUser)
		assert.False(t, ok, ch)
	}

	before := len(fx.fake.MutatingCalls())
	again := restarted.ReverseContentPunishment(context.Background(), testGuild, testUser)
	assert.Equal(t, model.StatusSkipped, again.Status)
	assert.Len(t, fx.fake.MutatingCalls(), before)
}

func TestHasMemberOverwrite(t *testing.T) {
	channels := []*discordgo.Channel{
		{ID: "c1", PermissionOverwrites: []*discordgo.PermissionOverwrite{
			{ID: testUser, Type: discordgo.PermissionOverwriteTypeRole},
		}},
		{ID: "c2", PermissionOverwrites: []*discordgo.PermissionOverwrite{
			{ID: "someone-else", Type: discordgo.PermissionOverwriteTypeMember},
		}},
	}
	assert.False(t, hasMemberOverwrite(channels, testUser), "role overwrites with the same ID do not count")

	channels[1].PermissionOverwrites = append(channels[1].PermissionOverwrites,
		&discordgo.PermissionOverwrite{ID: testUser, Type: discordgo.PermissionOverwriteTypeMember})
	assert.True(t, hasMemberOverwrite(channels, testUser))
}
