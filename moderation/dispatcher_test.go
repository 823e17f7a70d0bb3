package moderation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"harold-bot/metrics"
	"harold-bot/model"
	"harold-bot/platform/platformtest"
	"harold-bot/utils"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingPunisher struct {
	mu      sync.Mutex
	rate    []string
	content []string
	outcome model.Outcome
}

func (p *recordingPunisher) ApplyRatePunishment(_ context.Context, _, userID string) model.Outcome {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rate = append(p.rate, userID)
	out := p.outcome
	out.Kind = model.KindRate
	return out
}

func (p *recordingPunisher) ApplyContentPunishment(_ context.Context, _, _, messageID, _ string) model.Outcome {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.content = append(p.content, messageID)
	out := p.outcome
	out.Kind = model.KindContent
	return out
}

type recordingJournal struct {
	mu        sync.Mutex
	incidents []model.Incident
	err       error
}

func (j *recordingJournal) Record(_ context.Context, inc model.Incident) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.incidents = append(j.incidents, inc)
	return j.err
}

type dispatcherFixture struct {
	fake     *platformtest.Fake
	clock    *clockwork.FakeClock
	punisher *recordingPunisher
	journal  *recordingJournal
	metrics  *metrics.Metrics
	d        *Dispatcher
}

func newDispatcherFixture(t *testing.T) *dispatcherFixture {
	t.Helper()
	fake := platformtest.New()
	clock := clockwork.NewFakeClockAt(time.Unix(1_700_000_000, 0))
	punisher := &recordingPunisher{outcome: model.Outcome{Status: model.StatusApplied}}
	journal := &recordingJournal{}
	m := metrics.New(prometheus.NewRegistry())
	cfg := testModerationConfig()
	reporter := utils.NewReporter(fake, cfg.ChannelID, clock, zap.NewNop())

	return &dispatcherFixture{
		fake:     fake,
		clock:    clock,
		punisher: punisher,
		journal:  journal,
		metrics:  m,
		d:        NewDispatcher(cfg, fake, punisher, reporter, journal, m, clock, zap.NewNop()),
	}
}

func message(id, content string) model.InboundMessage {
	return model.InboundMessage{
		ID:        id,
		GuildID:   testGuild,
		ChannelID: "c-general",
		AuthorID:  testUser,
		IsMember:  true,
		Content:   content,
	}
}

func TestDispatcher_IgnoresBotsAndNonMembers(t *testing.T) {
	fx := newDispatcherFixture(t)

	bot := message("m1", "badword1")
	bot.AuthorBot = true
	dm := message("m2", "badword1")
	dm.IsMember = false

	assert.Equal(t, VerdictIgnored, fx.d.Handle(context.Background(), bot))
	assert.Equal(t, VerdictIgnored, fx.d.Handle(context.Background(), dm))
	assert.Zero(t, fx.d.Tracker().Len(testUser))
	assert.Empty(t, fx.punisher.content)
}

func TestDispatcher_RateTripsOncePerBurst(t *testing.T) {
	fx := newDispatcherFixture(t)

	var verdicts []Verdict
	for i := 0; i < 9; i++ {
		verdicts = append(verdicts, fx.d.Handle(context.Background(), message("m", "hi")))
		if i == 4 {
			assert.Zero(t, fx.d.Tracker().Len(testUser), "window is empty right after the trip")
		}
	}

	assert.Equal(t, []Verdict{
		VerdictNone, VerdictNone, VerdictNone, VerdictNone, VerdictRatePunished,
		VerdictNone, VerdictNone, VerdictNone, VerdictNone,
	}, verdicts)
	assert.Equal(t, []string{testUser}, fx.punisher.rate)
	assert.Equal(t, []string{"<@u1> has been timed out for 5 minutes for spamming."}, fx.fake.SentContents("c-general"))
}

func TestDispatcher_SpreadOutMessagesDoNotTrip(t *testing.T) {
	fx := newDispatcherFixture(t)

	for i := 0; i < 20; i++ {
		assert.Equal(t, VerdictNone, fx.d.Handle(context.Background(), message("m", "hi")))
		fx.clock.Advance(2 * time.Second)
	}
	assert.Empty(t, fx.punisher.rate)
}

func TestDispatcher_ContentPunishment(t *testing.T) {
	fx := newDispatcherFixture(t)

	v := fx.d.Handle(context.Background(), message("m1", "you are a BADWORD1!"))

	assert.Equal(t, VerdictContentPunished, v)
	assert.True(t, v.Punished())
	assert.Equal(t, []string{"m1"}, fx.punisher.content)
	assert.Equal(t, []string{"<@u1> has been exhiled for using inappropriate language."}, fx.fake.SentContents("c-general"))
}

func TestDispatcher_SubstringDoesNotTrip(t *testing.T) {
	fx := newDispatcherFixture(t)

	assert.Equal(t, VerdictNone, fx.d.Handle(context.Background(), message("m1", "nonowordy badword1s")))
	assert.Empty(t, fx.punisher.content)
}

func TestDispatcher_RateAndContentAreMutuallyExclusive(t *testing.T) {
	fx := newDispatcherFixture(t)

	for i := 0; i < 4; i++ {
		fx.d.Handle(context.Background(), message("m", "hi"))
	}
	v := fx.d.Handle(context.Background(), message("m5", "badword1"))

	assert.Equal(t, VerdictRatePunished, v)
	assert.Len(t, fx.punisher.rate, 1)
	assert.Empty(t, fx.punisher.content)
}

func TestDispatcher_ReportsFailuresToModerationChannel(t *testing.T) {
	fx := newDispatcherFixture(t)
	fx.punisher.outcome = model.Outcome{
		Status: model.StatusPartiallyApplied,
		Failures: []model.StepFailure{
			{Step: StepExileRole, Kind: model.FailureConfiguration, Err: model.ErrConfigurationMissing},
		},
	}

	fx.d.Handle(context.Background(), message("m1", "nonoword"))

	var reports []string
	for _, s := range fx.fake.Sent() {
		if s.ChannelID != "mod" {
			continue
		}
		require.Len(t, s.Msg.Embeds, 1)
		for _, f := range s.Msg.Embeds[0].Fields {
			if f.Name == "Details" {
				reports = append(reports, f.Value)
			}
		}
	}
	assert.Equal(t, []string{`⚠️ The "exhiled" role doesn't exist in this server. Please create it.`}, reports)
}

func TestDispatcher_JournalsAndCounts(t *testing.T) {
	fx := newDispatcherFixture(t)
	fx.journal.err = errors.New("disk full")

	fx.d.Handle(context.Background(), message("m1", "badword1"))

	require.Len(t, fx.journal.incidents, 1)
	inc := fx.journal.incidents[0]
	assert.Equal(t, "content", inc.Kind)
	assert.Equal(t, "applied", inc.Status)
	assert.Equal(t, testUser, inc.UserID)
	assert.Contains(t, inc.Detail, `term="badword1"`)
	assert.Equal(t, fx.clock.Now().Unix(), inc.CreatedAt)
	assert.NotEmpty(t, inc.ID)

	assert.Equal(t, 1.0, testutil.ToFloat64(fx.metrics.Punishments.WithLabelValues("content", "applied")))
}

func TestDispatcher_WithActuator(t *testing.T) {
	afx := newActuatorFixture(t, nil)
	cfg := testModerationConfig()
	d := NewDispatcher(cfg, afx.fake, afx.act, utils.NewReporter(afx.fake, cfg.ChannelID, afx.clock, zap.NewNop()), nil, nil, afx.clock, zap.NewNop())

	v := d.Handle(context.Background(), message("m1", "nonoword"))

	assert.Equal(t, VerdictContentPunished, v)
	assert.Contains(t, afx.fake.MemberRoleIDs(testGuild, testUser), "r-exile")
	assert.Equal(t, []string{"m1"}, afx.fake.Deleted())
}

func TestHumanDuration(t *testing.T) {
	assert.Equal(t, "5 minutes", humanDuration(5*time.Minute))
	assert.Equal(t, "1 minute", humanDuration(time.Minute))
	assert.Equal(t, "30s", humanDuration(30*time.Second))
}
