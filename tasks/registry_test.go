package tasks

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRegistry(t *testing.T) (*Registry, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	return NewRegistry(context.Background(), clock, zap.NewNop()), clock
}

func TestRegistry_TracksRunningTasks(t *testing.T) {
	r, _ := newTestRegistry(t)

	release := make(chan struct{})
	started := make(chan struct{}, 2)
	r.Go("poll", "first", func(ctx context.Context) {
		started <- struct{}{}
		<-release
	})
	r.Go("rate-reversal", "second", func(ctx context.Context) {
		started <- struct{}{}
		<-release
	})
	<-started
	<-started

	assert.Equal(t, 2, r.Count())
	assert.Equal(t, map[string]int{"poll": 1, "rate-reversal": 1}, r.CountByKind())
	assert.Len(t, r.Active(), 2)

	close(release)
	r.Wait()
	assert.Equal(t, 0, r.Count())
}

func TestRegistry_ShutdownCancelsAndDrains(t *testing.T) {
	r, clock := newTestRegistry(t)

	finished := make(chan struct{})
	r.Go("rate-reversal", "sleeper", func(ctx context.Context) {
		defer close(finished)
		select {
		case <-ctx.Done():
		case <-clock.After(time.Hour):
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	left := r.Shutdown(ctx)

	assert.Empty(t, left)
	<-finished
	assert.Equal(t, 0, r.Count())
}

func TestRegistry_ShutdownReportsStragglers(t *testing.T) {
	r, _ := newTestRegistry(t)

	release := make(chan struct{})
	defer close(release)
	r.Go("poll", "stubborn", func(ctx context.Context) {
		<-release
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	left := r.Shutdown(ctx)

	require.Len(t, left, 1)
	assert.Equal(t, "stubborn", left[0].Name)
}

func TestRegistry_RejectsWorkAfterShutdown(t *testing.T) {
	r, _ := newTestRegistry(t)
	r.Shutdown(context.Background())

	ran := false
	id := r.Go("poll", "late", func(ctx context.Context) { ran = true })

	assert.Empty(t, id)
	r.Wait()
	assert.False(t, ran)
}

func TestRegistry_RecoversPanics(t *testing.T) {
	r, _ := newTestRegistry(t)

	r.Go("poll", "boom", func(ctx context.Context) {
		panic("boom")
	})
	r.Wait()

	assert.Equal(t, 0, r.Count())
}
