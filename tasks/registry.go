// Package tasks tracks detached background work such as punishment
// reversals and running polls, so the process can enumerate and drain it at
// shutdown.
package tasks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Info describes one running task.
type Info struct {
	ID        string
	Kind      string
	Name      string
	StartedAt time.Time
}

// Registry owns the root context of every background task it spawns.
// Tasks are never cancelled individually; Shutdown cancels them all.
type Registry struct {
	ctx    context.Context
	cancel context.CancelFunc
	clock  clockwork.Clock
	log    *zap.Logger

	mu     sync.RWMutex
	active map[string]Info
	closed bool
	wg     sync.WaitGroup
}

func NewRegistry(parent context.Context, clock clockwork.Clock, log *zap.Logger) *Registry {
	ctx, cancel := context.WithCancel(parent)
	return &Registry{
		ctx:    ctx,
		cancel: cancel,
		clock:  clock,
		log:    log.With(zap.String("module", "tasks")),
		active: make(map[string]Info),
	}
}

// Context is the root context handed to every task.
func (r *Registry) Context() context.Context {
	return r.ctx
}

// Go runs fn in its own goroutine and returns the task ID. It does not wait
// for fn. After Shutdown, Go refuses new work and returns "".
func (r *Registry) Go(kind, name string, fn func(ctx context.Context)) string {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.log.Warn("registry closed, task dropped", zap.String("kind", kind), zap.String("name", name))
		return ""
	}
	info := Info{
		ID:        uuid.NewString(),
		Kind:      kind,
		Name:      name,
		StartedAt: r.clock.Now(),
	}
	r.active[info.ID] = info
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		defer r.remove(info.ID)
		defer func() {
			if p := recover(); p != nil {
				r.log.Error("task panicked", zap.String("kind", kind), zap.String("name", name), zap.Any("panic", p))
			}
		}()
		fn(r.ctx)
	}()

	r.log.Debug("task started", zap.String("id", info.ID), zap.String("kind", kind), zap.String("name", name))
	return info.ID
}

func (r *Registry) remove(id string) {
	r.mu.Lock()
	delete(r.active, id)
	r.mu.Unlock()
}

// Active lists running tasks, oldest first.
func (r *Registry) Active() []Info {
	r.mu.RLock()
	out := make([]Info, 0, len(r.active))
	for _, info := range r.active {
		out = append(out, info)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// Count returns the number of running tasks.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.active)
}

// CountByKind groups running tasks by kind.
func (r *Registry) CountByKind() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]int)
	for _, info := range r.active {
		out[info.Kind]++
	}
	return out
}

// Wait blocks until every task has returned. It does not cancel anything.
func (r *Registry) Wait() {
	r.wg.Wait()
}

// Shutdown refuses new tasks, cancels the shared context and waits for the
// running tasks until ctx expires. It returns the tasks that did not finish.
func (r *Registry) Shutdown(ctx context.Context) []Info {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	pending := r.Active()
	for _, info := range pending {
		r.log.Info("draining task", zap.String("kind", info.Kind), zap.String("name", info.Name),
			zap.Duration("age", r.clock.Since(info.StartedAt)))
	}
	r.cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		left := r.Active()
		r.log.Warn("shutdown deadline reached with tasks still running", zap.Int("count", len(left)))
		return left
	}
}
