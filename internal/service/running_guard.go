package service

import (
	"context"
	"sync"
)

// ExportedRunningGuard is an exported alias so _test packages can test the guard.
type ExportedRunningGuard = runningJobsGuard

// ─────────────────────────────────────────────────────────────
// runningJobsGuard: at most one in-flight write per key
// ─────────────────────────────────────────────────────────────

// runningJobsGuard ensures only one write for a given key runs at a time
// and lets shutdown wait for the writes that are still running.
type runningJobsGuard struct {
	mu      sync.Mutex
	running map[string]chan struct{}
	wg      sync.WaitGroup
}

// TryLock attempts to mark key as running. Returns false if a write for
// key is already in flight.
func (g *runningJobsGuard) TryLock(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running == nil {
		g.running = make(map[string]chan struct{})
	}
	if _, ok := g.running[key]; ok {
		return false
	}
	g.running[key] = make(chan struct{})
	g.wg.Add(1)
	return true
}

// Unlock marks key as no longer running. Must follow a successful TryLock.
func (g *runningJobsGuard) Unlock(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if done, ok := g.running[key]; ok {
		close(done)
		delete(g.running, key)
	}
	g.wg.Done()
}

// Wait blocks until the write for key in flight at the time of the call
// completes or ctx is cancelled. It returns at once when key is idle.
func (g *runningJobsGuard) Wait(ctx context.Context, key string) error {
	g.mu.Lock()
	done, ok := g.running[key]
	g.mu.Unlock()
	if !ok {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitAll blocks until all in-flight writes complete or ctx is cancelled.
func (g *runningJobsGuard) WaitAll(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
