package moor

import (
	"context"
	"fmt"
	"sync"
)

// Group runs session goroutines and joins them on shutdown.
// One group is typically shared by all services of a process, so a
// single Shutdown bounds the teardown of everything it runs.
// Services never shut down their group; it belongs to the caller.
type Group struct {
	mutex  sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewGroup creates a group admitting new work.
func NewGroup() *Group {
	return &Group{}
}

// Go runs fn on the group.
// It reports false when the group was shut down and fn was not started.
func (g *Group) Go(fn func()) bool {
	g.mutex.Lock()
	if g.closed {
		g.mutex.Unlock()
		return false
	}
	g.wg.Add(1)
	g.mutex.Unlock()

	go func() {
		defer g.wg.Done()
		fn()
	}()

	return true
}

// Shutdown stops admission of new work and waits for the running work
// to finish. It returns early with the context error when ctx is done
// first; the work keeps running in that case.
func (g *Group) Shutdown(ctx context.Context) error {
	g.mutex.Lock()
	g.closed = true
	g.mutex.Unlock()

	finished := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown group: %w", ctx.Err())
	}
}
