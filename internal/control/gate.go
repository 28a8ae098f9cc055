// Package control provides the pause signal shared by a scan's scheduler and
// discovery strategies. Stopping a scan is context cancellation.
package control

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Gate blocks callers of Wait while paused.
type Gate struct {
	mu     sync.Mutex
	paused bool
	resume chan struct{}
}

// NewGate returns an open Gate.
func NewGate() *Gate {
	ch := make(chan struct{})
	close(ch)
	return &Gate{resume: ch}
}

// Pause closes the gate. Calls already past Wait are not affected.
func (g *Gate) Pause() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.paused {
		return
	}
	g.paused = true
	g.resume = make(chan struct{})
}

// Resume opens the gate and releases every waiter.
func (g *Gate) Resume() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.paused {
		return
	}
	g.paused = false
	close(g.resume)
}

// Toggle flips the gate and reports whether it is now paused.
func (g *Gate) Toggle() bool {
	g.mu.Lock()
	paused := g.paused
	g.mu.Unlock()
	if paused {
		g.Resume()
		return false
	}
	g.Pause()
	return true
}

// Paused reports the current state.
func (g *Gate) Paused() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.paused
}

// Wait returns once the gate is open, or with the context error once ctx is
// done. It also returns the context error when the gate is open but ctx has
// already ended, so loops can use it as their single stop/pause check.
func (g *Gate) Wait(ctx context.Context) error {
	for {
		g.mu.Lock()
		ch := g.resume
		g.mu.Unlock()
		select {
		case <-ctx.Done():
			return fmt.Errorf("gate wait: %w", ctx.Err())
		case <-ch:
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("gate wait: %w", err)
		}
		if !g.Paused() {
			return nil
		}
	}
}

// Sleep pauses for d or until ctx ends.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("sleep: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
