package jobs

import (
	"context"
	"sync"

	"github.com/JakeFAU/storefront-scanner/internal/control"
)

type handle struct {
	cancel context.CancelFunc
	gate   *control.Gate
}

// Controls maps running job IDs to their stop and pause handles.
type Controls struct {
	mu      sync.Mutex
	running map[string]handle
}

// NewControls returns an empty registry.
func NewControls() *Controls {
	return &Controls{running: make(map[string]handle)}
}

// Register records the handles of a job that just started.
func (c *Controls) Register(jobID string, cancel context.CancelFunc, gate *control.Gate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running[jobID] = handle{cancel: cancel, gate: gate}
}

// Remove forgets a finished job.
func (c *Controls) Remove(jobID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.running, jobID)
}

// Cancel stops a running job. It reports false when the job is not running.
func (c *Controls) Cancel(jobID string) bool {
	h, ok := c.get(jobID)
	if ok {
		h.cancel()
	}
	return ok
}

// Pause holds a running job before its next request.
func (c *Controls) Pause(jobID string) bool {
	h, ok := c.get(jobID)
	if ok {
		h.gate.Pause()
	}
	return ok
}

// Resume releases a paused job.
func (c *Controls) Resume(jobID string) bool {
	h, ok := c.get(jobID)
	if ok {
		h.gate.Resume()
	}
	return ok
}

// Running reports how many jobs are registered.
func (c *Controls) Running() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.running)
}

func (c *Controls) get(jobID string) (handle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.running[jobID]
	return h, ok
}
