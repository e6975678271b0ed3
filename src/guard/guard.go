package guard

import (
	"errors"
	"sync"
)

// ErrAlreadyRunning is returned to a manual trigger that finds the workflow's
// review already in flight. Scheduled ticks skip silently instead.
var ErrAlreadyRunning = errors.New("workflow review already running")

// RunGuard provides process-wide mutual exclusion per workflow id: at most
// one review pipeline may hold a workflow at any instant.
//
// The guard is in-process by design; horizontal scale-out would require
// relocating it into shared storage (advisory lock or compare-and-swap
// column).
type RunGuard struct {
	mu      sync.Mutex
	running map[uint]struct{}
}

func NewRunGuard() *RunGuard {
	return &RunGuard{running: make(map[uint]struct{})}
}

// TryAcquire reports whether the caller now owns execution rights for the
// workflow. A true return must be paired with exactly one Release.
func (g *RunGuard) TryAcquire(workflowID uint) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, held := g.running[workflowID]; held {
		return false
	}
	g.running[workflowID] = struct{}{}
	return true
}

// Release returns execution rights. Safe to call for a workflow that is not
// held.
func (g *RunGuard) Release(workflowID uint) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.running, workflowID)
}

// Held reports whether the workflow is currently owned.
func (g *RunGuard) Held(workflowID uint) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, held := g.running[workflowID]
	return held
}
