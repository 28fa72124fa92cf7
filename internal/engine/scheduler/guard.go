package scheduler

import (
	"errors"
	"sync"
)

// ErrCycleInProgress is returned when a cycle is asked to start while another one is still running
var ErrCycleInProgress = errors.New("cycle already in progress")

// Guard keeps a loop from overlapping with itself. The zero value is ready to use.
type Guard struct {
	mu sync.Mutex
}

// Run executes fn unless a previous call is still running, in which case it
// returns ErrCycleInProgress without waiting.
func (g *Guard) Run(fn func() error) error {
	if !g.mu.TryLock() {
		return ErrCycleInProgress
	}
	defer g.mu.Unlock()
	return fn()
}
