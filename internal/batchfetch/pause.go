package batchfetch

import "sync"

// PauseToken is the cooperative halt signal for a run loop. The runner
// checks it before each outer batch and each concurrent group; requests
// already in flight are never aborted, they finish and are counted.
type PauseToken struct {
	mu     sync.Mutex
	paused bool
}

// Pause requests a halt at the next yield point.
func (t *PauseToken) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.paused = true
}

// Clear rearms the token so a resumed loop keeps going.
func (t *PauseToken) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.paused = false
}

// Paused reports whether a halt has been requested.
func (t *PauseToken) Paused() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.paused
}
