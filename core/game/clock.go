package game

import (
	"sync"
	"time"
)

// TrialClock owns the countdown for the stimulus currently shown.
// For every trial it delivers exactly one terminal event: either the timeout
// callback fires, or Cancel wins and reports the elapsed response time.
// The race between the two is decided by a single-assignment result slot
// (the done flag): whichever side takes it first is authoritative, the other
// becomes a no-op. Stale timer callbacks from earlier trials are discarded
// by sequence number.
type TrialClock struct {
	mu        sync.Mutex
	onTimeout func(seq uint64)

	timer     *time.Timer
	seq       uint64
	startedAt time.Time
	paused    bool
	done      bool
}

// NewTrialClock returns a clock delivering timeouts to onTimeout.
// onTimeout is invoked outside the clock lock and may call back into Cancel/Start.
func NewTrialClock(onTimeout func(seq uint64)) *TrialClock {
	return &TrialClock{onTimeout: onTimeout}
}

// Start begins a fresh countdown for a new trial and returns its sequence number.
// Any previous countdown is implicitly invalidated.
func (c *TrialClock) Start(span time.Duration) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.timer != nil {
		c.timer.Stop()
	}
	c.seq++
	c.startedAt = time.Now()
	c.paused = false
	c.done = false

	seq := c.seq
	c.timer = time.AfterFunc(span, func() { c.fire(seq) })
	return seq
}

func (c *TrialClock) fire(seq uint64) {
	c.mu.Lock()
	if seq != c.seq || c.done || c.paused {
		c.mu.Unlock()
		return
	}
	c.done = true
	cb := c.onTimeout
	c.mu.Unlock()

	// invoke outside the lock: the handler may Cancel/Start the next trial
	cb(seq)
}

// Cancel claims the trial's terminal event for a response. It reports the
// elapsed time since the countdown (re)started and whether the response won
// the race; once the timeout has fired (or Cancel already succeeded) it
// returns false and the call is a no-op.
func (c *TrialClock) Cancel() (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.timer == nil || c.done || c.paused {
		return 0, false
	}
	c.done = true
	c.timer.Stop()
	return time.Since(c.startedAt), true
}

// Pause suspends the countdown; no timeout fires while paused.
func (c *TrialClock) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.timer == nil || c.done || c.paused {
		return
	}
	c.paused = true
	c.timer.Stop()
}

// Stop invalidates the current countdown without recording a terminal event.
func (c *TrialClock) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.done = true
	if c.timer != nil {
		c.timer.Stop()
	}
}
