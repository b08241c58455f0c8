package game

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestTrialClock_timeoutFiresExactlyOnce(t *testing.T) {
	fired := make(chan uint64, 2)
	clock := NewTrialClock(func(seq uint64) { fired <- seq })

	seq := clock.Start(20 * time.Millisecond)

	select {
	case got := <-fired:
		if got != seq {
			t.Errorf("timeout seq = %v, want %v", got, seq)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timeout never fired")
	}

	// the terminal event is taken; a late response must lose
	if _, won := clock.Cancel(); won {
		t.Error("Cancel() won after timeout fired")
	}
	select {
	case <-fired:
		t.Error("timeout fired twice")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTrialClock_cancelSuppressesTimeout(t *testing.T) {
	fired := make(chan uint64, 1)
	clock := NewTrialClock(func(seq uint64) { fired <- seq })

	clock.Start(30 * time.Millisecond)
	elapsed, won := clock.Cancel()
	if !won {
		t.Fatal("Cancel() lost with no timeout pending")
	}
	if elapsed < 0 {
		t.Errorf("elapsed = %v, want >= 0", elapsed)
	}

	// second cancel is a no-op
	if _, won := clock.Cancel(); won {
		t.Error("Cancel() won twice")
	}

	select {
	case <-fired:
		t.Error("timeout fired after successful Cancel()")
	case <-time.After(100 * time.Millisecond):
	}
}

// Exactly one terminal event per trial, for any interleaving of a response and
// the deadline. Cancel is raced against the timeout on purpose.
func TestTrialClock_singleWinner(t *testing.T) {
	const trials = 50
	span := 2 * time.Millisecond

	var timeouts uint64
	clock := NewTrialClock(func(uint64) { atomic.AddUint64(&timeouts, 1) })

	var cancels uint64
	for i := 0; i < trials; i++ {
		clock.Start(span)
		time.Sleep(span) // land right on the deadline
		if _, won := clock.Cancel(); won {
			cancels++
		}
	}
	// let any in-flight timer callbacks settle
	time.Sleep(50 * time.Millisecond)

	if got := cancels + atomic.LoadUint64(&timeouts); got != trials {
		t.Errorf("terminal events = %v (cancels=%v timeouts=%v), want %v", got, cancels, timeouts, trials)
	}
}

func TestTrialClock_pauseThenRestart(t *testing.T) {
	span := 50 * time.Millisecond
	fired := make(chan uint64, 1)
	clock := NewTrialClock(func(seq uint64) { fired <- seq })

	clock.Start(span)
	clock.Pause()

	// no timeout may fire while paused, even past the deadline
	select {
	case <-fired:
		t.Fatal("timeout fired while paused")
	case <-time.After(2 * span):
	}

	// a fresh start arms a full countdown, not the remaining time
	restartedAt := time.Now()
	clock.Start(span)
	select {
	case <-fired:
		if since := time.Since(restartedAt); since < span-5*time.Millisecond {
			t.Errorf("timeout fired %v after restart, want a full %v countdown", since, span)
		}
	case <-time.After(2 * span):
		t.Fatal("timeout never fired after restart")
	}
}

// The deadline may win the race against a pause; the pause then lands on a
// finished countdown. A fresh start must still arm a working trial.
func TestTrialClock_startRearmsAfterDeadlineBeatsPause(t *testing.T) {
	fired := make(chan uint64, 2)
	clock := NewTrialClock(func(seq uint64) { fired <- seq })

	clock.Start(20 * time.Millisecond)
	select {
	case <-fired:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timeout never fired")
	}
	clock.Pause() // too late, the trial is over; must not wedge the clock

	clock.Start(time.Second)
	if _, won := clock.Cancel(); !won {
		t.Error("Cancel() lost on a freshly started trial")
	}
}

func TestTrialClock_stopDiscardsTrial(t *testing.T) {
	fired := make(chan uint64, 1)
	clock := NewTrialClock(func(seq uint64) { fired <- seq })

	clock.Start(20 * time.Millisecond)
	clock.Stop()

	select {
	case <-fired:
		t.Error("timeout fired after Stop()")
	case <-time.After(100 * time.Millisecond):
	}
	if _, won := clock.Cancel(); won {
		t.Error("Cancel() won after Stop()")
	}
}
