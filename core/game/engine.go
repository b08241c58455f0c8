package game

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/tiba/core"
)

// State is the trial state machine's current phase.
type State int

const (
	StateIdle State = iota // no session active
	StateShowing
	StatePaused
	StateFeedback
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateShowing:
		return "showing"
	case StatePaused:
		return "paused"
	case StateFeedback:
		return "feedback"
	}
	return "unknown"
}

var ErrNoActiveSession = errors.New("no active session")

// Presenter receives rendering notifications from the Engine.
// Implementations must not block; they may call back into the Engine.
type Presenter interface {
	// ShowTrial renders the stimulus for the given target index.
	ShowTrial(target int)
	// ShowFeedback renders a trial's outcome for the given dwell time.
	ShowFeedback(entry PlayEntry, dwell time.Duration)
}

type nopPresenter struct{}

func (nopPresenter) ShowTrial(int)                         {}
func (nopPresenter) ShowFeedback(PlayEntry, time.Duration) {}

// Options configures an Engine for one user's play sessions.
// Zero values fall back to the configured game defaults.
type Options struct {
	NumSections   int           // input regions per trial; targets drawn uniformly from 0..NumSections-1
	LevelSpan     int           // seconds allowed per trial, fixed for the session
	FeedbackDwell time.Duration // outcome display time between trials
	Presenter     Presenter     // optional
}

// Snapshot is a read-only view of the engine state for the presentation layer.
type Snapshot struct {
	State       State     `json:"state"`
	Target      int       `json:"target"` // -1 when no trial is in flight
	Trials      int       `json:"trials"` // completed trials so far
	LevelSpan   int       `json:"level_span"`
	NumSections int       `json:"num_sections"`
	StartedAt   time.Time `json:"started_at"`
}

// Engine sequences trials for a single session: Showing → (Responded|TimedOut)
// → Feedback → Showing, with Pause/Resume orthogonal to Showing. All state is
// owned by the engine and transitioned only through its methods; the
// presentation layer observes via Presenter notifications and Snapshot.
type Engine struct {
	mu sync.Mutex

	numSections int
	levelSpan   int
	dwell       time.Duration
	presenter   Presenter
	intn        func(n int) int // mockable target selection

	state     State
	clock     *TrialClock
	clockSeq  uint64
	target    int
	feedback  *time.Timer
	playLog   []PlayEntry
	startedAt time.Time
}

func NewEngine(opts Options) (*Engine, error) {
	if opts.NumSections == 0 {
		opts.NumSections = core.Conf.Game.NumSections
	}
	if opts.LevelSpan == 0 {
		opts.LevelSpan = core.Conf.Game.LevelSpan
	}
	if opts.FeedbackDwell <= 0 {
		opts.FeedbackDwell = core.Conf.Game.FeedbackDwell
	}
	if opts.NumSections < MinSections || opts.NumSections > MaxSections {
		return nil, core.NewValidationError(nil, core.FieldError{
			Field: "num_sections",
			Error: fmt.Sprintf("must be between %d and %d", MinSections, MaxSections),
		})
	}
	if opts.LevelSpan < MinLevelSpan || opts.LevelSpan > MaxLevelSpan {
		return nil, core.NewValidationError(nil, core.FieldError{
			Field: "level_span",
			Error: fmt.Sprintf("must be between %d and %d", MinLevelSpan, MaxLevelSpan),
		})
	}
	if opts.Presenter == nil {
		opts.Presenter = nopPresenter{}
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	e := &Engine{
		numSections: opts.NumSections,
		levelSpan:   opts.LevelSpan,
		dwell:       opts.FeedbackDwell,
		presenter:   opts.Presenter,
		intn:        rng.Intn,
		state:       StateIdle,
		target:      -1,
	}
	e.clock = NewTrialClock(e.handleTimeout)
	return e, nil
}

// Start begins a new session and shows the first trial.
func (e *Engine) Start() error {
	e.mu.Lock()
	if e.state != StateIdle {
		e.mu.Unlock()
		return errors.New("session already active")
	}
	e.state = StateShowing
	e.startedAt = time.Now().UTC()
	e.playLog = nil
	target := e.nextTrialLocked()
	e.mu.Unlock()

	e.presenter.ShowTrial(target)
	return nil
}

// nextTrialLocked selects a new random target and arms the clock. Caller holds e.mu.
func (e *Engine) nextTrialLocked() int {
	e.target = e.intn(e.numSections)
	e.clockSeq = e.clock.Start(time.Duration(e.levelSpan) * time.Second)
	return e.target
}

// Input feeds a raw input index (key or region) into the current trial.
// Inputs outside the active range, or arriving outside the Showing state,
// or losing the race against the timeout, are ignored.
func (e *Engine) Input(index int) {
	e.mu.Lock()
	if e.state != StateShowing || index < 0 || index >= e.numSections {
		e.mu.Unlock()
		return
	}

	elapsed, won := e.clock.Cancel()
	if !won {
		// timeout fired first and is authoritative
		e.mu.Unlock()
		return
	}

	outcome := OutcomeIncorrect
	if index == e.target {
		outcome = OutcomeCorrect
	}
	entry, err := NewPlayEntry(outcome, elapsed, e.levelSpan)
	if err != nil {
		// cannot happen: elapsed is capped at the span and non-negative
		e.mu.Unlock()
		return
	}
	e.recordLocked(entry)
	e.mu.Unlock()

	e.presenter.ShowFeedback(entry, e.dwell)
}

// handleTimeout is the clock's timeout callback.
func (e *Engine) handleTimeout(seq uint64) {
	e.mu.Lock()
	if e.state != StateShowing || seq != e.clockSeq {
		e.mu.Unlock()
		return
	}
	entry := NewTimedOutEntry()
	e.recordLocked(entry)
	e.mu.Unlock()

	e.presenter.ShowFeedback(entry, e.dwell)
}

// recordLocked appends the trial's entry and enters Feedback. Caller holds e.mu.
func (e *Engine) recordLocked(entry PlayEntry) {
	e.playLog = append(e.playLog, entry)
	e.state = StateFeedback
	e.target = -1

	seq := e.clockSeq
	e.feedback = time.AfterFunc(e.dwell, func() { e.advance(seq) })
}

// advance leaves Feedback and shows the next trial, unless the session ended meanwhile.
func (e *Engine) advance(seq uint64) {
	e.mu.Lock()
	if e.state != StateFeedback || seq != e.clockSeq {
		e.mu.Unlock()
		return
	}
	e.state = StateShowing
	target := e.nextTrialLocked()
	e.mu.Unlock()

	e.presenter.ShowTrial(target)
}

// Pause suspends the current trial's countdown. Only valid while Showing.
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateShowing {
		return
	}
	e.clock.Pause()
	e.state = StatePaused
}

// Resume returns to Showing; the countdown restarts at the full level span.
// A fresh sequence is armed so that a timeout which claimed the clock in the
// instant before the pause landed cannot leave the trial without a countdown.
func (e *Engine) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StatePaused {
		return
	}
	e.state = StateShowing
	e.clockSeq = e.clock.Start(time.Duration(e.levelSpan) * time.Second)
}

// End closes the session from any state and returns it with the recorded play
// log. An in-flight trial is discarded without producing an entry.
func (e *Engine) End() (Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == StateIdle {
		return Session{}, ErrNoActiveSession
	}
	e.clock.Stop()
	if e.feedback != nil {
		e.feedback.Stop()
	}
	e.state = StateIdle
	e.target = -1

	log := make([]PlayEntry, len(e.playLog))
	copy(log, e.playLog)
	e.playLog = nil

	return Session{
		ID:        uuid.New(),
		StartedAt: e.startedAt,
		LevelSpan: e.levelSpan,
		PlayLog:   log,
	}, nil
}

// Snapshot returns a read-only view of the current engine state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	return Snapshot{
		State:       e.state,
		Target:      e.target,
		Trials:      len(e.playLog),
		LevelSpan:   e.levelSpan,
		NumSections: e.numSections,
		StartedAt:   e.startedAt,
	}
}
