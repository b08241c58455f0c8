package game

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/tiba/core"
)

// Config bounds.
const (
	MinLevelSpan = 1 // seconds allowed per trial
	MaxLevelSpan = 10

	MinSections = 2 // input regions shown per trial
	MaxSections = 9
)

// DefaultLevelSpan seeds a fresh user's progress and is tuned via config.
var DefaultLevelSpan = core.Conf.Game.LevelSpan

// Outcome classifies a completed trial.
type Outcome int

const (
	OutcomeNotDone   Outcome = 0
	OutcomeCorrect   Outcome = 1
	OutcomeIncorrect Outcome = -1
)

func (o Outcome) Valid() bool {
	switch o {
	case OutcomeNotDone, OutcomeCorrect, OutcomeIncorrect:
		return true
	}
	return false
}

func (o Outcome) String() string {
	switch o {
	case OutcomeCorrect:
		return "correct"
	case OutcomeIncorrect:
		return "incorrect"
	case OutcomeNotDone:
		return "not_done"
	}
	return "unknown"
}

// TimeoutResponseTime is the sentinel response time recorded when a trial times out.
const TimeoutResponseTime float64 = -1

var ErrInvalidSessionData = errors.New("invalid session data")

// PlayEntry is the immutable record of one completed trial.
// Invariant: Outcome == OutcomeNotDone ⇔ ResponseTime == TimeoutResponseTime;
// otherwise 0 ≤ ResponseTime ≤ the level span in force when the trial ran.
type PlayEntry struct {
	ResponseTime float64 `json:"response_time"` // seconds, 1 decimal; -1 on timeout
	Outcome      Outcome `json:"outcome"`
}

// NewPlayEntry builds a validated entry for a responded trial.
// elapsed is capped at the level span: an input racing the deadline may
// measure marginally past it.
func NewPlayEntry(outcome Outcome, elapsed time.Duration, levelSpan int) (PlayEntry, error) {
	if outcome != OutcomeCorrect && outcome != OutcomeIncorrect {
		return PlayEntry{}, errors.Wrap(ErrInvalidSessionData, "responded trial requires a correct or incorrect outcome")
	}
	secs := roundResponseTime(elapsed.Seconds())
	if span := float64(levelSpan); secs > span {
		secs = span
	}
	if secs < 0 {
		return PlayEntry{}, errors.Wrap(ErrInvalidSessionData, "negative response time")
	}
	return PlayEntry{ResponseTime: secs, Outcome: outcome}, nil
}

// NewTimedOutEntry builds the entry recorded when no qualifying input arrived in time.
func NewTimedOutEntry() PlayEntry {
	return PlayEntry{ResponseTime: TimeoutResponseTime, Outcome: OutcomeNotDone}
}

// Validate checks the PlayEntry invariant against the session's level span.
func (e PlayEntry) Validate(levelSpan int) error {
	if !e.Outcome.Valid() {
		return errors.Wrapf(ErrInvalidSessionData, "unknown outcome %d", e.Outcome)
	}
	if e.Outcome == OutcomeNotDone {
		if e.ResponseTime != TimeoutResponseTime {
			return errors.Wrapf(ErrInvalidSessionData, "not_done entry must carry response time %v", TimeoutResponseTime)
		}
		return nil
	}
	if e.ResponseTime < 0 || e.ResponseTime > float64(levelSpan) {
		return errors.Wrapf(ErrInvalidSessionData, "response time %v out of range [0, %d]", e.ResponseTime, levelSpan)
	}
	return nil
}

// roundResponseTime rounds a duration in seconds to 1 decimal.
func roundResponseTime(secs float64) float64 {
	return math.Round(secs*10) / 10
}

// Session is an ordered run of trials under one level span, owned by one user.
type Session struct {
	ID        uuid.UUID   `json:"id"`
	UserID    int         `json:"user_id"`
	StartedAt time.Time   `json:"started_at"` // UTC
	LevelSpan int         `json:"level_span"` // seconds per trial, fixed for the whole session
	PlayLog   []PlayEntry `json:"play_log"`   // insertion order = chronological trial order
}

// Validate rejects sessions whose play log is empty or breaks the PlayEntry invariant.
func (s Session) Validate() error {
	if s.LevelSpan < MinLevelSpan || s.LevelSpan > MaxLevelSpan {
		return errors.Wrapf(ErrInvalidSessionData, "level span %d out of range [%d, %d]", s.LevelSpan, MinLevelSpan, MaxLevelSpan)
	}
	if len(s.PlayLog) == 0 {
		return errors.Wrap(ErrInvalidSessionData, "empty play log")
	}
	for i, entry := range s.PlayLog {
		if err := entry.Validate(s.LevelSpan); err != nil {
			return errors.Wrapf(err, "play log entry %d", i)
		}
	}
	return nil
}

// Progress is the per-user running total, derived level and level span setting.
// LevelSpan applies to the user's next session only.
type Progress struct {
	UserID     int       `json:"user_id"`
	TotalScore int       `json:"total_score"`
	Level      int       `json:"level"`
	LevelSpan  int       `json:"level_span"`
	UpdatedAt  time.Time `json:"updated_at"` // UTC
}
