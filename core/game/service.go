package game

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/tiba/core"
)

var (
	// errors
	ErrProgressNotFound = errors.New("progress not found")
	// ErrConflict is returned by repositories when the store could not
	// serialize a progress update against a concurrent one.
	ErrConflict = errors.New("concurrent progress update")
	// ErrSessionExists is returned by CompleteSession when the session ID is
	// already stored; the submission is a duplicate delivery.
	ErrSessionExists = errors.New("session already recorded")
)

type (
	Repository interface {
		// CompleteSession stores a closed session and the user's updated
		// progress in one atomic write; either both land or neither does.
		// A session ID already stored aborts with ErrSessionExists and no
		// mutation. A stored play log is immutable from then on.
		CompleteSession(sess Session, prog Progress) error
		// ListSessions returns all of a user's sessions in chronological order.
		ListSessions(userID int) ([]Session, error)
		GetProgress(userID int) (Progress, error)
		SetProgress(prog Progress) error
	}

	// Service applies the scoring & leveling policy to closed sessions and
	// serves the analytics views. Score application is serialized per user so
	// the running total stays monotone.
	Service struct {
		repo Repository

		mu      sync.Mutex
		userMus map[int]*sync.Mutex
	}

	// Report is the detailed doctor-facing analytics view.
	Report struct {
		Overall  OverallStats   `json:"overall"`
		Sessions []SessionStats `json:"sessions"`
	}
)

func NewService(repo Repository) *Service {
	return &Service{
		repo:    repo,
		userMus: make(map[int]*sync.Mutex),
	}
}

func (svc *Service) userMu(userID int) *sync.Mutex {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	mu, ok := svc.userMus[userID]
	if !ok {
		mu = new(sync.Mutex)
		svc.userMus[userID] = mu
	}
	return mu
}

// CompleteSession validates a closed session's play log, applies its score
// delta to the user's running total, recomputes the level and persists the
// session and the updated progress in one atomic write. An invalid log aborts
// with ErrInvalidSessionData and no mutation; a storage conflict is retried
// once. Resubmitting an already stored session ID (a client retrying a lost
// response) counts nothing twice and returns the current progress.
func (svc *Service) CompleteSession(userID int, sess Session) (Progress, error) {
	if err := sess.Validate(); err != nil {
		return Progress{}, err
	}
	sess.UserID = userID
	if sess.ID == uuid.Nil {
		sess.ID = uuid.New()
	}

	mu := svc.userMu(userID)
	mu.Lock()
	defer mu.Unlock()

	prog, err := svc.completeOnce(sess)
	if errors.Cause(err) == ErrConflict {
		prog, err = svc.completeOnce(sess)
	}
	if errors.Cause(err) == ErrSessionExists {
		return svc.ProgressOf(userID)
	}
	if err != nil {
		return Progress{}, errors.Wrap(err, "completing session")
	}
	return prog, nil
}

// completeOnce reads the user's progress, folds in the session's score and
// hands both to the store. Rerun on conflict: it re-reads the progress.
func (svc *Service) completeOnce(sess Session) (Progress, error) {
	prog, err := svc.repo.GetProgress(sess.UserID)
	if err != nil {
		if errors.Cause(err) != ErrProgressNotFound {
			return Progress{}, errors.Wrap(err, "getting progress")
		}
		prog = Progress{
			UserID:    sess.UserID,
			Level:     LevelForScore(0),
			LevelSpan: DefaultLevelSpan,
		}
	}

	prog.TotalScore += SessionScore(sess.PlayLog)
	prog.Level = LevelForScore(prog.TotalScore)
	prog.UpdatedAt = time.Now().UTC()

	return prog, svc.repo.CompleteSession(sess, prog)
}

// setProgressRetry retries once on a serialization conflict, then gives up.
func (svc *Service) setProgressRetry(prog Progress) error {
	err := svc.repo.SetProgress(prog)
	if errors.Cause(err) == ErrConflict {
		err = svc.repo.SetProgress(prog)
	}
	return err
}

// ProgressOf returns the user's current progress; fresh users get the zero
// progress with the default level span.
func (svc *Service) ProgressOf(userID int) (Progress, error) {
	prog, err := svc.repo.GetProgress(userID)
	if err != nil {
		if errors.Cause(err) == ErrProgressNotFound {
			return Progress{
				UserID:    userID,
				Level:     LevelForScore(0),
				LevelSpan: DefaultLevelSpan,
			}, nil
		}
		return Progress{}, err
	}
	return prog, nil
}

// LevelSpan returns the span (seconds per trial) for the user's next session.
func (svc *Service) LevelSpan(userID int) (int, error) {
	prog, err := svc.ProgressOf(userID)
	if err != nil {
		return 0, err
	}
	return prog.LevelSpan, nil
}

// SetLevelSpan updates the span applied to the user's next session.
func (svc *Service) SetLevelSpan(userID, span int) error {
	if span < MinLevelSpan || span > MaxLevelSpan {
		return core.NewValidationError(nil, core.FieldError{
			Field: "level_span",
			Error: fmt.Sprintf("must be between %d and %d", MinLevelSpan, MaxLevelSpan),
		})
	}

	mu := svc.userMu(userID)
	mu.Lock()
	defer mu.Unlock()

	prog, err := svc.ProgressOf(userID)
	if err != nil {
		return err
	}
	prog.LevelSpan = span
	prog.UpdatedAt = time.Now().UTC()
	return svc.setProgressRetry(prog)
}

// BasicStats is the patient/caretaker view: overall summary plus the last
// BasicSessionWindow sessions.
func (svc *Service) BasicStats(userID int) (Report, error) {
	return svc.report(userID, BasicSessionWindow)
}

// DetailedReport is the doctor view: overall summary plus the last
// DetailedSessionWindow sessions.
func (svc *Service) DetailedReport(userID int) (Report, error) {
	return svc.report(userID, DetailedSessionWindow)
}

func (svc *Service) report(userID, window int) (Report, error) {
	sessions, err := svc.repo.ListSessions(userID)
	if err != nil {
		return Report{}, errors.Wrap(err, "listing sessions")
	}
	return Report{
		Overall:  OverallStatsOf(sessions),
		Sessions: PerSessionStats(LastN(sessions, window)),
	}, nil
}
