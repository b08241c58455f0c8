package game

import (
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/tiba/core"
)

type fakeGameRepo struct {
	sessions map[uuid.UUID]Session
	progress map[int]Progress

	conflicts     int // fail the next N CompleteSession calls with ErrConflict
	failures      int // fail the next N CompleteSession calls outright
	completeCalls int
}

func newFakeGameRepo() *fakeGameRepo {
	return &fakeGameRepo{
		sessions: make(map[uuid.UUID]Session),
		progress: make(map[int]Progress),
	}
}

func (repo *fakeGameRepo) CompleteSession(sess Session, prog Progress) error {
	repo.completeCalls++
	if repo.conflicts > 0 {
		repo.conflicts--
		return ErrConflict
	}
	if repo.failures > 0 {
		repo.failures--
		return errors.New("storage down")
	}
	if _, ok := repo.sessions[sess.ID]; ok {
		return ErrSessionExists
	}
	repo.sessions[sess.ID] = sess
	repo.progress[prog.UserID] = prog
	return nil
}

func (repo *fakeGameRepo) ListSessions(userID int) ([]Session, error) {
	sessions := make([]Session, 0)
	for _, sess := range repo.sessions {
		if sess.UserID == userID {
			sessions = append(sessions, sess)
		}
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].StartedAt.Before(sessions[j].StartedAt) })
	return sessions, nil
}

func (repo *fakeGameRepo) GetProgress(userID int) (Progress, error) {
	prog, ok := repo.progress[userID]
	if !ok {
		return Progress{}, ErrProgressNotFound
	}
	return prog, nil
}

func (repo *fakeGameRepo) SetProgress(prog Progress) error {
	repo.progress[prog.UserID] = prog
	return nil
}

func (repo *fakeGameRepo) count(userID int) int {
	n := 0
	for _, sess := range repo.sessions {
		if sess.UserID == userID {
			n++
		}
	}
	return n
}

func validSession(log ...PlayEntry) Session {
	if len(log) == 0 {
		log = []PlayEntry{{0.8, OutcomeCorrect}}
	}
	return Session{ID: uuid.New(), StartedAt: time.Now().UTC(), LevelSpan: 5, PlayLog: log}
}

func TestServiceCompleteSession(t *testing.T) {
	repo := newFakeGameRepo()
	svc := NewService(repo)

	// first session of a fresh user
	prog, err := svc.CompleteSession(1, validSession(
		PlayEntry{0.8, OutcomeCorrect},
		PlayEntry{TimeoutResponseTime, OutcomeNotDone},
		PlayEntry{1.2, OutcomeIncorrect},
		PlayEntry{0.5, OutcomeCorrect},
	))
	if err != nil {
		t.Fatalf("CompleteSession() failed: %v", err)
	}
	if prog.TotalScore != 15 {
		t.Errorf("TotalScore = %v, want 15", prog.TotalScore)
	}
	if prog.Level != 1 {
		t.Errorf("Level = %v, want 1", prog.Level)
	}
	if prog.LevelSpan != DefaultLevelSpan {
		t.Errorf("LevelSpan = %v, want %v", prog.LevelSpan, DefaultLevelSpan)
	}
	if got := repo.count(1); got != 1 {
		t.Errorf("stored sessions = %v, want 1", got)
	}

	// the total accumulates across sessions and the level follows it
	log := make([]PlayEntry, 0, 9)
	for i := 0; i < 9; i++ {
		log = append(log, PlayEntry{0.5, OutcomeCorrect})
	}
	prog, err = svc.CompleteSession(1, validSession(log...))
	if err != nil {
		t.Fatalf("CompleteSession() failed: %v", err)
	}
	if prog.TotalScore != 105 {
		t.Errorf("TotalScore = %v, want 105", prog.TotalScore)
	}
	if prog.Level != 2 {
		t.Errorf("Level = %v, want 2", prog.Level)
	}
}

func TestServiceCompleteSession_totalNeverDecreases(t *testing.T) {
	svc := NewService(newFakeGameRepo())

	prog, err := svc.CompleteSession(1, validSession(PlayEntry{0.5, OutcomeCorrect}, PlayEntry{0.6, OutcomeCorrect}))
	if err != nil {
		t.Fatalf("CompleteSession() failed: %v", err)
	}
	before := prog.TotalScore

	// an all-incorrect session scores 0, not negative
	prog, err = svc.CompleteSession(1, validSession(PlayEntry{1, OutcomeIncorrect}, PlayEntry{2, OutcomeIncorrect}, PlayEntry{3, OutcomeIncorrect}))
	if err != nil {
		t.Fatalf("CompleteSession() failed: %v", err)
	}
	if prog.TotalScore != before {
		t.Errorf("TotalScore = %v, want unchanged %v", prog.TotalScore, before)
	}
}

func TestServiceCompleteSession_invalidLogRejected(t *testing.T) {
	repo := newFakeGameRepo()
	svc := NewService(repo)

	tests := []struct {
		name string
		sess Session
	}{
		{name: "empty play log", sess: Session{StartedAt: time.Now().UTC(), LevelSpan: 5}},
		{name: "bad span", sess: Session{StartedAt: time.Now().UTC(), LevelSpan: 0, PlayLog: []PlayEntry{{0.8, OutcomeCorrect}}}},
		{name: "malformed entry", sess: Session{StartedAt: time.Now().UTC(), LevelSpan: 5, PlayLog: []PlayEntry{{6, OutcomeCorrect}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.CompleteSession(1, tt.sess); errors.Cause(err) != ErrInvalidSessionData {
				t.Errorf("CompleteSession() error = %v, want %v", err, ErrInvalidSessionData)
			}
		})
	}

	// nothing may have been stored
	if got := repo.count(1); got != 0 {
		t.Errorf("stored sessions = %v, want 0", got)
	}
	if repo.completeCalls != 0 {
		t.Errorf("store calls = %v, want 0", repo.completeCalls)
	}
}

func TestServiceCompleteSession_conflictRetriedOnce(t *testing.T) {
	repo := newFakeGameRepo()
	svc := NewService(repo)

	repo.conflicts = 1
	prog, err := svc.CompleteSession(1, validSession())
	if err != nil {
		t.Fatalf("CompleteSession() failed on a single conflict: %v", err)
	}
	if prog.TotalScore != CorrectPoints {
		t.Errorf("TotalScore = %v, want %v", prog.TotalScore, CorrectPoints)
	}
	if repo.completeCalls != 2 {
		t.Errorf("store calls = %v, want 2", repo.completeCalls)
	}

	// two conflicts in a row exhaust the retry
	repo.conflicts = 2
	if _, err := svc.CompleteSession(1, validSession()); errors.Cause(err) != ErrConflict {
		t.Errorf("CompleteSession() error = %v, want %v", err, ErrConflict)
	}
}

// A submission that failed to persist leaves no trace, so the client's retry
// of the same session must count it exactly once.
func TestServiceCompleteSession_retryAfterFailureCountsOnce(t *testing.T) {
	repo := newFakeGameRepo()
	svc := NewService(repo)

	sess := validSession()
	repo.failures = 1
	if _, err := svc.CompleteSession(1, sess); err == nil {
		t.Fatal("CompleteSession() succeeded against a failing store")
	}
	if got := repo.count(1); got != 0 {
		t.Fatalf("stored sessions after failed write = %v, want 0", got)
	}

	prog, err := svc.CompleteSession(1, sess)
	if err != nil {
		t.Fatalf("CompleteSession() retry failed: %v", err)
	}
	if got := repo.count(1); got != 1 {
		t.Errorf("stored sessions = %v, want 1", got)
	}
	if prog.TotalScore != CorrectPoints {
		t.Errorf("TotalScore = %v, want %v", prog.TotalScore, CorrectPoints)
	}
}

// A lost response makes the client deliver an already stored session again;
// the duplicate must change nothing and report the current progress.
func TestServiceCompleteSession_duplicateSubmissionIdempotent(t *testing.T) {
	repo := newFakeGameRepo()
	svc := NewService(repo)

	sess := validSession()
	first, err := svc.CompleteSession(1, sess)
	if err != nil {
		t.Fatalf("CompleteSession() failed: %v", err)
	}

	again, err := svc.CompleteSession(1, sess)
	if err != nil {
		t.Fatalf("CompleteSession() resubmission failed: %v", err)
	}
	if again.TotalScore != first.TotalScore {
		t.Errorf("TotalScore = %v, want unchanged %v", again.TotalScore, first.TotalScore)
	}
	if got := repo.count(1); got != 1 {
		t.Errorf("stored sessions = %v, want 1", got)
	}
}

func TestServiceProgressOf_freshUserDefaults(t *testing.T) {
	svc := NewService(newFakeGameRepo())

	prog, err := svc.ProgressOf(42)
	if err != nil {
		t.Fatalf("ProgressOf() failed: %v", err)
	}
	if prog.TotalScore != 0 || prog.Level != 1 || prog.LevelSpan != DefaultLevelSpan {
		t.Errorf("fresh progress = %+v, want score 0, level 1, span %v", prog, DefaultLevelSpan)
	}
}

func TestServiceSetLevelSpan(t *testing.T) {
	svc := NewService(newFakeGameRepo())

	if err := svc.SetLevelSpan(1, 0); !core.IsValidationError(err) {
		t.Errorf("SetLevelSpan(0) error = %v, want a validation error", err)
	}
	if err := svc.SetLevelSpan(1, 11); !core.IsValidationError(err) {
		t.Errorf("SetLevelSpan(11) error = %v, want a validation error", err)
	}

	if err := svc.SetLevelSpan(1, 7); err != nil {
		t.Fatalf("SetLevelSpan() failed: %v", err)
	}
	if span, err := svc.LevelSpan(1); err != nil || span != 7 {
		t.Errorf("LevelSpan() = %v, %v, want 7, nil", span, err)
	}

	// the new span survives progress updates
	if _, err := svc.CompleteSession(1, validSession()); err != nil {
		t.Fatalf("CompleteSession() failed: %v", err)
	}
	if span, _ := svc.LevelSpan(1); span != 7 {
		t.Errorf("LevelSpan() after session = %v, want 7", span)
	}
}

func TestServiceReportWindows(t *testing.T) {
	repo := newFakeGameRepo()
	svc := NewService(repo)

	base := time.Date(2021, time.March, 1, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 12; i++ {
		sess := validSession()
		sess.UserID = 1
		sess.StartedAt = base.Add(time.Duration(i) * time.Hour)
		prog := Progress{UserID: 1, TotalScore: (i + 1) * CorrectPoints, Level: 1, LevelSpan: 5, UpdatedAt: sess.StartedAt}
		if err := repo.CompleteSession(sess, prog); err != nil {
			t.Fatalf("CompleteSession() failed: %v", err)
		}
	}

	basic, err := svc.BasicStats(1)
	if err != nil {
		t.Fatalf("BasicStats() failed: %v", err)
	}
	if got := len(basic.Sessions); got != BasicSessionWindow {
		t.Errorf("basic window = %v, want %v", got, BasicSessionWindow)
	}
	if basic.Overall.SessionsPlayed != 12 {
		t.Errorf("SessionsPlayed = %v, want 12 (overall stats span all sessions)", basic.Overall.SessionsPlayed)
	}

	detailed, err := svc.DetailedReport(1)
	if err != nil {
		t.Fatalf("DetailedReport() failed: %v", err)
	}
	if got := len(detailed.Sessions); got != DetailedSessionWindow {
		t.Errorf("detailed window = %v, want %v", got, DetailedSessionWindow)
	}
	// oldest of the window first
	if !detailed.Sessions[0].StartedAt.Equal(base.Add(2 * time.Hour)) {
		t.Errorf("window starts at %v, want %v", detailed.Sessions[0].StartedAt, base.Add(2*time.Hour))
	}
}
