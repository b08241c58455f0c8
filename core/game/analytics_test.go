package game

import (
	"math"
	"testing"
	"time"
)

func sessionAt(startedAt time.Time, log ...PlayEntry) Session {
	return Session{StartedAt: startedAt, LevelSpan: 5, PlayLog: log}
}

func TestOverallStatsOf(t *testing.T) {
	now := time.Now().UTC()
	sessions := []Session{
		sessionAt(now,
			PlayEntry{0.8, OutcomeCorrect},
			PlayEntry{TimeoutResponseTime, OutcomeNotDone},
			PlayEntry{1.2, OutcomeIncorrect},
			PlayEntry{0.5, OutcomeCorrect},
		),
	}

	stats := OverallStatsOf(sessions)
	if stats.SessionsPlayed != 1 {
		t.Errorf("SessionsPlayed = %v, want 1", stats.SessionsPlayed)
	}
	if stats.TotalCorrect != 2 || stats.TotalIncorrect != 1 || stats.TotalNotDone != 1 {
		t.Errorf("counts = %v/%v/%v, want 2/1/1", stats.TotalCorrect, stats.TotalIncorrect, stats.TotalNotDone)
	}
	if stats.Accuracy != 66.7 {
		t.Errorf("Accuracy = %v, want 66.7", stats.Accuracy)
	}
	// timeouts are excluded from the timing average
	wantAvg := (0.8 + 1.2 + 0.5) / 3
	if math.Abs(stats.AvgResponseTime-wantAvg) > 1e-9 {
		t.Errorf("AvgResponseTime = %v, want %v", stats.AvgResponseTime, wantAvg)
	}
}

func TestOverallStatsOf_empty(t *testing.T) {
	stats := OverallStatsOf(nil)
	if stats.Accuracy != 0 {
		t.Errorf("Accuracy = %v, want 0", stats.Accuracy)
	}
	if stats.AvgResponseTime != 0 {
		t.Errorf("AvgResponseTime = %v, want 0", stats.AvgResponseTime)
	}
}

// All-timeout logs must yield accuracy 0, not a division error.
func TestOverallStatsOf_allNotDone(t *testing.T) {
	now := time.Now().UTC()
	sessions := []Session{
		sessionAt(now, PlayEntry{TimeoutResponseTime, OutcomeNotDone}, PlayEntry{TimeoutResponseTime, OutcomeNotDone}),
	}

	stats := OverallStatsOf(sessions)
	if stats.Accuracy != 0 {
		t.Errorf("Accuracy = %v, want 0", stats.Accuracy)
	}
	if stats.AvgResponseTime != 0 {
		t.Errorf("AvgResponseTime = %v, want 0", stats.AvgResponseTime)
	}
	if stats.TotalNotDone != 2 {
		t.Errorf("TotalNotDone = %v, want 2", stats.TotalNotDone)
	}
}

func TestSessionStatsOf(t *testing.T) {
	now := time.Now().UTC()
	sess := sessionAt(now,
		PlayEntry{0.8, OutcomeCorrect},
		PlayEntry{TimeoutResponseTime, OutcomeNotDone},
		PlayEntry{1.2, OutcomeIncorrect},
		PlayEntry{0.5, OutcomeCorrect},
	)

	stats := SessionStatsOf(sess)
	if stats.Correct != 2 || stats.Incorrect != 1 || stats.NotDone != 1 || stats.Total != 4 {
		t.Errorf("counts = %v/%v/%v total %v, want 2/1/1 total 4", stats.Correct, stats.Incorrect, stats.NotDone, stats.Total)
	}
	if stats.Accuracy != 66.7 {
		t.Errorf("Accuracy = %v, want 66.7", stats.Accuracy)
	}
	if !stats.StartedAt.Equal(now) {
		t.Errorf("StartedAt = %v, want %v", stats.StartedAt, now)
	}
}

func TestLastN(t *testing.T) {
	base := time.Date(2021, time.March, 1, 8, 0, 0, 0, time.UTC)
	sessions := make([]Session, 0, 12)
	for i := 0; i < 12; i++ {
		sessions = append(sessions, sessionAt(base.Add(time.Duration(i)*time.Hour), PlayEntry{0.5, OutcomeCorrect}))
	}

	assertWindow := func(got []Session, firstIdx, wantLen int) {
		t.Helper()
		if len(got) != wantLen {
			t.Fatalf("window length = %v, want %v", len(got), wantLen)
		}
		for i, sess := range got {
			want := sessions[firstIdx+i].StartedAt
			if !sess.StartedAt.Equal(want) {
				t.Errorf("window[%d].StartedAt = %v, want %v", i, sess.StartedAt, want)
			}
		}
	}

	// doctor view: sessions 3-12 (0-based 2..11) in chronological order
	assertWindow(LastN(sessions, DetailedSessionWindow), 2, 10)
	// patient view: sessions 6-12 (0-based 5..11)
	assertWindow(LastN(sessions, BasicSessionWindow), 5, 7)
	// fewer sessions than the window
	assertWindow(LastN(sessions[:3], DetailedSessionWindow), 0, 3)
}

func TestLastN_unsortedInput(t *testing.T) {
	base := time.Date(2021, time.March, 1, 8, 0, 0, 0, time.UTC)
	sessions := []Session{
		sessionAt(base.Add(2*time.Hour), PlayEntry{0.5, OutcomeCorrect}),
		sessionAt(base, PlayEntry{0.5, OutcomeCorrect}),
		sessionAt(base.Add(time.Hour), PlayEntry{0.5, OutcomeCorrect}),
	}

	got := LastN(sessions, 2)
	if len(got) != 2 {
		t.Fatalf("window length = %v, want 2", len(got))
	}
	if !got[0].StartedAt.Equal(base.Add(time.Hour)) || !got[1].StartedAt.Equal(base.Add(2*time.Hour)) {
		t.Errorf("window not in chronological order: %v, %v", got[0].StartedAt, got[1].StartedAt)
	}
}

func TestAccuracyRounding(t *testing.T) {
	tests := []struct {
		correct, incorrect int
		want               float64
	}{
		{0, 0, 0},
		{1, 0, 100},
		{0, 3, 0},
		{2, 1, 66.7},
		{1, 2, 33.3},
		{1, 7, 12.5},
	}
	for _, tt := range tests {
		if got := accuracy(tt.correct, tt.incorrect); got != tt.want {
			t.Errorf("accuracy(%v, %v) = %v, want %v", tt.correct, tt.incorrect, got, tt.want)
		}
	}
}
