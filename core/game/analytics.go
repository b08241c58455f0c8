package game

import (
	"math"
	"sort"
	"time"
)

// Session windows exposed by the dashboards. Doctors get a detailed view of
// the last 10 sessions; patients and caretakers a basic view of the last 7.
const (
	DetailedSessionWindow = 10
	BasicSessionWindow    = 7
)

// SessionStats summarizes one session's play log.
type SessionStats struct {
	StartedAt time.Time `json:"started_at"`
	Correct   int       `json:"correct"`
	Incorrect int       `json:"incorrect"`
	NotDone   int       `json:"not_done"`
	Total     int       `json:"total"`
	Accuracy  float64   `json:"accuracy"` // percent, 1 decimal
}

// OverallStats summarizes every play entry ever recorded for a user.
type OverallStats struct {
	SessionsPlayed  int     `json:"sessions_played"`
	TotalCorrect    int     `json:"total_correct"`
	TotalIncorrect  int     `json:"total_incorrect"`
	TotalNotDone    int     `json:"total_not_done"`
	Accuracy        float64 `json:"accuracy"`          // percent, 1 decimal
	AvgResponseTime float64 `json:"avg_response_time"` // seconds; timeouts excluded
}

// OverallStatsOf aggregates all sessions of a user into one summary.
func OverallStatsOf(sessions []Session) OverallStats {
	stats := OverallStats{SessionsPlayed: len(sessions)}

	var timedSum float64
	var timedCount int
	for _, sess := range sessions {
		for _, entry := range sess.PlayLog {
			switch entry.Outcome {
			case OutcomeCorrect:
				stats.TotalCorrect++
			case OutcomeIncorrect:
				stats.TotalIncorrect++
			case OutcomeNotDone:
				stats.TotalNotDone++
			}
			if entry.Outcome != OutcomeNotDone {
				timedSum += entry.ResponseTime
				timedCount++
			}
		}
	}

	stats.Accuracy = accuracy(stats.TotalCorrect, stats.TotalIncorrect)
	if timedCount > 0 {
		stats.AvgResponseTime = timedSum / float64(timedCount)
	}
	return stats
}

// SessionStatsOf summarizes a single session.
func SessionStatsOf(sess Session) SessionStats {
	stats := SessionStats{
		StartedAt: sess.StartedAt,
		Total:     len(sess.PlayLog),
	}
	for _, entry := range sess.PlayLog {
		switch entry.Outcome {
		case OutcomeCorrect:
			stats.Correct++
		case OutcomeIncorrect:
			stats.Incorrect++
		case OutcomeNotDone:
			stats.NotDone++
		}
	}
	stats.Accuracy = accuracy(stats.Correct, stats.Incorrect)
	return stats
}

// PerSessionStats summarizes each session, preserving order.
func PerSessionStats(sessions []Session) []SessionStats {
	stats := make([]SessionStats, 0, len(sessions))
	for _, sess := range sessions {
		stats = append(stats, SessionStatsOf(sess))
	}
	return stats
}

// LastN returns the n most recent sessions by start time, in their original
// chronological order (oldest of the window first).
func LastN(sessions []Session, n int) []Session {
	ordered := make([]Session, len(sessions))
	copy(ordered, sessions)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].StartedAt.Before(ordered[j].StartedAt)
	})

	if n >= len(ordered) {
		return ordered
	}
	return ordered[len(ordered)-n:]
}

// accuracy is the percentage of correct responses among responded trials,
// rounded to 1 decimal; 0 when no trial was responded to.
func accuracy(correct, incorrect int) float64 {
	total := correct + incorrect
	if total == 0 {
		return 0
	}
	return math.Round(float64(correct)/float64(total)*1000) / 10
}
