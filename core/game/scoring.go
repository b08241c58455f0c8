package game

// Scoring policy: each correct trial earns points, each incorrect trial costs
// some, timeouts are neutral. A session can never subtract from the user's
// historical total: its score is floored at 0 before accumulation.
const (
	CorrectPoints    = 10
	IncorrectPenalty = 5
	PointsPerLevel   = 100
)

// SessionScore reduces a play log to the session's score delta, floored at 0.
func SessionScore(log []PlayEntry) int {
	var raw int
	for _, entry := range log {
		switch entry.Outcome {
		case OutcomeCorrect:
			raw += CorrectPoints
		case OutcomeIncorrect:
			raw -= IncorrectPenalty
		}
	}
	if raw < 0 {
		return 0
	}
	return raw
}

// LevelForScore derives the level from a running total: one level per
// PointsPerLevel, starting at level 1.
func LevelForScore(totalScore int) int {
	if totalScore < 0 {
		totalScore = 0
	}
	return totalScore/PointsPerLevel + 1
}
