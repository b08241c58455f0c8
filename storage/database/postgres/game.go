package pgdb

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/tiba/core/game"
)

type dbSession struct {
	ID        uuid.UUID      `db:"id"`
	UserID    int            `db:"user_id"`
	StartedAt time.Time      `db:"started_at"`
	LevelSpan int            `db:"level_span"`
	PlayLog   types.JSONText `db:"play_log"`
}

func (s dbSession) toCore() (game.Session, error) {
	sess := game.Session{
		ID:        s.ID,
		UserID:    s.UserID,
		StartedAt: s.StartedAt,
		LevelSpan: s.LevelSpan,
	}
	if err := json.Unmarshal(s.PlayLog, &sess.PlayLog); err != nil {
		return game.Session{}, errors.Wrap(err, "decoding play log")
	}
	return sess, nil
}

type gameRepository struct {
	db *sqlx.DB
}

var _ game.Repository = (*gameRepository)(nil) // interface compliance check

func NewGameRepository(db *sqlx.DB) game.Repository {
	return &gameRepository{db: db}
}

// CompleteSession inserts the session and upserts the progress in one
// transaction. The session insert is keyed on the client-chosen ID; a
// duplicate aborts with ErrSessionExists so a retried submission cannot
// count twice.
func (repo *gameRepository) CompleteSession(sess game.Session, prog game.Progress) error {
	log, err := json.Marshal(sess.PlayLog)
	if err != nil {
		return errors.Wrap(err, "encoding play log")
	}

	tx, err := repo.db.Begin()
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}

	res, err := tx.Exec(`
		INSERT INTO game_session (id, user_id, started_at, level_span, play_log)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING`,
		sess.ID, sess.UserID, sess.StartedAt, sess.LevelSpan, types.JSONText(log),
	)
	if err != nil {
		tx.Rollback()
		return errors.Wrap(conflictErr(err), "storing session")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		tx.Rollback()
		return game.ErrSessionExists
	}

	_, err = tx.Exec(`
		INSERT INTO game_progress (user_id, total_score, level, level_span, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE
		SET total_score = EXCLUDED.total_score,
		    level       = EXCLUDED.level,
		    level_span  = EXCLUDED.level_span,
		    updated_at  = EXCLUDED.updated_at`,
		prog.UserID, prog.TotalScore, prog.Level, prog.LevelSpan, prog.UpdatedAt,
	)
	if err != nil {
		tx.Rollback()
		return errors.Wrap(conflictErr(err), "storing progress")
	}
	return errors.Wrap(conflictErr(tx.Commit()), "completing session")
}

func (repo *gameRepository) ListSessions(userID int) ([]game.Session, error) {
	var dbSessions []dbSession
	err := repo.db.Select(&dbSessions, `
		SELECT * FROM game_session WHERE user_id = $1 ORDER BY started_at`, userID)
	if err != nil {
		return nil, errors.Wrap(err, "listing sessions")
	}

	sessions := make([]game.Session, 0, len(dbSessions))
	for _, s := range dbSessions {
		sess, err := s.toCore()
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, nil
}

func (repo *gameRepository) GetProgress(userID int) (game.Progress, error) {
	var prog game.Progress
	err := repo.db.QueryRowx(`
		SELECT user_id, total_score, level, level_span, updated_at
		FROM game_progress WHERE user_id = $1`, userID,
	).Scan(&prog.UserID, &prog.TotalScore, &prog.Level, &prog.LevelSpan, &prog.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return game.Progress{}, game.ErrProgressNotFound
		}
		return game.Progress{}, errors.Wrap(err, "getting progress")
	}
	return prog, nil
}

func (repo *gameRepository) SetProgress(prog game.Progress) error {
	_, err := repo.db.Exec(`
		INSERT INTO game_progress (user_id, total_score, level, level_span, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE
		SET total_score = EXCLUDED.total_score,
		    level       = EXCLUDED.level,
		    level_span  = EXCLUDED.level_span,
		    updated_at  = EXCLUDED.updated_at`,
		prog.UserID, prog.TotalScore, prog.Level, prog.LevelSpan, prog.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(conflictErr(err), "setting progress")
	}
	return nil
}

// conflictErr maps postgres serialization failures so the service layer can retry.
func conflictErr(err error) error {
	if perr, ok := err.(*pq.Error); ok {
		switch perr.Code {
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return game.ErrConflict
		}
	}
	return err
}
