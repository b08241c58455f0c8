package inmemdb

import (
	"sort"

	"github.com/trezcool/tiba/core/game"
)

type gameRepository struct {
	sessions *sessionTable
	progress *progressTable
}

var _ game.Repository = (*gameRepository)(nil) // interface compliance check

func NewGameRepository(db *DB) game.Repository {
	return &gameRepository{sessions: db.session, progress: db.progress}
}

func (repo *gameRepository) CompleteSession(sess game.Session, prog game.Progress) error {
	repo.sessions.Lock()
	defer repo.sessions.Unlock()
	repo.progress.Lock()
	defer repo.progress.Unlock()

	if _, ok := repo.sessions.table[sess.ID]; ok {
		return game.ErrSessionExists
	}

	// copy the play log so the stored record stays immutable
	log := make([]game.PlayEntry, len(sess.PlayLog))
	copy(log, sess.PlayLog)
	sess.PlayLog = log

	repo.sessions.table[sess.ID] = &sess
	repo.progress.table[prog.UserID] = &prog
	return nil
}

func (repo *gameRepository) ListSessions(userID int) ([]game.Session, error) {
	repo.sessions.RLock()
	defer repo.sessions.RUnlock()

	sessions := make([]game.Session, 0)
	for _, sess := range repo.sessions.table {
		if sess.UserID == userID {
			sessions = append(sessions, *sess)
		}
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].StartedAt.Before(sessions[j].StartedAt) })
	return sessions, nil
}

func (repo *gameRepository) GetProgress(userID int) (game.Progress, error) {
	repo.progress.RLock()
	defer repo.progress.RUnlock()

	if prog, ok := repo.progress.table[userID]; ok {
		return *prog, nil
	}
	return game.Progress{}, game.ErrProgressNotFound
}

func (repo *gameRepository) SetProgress(prog game.Progress) error {
	repo.progress.Lock()
	defer repo.progress.Unlock()
	repo.progress.table[prog.UserID] = &prog
	return nil
}
