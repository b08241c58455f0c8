package inmemdb

import (
	"sync"

	"github.com/google/uuid"

	"github.com/trezcool/tiba/core/game"
	"github.com/trezcool/tiba/core/user"
)

type (
	DB struct {
		user     *userTable
		session  *sessionTable
		progress *progressTable
	}

	userTable struct {
		sync.RWMutex
		table   map[int]*user.User
		pkCount int
	}

	sessionTable struct {
		sync.RWMutex
		table map[uuid.UUID]*game.Session
	}

	progressTable struct {
		sync.RWMutex
		table map[int]*game.Progress
	}
)

func Open() (*DB, error) {
	db := &DB{
		user:     &userTable{table: make(map[int]*user.User)},
		session:  &sessionTable{table: make(map[uuid.UUID]*game.Session)},
		progress: &progressTable{table: make(map[int]*game.Progress)},
	}
	return db, nil
}
