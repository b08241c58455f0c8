package main

import (
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/tiba/core"
	"github.com/trezcool/tiba/core/user"
)

// addUser updates or creates a user.User
func (cli *commandLine) addUser(name, uname, email, pwd string, isAdmin bool) error {
	uname = core.CleanString(uname, true /* lower */)
	email = core.CleanString(email, true /* lower */)

	var usr user.User
	var found bool
	for _, key := range []string{uname, email} {
		if key == "" {
			continue
		}
		u, err := cli.usrRepo.GetUserByUsernameOrEmail(key)
		if err == nil {
			usr, found = u, true
			break
		}
		if errors.Cause(err) != user.ErrNotFound {
			return err
		}
	}

	now := time.Now().UTC()
	if !found {
		usr = user.User{
			Name:      core.CleanString(name),
			Username:  uname,
			Email:     email,
			CreatedAt: now,
		}
	}
	if isAdmin {
		usr.Roles = user.AllRoles
	}
	usr.IsActive = true
	usr.UpdatedAt = now
	if err := usr.SetPassword(pwd); err != nil {
		return err
	}

	var err error
	if found {
		_, err = cli.usrRepo.UpdateUser(usr, &usr.IsActive)
	} else {
		_, err = cli.usrRepo.CreateUser(usr)
	}
	return err
}
