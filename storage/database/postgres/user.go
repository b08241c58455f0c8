package pgdb

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/tiba/core/user"
)

type dbUser struct {
	ID           int            `db:"id"`
	Name         string         `db:"name"`
	Username     string         `db:"username"`
	Email        string         `db:"email"`
	IsActive     bool           `db:"is_active"`
	Roles        pq.StringArray `db:"roles"`
	PasswordHash []byte         `db:"password_hash"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
	LastLogin    null.Time      `db:"last_login"`
}

func (u dbUser) toCore() user.User {
	usr := user.User{
		ID:           u.ID,
		Name:         u.Name,
		Username:     u.Username,
		Email:        u.Email,
		IsActive:     u.IsActive,
		Roles:        u.Roles,
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
	if u.LastLogin.Valid {
		usr.LastLogin = u.LastLogin.Time
	}
	return usr
}

func toCoreUsers(dbUsers []dbUser) []user.User {
	users := make([]user.User, 0, len(dbUsers))
	for _, u := range dbUsers {
		users = append(users, u.toCore())
	}
	return users
}

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *sqlx.DB) user.Repository {
	return &userRepository{db: db}
}

func (repo *userRepository) CheckUsernameUniqueness(username, email string, excludedUsers ...user.User) error {
	exclIDs := make(pq.Int64Array, 0, len(excludedUsers))
	for _, usr := range excludedUsers {
		exclIDs = append(exclIDs, int64(usr.ID))
	}

	var taken struct {
		Username bool `db:"username_taken"`
		Email    bool `db:"email_taken"`
	}
	err := repo.db.Get(&taken, `
		SELECT count(*) FILTER (WHERE username = $1 AND username <> '') > 0 AS username_taken,
		       count(*) FILTER (WHERE email = $2 AND email <> '') > 0 AS email_taken
		FROM "user"
		WHERE NOT (id = ANY ($3))`,
		username, email, exclIDs,
	)
	if err != nil {
		return errors.Wrap(err, "checking uniqueness")
	}
	if taken.Username {
		return user.ErrUsernameExists
	}
	if taken.Email {
		return user.ErrEmailExists
	}
	return nil
}

func (repo *userRepository) CreateUser(usr user.User) (user.User, error) {
	err := repo.db.Get(&usr.ID, `
		INSERT INTO "user" (name, username, email, is_active, roles, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		usr.Name, usr.Username, usr.Email, usr.IsActive, pq.StringArray(usr.Roles), usr.PasswordHash, usr.CreatedAt, usr.UpdatedAt,
	)
	if err != nil {
		return user.User{}, errors.Wrap(err, "creating user")
	}
	return usr, nil
}

func (repo *userRepository) QueryAllUsers() ([]user.User, error) {
	var dbUsers []dbUser
	if err := repo.db.Select(&dbUsers, `SELECT * FROM "user" ORDER BY created_at`); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	return toCoreUsers(dbUsers), nil
}

func (repo *userRepository) getBy(cond string, arg interface{}) (user.User, error) {
	var u dbUser
	err := repo.db.Get(&u, `SELECT * FROM "user" WHERE `+cond, arg)
	if err != nil {
		if err == sql.ErrNoRows {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, errors.Wrap(err, "getting user")
	}
	return u.toCore(), nil
}

func (repo *userRepository) GetUserByID(id int) (user.User, error) {
	return repo.getBy("id = $1", id)
}

func (repo *userRepository) GetUserByUsername(username string) (user.User, error) {
	return repo.getBy("username = $1 AND username <> ''", username)
}

func (repo *userRepository) GetUserByEmail(email string) (user.User, error) {
	return repo.getBy("email = $1 AND email <> ''", email)
}

func (repo *userRepository) GetUserByUsernameOrEmail(username string) (user.User, error) {
	return repo.getBy("(username = $1 OR email = $1) AND $1 <> ''", username)
}

func (repo *userRepository) FilterUsers(filter user.QueryFilter) ([]user.User, error) {
	where := make([]string, 0, 5)
	args := make([]interface{}, 0, 5)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Search != "" {
		n := arg("%" + filter.Search + "%")
		where = append(where, fmt.Sprintf("(name ILIKE %[1]s OR username ILIKE %[1]s OR email ILIKE %[1]s)", n))
	}
	if len(filter.Roles) > 0 {
		// a role filter matches hierarchically, "admin:" covers "admin:owner"
		conds := make([]string, 0, len(filter.Roles))
		for _, role := range filter.Roles {
			conds = append(conds, fmt.Sprintf("EXISTS (SELECT 1 FROM unnest(roles) AS r WHERE r LIKE %s)", arg(role+"%")))
		}
		where = append(where, "("+strings.Join(conds, " OR ")+")")
	}
	if filter.IsActive != nil {
		where = append(where, "is_active = "+arg(*filter.IsActive))
	}
	if !filter.CreatedFrom.IsZero() {
		where = append(where, "created_at >= "+arg(filter.CreatedFrom))
	}
	if !filter.CreatedTo.IsZero() {
		where = append(where, "created_at <= "+arg(filter.CreatedTo))
	}

	q := `SELECT * FROM "user"`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at"

	var dbUsers []dbUser
	if err := repo.db.Select(&dbUsers, q, args...); err != nil {
		return nil, errors.Wrap(err, "filtering users")
	}
	return toCoreUsers(dbUsers), nil
}

func (repo *userRepository) UpdateUser(usr user.User, isActive *bool) (user.User, error) {
	// only save set fields
	sets := []string{"name = :name", "username = :username", "email = :email", "updated_at = :updated_at"}
	params := map[string]interface{}{
		"id":         usr.ID,
		"name":       usr.Name,
		"username":   usr.Username,
		"email":      usr.Email,
		"updated_at": usr.UpdatedAt,
	}
	if usr.Roles != nil {
		sets = append(sets, "roles = :roles")
		params["roles"] = pq.StringArray(usr.Roles)
	}
	if usr.PasswordHash != nil {
		sets = append(sets, "password_hash = :password_hash")
		params["password_hash"] = usr.PasswordHash
	}
	if isActive != nil {
		sets = append(sets, "is_active = :is_active")
		params["is_active"] = *isActive
	}

	res, err := repo.db.NamedExec(`UPDATE "user" SET `+strings.Join(sets, ", ")+` WHERE id = :id`, params)
	if err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return repo.GetUserByID(usr.ID)
}

func (repo *userRepository) SetUserLastLogin(id int, t time.Time) error {
	res, err := repo.db.Exec(`UPDATE "user" SET last_login = $2 WHERE id = $1`, id, t)
	if err != nil {
		return errors.Wrap(err, "setting last login")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return user.ErrNotFound
	}
	return nil
}

func (repo *userRepository) DeleteUsersByID(ids ...int) error {
	_, err := repo.db.Exec(`DELETE FROM "user" WHERE id = ANY ($1)`, pq.Array(ids))
	return errors.Wrap(err, "deleting users")
}
