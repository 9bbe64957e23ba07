package sqlxrepos

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/schoolsaas/core"
	"github.com/trezcool/schoolsaas/core/user"
)

const userColumns = `id, school_id, name, username, email, is_active, roles, password_hash, created_at, updated_at, last_login`

type dbUser struct {
	ID           string         `db:"id"`
	SchoolID     null.String    `db:"school_id"`
	Name         string         `db:"name"`
	Username     string         `db:"username"`
	Email        null.String    `db:"email"`
	IsActive     bool           `db:"is_active"`
	Roles        pq.StringArray `db:"roles"`
	PasswordHash null.Bytes     `db:"password_hash"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
	LastLogin    null.Time      `db:"last_login"`
}

func toDBUser(usr user.User) dbUser {
	roles := usr.Roles
	if roles == nil {
		roles = []string{}
	}
	return dbUser{
		ID:           usr.ID,
		SchoolID:     null.NewString(usr.SchoolID, usr.SchoolID != ""),
		Name:         usr.Name,
		Username:     usr.Username,
		Email:        null.NewString(usr.Email, usr.Email != ""),
		IsActive:     usr.IsActive,
		Roles:        roles,
		PasswordHash: null.NewBytes(usr.PasswordHash, len(usr.PasswordHash) > 0),
		CreatedAt:    usr.CreatedAt.UTC(),
		UpdatedAt:    usr.UpdatedAt.UTC(),
		LastLogin:    null.NewTime(usr.LastLogin.UTC(), !usr.LastLogin.IsZero()),
	}
}

func (u dbUser) toUser() user.User {
	usr := user.User{
		ID:        u.ID,
		SchoolID:  u.SchoolID.String,
		Name:      u.Name,
		Username:  u.Username,
		Email:     u.Email.String,
		IsActive:  u.IsActive,
		Roles:     []string(u.Roles),
		CreatedAt: u.CreatedAt.UTC(),
		UpdatedAt: u.UpdatedAt.UTC(),
	}
	if u.PasswordHash.Valid {
		usr.PasswordHash = u.PasswordHash.Bytes
	}
	if u.LastLogin.Valid {
		usr.LastLogin = u.LastLogin.Time.UTC()
	}
	return usr
}

type userRepository struct {
	db sqlx.ExtContext
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db sqlx.ExtContext) user.Repository {
	return &userRepository{db: db}
}

func (repo *userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers []user.User) error {
	excluded := make([]string, 0, len(excludedUsers))
	for _, usr := range excludedUsers {
		excluded = append(excluded, usr.ID)
	}

	var found []dbUser
	q := `SELECT username, email FROM users
		WHERE (username = $1 OR (email IS NOT NULL AND email = $2)) AND NOT (id::text = ANY($3))
		LIMIT 2`
	if err := sqlx.SelectContext(ctx, repo.db, &found, q, username, email, pq.StringArray(excluded)); err != nil {
		return errors.Wrap(err, "checking username uniqueness")
	}
	for _, u := range found {
		if username != "" && u.Username == username {
			return user.ErrUsernameExists
		}
	}
	for _, u := range found {
		if email != "" && u.Email.String == email {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	usr.ID = newID()
	if usr.CreatedAt.IsZero() {
		usr.CreatedAt = time.Now().UTC()
		usr.UpdatedAt = usr.CreatedAt
	}
	row := toDBUser(usr)
	q := `INSERT INTO users (` + userColumns + `)
		VALUES (:id, :school_id, :name, :username, :email, :is_active, :roles, :password_hash, :created_at, :updated_at, :last_login)`
	if _, err := sqlx.NamedExecContext(ctx, repo.db, q, row); err != nil {
		return user.User{}, errors.Wrap(mapError(err), "creating user")
	}
	return row.toUser(), nil
}

// userWhere builds the WHERE clause of a QueryFilter; placeholders are numbered from 1.
func userWhere(filter *user.QueryFilter) (string, []interface{}) {
	if filter == nil {
		return "", nil
	}
	var (
		conds []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if filter.SchoolID != "" {
		conds = append(conds, "school_id = "+arg(filter.SchoolID))
	}
	if filter.Search != "" {
		p := arg("%" + filter.Search + "%")
		conds = append(conds, "(name ILIKE "+p+" OR username ILIKE "+p+" OR email ILIKE "+p+")")
	}
	if len(filter.Roles) > 0 {
		prefixes := make([]string, 0, len(filter.Roles))
		for _, role := range filter.Roles {
			prefixes = append(prefixes, role+"%")
		}
		conds = append(conds, "EXISTS (SELECT 1 FROM unnest(roles) AS r WHERE r LIKE ANY("+arg(pq.StringArray(prefixes))+"))")
	}
	if filter.IsActive != nil {
		conds = append(conds, "is_active = "+arg(*filter.IsActive))
	}
	if !filter.CreatedFrom.IsZero() {
		conds = append(conds, "created_at >= "+arg(filter.CreatedFrom.UTC()))
	}
	if !filter.CreatedTo.IsZero() {
		conds = append(conds, "created_at <= "+arg(filter.CreatedTo.UTC()))
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func orderBy(ordering []core.DBOrdering, allowed map[string]string, fallback string) string {
	ordering = core.FilterOrderings(ordering, allowed)
	if len(ordering) == 0 {
		return " ORDER BY " + fallback
	}
	clauses := make([]string, 0, len(ordering)+1)
	for _, ord := range ordering {
		clauses = append(clauses, ord.String())
	}
	clauses = append(clauses, "id ASC")
	return " ORDER BY " + strings.Join(clauses, ", ")
}

func (repo *userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering) ([]user.User, error) {
	where, args := userWhere(filter)
	q := `SELECT ` + userColumns + ` FROM users` + where + orderBy(ordering, user.OrderingFields, "created_at DESC, id ASC")

	var rows []dbUser
	if err := sqlx.SelectContext(ctx, repo.db, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	users := make([]user.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, row.toUser())
	}
	return users, nil
}

func (repo *userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	var (
		cond string
		arg  string
	)
	switch {
	case filter.ID != "":
		cond, arg = "id = $1", filter.ID
	case filter.Username != "":
		cond, arg = "username = $1", filter.Username
	case filter.Email != "":
		cond, arg = "email = $1", filter.Email
	case filter.UsernameOrEmail != "":
		cond, arg = "(username = $1 OR email = $1)", filter.UsernameOrEmail
	default:
		return user.User{}, user.ErrNotFound
	}

	var row dbUser
	err := sqlx.GetContext(ctx, repo.db, &row, `SELECT `+userColumns+` FROM users WHERE `+cond+` LIMIT 1`, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return user.User{}, user.ErrNotFound
	}
	if err != nil {
		return user.User{}, errors.Wrap(err, "getting user")
	}
	return row.toUser(), nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	row := toDBUser(usr)
	q := `UPDATE users SET
		school_id = :school_id, name = :name, username = :username, email = :email, is_active = :is_active,
		roles = :roles, password_hash = :password_hash, updated_at = :updated_at, last_login = :last_login
		WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, repo.db, q, row)
	if err != nil {
		return user.User{}, errors.Wrap(mapError(err), "updating user")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return row.toUser(), nil
}

func (repo *userRepository) DeleteUsers(ctx context.Context, schoolID string, ids ...string) (int64, error) {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM users WHERE school_id = $1 AND id::text = ANY($2)`,
		schoolID, pq.StringArray(ids))
	if err != nil {
		return 0, errors.Wrap(mapError(err), "deleting users")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "deleting users")
	}
	return n, nil
}
