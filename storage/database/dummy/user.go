package dummydb

import (
	"context"
	"sort"
	"strings"

	"github.com/trezcool/schoolsaas/core"
	"github.com/trezcool/schoolsaas/core/user"
)

type userRepository struct {
	exec executor
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{exec: db}
}

func isExcluded(usr user.User, excludedUsers []user.User) bool {
	for _, u := range excludedUsers {
		if u.ID == usr.ID {
			return true
		}
	}
	return false
}

func (repo *userRepository) CheckUsernameUniqueness(_ context.Context, username, email string, excludedUsers []user.User) (err error) {
	repo.exec.read(func(t *tables) {
		for _, usr := range t.users {
			if isExcluded(usr, excludedUsers) {
				continue
			}
			if username != "" && usr.Username == username {
				err = user.ErrUsernameExists
				return
			}
			if email != "" && usr.Email == email {
				err = user.ErrEmailExists
				return
			}
		}
	})
	return err
}

// checkConstraints enforces the unique username & email, and the school foreign key.
func checkConstraints(t *tables, usr user.User) error {
	if _, ok := t.schools[usr.SchoolID]; usr.SchoolID != "" && !ok {
		return foreignKeyViolation("users_school_id_fkey")
	}
	for _, u := range t.users {
		if u.ID == usr.ID {
			continue
		}
		if usr.Username != "" && u.Username == usr.Username {
			return uniqueViolation("users_username_key")
		}
		if usr.Email != "" && u.Email == usr.Email {
			return uniqueViolation("users_email_key")
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User) (user.User, error) {
	err := repo.exec.write(func(t *tables) error {
		usr.ID = newID()
		if err := checkConstraints(t, usr); err != nil {
			return err
		}
		if usr.CreatedAt.IsZero() {
			usr.CreatedAt = now()
			usr.UpdatedAt = usr.CreatedAt
		}
		t.users[usr.ID] = usr
		return nil
	})
	if err != nil {
		return user.User{}, err
	}
	return usr, nil
}

func (repo *userRepository) QueryUsers(_ context.Context, filter *user.QueryFilter, ordering []core.DBOrdering) ([]user.User, error) {
	users := make([]user.User, 0)
	repo.exec.read(func(t *tables) {
		for _, usr := range t.users {
			if filter == nil || matchUser(usr, filter) {
				users = append(users, usr)
			}
		}
	})

	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "created_at", Ascending: false}}
	}
	sort.SliceStable(users, func(i, j int) bool {
		for _, ord := range ordering {
			a, b := userField(users[i], ord.Field), userField(users[j], ord.Field)
			if a == b {
				continue
			}
			if ord.Ascending {
				return a < b
			}
			return a > b
		}
		return users[i].ID < users[j].ID
	})
	return users, nil
}

// matchUser applies AND operation on available QueryFilter fields.
func matchUser(usr user.User, filter *user.QueryFilter) bool {
	if filter.SchoolID != "" && usr.SchoolID != filter.SchoolID {
		return false
	}
	if filter.Search != "" && !containsFold(filter.Search, usr.Name, usr.Username, usr.Email) {
		return false
	}
	if len(filter.Roles) > 0 {
		var found bool
		for _, role := range filter.Roles {
			if usr.RoleStartsWith(role) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filter.IsActive != nil && usr.IsActive != *filter.IsActive {
		return false
	}
	if !filter.CreatedFrom.IsZero() && usr.CreatedAt.Before(filter.CreatedFrom) {
		return false
	}
	if !filter.CreatedTo.IsZero() && usr.CreatedAt.After(filter.CreatedTo) {
		return false
	}
	return true
}

func userField(usr user.User, field string) string {
	switch field {
	case "name":
		return strings.ToLower(usr.Name)
	case "username":
		return usr.Username
	case "email":
		return usr.Email
	case "is_active":
		if usr.IsActive {
			return "1"
		}
		return "0"
	case "created_at":
		return usr.CreatedAt.UTC().Format(sortableTime)
	case "last_login":
		return usr.LastLogin.UTC().Format(sortableTime)
	}
	return ""
}

func (repo *userRepository) GetUser(_ context.Context, filter user.GetFilter) (usr user.User, err error) {
	err = user.ErrNotFound
	repo.exec.read(func(t *tables) {
		if filter.ID != "" {
			if u, ok := t.users[filter.ID]; ok {
				usr, err = u, nil
			}
			return
		}
		for _, u := range t.users {
			var match bool
			switch {
			case filter.Username != "":
				match = u.Username == filter.Username
			case filter.Email != "":
				match = u.Email == filter.Email
			case filter.UsernameOrEmail != "":
				match = u.Username == filter.UsernameOrEmail || u.Email == filter.UsernameOrEmail
			}
			if match {
				usr, err = u, nil
				return
			}
		}
	})
	return usr, err
}

func (repo *userRepository) UpdateUser(_ context.Context, usr user.User) (user.User, error) {
	err := repo.exec.write(func(t *tables) error {
		if _, ok := t.users[usr.ID]; !ok {
			return user.ErrNotFound
		}
		if err := checkConstraints(t, usr); err != nil {
			return err
		}
		t.users[usr.ID] = usr
		return nil
	})
	if err != nil {
		return user.User{}, err
	}
	return usr, nil
}

func (repo *userRepository) DeleteUsers(_ context.Context, schoolID string, ids ...string) (int64, error) {
	var n int64
	err := repo.exec.write(func(t *tables) error {
		for _, id := range ids {
			if usr, ok := t.users[id]; !ok || usr.SchoolID != schoolID {
				continue
			}
			delete(t.users, id)
			n++
			for scID, sc := range t.scores {
				if sc.RecordedByID == id {
					sc.RecordedByID = "" // ON DELETE SET NULL
					t.scores[scID] = sc
				}
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}
