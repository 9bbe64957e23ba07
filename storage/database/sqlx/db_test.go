package sqlxrepos

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/schoolsaas/core"
	"github.com/trezcool/schoolsaas/core/school"
	"github.com/trezcool/schoolsaas/core/user"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return sqlx.NewDb(db, "postgres"), mock
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantKind core.ConstraintKind
		wantPass bool // returned as is
	}{
		{name: "unique", err: &pq.Error{Code: "23505", Constraint: "schools_name_key"}, wantKind: core.ConstraintUnique},
		{name: "foreign key", err: &pq.Error{Code: "23503"}, wantKind: core.ConstraintForeignKey},
		{name: "check", err: &pq.Error{Code: "23514", Constraint: "scores_score_check"}, wantKind: core.ConstraintCheck},
		{name: "not null", err: &pq.Error{Code: "23502"}, wantKind: core.ConstraintNotNull},
		{name: "exclusion", err: &pq.Error{Code: "23P01"}, wantKind: core.ConstraintOther},
		{name: "syntax error", err: &pq.Error{Code: "42601"}, wantPass: true},
		{name: "not a pq error", err: errors.New("boom"), wantPass: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := mapError(tc.err)
			if tc.wantPass {
				assert.Equal(t, tc.err, got)
				assert.False(t, errors.Is(got, core.ErrConstraintViolation))
				return
			}
			var cErr *core.ConstraintError
			require.True(t, errors.As(got, &cErr))
			assert.Equal(t, tc.wantKind, cErr.Kind)
			assert.Equal(t, tc.err.(*pq.Error).Constraint, cErr.Constraint)
			assert.True(t, errors.Is(got, core.ErrConstraintViolation))
		})
	}

	assert.Nil(t, mapError(nil))
}

func TestUnitOfWork_RunInTx(t *testing.T) {
	ctx := context.Background()

	t.Run("commits on success", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO schools").
			WithArgs(sqlmock.AnyArg(), "Acme School", "", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		var created school.School
		err := NewUnitOfWork(db).RunInTx(ctx, func(ctx context.Context, store school.Store) (err error) {
			created, err = store.Schools.CreateSchool(ctx, school.School{Name: "Acme School"})
			return err
		})
		require.NoError(t, err)
		assert.NotEmpty(t, created.ID)
		assert.False(t, created.CreatedAt.IsZero())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back & returns fn error as is", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO schools").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO school_classes").
			WillReturnError(&pq.Error{Code: "23505", Constraint: "school_classes_name_school_id_key"})
		mock.ExpectRollback()

		fnErr := errors.New("row 3: failed")
		err := NewUnitOfWork(db).RunInTx(ctx, func(ctx context.Context, store school.Store) error {
			sch, err := store.Schools.CreateSchool(ctx, school.School{Name: "Acme School"})
			require.NoError(t, err)
			_, err = store.Schools.CreateClass(ctx, school.Class{SchoolID: sch.ID, Name: "Grade 1"})
			require.Error(t, err)
			assert.True(t, errors.Is(err, core.ErrConstraintViolation))
			return fnErr
		})
		assert.Equal(t, fnErr, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("begin failure", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectBegin().WillReturnError(errors.New("connection refused"))

		called := false
		err := NewUnitOfWork(db).RunInTx(ctx, func(context.Context, school.Store) error {
			called = true
			return nil
		})
		assert.Error(t, err)
		assert.False(t, called)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSchoolRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("GetSchoolByName not found", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectQuery("SELECT (.+) FROM schools WHERE name = ").
			WithArgs("Acme School").
			WillReturnRows(sqlmock.NewRows([]string{"id", "name", "address", "created_at"}))

		_, err := NewSchoolRepository(db).GetSchoolByName(ctx, "Acme School")
		assert.Equal(t, school.ErrNotFound, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("GetClass", func(t *testing.T) {
		db, mock := newMockDB(t)
		now := time.Date(2024, 9, 2, 8, 0, 0, 0, time.UTC)
		mock.ExpectQuery("SELECT (.+) FROM school_classes WHERE school_id = ").
			WithArgs("sch-1", "Grade 1").
			WillReturnRows(sqlmock.NewRows([]string{"id", "school_id", "name", "year", "created_at"}).
				AddRow("cls-1", "sch-1", "Grade 1", nil, now))

		cls, err := NewSchoolRepository(db).GetClass(ctx, "sch-1", "Grade 1")
		require.NoError(t, err)
		assert.Equal(t, school.Class{ID: "cls-1", SchoolID: "sch-1", Name: "Grade 1", CreatedAt: now}, cls)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("UpdateScores returns affected rows", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectExec("UPDATE scores SET score = ").
			WithArgs(sqlmock.AnyArg(), "usr-1", "std-1", "subj-1").
			WillReturnResult(sqlmock.NewResult(0, 2))

		n, err := NewSchoolRepository(db).UpdateScores(ctx, "std-1", "subj-1", decimal.NewFromInt(85), "usr-1")
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("CreateScore check violation", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectExec("INSERT INTO scores").
			WillReturnError(&pq.Error{Code: "23514", Constraint: "scores_score_check"})

		_, err := NewSchoolRepository(db).CreateScore(ctx, school.Score{
			StudentID: "std-1", SubjectID: "subj-1", Score: decimal.NewFromInt(120), Term: school.TermFirst, Session: "2024/2025",
		})
		var cErr *core.ConstraintError
		require.True(t, errors.As(err, &cErr))
		assert.Equal(t, core.ConstraintCheck, cErr.Kind)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("AdmissionNumberExists", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs("3F2504E0").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		exists, err := NewSchoolRepository(db).AdmissionNumberExists(ctx, "3F2504E0")
		require.NoError(t, err)
		assert.True(t, exists)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSchoolRepository_crud(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 9, 2, 8, 0, 0, 0, time.UTC)

	t.Run("UpdateClass not found", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectExec("UPDATE school_classes SET name = ").
			WithArgs("Grade 2", sqlmock.AnyArg(), "cls-1").
			WillReturnResult(sqlmock.NewResult(0, 0))

		_, err := NewSchoolRepository(db).UpdateClass(ctx, school.Class{ID: "cls-1", Name: "Grade 2"})
		assert.Equal(t, school.ErrNotFound, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("UpdateSubject unique violation", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectExec("UPDATE subjects SET name = ").
			WillReturnError(&pq.Error{Code: "23505", Constraint: "subjects_name_school_id_key"})

		_, err := NewSchoolRepository(db).UpdateSubject(ctx, school.Subject{ID: "subj-1", Name: "Math"})
		var cErr *core.ConstraintError
		require.True(t, errors.As(err, &cErr))
		assert.Equal(t, core.ConstraintUnique, cErr.Kind)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("GetStudent", func(t *testing.T) {
		cols := []string{"id", "school_id", "school_class_id", "first_name", "last_name", "gender", "date_of_birth", "admission_number", "created_at"}
		dob := time.Date(2015, 3, 4, 0, 0, 0, 0, time.FixedZone("WAT", 3600))

		tests := []struct {
			name    string
			dob     interface{}
			classID interface{}
			want    school.Student
		}{
			{
				name: "without class nor birth date",
				want: school.Student{ID: "std-1", SchoolID: "sch-1", FirstName: "Tom", LastName: "Lee", Gender: "Male", AdmissionNumber: "3F2504E0", CreatedAt: now},
			},
			{
				name: "with class & birth date", dob: dob, classID: "cls-1",
				want: school.Student{
					ID: "std-1", SchoolID: "sch-1", ClassID: "cls-1", FirstName: "Tom", LastName: "Lee", Gender: "Male",
					DateOfBirth: null.TimeFrom(dob.UTC()), AdmissionNumber: "3F2504E0", CreatedAt: now,
				},
			},
		}
		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				db, mock := newMockDB(t)
				mock.ExpectQuery("SELECT (.+) FROM students WHERE id = ").
					WithArgs("std-1").
					WillReturnRows(sqlmock.NewRows(cols).AddRow("std-1", "sch-1", tc.classID, "Tom", "Lee", "Male", tc.dob, "3F2504E0", now))

				std, err := NewSchoolRepository(db).GetStudent(ctx, "std-1")
				require.NoError(t, err)
				assert.Equal(t, tc.want, std)
				assert.NoError(t, mock.ExpectationsWereMet())
			})
		}
	})

	t.Run("deletes", func(t *testing.T) {
		tests := []struct {
			name     string
			query    string
			del      func(repo school.Repository) error
			affected int64
			wantErr  error
		}{
			{name: "class", query: "DELETE FROM school_classes WHERE id = ", del: func(r school.Repository) error { return r.DeleteClass(ctx, "id-1") }, affected: 1},
			{name: "subject", query: "DELETE FROM subjects WHERE id = ", del: func(r school.Repository) error { return r.DeleteSubject(ctx, "id-1") }, affected: 1},
			{name: "student", query: "DELETE FROM students WHERE id = ", del: func(r school.Repository) error { return r.DeleteStudent(ctx, "id-1") }, affected: 1},
			{name: "score", query: "DELETE FROM scores WHERE id = ", del: func(r school.Repository) error { return r.DeleteScore(ctx, "id-1") }, affected: 1},
			{
				name: "missing student", query: "DELETE FROM students WHERE id = ",
				del:  func(r school.Repository) error { return r.DeleteStudent(ctx, "id-1") }, wantErr: school.ErrNotFound,
			},
		}
		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				db, mock := newMockDB(t)
				mock.ExpectExec(tc.query).WithArgs("id-1").WillReturnResult(sqlmock.NewResult(0, tc.affected))

				assert.Equal(t, tc.wantErr, tc.del(NewSchoolRepository(db)))
				assert.NoError(t, mock.ExpectationsWereMet())
			})
		}
	})

	t.Run("UpdateScore unique violation", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectExec("UPDATE scores SET student_id = ").
			WillReturnError(&pq.Error{Code: "23505", Constraint: "scores_student_id_subject_id_term_session_key"})

		_, err := NewSchoolRepository(db).UpdateScore(ctx, school.Score{
			ID: "sc-1", StudentID: "std-1", SubjectID: "subj-1", Score: decimal.NewFromInt(50), Term: school.TermSecond, Session: "2024/2025",
		})
		var cErr *core.ConstraintError
		require.True(t, errors.As(err, &cErr))
		assert.Equal(t, core.ConstraintUnique, cErr.Kind)
		assert.Equal(t, "scores_student_id_subject_id_term_session_key", cErr.Constraint)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("FilterScores", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectQuery(regexp.QuoteMeta("FROM scores sc JOIN students st ON st.id = sc.student_id") + `\s+` +
			regexp.QuoteMeta("WHERE st.school_id = $1 AND sc.term = $2 AND sc.session = $3 ORDER BY")).
			WithArgs("sch-1", school.TermSecond, "2024/2025").
			WillReturnRows(sqlmock.NewRows([]string{"id", "student_id", "subject_id", "score", "max_score", "term", "session", "recorded_by_id", "date_recorded"}).
				AddRow("sc-1", "std-1", "subj-1", "0", "100", 2, "2024/2025", nil, now))

		scores, err := NewSchoolRepository(db).FilterScores(ctx, "sch-1", &school.ScoreFilter{Term: school.TermSecond, Session: "2024/2025"})
		require.NoError(t, err)
		require.Len(t, scores, 1)
		assert.Equal(t, "0", scores[0].Score.String())
		assert.Equal(t, "100", scores[0].MaxScore.String())
		assert.Empty(t, scores[0].RecordedByID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUserRepository(t *testing.T) {
	ctx := context.Background()
	cols := []string{"id", "school_id", "name", "username", "email", "is_active", "roles", "password_hash", "created_at", "updated_at", "last_login"}
	now := time.Date(2024, 9, 2, 8, 0, 0, 0, time.UTC)

	t.Run("GetUser by username", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectQuery("SELECT (.+) FROM users WHERE username = ").
			WithArgs("jane_smith").
			WillReturnRows(sqlmock.NewRows(cols).
				AddRow("usr-1", "sch-1", "Jane Smith", "jane_smith", nil, true, "{teacher:}", nil, now, now, nil))

		usr, err := NewUserRepository(db).GetUser(ctx, user.GetFilter{Username: "jane_smith"})
		require.NoError(t, err)
		assert.Equal(t, "usr-1", usr.ID)
		assert.Equal(t, "sch-1", usr.SchoolID)
		assert.Equal(t, "", usr.Email)
		assert.Equal(t, []string{user.RoleTeacher}, usr.Roles)
		assert.False(t, usr.HasUsablePassword())
		assert.True(t, usr.LastLogin.IsZero())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("GetUser not found", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectQuery("SELECT (.+) FROM users WHERE id = ").
			WithArgs("nope").
			WillReturnRows(sqlmock.NewRows(cols))

		_, err := NewUserRepository(db).GetUser(ctx, user.GetFilter{ID: "nope"})
		assert.Equal(t, user.ErrNotFound, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("GetUser empty filter", func(t *testing.T) {
		db, mock := newMockDB(t)
		_, err := NewUserRepository(db).GetUser(ctx, user.GetFilter{})
		assert.Equal(t, user.ErrNotFound, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("CheckUsernameUniqueness", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectQuery("SELECT username, email FROM users").
			WillReturnRows(sqlmock.NewRows([]string{"username", "email"}).AddRow("other", "jane@acme.com"))

		err := NewUserRepository(db).CheckUsernameUniqueness(ctx, "jane_smith", "jane@acme.com", nil)
		assert.Equal(t, user.ErrEmailExists, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("CreateUser unique violation", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectExec("INSERT INTO users").
			WillReturnError(&pq.Error{Code: "23505", Constraint: "users_username_key"})

		_, err := NewUserRepository(db).CreateUser(ctx, user.User{Name: "Jane Smith", Username: "jane_smith"})
		var cErr *core.ConstraintError
		require.True(t, errors.As(err, &cErr))
		assert.Equal(t, core.ConstraintUnique, cErr.Kind)
		assert.Equal(t, "users_username_key", cErr.Constraint)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("DeleteUsers", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectExec("DELETE FROM users WHERE school_id = ").
			WithArgs("sch-1", pq.StringArray{"usr-1", "usr-2"}).
			WillReturnResult(sqlmock.NewResult(0, 1))

		n, err := NewUserRepository(db).DeleteUsers(ctx, "sch-1", "usr-1", "usr-2")
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("UpdateUser not found", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectExec("UPDATE users SET").WillReturnResult(sqlmock.NewResult(0, 0))

		_, err := NewUserRepository(db).UpdateUser(ctx, user.User{ID: "nope", Name: "Nope", Username: "nope"})
		assert.Equal(t, user.ErrNotFound, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUserWhere(t *testing.T) {
	active := true
	where, args := userWhere(&user.QueryFilter{SchoolID: "sch-1", Search: "jane", Roles: []string{user.RoleTeacher}, IsActive: &active})
	assert.Equal(t,
		" WHERE school_id = $1 AND (name ILIKE $2 OR username ILIKE $2 OR email ILIKE $2)"+
			" AND EXISTS (SELECT 1 FROM unnest(roles) AS r WHERE r LIKE ANY($3)) AND is_active = $4",
		where,
	)
	assert.Equal(t, []interface{}{"sch-1", "%jane%", pq.StringArray{"teacher:%"}, true}, args)

	where, args = userWhere(nil)
	assert.Empty(t, where)
	assert.Empty(t, args)
}
