package importer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/schoolsaas/core"
	"github.com/trezcool/schoolsaas/core/school"
	"github.com/trezcool/schoolsaas/core/user"
	dummydb "github.com/trezcool/schoolsaas/storage/database/dummy"
	"github.com/trezcool/schoolsaas/tests"
)

var header = []string{"School", "Class", "Subject", "Teacher", "Student First Name", "Student Last Name", "Gender", "Score"}

func setup(t *testing.T, policy Policy) (*Service, *dummydb.DB) {
	t.Helper()
	db := dummydb.Open()
	conf := testutil.NewConfig()
	return NewService(db, testutil.NewLogger(conf), policy), db
}

func sheet(rows ...[]string) [][]string {
	return append([][]string{header}, rows...)
}

func twoRows() [][]string {
	return sheet(
		[]string{"acme school", "grade 1", "math", "jane smith", "tom", "lee", "male", "85"},
		[]string{"acme school", "grade 1", "science", "jane smith", "tom", "lee", "male", ""},
	)
}

func scoresBySubject(t *testing.T, db *dummydb.DB, studentID string) map[string]string {
	t.Helper()
	repo := dummydb.NewSchoolRepository(db)
	ctx := context.Background()

	std, err := repo.QueryStudents(ctx, &school.StudentFilter{}, nil)
	require.NoError(t, err)
	require.NotEmpty(t, std)

	subjects := make(map[string]string)
	for _, s := range std {
		subjs, err := repo.QuerySubjects(ctx, s.SchoolID)
		require.NoError(t, err)
		for _, subj := range subjs {
			subjects[subj.ID] = subj.Name
		}
	}

	scores, err := repo.QueryScores(ctx, studentID)
	require.NoError(t, err)
	got := make(map[string]string, len(scores))
	for _, sc := range scores {
		got[subjects[sc.SubjectID]] = sc.Score.String()
	}
	return got
}

func TestService_Import(t *testing.T) {
	ctx := context.Background()
	svc, db := setup(t, DefaultPolicy())

	res, err := svc.Import(ctx, twoRows(), Options{})
	require.NoError(t, err)
	assert.Equal(t, Result{
		Rows:            2,
		SchoolsCreated:  1,
		ClassesCreated:  1,
		SubjectsCreated: 2,
		TeachersCreated: 1,
		StudentsCreated: 1,
		ScoresCreated:   2,
	}, res)
	assert.Equal(t, "Successfully imported 2 rows.", res.Message())
	assert.Equal(t, map[string]int{
		"schools": 1, "classes": 1, "subjects": 2, "students": 1, "scores": 2, "users": 1,
	}, db.Counts())

	schools := dummydb.NewSchoolRepository(db)
	sch, err := schools.GetSchoolByName(ctx, "Acme School")
	require.NoError(t, err)

	classes, err := schools.QueryClasses(ctx, sch.ID)
	require.NoError(t, err)
	require.Len(t, classes, 1)
	assert.Equal(t, "Grade 1", classes[0].Name)

	subjects, err := schools.QuerySubjects(ctx, sch.ID)
	require.NoError(t, err)
	require.Len(t, subjects, 2)
	assert.Equal(t, "Math", subjects[0].Name)
	assert.Equal(t, "Science", subjects[1].Name)

	teacher, err := dummydb.NewUserRepository(db).GetUser(ctx, user.GetFilter{Username: "jane_smith"})
	require.NoError(t, err)
	assert.Equal(t, "Jane Smith", teacher.Name)
	assert.Equal(t, sch.ID, teacher.SchoolID)
	assert.True(t, teacher.IsTeacher())
	assert.False(t, teacher.HasUsablePassword())

	students, err := schools.QueryStudents(ctx, &school.StudentFilter{SchoolID: sch.ID}, school.DefaultStudentOrdering)
	require.NoError(t, err)
	require.Len(t, students, 1)
	std := students[0]
	assert.Equal(t, "Tom Lee", std.FullName())
	assert.Equal(t, "Male", std.Gender)
	assert.Equal(t, classes[0].ID, std.ClassID)
	assert.Len(t, std.AdmissionNumber, 8)

	assert.Equal(t, map[string]string{"Math": "85", "Science": "0"}, scoresBySubject(t, db, std.ID))
}

func TestService_Import_Twice(t *testing.T) {
	ctx := context.Background()
	svc, db := setup(t, DefaultPolicy())

	_, err := svc.Import(ctx, twoRows(), Options{})
	require.NoError(t, err)
	res, err := svc.Import(ctx, twoRows(), Options{})
	require.NoError(t, err)

	// students are never matched against existing records
	assert.Equal(t, Result{Rows: 2, StudentsCreated: 1, ScoresCreated: 2}, res)
	assert.Equal(t, map[string]int{
		"schools": 1, "classes": 1, "subjects": 2, "students": 2, "scores": 4, "users": 1,
	}, db.Counts())
}

func TestService_Import_Rollback(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		policy  Policy
		rows    [][]string
		admNums []string
		opts    Options
		check   func(t *testing.T, err error)
	}{
		{
			name: "blank class on last row",
			rows: append(twoRows(), []string{"acme school", "  ", "math", "jane smith", "ann", "bo", "female", "50"}),
			check: func(t *testing.T, err error) {
				var e *EntityResolutionError
				require.True(t, errors.As(err, &e))
				assert.Equal(t, 4, e.Row)
				assert.Equal(t, EntityClass, e.Entity)
				assert.True(t, errors.Is(err, ErrBlankValue))
			},
		},
		{
			name: "blank student name",
			rows: sheet([]string{"acme school", "grade 1", "math", "jane smith", "tom", "", "male", "85"}),
			check: func(t *testing.T, err error) {
				var e *EntityResolutionError
				require.True(t, errors.As(err, &e))
				assert.Equal(t, EntityStudent, e.Entity)
			},
		},
		{
			name: "score out of range",
			rows: append(twoRows(), []string{"acme school", "grade 1", "math", "jane smith", "ann", "bo", "female", "150"}),
			check: func(t *testing.T, err error) {
				var e *ScoreValidationError
				require.True(t, errors.As(err, &e))
				assert.Equal(t, 4, e.Row)
				assert.Equal(t, "150", e.Value)
				assert.Equal(t, "row 4: invalid score \"150\": score 150 is out of range [0, 100]", err.Error())
			},
		},
		{
			name: "negative score",
			rows: sheet([]string{"acme school", "grade 1", "math", "jane smith", "tom", "lee", "male", "-1"}),
			check: func(t *testing.T, err error) {
				var e *ScoreValidationError
				assert.True(t, errors.As(err, &e))
			},
		},
		{
			name:    "admission number collision",
			rows:    append(twoRows(), []string{"acme school", "grade 1", "math", "jane smith", "ann", "bo", "female", "50"}),
			admNums: []string{"AAAA0001", "AAAA0001"},
			check: func(t *testing.T, err error) {
				var e *EntityResolutionError
				require.True(t, errors.As(err, &e))
				assert.Equal(t, EntityStudent, e.Entity)
				assert.Equal(t, "Ann Bo", e.Key)
				assert.True(t, errors.Is(err, core.ErrConstraintViolation))
			},
		},
		{
			name:    "admission number retries exhausted",
			policy:  Policy{AdmissionRetries: 2},
			rows:    append(twoRows(), []string{"acme school", "grade 1", "math", "jane smith", "ann", "bo", "female", "50"}),
			admNums: []string{"AAAA0001", "AAAA0001", "AAAA0001", "AAAA0001"},
			check: func(t *testing.T, err error) {
				var e *EntityResolutionError
				require.True(t, errors.As(err, &e))
				assert.True(t, errors.Is(err, core.ErrConstraintViolation))
			},
		},
		{
			name:   "rejected blank score",
			policy: Policy{BlankScore: BlankScoreReject},
			rows:   twoRows(),
			check: func(t *testing.T, err error) {
				var e *ScoreValidationError
				require.True(t, errors.As(err, &e))
				assert.Equal(t, 3, e.Row)
				assert.True(t, errors.Is(err, ErrScoreMissing))
			},
		},
		{
			name: "foreign school",
			rows: append(twoRows(), []string{"other school", "grade 1", "math", "jane smith", "ann", "bo", "female", "50"}),
			opts: Options{School: "acme school"},
			check: func(t *testing.T, err error) {
				var e *EntityResolutionError
				require.True(t, errors.As(err, &e))
				assert.Equal(t, EntitySchool, e.Entity)
				assert.Equal(t, "Other School", e.Key)
				assert.True(t, errors.Is(err, ErrForeignSchool))
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc, db := setup(t, tc.policy)
			if tc.admNums != nil {
				// the first import of each case takes one number
				nums := append([]string{"SEED0001"}, tc.admNums...)
				svc.admissionNumberFunc = func() string {
					n := nums[0]
					if len(nums) > 1 {
						nums = nums[1:]
					}
					return n
				}
			}

			// pre-existing data
			_, err := svc.Import(ctx, sheet([]string{"acme school", "grade 2", "art", "john doe", "seed", "student", "male", "10"}), Options{})
			require.NoError(t, err)
			before := db.Counts()

			res, err := svc.Import(ctx, tc.rows, tc.opts)
			require.Error(t, err)
			assert.True(t, IsImportError(err))
			assert.Equal(t, Result{}, res)
			tc.check(t, err)
			assert.Equal(t, before, db.Counts())
		})
	}
}

func TestService_Import_AdmissionRetries(t *testing.T) {
	ctx := context.Background()
	svc, db := setup(t, Policy{AdmissionRetries: 3})

	nums := []string{"AAAA0001", "AAAA0001", "AAAA0001", "BBBB0002"}
	svc.admissionNumberFunc = func() string {
		n := nums[0]
		nums = nums[1:]
		return n
	}

	_, err := svc.Import(ctx, sheet(
		[]string{"acme school", "grade 1", "math", "jane smith", "tom", "lee", "male", "85"},
		[]string{"acme school", "grade 1", "math", "jane smith", "ann", "bo", "female", "70"},
	), Options{})
	require.NoError(t, err)

	students, err := dummydb.NewSchoolRepository(db).QueryStudents(ctx, nil, []core.DBOrdering{{Field: "admission_number", Ascending: true}})
	require.NoError(t, err)
	require.Len(t, students, 2)
	assert.Equal(t, "AAAA0001", students[0].AdmissionNumber)
	assert.Equal(t, "BBBB0002", students[1].AdmissionNumber)
}

func TestService_Import_Policy(t *testing.T) {
	ctx := context.Background()
	rows := sheet(
		[]string{"acme school", "grade 1", "math", "jane smith", "tom", "lee", "male", "85"},
		[]string{"acme school", "grade 1", "science", "jane smith", "tom", "lee", "male", "n/a"},
		[]string{"", "", "", "", "", "", "", ""},
		[]string{"acme school", "grade 1", "art", "jane smith", "tom", "lee", "male", "85.5"},
	)

	tests := []struct {
		name        string
		policy      Policy
		wantRows    int
		wantSkipped int
		wantScores  map[string]string
	}{
		{
			name:        "zero",
			policy:      DefaultPolicy(),
			wantRows:    3,
			wantSkipped: 1,
			wantScores:  map[string]string{"Math": "85", "Science": "0", "Art": "0"},
		},
		{
			name:        "skip",
			policy:      Policy{BlankScore: BlankScoreSkipRow},
			wantRows:    1,
			wantSkipped: 3,
			wantScores:  map[string]string{"Math": "85"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc, db := setup(t, tc.policy)
			res, err := svc.Import(ctx, rows, Options{})
			require.NoError(t, err)
			assert.Equal(t, tc.wantRows, res.Rows)
			assert.Equal(t, tc.wantSkipped, res.SkippedRows)

			students, err := dummydb.NewSchoolRepository(db).QueryStudents(ctx, nil, nil)
			require.NoError(t, err)
			require.Len(t, students, 1)
			assert.Equal(t, tc.wantScores, scoresBySubject(t, db, students[0].ID))
		})
	}
}

func TestService_Import_UpdatesExistingScores(t *testing.T) {
	ctx := context.Background()
	svc, db := setup(t, DefaultPolicy())

	// the same student appears twice for the same subject: the last score wins
	res, err := svc.Import(ctx, sheet(
		[]string{"acme school", "grade 1", "math", "jane smith", "tom", "lee", "male", "40"},
		[]string{"acme school", "grade 1", "math", "jane smith", "tom", "lee", "male", "90"},
	), Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.ScoresCreated)
	assert.Equal(t, 1, res.ScoresUpdated)

	students, err := dummydb.NewSchoolRepository(db).QueryStudents(ctx, nil, nil)
	require.NoError(t, err)
	require.Len(t, students, 1)
	assert.Equal(t, map[string]string{"Math": "90"}, scoresBySubject(t, db, students[0].ID))
}

func TestService_Import_Options(t *testing.T) {
	ctx := context.Background()
	svc, db := setup(t, DefaultPolicy())

	_, err := svc.Import(ctx, twoRows(), Options{School: "  ACME school ", Term: school.TermThird, Session: "2023/2024"})
	require.NoError(t, err)

	students, err := dummydb.NewSchoolRepository(db).QueryStudents(ctx, nil, nil)
	require.NoError(t, err)
	require.Len(t, students, 1)
	scores, err := dummydb.NewSchoolRepository(db).QueryScores(ctx, students[0].ID)
	require.NoError(t, err)
	require.Len(t, scores, 2)
	for _, sc := range scores {
		assert.Equal(t, school.TermThird, sc.Term)
		assert.Equal(t, "2023/2024", sc.Session)
		assert.True(t, sc.MaxScore.Equal(decimal.NewFromInt(100)))
		assert.NotEmpty(t, sc.RecordedByID)
	}
}

func TestService_Import_Errors(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		rows    [][]string
		wantErr string
	}{
		{name: "empty", rows: nil, wantErr: ErrEmptyFile.Error()},
		{
			name:    "missing columns",
			rows:    [][]string{{"School", "Class", "Subject", "Teacher", "Student First Name", "Student Last Name"}},
			wantErr: "missing required columns: Gender, Score",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc, db := setup(t, DefaultPolicy())
			_, err := svc.Import(ctx, tc.rows, Options{})
			require.Error(t, err)
			assert.Equal(t, tc.wantErr, err.Error())
			assert.True(t, IsImportError(err))
			assert.Equal(t, 0, db.Counts()["schools"])
		})
	}

	t.Run("header only", func(t *testing.T) {
		svc, _ := setup(t, DefaultPolicy())
		res, err := svc.Import(ctx, sheet(), Options{})
		require.NoError(t, err)
		assert.Equal(t, Result{}, res)
	})

	t.Run("cancelled", func(t *testing.T) {
		svc, db := setup(t, DefaultPolicy())
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := svc.Import(cctx, twoRows(), Options{})
		assert.True(t, errors.Is(err, context.Canceled))
		assert.False(t, IsImportError(err))
		assert.Equal(t, 0, db.Counts()["schools"])
	})
}

func TestService_Import_InvalidOptions(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		opts       Options
		wantFields []core.FieldError
	}{
		{
			name:       "negative term",
			opts:       Options{Term: -7},
			wantFields: []core.FieldError{{Field: "term", Error: "the term must be 1, 2 or 3"}},
		},
		{
			name:       "term too high",
			opts:       Options{Term: 4, Session: "2023/2024"},
			wantFields: []core.FieldError{{Field: "term", Error: "the term must be 1, 2 or 3"}},
		},
		{
			name: "malformed session",
			opts: Options{Term: school.TermFirst, Session: "2024"},
			wantFields: []core.FieldError{
				{Field: "session", Error: "the session must span two consecutive years, e.g. 2024/2025"},
			},
		},
		{
			name: "non consecutive years",
			opts: Options{Session: "2024/2026"},
			wantFields: []core.FieldError{
				{Field: "session", Error: "the session must span two consecutive years, e.g. 2024/2025"},
			},
		},
		{
			name: "both",
			opts: Options{Term: 9, Session: "next year"},
			wantFields: []core.FieldError{
				{Field: "term", Error: "the term must be 1, 2 or 3"},
				{Field: "session", Error: "the session must span two consecutive years, e.g. 2024/2025"},
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc, db := setup(t, DefaultPolicy())
			res, err := svc.Import(ctx, twoRows(), tc.opts)
			require.Error(t, err)
			assert.True(t, errors.Is(err, school.ErrInvalidTermOrSession))

			var vErr *core.ValidationError
			require.True(t, errors.As(err, &vErr))
			assert.Equal(t, tc.wantFields, vErr.Fields)
			assert.Equal(t, Result{}, res)
			assert.Equal(t, 0, db.Counts()["schools"])
			assert.Equal(t, 0, db.Counts()["scores"])
		})
	}
}

func TestService_Import_TeacherNames(t *testing.T) {
	ctx := context.Background()
	svc, db := setup(t, DefaultPolicy())

	rows := sheet(
		[]string{"acme school", "grade 1", "math", "jane smith", "tom", "lee", "male", "85"},
		[]string{"acme school", "grade 1", "science", "Jane  Smith", "ann", "bo", "female", "70"},
		[]string{"acme school", "grade 1", "art", "JANE SMITH ", "zed", "adams", "male", "60"},
	)
	res, err := svc.Import(ctx, rows, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.TeachersCreated)
	assert.Equal(t, 1, db.Counts()["users"])

	// a later run reuses the stored teacher
	res, err = svc.Import(ctx, rows, Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, res.TeachersCreated)
	assert.Equal(t, 1, db.Counts()["users"])

	teacher, err := dummydb.NewUserRepository(db).GetUser(ctx, user.GetFilter{Username: "jane_smith"})
	require.NoError(t, err)
	assert.Equal(t, "Jane Smith", teacher.Name)
}

func TestService_Import_ScoreBoundaries(t *testing.T) {
	ctx := context.Background()
	svc, db := setup(t, DefaultPolicy())

	res, err := svc.Import(ctx, sheet(
		[]string{"acme school", "grade 1", "math", "jane smith", "tom", "lee", "male", "0"},
		[]string{"acme school", "grade 1", "science", "jane smith", "tom", "lee", "male", "100"},
		[]string{"acme school", "grade 1", "art", "jane smith", "tom", "lee", "male", "99.99"},
	), Options{})
	require.NoError(t, err)
	assert.Equal(t, 3, res.ScoresCreated)

	students, err := dummydb.NewSchoolRepository(db).QueryStudents(ctx, nil, nil)
	require.NoError(t, err)
	require.Len(t, students, 1)
	assert.Equal(t, map[string]string{"Math": "0", "Science": "100", "Art": "99.99"}, scoresBySubject(t, db, students[0].ID))
}

func TestService_Import_TeacherOfAnotherSchool(t *testing.T) {
	ctx := context.Background()
	db := dummydb.Open()
	conf := testutil.NewConfig()
	var logs bytes.Buffer
	svc := NewService(db, testutil.NewBufferLogger(conf, &logs), DefaultPolicy())

	other, err := dummydb.NewSchoolRepository(db).CreateSchool(ctx, school.School{Name: "Other School"})
	require.NoError(t, err)
	jane := testutil.CreateUser(t, dummydb.NewUserRepository(db), other.ID, "Jane Smith", "jane_smith", "", "", []string{user.RoleTeacher}, true)

	res, err := svc.Import(ctx, twoRows(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, res.TeachersCreated)
	assert.Equal(t, 1, db.Counts()["users"])

	out := logs.String()
	assert.Contains(t, out, "reusing teacher of another school")
	assert.Contains(t, out, "user_school_id="+other.ID)
	assert.Contains(t, out, "user_id="+jane.ID)
	assert.Equal(t, 1, strings.Count(out, "reusing teacher of another school"), "warned once per run")

	// teachers of the imported school are reused silently
	logs.Reset()
	_, err = svc.Import(ctx, sheet([]string{"other school", "grade 1", "math", "jane smith", "ann", "bo", "female", "50"}), Options{})
	require.NoError(t, err)
	assert.NotContains(t, logs.String(), "reusing teacher of another school")
}

func TestService_ImportWorkbook(t *testing.T) {
	ctx := context.Background()
	svc, db := setup(t, DefaultPolicy())

	buf := testutil.NewWorkbook(t, []string{" school", "CLASS", "subject ", "Teacher", "student first name", "Student Last Name", "gender", "Score", "Notes"},
		testutil.ImportRow("acme school", "grade 1", "math", "jane smith", "tom", "lee", "male", 85),
		testutil.ImportRow("acme school", "grade 1", "science", "jane smith", "tom", "lee", "male", nil),
	)
	res, err := svc.ImportWorkbook(ctx, buf, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Rows)
	assert.Equal(t, 1, db.Counts()["students"])
	assert.Equal(t, 2, db.Counts()["scores"])

	_, err = svc.ImportWorkbook(ctx, strings.NewReader("not a workbook"), Options{})
	assert.Error(t, err)
	assert.False(t, IsImportError(err))
}

func TestNewService_Panics(t *testing.T) {
	conf := testutil.NewConfig()
	assert.Panics(t, func() { NewService(nil, testutil.NewLogger(conf), DefaultPolicy()) })
	assert.Panics(t, func() { NewService(dummydb.Open(), nil, DefaultPolicy()) })
	assert.Panics(t, func() { NewService(dummydb.Open(), testutil.NewLogger(conf), Policy{AdmissionRetries: -1}) })
}

func ExampleResult_Message() {
	fmt.Println(Result{Rows: 3}.Message())
	// Output: Successfully imported 3 rows.
}
