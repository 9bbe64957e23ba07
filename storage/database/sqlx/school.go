package sqlxrepos

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/schoolsaas/core"
	"github.com/trezcool/schoolsaas/core/school"
)

type (
	dbSchool struct {
		ID        string    `db:"id"`
		Name      string    `db:"name"`
		Address   string    `db:"address"`
		CreatedAt time.Time `db:"created_at"`
	}

	dbClass struct {
		ID        string    `db:"id"`
		SchoolID  string    `db:"school_id"`
		Name      string    `db:"name"`
		Year      null.Int  `db:"year"`
		CreatedAt time.Time `db:"created_at"`
	}

	dbSubject struct {
		ID        string      `db:"id"`
		SchoolID  string      `db:"school_id"`
		Name      string      `db:"name"`
		Code      null.String `db:"code"`
		CreatedAt time.Time   `db:"created_at"`
	}

	dbStudent struct {
		ID              string      `db:"id"`
		SchoolID        string      `db:"school_id"`
		ClassID         null.String `db:"school_class_id"`
		FirstName       string      `db:"first_name"`
		LastName        string      `db:"last_name"`
		Gender          string      `db:"gender"`
		DateOfBirth     null.Time   `db:"date_of_birth"`
		AdmissionNumber string      `db:"admission_number"`
		CreatedAt       time.Time   `db:"created_at"`
	}

	dbScore struct {
		ID           string          `db:"id"`
		StudentID    string          `db:"student_id"`
		SubjectID    string          `db:"subject_id"`
		Score        decimal.Decimal `db:"score"`
		MaxScore     decimal.Decimal `db:"max_score"`
		Term         int             `db:"term"`
		Session      string          `db:"session"`
		RecordedByID null.String     `db:"recorded_by_id"`
		DateRecorded time.Time       `db:"date_recorded"`
	}
)

const (
	schoolColumns  = `id, name, address, created_at`
	classColumns   = `id, school_id, name, year, created_at`
	subjectColumns = `id, school_id, name, code, created_at`
	studentColumns = `id, school_id, school_class_id, first_name, last_name, gender, date_of_birth, admission_number, created_at`
	scoreColumns   = `id, student_id, subject_id, score, max_score, term, session, recorded_by_id, date_recorded`
)

func (s dbSchool) toSchool() school.School {
	return school.School{ID: s.ID, Name: s.Name, Address: s.Address, CreatedAt: s.CreatedAt.UTC()}
}

func (c dbClass) toClass() school.Class {
	return school.Class{ID: c.ID, SchoolID: c.SchoolID, Name: c.Name, Year: c.Year.Int, CreatedAt: c.CreatedAt.UTC()}
}

func (s dbSubject) toSubject() school.Subject {
	return school.Subject{ID: s.ID, SchoolID: s.SchoolID, Name: s.Name, Code: s.Code.String, CreatedAt: s.CreatedAt.UTC()}
}

func (s dbStudent) toStudent() school.Student {
	std := school.Student{
		ID:              s.ID,
		SchoolID:        s.SchoolID,
		ClassID:         s.ClassID.String,
		FirstName:       s.FirstName,
		LastName:        s.LastName,
		Gender:          s.Gender,
		DateOfBirth:     s.DateOfBirth,
		AdmissionNumber: s.AdmissionNumber,
		CreatedAt:       s.CreatedAt.UTC(),
	}
	if std.DateOfBirth.Valid {
		std.DateOfBirth.Time = std.DateOfBirth.Time.UTC()
	}
	return std
}

func (s dbScore) toScore() school.Score {
	return school.Score{
		ID:           s.ID,
		StudentID:    s.StudentID,
		SubjectID:    s.SubjectID,
		Score:        s.Score,
		MaxScore:     s.MaxScore,
		Term:         s.Term,
		Session:      s.Session,
		RecordedByID: s.RecordedByID.String,
		DateRecorded: s.DateRecorded.UTC(),
	}
}

type schoolRepository struct {
	db sqlx.ExtContext
}

var _ school.Repository = (*schoolRepository)(nil) // interface compliance check

func NewSchoolRepository(db sqlx.ExtContext) school.Repository {
	return &schoolRepository{db: db}
}

func nowUTC(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}

// exec runs a write that must affect a row, mapping constraint violations.
func (repo *schoolRepository) exec(ctx context.Context, what, q string, args ...interface{}) error {
	res, err := repo.db.ExecContext(ctx, q, args...)
	if err != nil {
		return errors.Wrap(mapError(err), what)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, what)
	}
	if n == 0 {
		return school.ErrNotFound
	}
	return nil
}

// get runs a single row query, mapping sql.ErrNoRows to school.ErrNotFound.
func (repo *schoolRepository) get(ctx context.Context, dest interface{}, what, q string, args ...interface{}) error {
	err := sqlx.GetContext(ctx, repo.db, dest, q, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return school.ErrNotFound
	}
	return errors.Wrapf(err, "getting %s", what)
}

func (repo *schoolRepository) GetSchool(ctx context.Context, id string) (school.School, error) {
	var row dbSchool
	if err := repo.get(ctx, &row, "school", `SELECT `+schoolColumns+` FROM schools WHERE id = $1`, id); err != nil {
		return school.School{}, err
	}
	return row.toSchool(), nil
}

func (repo *schoolRepository) GetSchoolByName(ctx context.Context, name string) (school.School, error) {
	var row dbSchool
	if err := repo.get(ctx, &row, "school", `SELECT `+schoolColumns+` FROM schools WHERE name = $1`, name); err != nil {
		return school.School{}, err
	}
	return row.toSchool(), nil
}

func (repo *schoolRepository) CreateSchool(ctx context.Context, sch school.School) (school.School, error) {
	sch.ID = newID()
	sch.CreatedAt = nowUTC(sch.CreatedAt)
	_, err := repo.db.ExecContext(ctx, `INSERT INTO schools (`+schoolColumns+`) VALUES ($1, $2, $3, $4)`,
		sch.ID, sch.Name, sch.Address, sch.CreatedAt)
	if err != nil {
		return school.School{}, errors.Wrap(mapError(err), "creating school")
	}
	return sch, nil
}

func (repo *schoolRepository) GetClass(ctx context.Context, schoolID, name string) (school.Class, error) {
	var row dbClass
	q := `SELECT ` + classColumns + ` FROM school_classes WHERE school_id = $1 AND name = $2`
	if err := repo.get(ctx, &row, "class", q, schoolID, name); err != nil {
		return school.Class{}, err
	}
	return row.toClass(), nil
}

func (repo *schoolRepository) CreateClass(ctx context.Context, cls school.Class) (school.Class, error) {
	cls.ID = newID()
	cls.CreatedAt = nowUTC(cls.CreatedAt)
	_, err := repo.db.ExecContext(ctx, `INSERT INTO school_classes (`+classColumns+`) VALUES ($1, $2, $3, $4, $5)`,
		cls.ID, cls.SchoolID, cls.Name, null.NewInt(cls.Year, cls.Year != 0), cls.CreatedAt)
	if err != nil {
		return school.Class{}, errors.Wrap(mapError(err), "creating class")
	}
	return cls, nil
}

func (repo *schoolRepository) GetClassByID(ctx context.Context, id string) (school.Class, error) {
	var row dbClass
	if err := repo.get(ctx, &row, "class", `SELECT `+classColumns+` FROM school_classes WHERE id = $1`, id); err != nil {
		return school.Class{}, err
	}
	return row.toClass(), nil
}

func (repo *schoolRepository) UpdateClass(ctx context.Context, cls school.Class) (school.Class, error) {
	err := repo.exec(ctx, "updating class", `UPDATE school_classes SET name = $1, year = $2 WHERE id = $3`,
		cls.Name, null.NewInt(cls.Year, cls.Year != 0), cls.ID)
	if err != nil {
		return school.Class{}, err
	}
	return cls, nil
}

func (repo *schoolRepository) DeleteClass(ctx context.Context, id string) error {
	return repo.exec(ctx, "deleting class", `DELETE FROM school_classes WHERE id = $1`, id)
}

func (repo *schoolRepository) QueryClasses(ctx context.Context, schoolID string) ([]school.Class, error) {
	var rows []dbClass
	q := `SELECT ` + classColumns + ` FROM school_classes WHERE school_id = $1 ORDER BY name`
	if err := sqlx.SelectContext(ctx, repo.db, &rows, q, schoolID); err != nil {
		return nil, errors.Wrap(err, "querying classes")
	}
	classes := make([]school.Class, 0, len(rows))
	for _, row := range rows {
		classes = append(classes, row.toClass())
	}
	return classes, nil
}

func (repo *schoolRepository) GetSubject(ctx context.Context, schoolID, name string) (school.Subject, error) {
	var row dbSubject
	q := `SELECT ` + subjectColumns + ` FROM subjects WHERE school_id = $1 AND name = $2`
	if err := repo.get(ctx, &row, "subject", q, schoolID, name); err != nil {
		return school.Subject{}, err
	}
	return row.toSubject(), nil
}

func (repo *schoolRepository) CreateSubject(ctx context.Context, subj school.Subject) (school.Subject, error) {
	subj.ID = newID()
	subj.CreatedAt = nowUTC(subj.CreatedAt)
	_, err := repo.db.ExecContext(ctx, `INSERT INTO subjects (`+subjectColumns+`) VALUES ($1, $2, $3, $4, $5)`,
		subj.ID, subj.SchoolID, subj.Name, null.NewString(subj.Code, subj.Code != ""), subj.CreatedAt)
	if err != nil {
		return school.Subject{}, errors.Wrap(mapError(err), "creating subject")
	}
	return subj, nil
}

func (repo *schoolRepository) GetSubjectByID(ctx context.Context, id string) (school.Subject, error) {
	var row dbSubject
	if err := repo.get(ctx, &row, "subject", `SELECT `+subjectColumns+` FROM subjects WHERE id = $1`, id); err != nil {
		return school.Subject{}, err
	}
	return row.toSubject(), nil
}

func (repo *schoolRepository) UpdateSubject(ctx context.Context, subj school.Subject) (school.Subject, error) {
	err := repo.exec(ctx, "updating subject", `UPDATE subjects SET name = $1, code = $2 WHERE id = $3`,
		subj.Name, null.NewString(subj.Code, subj.Code != ""), subj.ID)
	if err != nil {
		return school.Subject{}, err
	}
	return subj, nil
}

func (repo *schoolRepository) DeleteSubject(ctx context.Context, id string) error {
	return repo.exec(ctx, "deleting subject", `DELETE FROM subjects WHERE id = $1`, id)
}

func (repo *schoolRepository) QuerySubjects(ctx context.Context, schoolID string) ([]school.Subject, error) {
	var rows []dbSubject
	q := `SELECT ` + subjectColumns + ` FROM subjects WHERE school_id = $1 ORDER BY name`
	if err := sqlx.SelectContext(ctx, repo.db, &rows, q, schoolID); err != nil {
		return nil, errors.Wrap(err, "querying subjects")
	}
	subjects := make([]school.Subject, 0, len(rows))
	for _, row := range rows {
		subjects = append(subjects, row.toSubject())
	}
	return subjects, nil
}

func (repo *schoolRepository) GetStudent(ctx context.Context, id string) (school.Student, error) {
	var row dbStudent
	if err := repo.get(ctx, &row, "student", `SELECT `+studentColumns+` FROM students WHERE id = $1`, id); err != nil {
		return school.Student{}, err
	}
	return row.toStudent(), nil
}

func (repo *schoolRepository) UpdateStudent(ctx context.Context, std school.Student) (school.Student, error) {
	err := repo.exec(ctx, "updating student",
		`UPDATE students SET school_class_id = $1, first_name = $2, last_name = $3, gender = $4, date_of_birth = $5,
		admission_number = $6 WHERE id = $7`,
		null.NewString(std.ClassID, std.ClassID != ""), std.FirstName, std.LastName, std.Gender, std.DateOfBirth,
		std.AdmissionNumber, std.ID)
	if err != nil {
		return school.Student{}, err
	}
	return std, nil
}

func (repo *schoolRepository) DeleteStudent(ctx context.Context, id string) error {
	return repo.exec(ctx, "deleting student", `DELETE FROM students WHERE id = $1`, id)
}

func (repo *schoolRepository) CreateStudent(ctx context.Context, std school.Student) (school.Student, error) {
	std.ID = newID()
	std.CreatedAt = nowUTC(std.CreatedAt)
	_, err := repo.db.ExecContext(ctx,
		`INSERT INTO students (`+studentColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		std.ID, std.SchoolID, null.NewString(std.ClassID, std.ClassID != ""), std.FirstName, std.LastName, std.Gender,
		std.DateOfBirth, std.AdmissionNumber, std.CreatedAt)
	if err != nil {
		return school.Student{}, errors.Wrap(mapError(err), "creating student")
	}
	return std, nil
}

func (repo *schoolRepository) AdmissionNumberExists(ctx context.Context, number string) (bool, error) {
	var exists bool
	q := `SELECT EXISTS (SELECT 1 FROM students WHERE admission_number = $1)`
	if err := sqlx.GetContext(ctx, repo.db, &exists, q, number); err != nil {
		return false, errors.Wrap(err, "checking admission number")
	}
	return exists, nil
}

func (repo *schoolRepository) QueryStudents(ctx context.Context, filter *school.StudentFilter, ordering []core.DBOrdering) ([]school.Student, error) {
	var (
		conds []string
		args  []interface{}
	)
	if filter != nil {
		arg := func(v interface{}) string {
			args = append(args, v)
			return "$" + strconv.Itoa(len(args))
		}
		if filter.SchoolID != "" {
			conds = append(conds, "school_id = "+arg(filter.SchoolID))
		}
		if filter.ClassID != "" {
			conds = append(conds, "school_class_id = "+arg(filter.ClassID))
		}
		if filter.Search != "" {
			p := arg("%" + filter.Search + "%")
			conds = append(conds, "(first_name ILIKE "+p+" OR last_name ILIKE "+p+" OR admission_number ILIKE "+p+")")
		}
	}
	q := `SELECT ` + studentColumns + ` FROM students`
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += orderBy(ordering, school.StudentOrderingFields, "id ASC")

	var rows []dbStudent
	if err := sqlx.SelectContext(ctx, repo.db, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying students")
	}
	students := make([]school.Student, 0, len(rows))
	for _, row := range rows {
		students = append(students, row.toStudent())
	}
	return students, nil
}

func (repo *schoolRepository) UpdateScores(ctx context.Context, studentID, subjectID string, score decimal.Decimal, recordedByID string) (int64, error) {
	res, err := repo.db.ExecContext(ctx,
		`UPDATE scores SET score = $1, recorded_by_id = $2 WHERE student_id = $3 AND subject_id = $4`,
		score, null.NewString(recordedByID, recordedByID != ""), studentID, subjectID)
	if err != nil {
		return 0, errors.Wrap(mapError(err), "updating scores")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "updating scores")
	}
	return n, nil
}

func (repo *schoolRepository) GetScore(ctx context.Context, id string) (school.Score, error) {
	var row dbScore
	if err := repo.get(ctx, &row, "score", `SELECT `+scoreColumns+` FROM scores WHERE id = $1`, id); err != nil {
		return school.Score{}, err
	}
	return row.toScore(), nil
}

func (repo *schoolRepository) UpdateScore(ctx context.Context, sc school.Score) (school.Score, error) {
	sc.DateRecorded = nowUTC(sc.DateRecorded)
	if sc.MaxScore.IsZero() {
		sc.MaxScore = school.DefaultMaxScore
	}
	err := repo.exec(ctx, "updating score",
		`UPDATE scores SET student_id = $1, subject_id = $2, score = $3, max_score = $4, term = $5, session = $6,
		recorded_by_id = $7, date_recorded = $8 WHERE id = $9`,
		sc.StudentID, sc.SubjectID, sc.Score, sc.MaxScore, sc.Term, sc.Session,
		null.NewString(sc.RecordedByID, sc.RecordedByID != ""), sc.DateRecorded, sc.ID)
	if err != nil {
		return school.Score{}, err
	}
	return sc, nil
}

func (repo *schoolRepository) DeleteScore(ctx context.Context, id string) error {
	return repo.exec(ctx, "deleting score", `DELETE FROM scores WHERE id = $1`, id)
}

func (repo *schoolRepository) CreateScore(ctx context.Context, sc school.Score) (school.Score, error) {
	sc.ID = newID()
	sc.DateRecorded = nowUTC(sc.DateRecorded)
	if sc.MaxScore.IsZero() {
		sc.MaxScore = school.DefaultMaxScore
	}
	_, err := repo.db.ExecContext(ctx,
		`INSERT INTO scores (`+scoreColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		sc.ID, sc.StudentID, sc.SubjectID, sc.Score, sc.MaxScore, sc.Term, sc.Session,
		null.NewString(sc.RecordedByID, sc.RecordedByID != ""), sc.DateRecorded)
	if err != nil {
		return school.Score{}, errors.Wrap(mapError(err), "creating score")
	}
	return sc, nil
}

func (repo *schoolRepository) QueryScores(ctx context.Context, studentID string) ([]school.Score, error) {
	var rows []dbScore
	q := `SELECT ` + scoreColumns + ` FROM scores WHERE student_id = $1 ORDER BY subject_id, term`
	if err := sqlx.SelectContext(ctx, repo.db, &rows, q, studentID); err != nil {
		return nil, errors.Wrap(err, "querying scores")
	}
	scores := make([]school.Score, 0, len(rows))
	for _, row := range rows {
		scores = append(scores, row.toScore())
	}
	return scores, nil
}

func (repo *schoolRepository) FilterScores(ctx context.Context, schoolID string, filter *school.ScoreFilter) ([]school.Score, error) {
	args := []interface{}{schoolID}
	arg := func(v interface{}) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	conds := []string{"st.school_id = $1"}
	if filter != nil {
		if filter.StudentID != "" {
			conds = append(conds, "sc.student_id = "+arg(filter.StudentID))
		}
		if filter.SubjectID != "" {
			conds = append(conds, "sc.subject_id = "+arg(filter.SubjectID))
		}
		if filter.Term != 0 {
			conds = append(conds, "sc.term = "+arg(filter.Term))
		}
		if filter.Session != "" {
			conds = append(conds, "sc.session = "+arg(filter.Session))
		}
	}
	q := `SELECT sc.id, sc.student_id, sc.subject_id, sc.score, sc.max_score, sc.term, sc.session, sc.recorded_by_id, sc.date_recorded
		FROM scores sc JOIN students st ON st.id = sc.student_id
		WHERE ` + strings.Join(conds, " AND ") + ` ORDER BY sc.student_id, sc.subject_id, sc.id`

	var rows []dbScore
	if err := sqlx.SelectContext(ctx, repo.db, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "filtering scores")
	}
	scores := make([]school.Score, 0, len(rows))
	for _, row := range rows {
		scores = append(scores, row.toScore())
	}
	return scores, nil
}
