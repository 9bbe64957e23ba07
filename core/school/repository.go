package school

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/trezcool/schoolsaas/core"
	"github.com/trezcool/schoolsaas/core/user"
)

var (
	// errors
	ErrNotFound              = errors.New("not found")
	ErrSchoolExists          = errors.New("a school with this name already exists")
	ErrClassExists           = errors.New("a class with this name already exists")
	ErrSubjectExists         = errors.New("a subject with this name already exists")
	ErrAdmissionNumberExists = errors.New("a student with this admission number already exists")
	ErrScoreExists           = errors.New("a score for this student, subject, term and session already exists")
	ErrInvalidTermOrSession  = errors.New("invalid term or session")
)

type Repository interface {
	GetSchool(ctx context.Context, id string) (School, error)
	GetSchoolByName(ctx context.Context, name string) (School, error)
	CreateSchool(ctx context.Context, sch School) (School, error)

	GetClass(ctx context.Context, schoolID, name string) (Class, error)
	GetClassByID(ctx context.Context, id string) (Class, error)
	CreateClass(ctx context.Context, cls Class) (Class, error)
	UpdateClass(ctx context.Context, cls Class) (Class, error)
	// DeleteClass detaches the students of the class.
	DeleteClass(ctx context.Context, id string) error
	QueryClasses(ctx context.Context, schoolID string) ([]Class, error)

	GetSubject(ctx context.Context, schoolID, name string) (Subject, error)
	GetSubjectByID(ctx context.Context, id string) (Subject, error)
	CreateSubject(ctx context.Context, subj Subject) (Subject, error)
	UpdateSubject(ctx context.Context, subj Subject) (Subject, error)
	// DeleteSubject deletes the scores of the subject.
	DeleteSubject(ctx context.Context, id string) error
	QuerySubjects(ctx context.Context, schoolID string) ([]Subject, error)

	GetStudent(ctx context.Context, id string) (Student, error)
	CreateStudent(ctx context.Context, std Student) (Student, error)
	UpdateStudent(ctx context.Context, std Student) (Student, error)
	// DeleteStudent deletes the scores of the student.
	DeleteStudent(ctx context.Context, id string) error
	AdmissionNumberExists(ctx context.Context, number string) (bool, error)
	QueryStudents(ctx context.Context, filter *StudentFilter, ordering []core.DBOrdering) ([]Student, error)

	GetScore(ctx context.Context, id string) (Score, error)
	// UpdateScores overwrites the score of every Score of the (student, subject) pair,
	// and returns the number of updated rows.
	UpdateScores(ctx context.Context, studentID, subjectID string, score decimal.Decimal, recordedByID string) (int64, error)
	UpdateScore(ctx context.Context, sc Score) (Score, error)
	CreateScore(ctx context.Context, sc Score) (Score, error)
	DeleteScore(ctx context.Context, id string) error
	QueryScores(ctx context.Context, studentID string) ([]Score, error)
	// FilterScores returns the scores of the students of schoolID matching filter.
	FilterScores(ctx context.Context, schoolID string, filter *ScoreFilter) ([]Score, error)
}

// Store groups the repositories bound to a single unit of work.
type Store struct {
	Schools Repository
	Users   user.Repository
}

// UnitOfWork runs a function against a Store whose writes are all committed or all rolled back.
// fn's error is returned as is, after the rollback.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, store Store) error) error
}
