package school

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/trezcool/schoolsaas/core"
	"github.com/trezcool/schoolsaas/core/user"
)

const admissionNumberAttempts = 5

var maxMaxScore = decimal.RequireFromString("999.99")

type Service struct {
	uow    UnitOfWork
	repo   Repository
	usrSvc *user.Service

	nowFunc             func() time.Time // mockable
	admissionNumberFunc func() string    // mockable
}

func NewService(uow UnitOfWork, repo Repository, usrSvc *user.Service) *Service {
	return &Service{
		uow:                 uow,
		repo:                repo,
		usrSvc:              usrSvc,
		nowFunc:             time.Now,
		admissionNumberFunc: NewAdmissionNumber,
	}
}

// ValidateRegistration cleans & validates the registration data, including the uniqueness
// of the school name and of the owner's username & email.
func (svc *Service) ValidateRegistration(ctx context.Context, validate *validator.Validate, reg *Registration) error {
	reg.Clean()
	if err := validate.Struct(reg); err != nil {
		return err
	}
	if _, err := svc.repo.GetSchoolByName(ctx, reg.SchoolName); err == nil {
		return core.NewValidationError(ErrSchoolExists, core.FieldError{Field: "school_name", Error: ErrSchoolExists.Error()})
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	return svc.usrSvc.CheckUniqueness(reg.Admin.Username, reg.Admin.Email)
}

// Register creates a School and its owner admin, atomically.
// reg must have been validated with ValidateRegistration.
func (svc *Service) Register(ctx context.Context, reg Registration) (School, user.User, error) {
	var (
		sch School
		usr user.User
	)
	err := svc.uow.RunInTx(ctx, func(ctx context.Context, store Store) error {
		var err error
		sch, err = store.Schools.CreateSchool(ctx, School{Name: reg.SchoolName, Address: reg.Address})
		if err != nil {
			if errors.Is(err, core.ErrConstraintViolation) {
				return core.NewValidationError(ErrSchoolExists, core.FieldError{Field: "school_name", Error: ErrSchoolExists.Error()})
			}
			return err
		}

		usr, err = user.Build(reg.Admin, sch.ID)
		if err != nil {
			return err
		}
		usr, err = store.Users.CreateUser(ctx, usr)
		return err
	})
	if err != nil {
		return School{}, user.User{}, err
	}
	return sch, usr, nil
}

func (svc *Service) GetSchool(ctx context.Context, id string) (School, error) {
	return svc.repo.GetSchool(ctx, id)
}

// validID filters out malformed IDs before they reach the store.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func fieldError(err error, field string) error {
	return core.NewValidationError(err, core.FieldError{Field: field, Error: err.Error()})
}

// existsError maps unique constraint violations to a validation error on `field`.
func existsError(err error, field string, exists error) error {
	var cErr *core.ConstraintError
	if errors.As(err, &cErr) && cErr.Kind == core.ConstraintUnique {
		if field == "" {
			return core.NewValidationError(exists)
		}
		return fieldError(exists, field)
	}
	return err
}

// Classes

func (nc *NewClass) Validate(validate *validator.Validate) error {
	nc.Clean()
	return validate.Struct(nc)
}

// GetClassByID returns the class `id` of school `schoolID`.
func (svc *Service) GetClassByID(ctx context.Context, schoolID, id string) (Class, error) {
	if !validID(id) {
		return Class{}, ErrNotFound
	}
	cls, err := svc.repo.GetClassByID(ctx, id)
	if err != nil {
		return Class{}, err
	}
	if cls.SchoolID != schoolID {
		return Class{}, ErrNotFound
	}
	return cls, nil
}

// CreateClass creates a class in school `schoolID`; nc must have been validated.
func (svc *Service) CreateClass(ctx context.Context, schoolID string, nc NewClass) (Class, error) {
	cls, err := svc.repo.CreateClass(ctx, Class{SchoolID: schoolID, Name: nc.Name, Year: nc.Year})
	if err != nil {
		return Class{}, existsError(err, "name", ErrClassExists)
	}
	return cls, nil
}

func (svc *Service) UpdateClass(ctx context.Context, schoolID, id string, nc NewClass) (Class, error) {
	cls, err := svc.GetClassByID(ctx, schoolID, id)
	if err != nil {
		return Class{}, err
	}
	cls.Name = nc.Name
	cls.Year = nc.Year
	if cls, err = svc.repo.UpdateClass(ctx, cls); err != nil {
		return Class{}, existsError(err, "name", ErrClassExists)
	}
	return cls, nil
}

// DeleteClass deletes a class; its students are kept, without a class.
func (svc *Service) DeleteClass(ctx context.Context, schoolID, id string) error {
	if _, err := svc.GetClassByID(ctx, schoolID, id); err != nil {
		return err
	}
	return svc.repo.DeleteClass(ctx, id)
}

func (svc *Service) QueryClasses(ctx context.Context, schoolID string) ([]Class, error) {
	return svc.repo.QueryClasses(ctx, schoolID)
}

// Subjects

func (ns *NewSubject) Validate(validate *validator.Validate) error {
	ns.Clean()
	return validate.Struct(ns)
}

func (svc *Service) GetSubjectByID(ctx context.Context, schoolID, id string) (Subject, error) {
	if !validID(id) {
		return Subject{}, ErrNotFound
	}
	subj, err := svc.repo.GetSubjectByID(ctx, id)
	if err != nil {
		return Subject{}, err
	}
	if subj.SchoolID != schoolID {
		return Subject{}, ErrNotFound
	}
	return subj, nil
}

func (svc *Service) CreateSubject(ctx context.Context, schoolID string, ns NewSubject) (Subject, error) {
	subj, err := svc.repo.CreateSubject(ctx, Subject{SchoolID: schoolID, Name: ns.Name, Code: ns.Code})
	if err != nil {
		return Subject{}, existsError(err, "name", ErrSubjectExists)
	}
	return subj, nil
}

func (svc *Service) UpdateSubject(ctx context.Context, schoolID, id string, ns NewSubject) (Subject, error) {
	subj, err := svc.GetSubjectByID(ctx, schoolID, id)
	if err != nil {
		return Subject{}, err
	}
	subj.Name = ns.Name
	subj.Code = ns.Code
	if subj, err = svc.repo.UpdateSubject(ctx, subj); err != nil {
		return Subject{}, existsError(err, "name", ErrSubjectExists)
	}
	return subj, nil
}

// DeleteSubject deletes a subject & its scores.
func (svc *Service) DeleteSubject(ctx context.Context, schoolID, id string) error {
	if _, err := svc.GetSubjectByID(ctx, schoolID, id); err != nil {
		return err
	}
	return svc.repo.DeleteSubject(ctx, id)
}

func (svc *Service) QuerySubjects(ctx context.Context, schoolID string) ([]Subject, error) {
	return svc.repo.QuerySubjects(ctx, schoolID)
}

// Students

func (ns *NewStudent) Validate(validate *validator.Validate) error {
	ns.Clean()
	return validate.Struct(ns)
}

func (svc *Service) GetStudentByID(ctx context.Context, schoolID, id string) (Student, error) {
	if !validID(id) {
		return Student{}, ErrNotFound
	}
	std, err := svc.repo.GetStudent(ctx, id)
	if err != nil {
		return Student{}, err
	}
	if std.SchoolID != schoolID {
		return Student{}, ErrNotFound
	}
	return std, nil
}

// checkClass makes sure that classID, if any, is a class of the school.
func (svc *Service) checkClass(ctx context.Context, schoolID, classID string) error {
	if classID == "" {
		return nil
	}
	if _, err := svc.GetClassByID(ctx, schoolID, classID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return fieldError(errors.New("class not found"), "class_id")
		}
		return err
	}
	return nil
}

func (svc *Service) newAdmissionNumber(ctx context.Context) (string, error) {
	for i := 0; i < admissionNumberAttempts; i++ {
		number := svc.admissionNumberFunc()
		exists, err := svc.repo.AdmissionNumberExists(ctx, number)
		if err != nil {
			return "", err
		}
		if !exists {
			return number, nil
		}
	}
	return "", fieldError(ErrAdmissionNumberExists, "admission_number")
}

// CreateStudent creates a student in school `schoolID`, generating their admission number unless provided.
func (svc *Service) CreateStudent(ctx context.Context, schoolID string, ns NewStudent) (Student, error) {
	if err := svc.checkClass(ctx, schoolID, ns.ClassID); err != nil {
		return Student{}, err
	}
	number := ns.AdmissionNumber
	if number == "" {
		var err error
		if number, err = svc.newAdmissionNumber(ctx); err != nil {
			return Student{}, err
		}
	}

	std, err := svc.repo.CreateStudent(ctx, Student{
		SchoolID:        schoolID,
		ClassID:         ns.ClassID,
		FirstName:       ns.FirstName,
		LastName:        ns.LastName,
		Gender:          ns.Gender,
		DateOfBirth:     ns.dateOfBirth(),
		AdmissionNumber: number,
	})
	if err != nil {
		return Student{}, existsError(err, "admission_number", ErrAdmissionNumberExists)
	}
	return std, nil
}

func (svc *Service) UpdateStudent(ctx context.Context, schoolID, id string, ns NewStudent) (Student, error) {
	std, err := svc.GetStudentByID(ctx, schoolID, id)
	if err != nil {
		return Student{}, err
	}
	if err = svc.checkClass(ctx, schoolID, ns.ClassID); err != nil {
		return Student{}, err
	}

	std.ClassID = ns.ClassID
	std.FirstName = ns.FirstName
	std.LastName = ns.LastName
	std.Gender = ns.Gender
	std.DateOfBirth = ns.dateOfBirth()
	if ns.AdmissionNumber != "" {
		std.AdmissionNumber = ns.AdmissionNumber
	}
	if std, err = svc.repo.UpdateStudent(ctx, std); err != nil {
		return Student{}, existsError(err, "admission_number", ErrAdmissionNumberExists)
	}
	return std, nil
}

// DeleteStudent deletes a student & their scores.
func (svc *Service) DeleteStudent(ctx context.Context, schoolID, id string) error {
	if _, err := svc.GetStudentByID(ctx, schoolID, id); err != nil {
		return err
	}
	return svc.repo.DeleteStudent(ctx, id)
}

// QueryStudents lists the students matching filter, by last then first name unless ordering says otherwise.
func (svc *Service) QueryStudents(ctx context.Context, filter *StudentFilter, ordering []core.DBOrdering) ([]Student, error) {
	ordering = core.FilterOrderings(ordering, StudentOrderingFields)
	if len(ordering) == 0 {
		ordering = DefaultStudentOrdering
	}
	return svc.repo.QueryStudents(ctx, filter, ordering)
}

// Scores

func (ns *NewScore) Validate(validate *validator.Validate) error {
	ns.Clean()
	if err := validate.Struct(ns); err != nil {
		return err
	}
	if ns.Score == nil {
		return core.NewValidationError(errors.New("score is required"), core.FieldError{Field: "score", Error: "this field is required"})
	}
	if ns.MaxScore != nil && (!ns.MaxScore.IsPositive() || ns.MaxScore.GreaterThan(maxMaxScore)) {
		return fieldError(errors.New("the maximum score must be greater than 0 and at most 999.99"), "max_score")
	}
	if err := ns.score().Validate(); err != nil {
		return fieldError(err, "score")
	}
	return nil
}

// GetScoreByID returns the score `id` of a student of school `schoolID`.
func (svc *Service) GetScoreByID(ctx context.Context, schoolID, id string) (Score, error) {
	if !validID(id) {
		return Score{}, ErrNotFound
	}
	sc, err := svc.repo.GetScore(ctx, id)
	if err != nil {
		return Score{}, err
	}
	if _, err = svc.GetStudentByID(ctx, schoolID, sc.StudentID); err != nil {
		return Score{}, err
	}
	return sc, nil
}

// checkScoreRefs makes sure that the student & subject of ns belong to the school.
func (svc *Service) checkScoreRefs(ctx context.Context, schoolID string, ns NewScore) error {
	if _, err := svc.GetStudentByID(ctx, schoolID, ns.StudentID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return fieldError(errors.New("student not found"), "student_id")
		}
		return err
	}
	if _, err := svc.GetSubjectByID(ctx, schoolID, ns.SubjectID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return fieldError(errors.New("subject not found"), "subject_id")
		}
		return err
	}
	return nil
}

// CreateScore records a score of a student of school `schoolID`; ns must have been validated.
func (svc *Service) CreateScore(ctx context.Context, schoolID, recordedByID string, ns NewScore) (Score, error) {
	if err := svc.checkScoreRefs(ctx, schoolID, ns); err != nil {
		return Score{}, err
	}
	sc := ns.score()
	sc.RecordedByID = recordedByID
	sc.DateRecorded = svc.nowFunc().UTC()
	sc, err := svc.repo.CreateScore(ctx, sc)
	if err != nil {
		return Score{}, existsError(err, "", ErrScoreExists)
	}
	return sc, nil
}

func (svc *Service) UpdateScore(ctx context.Context, schoolID, id, recordedByID string, ns NewScore) (Score, error) {
	if _, err := svc.GetScoreByID(ctx, schoolID, id); err != nil {
		return Score{}, err
	}
	if err := svc.checkScoreRefs(ctx, schoolID, ns); err != nil {
		return Score{}, err
	}
	sc := ns.score()
	sc.ID = id
	sc.RecordedByID = recordedByID
	sc.DateRecorded = svc.nowFunc().UTC()
	sc, err := svc.repo.UpdateScore(ctx, sc)
	if err != nil {
		return Score{}, existsError(err, "", ErrScoreExists)
	}
	return sc, nil
}

func (svc *Service) DeleteScore(ctx context.Context, schoolID, id string) error {
	if _, err := svc.GetScoreByID(ctx, schoolID, id); err != nil {
		return err
	}
	return svc.repo.DeleteScore(ctx, id)
}

func (svc *Service) QueryScores(ctx context.Context, studentID string) ([]Score, error) {
	return svc.repo.QueryScores(ctx, studentID)
}

// FilterScores lists the scores of the students of school `schoolID` matching filter.
func (svc *Service) FilterScores(ctx context.Context, schoolID string, filter *ScoreFilter) ([]Score, error) {
	if filter.StudentID != "" && !validID(filter.StudentID) || filter.SubjectID != "" && !validID(filter.SubjectID) {
		return []Score{}, nil
	}
	return svc.repo.FilterScores(ctx, schoolID, filter)
}
