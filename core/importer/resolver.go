package importer

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/schoolsaas/core"
	"github.com/trezcool/schoolsaas/core/school"
	"github.com/trezcool/schoolsaas/core/user"
)

// Resolved entities
const (
	EntitySchool  = "school"
	EntityClass   = "class"
	EntitySubject = "subject"
	EntityTeacher = "teacher"
	EntityStudent = "student"
)

type (
	// scopedKey identifies an entity by name within a school.
	scopedKey struct {
		schoolID string
		name     string
	}

	studentKey struct {
		schoolID  string
		classID   string
		firstName string
		lastName  string
	}

	// resolved holds the entities of a single row.
	resolved struct {
		school  school.School
		class   school.Class
		subject school.Subject
		teacher user.User
		student school.Student
	}
)

// resolver gets or creates the entities referenced by the rows of a single import run.
// Its caches are the source of truth for "already resolved in this run" and die with it.
type resolver struct {
	store  school.Store
	logger core.Logger
	policy Policy
	now    time.Time
	stats  *Result

	schools  map[string]school.School
	classes  map[scopedKey]school.Class
	subjects map[scopedKey]school.Subject
	teachers map[scopedKey]user.User
	students map[studentKey]school.Student

	newAdmissionNumber func() string // mockable
}

func newResolver(store school.Store, logger core.Logger, policy Policy, now time.Time, stats *Result) *resolver {
	return &resolver{
		store:              store,
		logger:             logger,
		policy:             policy,
		now:                now.UTC(),
		stats:              stats,
		schools:            make(map[string]school.School),
		classes:            make(map[scopedKey]school.Class),
		subjects:           make(map[scopedKey]school.Subject),
		teachers:           make(map[scopedKey]user.User),
		students:           make(map[studentKey]school.Student),
		newAdmissionNumber: school.NewAdmissionNumber,
	}
}

// resolve runs the chained sub-resolvers: School -> Class -> Subject -> Teacher -> Student.
func (r *resolver) resolve(ctx context.Context, row Row) (resolved, error) {
	var (
		res resolved
		err error
	)
	if res.school, err = r.resolveSchool(ctx, row); err != nil {
		return res, err
	}
	if res.class, err = r.resolveClass(ctx, row, res.school); err != nil {
		return res, err
	}
	if res.subject, err = r.resolveSubject(ctx, row, res.school); err != nil {
		return res, err
	}
	if res.teacher, err = r.resolveTeacher(ctx, row, res.school); err != nil {
		return res, err
	}
	if res.student, err = r.resolveStudent(ctx, row, res.school, res.class); err != nil {
		return res, err
	}
	return res, nil
}

// fail maps a store error to an EntityResolutionError (constraint violations) or an UnexpectedError.
func (r *resolver) fail(row Row, entity, key string, err error) error {
	if errors.Is(err, core.ErrConstraintViolation) {
		return &EntityResolutionError{Row: row.Index, Entity: entity, Key: key, Err: err}
	}
	return &UnexpectedError{Row: row.Index, Err: errors.Wrapf(err, "resolving %s %q", entity, key)}
}

func (r *resolver) resolveSchool(ctx context.Context, row Row) (school.School, error) {
	if row.School == "" {
		return school.School{}, &EntityResolutionError{Row: row.Index, Entity: EntitySchool, Err: ErrBlankValue}
	}
	if sch, ok := r.schools[row.School]; ok {
		return sch, nil
	}

	sch, err := r.store.Schools.GetSchoolByName(ctx, row.School)
	if errors.Is(err, school.ErrNotFound) {
		sch, err = r.store.Schools.CreateSchool(ctx, school.School{Name: row.School, CreatedAt: r.now})
		if err == nil {
			r.stats.SchoolsCreated++
		}
	}
	if err != nil {
		return school.School{}, r.fail(row, EntitySchool, row.School, err)
	}
	r.schools[row.School] = sch
	return sch, nil
}

func (r *resolver) resolveClass(ctx context.Context, row Row, sch school.School) (school.Class, error) {
	if row.Class == "" {
		return school.Class{}, &EntityResolutionError{Row: row.Index, Entity: EntityClass, Err: ErrBlankValue}
	}
	key := scopedKey{schoolID: sch.ID, name: row.Class}
	if cls, ok := r.classes[key]; ok {
		return cls, nil
	}

	cls, err := r.store.Schools.GetClass(ctx, sch.ID, row.Class)
	if errors.Is(err, school.ErrNotFound) {
		cls, err = r.store.Schools.CreateClass(ctx, school.Class{SchoolID: sch.ID, Name: row.Class, CreatedAt: r.now})
		if err == nil {
			r.stats.ClassesCreated++
		}
	}
	if err != nil {
		return school.Class{}, r.fail(row, EntityClass, row.Class, err)
	}
	r.classes[key] = cls
	return cls, nil
}

func (r *resolver) resolveSubject(ctx context.Context, row Row, sch school.School) (school.Subject, error) {
	if row.Subject == "" {
		return school.Subject{}, &EntityResolutionError{Row: row.Index, Entity: EntitySubject, Err: ErrBlankValue}
	}
	key := scopedKey{schoolID: sch.ID, name: row.Subject}
	if subj, ok := r.subjects[key]; ok {
		return subj, nil
	}

	subj, err := r.store.Schools.GetSubject(ctx, sch.ID, row.Subject)
	if errors.Is(err, school.ErrNotFound) {
		subj, err = r.store.Schools.CreateSubject(ctx, school.Subject{SchoolID: sch.ID, Name: row.Subject, CreatedAt: r.now})
		if err == nil {
			r.stats.SubjectsCreated++
		}
	}
	if err != nil {
		return school.Subject{}, r.fail(row, EntitySubject, row.Subject, err)
	}
	r.subjects[key] = subj
	return subj, nil
}

// resolveTeacher looks teachers up by the username derived from their display name,
// so two names deriving the same username resolve to the same user.
// Usernames are global: a teacher of another school is reused as is, with a warning.
func (r *resolver) resolveTeacher(ctx context.Context, row Row, sch school.School) (user.User, error) {
	if row.Teacher == "" {
		return user.User{}, &EntityResolutionError{Row: row.Index, Entity: EntityTeacher, Err: ErrBlankValue}
	}
	key := scopedKey{schoolID: sch.ID, name: row.Teacher}
	if usr, ok := r.teachers[key]; ok {
		return usr, nil
	}

	uname := user.UsernameFromName(row.Teacher)
	usr, err := r.store.Users.GetUser(ctx, user.GetFilter{Username: uname})
	if errors.Is(err, user.ErrNotFound) {
		usr, err = r.store.Users.CreateUser(ctx, user.User{
			SchoolID:  sch.ID,
			Name:      row.Teacher,
			Username:  uname,
			IsActive:  true,
			Roles:     []string{user.RoleTeacher},
			CreatedAt: r.now,
			UpdatedAt: r.now,
		})
		if err == nil {
			r.stats.TeachersCreated++
		}
	}
	if err != nil {
		return user.User{}, r.fail(row, EntityTeacher, row.Teacher, err)
	}
	if usr.SchoolID != sch.ID {
		r.logger.Warn("reusing teacher of another school", map[string]interface{}{
			"row":              row.Index,
			"teacher":          row.Teacher,
			"username":         usr.Username,
			"user_id":          usr.ID,
			"user_school_id":   usr.SchoolID,
			"import_school":    sch.Name,
			"import_school_id": sch.ID,
		})
	}
	r.teachers[key] = usr
	return usr, nil
}

// resolveStudent creates a student on its first occurrence in the run; students are never
// matched against existing records. Gender & class are only set at creation.
func (r *resolver) resolveStudent(ctx context.Context, row Row, sch school.School, cls school.Class) (school.Student, error) {
	name := strings.TrimSpace(row.FirstName + " " + row.LastName)
	if row.FirstName == "" || row.LastName == "" {
		return school.Student{}, &EntityResolutionError{Row: row.Index, Entity: EntityStudent, Key: name, Err: ErrBlankValue}
	}
	key := studentKey{schoolID: sch.ID, classID: cls.ID, firstName: row.FirstName, lastName: row.LastName}
	if std, ok := r.students[key]; ok {
		return std, nil
	}

	number, err := r.admissionNumber(ctx)
	if err != nil {
		return school.Student{}, r.fail(row, EntityStudent, name, err)
	}
	std, err := r.store.Schools.CreateStudent(ctx, school.Student{
		SchoolID:        sch.ID,
		ClassID:         cls.ID,
		FirstName:       row.FirstName,
		LastName:        row.LastName,
		Gender:          row.Gender,
		AdmissionNumber: number,
		CreatedAt:       r.now,
	})
	if err != nil {
		return school.Student{}, r.fail(row, EntityStudent, name, err)
	}
	r.stats.StudentsCreated++
	r.students[key] = std
	return std, nil
}

// admissionNumber generates an admission number; when the policy allows retries,
// numbers already in use are regenerated up to AdmissionRetries times.
func (r *resolver) admissionNumber(ctx context.Context) (string, error) {
	number := r.newAdmissionNumber()
	if r.policy.AdmissionRetries <= 0 {
		return number, nil
	}
	for attempt := 0; attempt <= r.policy.AdmissionRetries; attempt++ {
		exists, err := r.store.Schools.AdmissionNumberExists(ctx, number)
		if err != nil {
			return "", errors.Wrap(err, "checking admission number")
		}
		if !exists {
			return number, nil
		}
		number = r.newAdmissionNumber()
	}
	return "", &core.ConstraintError{
		Kind:       core.ConstraintUnique,
		Constraint: "students_admission_number_key",
		Err:        errors.Errorf("no free admission number after %d attempts", r.policy.AdmissionRetries+1),
	}
}
