package dummydb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trezcool/schoolsaas/core"
	"github.com/trezcool/schoolsaas/core/school"
)

type schoolRepository struct {
	exec executor
}

var _ school.Repository = (*schoolRepository)(nil) // interface compliance check

func NewSchoolRepository(db *DB) school.Repository {
	return &schoolRepository{exec: db}
}

func now() time.Time { return time.Now().UTC() }

func (repo *schoolRepository) GetSchool(_ context.Context, id string) (sch school.School, err error) {
	err = school.ErrNotFound
	repo.exec.read(func(t *tables) {
		if s, ok := t.schools[id]; ok {
			sch, err = s, nil
		}
	})
	return sch, err
}

func (repo *schoolRepository) GetSchoolByName(_ context.Context, name string) (sch school.School, err error) {
	err = school.ErrNotFound
	repo.exec.read(func(t *tables) {
		for _, s := range t.schools {
			if s.Name == name {
				sch, err = s, nil
				return
			}
		}
	})
	return sch, err
}

func (repo *schoolRepository) CreateSchool(_ context.Context, sch school.School) (school.School, error) {
	err := repo.exec.write(func(t *tables) error {
		for _, s := range t.schools {
			if s.Name == sch.Name {
				return uniqueViolation("schools_name_key")
			}
		}
		sch.ID = newID()
		if sch.CreatedAt.IsZero() {
			sch.CreatedAt = now()
		}
		t.schools[sch.ID] = sch
		return nil
	})
	if err != nil {
		return school.School{}, err
	}
	return sch, nil
}

func (repo *schoolRepository) GetClass(_ context.Context, schoolID, name string) (cls school.Class, err error) {
	err = school.ErrNotFound
	repo.exec.read(func(t *tables) {
		for _, c := range t.classes {
			if c.SchoolID == schoolID && c.Name == name {
				cls, err = c, nil
				return
			}
		}
	})
	return cls, err
}

func (repo *schoolRepository) CreateClass(_ context.Context, cls school.Class) (school.Class, error) {
	err := repo.exec.write(func(t *tables) error {
		if _, ok := t.schools[cls.SchoolID]; !ok {
			return foreignKeyViolation("school_classes_school_id_fkey")
		}
		for _, c := range t.classes {
			if c.SchoolID == cls.SchoolID && c.Name == cls.Name {
				return uniqueViolation("school_classes_name_school_id_key")
			}
		}
		cls.ID = newID()
		if cls.CreatedAt.IsZero() {
			cls.CreatedAt = now()
		}
		t.classes[cls.ID] = cls
		return nil
	})
	if err != nil {
		return school.Class{}, err
	}
	return cls, nil
}

func (repo *schoolRepository) GetClassByID(_ context.Context, id string) (cls school.Class, err error) {
	err = school.ErrNotFound
	repo.exec.read(func(t *tables) {
		if c, ok := t.classes[id]; ok {
			cls, err = c, nil
		}
	})
	return cls, err
}

func (repo *schoolRepository) UpdateClass(_ context.Context, cls school.Class) (school.Class, error) {
	err := repo.exec.write(func(t *tables) error {
		if _, ok := t.classes[cls.ID]; !ok {
			return school.ErrNotFound
		}
		for _, c := range t.classes {
			if c.ID != cls.ID && c.SchoolID == cls.SchoolID && c.Name == cls.Name {
				return uniqueViolation("school_classes_name_school_id_key")
			}
		}
		t.classes[cls.ID] = cls
		return nil
	})
	if err != nil {
		return school.Class{}, err
	}
	return cls, nil
}

func (repo *schoolRepository) DeleteClass(_ context.Context, id string) error {
	return repo.exec.write(func(t *tables) error {
		if _, ok := t.classes[id]; !ok {
			return school.ErrNotFound
		}
		delete(t.classes, id)
		for sid, std := range t.students {
			if std.ClassID == id {
				std.ClassID = "" // ON DELETE SET NULL
				t.students[sid] = std
			}
		}
		return nil
	})
}

func (repo *schoolRepository) QueryClasses(_ context.Context, schoolID string) ([]school.Class, error) {
	classes := make([]school.Class, 0)
	repo.exec.read(func(t *tables) {
		for _, c := range t.classes {
			if c.SchoolID == schoolID {
				classes = append(classes, c)
			}
		}
	})
	sort.Slice(classes, func(i, j int) bool { return classes[i].Name < classes[j].Name })
	return classes, nil
}

func (repo *schoolRepository) GetSubject(_ context.Context, schoolID, name string) (subj school.Subject, err error) {
	err = school.ErrNotFound
	repo.exec.read(func(t *tables) {
		for _, s := range t.subjects {
			if s.SchoolID == schoolID && s.Name == name {
				subj, err = s, nil
				return
			}
		}
	})
	return subj, err
}

func (repo *schoolRepository) CreateSubject(_ context.Context, subj school.Subject) (school.Subject, error) {
	err := repo.exec.write(func(t *tables) error {
		if _, ok := t.schools[subj.SchoolID]; !ok {
			return foreignKeyViolation("subjects_school_id_fkey")
		}
		for _, s := range t.subjects {
			if s.SchoolID == subj.SchoolID && s.Name == subj.Name {
				return uniqueViolation("subjects_name_school_id_key")
			}
		}
		subj.ID = newID()
		if subj.CreatedAt.IsZero() {
			subj.CreatedAt = now()
		}
		t.subjects[subj.ID] = subj
		return nil
	})
	if err != nil {
		return school.Subject{}, err
	}
	return subj, nil
}

func (repo *schoolRepository) GetSubjectByID(_ context.Context, id string) (subj school.Subject, err error) {
	err = school.ErrNotFound
	repo.exec.read(func(t *tables) {
		if s, ok := t.subjects[id]; ok {
			subj, err = s, nil
		}
	})
	return subj, err
}

func (repo *schoolRepository) UpdateSubject(_ context.Context, subj school.Subject) (school.Subject, error) {
	err := repo.exec.write(func(t *tables) error {
		if _, ok := t.subjects[subj.ID]; !ok {
			return school.ErrNotFound
		}
		for _, s := range t.subjects {
			if s.ID != subj.ID && s.SchoolID == subj.SchoolID && s.Name == subj.Name {
				return uniqueViolation("subjects_name_school_id_key")
			}
		}
		t.subjects[subj.ID] = subj
		return nil
	})
	if err != nil {
		return school.Subject{}, err
	}
	return subj, nil
}

func (repo *schoolRepository) DeleteSubject(_ context.Context, id string) error {
	return repo.exec.write(func(t *tables) error {
		if _, ok := t.subjects[id]; !ok {
			return school.ErrNotFound
		}
		delete(t.subjects, id)
		for scID, sc := range t.scores {
			if sc.SubjectID == id {
				delete(t.scores, scID) // ON DELETE CASCADE
			}
		}
		return nil
	})
}

func (repo *schoolRepository) QuerySubjects(_ context.Context, schoolID string) ([]school.Subject, error) {
	subjects := make([]school.Subject, 0)
	repo.exec.read(func(t *tables) {
		for _, s := range t.subjects {
			if s.SchoolID == schoolID {
				subjects = append(subjects, s)
			}
		}
	})
	sort.Slice(subjects, func(i, j int) bool { return subjects[i].Name < subjects[j].Name })
	return subjects, nil
}

// checkStudent enforces the school & class foreign keys, and the unique admission number.
func checkStudent(t *tables, std school.Student) error {
	if _, ok := t.schools[std.SchoolID]; !ok {
		return foreignKeyViolation("students_school_id_fkey")
	}
	if _, ok := t.classes[std.ClassID]; std.ClassID != "" && !ok {
		return foreignKeyViolation("students_school_class_id_fkey")
	}
	for _, s := range t.students {
		if s.ID != std.ID && s.AdmissionNumber == std.AdmissionNumber {
			return uniqueViolation("students_admission_number_key")
		}
	}
	return nil
}

func (repo *schoolRepository) GetStudent(_ context.Context, id string) (std school.Student, err error) {
	err = school.ErrNotFound
	repo.exec.read(func(t *tables) {
		if s, ok := t.students[id]; ok {
			std, err = s, nil
		}
	})
	return std, err
}

func (repo *schoolRepository) CreateStudent(_ context.Context, std school.Student) (school.Student, error) {
	err := repo.exec.write(func(t *tables) error {
		if err := checkStudent(t, std); err != nil {
			return err
		}
		std.ID = newID()
		if std.CreatedAt.IsZero() {
			std.CreatedAt = now()
		}
		t.students[std.ID] = std
		return nil
	})
	if err != nil {
		return school.Student{}, err
	}
	return std, nil
}

func (repo *schoolRepository) UpdateStudent(_ context.Context, std school.Student) (school.Student, error) {
	err := repo.exec.write(func(t *tables) error {
		if _, ok := t.students[std.ID]; !ok {
			return school.ErrNotFound
		}
		if err := checkStudent(t, std); err != nil {
			return err
		}
		t.students[std.ID] = std
		return nil
	})
	if err != nil {
		return school.Student{}, err
	}
	return std, nil
}

func (repo *schoolRepository) DeleteStudent(_ context.Context, id string) error {
	return repo.exec.write(func(t *tables) error {
		if _, ok := t.students[id]; !ok {
			return school.ErrNotFound
		}
		delete(t.students, id)
		for scID, sc := range t.scores {
			if sc.StudentID == id {
				delete(t.scores, scID) // ON DELETE CASCADE
			}
		}
		return nil
	})
}

func (repo *schoolRepository) AdmissionNumberExists(_ context.Context, number string) (exists bool, _ error) {
	repo.exec.read(func(t *tables) {
		for _, s := range t.students {
			if s.AdmissionNumber == number {
				exists = true
				return
			}
		}
	})
	return exists, nil
}

func (repo *schoolRepository) QueryStudents(_ context.Context, filter *school.StudentFilter, ordering []core.DBOrdering) ([]school.Student, error) {
	students := make([]school.Student, 0)
	repo.exec.read(func(t *tables) {
		for _, s := range t.students {
			if filter != nil {
				if filter.SchoolID != "" && s.SchoolID != filter.SchoolID {
					continue
				}
				if filter.ClassID != "" && s.ClassID != filter.ClassID {
					continue
				}
				if filter.Search != "" && !containsFold(filter.Search, s.FirstName, s.LastName, s.AdmissionNumber) {
					continue
				}
			}
			students = append(students, s)
		}
	})
	sort.SliceStable(students, func(i, j int) bool {
		for _, ord := range ordering {
			a, b := studentField(students[i], ord.Field), studentField(students[j], ord.Field)
			if a == b {
				continue
			}
			if ord.Ascending {
				return a < b
			}
			return a > b
		}
		return students[i].ID < students[j].ID
	})
	return students, nil
}

func studentField(s school.Student, field string) string {
	switch field {
	case "first_name":
		return s.FirstName
	case "last_name":
		return s.LastName
	case "admission_number":
		return s.AdmissionNumber
	case "created_at":
		return s.CreatedAt.UTC().Format(sortableTime)
	}
	return ""
}

func containsFold(search string, values ...string) bool {
	search = strings.ToLower(search)
	for _, v := range values {
		if strings.Contains(strings.ToLower(v), search) {
			return true
		}
	}
	return false
}

func (repo *schoolRepository) UpdateScores(_ context.Context, studentID, subjectID string, score decimal.Decimal, recordedByID string) (int64, error) {
	var n int64
	err := repo.exec.write(func(t *tables) error {
		for id, sc := range t.scores {
			if sc.StudentID != studentID || sc.SubjectID != subjectID {
				continue
			}
			sc.Score = score
			sc.RecordedByID = recordedByID
			if err := sc.Validate(); err != nil {
				return checkViolation("scores_score_check")
			}
			t.scores[id] = sc
			n++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// checkScore enforces the student & subject foreign keys, the score range and the
// unique (student, subject, term, session).
func checkScore(t *tables, sc school.Score) error {
	if _, ok := t.students[sc.StudentID]; !ok {
		return foreignKeyViolation("scores_student_id_fkey")
	}
	if _, ok := t.subjects[sc.SubjectID]; !ok {
		return foreignKeyViolation("scores_subject_id_fkey")
	}
	if err := sc.Validate(); err != nil {
		return checkViolation("scores_score_check")
	}
	for _, s := range t.scores {
		if s.ID != sc.ID && s.StudentID == sc.StudentID && s.SubjectID == sc.SubjectID && s.Term == sc.Term && s.Session == sc.Session {
			return uniqueViolation("scores_student_id_subject_id_term_session_key")
		}
	}
	return nil
}

func (repo *schoolRepository) GetScore(_ context.Context, id string) (sc school.Score, err error) {
	err = school.ErrNotFound
	repo.exec.read(func(t *tables) {
		if s, ok := t.scores[id]; ok {
			sc, err = s, nil
		}
	})
	return sc, err
}

func (repo *schoolRepository) UpdateScore(_ context.Context, sc school.Score) (school.Score, error) {
	err := repo.exec.write(func(t *tables) error {
		if _, ok := t.scores[sc.ID]; !ok {
			return school.ErrNotFound
		}
		if err := checkScore(t, sc); err != nil {
			return err
		}
		t.scores[sc.ID] = sc
		return nil
	})
	if err != nil {
		return school.Score{}, err
	}
	return sc, nil
}

func (repo *schoolRepository) DeleteScore(_ context.Context, id string) error {
	return repo.exec.write(func(t *tables) error {
		if _, ok := t.scores[id]; !ok {
			return school.ErrNotFound
		}
		delete(t.scores, id)
		return nil
	})
}

func (repo *schoolRepository) CreateScore(_ context.Context, sc school.Score) (school.Score, error) {
	err := repo.exec.write(func(t *tables) error {
		if err := checkScore(t, sc); err != nil {
			return err
		}
		sc.ID = newID()
		if sc.DateRecorded.IsZero() {
			sc.DateRecorded = now()
		}
		t.scores[sc.ID] = sc
		return nil
	})
	if err != nil {
		return school.Score{}, err
	}
	return sc, nil
}

func (repo *schoolRepository) QueryScores(_ context.Context, studentID string) ([]school.Score, error) {
	scores := make([]school.Score, 0)
	repo.exec.read(func(t *tables) {
		for _, s := range t.scores {
			if s.StudentID == studentID {
				scores = append(scores, s)
			}
		}
	})
	sort.Slice(scores, func(i, j int) bool { return scores[i].SubjectID < scores[j].SubjectID })
	return scores, nil
}

func (repo *schoolRepository) FilterScores(_ context.Context, schoolID string, filter *school.ScoreFilter) ([]school.Score, error) {
	scores := make([]school.Score, 0)
	repo.exec.read(func(t *tables) {
		for _, sc := range t.scores {
			if std, ok := t.students[sc.StudentID]; !ok || std.SchoolID != schoolID {
				continue
			}
			if filter != nil {
				if filter.StudentID != "" && sc.StudentID != filter.StudentID ||
					filter.SubjectID != "" && sc.SubjectID != filter.SubjectID ||
					filter.Term != 0 && sc.Term != filter.Term ||
					filter.Session != "" && sc.Session != filter.Session {
					continue
				}
			}
			scores = append(scores, sc)
		}
	})
	sort.Slice(scores, func(i, j int) bool {
		a, b := scores[i], scores[j]
		if a.StudentID != b.StudentID {
			return a.StudentID < b.StudentID
		}
		if a.SubjectID != b.SubjectID {
			return a.SubjectID < b.SubjectID
		}
		return a.ID < b.ID
	})
	return scores, nil
}
