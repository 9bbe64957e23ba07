package school

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/schoolsaas/core"
	"github.com/trezcool/schoolsaas/core/user"
)

// Score terms
const (
	TermFirst  = 1
	TermSecond = 2
	TermThird  = 3
)

var (
	DefaultMaxScore = decimal.NewFromInt(100)

	// StudentOrderingFields maps the public ordering names to Student columns.
	StudentOrderingFields = map[string]string{
		"first_name":       "first_name",
		"last_name":        "last_name",
		"admission_number": "admission_number",
		"created_at":       "created_at",
	}
	DefaultStudentOrdering = []core.DBOrdering{
		{Field: "last_name", Ascending: true},
		{Field: "first_name", Ascending: true},
	}
)

type School struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	CreatedAt time.Time `json:"created_at"` // UTC
}

// Class is a school class (e.g. "Grade 1"); its name is unique within a School.
type Class struct {
	ID        string    `json:"id"`
	SchoolID  string    `json:"school_id"`
	Name      string    `json:"name"`
	Year      int       `json:"year,omitempty"`
	CreatedAt time.Time `json:"created_at"` // UTC
}

type Subject struct {
	ID        string    `json:"id"`
	SchoolID  string    `json:"school_id"`
	Name      string    `json:"name"`
	Code      string    `json:"code,omitempty"`
	CreatedAt time.Time `json:"created_at"` // UTC
}

type Student struct {
	ID              string    `json:"id"`
	SchoolID        string    `json:"school_id"`
	ClassID         string    `json:"class_id,omitempty"`
	FirstName       string    `json:"first_name"`
	LastName        string    `json:"last_name"`
	Gender          string    `json:"gender"`
	DateOfBirth     null.Time `json:"date_of_birth"`
	AdmissionNumber string    `json:"admission_number"`
	CreatedAt       time.Time `json:"created_at"` // UTC
}

func (s Student) FullName() string { return s.FirstName + " " + s.LastName }

type Score struct {
	ID           string          `json:"id"`
	StudentID    string          `json:"student_id"`
	SubjectID    string          `json:"subject_id"`
	Score        decimal.Decimal `json:"score"`
	MaxScore     decimal.Decimal `json:"max_score"`
	Term         int             `json:"term"`
	Session      string          `json:"session"`
	RecordedByID string          `json:"recorded_by_id,omitempty"`
	DateRecorded time.Time       `json:"date_recorded"` // UTC
}

// ErrScoreOutOfRange is returned when a Score is not within [0, MaxScore].
type ErrScoreOutOfRange struct {
	Score    decimal.Decimal
	MaxScore decimal.Decimal
}

func (e *ErrScoreOutOfRange) Error() string {
	return fmt.Sprintf("score %s is out of range [0, %s]", e.Score, e.MaxScore)
}

// Validate checks that 0 <= Score <= MaxScore.
func (s Score) Validate() error {
	maxScore := s.MaxScore
	if maxScore.IsZero() {
		maxScore = DefaultMaxScore
	}
	if s.Score.IsNegative() || s.Score.GreaterThan(maxScore) {
		return &ErrScoreOutOfRange{Score: s.Score, MaxScore: maxScore}
	}
	return nil
}

// ValidTerm reports whether term is one of TermFirst, TermSecond or TermThird.
func ValidTerm(term int) bool {
	return term >= TermFirst && term <= TermThird
}

var sessionRegex = regexp.MustCompile(`^(\d{4})/(\d{4})$`)

// ValidSession reports whether session spans two consecutive years, e.g. "2024/2025".
func ValidSession(session string) bool {
	m := sessionRegex.FindStringSubmatch(session)
	if m == nil {
		return false
	}
	start, _ := strconv.Atoi(m[1])
	end, _ := strconv.Atoi(m[2])
	return end == start+1
}

// NewAdmissionNumber returns 8 upper-cased hex characters, e.g. "3F2504E0".
func NewAdmissionNumber() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:8])
}

// CurrentSession returns the academic session of `t`, e.g. "2024/2025" (sessions start in September).
func CurrentSession(t time.Time) string {
	year := t.Year()
	if t.Month() < time.September {
		year--
	}
	return fmt.Sprintf("%d/%d", year, year+1)
}

// Registration contains information needed to register a School & its owner.
type Registration struct {
	SchoolName string       `json:"school_name" validate:"required,notblank"`
	Address    string       `json:"address"`
	Admin      user.NewUser `json:"admin"`
}

func (r *Registration) Clean() {
	r.SchoolName = core.TitleCase(r.SchoolName)
	r.Address = core.CleanString(r.Address)
	r.Admin.Clean()
	r.Admin.Roles = []string{user.RoleAdminOwner}
}

type StudentFilter struct {
	SchoolID string `query:"-"`
	ClassID  string `query:"class"`
	Search   string `query:"search"`
}

func (sf *StudentFilter) Clean() {
	sf.Search = core.CleanString(sf.Search)
	sf.ClassID = core.CleanString(sf.ClassID)
}

// NewClass contains information needed to create or replace a Class.
type NewClass struct {
	Name string `json:"name" validate:"required,notblank,max=100"`
	Year int    `json:"year" validate:"omitempty,min=1"`
}

func (nc *NewClass) Clean() {
	nc.Name = core.TitleCase(nc.Name)
}

// NewSubject contains information needed to create or replace a Subject.
type NewSubject struct {
	Name string `json:"name" validate:"required,notblank,max=100"`
	Code string `json:"code" validate:"omitempty,max=20"`
}

func (ns *NewSubject) Clean() {
	ns.Name = core.TitleCase(ns.Name)
	ns.Code = strings.ToUpper(core.CleanString(ns.Code))
}

// NewStudent contains information needed to create or replace a Student.
// A blank AdmissionNumber is generated on creation, and left unchanged on update.
type NewStudent struct {
	FirstName       string `json:"first_name" validate:"required,notblank,max=100"`
	LastName        string `json:"last_name" validate:"required,notblank,max=100"`
	Gender          string `json:"gender" validate:"omitempty,max=20"`
	DateOfBirth     string `json:"date_of_birth" validate:"omitempty,datetime=2006-01-02"`
	ClassID         string `json:"class_id" validate:"omitempty,uuid"`
	AdmissionNumber string `json:"admission_number" validate:"omitempty,alphanum,max=20"`
}

func (ns *NewStudent) Clean() {
	ns.FirstName = core.TitleCase(ns.FirstName)
	ns.LastName = core.TitleCase(ns.LastName)
	ns.Gender = core.Capitalize(core.CleanString(ns.Gender))
	ns.DateOfBirth = core.CleanString(ns.DateOfBirth)
	ns.ClassID = core.CleanString(ns.ClassID)
	ns.AdmissionNumber = strings.ToUpper(core.CleanString(ns.AdmissionNumber))
}

// dateOfBirth parses the validated DateOfBirth.
func (ns NewStudent) dateOfBirth() null.Time {
	if ns.DateOfBirth == "" {
		return null.Time{}
	}
	t, err := time.Parse("2006-01-02", ns.DateOfBirth)
	return null.NewTime(t.UTC(), err == nil)
}

// NewScore contains information needed to record or replace a Score.
type NewScore struct {
	StudentID string           `json:"student_id" validate:"required,uuid"`
	SubjectID string           `json:"subject_id" validate:"required,uuid"`
	Term      int              `json:"term" validate:"required,term"`
	Session   string           `json:"session" validate:"required,session"`
	Score     *decimal.Decimal `json:"score"`
	MaxScore  *decimal.Decimal `json:"max_score"`
}

func (ns *NewScore) Clean() {
	ns.StudentID = core.CleanString(ns.StudentID)
	ns.SubjectID = core.CleanString(ns.SubjectID)
	ns.Session = core.CleanString(ns.Session)
}

// score builds the Score of the validated data; its range is checked with Score.Validate.
func (ns NewScore) score() Score {
	sc := Score{
		StudentID: ns.StudentID,
		SubjectID: ns.SubjectID,
		Term:      ns.Term,
		Session:   ns.Session,
		MaxScore:  DefaultMaxScore,
	}
	if ns.Score != nil {
		sc.Score = *ns.Score
	}
	if ns.MaxScore != nil {
		sc.MaxScore = *ns.MaxScore
	}
	return sc
}

type ScoreFilter struct {
	StudentID string `query:"student"`
	SubjectID string `query:"subject"`
	Term      int    `query:"term"`
	Session   string `query:"session"`
}

func (sf *ScoreFilter) Clean() {
	sf.StudentID = core.CleanString(sf.StudentID)
	sf.SubjectID = core.CleanString(sf.SubjectID)
	sf.Session = core.CleanString(sf.Session)
}
