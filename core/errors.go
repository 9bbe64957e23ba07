package core

import "github.com/pkg/errors"

// ErrConstraintViolation is returned by storage when a write breaks a uniqueness,
// foreign key or check constraint.
var ErrConstraintViolation = errors.New("constraint violation")

type ConstraintKind string

const (
	ConstraintUnique     ConstraintKind = "unique"
	ConstraintForeignKey ConstraintKind = "foreign_key"
	ConstraintCheck      ConstraintKind = "check"
	ConstraintNotNull    ConstraintKind = "not_null"
	ConstraintOther      ConstraintKind = "other"
)

// ConstraintError carries the kind & name of the violated constraint.
type ConstraintError struct {
	Kind       ConstraintKind
	Constraint string
	Err        error
}

func (err *ConstraintError) Error() string {
	if err.Constraint == "" {
		return ErrConstraintViolation.Error() + ": " + err.Err.Error()
	}
	return ErrConstraintViolation.Error() + " (" + err.Constraint + "): " + err.Err.Error()
}

func (err *ConstraintError) Unwrap() error { return err.Err }

func (err *ConstraintError) Is(target error) bool { return target == ErrConstraintViolation }

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

func (err ValidationError) Unwrap() error { return err.Err }

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
