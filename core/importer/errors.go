package importer

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrEmptyFile     = errors.New("the file has no header row")
	ErrBlankValue    = errors.New("value is blank")
	ErrForeignSchool = errors.New("rows can only be imported into your own school")
	ErrScoreMissing  = errors.New("score is blank or not a whole number")
)

// MissingColumnError is returned, before any row is processed, when the header row lacks required columns.
type MissingColumnError struct {
	Columns []string
}

func (e *MissingColumnError) Error() string {
	return "missing required columns: " + strings.Join(e.Columns, ", ")
}

// EntityResolutionError is returned when an entity of a row cannot be resolved or created.
type EntityResolutionError struct {
	Row    int
	Entity string
	Key    string
	Err    error
}

func (e *EntityResolutionError) Error() string {
	return fmt.Sprintf("row %d: could not resolve %s %q: %v", e.Row, e.Entity, e.Key, e.Err)
}

func (e *EntityResolutionError) Unwrap() error { return e.Err }

// ScoreValidationError is returned when a score cannot be persisted (out of range, malformed under a strict policy).
type ScoreValidationError struct {
	Row   int
	Value string
	Err   error
}

func (e *ScoreValidationError) Error() string {
	return fmt.Sprintf("row %d: invalid score %q: %v", e.Row, e.Value, e.Err)
}

func (e *ScoreValidationError) Unwrap() error { return e.Err }

// UnexpectedError wraps any other failure while processing a row.
// Its message stays generic; the cause is kept for logging.
type UnexpectedError struct {
	Row int
	Err error
}

func (e *UnexpectedError) Error() string {
	return fmt.Sprintf("row %d: an unexpected error occurred", e.Row)
}

func (e *UnexpectedError) Unwrap() error { return e.Err }

// IsImportError reports whether err is one of the import errors, i.e. caused by the file's content.
func IsImportError(err error) bool {
	var (
		missingErr *MissingColumnError
		entityErr  *EntityResolutionError
		scoreErr   *ScoreValidationError
	)
	return errors.Is(err, ErrEmptyFile) ||
		errors.As(err, &missingErr) ||
		errors.As(err, &entityErr) ||
		errors.As(err, &scoreErr)
}
