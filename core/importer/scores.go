package importer

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/schoolsaas/core"
	"github.com/trezcool/schoolsaas/core/school"
)

// scoreUpserter writes the score of a resolved (student, subject) pair,
// overwriting any score already recorded for the pair regardless of term & session.
type scoreUpserter struct {
	repo    school.Repository
	term    int
	session string
	now     time.Time
	stats   *Result
}

func (u *scoreUpserter) upsert(ctx context.Context, row Row, res resolved) error {
	sc := school.Score{
		StudentID:    res.student.ID,
		SubjectID:    res.subject.ID,
		Score:        decimal.NewFromInt(int64(row.Score)),
		MaxScore:     school.DefaultMaxScore,
		Term:         u.term,
		Session:      u.session,
		RecordedByID: res.teacher.ID,
		DateRecorded: u.now,
	}
	if err := sc.Validate(); err != nil {
		return &ScoreValidationError{Row: row.Index, Value: row.ScoreRaw, Err: err}
	}

	n, err := u.repo.UpdateScores(ctx, sc.StudentID, sc.SubjectID, sc.Score, sc.RecordedByID)
	if err != nil {
		return u.fail(row, err)
	}
	if n > 0 {
		u.stats.ScoresUpdated++
		return nil
	}

	if _, err = u.repo.CreateScore(ctx, sc); err != nil {
		return u.fail(row, err)
	}
	u.stats.ScoresCreated++
	return nil
}

// fail maps check constraint violations to a ScoreValidationError.
func (u *scoreUpserter) fail(row Row, err error) error {
	var cErr *core.ConstraintError
	if errors.As(err, &cErr) && cErr.Kind == core.ConstraintCheck {
		return &ScoreValidationError{Row: row.Index, Value: row.ScoreRaw, Err: err}
	}
	return &UnexpectedError{Row: row.Index, Err: errors.Wrap(err, "upserting score")}
}
