package importer

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/schoolsaas/core"
	"github.com/trezcool/schoolsaas/core/school"
)

const (
	resultSuccess = "success"
	resultFailure = "failure"
	resultError   = "error"
)

// Options are the per-run settings of an import.
type Options struct {
	// School, when set, is the only school rows may name (tenant guard).
	School string
	// Term & Session of newly recorded scores; default to TermFirst and the current session.
	Term    int
	Session string
}

// Result reports a successful import run.
type Result struct {
	Rows            int `json:"rows"`
	SkippedRows     int `json:"skipped_rows"`
	SchoolsCreated  int `json:"schools_created"`
	ClassesCreated  int `json:"classes_created"`
	SubjectsCreated int `json:"subjects_created"`
	TeachersCreated int `json:"teachers_created"`
	StudentsCreated int `json:"students_created"`
	ScoresCreated   int `json:"scores_created"`
	ScoresUpdated   int `json:"scores_updated"`
}

func (r Result) Message() string {
	return fmt.Sprintf("Successfully imported %d rows.", r.Rows)
}

// Service imports spreadsheet rows into the school store: every row of a file is
// normalized, its entities resolved and its score upserted, all in one unit of work.
type Service struct {
	uow     school.UnitOfWork
	logger  core.Logger
	policy  Policy
	metrics *metrics

	nowFunc             func() time.Time // mockable
	admissionNumberFunc func() string    // mockable
}

func NewService(uow school.UnitOfWork, logger core.Logger, policy Policy) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(uow, "uow"),
		vala.IsNotNil(logger, "logger"),
		func() (bool, string) {
			return policy.AdmissionRetries >= 0, "policy.AdmissionRetries must not be negative"
		},
	).CheckAndPanic()

	return &Service{
		uow:     uow,
		logger:  logger,
		policy:  policy,
		metrics: getMetrics(),

		nowFunc:             time.Now,
		admissionNumberFunc: school.NewAdmissionNumber,
	}
}

// ImportWorkbook imports the first sheet of an xlsx workbook.
func (svc *Service) ImportWorkbook(ctx context.Context, r io.Reader, opts Options) (Result, error) {
	rows, err := ReadWorkbook(r)
	if err != nil {
		return Result{}, err
	}
	return svc.Import(ctx, rows, opts)
}

// Import imports `rows`, the first of which is the header row.
// Any error rolls back every write of the run.
// Invalid Options are rejected with a *core.ValidationError before anything is read.
func (svc *Service) Import(ctx context.Context, rows [][]string, opts Options) (res Result, err error) {
	if err = school.CheckTermAndSession(opts.Term, opts.Session); err != nil {
		return Result{}, err
	}

	start := svc.nowFunc()
	defer func() {
		result := resultSuccess
		if err != nil {
			result = resultFailure
			if !IsImportError(err) {
				result = resultError
			}
		}
		svc.metrics.observe(res, result, time.Since(start).Seconds())
	}()

	if len(rows) == 0 {
		return Result{}, ErrEmptyFile
	}
	idx, err := newColumnIndex(rows[0])
	if err != nil {
		return Result{}, err
	}

	opts = svc.withDefaults(opts, start)
	err = svc.uow.RunInTx(ctx, func(ctx context.Context, store school.Store) error {
		res = Result{}
		rsv := newResolver(store, svc.logger, svc.policy, start, &res)
		rsv.newAdmissionNumber = svc.admissionNumberFunc
		ups := &scoreUpserter{repo: store.Schools, term: opts.Term, session: opts.Session, now: start.UTC(), stats: &res}

		for i, raw := range rows[1:] {
			if err := ctx.Err(); err != nil {
				return err
			}
			if isBlankRow(raw) {
				res.SkippedRows++
				continue
			}

			row := normalizeRow(idx, raw, i+2)
			skip, err := svc.checkRow(row, opts)
			if err != nil {
				return err
			}
			if skip {
				res.SkippedRows++
				continue
			}

			resolved, err := rsv.resolve(ctx, row)
			if err != nil {
				return err
			}
			if err = ups.upsert(ctx, row, resolved); err != nil {
				return err
			}
			res.Rows++
		}
		return nil
	})
	if err != nil {
		svc.logFailure(err, opts)
		return Result{}, err
	}

	svc.logger.Info("import completed", map[string]interface{}{
		"school":   opts.School,
		"rows":     res.Rows,
		"skipped":  res.SkippedRows,
		"schools":  res.SchoolsCreated,
		"classes":  res.ClassesCreated,
		"subjects": res.SubjectsCreated,
		"teachers": res.TeachersCreated,
		"students": res.StudentsCreated,
		"scores":   res.ScoresCreated + res.ScoresUpdated,
		"duration": time.Since(start).String(),
	})
	return res, nil
}

func (svc *Service) withDefaults(opts Options, now time.Time) Options {
	opts.School = core.TitleCase(opts.School)
	if opts.Term == 0 {
		opts.Term = school.TermFirst
	}
	if opts.Session == "" {
		opts.Session = school.CurrentSession(now)
	}
	return opts
}

// checkRow applies the tenant guard and the blank score policy; it reports whether the row is skipped.
func (svc *Service) checkRow(row Row, opts Options) (bool, error) {
	if opts.School != "" && row.School != opts.School {
		return false, &EntityResolutionError{Row: row.Index, Entity: EntitySchool, Key: row.School, Err: ErrForeignSchool}
	}
	if !row.ScoreMissing {
		return false, nil
	}
	switch svc.policy.BlankScore {
	case BlankScoreSkipRow:
		return true, nil
	case BlankScoreReject:
		return false, &ScoreValidationError{Row: row.Index, Value: row.ScoreRaw, Err: ErrScoreMissing}
	default:
		return false, nil // Score is 0
	}
}

func (svc *Service) logFailure(err error, opts Options) {
	fields := map[string]interface{}{"school": opts.School}
	if IsImportError(err) || errors.Is(err, context.Canceled) {
		svc.logger.Warn(fmt.Sprintf("import rolled back: %v", err), fields)
		return
	}
	var unexpected *UnexpectedError
	if errors.As(err, &unexpected) {
		svc.logger.Error(fmt.Sprintf("import rolled back: %v", err), errors.Cause(unexpected.Err), fields)
		return
	}
	svc.logger.Error(fmt.Sprintf("import rolled back: %v", err), err, fields)
}
