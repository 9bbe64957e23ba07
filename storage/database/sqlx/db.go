package sqlxrepos

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/schoolsaas/core"
	"github.com/trezcool/schoolsaas/core/school"
)

// UnitOfWork runs functions in a database transaction.
type UnitOfWork struct {
	db *sqlx.DB
}

var _ school.UnitOfWork = (*UnitOfWork)(nil) // interface compliance check

func NewUnitOfWork(db *sqlx.DB) *UnitOfWork {
	return &UnitOfWork{db: db}
}

func (uow *UnitOfWork) RunInTx(ctx context.Context, fn func(ctx context.Context, store school.Store) error) error {
	tx, err := uow.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	store := school.Store{
		Schools: NewSchoolRepository(tx),
		Users:   NewUserRepository(tx),
	}
	if err = fn(ctx, store); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err = tx.Commit(); err != nil {
		return errors.Wrap(mapError(err), "committing transaction")
	}
	return nil
}

// Postgres integrity constraint violation codes (class 23)
const (
	codeNotNull    = "23502"
	codeForeignKey = "23503"
	codeUnique     = "23505"
	codeCheck      = "23514"
)

// mapError converts integrity constraint violations to *core.ConstraintError.
func mapError(err error) error {
	var pqErr *pq.Error
	if err == nil || !errors.As(err, &pqErr) || pqErr.Code.Class() != "23" {
		return err
	}

	kind := core.ConstraintOther
	switch string(pqErr.Code) {
	case codeUnique:
		kind = core.ConstraintUnique
	case codeForeignKey:
		kind = core.ConstraintForeignKey
	case codeCheck:
		kind = core.ConstraintCheck
	case codeNotNull:
		kind = core.ConstraintNotNull
	}
	return &core.ConstraintError{Kind: kind, Constraint: pqErr.Constraint, Err: err}
}

func newID() string { return uuid.New().String() }
