package dummydb

import (
	"fmt"

	"github.com/trezcool/schoolsaas/core"
)

func uniqueViolation(constraint string) error {
	return &core.ConstraintError{
		Kind:       core.ConstraintUnique,
		Constraint: constraint,
		Err:        fmt.Errorf("duplicate key value violates unique constraint %q", constraint),
	}
}

func foreignKeyViolation(constraint string) error {
	return &core.ConstraintError{
		Kind:       core.ConstraintForeignKey,
		Constraint: constraint,
		Err:        fmt.Errorf("insert or update violates foreign key constraint %q", constraint),
	}
}

func checkViolation(constraint string) error {
	return &core.ConstraintError{
		Kind:       core.ConstraintCheck,
		Constraint: constraint,
		Err:        fmt.Errorf("new row violates check constraint %q", constraint),
	}
}
