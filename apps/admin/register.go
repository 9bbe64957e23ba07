package main

import (
	"context"
	"fmt"

	"github.com/trezcool/schoolsaas/core/school"
)

// register creates a school with its owner, the way the registration endpoint does.
func (cli *commandLine) register(reg school.Registration) error {
	ctx := context.Background()
	if err := cli.schoolSvc.ValidateRegistration(ctx, cli.validate, &reg); err != nil {
		return err
	}
	sch, usr, err := cli.schoolSvc.Register(ctx, reg)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "Registered %s (%s), owned by %s.\n", sch.Name, sch.ID, usr.Username)
	return nil
}
