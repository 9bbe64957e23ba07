package main

import (
	"context"
	"fmt"
	"os"

	"github.com/trezcool/schoolsaas/core"
	"github.com/trezcool/schoolsaas/core/importer"
	"github.com/trezcool/schoolsaas/core/school"
	"github.com/trezcool/schoolsaas/core/user"
	emailsvc "github.com/trezcool/schoolsaas/services/email"
	logsvc "github.com/trezcool/schoolsaas/services/logger"
	"github.com/trezcool/schoolsaas/storage/database"
	sqlxrepos "github.com/trezcool/schoolsaas/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(os.Stderr, "ADMIN", conf)
	logger.Enable(!conf.Debug)

	ctx := context.Background()

	// set up DB
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}
	defer func() { _ = db.Close() }()
	if err = database.Ping(ctx, db); err != nil {
		logger.Fatal(fmt.Sprintf("pinging database: %v", err), err)
	}

	policy, err := importer.PolicyFromConfig(conf.Import)
	if err != nil {
		logger.Fatal(fmt.Sprintf("configuring imports: %v", err), err)
	}

	validate, translator := core.NewValidator()
	user.InitValidators(validate, translator)
	school.InitValidators(validate, translator)

	uow := sqlxrepos.NewUnitOfWork(db)
	usrRepo := sqlxrepos.NewUserRepository(db)
	usrSvc := user.NewService(usrRepo, emailsvc.NewConsoleService(os.Stdout, logger, conf), conf)

	// start CLI
	cli := commandLine{
		out:       os.Stdout,
		db:        db.DB,
		validate:  validate,
		usrSvc:    usrSvc,
		schoolSvc: school.NewService(uow, sqlxrepos.NewSchoolRepository(db), usrSvc),
		importSvc: importer.NewService(uow, logger, policy),
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			fmt.Fprintf(os.Stderr, "\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}
