package main

import (
	"context"

	"github.com/pressly/goose/v3"

	"github.com/trezcool/schoolsaas/storage/database"
)

var gooseRunFunc database.GooseRunFunc = goose.RunContext // mockable

func (cli *commandLine) migrate(args []string) error {
	return database.RunMigrations(context.Background(), gooseRunFunc, cli.db, args[0], args[1:]...)
}
