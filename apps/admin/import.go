package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/schoolsaas/core/importer"
)

func (cli *commandLine) importFile(path string, opts importer.Options) error {
	if ext := strings.ToLower(filepath.Ext(path)); ext != ".xlsx" {
		return errors.Errorf("only .xlsx files are supported (got %q)", ext)
	}
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "opening workbook")
	}
	defer func() { _ = f.Close() }()

	res, err := cli.importSvc.ImportWorkbook(context.Background(), f, opts)
	if err != nil {
		return err
	}
	fmt.Fprintln(cli.out, res.Message())
	fmt.Fprintf(cli.out, "classes: %d, subjects: %d, teachers: %d, students: %d created\n",
		res.ClassesCreated, res.SubjectsCreated, res.TeachersCreated, res.StudentsCreated)
	fmt.Fprintf(cli.out, "scores: %d created, %d updated; %d rows skipped\n",
		res.ScoresCreated, res.ScoresUpdated, res.SkippedRows)
	return nil
}
