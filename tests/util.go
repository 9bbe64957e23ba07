package testutil

import (
	"bytes"
	"context"
	"io"
	"os"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/trezcool/schoolsaas/core"
	"github.com/trezcool/schoolsaas/core/user"
	logsvc "github.com/trezcool/schoolsaas/services/logger"
)

// ImportHeader is the header row of an import workbook.
var ImportHeader = []string{"School", "Class", "Subject", "Teacher", "Student First Name", "Student Last Name", "Gender", "Score"}

// NewConfig returns the TEST configuration, backed by the in-memory store.
func NewConfig() *core.Config {
	_ = os.Setenv("ENV", "TEST")
	conf := core.NewConfig()
	conf.Database.Engine = "memory"
	return conf
}

// NewLogger returns a logger that discards its output and never reports to Rollbar.
func NewLogger(conf *core.Config) core.Logger {
	l := logsvc.NewRollbarLogger(io.Discard, "TEST", conf)
	l.Enable(false)
	return l
}

// NewBufferLogger returns a logger that writes its text output to `buf` and never reports to Rollbar.
func NewBufferLogger(conf *core.Config, buf *bytes.Buffer) core.Logger {
	l := logsvc.NewRollbarLogger(buf, "TEST", conf)
	l.Enable(false)
	return l
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	schoolID, name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		SchoolID:  schoolID,
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

// NewWorkbook writes `header` then `rows` to the first sheet of a new xlsx workbook.
func NewWorkbook(t *testing.T, header []string, rows ...[]interface{}) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(0)
	hdr := make([]interface{}, 0, len(header))
	for _, h := range header {
		hdr = append(hdr, h)
	}
	if err := f.SetSheetRow(sheet, "A1", &hdr); err != nil {
		t.Fatalf("NewWorkbook() failed: %v", err)
	}
	for i, row := range rows {
		row := row
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			t.Fatalf("NewWorkbook() failed: %v", err)
		}
		if err = f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatalf("NewWorkbook() failed: %v", err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("NewWorkbook() failed: %v", err)
	}
	return buf
}

// ImportRow is a row of the import workbook, in ImportHeader order.
func ImportRow(school, class, subject, teacher, firstName, lastName, gender string, score interface{}) []interface{} {
	return []interface{}{school, class, subject, teacher, firstName, lastName, gender, score}
}
