package main

import (
	"database/sql"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"golang.org/x/term"

	"github.com/trezcool/schoolsaas/core/importer"
	"github.com/trezcool/schoolsaas/core/school"
	"github.com/trezcool/schoolsaas/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	out       io.Writer
	db        *sql.DB
	validate  *validator.Validate
	usrSvc    *user.Service
	schoolSvc *school.Service
	importSvc *importer.Service
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS] - run a goose command (up, up-by-one, up-to, down, down-to, redo, reset, status, version)")
	fmt.Fprintln(cli.out, "  resetpassword -username USERNAME|EMAIL - reset user's password")
	fmt.Fprintln(cli.out, "  register -school NAME -name NAME -username USERNAME [-email EMAIL] - register a school and its owner")
	fmt.Fprintln(cli.out, "  import -file PATH [-school NAME] [-term N] [-session YYYY/YYYY] - import an xlsx workbook")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetPasswordUname := resetPasswordCmd.String("username", "", "The user's username or email. The password will be prompted next.")

	registerCmd := flag.NewFlagSet("register", flag.ContinueOnError)
	registerSchool := registerCmd.String("school", "", "The school's name.")
	registerName := registerCmd.String("name", "", "The owner's full name.")
	registerUname := registerCmd.String("username", "", "The owner's username. The password will be prompted next.")
	registerEmail := registerCmd.String("email", "", "The owner's email.")

	importCmd := flag.NewFlagSet("import", flag.ContinueOnError)
	importSchool := importCmd.String("school", "", "Only accept rows of this school (default: any school).")
	importFile := importCmd.String("file", "", "Path to the .xlsx workbook.")
	importTerm := importCmd.Int("term", 0, "The term the scores are recorded for (default 1).")
	importSession := importCmd.String("session", "", "The session the scores are recorded for (default: current session).")

	for _, fs := range []*flag.FlagSet{resetPasswordCmd, registerCmd, importCmd} {
		fs.SetOutput(cli.out)
	}

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *resetPasswordUname == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		return cli.resetPassword(*resetPasswordUname, pwd)

	case "register":
		if err := registerCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *registerSchool == "" || *registerName == "" || *registerUname == "" {
			registerCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			registerCmd.Usage()
			return errHelp
		}
		return cli.register(school.Registration{
			SchoolName: *registerSchool,
			Admin: user.NewUser{
				Name:            *registerName,
				Username:        *registerUname,
				Email:           *registerEmail,
				Password:        pwd,
				PasswordConfirm: pwd,
			},
		})

	case "import":
		if err := importCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *importFile == "" {
			importCmd.Usage()
			return errHelp
		}
		return cli.importFile(*importFile, importer.Options{
			School:  *importSchool,
			Term:    *importTerm,
			Session: *importSession,
		})

	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) promptPassword() (string, error) {
	fmt.Fprint(cli.out, "Enter password:")
	pwd, err := readPasswordFunc(int(os.Stdin.Fd()))
	fmt.Fprintln(cli.out)
	if err != nil {
		return "", errors.Wrap(err, "reading password")
	}
	return string(pwd), nil
}
