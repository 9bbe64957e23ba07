package echoapi

import (
	"fmt"
	"net/http"
	"net/mail"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/schoolsaas/core"
	"github.com/trezcool/schoolsaas/core/importer"
	"github.com/trezcool/schoolsaas/core/school"
	"github.com/trezcool/schoolsaas/core/user"
)

const (
	importFileField = "file"
	// room for the multipart boundaries & the other form fields
	multipartOverhead = 64 << 10
)

type importApi struct {
	svc       *importer.Service
	schoolSvc *school.Service
	usrSvc    *user.Service
	mailSvc   core.EmailService
	conf      *core.Config
	validate  *validator.Validate
}

func registerImportAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := importApi{
		svc:       deps.ImportSvc,
		schoolSvc: deps.SchoolSvc,
		usrSvc:    deps.UserSvc,
		mailSvc:   deps.MailSvc,
		conf:      deps.Conf,
		validate:  deps.Validate,
	}

	bodyLimit := middleware.BodyLimit(strconv.FormatInt(deps.Conf.Import.MaxUploadSize+multipartOverhead, 10) + "B")
	ig := g.Group("/imports", bodyLimit, jwt, schoolMiddleware, staffMiddleware())
	ig.POST("", api.create)
}

func fileError(msg string) error {
	return core.NewValidationError(errors.New(msg), core.FieldError{Field: importFileField, Error: msg})
}

// create imports the uploaded workbook into the caller's school, all or nothing.
func (api *importApi) create(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}

	fh, err := ctx.FormFile(importFileField)
	if err != nil {
		return fileError("this field is required")
	}
	if fh.Size > api.conf.Import.MaxUploadSize {
		return fileError(fmt.Sprintf("the file is too large (max %d bytes)", api.conf.Import.MaxUploadSize))
	}
	if ext := strings.ToLower(filepath.Ext(fh.Filename)); ext != ".xlsx" {
		return fileError("only .xlsx files are supported")
	}

	var opts ImportOptions
	if err = ctx.Bind(&opts); err != nil {
		return errors.Wrap(err, "binding to ImportOptions")
	}
	if err = api.validate.Struct(&opts); err != nil {
		return err
	}

	rctx := ctx.Request().Context()
	sch, err := api.schoolSvc.GetSchool(rctx, usr.SchoolID)
	if err != nil {
		if errors.Is(err, school.ErrNotFound) {
			return errHttpForbidden
		}
		return errors.Wrap(err, "getting user school")
	}

	f, err := fh.Open()
	if err != nil {
		return errors.Wrap(err, "opening uploaded file")
	}
	defer func() { _ = f.Close() }()

	rows, err := importer.ReadWorkbook(f)
	if err != nil {
		if errors.Is(err, importer.ErrEmptyFile) {
			return err
		}
		return fileError("the file is not a valid .xlsx workbook")
	}

	res, err := api.svc.Import(rctx, rows, importer.Options{
		School:  sch.Name,
		Term:    opts.Term,
		Session: opts.Session,
	})
	if err != nil {
		return err // rolled back
	}

	api.notify(usr, sch, fh.Filename, res)
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: res.Message()})
}

// notify mails an import summary to the caller; sending is asynchronous.
func (api *importApi) notify(usr user.User, sch school.School, filename string, res importer.Result) {
	if usr.Email == "" {
		return
	}
	msg := core.NewEmailMessage(
		api.conf,
		[]mail.Address{{Name: usr.Name, Address: usr.Email}},
		"Import completed",
		"import_summary",
		map[string]string{
			"Name":     usr.Name,
			"Filename": filename,
			"School":   sch.Name,
			"Rows":     strconv.Itoa(res.Rows),
			"Classes":  strconv.Itoa(res.ClassesCreated),
			"Subjects": strconv.Itoa(res.SubjectsCreated),
			"Teachers": strconv.Itoa(res.TeachersCreated),
			"Students": strconv.Itoa(res.StudentsCreated),
			"Scores":   strconv.Itoa(res.ScoresCreated + res.ScoresUpdated),
		},
	)
	api.mailSvc.SendMessages(msg)
}

// ImportOptions are the optional form fields of an import.
type ImportOptions struct {
	Term    int    `json:"term" form:"term" validate:"omitempty,term"`
	Session string `json:"session" form:"session" validate:"omitempty,session"`
}
