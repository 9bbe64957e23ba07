package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/schoolsaas/core/school"
	"github.com/trezcool/schoolsaas/core/user"
)

type schoolApi struct {
	svc      *school.Service
	validate *validator.Validate
}

func registerSchoolAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := schoolApi{
		svc:      deps.SchoolSvc,
		validate: deps.Validate,
	}

	g.POST("/schools/register", api.register)

	// admins & teachers manage the records of their school
	ag := g.Group("", jwt, schoolMiddleware, staffMiddleware())

	ag.GET("/classes", api.queryClasses)
	ag.POST("/classes", api.createClass)
	ag.GET("/classes/:id", api.retrieveClass)
	ag.PUT("/classes/:id", api.updateClass)
	ag.DELETE("/classes/:id", api.destroyClass)

	ag.GET("/subjects", api.querySubjects)
	ag.POST("/subjects", api.createSubject)
	ag.GET("/subjects/:id", api.retrieveSubject)
	ag.PUT("/subjects/:id", api.updateSubject)
	ag.DELETE("/subjects/:id", api.destroySubject)

	ag.GET("/students", api.queryStudents)
	ag.POST("/students", api.createStudent)
	ag.GET("/students/:id", api.retrieveStudent)
	ag.PUT("/students/:id", api.updateStudent)
	ag.DELETE("/students/:id", api.destroyStudent)

	ag.GET("/scores", api.queryScores)
	ag.POST("/scores", api.createScore)
	ag.GET("/scores/:id", api.retrieveScore)
	ag.PUT("/scores/:id", api.updateScore)
	ag.DELETE("/scores/:id", api.destroyScore)
}

type RegistrationResponse struct {
	School school.School `json:"school"`
	Admin  user.User     `json:"admin"`
}

// notFound maps school.ErrNotFound to a 404.
func notFound(err error, action string) error {
	if errors.Is(err, school.ErrNotFound) {
		return errHttpNotFound
	}
	return errors.Wrap(err, action)
}

func (api *schoolApi) register(ctx echo.Context) error {
	var data school.Registration
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Registration")
	}
	rctx := ctx.Request().Context()
	if err := api.svc.ValidateRegistration(rctx, api.validate, &data); err != nil {
		return err
	}

	sch, usr, err := api.svc.Register(rctx, data)
	if err != nil {
		return errors.Wrap(err, "registering school")
	}
	return ctx.JSON(http.StatusCreated, RegistrationResponse{School: sch, Admin: usr})
}

// Classes

func (api *schoolApi) queryClasses(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	classes, err := api.svc.QueryClasses(ctx.Request().Context(), claims.SchoolID)
	if err != nil {
		return errors.Wrap(err, "querying classes")
	}
	return ctx.JSON(http.StatusOK, classes)
}

func (api *schoolApi) createClass(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	var data school.NewClass
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewClass")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	cls, err := api.svc.CreateClass(ctx.Request().Context(), claims.SchoolID, data)
	if err != nil {
		return errors.Wrap(err, "creating class")
	}
	return ctx.JSON(http.StatusCreated, cls)
}

func (api *schoolApi) retrieveClass(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	cls, err := api.svc.GetClassByID(ctx.Request().Context(), claims.SchoolID, ctx.Param("id"))
	if err != nil {
		return notFound(err, "getting class")
	}
	return ctx.JSON(http.StatusOK, cls)
}

func (api *schoolApi) updateClass(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	var data school.NewClass
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewClass")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	cls, err := api.svc.UpdateClass(ctx.Request().Context(), claims.SchoolID, ctx.Param("id"), data)
	if err != nil {
		return notFound(err, "updating class")
	}
	return ctx.JSON(http.StatusOK, cls)
}

func (api *schoolApi) destroyClass(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteClass(ctx.Request().Context(), claims.SchoolID, ctx.Param("id")); err != nil {
		return notFound(err, "deleting class")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Subjects

func (api *schoolApi) querySubjects(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	subjects, err := api.svc.QuerySubjects(ctx.Request().Context(), claims.SchoolID)
	if err != nil {
		return errors.Wrap(err, "querying subjects")
	}
	return ctx.JSON(http.StatusOK, subjects)
}

func (api *schoolApi) createSubject(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	var data school.NewSubject
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSubject")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	subj, err := api.svc.CreateSubject(ctx.Request().Context(), claims.SchoolID, data)
	if err != nil {
		return errors.Wrap(err, "creating subject")
	}
	return ctx.JSON(http.StatusCreated, subj)
}

func (api *schoolApi) retrieveSubject(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	subj, err := api.svc.GetSubjectByID(ctx.Request().Context(), claims.SchoolID, ctx.Param("id"))
	if err != nil {
		return notFound(err, "getting subject")
	}
	return ctx.JSON(http.StatusOK, subj)
}

func (api *schoolApi) updateSubject(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	var data school.NewSubject
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSubject")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	subj, err := api.svc.UpdateSubject(ctx.Request().Context(), claims.SchoolID, ctx.Param("id"), data)
	if err != nil {
		return notFound(err, "updating subject")
	}
	return ctx.JSON(http.StatusOK, subj)
}

func (api *schoolApi) destroySubject(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteSubject(ctx.Request().Context(), claims.SchoolID, ctx.Param("id")); err != nil {
		return notFound(err, "deleting subject")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Students

func (api *schoolApi) queryStudents(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	filter := new(school.StudentFilter)
	if err = ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []school.Student{})
	}
	filter.Clean()
	filter.SchoolID = claims.SchoolID

	ordering := new(Ordering)
	ordering.Bind(ctx)

	students, err := api.svc.QueryStudents(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying students")
	}
	return ctx.JSON(http.StatusOK, students)
}

func (api *schoolApi) createStudent(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	var data school.NewStudent
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewStudent")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	std, err := api.svc.CreateStudent(ctx.Request().Context(), claims.SchoolID, data)
	if err != nil {
		return errors.Wrap(err, "creating student")
	}
	return ctx.JSON(http.StatusCreated, std)
}

func (api *schoolApi) retrieveStudent(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	std, err := api.svc.GetStudentByID(ctx.Request().Context(), claims.SchoolID, ctx.Param("id"))
	if err != nil {
		return notFound(err, "getting student")
	}
	return ctx.JSON(http.StatusOK, std)
}

func (api *schoolApi) updateStudent(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	var data school.NewStudent
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewStudent")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	std, err := api.svc.UpdateStudent(ctx.Request().Context(), claims.SchoolID, ctx.Param("id"), data)
	if err != nil {
		return notFound(err, "updating student")
	}
	return ctx.JSON(http.StatusOK, std)
}

func (api *schoolApi) destroyStudent(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteStudent(ctx.Request().Context(), claims.SchoolID, ctx.Param("id")); err != nil {
		return notFound(err, "deleting student")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Scores

func (api *schoolApi) queryScores(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	filter := new(school.ScoreFilter)
	if err = ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []school.Score{})
	}
	filter.Clean()

	scores, err := api.svc.FilterScores(ctx.Request().Context(), claims.SchoolID, filter)
	if err != nil {
		return errors.Wrap(err, "querying scores")
	}
	return ctx.JSON(http.StatusOK, scores)
}

// createScore records a score; the caller is its recorder.
func (api *schoolApi) createScore(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	var data school.NewScore
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewScore")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	sc, err := api.svc.CreateScore(ctx.Request().Context(), claims.SchoolID, claims.Subject, data)
	if err != nil {
		return errors.Wrap(err, "creating score")
	}
	return ctx.JSON(http.StatusCreated, sc)
}

func (api *schoolApi) retrieveScore(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	sc, err := api.svc.GetScoreByID(ctx.Request().Context(), claims.SchoolID, ctx.Param("id"))
	if err != nil {
		return notFound(err, "getting score")
	}
	return ctx.JSON(http.StatusOK, sc)
}

func (api *schoolApi) updateScore(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	var data school.NewScore
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewScore")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	sc, err := api.svc.UpdateScore(ctx.Request().Context(), claims.SchoolID, ctx.Param("id"), claims.Subject, data)
	if err != nil {
		return notFound(err, "updating score")
	}
	return ctx.JSON(http.StatusOK, sc)
}

func (api *schoolApi) destroyScore(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteScore(ctx.Request().Context(), claims.SchoolID, ctx.Param("id")); err != nil {
		return notFound(err, "deleting score")
	}
	return ctx.NoContent(http.StatusNoContent)
}
