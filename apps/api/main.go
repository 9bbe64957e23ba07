package main

import (
	"context"
	"expvar"
	"fmt"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof on the default mux
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	echoapi "github.com/trezcool/schoolsaas/apps/api/echo"
	"github.com/trezcool/schoolsaas/core"
	"github.com/trezcool/schoolsaas/core/importer"
	"github.com/trezcool/schoolsaas/core/school"
	"github.com/trezcool/schoolsaas/core/user"
	emailsvc "github.com/trezcool/schoolsaas/services/email"
	logsvc "github.com/trezcool/schoolsaas/services/logger"
	"github.com/trezcool/schoolsaas/storage/database"
	dummydb "github.com/trezcool/schoolsaas/storage/database/dummy"
	sqlxrepos "github.com/trezcool/schoolsaas/storage/database/sqlx"
)

// stores groups the storage implementations selected by DATABASE_ENGINE.
type stores struct {
	uow     school.UnitOfWork
	usrRepo user.Repository
	schRepo school.Repository
	close   func() error
}

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	logger := logsvc.NewRollbarLogger(os.Stdout, "API", conf)
	logger.Enable(!conf.Debug)

	dbLogger := logsvc.NewRollbarLogger(os.Stdout, "DB", conf)
	dbLogger.Enable(!conf.Debug)

	st, err := setUpDB(context.Background(), conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err := st.close(); err != nil {
			dbLogger.Error("failed to close database", err)
		}
	}()

	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(os.Stdout, logger, conf)
	} else {
		mailSvc = emailsvc.NewSendgridService(logger, conf)
	}

	policy, err := importer.PolicyFromConfig(conf.Import)
	if err != nil {
		logger.Fatal(fmt.Sprintf("configuring imports: %v", err), err)
	}

	usrSvc := user.NewService(st.usrRepo, mailSvc, conf)
	schSvc := school.NewService(st.uow, st.schRepo, usrSvc)
	impSvc := importer.NewService(st.uow, logger, policy)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate, translator := core.NewValidator()
	user.InitValidators(validate, translator)
	school.InitValidators(validate, translator)

	core.ParseEmailTemplates(conf, logger)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.
	// /metrics - Prometheus metrics, import counters & durations included.

	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	expvar.NewString("database_engine").Set(conf.Database.Engine)
	http.Handle("/metrics", promhttp.Handler())

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(echoapi.ServerDeps{
		Conf:       conf,
		Logger:     logger,
		Validate:   validate,
		Translator: translator,
		MailSvc:    mailSvc,
		UserSvc:    usrSvc,
		SchoolSvc:  schSvc,
		ImportSvc:  impSvc,
	})
	server.Start()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

func setUpDB(ctx context.Context, conf *core.Config) (stores, error) {
	switch conf.Database.Engine {
	case "memory":
		db := dummydb.Open()
		return stores{
			uow:     db,
			usrRepo: dummydb.NewUserRepository(db),
			schRepo: dummydb.NewSchoolRepository(db),
			close:   func() error { return nil },
		}, nil

	case "postgres":
		db, err := openPostgres(ctx, conf)
		if err != nil {
			return stores{}, err
		}
		return stores{
			uow:     sqlxrepos.NewUnitOfWork(db),
			usrRepo: sqlxrepos.NewUserRepository(db),
			schRepo: sqlxrepos.NewSchoolRepository(db),
			close:   db.Close,
		}, nil
	}
	return stores{}, errors.Errorf("unknown database engine %q", conf.Database.Engine)
}

func openPostgres(ctx context.Context, conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(ctx, conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}
	if err = database.Ping(ctx, db); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "pinging database")
	}
	if err = database.Migrate(ctx, db.DB); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
