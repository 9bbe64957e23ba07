package logsvc

import (
	"io"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"
	"github.com/sirupsen/logrus"

	"github.com/trezcool/schoolsaas/core"
	"github.com/trezcool/schoolsaas/core/user"
)

// RollbarLogger reports to Rollbar (when enabled) and writes structured local logs.
type RollbarLogger struct {
	entry *logrus.Entry
}

var _ core.Logger = (*RollbarLogger)(nil)

// NewRollbarLogger returns a logger writing to `out`, tagged with `component` (e.g. "API", "DB").
func NewRollbarLogger(out io.Writer, component string, conf *core.Config) *RollbarLogger {
	rollbar.SetToken(conf.RollbarToken)
	rollbar.SetEnvironment(conf.Env)
	rollbar.SetServerHost(conf.Server.Host)
	rollbar.SetCodeVersion(conf.Build)
	rollbar.SetStackTracer(errors.StackTracer)

	l := logrus.New()
	l.SetOutput(out)
	if conf.Debug || conf.TestMode {
		l.SetLevel(logrus.DebugLevel)
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		l.SetLevel(logrus.InfoLevel)
		l.SetFormatter(&logrus.JSONFormatter{})
	}
	return &RollbarLogger{entry: l.WithField("component", component)}
}

func (l RollbarLogger) Enable(enabled bool) {
	rollbar.SetEnabled(enabled)
}

// expected fmt: msg | error, map[string]interface{}, user.User
func (l RollbarLogger) prepare(msg string, args []interface{}) ([]interface{}, *logrus.Entry) {
	var usrSet bool
	entry := l.entry
	rbArgs := make([]interface{}, 0, len(args)+1)
	rbArgs = append(rbArgs, msg)
	for _, arg := range args {
		switch a := arg.(type) {
		case user.User:
			// set logged in User; only one
			if !usrSet {
				rollbar.SetPerson(a.ID, a.Username, a.Email)
				entry = entry.WithField("user_id", a.ID)
				usrSet = true
			}
		case error:
			entry = entry.WithError(a)
			rbArgs = append(rbArgs, a)
		case map[string]interface{}:
			entry = entry.WithFields(a)
			rbArgs = append(rbArgs, a)
		default:
			rbArgs = append(rbArgs, a)
		}
	}
	if !usrSet {
		rollbar.ClearPerson()
	}
	return rbArgs, entry
}

func (l RollbarLogger) Debug(msg string, args ...interface{}) {
	rbArgs, entry := l.prepare(msg, args)
	rollbar.Debug(rbArgs...)
	entry.Debug(msg)
}

func (l RollbarLogger) Info(msg string, args ...interface{}) {
	rbArgs, entry := l.prepare(msg, args)
	rollbar.Info(rbArgs...)
	entry.Info(msg)
}

func (l RollbarLogger) Warn(msg string, args ...interface{}) {
	rbArgs, entry := l.prepare(msg, args)
	rollbar.Warning(rbArgs...)
	entry.Warn(msg)
}

func (l RollbarLogger) Error(msg string, args ...interface{}) {
	rbArgs, entry := l.prepare(msg, args)
	rollbar.Error(rbArgs...)
	entry.Error(msg)
}

func (l RollbarLogger) Fatal(msg string, args ...interface{}) {
	rbArgs, entry := l.prepare(msg, args)
	rollbar.Critical(rbArgs...)
	rollbar.Wait()
	entry.Fatal(msg)
}
