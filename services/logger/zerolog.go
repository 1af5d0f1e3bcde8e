package logsvc

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/hamzaf287/focus-app/core"
)

// ZeroLogger writes structured log entries with zerolog only.
type ZeroLogger struct {
	zl zerolog.Logger
}

var _ core.Logger = (*ZeroLogger)(nil)

// NewZeroLogger logs to w; human readable console output when pretty is set.
func NewZeroLogger(w io.Writer, conf *core.Config, pretty bool) *ZeroLogger {
	return &ZeroLogger{zl: newZerolog(w, conf, pretty)}
}

// NewNopLogger discards everything. Used by tests.
func NewNopLogger() *ZeroLogger {
	return &ZeroLogger{zl: zerolog.Nop()}
}

func newZerolog(w io.Writer, conf *core.Config, pretty bool) zerolog.Logger {
	if w == nil {
		w = os.Stdout
	}
	if pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	level := zerolog.InfoLevel
	if conf.Debug {
		level = zerolog.DebugLevel
	}
	return zerolog.New(w).Level(level).With().
		Timestamp().
		Str("app", conf.AppName).
		Str("env", conf.Env).
		Str("build", conf.Build).
		Logger()
}

// event attaches args to e: errors, extra data (map[string]interface{}) and the Person.
func event(e *zerolog.Event, msg string, args []interface{}) {
	for _, arg := range args {
		switch v := arg.(type) {
		case error:
			e.AnErr("error", v)
		case map[string]interface{}:
			e.Fields(v)
		case core.Person:
			e.Dict("person", zerolog.Dict().Str("id", v.ID).Str("username", v.Username).Str("email", v.Email))
		case nil:
		default:
			e.Interface("extra", v)
		}
	}
	e.Msg(msg)
}

func (l ZeroLogger) Debug(msg string, args ...interface{}) { event(l.zl.Debug(), msg, args) }
func (l ZeroLogger) Info(msg string, args ...interface{})  { event(l.zl.Info(), msg, args) }
func (l ZeroLogger) Warn(msg string, args ...interface{})  { event(l.zl.Warn(), msg, args) }
func (l ZeroLogger) Error(msg string, args ...interface{}) { event(l.zl.Error(), msg, args) }
func (l ZeroLogger) Fatal(msg string, args ...interface{}) { event(l.zl.Fatal(), msg, args) }
