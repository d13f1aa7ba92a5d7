/*
Package logx wraps zerolog behind the small logging surface the rest of the
server uses: one process-global logger plus leveled helpers that take a
message and a flat key-value field list.
*/
package logx

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// serviceName tags every log line so aggregated logs from several services
// stay attributable.
const serviceName = "pairchat"

// InitGlobalLogger configures the process-global logger. Development gets a
// colored console writer at debug level; everything else gets JSON at info.
// Unix timestamps, caller info and the service tag are always attached.
func InitGlobalLogger(devMode bool) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	base := zerolog.New(os.Stdout).With().
		Timestamp().
		Str("service", serviceName).
		Logger()

	if devMode {
		base = base.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			NoColor:    false,
			TimeFormat: time.RFC3339,
		})
		base = base.Level(zerolog.DebugLevel)
	} else {
		base = base.Level(zerolog.InfoLevel)
	}

	log.Logger = base.With().Caller().Logger()
}

// Logger returns the process-global zerolog.Logger. Components derive their
// own child loggers from it with With().
func Logger() *zerolog.Logger {
	return &log.Logger
}

// withFields attaches a key-value field list to the event. An unbalanced list
// is dropped with a warning instead of letting zerolog panic.
func withFields(e *zerolog.Event, level string, fields []any) *zerolog.Event {
	if len(fields)%2 != 0 {
		Logger().Warn().
			Str("log_level", level).
			Int("fields_count", len(fields)).
			Msg("Unbalanced key-value field list, fields dropped")
		return e
	}
	return e.Fields(fields)
}

// Info records a message at the Info level with optional key-value fields.
func Info(msg string, fields ...any) {
	withFields(Logger().Info(), "info", fields).CallerSkipFrame(1).Msg(msg)
}

// Warn records a message at the Warn level with optional key-value fields.
func Warn(msg string, fields ...any) {
	withFields(Logger().Warn(), "warn", fields).CallerSkipFrame(1).Msg(msg)
}

// Error records an error with a message at the Error level.
func Error(err error, msg string, fields ...any) {
	withFields(Logger().Error().Err(err), "error", fields).CallerSkipFrame(1).Msg(msg)
}

// Fatal records an error at the Fatal level and terminates the process.
func Fatal(err error, msg string, fields ...any) {
	withFields(Logger().Fatal().Err(err), "fatal", fields).CallerSkipFrame(1).Msg(msg)
}
