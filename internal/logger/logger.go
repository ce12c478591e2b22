package logger

import (
	"os"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

var base atomic.Pointer[zerolog.Logger]

func init() {
	l := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).
		With().Timestamp().Str("component", "appkit").Logger().
		Level(zerolog.InfoLevel)
	base.Store(&l)
}

// SetOutput replaces the underlying zerolog logger, keeping the current level.
func SetOutput(l zerolog.Logger) {
	l = l.Level(base.Load().GetLevel())
	base.Store(&l)
}

// SetLogLevel sets the current log level
func SetLogLevel(level LogLevel) {
	l := base.Load().Level(toZerolog(level))
	base.Store(&l)
}

// SetLogLevelFromString sets log level from string
func SetLogLevelFromString(level string) {
	switch strings.ToLower(level) {
	case "debug":
		SetLogLevel(DEBUG)
	case "info":
		SetLogLevel(INFO)
	case "warn", "warning":
		SetLogLevel(WARN)
	case "error":
		SetLogLevel(ERROR)
	default:
		SetLogLevel(INFO)
	}
}

// With returns a copy of the structured logger for field-rich events.
func With() *zerolog.Logger {
	l := *base.Load()
	return &l
}

// Debug logs debug messages
func Debug(format string, v ...interface{}) {
	base.Load().Debug().Msgf(format, v...)
}

// Info logs info messages
func Info(format string, v ...interface{}) {
	base.Load().Info().Msgf(format, v...)
}

// Warn logs warning messages
func Warn(format string, v ...interface{}) {
	base.Load().Warn().Msgf(format, v...)
}

// Error logs error messages
func Error(format string, v ...interface{}) {
	base.Load().Error().Msgf(format, v...)
}

func toZerolog(level LogLevel) zerolog.Level {
	switch level {
	case DEBUG:
		return zerolog.DebugLevel
	case WARN:
		return zerolog.WarnLevel
	case ERROR:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
