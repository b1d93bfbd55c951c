// Package log provides a leveled, key-value logger for the whole module,
// built on zerolog. It exposes a package-level logger initialized with
// Init; the *w variants take alternating key/value pairs, the *f
// variants take a format string.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var logger zerolog.Logger

func init() {
	// Default to a disabled logger so library users who never call Init
	// do not get surprise output.
	logger = zerolog.New(io.Discard)
}

// Init initializes the package-level logger. Level is one of "debug",
// "info", "warn" or "error". Output is "stdout", "stderr" or a file
// path.
func Init(level, output string) {
	var out io.Writer
	switch output {
	case "stdout":
		out = os.Stdout
	case "stderr", "":
		out = os.Stderr
	default:
		f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			panic(fmt.Sprintf("cannot open log output %q: %v", output, err))
		}
		out = f
	}
	if w, ok := out.(*os.File); ok && isTerminal(w) {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	}
	logger = zerolog.New(out).With().Timestamp().Logger()
	zerolog.TimeFieldFormat = time.RFC3339Nano

	switch strings.ToLower(level) {
	case "debug":
		logger = logger.Level(zerolog.DebugLevel)
	case "info":
		logger = logger.Level(zerolog.InfoLevel)
	case "warn", "warning":
		logger = logger.Level(zerolog.WarnLevel)
	case "error":
		logger = logger.Level(zerolog.ErrorLevel)
	default:
		panic(fmt.Sprintf("invalid log level %q", level))
	}
}

func isTerminal(f *os.File) bool {
	stat, err := f.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// Logger returns the package-level zerolog logger.
func Logger() zerolog.Logger { return logger }

func kvFields(ev *zerolog.Event, keyvalues ...any) *zerolog.Event {
	for i := 0; i+1 < len(keyvalues); i += 2 {
		key, ok := keyvalues[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", keyvalues[i])
		}
		ev = ev.Interface(key, keyvalues[i+1])
	}
	return ev
}

// Debugw logs a message at debug level with alternating key/value pairs.
func Debugw(msg string, keyvalues ...any) {
	kvFields(logger.Debug(), keyvalues...).Msg(msg)
}

// Infow logs a message at info level with alternating key/value pairs.
func Infow(msg string, keyvalues ...any) {
	kvFields(logger.Info(), keyvalues...).Msg(msg)
}

// Warnw logs a message at warn level with alternating key/value pairs.
func Warnw(msg string, keyvalues ...any) {
	kvFields(logger.Warn(), keyvalues...).Msg(msg)
}

// Errorw logs an error with a message at error level.
func Errorw(err error, msg string) {
	logger.Error().Err(err).Msg(msg)
}

// Debugf logs a formatted message at debug level.
func Debugf(format string, args ...any) { logger.Debug().Msgf(format, args...) }

// Infof logs a formatted message at info level.
func Infof(format string, args ...any) { logger.Info().Msgf(format, args...) }

// Warnf logs a formatted message at warn level.
func Warnf(format string, args ...any) { logger.Warn().Msgf(format, args...) }

// Errorf logs a formatted message at error level.
func Errorf(format string, args ...any) { logger.Error().Msgf(format, args...) }

// Error logs an error at error level.
func Error(err error) { logger.Error().Err(err).Send() }
