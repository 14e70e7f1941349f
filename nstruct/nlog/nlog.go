// Package nlog is nstruct's ambient logging setup: a thin, opinionated
// wrapper around op/go-logging configured the way the rest of the
// module's authors set it up in their own tools, so a caller embedding
// nstruct gets the same stderr-with-level-prefix behavior for free.
package nlog

import (
	"os"

	"github.com/op/go-logging"
)

var log = logging.MustGetLogger("nstruct")

// go-logging's default backend prints every level, DEBUG included; raise
// this module's level so the library stays quiet until SetupLogging.
func init() { logging.SetLevel(logging.WARNING, "nstruct") }

var stderrFormat = logging.MustStringFormatter(
	`%{color}%{time:15:04:05.000} %{level:.4s} nstruct ▶ %{message}%{color:reset}`,
)

// SetupLogging wires a leveled stderr backend under prefix, honoring the
// NSTRUCT_LOG_LEVEL environment variable as an override of level, and
// returns the module-wide logger. Call it once, early, from a program
// embedding nstruct; the library itself only ever logs at DEBUG (parse
// and pack tracing), so a caller that never calls SetupLogging sees
// nothing by default.
func SetupLogging(prefix string, level logging.Level) *logging.Logger {
	backend := logging.NewLogBackend(os.Stderr, prefix, 0)
	logging.SetFormatter(stderrFormat)
	leveled := logging.AddModuleLevel(backend)

	switch os.Getenv("NSTRUCT_LOG_LEVEL") {
	case "CRITICAL":
		leveled.SetLevel(logging.CRITICAL, "")
	case "ERROR":
		leveled.SetLevel(logging.ERROR, "")
	case "WARNING":
		leveled.SetLevel(logging.WARNING, "")
	case "NOTICE":
		leveled.SetLevel(logging.NOTICE, "")
	case "INFO":
		leveled.SetLevel(logging.INFO, "")
	case "DEBUG":
		leveled.SetLevel(logging.DEBUG, "")
	default:
		leveled.SetLevel(level, "")
	}

	logging.SetBackend(leveled)
	return log
}

// Trace logs a DEBUG-level parse/pack trace line. The parse and pack
// engines call this at struct level (start of a struct parse, each
// derived-type dispatch, each ToBytes), not per field; it is a no-op
// cost-wise unless DEBUG is enabled, since go-logging checks the level
// before formatting arguments.
func Trace(format string, args ...interface{}) {
	log.Debugf(format, args...)
}
