// Package log provides the logging facade used throughout synthfw.
package log

import (
	"log"
	"os"
)

// Logger describes a logger usable throughout synthfw.
type Logger interface {
	// Infof logs an informational progress message.
	Infof(format string, args ...interface{})

	// Warnf logs a warning message.
	Warnf(format string, args ...interface{})

	// Errorf logs an error message.
	Errorf(format string, args ...interface{})

	// Fatalf logs a fatal message and immediately exits the application
	// with os.Exit.
	Fatalf(format string, args ...interface{})
}

// DefaultLogger is the logger used by default everywhere within synthfw.
var DefaultLogger Logger

func init() {
	DefaultLogger = logWrapper{Logger: log.New(os.Stderr, "", log.LstdFlags)}
}

type logWrapper struct {
	Logger *log.Logger
	quiet  bool
}

// Infof implements Logger.
func (logger logWrapper) Infof(format string, args ...interface{}) {
	if logger.quiet {
		return
	}
	logger.Logger.Printf("[synthfw][INFO] "+format, args...)
}

// Warnf implements Logger.
func (logger logWrapper) Warnf(format string, args ...interface{}) {
	logger.Logger.Printf("[synthfw][WARN] "+format, args...)
}

// Errorf implements Logger.
func (logger logWrapper) Errorf(format string, args ...interface{}) {
	logger.Logger.Printf("[synthfw][ERROR] "+format, args...)
}

// Fatalf implements Logger.
func (logger logWrapper) Fatalf(format string, args ...interface{}) {
	logger.Logger.Fatalf("[synthfw][FATAL] "+format, args...)
}

// Infof logs an informational message to DefaultLogger.
func Infof(format string, args ...interface{}) {
	DefaultLogger.Infof(format, args...)
}

// Warnf logs a warning message to DefaultLogger.
func Warnf(format string, args ...interface{}) {
	DefaultLogger.Warnf(format, args...)
}

// Errorf logs an error message to DefaultLogger.
func Errorf(format string, args ...interface{}) {
	DefaultLogger.Errorf(format, args...)
}

// Fatalf logs a fatal message to DefaultLogger and exits.
func Fatalf(format string, args ...interface{}) {
	DefaultLogger.Fatalf(format, args...)
}

// SetVerbose switches DefaultLogger between a verbose and quiet wrapper.
// Quiet mode suppresses Infof output, matching the CLI's --verbose flag.
func SetVerbose(verbose bool) {
	DefaultLogger = logWrapper{
		Logger: log.New(os.Stderr, "", log.LstdFlags),
		quiet:  !verbose,
	}
}
