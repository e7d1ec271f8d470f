// Package logging holds the process-wide logger.
package logging

import (
	"os"

	clog "github.com/charmbracelet/log"
	"github.com/pkg/errors"
)

// L is the package-level logger. Debug output is off unless SetLevel enables
// it.
var L = clog.NewWithOptions(os.Stderr, clog.Options{
	Prefix: "delern",
	Level:  clog.InfoLevel,
})

// SetLevel parses and applies a level name such as "debug" or "warn".
func SetLevel(level string) error {
	lvl, err := clog.ParseLevel(level)
	if err != nil {
		return errors.Wrapf(err, "log level %q", level)
	}
	L.SetLevel(lvl)
	return nil
}

// Debugf logs a debug-level formatted message.
func Debugf(format string, v ...interface{}) {
	L.Debugf(format, v...)
}

// Infof logs an info-level formatted message.
func Infof(format string, v ...interface{}) {
	L.Infof(format, v...)
}

// Warnf logs a warning-level formatted message.
func Warnf(format string, v ...interface{}) {
	L.Warnf(format, v...)
}

// Errorf logs an error-level formatted message.
func Errorf(format string, v ...interface{}) {
	L.Errorf(format, v...)
}
