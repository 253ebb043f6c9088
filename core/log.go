package core

import (
	"os"

	"github.com/sirupsen/logrus"
)

// log is the package-wide structured logger. Every subsystem logs through
// it with logrus.Fields rather than ad hoc fmt.Printf, matching the
// convention set by the original virtual machine and ledger code.
var log = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.Out = os.Stderr
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if lvl, err := logrus.ParseLevel(os.Getenv("ENGINE_LOG_LEVEL")); err == nil {
		l.SetLevel(lvl)
	} else {
		l.SetLevel(logrus.InfoLevel)
	}
	return l
}

// UseJSONLogging switches the package logger to JSON output, useful when
// the engine runs embedded in a larger process that aggregates logs.
func UseJSONLogging() {
	log.SetFormatter(&logrus.JSONFormatter{})
}
