// Package logging builds the process logger.
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// New returns a logger at the given level. Production logs are JSON so they
// can be shipped as-is; everything else gets the text formatter.
func New(level string, production bool) *logrus.Logger {
	return NewWithOutput(os.Stderr, level, production)
}

// NewWithOutput is New writing to out.
func NewWithOutput(out io.Writer, level string, production bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(out)

	if production {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
		logger.WithField("level", level).Warn("unknown log level, using info")
	}
	logger.SetLevel(lvl)
	return logger
}

// Component returns an entry tagged with the component name.
func Component(logger *logrus.Logger, name string) *logrus.Entry {
	return logger.WithField("component", name)
}
