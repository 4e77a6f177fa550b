// Package evselog provides the single logrus.Logger shared by every
// peripheral package, mirroring how ocpp_server threads one *logrus.Logger
// through config/mqtt/ocpp/charging instead of each package building its own.
package evselog

import "github.com/sirupsen/logrus"

// New builds the process-wide logger at the given level ("debug", "info",
// "warn", "error"; an unrecognised level falls back to info).
func New(level string) *logrus.Logger {
	logger := logrus.New()

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)

	return logger
}

// For returns a component-scoped entry, e.g. evselog.For(logger, "host").
func For(logger *logrus.Logger, component string) *logrus.Entry {
	return logger.WithField("component", component)
}
