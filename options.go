package vaultkv

import "github.com/sirupsen/logrus"

// Options configures Open. The zero value is valid: a database opened with
// no logger logs nothing.
type Options struct {
	// Logger receives lifecycle events (recovery summary, flush summary,
	// incomplete-flush sweep warnings). If nil, a silent logger is used.
	Logger *logrus.Logger
}

func (o Options) logger() *logrus.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return defaultLogger()
}
