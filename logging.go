package vaultkv

import "github.com/sirupsen/logrus"

// defaultLogger is used when Options.Logger is nil. It discards output by
// default so embedding callers are not forced to configure logging just to
// open a database.
func defaultLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}
