package ngp

import "github.com/sirupsen/logrus"

// logger returns l as a logrus.FieldLogger, or logrus.StandardLogger()
// when l is nil. Nothing in the package calls it; New takes its default
// from Config.logger, which applies the same rule.
func logger(l *logrus.Logger) logrus.FieldLogger {
	if l == nil {
		return logrus.StandardLogger()
	}
	return l
}
