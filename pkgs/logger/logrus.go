package logger

import (
	"os"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"github.com/sirupsen/logrus"
)

// logrusLogger adapts a logrus.Entry to the Logger interface. Every
// call to Module returns a new logger scoped with a "module" field,
// mirroring the sub-logger-per-component pattern used across the engine.
type logrusLogger struct {
	entry *logrus.Entry
}

// NewLogrus creates a Logger that writes structured fields to stderr.
func NewLogrus() Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return &logrusLogger{entry: logrus.NewEntry(l)}
}

// NewLogrusWithFileRotation creates a Logger that writes to logPath,
// rotating the file daily and keeping a week of history.
func NewLogrusWithFileRotation(logPath string, level logrus.Level) Logger {
	l := logrus.New()
	l.SetLevel(level)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	writer, err := rotatelogs.New(
		logPath+".%Y%m%d",
		rotatelogs.WithLinkName(logPath),
		rotatelogs.WithMaxAge(7*24*3600*1e9),
		rotatelogs.WithRotationTime(24*3600*1e9),
	)
	if err != nil {
		l.SetOutput(os.Stderr)
	} else {
		l.SetOutput(writer)
	}

	return &logrusLogger{entry: logrus.NewEntry(l)}
}

func (g *logrusLogger) SetToDebug() { g.entry.Logger.SetLevel(logrus.DebugLevel) }
func (g *logrusLogger) SetToInfo()  { g.entry.Logger.SetLevel(logrus.InfoLevel) }
func (g *logrusLogger) SetToError() { g.entry.Logger.SetLevel(logrus.ErrorLevel) }

// Module returns a child logger tagged with the given namespace.
func (g *logrusLogger) Module(ns string) Logger {
	return &logrusLogger{entry: g.entry.WithField("module", ns)}
}

func toFields(keyValues []interface{}) logrus.Fields {
	fields := make(logrus.Fields, len(keyValues)/2)
	for i := 0; i+1 < len(keyValues); i += 2 {
		key, ok := keyValues[i].(string)
		if !ok {
			continue
		}
		fields[key] = keyValues[i+1]
	}
	return fields
}

func (g *logrusLogger) Debug(msg string, keyValues ...interface{}) {
	g.entry.WithFields(toFields(keyValues)).Debug(msg)
}

func (g *logrusLogger) Info(msg string, keyValues ...interface{}) {
	g.entry.WithFields(toFields(keyValues)).Info(msg)
}

func (g *logrusLogger) Error(msg string, keyValues ...interface{}) {
	g.entry.WithFields(toFields(keyValues)).Error(msg)
}

func (g *logrusLogger) Warn(msg string, keyValues ...interface{}) {
	g.entry.WithFields(toFields(keyValues)).Warn(msg)
}

func (g *logrusLogger) Fatal(msg string, keyValues ...interface{}) {
	g.entry.WithFields(toFields(keyValues)).Fatal(msg)
}
