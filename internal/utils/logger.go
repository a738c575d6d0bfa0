package utils

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger is the process-wide structured logger. Every component writes JSON
// lines through it so log shippers can index fields such as auction_id and
// bid_id without parsing free text.
var Logger = logrus.New()

func init() {
	Logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05Z07:00",
	})
	Logger.SetOutput(os.Stdout)
	Logger.SetLevel(logrus.InfoLevel)
}

// SetLevel adjusts the log level from a textual value such as "debug" or
// "warn". Unknown values leave the current level untouched.
func SetLevel(level string) {
	if lvl, err := logrus.ParseLevel(strings.TrimSpace(level)); err == nil {
		Logger.SetLevel(lvl)
	}
}

// Component returns an entry pre-tagged with the component name.
func Component(name string) *logrus.Entry {
	return Logger.WithField("component", name)
}

func Info(message string, fields map[string]any) {
	Logger.WithFields(fields).Info(message)
}

func Warn(message string, fields map[string]any) {
	Logger.WithFields(fields).Warn(message)
}

func Error(message string, fields map[string]any) {
	Logger.WithFields(fields).Error(message)
}

func Fatal(message string, fields map[string]any) {
	Logger.WithFields(fields).Fatal(message)
}
