// Package logger holds the process-wide structured logger.
//
// Output goes to stderr because stdout carries the MCP protocol when the
// binary runs as a tool server.
package logger

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

var Logger *logrus.Logger

func init() {
	Logger = logrus.New()
	Configure(os.Stderr, os.Getenv("IJOQ_LOG_LEVEL"), os.Getenv("IJOQ_LOG_FORMAT"))
}

// Configure resets the output, level and formatter of Logger. Unknown levels
// fall back to info; format "json" selects the JSON formatter.
func Configure(out io.Writer, level, format string) {
	Logger.SetOutput(out)

	switch level {
	case "debug":
		Logger.SetLevel(logrus.DebugLevel)
	case "warn":
		Logger.SetLevel(logrus.WarnLevel)
	case "error":
		Logger.SetLevel(logrus.ErrorLevel)
	default:
		Logger.SetLevel(logrus.InfoLevel)
	}

	if format == "json" {
		Logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})
		return
	}
	Logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05",
	})
}

// WithFields creates a new entry with the given fields
func WithFields(fields logrus.Fields) *logrus.Entry {
	return Logger.WithFields(fields)
}

// WithField creates a new entry with a single field
func WithField(key string, value interface{}) *logrus.Entry {
	return Logger.WithField(key, value)
}

// WithError creates a new entry with an error field
func WithError(err error) *logrus.Entry {
	return Logger.WithError(err)
}

// Info logs an info message
func Info(msg string) {
	Logger.Info(msg)
}

// Warn logs a warning message
func Warn(msg string) {
	Logger.Warn(msg)
}

// Debug logs a debug message
func Debug(msg string) {
	Logger.Debug(msg)
}
