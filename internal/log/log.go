package log

import (
	"os"

	"github.com/sirupsen/logrus"
)

const (
	// LogDirEnvKey defines the environment variable used to specify the log directory
	LogDirEnvKey = "TEXTSHARD_LOG_DIR"
	// LogTimestampFormat defines the timestamp format in log files
	LogTimestampFormat = "2006-01-02T15:04:05.000Z"
	// LogFileName is the name of the log file written into the log directory
	LogFileName = "textshard.log"
)

var (
	defaultLogger = logrus.StandardLogger()

	// Loggers is convenient when you want to apply configuration to all
	// loggers
	Loggers = []*logrus.Logger{defaultLogger}
)

func init() {
	// Command output goes to stdout, so logs must not.
	for _, l := range Loggers {
		l.Out = os.Stderr
	}
}

// Configure sets the format and level on all loggers. An unknown level falls back to info.
func Configure(loggers []*logrus.Logger, format string, level string) {
	var formatter logrus.Formatter
	switch format {
	case "json":
		formatter = &logrus.JSONFormatter{TimestampFormat: LogTimestampFormat}
	case "text":
		formatter = &logrus.TextFormatter{TimestampFormat: LogTimestampFormat}
	case "":
		// Just stick with the default
	default:
		logrus.WithField("format", format).Fatal("invalid logger format")
	}

	logrusLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logrusLevel = logrus.InfoLevel
	}

	for _, l := range loggers {
		l.SetLevel(logrusLevel)

		if formatter != nil {
			l.Formatter = formatter
		}
	}
}

// Default is the default logrus logger
func Default() *logrus.Entry { return defaultLogger.WithField("pid", os.Getpid()) }
