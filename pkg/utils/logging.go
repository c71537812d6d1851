package utils

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// LogConfig stores logging configuration.
type LogConfig struct {
	Level      string `json:"level" yaml:"level"`
	Format     string `json:"format" yaml:"format"`
	OutputPath string `json:"output_path" yaml:"output_path"`
}

// DefaultLogConfig returns the default logging configuration.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:  "info",
		Format: "text",
	}
}

// ConfigureLogger builds the process logger from configuration. A typo'd
// level must never silence the daemon, so unknown levels fall back to info
// with a warning rather than an error. A configured output path tees to
// stdout and the file; an unopenable file degrades to stdout only.
func ConfigureLogger(config LogConfig) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(formatterFor(config.Format))

	level, err := logrus.ParseLevel(config.Level)
	if err != nil {
		level = logrus.InfoLevel
		logger.Warnf("Unknown log level %q, using info", config.Level)
	}
	logger.SetLevel(level)

	if config.OutputPath != "" {
		file, err := os.OpenFile(config.OutputPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			logger.Warnf("Cannot open log file %s, logging to stdout only: %v", config.OutputPath, err)
		} else {
			logger.SetOutput(io.MultiWriter(os.Stdout, file))
		}
	}

	return logger
}

func formatterFor(format string) logrus.Formatter {
	if format == "json" {
		return &logrus.JSONFormatter{}
	}
	return &logrus.TextFormatter{FullTimestamp: true}
}
