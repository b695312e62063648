// Package logging builds the process logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"taskboard-api/config"
)

const redacted = "[REDACTED]"

var sensitiveKeys = []string{"password", "secret", "token", "authorization"}

// New returns a configured logger and installs the same settings on the
// package-level logrus logger.
func New(cfg config.LogConfig) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	var out io.Writer = os.Stdout
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o750); err != nil {
			return nil, fmt.Errorf("log directory: %w", err)
		}
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		})
	}

	var formatter logrus.Formatter = &logrus.JSONFormatter{}
	if cfg.Format == "text" {
		formatter = &logrus.TextFormatter{FullTimestamp: true}
	}

	logger := logrus.New()
	configure(logger, level, formatter, out)
	configure(logrus.StandardLogger(), level, formatter, out)
	return logger, nil
}

func configure(l *logrus.Logger, level logrus.Level, f logrus.Formatter, out io.Writer) {
	l.SetLevel(level)
	l.SetFormatter(f)
	l.SetOutput(out)
	l.ReplaceHooks(logrus.LevelHooks{})
	l.AddHook(redactHook{})
}

// redactHook masks fields whose key looks like it carries credentials.
type redactHook struct{}

func (redactHook) Levels() []logrus.Level { return logrus.AllLevels }

func (redactHook) Fire(entry *logrus.Entry) error {
	for key := range entry.Data {
		if isSensitive(key) {
			entry.Data[key] = redacted
		}
	}
	return nil
}

func isSensitive(key string) bool {
	key = strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(key, s) {
			return true
		}
	}
	return false
}
