package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default logging configuration constants
const (
	DefaultMaxSizeMB  = 10 // MB
	DefaultMaxBackups = 3  // number of backup files
	DefaultMaxAgeDays = 7  // days
)

// Config describes the service log destination. With an empty Path the
// logger writes text to stderr; with a Path it writes JSON to a rotating
// file. Rotation parameters follow lumberjack semantics.
type Config struct {
	Path       string `toml:"path" mapstructure:"path"`
	Level      string `toml:"level" mapstructure:"level"` // debug, info, warn, error
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `toml:"compress" mapstructure:"compress"`
}

// New builds a slog.Logger from the config. The returned closer is non-nil
// only when a rotating file writer was opened.
func (c Config) New() (*slog.Logger, io.Closer) {
	opts := &slog.HandlerOptions{Level: parseLevel(c.Level)}
	if c.Path == "" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	}
	w := &lj.Logger{
		Filename:   c.Path,
		MaxSize:    valOr(c.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(c.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(c.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   c.Compress,
	}
	return slog.New(slog.NewJSONHandler(w, opts)), w
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
