package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Rotation defaults, lumberjack semantics.
const (
	DefaultMaxSizeMB  = 10
	DefaultMaxBackups = 3
	DefaultMaxAgeDays = 7
)

// Config describes where captured child stdout/stderr goes. When Dir is set
// files are Dir/<name>.stdout.log and Dir/<name>.stderr.log.
type Config struct {
	Dir        string `mapstructure:"dir"`
	Level      string `mapstructure:"level"` // supervisor log level: debug, info, warn, error
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// Writers returns rotating io.Writers for a service's stdout and stderr.
// With no Dir configured both are nil and the caller discards child output.
func (c Config) Writers(name string) (io.Writer, io.Writer) {
	if c.Dir == "" {
		return nil, nil
	}
	_ = os.MkdirAll(c.Dir, 0o750)
	mk := func(suffix string) io.Writer {
		return &lj.Logger{
			Filename:   filepath.Join(c.Dir, fmt.Sprintf("%s.%s.log", name, suffix)),
			MaxSize:    valOr(c.MaxSizeMB, DefaultMaxSizeMB),
			MaxBackups: valOr(c.MaxBackups, DefaultMaxBackups),
			MaxAge:     valOr(c.MaxAgeDays, DefaultMaxAgeDays),
			Compress:   c.Compress,
		}
	}
	return mk("stdout"), mk("stderr")
}

// Setup installs the process-wide slog default with colorized levels.
func Setup(c Config) {
	h := NewColorTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(c.Level)}, true)
	slog.SetDefault(slog.New(h))
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

func valOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
