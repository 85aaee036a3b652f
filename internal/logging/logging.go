// Package logging configures structured JSON logging with daily-rotated
// log files.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config contains logging configuration.
type Config struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string
	// Dir is the log directory. Empty disables file logging.
	Dir string
	// MaxFiles is the number of rotated daily files to keep (default: 14).
	MaxFiles int
	// WriteToStderr also mirrors log output to stderr (default: true).
	WriteToStderr bool
}

// DefaultConfig returns sensible defaults for daemon logging.
func DefaultConfig(dir string) Config {
	return Config{
		Level:         "info",
		Dir:           dir,
		MaxFiles:      14,
		WriteToStderr: true,
	}
}

// Setup initializes file-based logging and returns the configured logger
// plus a cleanup function that flushes and closes the log file.
func Setup(cfg Config) (*slog.Logger, func(), error) {
	var output io.Writer = os.Stderr
	cleanup := func() {}

	if cfg.Dir != "" {
		writer, err := NewDailyWriter(cfg.Dir, "codesearchd", cfg.MaxFiles)
		if err != nil {
			return nil, nil, err
		}
		output = writer
		if cfg.WriteToStderr {
			output = io.MultiWriter(writer, os.Stderr)
		}
		cleanup = func() {
			_ = writer.Sync()
			_ = writer.Close()
		}
	}

	handler := slog.NewJSONHandler(output, &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	})
	return slog.New(handler), cleanup, nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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
