package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// Config selects the level and output format of the application logger.
type Config struct {
	// Level is one of debug, info, warn or error, case-insensitive.
	Level string
	// Format is json, text or auto. Auto writes text to a terminal and JSON
	// everywhere else.
	Format string
}

// Setup initializes the application's logger from cfg, writing to stdout,
// and sets it as the default logger.
func Setup(cfg Config) (*slog.Logger, error) {
	return SetupWithWriter(cfg, os.Stdout)
}

// SetupWithWriter is Setup with an explicit destination.
func SetupWithWriter(cfg Config, out io.Writer) (*slog.Logger, error) {
	level, ok := ParseLevel(cfg.Level)
	if !ok {
		// Create a temporary logger to output the warning
		tmpLogger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		tmpLogger.Warn("invalid log level configured, using default level",
			"configured_level", cfg.Level,
			"default_level", "info")
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if useText(cfg.Format, out) {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	logger := slog.New(handler)

	// Set this logger as the default for the application
	slog.SetDefault(logger)

	return logger, nil
}

// ParseLevel converts a level name into a slog.Level. Unknown names map to
// info and report false.
func ParseLevel(name string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

func useText(format string, out io.Writer) bool {
	switch strings.ToLower(format) {
	case "text":
		return true
	case "json":
		return false
	}
	f, ok := out.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
