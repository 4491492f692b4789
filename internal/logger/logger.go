package logger

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Setup returns the process logger writing to stdout.
//   - level: trace, debug, info, warn, error, fatal or panic; unknown means info
//   - format: "pretty" for console output, anything else for JSON lines
func Setup(level, format string) zerolog.Logger {
	return SetupWriter(os.Stdout, level, format)
}

// SetupWriter is Setup with an explicit destination.
func SetupWriter(out io.Writer, level, format string) zerolog.Logger {
	if format == "pretty" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	return zerolog.New(out).
		With().
		Timestamp().
		Caller().
		Logger()
}

// SetupFile appends JSON log lines to path, or falls back to SetupWriter on
// fallback when path is empty. The exam taker uses it to keep logs off the
// exam screen. The returned func closes the file.
func SetupFile(path string, fallback io.Writer, level, format string) (zerolog.Logger, func() error, error) {
	if path == "" {
		return SetupWriter(fallback, level, format), func() error { return nil }, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("open log file: %w", err)
	}
	// Files get JSON regardless of format; colour codes do not belong there.
	return SetupWriter(f, level, "json"), f.Close, nil
}
