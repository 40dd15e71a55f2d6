// Package logger holds the process-wide structured logger.  Components take
// their own *slog.Logger derived from [Base]; the printf-style helpers are for
// the command and other top-level code.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
)

// mu protects the settings below.
var mu sync.RWMutex

var (
	level  = slog.LevelInfo
	format = slogutil.FormatText
	output = io.Writer(os.Stderr)
	base   = newBase()
)

// newBase builds the base logger from the current settings.  mu must be held.
func newBase() (l *slog.Logger) {
	return slogutil.New(&slogutil.Config{
		Output:       output,
		Format:       format,
		AddTimestamp: true,
		Level:        level,
	})
}

// ParseLevel converts a level name into a [slog.Level].  Unknown names give
// [slog.LevelInfo].
func ParseLevel(levelStr string) (lvl slog.Level) {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "fatal":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetLevel sets the global log level
func SetLevel(levelStr string) {
	mu.Lock()
	defer mu.Unlock()

	level = ParseLevel(levelStr)
	base = newBase()
}

// SetFormat sets the global log format: "text", "json", "jsonhybrid", or
// "default".  Invalid formats are reported and leave the format unchanged.
func SetFormat(formatStr string) (err error) {
	f, err := slogutil.NewFormat(formatStr)
	if err != nil {
		return fmt.Errorf("log format: %w", err)
	}

	mu.Lock()
	defer mu.Unlock()

	format = f
	base = newBase()

	return nil
}

// SetOutput sets the output destination for the logger
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()

	output = w
	base = newBase()
}

// Base returns the current base logger.
func Base() (l *slog.Logger) {
	mu.RLock()
	defer mu.RUnlock()

	return base
}

// For returns a logger with the given prefix, as used by components.
func For(prefix string) (l *slog.Logger) {
	return Base().With(slogutil.KeyPrefix, prefix)
}

// Debugf logs a formatted message at debug level
func Debugf(format string, v ...any) {
	logf(slog.LevelDebug, format, v...)
}

// Infof logs a formatted message at info level
func Infof(format string, v ...any) {
	logf(slog.LevelInfo, format, v...)
}

// Warnf logs a formatted message at warn level
func Warnf(format string, v ...any) {
	logf(slog.LevelWarn, format, v...)
}

// Errorf logs a formatted message at error level
func Errorf(format string, v ...any) {
	logf(slog.LevelError, format, v...)
}

// Fatalf logs a formatted message at error level and exits
func Fatalf(format string, v ...any) {
	logf(slog.LevelError, format, v...)
	os.Exit(1)
}

func logf(lvl slog.Level, format string, v ...any) {
	l := Base()
	ctx := context.Background()
	if !l.Enabled(ctx, lvl) {
		return
	}

	l.Log(ctx, lvl, fmt.Sprintf(format, v...))
}
