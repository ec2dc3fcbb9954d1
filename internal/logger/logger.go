// Package logger provides the component-tagged structured logger used by
// the gateway daemon and the CLI. It wraps log/slog with a rotating file
// writer so a long-lived gateway process doesn't grow an unbounded log
// file, while keeping the teacher's simple global-level API (SetLevel,
// IsVerbose, IsDebug) for the CLI commands that only print to stderr.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Level represents the logging level.
type Level int

const (
	LevelOff Level = iota
	LevelInfo
	LevelDebug
)

var (
	mu           sync.RWMutex
	currentLevel = LevelOff
	startTime    = time.Now()
	handler      slog.Handler = slog.NewTextHandler(io.Discard, nil)
	rotator      *lumberjack.Logger
)

// Config configures the rotating file sink. Format is "json" or "text".
type Config struct {
	LogDir     string
	Level      string
	Format     string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

func levelFromString(s string) slog.Level {
	switch s {
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

// Init wires the global handler to a lumberjack-backed rotating file
// (falling back to stderr if LogDir is empty), so every ForComponent
// logger created before or after this call shares the same destination.
func Init(cfg Config) error {
	mu.Lock()
	defer mu.Unlock()

	var w io.Writer = os.Stderr
	if cfg.LogDir != "" {
		if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
			return fmt.Errorf("ensure log dir: %w", err)
		}
		maxSize := cfg.MaxSizeMB
		if maxSize <= 0 {
			maxSize = 20
		}
		maxBackups := cfg.MaxBackups
		if maxBackups <= 0 {
			maxBackups = 5
		}
		maxAge := cfg.MaxAgeDays
		if maxAge <= 0 {
			maxAge = 28
		}
		rotator = &lumberjack.Logger{
			Filename:   filepath.Join(cfg.LogDir, "mantra.log"),
			MaxSize:    maxSize,
			MaxBackups: maxBackups,
			MaxAge:     maxAge,
			Compress:   cfg.Compress,
		}
		w = io.MultiWriter(rotator, os.Stderr)
	}

	opts := &slog.HandlerOptions{Level: levelFromString(cfg.Level)}
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	switch cfg.Level {
	case "debug":
		currentLevel = LevelDebug
	case "off", "none":
		currentLevel = LevelOff
	default:
		currentLevel = LevelInfo
	}
	startTime = time.Now()
	return nil
}

// Shutdown flushes and closes the rotating file sink, if one is open.
func Shutdown() error {
	mu.Lock()
	defer mu.Unlock()
	if rotator != nil {
		return rotator.Close()
	}
	return nil
}

// dynamicHandler delegates to the live global handler at Handle-time
// rather than the handler that was active when ForComponent constructed
// it — without this, a component logger created before Init() would keep
// logging to the discard handler forever.
type dynamicHandler struct {
	attrs []slog.Attr
	group string
}

func current() slog.Handler {
	mu.RLock()
	defer mu.RUnlock()
	return handler
}

func (h dynamicHandler) apply(base slog.Handler) slog.Handler {
	if len(h.attrs) > 0 {
		base = base.WithAttrs(h.attrs)
	}
	if h.group != "" {
		base = base.WithGroup(h.group)
	}
	return base
}

func (h dynamicHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.apply(current()).Enabled(ctx, level)
}

func (h dynamicHandler) Handle(ctx context.Context, record slog.Record) error {
	return h.apply(current()).Handle(ctx, record)
}

func (h dynamicHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := dynamicHandler{attrs: append(append([]slog.Attr{}, h.attrs...), attrs...), group: h.group}
	return next
}

func (h dynamicHandler) WithGroup(name string) slog.Handler {
	next := dynamicHandler{attrs: h.attrs, group: name}
	return next
}

// ForComponent returns a *slog.Logger tagged with a "component" attribute
// that always writes through whatever handler Init last installed.
func ForComponent(name string) *slog.Logger {
	return slog.New(dynamicHandler{}.WithAttrs([]slog.Attr{slog.String("component", name)}))
}

// Logger returns the dynamic global *slog.Logger (no component tag).
func Logger() *slog.Logger {
	return slog.New(dynamicHandler{})
}

// SetLevel sets the global logging level used by the stderr-only CLI helpers below.
func SetLevel(level Level) {
	mu.Lock()
	defer mu.Unlock()
	currentLevel = level
	startTime = time.Now()
}

// GetLevel returns the current logging level.
func GetLevel() Level {
	mu.RLock()
	defer mu.RUnlock()
	return currentLevel
}

// IsVerbose returns true if verbose logging is enabled.
func IsVerbose() bool {
	return GetLevel() >= LevelInfo
}

// IsDebug returns true if debug logging is enabled.
func IsDebug() bool {
	return GetLevel() >= LevelDebug
}

// Info logs an informational message to stderr (CLI helper; long-running
// daemon code should prefer ForComponent(...).Info instead).
func Info(format string, args ...interface{}) {
	if GetLevel() >= LevelInfo {
		elapsed := time.Since(startTime).Round(time.Millisecond)
		fmt.Fprintf(os.Stderr, "[%s] "+format+"\n", append([]interface{}{elapsed}, args...)...)
	}
}

// Debug logs a debug message to stderr.
func Debug(format string, args ...interface{}) {
	if GetLevel() >= LevelDebug {
		elapsed := time.Since(startTime).Round(time.Millisecond)
		fmt.Fprintf(os.Stderr, "[%s] [DEBUG] "+format+"\n", append([]interface{}{elapsed}, args...)...)
	}
}

// Error logs an error message to stderr.
func Error(format string, args ...interface{}) {
	if GetLevel() >= LevelInfo {
		elapsed := time.Since(startTime).Round(time.Millisecond)
		fmt.Fprintf(os.Stderr, "[%s] [ERROR] "+format+"\n", append([]interface{}{elapsed}, args...)...)
	}
}
