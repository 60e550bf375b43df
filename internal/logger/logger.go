// Package logger provides structured logging for OffSync.
//
// It wraps log/slog with a package-level API so callers don't need to
// thread a logger instance through every component. Output format (text
// with optional color, or JSON), level, and destination are configured
// once at startup via Init and can be adjusted at runtime with SetLevel.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

// Level represents log levels
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Config holds logger configuration
type Config struct {
	Level  string // DEBUG, INFO, WARN, ERROR
	Format string // text, json
	Output string // stdout, stderr, or a file path
}

var (
	currentLevel  atomic.Int32
	currentFormat atomic.Value // stores "text" or "json"

	mu       sync.RWMutex
	slogger  *slog.Logger
	output   io.Writer = os.Stdout
	useColor bool      = true
)

func init() {
	currentLevel.Store(int32(LevelInfo))
	currentFormat.Store("text")

	if f, ok := output.(*os.File); ok {
		useColor = isTerminal(f.Fd())
	}

	reconfigure()
}

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// toSlogLevel converts internal level to slog.Level
func toSlogLevel(l Level) slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// reconfigure rebuilds the slog handler based on current settings
func reconfigure() {
	mu.Lock()
	defer mu.Unlock()

	level := Level(currentLevel.Load())
	format, _ := currentFormat.Load().(string)

	levelVar := new(slog.LevelVar)
	levelVar.Set(toSlogLevel(level))

	opts := &slog.HandlerOptions{
		Level: levelVar,
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = NewColorTextHandler(output, opts, useColor)
	}

	slogger = slog.New(handler)
}

// Init initializes the logger with the given configuration.
// Output can be "stdout", "stderr", or a file path.
func Init(cfg Config) error {
	if cfg.Output != "" {
		mu.Lock()
		var newOutput io.Writer
		var newUseColor bool

		switch strings.ToLower(cfg.Output) {
		case "stdout":
			newOutput = os.Stdout
			newUseColor = isTerminal(os.Stdout.Fd())
		case "stderr":
			newOutput = os.Stderr
			newUseColor = isTerminal(os.Stderr.Fd())
		default:
			f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				mu.Unlock()
				return fmt.Errorf("failed to open log file %s: %w", cfg.Output, err)
			}
			newOutput = f
			newUseColor = false
		}

		output = newOutput
		useColor = newUseColor
		mu.Unlock()
	}

	if cfg.Format != "" {
		format := strings.ToLower(cfg.Format)
		if format != "text" && format != "json" {
			return fmt.Errorf("invalid log format %q (expected text or json)", cfg.Format)
		}
		currentFormat.Store(format)
	}

	if cfg.Level != "" {
		level, err := ParseLevel(cfg.Level)
		if err != nil {
			return err
		}
		currentLevel.Store(int32(level))
	}

	reconfigure()
	return nil
}

// ParseLevel converts a level name to a Level value.
func ParseLevel(s string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug, nil
	case "INFO":
		return LevelInfo, nil
	case "WARN", "WARNING":
		return LevelWarn, nil
	case "ERROR":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("invalid log level %q", s)
	}
}

// SetLevel changes the minimum level at runtime.
func SetLevel(l Level) {
	currentLevel.Store(int32(l))
	reconfigure()
}

// GetLevel returns the current minimum level.
func GetLevel() Level {
	return Level(currentLevel.Load())
}

// logger returns the current slog.Logger under a read lock.
func logger() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return slogger
}

// Debug logs at debug level with key-value pairs.
func Debug(msg string, args ...any) {
	logger().Debug(msg, args...)
}

// Info logs at info level with key-value pairs.
func Info(msg string, args ...any) {
	logger().Info(msg, args...)
}

// Warn logs at warn level with key-value pairs.
func Warn(msg string, args ...any) {
	logger().Warn(msg, args...)
}

// Error logs at error level with key-value pairs.
func Error(msg string, args ...any) {
	logger().Error(msg, args...)
}

// DebugCtx logs at debug level, attaching any fields carried by ctx.
func DebugCtx(ctx context.Context, msg string, args ...any) {
	logger().Debug(msg, appendContextArgs(ctx, args)...)
}

// InfoCtx logs at info level, attaching any fields carried by ctx.
func InfoCtx(ctx context.Context, msg string, args ...any) {
	logger().Info(msg, appendContextArgs(ctx, args)...)
}

// WarnCtx logs at warn level, attaching any fields carried by ctx.
func WarnCtx(ctx context.Context, msg string, args ...any) {
	logger().Warn(msg, appendContextArgs(ctx, args)...)
}

// ErrorCtx logs at error level, attaching any fields carried by ctx.
func ErrorCtx(ctx context.Context, msg string, args ...any) {
	logger().Error(msg, appendContextArgs(ctx, args)...)
}
