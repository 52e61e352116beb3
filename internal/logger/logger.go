// Package logger provides process-wide logging for the evbench CLI.
// Debug, Info and Section messages are printed only in verbose mode
// (--verbose). Warnings and errors are always printed.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Format selects how log lines are rendered.
type Format string

// Supported formats.
const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

var (
	mu      sync.RWMutex
	verbose bool
	output  io.Writer = os.Stderr
	format            = FormatText
	jsonLog           = newJSONLogger(os.Stderr)
)

func newJSONLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// SetVerbose enables or disables verbose logging.
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = v
}

// IsVerbose returns true if verbose mode is enabled.
func IsVerbose() bool {
	mu.RLock()
	defer mu.RUnlock()
	return verbose
}

// SetOutput sets the output writer for logs.
// Defaults to os.Stderr. Useful for testing.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
	jsonLog = newJSONLogger(w)
}

// SetFormat selects text or JSON output.
func SetFormat(f Format) error {
	switch Format(strings.ToLower(string(f))) {
	case FormatText:
		f = FormatText
	case FormatJSON:
		f = FormatJSON
	default:
		return fmt.Errorf("unknown log format %q (want text or json)", f)
	}
	mu.Lock()
	defer mu.Unlock()
	format = f
	return nil
}

// Debug prints a message if verbose mode is enabled.
func Debug(msg string, args ...any) {
	emit(slog.LevelDebug, "[DEBUG] ", false, msg, args...)
}

// Info prints an informational message if verbose mode is enabled.
func Info(msg string, args ...any) {
	emit(slog.LevelInfo, "[INFO] ", false, msg, args...)
}

// Warn prints a warning message.
func Warn(msg string, args ...any) {
	emit(slog.LevelWarn, "[WARN] ", true, msg, args...)
}

// Error prints an error message.
func Error(msg string, args ...any) {
	emit(slog.LevelError, "[ERROR] ", true, msg, args...)
}

// Section prints a section header if verbose mode is enabled.
func Section(name string) {
	mu.Lock()
	defer mu.Unlock()
	if !verbose {
		return
	}
	if format == FormatJSON {
		jsonLog.Info(name, slog.String("kind", "section"))
		return
	}
	fmt.Fprintf(output, "\n=== %s ===\n", name)
}

// emit holds the write lock so concurrent lines never interleave.
func emit(level slog.Level, prefix string, always bool, msg string, args ...any) {
	mu.Lock()
	defer mu.Unlock()
	if !always && !verbose {
		return
	}
	if format == FormatJSON {
		jsonLog.Log(context.Background(), level, fmt.Sprintf(msg, args...))
		return
	}
	fmt.Fprintf(output, prefix+msg+"\n", args...)
}
