// Package xlog is the engine's logging wrapper. It mirrors the shape of
// the teacher's persist.Logger (Println/Debugln/Critical/Severe writing
// to a file under the persist directory) but is backed by log/slog
// instead of a hand-rolled *log.Logger, matching the modern stdlib
// logging approach also adopted in the ashita-ai-akashi example.
package xlog

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// Logger is a small facade over slog.Logger that adds the
// Critical/Severe vocabulary the engine's error taxonomy (spec.md §7)
// expects, and owns the underlying file handle so Close is meaningful.
type Logger struct {
	slog *slog.Logger
	file io.Closer
}

// New creates a Logger that writes structured, timestamped lines to
// path. The directory containing path must already exist.
func New(path string) (*Logger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("xlog: unable to open log file %s: %w", filepath.Clean(path), err)
	}
	handler := slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug})
	return &Logger{slog: slog.New(handler), file: f}, nil
}

type noopCloser struct{}

func (noopCloser) Close() error { return nil }

// Discard returns a Logger that drops everything written to it, useful
// for tests that don't care about log output.
func Discard() *Logger {
	return &Logger{slog: slog.New(slog.NewTextHandler(io.Discard, nil)), file: noopCloser{}}
}

// Println logs an informational line.
func (l *Logger) Println(v ...interface{}) {
	l.slog.Info(fmt.Sprint(v...))
}

// Debugln logs a debug-level line.
func (l *Logger) Debugln(v ...interface{}) {
	l.slog.Debug(fmt.Sprint(v...))
}

// Warnln logs a warning-level line.
func (l *Logger) Warnln(v ...interface{}) {
	l.slog.Warn(fmt.Sprint(v...))
}

// Critical logs at error level and additionally invokes xerr.Critical's
// semantics via the caller (engine code calls xerr.Critical alongside
// this when an invariant is actually broken); Critical here is purely
// the log line.
func (l *Logger) Critical(v ...interface{}) {
	l.slog.Error("CRITICAL: " + fmt.Sprint(v...))
}

// Severe logs at error level for serious-but-recoverable conditions.
func (l *Logger) Severe(v ...interface{}) {
	l.slog.Error("SEVERE: " + fmt.Sprint(v...))
}

// Close releases the underlying file handle.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}
