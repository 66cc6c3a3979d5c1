// Package logging provides the leveled logger used by the runner, the
// fetcher and the command line tool.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level is a log severity
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

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
	}
	return fmt.Sprintf("LEVEL(%d)", int(l))
}

// ParseLevel converts a config value such as "info" to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// Logger is a leveled, structured logger. Arguments after the message are
// alternating keys and values.
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
}

// writerLogger writes entries to an io.Writer
type writerLogger struct {
	mu     sync.Mutex
	w      io.Writer
	format string // "json" or "text"
	level  Level
	now    func() time.Time
}

// New returns a logger that writes entries at or above level to w, as text
// lines or as one JSON object per line.
func New(w io.Writer, format string, level Level) Logger {
	if format == "" {
		format = "text"
	}
	return &writerLogger{w: w, format: format, level: level, now: time.Now}
}

func (l *writerLogger) log(level Level, msg string, kv []any) {
	if level < l.level {
		return
	}
	e := newEntry(l.now(), level, msg, kv)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.format == "json" {
		writeJSON(l.w, e)
	} else {
		writeText(l.w, e)
	}
}

func (l *writerLogger) Debug(msg string, kv ...any) { l.log(LevelDebug, msg, kv) }
func (l *writerLogger) Info(msg string, kv ...any)  { l.log(LevelInfo, msg, kv) }
func (l *writerLogger) Warn(msg string, kv ...any)  { l.log(LevelWarn, msg, kv) }
func (l *writerLogger) Error(msg string, kv ...any) { l.log(LevelError, msg, kv) }

// Open resolves a config output name to a writer: "stderr" (or empty),
// "stdout", or a file path opened for appending. The returned close
// function is a no-op for the standard streams.
func Open(output string, stdout, stderr io.Writer) (io.Writer, func() error, error) {
	switch output {
	case "", "stderr":
		return stderr, func() error { return nil }, nil
	case "stdout":
		return stdout, func() error { return nil }, nil
	}
	f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	return f, f.Close, nil
}

// BufferedLogger captures log entries for later retrieval
type BufferedLogger struct {
	mu      sync.Mutex
	entries []Entry
}

// NewBufferedLogger creates a new buffered logger
func NewBufferedLogger() *BufferedLogger {
	return &BufferedLogger{}
}

func (l *BufferedLogger) add(level Level, msg string, kv []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, newEntry(time.Now(), level, msg, kv))
}

func (l *BufferedLogger) Debug(msg string, kv ...any) { l.add(LevelDebug, msg, kv) }
func (l *BufferedLogger) Info(msg string, kv ...any)  { l.add(LevelInfo, msg, kv) }
func (l *BufferedLogger) Warn(msg string, kv ...any)  { l.add(LevelWarn, msg, kv) }
func (l *BufferedLogger) Error(msg string, kv ...any) { l.add(LevelError, msg, kv) }

// Entries returns a copy of the captured entries
func (l *BufferedLogger) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	result := make([]Entry, len(l.entries))
	copy(result, l.entries)
	return result
}

// Lines returns all captured entries rendered without timestamps
func (l *BufferedLogger) Lines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	result := make([]string, len(l.entries))
	for i, e := range l.entries {
		result[i] = e.Line()
	}
	return result
}

// String returns all captured output as a single string
func (l *BufferedLogger) String() string {
	lines := l.Lines()
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}

// Reset clears all captured output
func (l *BufferedLogger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = l.entries[:0]
}

// nullLogger discards all output
type nullLogger struct{}

func (nullLogger) Debug(string, ...any) {}
func (nullLogger) Info(string, ...any)  {}
func (nullLogger) Warn(string, ...any)  {}
func (nullLogger) Error(string, ...any) {}

// Null returns a logger that discards all output
func Null() Logger {
	return nullLogger{}
}
