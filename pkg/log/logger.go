// Leveled logging for the auto-offset host
//
// Provides per-component loggers with prefixes, structured fields and
// ANSI colors for terminal output. The calibration engine's verbosity
// parameter (DEBUG=0..2) maps onto these levels.
//
// Copyright (C) 2025
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package log

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Level represents the severity of a log message.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel parses a string into a Level. Unknown strings map to INFO.
func ParseLevel(s string) Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return DEBUG
	case "INFO":
		return INFO
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

// FromVerbosity maps the calibration debug level (0..2) onto a log level.
func FromVerbosity(v int) Level {
	switch {
	case v <= 0:
		return WARN
	case v == 1:
		return INFO
	default:
		return DEBUG
	}
}

// Fields is a map of structured logging fields.
type Fields map[string]interface{}

// Logger writes leveled, prefixed log messages.
type Logger struct {
	mu         sync.Mutex
	prefix     string
	writer     io.Writer
	level      Level
	timeFormat string
	colorize   bool
	fields     Fields
}

var ansiColors = map[Level]string{
	DEBUG: "\x1b[36m",
	INFO:  "\x1b[32m",
	WARN:  "\x1b[33m",
	ERROR: "\x1b[31m",
}

const ansiReset = "\x1b[0m"

// New creates a new logger with the given component prefix.
func New(prefix string) *Logger {
	return &Logger{
		prefix:     prefix,
		writer:     os.Stderr,
		level:      INFO,
		timeFormat: "2006-01-02 15:04:05.000",
		colorize:   os.Getenv("NO_COLOR") == "",
		fields:     make(Fields),
	}
}

// Child returns a logger sharing this logger's settings with a sub-prefix.
func (l *Logger) Child(prefix string) *Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	child := &Logger{
		prefix:     l.prefix + "." + prefix,
		writer:     l.writer,
		level:      l.level,
		timeFormat: l.timeFormat,
		colorize:   l.colorize,
		fields:     make(Fields, len(l.fields)),
	}
	for k, v := range l.fields {
		child.fields[k] = v
	}
	return child
}

// SetLevel sets the minimum log level.
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// GetLevel returns the current log level.
func (l *Logger) GetLevel() Level {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

// SetWriter sets the output writer.
func (l *Logger) SetWriter(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writer = w
}

// SetColorize enables or disables colorized output.
func (l *Logger) SetColorize(enable bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.colorize = enable
}

// WithField returns an Entry carrying one structured field.
func (l *Logger) WithField(key string, value interface{}) *Entry {
	return &Entry{logger: l, fields: Fields{key: value}}
}

// WithFields returns an Entry carrying the given fields.
func (l *Logger) WithFields(fields Fields) *Entry {
	return &Entry{logger: l, fields: fields}
}

func (l *Logger) Debugf(format string, args ...interface{}) {
	l.logf(DEBUG, nil, format, args...)
}

func (l *Logger) Infof(format string, args ...interface{}) {
	l.logf(INFO, nil, format, args...)
}

func (l *Logger) Warnf(format string, args ...interface{}) {
	l.logf(WARN, nil, format, args...)
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	l.logf(ERROR, nil, format, args...)
}

func (l *Logger) logf(level Level, extra Fields, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level < l.level {
		return
	}

	var b strings.Builder
	b.WriteString(time.Now().Format(l.timeFormat))
	b.WriteByte(' ')

	if l.colorize {
		b.WriteString(ansiColors[level])
	}
	fmt.Fprintf(&b, "%-5s", level.String())
	if l.colorize {
		b.WriteString(ansiReset)
	}

	if l.prefix != "" {
		fmt.Fprintf(&b, " [%s]", l.prefix)
	}
	b.WriteByte(' ')
	fmt.Fprintf(&b, format, args...)

	merged := make(Fields, len(l.fields)+len(extra))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	if len(merged) > 0 {
		keys := make([]string, 0, len(merged))
		for k := range merged {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, merged[k])
		}
	}
	b.WriteByte('\n')

	io.WriteString(l.writer, b.String())
}

// Entry is a log statement builder with attached fields.
type Entry struct {
	logger *Logger
	fields Fields
}

// WithField adds a field to the entry.
func (e *Entry) WithField(key string, value interface{}) *Entry {
	e.fields[key] = value
	return e
}

func (e *Entry) Debugf(format string, args ...interface{}) {
	e.logger.logf(DEBUG, e.fields, format, args...)
}

func (e *Entry) Infof(format string, args ...interface{}) {
	e.logger.logf(INFO, e.fields, format, args...)
}

func (e *Entry) Warnf(format string, args ...interface{}) {
	e.logger.logf(WARN, e.fields, format, args...)
}

func (e *Entry) Errorf(format string, args ...interface{}) {
	e.logger.logf(ERROR, e.fields, format, args...)
}
