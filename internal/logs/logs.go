// Package logs implements a minimal leveled logging backend that can
// multiplex to several io.Writers. It exists so that internal/logger
// can hand out one *Logger per subsystem while funneling all of them
// through a single rotating file, the same split the teacher codebase
// uses its own logs/logger pair for.
package logs

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Level is a logging severity.
type Level uint8

// Severity levels, lowest to highest.
const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
	LevelCritical
	LevelOff
)

var levelNames = map[Level]string{
	LevelTrace:    "TRC",
	LevelDebug:    "DBG",
	LevelInfo:     "INF",
	LevelWarn:     "WRN",
	LevelError:    "ERR",
	LevelCritical: "CRT",
}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "UNK"
}

// BackendWriter pairs an io.Writer with the minimum level it accepts.
type BackendWriter struct {
	w        io.Writer
	minLevel Level
}

// NewAllLevelsBackendWriter writes every level to w.
func NewAllLevelsBackendWriter(w io.Writer) *BackendWriter {
	return &BackendWriter{w: w, minLevel: LevelTrace}
}

// NewErrorBackendWriter writes only Error and above to w.
func NewErrorBackendWriter(w io.Writer) *BackendWriter {
	return &BackendWriter{w: w, minLevel: LevelError}
}

// Backend is the shared sink every subsystem Logger writes through.
type Backend struct {
	mtx     sync.Mutex
	writers []*BackendWriter
	closed  bool
}

// NewBackend creates a Backend multiplexing to the given writers.
func NewBackend(writers []*BackendWriter) *Backend {
	return &Backend{writers: writers}
}

// Logger returns a tagged Logger backed by b.
func (b *Backend) Logger(tag string) *Logger {
	return &Logger{tag: tag, backend: b, level: LevelInfo}
}

// Close releases any writers that implement io.Closer.
func (b *Backend) Close() {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, bw := range b.writers {
		if c, ok := bw.w.(io.Closer); ok {
			_ = c.Close()
		}
	}
}

func (b *Backend) write(level Level, line string) {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	if b.closed {
		return
	}
	for _, bw := range b.writers {
		if level >= bw.minLevel {
			_, _ = io.WriteString(bw.w, line)
		}
	}
}

// Logger is a single subsystem's handle onto a Backend.
type Logger struct {
	tag     string
	backend *Backend
	level   Level
}

// SetLevel changes the minimum level this Logger emits.
func (l *Logger) SetLevel(level Level) { l.level = level }

// Backend returns the shared Backend, mainly so callers can Close it.
func (l *Logger) Backend() *Backend { return l.backend }

func (l *Logger) log(level Level, msg string) {
	if level < l.level {
		return
	}
	line := fmt.Sprintf("%s [%s] %s: %s\n", time.Now().Format("2006-01-02 15:04:05.000"), level, l.tag, msg)
	l.backend.write(level, line)
}

// Tracef logs at Trace level.
func (l *Logger) Tracef(format string, args ...interface{}) { l.log(LevelTrace, fmt.Sprintf(format, args...)) }

// Debugf logs at Debug level.
func (l *Logger) Debugf(format string, args ...interface{}) { l.log(LevelDebug, fmt.Sprintf(format, args...)) }

// Infof logs at Info level.
func (l *Logger) Infof(format string, args ...interface{}) { l.log(LevelInfo, fmt.Sprintf(format, args...)) }

// Warnf logs at Warn level.
func (l *Logger) Warnf(format string, args ...interface{}) { l.log(LevelWarn, fmt.Sprintf(format, args...)) }

// Errorf logs at Error level.
func (l *Logger) Errorf(format string, args ...interface{}) { l.log(LevelError, fmt.Sprintf(format, args...)) }

// Criticalf logs at Critical level.
func (l *Logger) Criticalf(format string, args ...interface{}) {
	l.log(LevelCritical, fmt.Sprintf(format, args...))
}

// Stdout is the default all-levels writer used before rotation is configured.
var Stdout io.Writer = os.Stdout
