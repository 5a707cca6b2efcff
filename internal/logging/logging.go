// Package logging provides the levelled line logger shared by the planner components.
package logging

import (
	"fmt"
	"io"
	"log"
	"strings"
	"time"
)

type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

func ParseLogLevel(s string) LogLevel {
	switch strings.ToLower(s) {
	case "debug":
		return LogLevelDebug
	case "info":
		return LogLevelInfo
	case "warn", "warning":
		return LogLevelWarn
	case "error":
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "INFO"
	}
}

// Logger writes "RFC3339 LEVEL component: message" lines. A nil *Logger discards everything.
type Logger struct {
	out       *log.Logger
	level     LogLevel
	component string
	now       func() time.Time
}

func New(w io.Writer, level LogLevel) *Logger {
	return &Logger{
		out:       log.New(w, "", 0),
		level:     level,
		component: "speedline",
		now:       time.Now,
	}
}

// Discard returns a logger that drops all output.
func Discard() *Logger {
	return New(io.Discard, LogLevelError+1)
}

// With returns a logger sharing the writer and level but tagged with another component name.
func (l *Logger) With(component string) *Logger {
	if l == nil {
		return nil
	}
	c := *l
	c.component = component
	return &c
}

func (l *Logger) Enabled(level LogLevel) bool {
	return l != nil && level >= l.level
}

func (l *Logger) Log(level LogLevel, format string, args ...any) {
	if !l.Enabled(level) {
		return
	}
	msg := fmt.Sprintf(format, args...)
	l.out.Printf("%s %s %s: %s", l.now().Format(time.RFC3339), level, l.component, msg)
}

func (l *Logger) Debugf(format string, args ...any) { l.Log(LogLevelDebug, format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.Log(LogLevelInfo, format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.Log(LogLevelWarn, format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.Log(LogLevelError, format, args...) }
