// Package console writes leveled, coloured status lines for the operator.
package console

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
)

// Level names one severity of console output.
type Level string

const (
	LevelInfo    Level = "INFO"
	LevelSuccess Level = "SUCCESS"
	LevelWarning Level = "WARNING"
	LevelError   Level = "ERROR"
)

var levelColors = map[Level]*color.Color{
	LevelInfo:    color.New(color.FgBlue, color.Bold),
	LevelSuccess: color.New(color.FgGreen, color.Bold),
	LevelWarning: color.New(color.FgYellow, color.Bold),
	LevelError:   color.New(color.FgRed, color.Bold),
}

// Logger writes one line per call; concurrent callers never split a line.
type Logger struct {
	mu    sync.Mutex
	out   io.Writer
	plain bool
}

// New returns a logger writing to out. Colour follows fatih/color's terminal
// detection unless plain is set.
func New(out io.Writer, plain bool) *Logger {
	if out == nil {
		out = os.Stderr
	}
	return &Logger{out: out, plain: plain || color.NoColor}
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return &Logger{out: io.Discard, plain: true}
}

func (l *Logger) Infof(format string, args ...any)    { l.logf(LevelInfo, format, args...) }
func (l *Logger) Successf(format string, args ...any) { l.logf(LevelSuccess, format, args...) }
func (l *Logger) Warnf(format string, args ...any)    { l.logf(LevelWarning, format, args...) }
func (l *Logger) Errorf(format string, args ...any)   { l.logf(LevelError, format, args...) }

func (l *Logger) logf(level Level, format string, args ...any) {
	tag := "[" + string(level) + "]"
	if !l.plain {
		if c, ok := levelColors[level]; ok {
			tag = c.Sprint(tag)
		}
	}
	line := fmt.Sprintf("%s %s\n", tag, fmt.Sprintf(format, args...))

	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = io.WriteString(l.out, line)
}
