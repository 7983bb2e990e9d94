// Package util provides logging and traffic counters shared by every layer.
package util

import (
	"fmt"

	"github.com/pterm/pterm"
)

func init() {
	pterm.DefaultLogger.ShowTime = true
	pterm.DefaultLogger.TimeFormat = "02 Jan 15:04:05"
	pterm.DefaultLogger.MaxWidth = 1000
}

// Leveled logging functions backed by the pterm default logger.
// All output goes to stderr by default (pterm's default).

func LogDebug(format string, args ...interface{}) {
	pterm.DefaultLogger.Debug(fmt.Sprintf(format, args...))
}

func LogInfo(format string, args ...interface{}) {
	pterm.DefaultLogger.Info(fmt.Sprintf(format, args...))
}

func LogSuccess(format string, args ...interface{}) {
	pterm.DefaultLogger.Info(fmt.Sprintf(format, args...))
}

func LogWarning(format string, args ...interface{}) {
	pterm.DefaultLogger.Warn(fmt.Sprintf(format, args...))
}

func LogError(format string, args ...interface{}) {
	pterm.DefaultLogger.Error(fmt.Sprintf(format, args...))
}

// EnableDebug configures the logger to show debug messages.
func EnableDebug() {
	pterm.DefaultLogger.Level = pterm.LogLevelDebug
}

// Logger tags every line with the name of the component that wrote it,
// e.g. "[session] set state: establishing".
type Logger struct {
	component string
}

// NewLogger returns a Logger for the named component.
func NewLogger(component string) Logger {
	return Logger{component: component}
}

func (l Logger) tag(format string) string {
	if l.component == "" {
		return format
	}
	return "[" + l.component + "] " + format
}

func (l Logger) Debug(format string, args ...interface{})   { LogDebug(l.tag(format), args...) }
func (l Logger) Info(format string, args ...interface{})    { LogInfo(l.tag(format), args...) }
func (l Logger) Success(format string, args ...interface{}) { LogSuccess(l.tag(format), args...) }
func (l Logger) Warning(format string, args ...interface{}) { LogWarning(l.tag(format), args...) }
func (l Logger) Error(format string, args ...interface{})   { LogError(l.tag(format), args...) }
