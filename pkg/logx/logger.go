// Package logx provides the structured logger shared by the daemon, the
// transport and the CLI.
package logx

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger is a component-scoped structured logger backed by logrus.
// Fields are passed as alternating key/value pairs or as a single
// map[string]interface{}.
type Logger struct {
	entry *logrus.Entry
}

// NewLogger creates a JSON logger on stderr at the given level
// (trace|debug|info|warn|error). An unknown level falls back to info.
func NewLogger(level, component string) *Logger {
	base := logrus.New()
	base.SetOutput(os.Stderr)
	base.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
	})

	l := &Logger{entry: logrus.NewEntry(base)}
	if component != "" {
		l.entry = l.entry.WithField("component", component)
	}
	l.SetLevel(level)
	return l
}

// SetLevel changes the minimum level emitted
func (l *Logger) SetLevel(level string) {
	parsed, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		parsed = logrus.InfoLevel
	}
	l.entry.Logger.SetLevel(parsed)
}

// Level returns the current minimum level name
func (l *Logger) Level() string {
	return l.entry.Logger.GetLevel().String()
}

// SetOutput redirects log output
func (l *Logger) SetOutput(w io.Writer) {
	l.entry.Logger.SetOutput(w)
}

// UseTextFormat switches to human-readable output, for interactive tools
func (l *Logger) UseTextFormat() {
	l.entry.Logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05",
	})
}

// With returns a child logger carrying the given fields
func (l *Logger) With(fields ...interface{}) *Logger {
	return &Logger{entry: l.entry.WithFields(toFields(fields))}
}

func (l *Logger) Trace(msg string, fields ...interface{}) {
	l.entry.WithFields(toFields(fields)).Trace(msg)
}

func (l *Logger) Debug(msg string, fields ...interface{}) {
	l.entry.WithFields(toFields(fields)).Debug(msg)
}

func (l *Logger) Info(msg string, fields ...interface{}) {
	l.entry.WithFields(toFields(fields)).Info(msg)
}

func (l *Logger) Warn(msg string, fields ...interface{}) {
	l.entry.WithFields(toFields(fields)).Warn(msg)
}

func (l *Logger) Error(msg string, fields ...interface{}) {
	l.entry.WithFields(toFields(fields)).Error(msg)
}

// LogSwitch records a change of active GPS source
func (l *Logger) LogSwitch(from, to, reason string, switchCount int) {
	l.entry.WithFields(logrus.Fields{
		"type":         "switch",
		"from":         from,
		"to":           to,
		"reason":       reason,
		"switch_count": switchCount,
	}).Info("GPS source switched")
}

// LogStateChange records a state transition of a component
func (l *Logger) LogStateChange(component, from, to, reason string, fields ...interface{}) {
	f := toFields(fields)
	f["type"] = "state_change"
	f["state_component"] = component
	f["from"] = from
	f["to"] = to
	f["reason"] = reason
	l.entry.WithFields(f).Info("State change")
}

// LogEvent records a typed event
func (l *Logger) LogEvent(eventType string, fields ...interface{}) {
	f := toFields(fields)
	f["type"] = "event"
	f["event_type"] = eventType
	l.entry.WithFields(f).Info("Event")
}

func toFields(args []interface{}) logrus.Fields {
	fields := logrus.Fields{}
	if len(args) == 1 {
		if m, ok := args[0].(map[string]interface{}); ok {
			for k, v := range m {
				fields[k] = v
			}
			return fields
		}
	}

	for i := 0; i < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprintf("arg%d", i)
		}
		if i+1 >= len(args) {
			fields[key] = "(missing)"
			break
		}
		if err, ok := args[i+1].(error); ok {
			fields[key] = err.Error()
			continue
		}
		fields[key] = args[i+1]
	}
	return fields
}
