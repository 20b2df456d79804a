// Package zerolog adapts a rs/zerolog logger to the core.Logger interface.
package zerolog

import (
	"github.com/hetsched/hetsched/core"
	"github.com/rs/zerolog"
)

// Logger bridges core.Logger calls to a zerolog.Logger.
type Logger struct {
	zl zerolog.Logger
}

var _ core.Logger = (*Logger)(nil)

// New wraps an existing zerolog logger.
func New(zl zerolog.Logger) *Logger {
	return &Logger{zl: zl}
}

// Debug logs a debug message with optional fields.
func (l *Logger) Debug(msg string, fields ...core.Field) {
	emit(l.zl.Debug(), msg, fields)
}

// Info logs an info message with optional fields.
func (l *Logger) Info(msg string, fields ...core.Field) {
	emit(l.zl.Info(), msg, fields)
}

// Warn logs a warning message with optional fields.
func (l *Logger) Warn(msg string, fields ...core.Field) {
	emit(l.zl.Warn(), msg, fields)
}

// Error logs an error message with optional fields.
func (l *Logger) Error(msg string, fields ...core.Field) {
	emit(l.zl.Error(), msg, fields)
}

func emit(ev *zerolog.Event, msg string, fields []core.Field) {
	for _, f := range fields {
		switch v := f.Value.(type) {
		case string:
			ev = ev.Str(f.Key, v)
		case int:
			ev = ev.Int(f.Key, v)
		case int64:
			ev = ev.Int64(f.Key, v)
		case error:
			ev = ev.AnErr(f.Key, v)
		default:
			ev = ev.Interface(f.Key, v)
		}
	}
	ev.Msg(msg)
}
