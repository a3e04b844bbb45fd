package log

import (
	"context"
	"fmt"
	"log/slog"
	"os"
)

// log emits a single record through the slog bridge at the given level.
// Base fields attached via With* are merged ahead of call-site fields.
func (l *BaseLogger) log(level Level, msg string, fields ...Field) {
	if level < l.level && level != FatalLevel {
		return
	}
	attrs := attrsFromMap(l.fields)
	attrs = append(attrs, attrsFromFieldSlice(fields)...)
	l.slogLogger.LogAttrs(context.Background(), toSlogLevel(level), msg, attrs...)
}

// Debug logs a message at DebugLevel.
func (l *BaseLogger) Debug(msg string, fields ...Field) { l.log(DebugLevel, msg, fields...) }

// Info logs a message at InfoLevel.
func (l *BaseLogger) Info(msg string, fields ...Field) { l.log(InfoLevel, msg, fields...) }

// Warn logs a message at WarnLevel.
func (l *BaseLogger) Warn(msg string, fields ...Field) { l.log(WarnLevel, msg, fields...) }

// Error logs a message at ErrorLevel.
func (l *BaseLogger) Error(msg string, fields ...Field) { l.log(ErrorLevel, msg, fields...) }

// Fatal logs a message at FatalLevel and exits the process.
func (l *BaseLogger) Fatal(msg string, fields ...Field) {
	l.log(FatalLevel, msg, fields...)
	os.Exit(1)
}

// Debugf logs a printf-formatted message at DebugLevel.
func (l *BaseLogger) Debugf(msg string, args ...interface{}) {
	l.log(DebugLevel, fmt.Sprintf(msg, args...))
}

// Infof logs a printf-formatted message at InfoLevel.
func (l *BaseLogger) Infof(msg string, args ...interface{}) {
	l.log(InfoLevel, fmt.Sprintf(msg, args...))
}

// Warnf logs a printf-formatted message at WarnLevel.
func (l *BaseLogger) Warnf(msg string, args ...interface{}) {
	l.log(WarnLevel, fmt.Sprintf(msg, args...))
}

// Errorf logs a printf-formatted message at ErrorLevel.
func (l *BaseLogger) Errorf(msg string, args ...interface{}) {
	l.log(ErrorLevel, fmt.Sprintf(msg, args...))
}

// Fatalf logs a printf-formatted message at FatalLevel and exits the process.
func (l *BaseLogger) Fatalf(msg string, args ...interface{}) {
	l.log(FatalLevel, fmt.Sprintf(msg, args...))
	os.Exit(1)
}

// clone returns a copy of the logger sharing formatter and outputs but
// owning its own field map, so children never mutate the parent.
func (l *BaseLogger) clone() *BaseLogger {
	nf := make(Fields, len(l.fields)+2)
	for k, v := range l.fields {
		nf[k] = v
	}
	child := &BaseLogger{
		level:     l.level,
		fields:    nf,
		formatter: l.formatter,
		outputs:   l.outputs,
	}
	child.slogLogger = slog.New(newBridgeHandler(child))
	return child
}

// WithField returns a logger with one additional field.
func (l *BaseLogger) WithField(key string, value interface{}) Logger {
	child := l.clone()
	child.fields[key] = value
	return child
}

// WithFields returns a logger with the given fields merged in.
func (l *BaseLogger) WithFields(fields Fields) Logger {
	child := l.clone()
	for k, v := range fields {
		child.fields[k] = v
	}
	return child
}

// WithError returns a logger with the error attached under the "error" key.
func (l *BaseLogger) WithError(err error) Logger {
	if err == nil {
		return l
	}
	return l.WithField("error", err.Error())
}

// With returns a logger with the given fields merged in.
func (l *BaseLogger) With(fields ...Field) Logger {
	if len(fields) == 0 {
		return l
	}
	child := l.clone()
	for _, f := range fields {
		child.fields[f.Key] = f.Value
	}
	return child
}

// WithContext returns a logger carrying any logging context found in ctx.
func (l *BaseLogger) WithContext(ctx context.Context) Logger {
	extracted := ContextExtractor(ctx)
	if len(extracted) == 0 {
		return l
	}
	return l.WithFields(extracted)
}

// WithComponent tags the logger with a component name.
func (l *BaseLogger) WithComponent(component string) Logger {
	return l.WithField(ComponentKey, component)
}

// SetLevel sets the minimum log level.
func (l *BaseLogger) SetLevel(level Level) { l.level = level }

// GetLevel returns the current minimum log level.
func (l *BaseLogger) GetLevel() Level { return l.level }

var _ Logger = (*BaseLogger)(nil)
