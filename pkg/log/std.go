package log

import (
	"bytes"
	stdlog "log"
)

// stdBridge adapts a Logger to io.Writer so the standard library logger can
// be routed through the structured pipeline. Each Write is treated as one
// message; trailing newlines are stripped.
type stdBridge struct {
	logger Logger
	level  Level
}

func (b *stdBridge) Write(p []byte) (int, error) {
	msg := string(bytes.TrimRight(p, "\n"))
	switch b.level {
	case DebugLevel:
		b.logger.Debug(msg)
	case WarnLevel:
		b.logger.Warn(msg)
	case ErrorLevel:
		b.logger.Error(msg)
	default:
		b.logger.Info(msg)
	}
	return len(p), nil
}

// ToStdLogger returns a *log.Logger whose output is routed through the given
// Logger at the provided level. Useful for libraries that only accept the
// standard library logger.
func ToStdLogger(logger Logger, level Level) *stdlog.Logger {
	return stdlog.New(&stdBridge{logger: logger, level: level}, "", 0)
}

// RedirectStdLog routes the global standard library logger through the given
// Logger at InfoLevel. Timestamps and prefixes from the std logger are
// dropped; the structured pipeline supplies its own.
func RedirectStdLog(logger Logger) {
	stdlog.SetFlags(0)
	stdlog.SetPrefix("")
	stdlog.SetOutput(&stdBridge{logger: logger, level: InfoLevel})
}
