package dialectic

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the structured logger shared by the pipeline components.
// A nil *Logger discards everything.
type Logger struct {
	entry  *logrus.Entry
	closer io.Closer
}

// LoggerOptions configures NewLogger.
type LoggerOptions struct {
	// Debug lowers the level to debug. Otherwise info.
	Debug bool

	// Path is a log file rotated by size. Empty logs to stderr.
	Path string

	// JSON selects the JSON formatter.
	JSON bool
}

// NewLogger creates a logger writing to stderr or to a rotated file.
func NewLogger(opts LoggerOptions) *Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)

	var closer io.Closer
	if opts.Path != "" {
		rot := &lumberjack.Logger{
			Filename:   opts.Path,
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     28,
			Compress:   true,
		}
		l.SetOutput(rot)
		closer = rot
	}

	if opts.JSON {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	l.SetLevel(logrus.InfoLevel)
	if opts.Debug {
		l.SetLevel(logrus.DebugLevel)
	}

	return &Logger{entry: logrus.NewEntry(l).WithField("component", "dialectic"), closer: closer}
}

// NewLoggerTo creates a logger writing text to w. Mainly useful in tests.
func NewLoggerTo(w io.Writer, debug bool) *Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true, DisableColors: true})
	l.SetLevel(logrus.InfoLevel)
	if debug {
		l.SetLevel(logrus.DebugLevel)
	}
	return &Logger{entry: logrus.NewEntry(l)}
}

// With returns a logger carrying the given fields on every entry.
func (l *Logger) With(fields logrus.Fields) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{entry: l.entry.WithFields(fields), closer: l.closer}
}

// Debug logs at debug level.
func (l *Logger) Debug(msg string, fields logrus.Fields) {
	if l == nil {
		return
	}
	l.entry.WithFields(fields).Debug(msg)
}

// Info logs at info level.
func (l *Logger) Info(msg string, fields logrus.Fields) {
	if l == nil {
		return
	}
	l.entry.WithFields(fields).Info(msg)
}

// Warn logs at warn level.
func (l *Logger) Warn(msg string, fields logrus.Fields) {
	if l == nil {
		return
	}
	l.entry.WithFields(fields).Warn(msg)
}

// Error logs at error level with err attached.
func (l *Logger) Error(msg string, err error, fields logrus.Fields) {
	if l == nil {
		return
	}
	l.entry.WithFields(fields).WithError(err).Error(msg)
}

// Close closes the rotated log file, if any.
func (l *Logger) Close() error {
	if l == nil || l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

// truncateForLog truncates a string for logging purposes.
func truncateForLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + fmt.Sprintf("... [truncated, %d bytes total]", len(s))
}
