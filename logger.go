package syscoinda

import (
	"io"
	"log"
)

// Logger is the logging interface accepted by SyscoinClient.
// Implementations must be safe for concurrent use.
type Logger interface {
	Infof(format string, args ...any)
	Errorf(format string, args ...any)
}

// NopLogger discards all log output.
var NopLogger Logger = nopLogger{}

type nopLogger struct{}

func (nopLogger) Infof(string, ...any)  {}
func (nopLogger) Errorf(string, ...any) {}

// DefaultLogger logs to the standard log package.
var DefaultLogger Logger = stdLogger{log.Default()}

// NewWriterLogger returns a Logger writing timestamped lines to w.
func NewWriterLogger(w io.Writer) Logger {
	return stdLogger{log.New(w, "", log.LstdFlags)}
}

type stdLogger struct {
	l *log.Logger
}

func (s stdLogger) Infof(format string, args ...any) {
	s.l.Printf("INFO "+format, args...)
}

func (s stdLogger) Errorf(format string, args ...any) {
	s.l.Printf("ERROR "+format, args...)
}
