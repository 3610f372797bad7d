// Package sklogimpl defines the interface for the underlying logging
// implementation used by sklog. It exists as a separate package so that
// implementations can be swapped without an import cycle through sklog.
package sklogimpl

import (
	"fmt"
	"os"
	"sync"
)

// Severity identifies the importance of a log line.
type Severity int

const (
	Debug Severity = iota
	Info
	Warning
	Error
	Fatal
)

// String implements fmt.Stringer, matching the names used for log metrics.
func (s Severity) String() string {
	switch s {
	case Debug:
		return "DEBUG"
	case Info:
		return "INFO"
	case Warning:
		return "WARNING"
	case Error:
		return "ERROR"
	case Fatal:
		return "FATAL"
	}
	return "UNKNOWN"
}

// Logger is implemented by logging backends.
type Logger interface {
	// Log emits a single log line. depth is the number of stack frames to
	// skip when computing the reported call site, where 0 points at the
	// caller of sklog's public functions. If format is empty the args are
	// formatted as fmt.Sprint would.
	Log(depth int, severity Severity, format string, args ...interface{})

	// Flush blocks until buffered log lines have been written.
	Flush()
}

var (
	mtx    sync.Mutex
	logger Logger
)

// SetLogger changes the backend used for all subsequent log calls.
func SetLogger(l Logger) {
	mtx.Lock()
	defer mtx.Unlock()
	logger = l
}

// Log forwards to the currently installed Logger.
func Log(depth int, severity Severity, format string, args ...interface{}) {
	mtx.Lock()
	l := logger
	mtx.Unlock()
	if l == nil {
		// Logging before an init function has installed a backend is a
		// programming error, but losing the message would be worse.
		fmt.Fprintln(os.Stderr, append([]interface{}{severity.String()}, args...)...)
		if severity == Fatal {
			os.Exit(255)
		}
		return
	}
	l.Log(depth+1, severity, format, args...)
}

// Flush flushes the currently installed Logger.
func Flush() {
	mtx.Lock()
	l := logger
	mtx.Unlock()
	if l != nil {
		l.Flush()
	}
}
