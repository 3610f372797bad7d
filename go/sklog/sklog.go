// This package defines the logging functions (e.g. Info, Errorf, etc.).

package sklog

import (
	"os"

	"github.com/eocube/eocube/go/sklog/sklogimpl"
	"github.com/eocube/eocube/go/sklog/stdlogging"
)

// WE MUST CALL SetLogger in an init function; otherwise there's a very good
// chance of getting a nil pointer panic.
func init() {
	sklogimpl.SetLogger(stdlogging.New(os.Stderr))
}

// AllSeverities lists the severity names, in increasing order.
var AllSeverities = []string{
	sklogimpl.Debug.String(),
	sklogimpl.Info.String(),
	sklogimpl.Warning.String(),
	sklogimpl.Error.String(),
	sklogimpl.Fatal.String(),
}

// metricsCallback is called once per log line with the severity name, if set.
var metricsCallback func(severity string)

// SetMetricsCallback sets a function that is called whenever anything is logged.
func SetMetricsCallback(cb func(severity string)) {
	metricsCallback = cb
}

func countLine(severity sklogimpl.Severity) {
	if metricsCallback != nil {
		metricsCallback(severity.String())
	}
}

// Functions to log at various levels.
// Debug, Info, Warning, Error, and Fatal use fmt.Sprint to format the
// arguments.
// Functions ending in f use fmt.Sprintf to format the arguments.
// Functions ending in WithDepth allow the caller to change where the stacktrace
// starts. 0 (the default in all other calls) means to report starting at the
// caller. 1 would mean one level above, the caller's caller.  2 would be a
// level above that and so on.
func Debug(msg ...interface{}) {
	countLine(sklogimpl.Debug)
	sklogimpl.Log(1, sklogimpl.Debug, "", msg...)
}

func Debugf(format string, v ...interface{}) {
	countLine(sklogimpl.Debug)
	sklogimpl.Log(1, sklogimpl.Debug, format, v...)
}

func DebugfWithDepth(depth int, format string, v ...interface{}) {
	countLine(sklogimpl.Debug)
	sklogimpl.Log(1+depth, sklogimpl.Debug, format, v...)
}

func Info(msg ...interface{}) {
	countLine(sklogimpl.Info)
	sklogimpl.Log(1, sklogimpl.Info, "", msg...)
}

func Infof(format string, v ...interface{}) {
	countLine(sklogimpl.Info)
	sklogimpl.Log(1, sklogimpl.Info, format, v...)
}

func InfofWithDepth(depth int, format string, v ...interface{}) {
	countLine(sklogimpl.Info)
	sklogimpl.Log(1+depth, sklogimpl.Info, format, v...)
}

func Warning(msg ...interface{}) {
	countLine(sklogimpl.Warning)
	sklogimpl.Log(1, sklogimpl.Warning, "", msg...)
}

func Warningf(format string, v ...interface{}) {
	countLine(sklogimpl.Warning)
	sklogimpl.Log(1, sklogimpl.Warning, format, v...)
}

func WarningfWithDepth(depth int, format string, v ...interface{}) {
	countLine(sklogimpl.Warning)
	sklogimpl.Log(1+depth, sklogimpl.Warning, format, v...)
}

func Error(msg ...interface{}) {
	countLine(sklogimpl.Error)
	sklogimpl.Log(1, sklogimpl.Error, "", msg...)
}

func Errorf(format string, v ...interface{}) {
	countLine(sklogimpl.Error)
	sklogimpl.Log(1, sklogimpl.Error, format, v...)
}

func ErrorfWithDepth(depth int, format string, v ...interface{}) {
	countLine(sklogimpl.Error)
	sklogimpl.Log(1+depth, sklogimpl.Error, format, v...)
}

// Fatal* exits the program after logging.
func Fatal(msg ...interface{}) {
	countLine(sklogimpl.Fatal)
	sklogimpl.Log(1, sklogimpl.Fatal, "", msg...)
}

func Fatalf(format string, v ...interface{}) {
	countLine(sklogimpl.Fatal)
	sklogimpl.Log(1, sklogimpl.Fatal, format, v...)
}

func FatalfWithDepth(depth int, format string, v ...interface{}) {
	countLine(sklogimpl.Fatal)
	sklogimpl.Log(1+depth, sklogimpl.Fatal, format, v...)
}

func Flush() {
	sklogimpl.Flush()
}
