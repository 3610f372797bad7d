// Common tool initialization.
// import only from package main.
package common

import (
	"flag"
	"strings"

	"github.com/eocube/eocube/go/cleanup"
	"github.com/eocube/eocube/go/sklog"
	"github.com/eocube/eocube/go/util"
)

// Defer should be deferred from main() before any other defers:
//
//	func main() {
//		defer common.Defer()
//		...
//	}
//
// It recovers panics, runs registered cleanup functions, and flushes logs.
func Defer() {
	if r := recover(); r != nil {
		sklog.Fatal(r)
	}
	cleanup.Cleanup()
	sklog.Flush()
}

// multiString implements flag.Value, allowing a flag to be specified multiple
// times or as a comma-separated list. The first explicitly-set value replaces
// any defaults.
type multiString struct {
	values *[]string
	set    bool
}

// newMultiString returns a multiString which stores values in target,
// initialized to a copy of defaults.
func newMultiString(target *[]string, defaults []string) *multiString {
	if defaults != nil {
		*target = util.CopyStringSlice(defaults)
	}
	return &multiString{
		values: target,
	}
}

// String implements flag.Value.
func (m *multiString) String() string {
	if m == nil || m.values == nil {
		return ""
	}
	return strings.Join(*m.values, ",")
}

// Set implements flag.Value.
func (m *multiString) Set(value string) error {
	if !m.set {
		*m.values = nil
		m.set = true
	}
	*m.values = append(*m.values, strings.Split(value, ",")...)
	return nil
}

// MultiStringFlagVar defines a flag with the specified name, defaults, and
// usage string which may be set multiple times or given comma-separated
// values. The argument target points to a []string variable in which to store
// the values of the flag.
func MultiStringFlagVar(target *[]string, name string, defaults []string, usage string) {
	flag.Var(newMultiString(target, defaults), name, usage)
}

// NewMultiStringFlag returns a []string flag with the specified name,
// defaults, and usage string.
func NewMultiStringFlag(name string, defaults []string, usage string) *[]string {
	var values []string
	MultiStringFlagVar(&values, name, defaults, usage)
	return &values
}
