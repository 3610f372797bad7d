// Package assertdeep provides test helpers for asserting deep equality of
// complex structs, with readable diffs on failure.
package assertdeep

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/eocube/eocube/go/deepequal"
)

// Equal fails the test if the two objects do not pass a modified version of
// reflect.DeepEqual which uses any Equal() methods defined on the types and
// compares unexported fields. A diff of the two values is included in the
// failure message.
func Equal(t *testing.T, expected, actual interface{}) {
	t.Helper()
	if !deepequal.DeepEqual(expected, actual) {
		t.Fatalf("Objects do not match:\n%s", diff(expected, actual))
	}
}

// Copy asserts that the given objects are deeply equal and then checks that
// all of the exported fields of the first object are non-zero, which gives
// some assurance that a newly-added field will be caught if a Copy() method
// is not updated.
func Copy(t *testing.T, a, b interface{}) {
	t.Helper()
	Equal(t, a, b)

	v := reflect.Indirect(reflect.ValueOf(a))
	if v.Kind() != reflect.Struct {
		return
	}
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		if !field.CanInterface() {
			continue
		}
		if deepequal.DeepEqual(reflect.Zero(field.Type()).Interface(), field.Interface()) {
			t.Fatalf("Missing field %q (or set to zero value)", v.Type().Field(i).Name)
		}
	}
}

// diff renders a readable diff of the two values. go-cmp panics on some types
// it cannot introspect; those are reported without a diff.
func diff(expected, actual interface{}) (d string) {
	defer func() {
		if r := recover(); r != nil {
			d = fmt.Sprintf("expected: %+v\nactual:   %+v\n(diff unavailable: %v)", expected, actual, r)
		}
	}()
	return cmp.Diff(expected, actual, cmp.Exporter(func(reflect.Type) bool { return true }))
}
