// Package testutils contains convenience utilities for testing.
package testutils

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path"
	"path/filepath"
	"runtime"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/eocube/eocube/go/sktest"
)

// AnyContext can be used to match any Context objects e.g.
// mockClient.On("Insert", testutils.AnyContext, mock.Anything).Return(...)
var AnyContext = mock.MatchedBy(func(c context.Context) bool {
	// If the passed in parameter does not implement the context.Context
	// interface, the wrapping MatchedBy will panic - so we can simply return
	// true, since we know it's a context.Context if execution flow makes it
	// here.
	return true
})

// TestDataDir returns the path to the caller's testdata directory, which
// is assumed to be "<path to caller dir>/testdata".
func TestDataDir(t sktest.TestingT) string {
	_, thisFile, _, ok := runtime.Caller(0)
	require.True(t, ok, "Could not find test data dir: runtime.Caller() failed.")
	for skip := 0; ; skip++ {
		_, file, _, ok := runtime.Caller(skip)
		require.True(t, ok, "Could not find test data dir: runtime.Caller() failed.")
		if file != thisFile {
			return path.Join(path.Dir(file), "testdata")
		}
	}
}

// ReadFileBytes reads a file from the caller's testdata directory and returns
// its contents as a byte slice.
func ReadFileBytes(t sktest.TestingT, filename string) []byte {
	filename = filepath.Join(TestDataDir(t), filename)
	b, err := os.ReadFile(filename)
	require.NoError(t, err, "Unable to read testdata file %s", filename)
	return b
}

// ReadFile reads a file from the caller's testdata directory.
func ReadFile(t sktest.TestingT, filename string) string {
	return string(ReadFileBytes(t, filename))
}

// ReadJSONFile reads a JSON file from the caller's testdata directory into the
// given interface.
func ReadJSONFile(t sktest.TestingT, filename string, dest interface{}) {
	contents := ReadFileBytes(t, filename)
	err := json.Unmarshal(contents, dest)
	require.NoError(t, err, "Unable to parse JSON in testdata file %s", filename)
}

// WriteFile writes the given contents to the given file path, reporting any
// error.
func WriteFile(t sktest.TestingT, filename, contents string) {
	require.NoErrorf(t, os.WriteFile(filename, []byte(contents), 0644), "Unable to write to file %s", filename)
}

// AssertCloses takes an io.Closer and asserts that it closes. E.g.:
//
//	frobber := NewFrobber()
//	defer testutils.AssertCloses(t, frobber)
func AssertCloses(t sktest.TestingT, c io.Closer) {
	require.NoError(t, c.Close())
}

// Remove attempts to remove the given file and asserts that no error is returned.
func Remove(t sktest.TestingT, fp string) {
	require.NoError(t, os.Remove(fp))
}

// RemoveAll attempts to remove the given directory and asserts that no error is returned.
func RemoveAll(t sktest.TestingT, fp string) {
	require.NoError(t, os.RemoveAll(fp))
}

// MarshalJSON encodes the given interface to a JSON string.
func MarshalJSON(t sktest.TestingT, i interface{}) string {
	b, err := json.Marshal(i)
	require.NoError(t, err)
	return string(b)
}

// MarshalIndentJSON encodes the given interface to an indented JSON string.
func MarshalIndentJSON(t sktest.TestingT, i interface{}) string {
	b, err := json.MarshalIndent(i, "", "  ")
	require.NoError(t, err)
	return string(b)
}
