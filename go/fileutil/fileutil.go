package fileutil

import (
	"os"
	"path/filepath"

	"github.com/eocube/eocube/go/sklog"
)

// EnsureDirExists checks whether the given path to a directory exists and creates it
// if necessary. Returns the absolute path that corresponds to the input path
// and an error indicating a problem.
func EnsureDirExists(dirPath string) (string, error) {
	absPath, err := filepath.Abs(dirPath)
	if err != nil {
		return "", err
	}

	return absPath, os.MkdirAll(absPath, 0700)
}

// FileExists returns true if the given path exists and is a regular file.
func FileExists(path string) bool {
	fi, err := os.Stat(path)
	if err != nil {
		return false
	}
	return fi.Mode().IsRegular()
}

// Must checks whether err in the provided pair (s, err) is nil. If so it
// returns s otherwise it causes the program to stop with the error message.
func Must(s string, err error) string {
	if err != nil {
		sklog.Fatal(err)
	}
	return s
}
