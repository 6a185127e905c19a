// Package parser holds the error contract shared by the per-format source
// readers in its subpackages.
package parser

import (
	"errors"
	"fmt"
)

// MalformedError reports an unreadable or unparseable source file. It is
// fatal to the affected source; the driver never retries it.
type MalformedError struct {
	Path string
	Err  error
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed source %s: %v", e.Path, e.Err)
}

func (e *MalformedError) Unwrap() error { return e.Err }

// Malformed wraps err as a MalformedError for the given path.
func Malformed(path string, err error) error {
	return &MalformedError{Path: path, Err: err}
}

// IsMalformed reports whether err is (or wraps) a MalformedError.
func IsMalformed(err error) bool {
	var me *MalformedError
	return errors.As(err, &me)
}
