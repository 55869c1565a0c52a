package confbk

import (
	"errors"
	"fmt"
)

// ExitCode is the process exit status for a finished command.
type ExitCode int

const (
	ExitSuccess  ExitCode = 0
	ExitFailure  ExitCode = 1 // I/O errors and anything unclassified
	ExitUsage    ExitCode = 2
	ExitNotFound ExitCode = 3
	ExitConflict ExitCode = 4
)

// UsageError reports contradictory or incomplete options. It is raised
// before the filesystem is touched.
type UsageError struct {
	Msg string
}

func (e *UsageError) Error() string { return e.Msg }

// Usagef builds a UsageError from a format string.
func Usagef(format string, args ...any) error {
	return &UsageError{Msg: fmt.Sprintf(format, args...)}
}

// NotFoundError reports a requested file or directory (or the manifest
// itself) that does not exist or is not a file or directory.
type NotFoundError struct {
	Path   string
	Reason string // defaults to "No such file or directory"
	Err    error
}

func (e *NotFoundError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = "No such file or directory"
	}
	return fmt.Sprintf("%s: %s", e.Path, reason)
}

func (e *NotFoundError) Unwrap() error { return e.Err }

// ConflictError reports an output path that already exists.
type ConflictError struct {
	Kind string // "directory", "archive", "vault object"
	Path string
}

func (e *ConflictError) Error() string {
	kind := e.Kind
	if kind == "" {
		kind = "path"
	}
	return fmt.Sprintf("%s %q already exists", capitalize(kind), e.Path)
}

// IOError wraps a filesystem, archive or transport failure.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// ExitCodeFor maps an error returned by a command to its exit status.
func ExitCodeFor(err error) ExitCode {
	if err == nil {
		return ExitSuccess
	}

	var usage *UsageError
	var notFound *NotFoundError
	var conflict *ConflictError
	switch {
	case errors.As(err, &usage):
		return ExitUsage
	case errors.As(err, &notFound):
		return ExitNotFound
	case errors.As(err, &conflict):
		return ExitConflict
	default:
		return ExitFailure
	}
}

func capitalize(s string) string {
	if s == "" || s[0] < 'a' || s[0] > 'z' {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}
