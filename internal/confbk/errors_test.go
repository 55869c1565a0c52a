package confbk_test

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"confbk/internal/confbk"
)

func TestExitCodeFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want confbk.ExitCode
	}{
		{name: "nil", err: nil, want: confbk.ExitSuccess},
		{name: "usage", err: confbk.Usagef("bad %s", "flag"), want: confbk.ExitUsage},
		{name: "not found", err: &confbk.NotFoundError{Path: "x"}, want: confbk.ExitNotFound},
		{name: "conflict", err: &confbk.ConflictError{Kind: "directory", Path: "out"}, want: confbk.ExitConflict},
		{name: "io", err: &confbk.IOError{Op: "copy", Path: "x", Err: fs.ErrPermission}, want: confbk.ExitFailure},
		{name: "plain", err: errors.New("boom"), want: confbk.ExitFailure},
		{name: "wrapped conflict", err: fmt.Errorf("backup: %w", &confbk.ConflictError{Path: "out"}), want: confbk.ExitConflict},
		{name: "io wrapping not found", err: &confbk.IOError{Op: "open", Path: "x", Err: &confbk.NotFoundError{Path: "x"}}, want: confbk.ExitNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := confbk.ExitCodeFor(tt.err); got != tt.want {
				t.Errorf("ExitCodeFor() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&confbk.NotFoundError{Path: "IDontExist"}, "IDontExist: No such file or directory"},
		{&confbk.NotFoundError{Path: "dev", Reason: "Not a regular file or directory"}, "dev: Not a regular file or directory"},
		{&confbk.ConflictError{Kind: "directory", Path: "out"}, `Directory "out" already exists`},
		{&confbk.ConflictError{Path: "x"}, `Path "x" already exists`},
		{&confbk.IOError{Op: "copy", Path: "a", Err: errors.New("disk full")}, "copy a: disk full"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestErrorsUnwrap(t *testing.T) {
	err := &confbk.IOError{Op: "copy", Path: "a", Err: fs.ErrPermission}
	if !errors.Is(err, fs.ErrPermission) {
		t.Error("IOError does not unwrap its cause")
	}
	nf := &confbk.NotFoundError{Path: "a", Err: fs.ErrNotExist}
	if !errors.Is(nf, fs.ErrNotExist) {
		t.Error("NotFoundError does not unwrap its cause")
	}
}
