package confbk

import (
	"io"
	"io/fs"
)

// FilesystemManager provides the filesystem operations a backup needs.
// It abstracts file access so the executor can be tested in isolation.
type FilesystemManager interface {
	// Resolve stats a raw path and classifies it as a file or directory.
	// A missing path, or one that is neither, yields a *NotFoundError.
	Resolve(rawPath string) (*Entry, error)

	// Open opens a file for reading.
	Open(path string) (io.ReadCloser, error)

	// Create creates a new file for writing. An existing path yields a
	// *ConflictError.
	Create(path string) (io.WriteCloser, error)

	// Stat returns fresh file info for a path.
	Stat(path string) (fs.FileInfo, error)

	// Exists reports whether anything exists at path, without following
	// a final symlink.
	Exists(path string) (bool, error)

	// Mkdir creates a single new directory. An existing path yields a
	// *ConflictError; the existing path is left untouched.
	Mkdir(path string) error

	// Copy copies entry to dest, creating missing parents of dest.
	// Directories are copied recursively; skip names a directory (the
	// backup's own output) that must not be descended into.
	Copy(entry *Entry, dest, skip string) error

	// RemoveAll removes path and anything below it.
	RemoveAll(path string) error
}
