package fs

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"confbk/internal/confbk"
)

// OSFilesystemManager is the real filesystem implementation of FilesystemManager.
// It performs actual filesystem operations using the os package.
type OSFilesystemManager struct {
	ignore *IgnoreMatcher
}

// NewOSFilesystemManager creates a filesystem manager that operates on the
// real filesystem. ignorePatterns are applied inside copied directories.
func NewOSFilesystemManager(ignorePatterns []string) *OSFilesystemManager {
	return &OSFilesystemManager{ignore: NewIgnoreMatcher(ignorePatterns)}
}

// Resolve stats rawPath and classifies it.
func (m *OSFilesystemManager) Resolve(rawPath string) (*confbk.Entry, error) {
	absPath, err := filepath.Abs(rawPath)
	if err != nil {
		return nil, &confbk.IOError{Op: "resolve", Path: rawPath, Err: err}
	}

	info, err := os.Stat(absPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &confbk.NotFoundError{Path: rawPath, Err: err}
		}
		return nil, &confbk.IOError{Op: "stat", Path: rawPath, Err: err}
	}

	switch mode := info.Mode(); {
	case mode.IsRegular():
		return confbk.NewEntry(rawPath, absPath, confbk.File, info), nil
	case mode.IsDir():
		return confbk.NewEntry(rawPath, absPath, confbk.Directory, info), nil
	default:
		return nil, &confbk.NotFoundError{Path: rawPath, Reason: "Not a regular file or directory"}
	}
}

// Open opens a file for reading.
func (m *OSFilesystemManager) Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &confbk.NotFoundError{Path: path, Err: err}
		}
		return nil, &confbk.IOError{Op: "open", Path: path, Err: err}
	}
	return f, nil
}

// Create creates a new file, refusing to replace an existing one.
func (m *OSFilesystemManager) Create(path string) (io.WriteCloser, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, &confbk.ConflictError{Kind: "file", Path: path}
		}
		return nil, &confbk.IOError{Op: "create", Path: path, Err: err}
	}
	return f, nil
}

// Stat returns fresh file info for a path.
func (m *OSFilesystemManager) Stat(path string) (fs.FileInfo, error) {
	return os.Stat(path)
}

// Exists reports whether anything, including a dangling symlink, exists at path.
func (m *OSFilesystemManager) Exists(path string) (bool, error) {
	_, err := os.Lstat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// Mkdir creates a single directory. It never merges into an existing one.
func (m *OSFilesystemManager) Mkdir(path string) error {
	if err := os.Mkdir(path, 0755); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return &confbk.ConflictError{Kind: "directory", Path: path}
		}
		return &confbk.IOError{Op: "create directory", Path: path, Err: err}
	}
	return nil
}

// Copy copies entry to dest. Regular files keep their permission bits;
// directories are copied recursively and symlinks inside them are
// recreated as symlinks. An entry that is itself a symlink is copied as
// what it points to.
func (m *OSFilesystemManager) Copy(entry *confbk.Entry, dest, skip string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return &confbk.IOError{Op: "create directory", Path: filepath.Dir(dest), Err: err}
	}

	if !entry.IsDir() {
		return copyFile(entry.Path(), dest, entry.Info().Mode().Perm())
	}

	src, err := filepath.EvalSymlinks(entry.Path())
	if err != nil {
		return &confbk.IOError{Op: "resolve", Path: entry.Path(), Err: err}
	}

	var skipAbs string
	if skip != "" {
		abs, err := filepath.Abs(skip)
		if err != nil {
			return &confbk.IOError{Op: "resolve", Path: skip, Err: err}
		}
		// walked paths are real paths, so compare against the real output path
		if real, err := filepath.EvalSymlinks(abs); err == nil {
			abs = real
		}
		skipAbs = abs
	}
	return m.copyTree(src, dest, skipAbs)
}

// copyTree walks src and mirrors it below dest.
func (m *OSFilesystemManager) copyTree(src, dest, skipAbs string) error {
	return filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return &confbk.IOError{Op: "read", Path: p, Err: err}
		}

		rel, err := filepath.Rel(src, p)
		if err != nil {
			return &confbk.IOError{Op: "resolve", Path: p, Err: err}
		}
		if rel != "." && m.ignore.Match(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() && p == skipAbs {
			return filepath.SkipDir
		}

		info, err := d.Info()
		if err != nil {
			return &confbk.IOError{Op: "stat", Path: p, Err: err}
		}
		target := filepath.Join(dest, rel)

		switch {
		case d.IsDir():
			// Owner write is kept so the copy can be filled in.
			if err := os.MkdirAll(target, info.Mode().Perm()|0700); err != nil {
				return &confbk.IOError{Op: "create directory", Path: target, Err: err}
			}
		case info.Mode()&fs.ModeSymlink != 0:
			link, err := os.Readlink(p)
			if err != nil {
				return &confbk.IOError{Op: "read link", Path: p, Err: err}
			}
			if err := os.Symlink(link, target); err != nil {
				return &confbk.IOError{Op: "create link", Path: target, Err: err}
			}
		case info.Mode().IsRegular():
			if err := copyFile(p, target, info.Mode().Perm()); err != nil {
				return err
			}
		}
		// Devices, sockets and pipes inside directories are skipped.
		return nil
	})
}

// copyFile copies a single regular file, replacing dst if it exists.
func copyFile(src, dst string, perm fs.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return &confbk.IOError{Op: "copy", Path: src, Err: err}
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return &confbk.IOError{Op: "copy", Path: src, Err: err}
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return &confbk.IOError{Op: "copy", Path: src, Err: err}
	}
	if err := out.Close(); err != nil {
		return &confbk.IOError{Op: "copy", Path: src, Err: fmt.Errorf("closing %s: %w", dst, err)}
	}

	// OpenFile applies the umask; restore the source bits.
	if err := os.Chmod(dst, perm); err != nil {
		return &confbk.IOError{Op: "chmod", Path: dst, Err: err}
	}
	return nil
}

// RemoveAll removes path and everything below it.
func (m *OSFilesystemManager) RemoveAll(path string) error {
	if err := os.RemoveAll(path); err != nil {
		return &confbk.IOError{Op: "remove", Path: path, Err: err}
	}
	return nil
}

// Compile-time check that OSFilesystemManager implements confbk.FilesystemManager interface
var _ confbk.FilesystemManager = (*OSFilesystemManager)(nil)
