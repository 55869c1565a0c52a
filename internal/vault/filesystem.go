package vault

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"confbk/internal/confbk"
)

// FileSystemVault stores archives as plain files below a root directory,
// typically a mounted external disk:
//
//	<root>/
//	  confbk-2026_10_17.tar.xz.age
//	  confbk-2026_10_18.tar.xz.age
type FileSystemVault struct {
	name string
	root string
}

// NewFileSystemVault creates a new filesystem vault rooted at the given path.
func NewFileSystemVault(name, root string) (*FileSystemVault, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create vault root: %w", err)
	}
	return &FileSystemVault{name: name, root: root}, nil
}

func (v *FileSystemVault) Name() string { return v.name }

// Put stores r under key. The object appears only once it is completely
// written, and an existing object is never replaced.
func (v *FileSystemVault) Put(key string, r io.Reader, size int64) error {
	destPath, err := v.path(key)
	if err != nil {
		return err
	}
	if _, err := os.Lstat(destPath); err == nil {
		return &confbk.ConflictError{Kind: "vault object", Path: key}
	}

	tmpFile, err := os.CreateTemp(v.root, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer os.Remove(tmpPath)

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if written != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, written)
	}

	// Link fails if destPath appeared in the meantime; rename would replace it.
	if err := os.Link(tmpPath, destPath); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return &confbk.ConflictError{Kind: "vault object", Path: key}
		}
		return fmt.Errorf("failed to move object into place: %w", err)
	}
	return nil
}

// Get writes the object stored under key to w.
func (v *FileSystemVault) Get(key string, w io.Writer) error {
	srcPath, err := v.path(key)
	if err != nil {
		return err
	}
	f, err := os.Open(srcPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &confbk.NotFoundError{Path: key, Reason: "No such object in vault " + v.name, Err: err}
		}
		return fmt.Errorf("failed to open object: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to read object: %w", err)
	}
	return nil
}

// ValidateSetup verifies that the root exists and accepts new files.
func (v *FileSystemVault) ValidateSetup() error {
	info, err := os.Stat(v.root)
	if err != nil {
		return fmt.Errorf("vault root not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("vault root is not a directory: %s", v.root)
	}

	probe, err := os.CreateTemp(v.root, ".probe-*")
	if err != nil {
		return fmt.Errorf("vault root not writable: %w", err)
	}
	probe.Close()
	return os.Remove(probe.Name())
}

// path maps key to a file below root.
func (v *FileSystemVault) path(key string) (string, error) {
	if key == "" || !filepath.IsLocal(key) {
		return "", fmt.Errorf("invalid vault key %q", key)
	}
	return filepath.Join(v.root, key), nil
}

// Compile-time check that FileSystemVault implements confbk.Vault interface
var _ confbk.Vault = (*FileSystemVault)(nil)
