// Package archive writes and reads the .tar.xz archives confbk produces.
package archive

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/ulikunitz/xz"

	"confbk/internal/confbk"
)

// TarXZ is an Archiver producing tar streams compressed with xz.
// Any standard tar/xz tool can unpack its output.
type TarXZ struct{}

// NewTarXZ creates a TarXZ archiver.
func NewTarXZ() *TarXZ {
	return &TarXZ{}
}

// Archive writes dir to dest with member names rooted at base(dir).
// The archive is assembled in a temporary file beside dest and renamed
// into place only after it is completely written.
func (a *TarXZ) Archive(dir, dest string) (int, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return 0, fmt.Errorf("resolving %s: %w", dir, err)
	}
	root := filepath.Base(absDir)

	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".tmp-*")
	if err != nil {
		return 0, fmt.Errorf("creating temp archive: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	xw, err := xz.NewWriter(tmp)
	if err != nil {
		return 0, fmt.Errorf("creating xz writer: %w", err)
	}
	tw := tar.NewWriter(xw)

	count := 0
	err = filepath.WalkDir(absDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(absDir, p)
		if err != nil {
			return err
		}
		name := root
		if rel != "." {
			name = path.Join(root, filepath.ToSlash(rel))
		}
		if err := writeMember(tw, p, name, d); err != nil {
			return fmt.Errorf("adding %s: %w", p, err)
		}
		count++
		return nil
	})
	if err != nil {
		return 0, err
	}

	if err := tw.Close(); err != nil {
		return 0, fmt.Errorf("finishing tar stream: %w", err)
	}
	if err := xw.Close(); err != nil {
		return 0, fmt.Errorf("finishing xz stream: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("closing temp archive: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		return 0, fmt.Errorf("setting archive mode: %w", err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return 0, fmt.Errorf("renaming temp archive: %w", err)
	}

	success = true
	return count, nil
}

// writeMember writes one header, and the file body for regular files.
func writeMember(tw *tar.Writer, p, name string, d fs.DirEntry) error {
	info, err := d.Info()
	if err != nil {
		return err
	}

	var link string
	if info.Mode()&fs.ModeSymlink != 0 {
		if link, err = os.Readlink(p); err != nil {
			return err
		}
	}

	hdr, err := tar.FileInfoHeader(info, link)
	if err != nil {
		return err
	}
	hdr.Name = name
	if info.IsDir() {
		hdr.Name += "/"
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}

	if !info.Mode().IsRegular() {
		return nil
	}
	f, err := os.Open(p)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(tw, f)
	return err
}

// Verify decodes the archive at p completely, which also checks the xz
// block checksums, and returns the number of members.
func (a *TarXZ) Verify(p string) (int, error) {
	count := 0
	err := walk(p, func(hdr *tar.Header, r io.Reader) error {
		if _, err := io.Copy(io.Discard, r); err != nil {
			return err
		}
		count++
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// List returns the member names in archive order.
func (a *TarXZ) List(p string) ([]string, error) {
	var names []string
	err := walk(p, func(hdr *tar.Header, _ io.Reader) error {
		names = append(names, hdr.Name)
		return nil
	})
	return names, err
}

// Extract unpacks the archive at p below destDir. Members whose names
// leave destDir are rejected, and every write goes through an os.Root, so
// a symlink member cannot be used to reach outside destDir either.
func (a *TarXZ) Extract(p, destDir string) error {
	root, err := os.OpenRoot(destDir)
	if err != nil {
		return err
	}
	defer root.Close()

	return walk(p, func(hdr *tar.Header, r io.Reader) error {
		rel := filepath.FromSlash(strings.TrimSuffix(hdr.Name, "/"))
		if !filepath.IsLocal(rel) {
			return fmt.Errorf("member %q escapes the destination", hdr.Name)
		}
		mode := hdr.FileInfo().Mode().Perm()

		switch hdr.Typeflag {
		case tar.TypeDir:
			return root.MkdirAll(rel, mode|0700)
		case tar.TypeSymlink:
			if err := mkdirParent(root, rel); err != nil {
				return err
			}
			return root.Symlink(hdr.Linkname, rel)
		case tar.TypeReg:
			if err := mkdirParent(root, rel); err != nil {
				return err
			}
			f, err := root.OpenFile(rel, os.O_WRONLY|os.O_CREATE|os.O_EXCL, mode)
			if err != nil {
				return err
			}
			if _, err := io.Copy(f, r); err != nil {
				f.Close()
				return err
			}
			return f.Close()
		default:
			return nil
		}
	})
}

func mkdirParent(root *os.Root, rel string) error {
	dir := filepath.Dir(rel)
	if dir == "." {
		return nil
	}
	return root.MkdirAll(dir, 0755)
}

// walk calls fn for each member of the archive at p.
func walk(p string, fn func(hdr *tar.Header, r io.Reader) error) error {
	f, err := os.Open(p)
	if err != nil {
		return err
	}
	defer f.Close()

	xr, err := xz.NewReader(f)
	if err != nil {
		return fmt.Errorf("reading xz stream: %w", err)
	}
	tr := tar.NewReader(xr)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading tar stream: %w", err)
		}
		if err := fn(hdr, tr); err != nil {
			return fmt.Errorf("%s: %w", hdr.Name, err)
		}
	}
}

// Compile-time check that TarXZ implements confbk.Archiver interface
var _ confbk.Archiver = (*TarXZ)(nil)
