package testutil

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"confbk/internal/confbk"
)

// MockFile represents a file or directory in the mock filesystem.
type MockFile struct {
	Content     []byte
	Permissions fs.FileMode
	ModTime     time.Time
	IsDirectory bool
}

// MockFilesystemManager is an in-memory confbk.FilesystemManager. Relative
// paths resolve against Cwd. Every mutating call is recorded so tests can
// assert that nothing was touched.
type MockFilesystemManager struct {
	Cwd string

	// Fail makes the named operation ("mkdir", "copy", "create", "remove")
	// return the given error.
	Fail map[string]error

	files     map[string]*MockFile
	mutations []string
}

// NewMockFilesystemManager creates a new mock filesystem with "/" and Cwd
// present as directories.
func NewMockFilesystemManager() *MockFilesystemManager {
	m := &MockFilesystemManager{
		Cwd:   "/work",
		Fail:  make(map[string]error),
		files: make(map[string]*MockFile),
	}
	m.AddDirectory("/")
	m.AddDirectory(m.Cwd)
	return m
}

// AddFile adds a file, creating parent directories as needed.
func (m *MockFilesystemManager) AddFile(path string, content []byte) {
	path = m.abs(path)
	m.addParents(path)
	m.files[path] = &MockFile{
		Content:     content,
		Permissions: 0644,
		ModTime:     time.Now(),
	}
}

// AddDirectory adds a directory, creating parent directories as needed.
func (m *MockFilesystemManager) AddDirectory(path string) {
	path = m.abs(path)
	if path != "/" {
		m.addParents(path)
	}
	m.files[path] = &MockFile{
		Permissions: fs.ModeDir | 0755,
		ModTime:     time.Now(),
		IsDirectory: true,
	}
}

func (m *MockFilesystemManager) addParents(path string) {
	for dir := filepath.Dir(path); ; dir = filepath.Dir(dir) {
		if _, ok := m.files[dir]; !ok {
			m.files[dir] = &MockFile{Permissions: fs.ModeDir | 0755, IsDirectory: true}
		}
		if dir == "/" {
			return
		}
	}
}

// File returns the entry at path, or nil.
func (m *MockFilesystemManager) File(path string) *MockFile {
	return m.files[m.abs(path)]
}

// Paths returns every path below prefix, sorted.
func (m *MockFilesystemManager) Paths(prefix string) []string {
	prefix = m.abs(prefix)
	var paths []string
	for p := range m.files {
		if p == prefix || strings.HasPrefix(p, prefix+"/") {
			paths = append(paths, p)
		}
	}
	slices.Sort(paths)
	return paths
}

// Mutations returns the recorded mutating calls, e.g. "mkdir /work/out".
func (m *MockFilesystemManager) Mutations() []string {
	return m.mutations
}

func (m *MockFilesystemManager) abs(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(m.Cwd, path)
}

func (m *MockFilesystemManager) record(op, path string) error {
	m.mutations = append(m.mutations, op+" "+path)
	return m.Fail[op]
}

func (m *MockFilesystemManager) Resolve(rawPath string) (*confbk.Entry, error) {
	absPath := m.abs(rawPath)
	f, ok := m.files[absPath]
	if !ok {
		return nil, &confbk.NotFoundError{Path: rawPath, Err: fs.ErrNotExist}
	}
	kind := confbk.File
	if f.IsDirectory {
		kind = confbk.Directory
	}
	return confbk.NewEntry(rawPath, absPath, kind, m.info(absPath, f)), nil
}

func (m *MockFilesystemManager) Open(path string) (io.ReadCloser, error) {
	f, ok := m.files[m.abs(path)]
	if !ok {
		return nil, &confbk.NotFoundError{Path: path, Err: fs.ErrNotExist}
	}
	if f.IsDirectory {
		return nil, &confbk.IOError{Op: "open", Path: path, Err: fmt.Errorf("is a directory")}
	}
	return io.NopCloser(bytes.NewReader(f.Content)), nil
}

func (m *MockFilesystemManager) Create(path string) (io.WriteCloser, error) {
	path = m.abs(path)
	if err := m.record("create", path); err != nil {
		return nil, err
	}
	if _, ok := m.files[path]; ok {
		return nil, &confbk.ConflictError{Kind: "file", Path: path}
	}
	f := &MockFile{Permissions: 0644, ModTime: time.Now()}
	m.files[path] = f
	return &mockWriter{file: f}, nil
}

func (m *MockFilesystemManager) Stat(path string) (fs.FileInfo, error) {
	path = m.abs(path)
	f, ok := m.files[path]
	if !ok {
		return nil, &fs.PathError{Op: "stat", Path: path, Err: fs.ErrNotExist}
	}
	return m.info(path, f), nil
}

func (m *MockFilesystemManager) Exists(path string) (bool, error) {
	_, ok := m.files[m.abs(path)]
	return ok, nil
}

func (m *MockFilesystemManager) Mkdir(path string) error {
	path = m.abs(path)
	if err := m.record("mkdir", path); err != nil {
		return err
	}
	if _, ok := m.files[path]; ok {
		return &confbk.ConflictError{Kind: "directory", Path: path}
	}
	if parent, ok := m.files[filepath.Dir(path)]; !ok || !parent.IsDirectory {
		return &confbk.IOError{Op: "create directory", Path: path, Err: fs.ErrNotExist}
	}
	m.AddDirectory(path)
	return nil
}

func (m *MockFilesystemManager) Copy(entry *confbk.Entry, dest, skip string) error {
	dest = m.abs(dest)
	if err := m.record("copy", dest); err != nil {
		return err
	}
	src := entry.Path()
	if skip != "" {
		skip = m.abs(skip)
	}

	for _, p := range m.Paths(src) {
		if skip != "" && (p == skip || strings.HasPrefix(p, skip+"/")) {
			continue
		}
		f := m.files[p]
		target := dest + strings.TrimPrefix(p, src)
		if f.IsDirectory {
			m.AddDirectory(target)
			continue
		}
		m.addParents(target)
		m.files[target] = &MockFile{
			Content:     slices.Clone(f.Content),
			Permissions: f.Permissions,
			ModTime:     f.ModTime,
		}
	}
	return nil
}

func (m *MockFilesystemManager) RemoveAll(path string) error {
	path = m.abs(path)
	if err := m.record("remove", path); err != nil {
		return err
	}
	for _, p := range m.Paths(path) {
		delete(m.files, p)
	}
	return nil
}

func (m *MockFilesystemManager) info(path string, f *MockFile) fs.FileInfo {
	return &mockFileInfo{
		name:    filepath.Base(path),
		size:    int64(len(f.Content)),
		mode:    f.Permissions,
		modTime: f.ModTime,
		isDir:   f.IsDirectory,
	}
}

type mockWriter struct {
	file *MockFile
	buf  bytes.Buffer
}

func (w *mockWriter) Write(p []byte) (int, error) { return w.buf.Write(p) }

func (w *mockWriter) Close() error {
	w.file.Content = w.buf.Bytes()
	return nil
}

type mockFileInfo struct {
	name    string
	size    int64
	mode    fs.FileMode
	modTime time.Time
	isDir   bool
}

func (m *mockFileInfo) Name() string       { return m.name }
func (m *mockFileInfo) Size() int64        { return m.size }
func (m *mockFileInfo) Mode() fs.FileMode  { return m.mode }
func (m *mockFileInfo) ModTime() time.Time { return m.modTime }
func (m *mockFileInfo) IsDir() bool        { return m.isDir }
func (m *mockFileInfo) Sys() any           { return nil }

// Compile-time check that MockFilesystemManager implements confbk.FilesystemManager interface
var _ confbk.FilesystemManager = (*MockFilesystemManager)(nil)
