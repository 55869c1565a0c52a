package confbk

import (
	"io/fs"
	"path/filepath"
)

// Kind classifies a validated entry.
type Kind int

const (
	File Kind = iota + 1
	Directory
)

func (k Kind) String() string {
	switch k {
	case File:
		return "file"
	case Directory:
		return "directory"
	default:
		return "unknown"
	}
}

// Entry is a file or directory that passed validation.
// Entries are created by FilesystemManager.Resolve.
type Entry struct {
	source  string // as the user wrote it
	absPath string
	kind    Kind
	info    fs.FileInfo
}

// NewEntry creates an Entry from its components.
// This is primarily for use by FilesystemManager implementations.
func NewEntry(source, absPath string, kind Kind, info fs.FileInfo) *Entry {
	return &Entry{
		source:  source,
		absPath: absPath,
		kind:    kind,
		info:    info,
	}
}

// Source returns the path exactly as it was requested.
func (e *Entry) Source() string { return e.source }

// Path returns the absolute path.
func (e *Entry) Path() string { return e.absPath }

// Kind returns whether the entry is a file or a directory.
func (e *Entry) Kind() Kind { return e.kind }

// IsDir reports whether the entry is a directory.
func (e *Entry) IsDir() bool { return e.kind == Directory }

// Info returns the stat info captured during validation.
func (e *Entry) Info() fs.FileInfo { return e.info }

func (e *Entry) String() string { return e.source }

// Destination returns where the entry is copied inside outDir.
//
// A relative source that stays below the working directory keeps its
// directory components ("sub/app.conf" -> outDir/sub/app.conf). Anything
// else lands under its base name ("/etc/hosts" -> outDir/hosts).
func Destination(outDir string, e *Entry) string {
	src := filepath.Clean(e.source)
	if src != "." && filepath.IsLocal(src) {
		return filepath.Join(outDir, src)
	}
	return filepath.Join(outDir, filepath.Base(e.absPath))
}
