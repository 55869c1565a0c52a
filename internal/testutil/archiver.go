package testutil

import (
	"errors"

	"confbk/internal/confbk"
)

// ErrArchive is returned by FailingArchiver.
var ErrArchive = errors.New("archive failed")

// FailingArchiver fails Archive, or only Verify when FailVerify is set.
// Archive never writes anything.
type FailingArchiver struct {
	FailVerify bool
}

func (a *FailingArchiver) Archive(dir, dest string) (int, error) {
	if a.FailVerify {
		return 1, nil
	}
	return 0, ErrArchive
}

func (a *FailingArchiver) Verify(path string) (int, error) {
	return 0, ErrArchive
}

// MockArchiver writes a placeholder archive into a MockFilesystemManager
// and reports Members members for both Archive and Verify.
type MockArchiver struct {
	Members  int
	Archived []string

	fsmgr *MockFilesystemManager
}

// NewMockArchiver creates a MockArchiver writing into fsmgr.
func NewMockArchiver(fsmgr *MockFilesystemManager, members int) *MockArchiver {
	return &MockArchiver{Members: members, fsmgr: fsmgr}
}

func (a *MockArchiver) Archive(dir, dest string) (int, error) {
	a.Archived = append(a.Archived, dir)
	a.fsmgr.AddFile(dest, []byte("archive of "+dir))
	return a.Members, nil
}

func (a *MockArchiver) Verify(path string) (int, error) {
	if a.fsmgr.File(path) == nil {
		return 0, ErrArchive
	}
	return a.Members, nil
}

var (
	_ confbk.Archiver = (*FailingArchiver)(nil)
	_ confbk.Archiver = (*MockArchiver)(nil)
)
