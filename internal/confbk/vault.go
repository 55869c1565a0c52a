package confbk

import "io"

// Vault is a storage backend that receives a copy of finished archives.
type Vault interface {
	// Name returns the configured vault name.
	Name() string

	// Put stores r under key. size is the number of bytes that will be
	// read from r. An existing key yields a *ConflictError.
	Put(key string, r io.Reader, size int64) error

	// Get retrieves the object stored under key and writes it to w.
	Get(key string, w io.Writer) error

	// ValidateSetup verifies that the vault is accessible.
	ValidateSetup() error
}
