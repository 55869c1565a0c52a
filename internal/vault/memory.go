package vault

import (
	"bytes"
	"fmt"
	"io"
	"slices"
	"sync"

	"confbk/internal/confbk"
)

// MemoryVault keeps objects in memory. It is safe for concurrent use and
// intended for tests.
type MemoryVault struct {
	name    string
	objects map[string][]byte
	mu      sync.RWMutex
}

// NewMemoryVault creates a new in-memory vault with the given name.
func NewMemoryVault(name string) *MemoryVault {
	return &MemoryVault{
		name:    name,
		objects: make(map[string][]byte),
	}
}

func (m *MemoryVault) Name() string { return m.name }

// Put stores r under key; an existing key is a conflict.
func (m *MemoryVault) Put(key string, r io.Reader, size int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read object: %w", err)
	}
	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.objects[key]; ok {
		return &confbk.ConflictError{Kind: "vault object", Path: key}
	}
	m.objects[key] = data
	return nil
}

// Get writes the object stored under key to w.
func (m *MemoryVault) Get(key string, w io.Writer) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.objects[key]
	if !ok {
		return &confbk.NotFoundError{Path: key, Reason: "No such object in vault " + m.name}
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write object: %w", err)
	}
	return nil
}

// Keys returns the stored keys in sorted order.
func (m *MemoryVault) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// ValidateSetup always succeeds for in-memory vault.
func (m *MemoryVault) ValidateSetup() error {
	return nil
}

// Compile-time check that MemoryVault implements confbk.Vault interface
var _ confbk.Vault = (*MemoryVault)(nil)
