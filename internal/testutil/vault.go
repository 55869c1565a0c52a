package testutil

import (
	"confbk/internal/vault"
)

// NewTestVault creates a new in-memory vault named "test-vault".
func NewTestVault() *vault.MemoryVault {
	return vault.NewMemoryVault("test-vault")
}
