package vault

import (
	"context"
	"fmt"

	"confbk/internal/confbk"
	"confbk/internal/config"
)

// NewVaultFromConfig creates a Vault implementation based on the vault config type.
func NewVaultFromConfig(cfg config.VaultConfig) (confbk.Vault, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("vault of type %q has no name", cfg.Type)
	}
	switch cfg.Type {
	case "memory":
		return NewMemoryVault(cfg.Name), nil
	case "s3":
		return NewS3Vault(context.Background(), cfg)
	case "filesystem":
		if cfg.FSVaultRoot == "" {
			return nil, fmt.Errorf("filesystem vault requires fs_vault_root to be set")
		}
		return NewFileSystemVault(cfg.Name, cfg.FSVaultRoot)
	default:
		return nil, fmt.Errorf("unknown vault type: %s", cfg.Type)
	}
}

// Lookup finds the vault named name in vaults and builds it.
func Lookup(vaults []config.VaultConfig, name string) (confbk.Vault, error) {
	for _, vc := range vaults {
		if vc.Name == name {
			return NewVaultFromConfig(vc)
		}
	}
	return nil, confbk.Usagef("no vault named %q in configuration", name)
}
