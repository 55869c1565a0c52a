package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// DefaultOutputPrefix starts the default output directory name.
const DefaultOutputPrefix = "confbk-"

// Config represents the confbk configuration file.
type Config struct {
	OutputPrefix string           `toml:"output_prefix"`
	LogDir       string           `toml:"log_dir"`
	Vaults       []VaultConfig    `toml:"vaults"`
	Encryption   EncryptionConfig `toml:"encryption"`
	Database     DatabaseConfig   `toml:"database"`
	Filesystem   FilesystemConfig `toml:"filesystem"`
}

// EncryptionConfig holds paths to the age key pair used for encryption.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "age" (default) or "test"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// FilesystemConfig holds filesystem-related settings.
type FilesystemConfig struct {
	// Ignore lists glob patterns skipped inside copied directories.
	Ignore []string `toml:"ignore"`
}

// VaultConfig represents configuration for a vault backend.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type VaultConfig struct {
	Type string `toml:"type"` // "memory", "s3", or "filesystem"
	Name string `toml:"name"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket          string `toml:"s3_bucket,omitempty"`
	S3Prefix          string `toml:"s3_prefix,omitempty"`
	S3Region          string `toml:"s3_region,omitempty"`
	S3Endpoint        string `toml:"s3_endpoint,omitempty"`
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSVaultRoot string `toml:"fs_vault_root,omitempty"`
}

// DatabaseConfig configures the run history database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// NewConfig returns the built-in defaults with data kept below baseDir.
func NewConfig(baseDir string) *Config {
	cfg := &Config{}
	cfg.ApplyDefaults(baseDir)
	return cfg
}

// ApplyDefaults fills every empty field with its default below baseDir.
// Values already set are kept.
func (c *Config) ApplyDefaults(baseDir string) {
	setDefault(&c.OutputPrefix, DefaultOutputPrefix)
	setDefault(&c.LogDir, filepath.Join(baseDir, "log"))
	setDefault(&c.Database.Type, "sqlite")
	if c.Database.Type == "sqlite" {
		setDefault(&c.Database.DataDir, filepath.Join(baseDir, "db"))
	}
	setDefault(&c.Encryption.Type, "age")
	setDefault(&c.Encryption.PublicKeyPath, filepath.Join(baseDir, "keys", "confbk.pub"))
	setDefault(&c.Encryption.PrivateKeyPath, filepath.Join(baseDir, "keys", "confbk.key"))
}

func setDefault(field *string, value string) {
	if *field == "" {
		*field = value
	}
}

// Validate checks the parts of the config that factories cannot.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Vaults))
	for i, v := range c.Vaults {
		if v.Name == "" {
			return fmt.Errorf("vaults[%d]: name is required", i)
		}
		if seen[v.Name] {
			return fmt.Errorf("vaults[%d]: duplicate vault name %q", i, v.Name)
		}
		seen[v.Name] = true
	}
	switch c.Database.Type {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("database: unknown type %q", c.Database.Type)
	}
	return nil
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader. Unknown keys are
// rejected so typos do not silently fall back to defaults.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	md, err := toml.NewDecoder(r).Decode(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown config key %q", undecoded[0].String())
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// Load reads the config at path, falling back to the built-in defaults
// when the file does not exist. Missing fields are defaulted below baseDir.
func Load(path, baseDir string) (*Config, error) {
	cfg, err := ReadFromFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return NewConfig(baseDir), nil
	}
	if err != nil {
		return nil, err
	}

	cfg.ApplyDefaults(baseDir)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
// This is an internal helper and should not be exported.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// The file may hold S3 secrets.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}

	m := &Manager{}
	err = m.Write(f, cfg)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// ErrExists is returned by Init when the config file is already present.
var ErrExists = errors.New("config file already exists")

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w at %s", ErrExists, path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
