package confbk

import (
	"fmt"
	"time"
)

// Archive file extensions.
const (
	ArchiveExt   = ".tar.xz"
	EncryptedExt = ".age"
)

// Request is everything one backup invocation was asked to do.
// It is built once by the CLI and not modified afterwards.
type Request struct {
	Paths      []string // explicit list, in order
	Manifest   string   // optional manifest file
	OutputPath string
	DryRun     bool
	Compress   bool
	Encrypt    bool
	Vault      string // vault name; empty for none
	Level      Level
}

// Validate checks option combinations. It never touches the filesystem.
func (r Request) Validate() error {
	if len(r.Paths) == 0 && r.Manifest == "" {
		return Usagef("nothing to back up: give --file or --list")
	}
	if r.OutputPath == "" {
		return Usagef("output path must not be empty")
	}
	if r.Encrypt && !r.Compress {
		return Usagef("--encrypt requires --tar-xz")
	}
	if r.Vault != "" && !r.Compress {
		return Usagef("--vault requires --tar-xz")
	}
	return nil
}

// Options returns the executor options for the request.
func (r Request) Options() Options {
	return Options{
		OutputPath: r.OutputPath,
		DryRun:     r.DryRun,
		Compress:   r.Compress,
		Encrypt:    r.Encrypt,
		Upload:     r.Vault != "",
	}
}

func (r Request) String() string {
	return fmt.Sprintf("Request{out: %q, dry_run: %t, level: %s, file: %q, list: %q, tar_xz: %t, encrypt: %t, vault: %q}",
		r.OutputPath, r.DryRun, r.Level, r.Manifest, r.Paths, r.Compress, r.Encrypt, r.Vault)
}

// DefaultOutputName returns prefix followed by the local date as YYYY_MM_DD.
func DefaultOutputName(prefix string, now time.Time) string {
	return prefix + now.Format("2006_01_02")
}

// Options controls one Service.Run.
type Options struct {
	OutputPath string
	DryRun     bool
	Compress   bool
	Encrypt    bool
	Upload     bool
}

// Result describes what a successful run produced.
type Result struct {
	OutputPath  string // uncompressed directory; removed when Compress is set
	ArchivePath string // final artifact, empty unless compressed
	Entries     int
	VaultKey    string
}
