package confbk

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Validator confirms that requested paths exist before anything is copied.
type Validator struct {
	fsmgr  FilesystemManager
	logger Logger
}

// NewValidator creates a Validator.
func NewValidator(fsmgr FilesystemManager, logger Logger) *Validator {
	if logger == nil {
		logger = NewNopLogger()
	}
	return &Validator{fsmgr: fsmgr, logger: logger}
}

// Validate resolves each candidate in order. It stops at the first path
// that is not an existing file or directory; there is no partial result.
func (v *Validator) Validate(candidates []string) ([]*Entry, error) {
	entries := make([]*Entry, 0, len(candidates))
	for _, c := range candidates {
		e, err := v.fsmgr.Resolve(c)
		if err != nil {
			v.logger.Error("validation failed", "path", c, "error", err)
			return nil, err
		}
		v.logger.Debug("path validated", "path", c, "kind", e.Kind().String())
		entries = append(entries, e)
	}
	return entries, nil
}

// LoadManifest confirms the manifest exists and returns its candidate paths.
func (v *Validator) LoadManifest(path string) ([]string, error) {
	manifest, err := v.fsmgr.Resolve(path)
	if err != nil {
		return nil, err
	}
	if manifest.IsDir() {
		return nil, &NotFoundError{Path: path, Reason: "Is a directory, not a manifest file"}
	}

	f, err := v.fsmgr.Open(manifest.Path())
	if err != nil {
		return nil, &IOError{Op: "open manifest", Path: path, Err: err}
	}
	defer f.Close()

	paths, err := ParseManifest(f)
	if err != nil {
		return nil, &IOError{Op: "read manifest", Path: path, Err: err}
	}
	v.logger.Debug("manifest loaded", "path", path, "entries", len(paths))
	return paths, nil
}

// Collect validates the explicit list, then the manifest, and returns the
// explicit entries followed by the manifest entries.
func (v *Validator) Collect(explicit []string, manifest string) ([]*Entry, error) {
	entries, err := v.Validate(explicit)
	if err != nil {
		return nil, err
	}
	if manifest == "" {
		return entries, nil
	}

	candidates, err := v.LoadManifest(manifest)
	if err != nil {
		return nil, err
	}
	fromManifest, err := v.Validate(candidates)
	if err != nil {
		return nil, err
	}
	return append(entries, fromManifest...), nil
}

// ParseManifest reads a newline-delimited list of paths. Blank lines and
// lines starting with '#' are skipped; surrounding whitespace is trimmed.
func ParseManifest(r io.Reader) ([]string, error) {
	var paths []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		paths = append(paths, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning manifest: %w", err)
	}
	return paths, nil
}
