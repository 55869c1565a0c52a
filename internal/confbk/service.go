package confbk

import (
	"errors"
	"fmt"
	"path/filepath"
)

// Service is the backup executor. It copies validated entries into a new
// output directory and optionally archives, encrypts and uploads it.
// A Service performs one strictly linear run; it holds no state between runs.
type Service struct {
	fsmgr     FilesystemManager
	archiver  Archiver
	encryptor Encryptor
	vault     Vault
	printer   Printer
	logger    Logger
}

// NewService creates a Service with the provided dependencies.
// encryptor and vault may be nil when the run does not use them.
func NewService(fsmgr FilesystemManager, archiver Archiver, encryptor Encryptor, vault Vault, printer Printer, logger Logger) *Service {
	if logger == nil {
		logger = NewNopLogger()
	}
	return &Service{
		fsmgr:     fsmgr,
		archiver:  archiver,
		encryptor: encryptor,
		vault:     vault,
		printer:   printer,
		logger:    logger,
	}
}

// Run executes one backup. In dry-run mode it only lists the entries.
func (s *Service) Run(entries []*Entry, opts Options) (*Result, error) {
	if opts.DryRun {
		s.preview(entries)
		return &Result{OutputPath: opts.OutputPath, Entries: len(entries)}, nil
	}

	if err := s.preflight(opts); err != nil {
		return nil, err
	}
	dests, err := s.destinations(opts.OutputPath, entries)
	if err != nil {
		return nil, err
	}

	s.printer.Note("Backing up")

	if err := s.fsmgr.Mkdir(opts.OutputPath); err != nil {
		s.logger.Error("creating output directory", "path", opts.OutputPath, "error", err)
		return nil, err
	}
	s.logger.Info("output directory created", "path", opts.OutputPath)

	for i, e := range entries {
		dest := dests[i]
		if dest == "" {
			s.printer.Tracef("Skipping %q, already copied", e.Source())
			continue
		}
		s.printer.Tracef("Copying %q to %q", e.Source(), dest)
		if err := s.fsmgr.Copy(e, dest, opts.OutputPath); err != nil {
			s.logger.Error("copy failed", "source", e.Path(), "dest", dest, "error", err)
			return nil, err
		}
		s.logger.Debug("entry copied", "source", e.Path(), "dest", dest, "kind", e.Kind().String())
	}

	result := &Result{OutputPath: opts.OutputPath, Entries: len(entries)}
	if !opts.Compress {
		return result, nil
	}

	archivePath, err := s.compress(opts.OutputPath)
	if err != nil {
		return result, err
	}
	result.ArchivePath = archivePath

	if opts.Encrypt {
		encPath, err := s.encrypt(archivePath)
		if err != nil {
			return result, err
		}
		result.ArchivePath = encPath
	}

	if opts.Upload {
		key, err := s.upload(result.ArchivePath)
		if err != nil {
			return result, err
		}
		result.VaultKey = key
	}

	return result, nil
}

// preview prints the dry-run listing.
func (s *Service) preview(entries []*Entry) {
	s.printer.Note("Files to be backed up:")
	for _, e := range entries {
		s.printer.Notef("    %s", e.Source())
	}
}

// preflight rejects runs that would fail after the output directory exists.
func (s *Service) preflight(opts Options) error {
	if (opts.Encrypt || opts.Upload) && !opts.Compress {
		return Usagef("encryption and vault upload require compression")
	}
	if opts.Encrypt && (s.encryptor == nil || !s.encryptor.IsConfigured()) {
		return Usagef("encryption keys are not set up: run `confbk keys init`")
	}
	if opts.Upload && s.vault == nil {
		return Usagef("no vault configured for upload")
	}
	if s.archiver == nil && opts.Compress {
		return fmt.Errorf("no archiver available")
	}
	if !opts.Compress {
		return nil
	}

	targets := []string{opts.OutputPath + ArchiveExt}
	if opts.Encrypt {
		targets = append(targets, opts.OutputPath+ArchiveExt+EncryptedExt)
	}
	for _, t := range targets {
		exists, err := s.fsmgr.Exists(t)
		if err != nil {
			return &IOError{Op: "stat", Path: t, Err: err}
		}
		if exists {
			return &ConflictError{Kind: "archive", Path: t}
		}
	}
	return nil
}

// destinations maps each entry to its path below outDir. Two entries may
// only share a destination, or nest one inside the other, when one is
// already part of the other: the same path listed twice, or a path inside
// a listed directory. The covered entry gets an empty destination and is
// not copied again. Any other overlap is a conflict.
func (s *Service) destinations(outDir string, entries []*Entry) ([]string, error) {
	dests := make([]string, len(entries))
	for i, e := range entries {
		dests[i] = Destination(outDir, e)
	}

	for i, e := range entries {
		for j, other := range entries {
			if i == j || dests[j] == "" {
				continue
			}
			rel, ok := within(dests[j], dests[i])
			if !ok {
				continue
			}
			if rel == "." && e.Path() == other.Path() && j < i {
				dests[i] = ""
				break
			}
			if rel != "." && other.IsDir() && filepath.Join(other.Path(), rel) == e.Path() {
				dests[i] = ""
				break
			}
			if rel == "." && e.Path() == other.Path() {
				continue
			}
			s.logger.Error("destination conflict", "source", e.Path(), "other", other.Path(), "dest", dests[i])
			return nil, &ConflictError{Kind: "destination", Path: dests[i]}
		}
	}
	return dests, nil
}

// within reports whether p is parent or below it, and the relative path.
func within(parent, p string) (string, bool) {
	rel, err := filepath.Rel(parent, p)
	if err != nil || !filepath.IsLocal(rel) {
		return "", false
	}
	return rel, true
}

// compress archives dir next to itself and removes dir once the archive
// has been read back successfully. On any archive failure the directory is
// kept and no archive is left behind.
func (s *Service) compress(dir string) (string, error) {
	archivePath := dir + ArchiveExt
	s.printer.Tracef("Archiving %q to %q", dir, archivePath)

	written, err := s.archiver.Archive(dir, archivePath)
	if err != nil {
		s.logger.Error("archive failed", "dir", dir, "error", err)
		return "", &IOError{Op: "archive", Path: dir, Err: err}
	}

	read, err := s.archiver.Verify(archivePath)
	if err == nil && read != written {
		err = fmt.Errorf("archive holds %d members, wrote %d", read, written)
	}
	if err != nil {
		s.logger.Error("archive verification failed", "archive", archivePath, "error", err)
		if rmErr := s.fsmgr.RemoveAll(archivePath); rmErr != nil {
			s.logger.Warn("removing unreadable archive", "archive", archivePath, "error", rmErr)
		}
		return "", &IOError{Op: "verify archive", Path: archivePath, Err: err}
	}
	s.logger.Info("archive written", "archive", archivePath, "members", written)

	s.printer.Tracef("Removing %q", dir)
	if err := s.fsmgr.RemoveAll(dir); err != nil {
		s.logger.Error("removing uncompressed directory", "dir", dir, "error", err)
		return archivePath, err
	}
	return archivePath, nil
}

// encrypt writes archivePath+".age" and removes the plaintext archive.
// On failure the plaintext archive is kept.
func (s *Service) encrypt(archivePath string) (string, error) {
	encPath := archivePath + EncryptedExt
	s.printer.Tracef("Encrypting %q to %q", archivePath, encPath)

	in, err := s.fsmgr.Open(archivePath)
	if err != nil {
		return "", err
	}
	defer in.Close()

	out, err := s.fsmgr.Create(encPath)
	if err != nil {
		return "", err
	}

	err = s.encryptor.Encrypt(in, out)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		s.logger.Error("encryption failed", "archive", archivePath, "error", err)
		if rmErr := s.fsmgr.RemoveAll(encPath); rmErr != nil {
			s.logger.Warn("removing partial encrypted archive", "path", encPath, "error", rmErr)
		}
		return "", &IOError{Op: "encrypt", Path: archivePath, Err: err}
	}

	if err := s.fsmgr.RemoveAll(archivePath); err != nil {
		return encPath, err
	}
	s.logger.Info("archive encrypted", "path", encPath)
	return encPath, nil
}

// upload copies the final artifact into the vault under its base name.
func (s *Service) upload(path string) (string, error) {
	key := filepath.Base(path)
	s.printer.Tracef("Uploading %q to vault %q", path, s.vault.Name())

	info, err := s.fsmgr.Stat(path)
	if err != nil {
		return "", &IOError{Op: "stat", Path: path, Err: err}
	}
	f, err := s.fsmgr.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if err := s.vault.Put(key, f, info.Size()); err != nil {
		s.logger.Error("vault upload failed", "vault", s.vault.Name(), "key", key, "error", err)
		var conflict *ConflictError
		if errors.As(err, &conflict) {
			return "", err
		}
		return "", &IOError{Op: "upload", Path: path, Err: err}
	}
	s.logger.Info("archive uploaded", "vault", s.vault.Name(), "key", key, "size", info.Size())
	return key, nil
}
