package app

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"confbk/internal/archive"
	"confbk/internal/confbk"
	"confbk/internal/config"
	"confbk/internal/database"
	"confbk/internal/encryption"
	"confbk/internal/fs"
	"confbk/internal/model"
	"confbk/internal/vault"
)

// App is the application layer between the CLI and the backup executor.
// It builds every dependency from config, turns requests into runs and
// records them in the history database. The caller must call Close.
type App struct {
	cfg       *config.Config
	fsmgr     *fs.OSFilesystemManager
	archiver  *archive.TarXZ
	encryptor confbk.Encryptor
	logger    confbk.Logger
	logFile   *logFile
	clock     confbk.Clock
	runID     string

	history *database.SQLiteDatabase
}

// Option customizes an App.
type Option func(*App)

// WithClock overrides the clock used for default output names.
func WithClock(c confbk.Clock) Option {
	return func(a *App) { a.clock = c }
}

// WithIDGenerator overrides how the run ID is produced.
func WithIDGenerator(g confbk.IDGenerator) Option {
	return func(a *App) { a.runID = g.New() }
}

// New creates an App from cfg. The history database is opened on first use.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{
		cfg:      cfg,
		fsmgr:    fs.NewOSFilesystemManager(cfg.Filesystem.Ignore),
		archiver: archive.NewTarXZ(),
		clock:    confbk.RealClock{},
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.runID == "" {
		a.runID = confbk.UUIDGenerator{}.New()
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}
	a.encryptor = enc

	logger, lf := newLogger(cfg.LogDir, a.runID)
	a.logger = &slogAdapter{l: logger}
	a.logFile = lf

	return a, nil
}

// RunID identifies this process in the log and the history database.
func (a *App) RunID() string { return a.runID }

// Encryptor returns the configured encryptor.
func (a *App) Encryptor() confbk.Encryptor { return a.encryptor }

// DefaultOutputPath returns the output directory used when none is given.
func (a *App) DefaultOutputPath() string {
	return confbk.DefaultOutputName(a.cfg.OutputPrefix, a.clock.Now())
}

// Backup validates the requested paths and runs the backup. Output for
// the user goes to stdout at the request's verbosity. Runs that reach the
// executor are recorded in the history database and the log; dry runs and
// rejected requests touch neither.
func (a *App) Backup(req confbk.Request, stdout io.Writer) (*confbk.Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	var v confbk.Vault
	if req.Vault != "" && !req.DryRun {
		var err error
		if v, err = vault.Lookup(a.cfg.Vaults, req.Vault); err != nil {
			return nil, err
		}
	}

	logger := a.logger
	if req.DryRun {
		logger = confbk.NewNopLogger()
	}
	logger.Info("backup requested", "request", req.String())

	validator := confbk.NewValidator(a.fsmgr, logger)
	entries, err := validator.Collect(req.Paths, req.Manifest)
	if err != nil {
		logger.Error("validation failed", "error", err)
		return nil, err
	}

	printer := confbk.NewPrinter(req.Level, stdout)
	svc := confbk.NewService(a.fsmgr, a.archiver, a.encryptor, v, printer, logger)
	opts := req.Options()

	if opts.DryRun {
		return svc.Run(entries, opts)
	}

	op := a.startOperation(opts.OutputPath, len(entries))
	res, runErr := svc.Run(entries, opts)
	if op != nil {
		if err := op.Finish(res, runErr); err != nil {
			a.logger.Warn("history not updated", "error", err)
		}
	}
	if runErr != nil {
		return nil, runErr
	}

	a.logger.Info("backup finished", "output", res.OutputPath, "archive", res.ArchivePath, "entries", res.Entries)
	return res, nil
}

// startOperation records the run. History is secondary to the backup
// itself, so failures are logged and the run goes ahead untracked.
func (a *App) startOperation(outputPath string, entries int) *Operation {
	history, err := a.History()
	if err != nil {
		a.logger.Warn("history unavailable", "error", err)
		return nil
	}
	abs, err := filepath.Abs(outputPath)
	if err != nil {
		abs = outputPath
	}
	op, err := StartOperation(history, a.runID, abs, entries)
	if err != nil {
		a.logger.Warn("history not updated", "error", err)
		return nil
	}
	return op
}

// History opens the run history database on first use.
func (a *App) History() (*database.SQLiteDatabase, error) {
	if a.history != nil {
		return a.history, nil
	}
	db, err := database.NewDatabaseFromConfig(a.cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("opening history: %w", err)
	}
	a.history = db
	return db, nil
}

// ListRuns returns up to limit recorded runs, newest first.
func (a *App) ListRuns(limit int) ([]*model.Run, error) {
	if limit <= 0 {
		return nil, confbk.Usagef("limit must be positive, got %d", limit)
	}
	history, err := a.History()
	if err != nil {
		return nil, err
	}
	return history.ListRuns(limit)
}

// InitKeys generates the encryption key pair.
func (a *App) InitKeys(passphrase string) error {
	if err := a.encryptor.Setup(passphrase); err != nil {
		a.logger.Error("key setup failed", "error", err)
		return err
	}
	a.logger.Info("encryption keys created")
	return nil
}

// Decrypt decrypts an encrypted archive to outPath. An empty outPath means
// the input path without its ".age" suffix. It returns the path written.
func (a *App) Decrypt(path, outPath, passphrase string) (string, error) {
	if outPath == "" {
		if !strings.HasSuffix(path, confbk.EncryptedExt) {
			return "", confbk.Usagef("%s does not end in %s; give --out", path, confbk.EncryptedExt)
		}
		outPath = strings.TrimSuffix(path, confbk.EncryptedExt)
	}

	ctx, err := a.encryptor.Unlock(passphrase)
	if err != nil {
		return "", err
	}

	in, err := a.fsmgr.Open(path)
	if err != nil {
		return "", err
	}
	defer in.Close()

	out, err := a.fsmgr.Create(outPath)
	if err != nil {
		return "", err
	}
	err = ctx.Decrypt(in, out)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		a.fsmgr.RemoveAll(outPath)
		return "", &confbk.IOError{Op: "decrypt", Path: path, Err: err}
	}

	a.logger.Info("archive decrypted", "path", path, "out", outPath)
	return outPath, nil
}

// Extract unpacks a .tar.xz archive into destDir.
func (a *App) Extract(path, destDir string) error {
	if _, err := a.fsmgr.Resolve(path); err != nil {
		return err
	}
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return &confbk.IOError{Op: "create directory", Path: destDir, Err: err}
	}
	if err := a.archiver.Extract(path, destDir); err != nil {
		return &confbk.IOError{Op: "extract", Path: path, Err: err}
	}
	a.logger.Info("archive extracted", "path", path, "dest", destDir)
	return nil
}

// Close closes the history database and the log file.
func (a *App) Close() error {
	var firstErr error
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			firstErr = fmt.Errorf("closing history: %w", err)
		}
	}
	if a.logFile != nil {
		if err := a.logFile.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing log: %w", err)
		}
	}
	return firstErr
}
