package app

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"confbk/internal/archive"
	"confbk/internal/confbk"
	"confbk/internal/config"
	"confbk/internal/model"
	"confbk/internal/testutil"
)

// newTestApp builds an App rooted in a fresh temp dir, which is also the
// working directory for the test.
func newTestApp(t *testing.T) (*App, *config.Config, string) {
	t.Helper()
	base := t.TempDir()
	work := filepath.Join(base, "work")
	if err := os.MkdirAll(work, 0755); err != nil {
		t.Fatal(err)
	}
	t.Chdir(work)

	cfg := config.NewConfig(filepath.Join(base, "home"))
	cfg.Database = config.DatabaseConfig{Type: "memory"}
	cfg.Encryption.Type = "test"
	cfg.Vaults = []config.VaultConfig{
		{Type: "filesystem", Name: "local", FSVaultRoot: filepath.Join(base, "vault")},
	}

	a, err := New(cfg, WithClock(testutil.FixedClock()), WithIDGenerator(testutil.NewStubIDGenerator()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a, cfg, base
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestApp_DefaultOutputPath(t *testing.T) {
	a, _, _ := newTestApp(t)
	if got, want := a.DefaultOutputPath(), "confbk-2026_10_17"; got != want {
		t.Errorf("DefaultOutputPath() = %q, want %q", got, want)
	}
	if got := a.RunID(); got != "run-1" {
		t.Errorf("RunID() = %q, want run-1", got)
	}
}

func TestApp_Backup_Copy(t *testing.T) {
	a, _, _ := newTestApp(t)
	writeFile(t, "app.conf", "a=1\n")
	writeFile(t, "sub/nested.conf", "b=2\n")

	var stdout bytes.Buffer
	res, err := a.Backup(confbk.Request{
		Paths:      []string{"app.conf", "sub"},
		OutputPath: "out",
	}, &stdout)
	if err != nil {
		t.Fatalf("Backup() error = %v", err)
	}
	if stdout.String() != "Backing up\n" {
		t.Errorf("stdout = %q, want %q", stdout.String(), "Backing up\n")
	}
	if res.Entries != 2 || res.ArchivePath != "" {
		t.Errorf("Result = %+v", res)
	}

	for path, want := range map[string]string{
		"out/app.conf":        "a=1\n",
		"out/sub/nested.conf": "b=2\n",
	} {
		got, err := os.ReadFile(path)
		if err != nil {
			t.Errorf("reading %s: %v", path, err)
			continue
		}
		if string(got) != want {
			t.Errorf("%s = %q, want %q", path, got, want)
		}
	}

	runs, err := a.ListRuns(10)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("ListRuns() returned %d runs, want 1", len(runs))
	}
	if runs[0].RunID != "run-1" || runs[0].Status != model.RunStatusSuccess || runs[0].EntryCount != 2 {
		t.Errorf("run = %+v", runs[0])
	}
}

func TestApp_Backup_DryRun(t *testing.T) {
	a, _, _ := newTestApp(t)
	writeFile(t, "app.conf", "a=1\n")

	var stdout bytes.Buffer
	_, err := a.Backup(confbk.Request{
		Paths:      []string{"app.conf"},
		OutputPath: "out",
		DryRun:     true,
	}, &stdout)
	if err != nil {
		t.Fatalf("Backup() error = %v", err)
	}

	want := "Files to be backed up:\n    app.conf\n"
	if stdout.String() != want {
		t.Errorf("stdout = %q, want %q", stdout.String(), want)
	}
	if _, err := os.Stat("out"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("dry run created output: %v", err)
	}
	runs, err := a.ListRuns(10)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("dry run recorded %d runs", len(runs))
	}
}

func TestApp_Backup_Errors(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(t *testing.T)
		req      confbk.Request
		wantCode confbk.ExitCode
		wantRun  string // expected history status, empty for no record
	}{
		{
			name:     "missing path",
			req:      confbk.Request{Paths: []string{"nope.conf"}, OutputPath: "out"},
			wantCode: confbk.ExitNotFound,
		},
		{
			name:     "encrypt without tar-xz",
			req:      confbk.Request{Paths: []string{"app.conf"}, OutputPath: "out", Encrypt: true},
			wantCode: confbk.ExitUsage,
		},
		{
			name:     "unknown vault",
			req:      confbk.Request{Paths: []string{"app.conf"}, OutputPath: "out", Compress: true, Vault: "remote"},
			wantCode: confbk.ExitUsage,
		},
		{
			name: "output exists",
			setup: func(t *testing.T) {
				if err := os.Mkdir("out", 0755); err != nil {
					t.Fatal(err)
				}
			},
			req:      confbk.Request{Paths: []string{"app.conf"}, OutputPath: "out"},
			wantCode: confbk.ExitConflict,
			wantRun:  model.RunStatusError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, _, _ := newTestApp(t)
			writeFile(t, "app.conf", "a=1\n")
			if tt.setup != nil {
				tt.setup(t)
			}

			_, err := a.Backup(tt.req, &bytes.Buffer{})
			if err == nil {
				t.Fatal("Backup() succeeded, want error")
			}
			if got := confbk.ExitCodeFor(err); got != tt.wantCode {
				t.Errorf("ExitCodeFor(%v) = %d, want %d", err, got, tt.wantCode)
			}

			runs, err := a.ListRuns(10)
			if err != nil {
				t.Fatalf("ListRuns() error = %v", err)
			}
			if tt.wantRun == "" {
				if len(runs) != 0 {
					t.Errorf("recorded %d runs, want none", len(runs))
				}
				return
			}
			if len(runs) != 1 || runs[0].Status != tt.wantRun {
				t.Errorf("runs = %+v, want one with status %q", runs, tt.wantRun)
			}
		})
	}
}

func TestApp_Backup_EncryptUploadDecryptExtract(t *testing.T) {
	a, _, base := newTestApp(t)
	writeFile(t, "app.conf", "a=1\n")
	writeFile(t, "etc/hosts", "127.0.0.1 localhost\n")

	res, err := a.Backup(confbk.Request{
		Paths:      []string{"app.conf", "etc"},
		OutputPath: "out",
		Compress:   true,
		Encrypt:    true,
		Vault:      "local",
		Level:      confbk.Silent,
	}, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("Backup() error = %v", err)
	}
	if res.ArchivePath != "out.tar.xz.age" || res.VaultKey != "out.tar.xz.age" {
		t.Errorf("Result = %+v", res)
	}
	for _, gone := range []string{"out", "out.tar.xz"} {
		if _, err := os.Stat(gone); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("%s still present: %v", gone, err)
		}
	}
	if _, err := os.Stat(filepath.Join(base, "vault", "out.tar.xz.age")); err != nil {
		t.Errorf("vault object missing: %v", err)
	}

	plain, err := a.Decrypt("out.tar.xz.age", "", "")
	if err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if plain != "out.tar.xz" {
		t.Errorf("Decrypt() wrote %q, want out.tar.xz", plain)
	}

	if err := a.Extract(plain, "restore"); err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	got, err := os.ReadFile(filepath.Join("restore", "out", "etc", "hosts"))
	if err != nil {
		t.Fatalf("reading restored file: %v", err)
	}
	if string(got) != "127.0.0.1 localhost\n" {
		t.Errorf("restored content = %q", got)
	}

	members, err := archive.NewTarXZ().List(plain)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(members) != 4 {
		t.Errorf("archive members = %v, want 4", members)
	}

	runs, err := a.ListRuns(1)
	if err != nil || len(runs) != 1 {
		t.Fatalf("ListRuns() = %v, %v", runs, err)
	}
	if filepath.Base(runs[0].ArchivePath) != "out.tar.xz.age" {
		t.Errorf("recorded archive = %q", runs[0].ArchivePath)
	}
}

func TestApp_Decrypt_Errors(t *testing.T) {
	a, _, _ := newTestApp(t)
	writeFile(t, "plain.tar.xz", "not encrypted")

	if _, err := a.Decrypt("plain.tar.xz", "", ""); confbk.ExitCodeFor(err) != confbk.ExitUsage {
		t.Errorf("Decrypt() without .age suffix error = %v, want usage error", err)
	}
	if _, err := a.Decrypt("missing.age", "", ""); confbk.ExitCodeFor(err) != confbk.ExitNotFound {
		t.Errorf("Decrypt() of missing file error = %v, want not found", err)
	}

	_, err := a.Decrypt("plain.tar.xz", "decoded", "")
	if err == nil {
		t.Fatal("Decrypt() of plaintext succeeded")
	}
	if _, statErr := os.Stat("decoded"); !errors.Is(statErr, os.ErrNotExist) {
		t.Errorf("partial output left behind: %v", statErr)
	}
}

func TestApp_InitKeys(t *testing.T) {
	a, _, _ := newTestApp(t)
	if err := a.InitKeys("secret"); err != nil {
		t.Fatalf("InitKeys() error = %v", err)
	}
	if _, err := a.Encryptor().Unlock("other"); err == nil {
		t.Error("Unlock() with wrong passphrase succeeded")
	}
}

func TestApp_ListRuns_InvalidLimit(t *testing.T) {
	a, _, _ := newTestApp(t)
	if _, err := a.ListRuns(0); confbk.ExitCodeFor(err) != confbk.ExitUsage {
		t.Errorf("ListRuns(0) error = %v, want usage error", err)
	}
}

func TestApp_WritesLog(t *testing.T) {
	a, cfg, _ := newTestApp(t)
	writeFile(t, "app.conf", "a=1\n")

	if _, err := a.Backup(confbk.Request{Paths: []string{"app.conf"}, OutputPath: "out"}, &bytes.Buffer{}); err != nil {
		t.Fatalf("Backup() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(cfg.LogDir, LogFile))
	if err != nil {
		t.Fatalf("reading log: %v", err)
	}
	if !bytes.Contains(data, []byte("\tINFO\trun-1\tbackup finished\t")) {
		t.Errorf("log missing finish line:\n%s", data)
	}
}

func TestApp_Backup_NoLogWithoutRun(t *testing.T) {
	tests := []struct {
		name string
		req  confbk.Request
	}{
		{
			name: "dry run",
			req:  confbk.Request{Paths: []string{"app.conf"}, OutputPath: "out", DryRun: true},
		},
		{
			name: "encrypt without tar-xz",
			req:  confbk.Request{Paths: []string{"app.conf"}, OutputPath: "out", Encrypt: true},
		},
		{
			name: "unknown vault",
			req:  confbk.Request{Paths: []string{"app.conf"}, OutputPath: "out", Compress: true, Vault: "remote"},
		},
		{
			name: "vault with dry run",
			req:  confbk.Request{Paths: []string{"app.conf"}, OutputPath: "out", Compress: true, DryRun: true, Vault: "nope"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, cfg, _ := newTestApp(t)
			writeFile(t, "app.conf", "a=1\n")

			a.Backup(tt.req, &bytes.Buffer{})
			if err := a.Close(); err != nil {
				t.Fatalf("Close() error = %v", err)
			}
			if _, err := os.Stat(cfg.LogDir); !errors.Is(err, os.ErrNotExist) {
				t.Errorf("log directory created: %v", err)
			}
		})
	}
}
