package vault

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"confbk/internal/confbk"
)

func TestNewFileSystemVault(t *testing.T) {
	root := filepath.Join(t.TempDir(), "mnt", "vault")

	v, err := NewFileSystemVault("usb", root)
	if err != nil {
		t.Fatalf("NewFileSystemVault() error = %v", err)
	}
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		t.Errorf("vault root not created: %v", err)
	}
	if v.Name() != "usb" {
		t.Errorf("Name() = %q, want %q", v.Name(), "usb")
	}
}

func TestFileSystemVault_Put(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		data    string
		size    int64
		wantErr bool
	}{
		{
			name: "store archive",
			key:  "confbk-2026_10_17.tar.xz",
			data: "xz bytes",
			size: 8,
		},
		{
			name:    "size mismatch",
			key:     "short.tar.xz",
			data:    "hello",
			size:    100,
			wantErr: true,
		},
		{
			name: "empty object",
			key:  "empty.tar.xz",
			data: "",
			size: 0,
		},
		{
			name:    "key escapes root",
			key:     "../outside.tar.xz",
			data:    "x",
			size:    1,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			v, err := NewFileSystemVault("usb", root)
			if err != nil {
				t.Fatal(err)
			}

			err = v.Put(tt.key, strings.NewReader(tt.data), tt.size)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Put() error = %v, wantErr %v", err, tt.wantErr)
			}

			entries, _ := os.ReadDir(root)
			if tt.wantErr {
				if len(entries) != 0 {
					t.Errorf("failed Put left files behind: %v", entries)
				}
				return
			}
			data, err := os.ReadFile(filepath.Join(root, tt.key))
			if err != nil {
				t.Fatalf("reading stored object: %v", err)
			}
			if string(data) != tt.data {
				t.Errorf("content = %q, want %q", data, tt.data)
			}
			if len(entries) != 1 {
				t.Errorf("vault root holds %d entries, want 1", len(entries))
			}
		})
	}
}

func TestFileSystemVault_PutExistingKey(t *testing.T) {
	v, err := NewFileSystemVault("usb", t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	key := "confbk-2026_10_17.tar.xz.age"

	if err := v.Put(key, strings.NewReader("first"), 5); err != nil {
		t.Fatalf("first Put() error = %v", err)
	}
	err = v.Put(key, strings.NewReader("second"), 6)
	var conflict *confbk.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("second Put() error = %v, want ConflictError", err)
	}

	var buf bytes.Buffer
	if err := v.Get(key, &buf); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if buf.String() != "first" {
		t.Errorf("content = %q, want original %q", buf.String(), "first")
	}
}

func TestFileSystemVault_Get(t *testing.T) {
	v, err := NewFileSystemVault("usb", t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	t.Run("existing object", func(t *testing.T) {
		if err := v.Put("a.tar.xz", strings.NewReader("hello world"), 11); err != nil {
			t.Fatal(err)
		}
		var buf bytes.Buffer
		if err := v.Get("a.tar.xz", &buf); err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if buf.String() != "hello world" {
			t.Errorf("content = %q", buf.String())
		}
	})

	t.Run("missing object", func(t *testing.T) {
		var buf bytes.Buffer
		err := v.Get("nonexistent", &buf)
		var nf *confbk.NotFoundError
		if !errors.As(err, &nf) {
			t.Errorf("Get() error = %v, want NotFoundError", err)
		}
	})
}

func TestFileSystemVault_ValidateSetup(t *testing.T) {
	t.Run("valid root", func(t *testing.T) {
		v, err := NewFileSystemVault("usb", t.TempDir())
		if err != nil {
			t.Fatal(err)
		}
		if err := v.ValidateSetup(); err != nil {
			t.Errorf("ValidateSetup() error = %v", err)
		}
	})

	t.Run("root removed", func(t *testing.T) {
		root := filepath.Join(t.TempDir(), "vault")
		v, err := NewFileSystemVault("usb", root)
		if err != nil {
			t.Fatal(err)
		}
		if err := os.RemoveAll(root); err != nil {
			t.Fatal(err)
		}
		if err := v.ValidateSetup(); err == nil {
			t.Error("ValidateSetup() expected error for missing root")
		}
	})

	t.Run("root is a file", func(t *testing.T) {
		root := filepath.Join(t.TempDir(), "vault")
		v, err := NewFileSystemVault("usb", root)
		if err != nil {
			t.Fatal(err)
		}
		os.RemoveAll(root)
		if err := os.WriteFile(root, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
		if err := v.ValidateSetup(); err == nil {
			t.Error("ValidateSetup() expected error when root is a file")
		}
	})
}
