package local

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

func newTestBackend(t *testing.T) *LocalBackend {
	t.Helper()
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "dir"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "dir", "a.txt"), []byte("0123456789"), 0644); err != nil {
		t.Fatal(err)
	}
	b, err := New(Config{RootPath: root})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return b
}

func TestNewValidation(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected error for empty root")
	}

	missing := filepath.Join(t.TempDir(), "missing")
	if _, err := New(Config{RootPath: missing}); err == nil {
		t.Error("expected error for missing root without create_dirs")
	}
	if _, err := New(Config{RootPath: missing, CreateDirs: true}); err != nil {
		t.Errorf("create_dirs: %v", err)
	}

	file := filepath.Join(t.TempDir(), "f")
	os.WriteFile(file, nil, 0644)
	if _, err := New(Config{RootPath: file}); err == nil {
		t.Error("expected error for non-directory root")
	}
}

func TestNewFromJSON(t *testing.T) {
	root := t.TempDir()
	raw, _ := json.Marshal(Config{RootPath: root})
	b, err := NewFromJSON(raw)
	if err != nil {
		t.Fatalf("NewFromJSON: %v", err)
	}
	if b.Root() != root || b.Type() != "local" {
		t.Errorf("root=%s type=%s", b.Root(), b.Type())
	}
	if _, err := NewFromJSON([]byte("{")); err == nil {
		t.Error("expected parse error")
	}
}

func TestGetObject(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	tests := []struct {
		name           string
		offset, length int64
		want           string
		wantSize       int64
	}{
		{"full", 0, 0, "0123456789", 10},
		{"range", 2, 3, "234", 3},
		{"offset", 7, 0, "789", 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rc, size, err := b.GetObject(ctx, "dir/a.txt", tt.offset, tt.length)
			if err != nil {
				t.Fatalf("GetObject: %v", err)
			}
			defer rc.Close()
			data, _ := io.ReadAll(rc)
			if string(data) != tt.want || size != tt.wantSize {
				t.Errorf("got %q size %d, want %q size %d", data, size, tt.want, tt.wantSize)
			}
		})
	}

	if _, _, err := b.GetObject(ctx, "dir", 0, 0); err == nil {
		t.Error("expected error opening a directory")
	}
	if _, _, err := b.GetObject(ctx, "nope", 0, 0); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("missing key error = %v, want fs.ErrNotExist", err)
	}
}

func TestKeysStayInsideRoot(t *testing.T) {
	b := newTestBackend(t)
	outside := filepath.Join(filepath.Dir(b.Root()), "secret.txt")
	os.WriteFile(outside, []byte("x"), 0644)
	defer os.Remove(outside)

	if _, _, err := b.GetObject(context.Background(), "../secret.txt", 0, 0); err == nil {
		t.Error("expected ../ key to stay inside root")
	}
}

func TestObjectExistsStatReadDir(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	if ok, err := b.ObjectExists(ctx, "dir/a.txt"); err != nil || !ok {
		t.Errorf("ObjectExists(file) = %v, %v", ok, err)
	}
	if ok, _ := b.ObjectExists(ctx, "dir"); ok {
		t.Error("ObjectExists(dir) should be false")
	}
	if ok, err := b.ObjectExists(ctx, "missing"); err != nil || ok {
		t.Errorf("ObjectExists(missing) = %v, %v", ok, err)
	}

	info, err := b.Stat(ctx, "dir")
	if err != nil || !info.IsDir() {
		t.Errorf("Stat(dir) = %v, %v", info, err)
	}

	entries, err := b.ReadDir(ctx, "dir")
	if err != nil || len(entries) != 1 || entries[0].Name() != "a.txt" {
		t.Errorf("ReadDir = %v, %v", entries, err)
	}
}
