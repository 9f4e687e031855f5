package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"
)

func writeTree(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "sub"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "sub", "b.txt"), []byte("world"), 0644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestBuild(t *testing.T) {
	dir := writeTree(t)
	out := filepath.Join(t.TempDir(), "out.zip")

	if _, err := run(t, "--root", dir, "build", "/a.txt", "/sub", "/missing", "-o", out); err != nil {
		t.Fatalf("build: %v", err)
	}

	zr, err := zip.OpenReader(out)
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	defer zr.Close()

	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	if got := strings.Join(names, ","); got != "a.txt,sub/b.txt" {
		t.Errorf("entries = %s", got)
	}
}

func TestBuildBadFormat(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.rar")
	if _, err := run(t, "--root", t.TempDir(), "build", "/a", "-o", out, "--format", "rar"); err == nil {
		t.Fatal("expected error for unknown format")
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Errorf("output created for rejected format: %v", err)
	}
}

func TestResolve(t *testing.T) {
	dir := writeTree(t)

	got, err := run(t, "--root", dir, "resolve", "/a.txt", "/sub", "/nope")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(got), "\n")
	if len(lines) != 4 {
		t.Fatalf("output:\n%s", got)
	}
	checks := []struct {
		line int
		want []string
	}{
		{1, []string{"/a.txt", "local", "file"}},
		{2, []string{"/sub", "local", "dir"}},
		{3, []string{"/nope", "not found"}},
	}
	for _, c := range checks {
		for _, w := range c.want {
			if !strings.Contains(lines[c.line], w) {
				t.Errorf("line %q missing %q", lines[c.line], w)
			}
		}
	}

	if _, err := run(t, "--root", dir, "resolve"); err == nil {
		t.Error("resolve without paths should fail")
	}
}

func TestProvidersFromFile(t *testing.T) {
	a, b := t.TempDir(), t.TempDir()
	file := filepath.Join(t.TempDir(), "providers.yaml")
	yml := "providers:\n" +
		"  - name: primary\n    type: fs\n    config:\n      root_path: " + a + "\n" +
		"  - name: fallback\n    type: fs\n    config:\n      root_path: " + b + "\n"
	if err := os.WriteFile(file, []byte(yml), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := run(t, "--providers", file, "providers")
	if err != nil {
		t.Fatalf("providers: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(got), "\n")
	if len(lines) != 3 {
		t.Fatalf("output:\n%s", got)
	}
	if !strings.Contains(lines[1], "primary") || !strings.Contains(lines[2], "fallback") {
		t.Errorf("order wrong:\n%s", got)
	}
}
