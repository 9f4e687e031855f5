package fs

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/fruitsalade/zipstream/internal/node"
	"github.com/fruitsalade/zipstream/internal/storage/smb"
)

func setupTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"docs/a.txt":     "alpha",
		"docs/sub/b.txt": "bravo",
		"top.txt":        "top",
	}
	for name, content := range files {
		full := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.MkdirAll(filepath.Join(root, "docs", "empty"), 0755); err != nil {
		t.Fatal(err)
	}
	return root
}

func newProvider(t *testing.T, root string) *Provider {
	t.Helper()
	raw, _ := json.Marshal(map[string]string{"root_path": root})
	p, err := NewFromJSON(raw)
	if err != nil {
		t.Fatalf("NewFromJSON: %v", err)
	}
	return p
}

func TestResolveFile(t *testing.T) {
	p := newProvider(t, setupTree(t))
	ctx := context.Background()

	n, err := p.Resolve(ctx, "/docs/a.txt")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	f, ok := n.(node.File)
	if !ok {
		t.Fatalf("expected file, got %T", n)
	}
	if f.Name() != "a.txt" || f.Size() != 5 {
		t.Errorf("file = %s/%d", f.Name(), f.Size())
	}

	rc, err := f.Open(ctx)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "alpha" {
		t.Errorf("content = %q", data)
	}
}

func TestResolveDirectory(t *testing.T) {
	p := newProvider(t, setupTree(t))
	ctx := context.Background()

	n, err := p.Resolve(ctx, "docs/")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	d, ok := n.(node.Directory)
	if !ok {
		t.Fatalf("expected directory, got %T", n)
	}

	children, err := d.Children(ctx)
	if err != nil {
		t.Fatalf("Children: %v", err)
	}
	want := []struct{ name, kind string }{
		{"a.txt", "file"},
		{"empty", "dir"},
		{"sub", "dir"},
	}
	if len(children) != len(want) {
		t.Fatalf("got %d children", len(children))
	}
	for i, c := range children {
		if c.Name() != want[i].name || node.Kind(c) != want[i].kind {
			t.Errorf("child %d = %s (%s), want %s (%s)", i, c.Name(), node.Kind(c), want[i].name, want[i].kind)
		}
	}
}

func TestResolveMissing(t *testing.T) {
	p := newProvider(t, setupTree(t))

	n, err := p.Resolve(context.Background(), "/nope.txt")
	if err != nil || n != nil {
		t.Errorf("Resolve(missing) = %v, %v; want nil, nil", n, err)
	}
}

func TestResolveRejectsDotSegments(t *testing.T) {
	p := newProvider(t, setupTree(t))

	if _, err := p.Resolve(context.Background(), "/docs/../../etc/passwd"); err == nil {
		t.Fatal("expected error for dot segments")
	}
}

func TestResolveRoot(t *testing.T) {
	p := newProvider(t, setupTree(t))

	n, err := p.Resolve(context.Background(), "/")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if node.Kind(n) != "dir" || n.Name() != "" {
		t.Errorf("root = %q (%s)", n.Name(), node.Kind(n))
	}
}

func TestSymlinkFollowed(t *testing.T) {
	root := setupTree(t)
	if err := os.Symlink(filepath.Join(root, "top.txt"), filepath.Join(root, "docs", "link.txt")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	p := newProvider(t, root)
	ctx := context.Background()

	n, _ := p.Resolve(ctx, "docs")
	children, err := n.(node.Directory).Children(ctx)
	if err != nil {
		t.Fatalf("Children: %v", err)
	}
	for _, c := range children {
		if c.Name() == "link.txt" {
			if f, ok := c.(node.File); !ok || f.Size() != 3 {
				t.Errorf("symlink resolved to %T", c)
			}
			return
		}
	}
	t.Error("symlink not listed")
}

func TestOverSMBMount(t *testing.T) {
	root := setupTree(t)
	b, err := smb.New(smb.Config{Server: "//nas/share", MountPath: root})
	if err != nil {
		t.Fatalf("smb.New: %v", err)
	}
	p := New(b)

	n, err := p.Resolve(context.Background(), "top.txt")
	if err != nil || node.Kind(n) != "file" {
		t.Fatalf("Resolve over smb = %v, %v", n, err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
