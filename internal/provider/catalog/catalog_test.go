package catalog

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/fruitsalade/zipstream/internal/node"
	"github.com/fruitsalade/zipstream/internal/storage/local"
)

type memStore struct {
	rows   []Row
	closed bool
}

func (m *memStore) Lookup(_ context.Context, path string) (Row, error) {
	for _, r := range m.rows {
		if r.Path == path {
			return r, nil
		}
	}
	return Row{}, ErrNoEntry
}

func (m *memStore) Children(_ context.Context, parent string) ([]Row, error) {
	var out []Row
	for _, r := range m.rows {
		if r.ParentPath == parent && r.Path != parent {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memStore) Close() error {
	m.closed = true
	return nil
}

func newTestProvider(t *testing.T) (*Provider, *memStore) {
	t.Helper()
	blobs := t.TempDir()
	if err := os.WriteFile(filepath.Join(blobs, "blob-1"), []byte("first"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(blobs, "blob-2"), []byte("second!"), 0644); err != nil {
		t.Fatal(err)
	}
	backend, err := local.New(local.Config{RootPath: blobs})
	if err != nil {
		t.Fatal(err)
	}

	store := &memStore{rows: []Row{
		{Path: "/docs", ParentPath: "/", Name: "docs", IsDir: true},
		{Path: "/docs/b.txt", ParentPath: "/docs", Name: "b.txt", Size: 7, StorageKey: "blob-2"},
		{Path: "/docs/a.txt", ParentPath: "/docs", Name: "a.txt", Size: 5, StorageKey: "blob-1"},
		{Path: "/docs/empty", ParentPath: "/docs", Name: "empty", IsDir: true},
	}}
	return New(store, backend), store
}

func TestResolveFile(t *testing.T) {
	p, _ := newTestProvider(t)
	ctx := context.Background()

	n, err := p.Resolve(ctx, "docs/a.txt")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	f, ok := n.(node.File)
	if !ok || f.Size() != 5 {
		t.Fatalf("unexpected node %T", n)
	}
	rc, err := f.Open(ctx)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "first" {
		t.Errorf("content = %q", data)
	}
}

func TestResolveDirectory(t *testing.T) {
	p, _ := newTestProvider(t)
	ctx := context.Background()

	n, err := p.Resolve(ctx, "/docs/")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	children, err := n.(node.Directory).Children(ctx)
	if err != nil {
		t.Fatalf("Children: %v", err)
	}
	want := []string{"a.txt", "b.txt", "empty"}
	if len(children) != len(want) {
		t.Fatalf("got %d children", len(children))
	}
	for i, c := range children {
		if c.Name() != want[i] {
			t.Errorf("child %d = %q, want %q", i, c.Name(), want[i])
		}
	}
}

func TestResolveRootAndMissing(t *testing.T) {
	p, _ := newTestProvider(t)
	ctx := context.Background()

	root, err := p.Resolve(ctx, "/")
	if err != nil || node.Kind(root) != "dir" {
		t.Fatalf("root = %v, %v", root, err)
	}

	n, err := p.Resolve(ctx, "/missing")
	if err != nil || n != nil {
		t.Errorf("Resolve(missing) = %v, %v", n, err)
	}

	if _, err := p.Resolve(ctx, "/docs/../x"); err == nil {
		t.Error("expected dot segment error")
	}
}

func TestClose(t *testing.T) {
	p, store := newTestProvider(t)
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !store.closed {
		t.Error("store not closed")
	}
}

func TestNewFromJSONValidation(t *testing.T) {
	ctx := context.Background()
	if _, err := NewFromJSON(ctx, []byte(`{"backend":{"type":"local"}}`)); err == nil {
		t.Error("expected error without database_url")
	}
	if _, err := NewFromJSON(ctx, []byte(`{"database_url":"postgres://x"}`)); err == nil {
		t.Error("expected error without backend type")
	}
}

// TestPGStore runs against a real PostgreSQL when TEST_DATABASE_URL is set.
func TestPGStore(t *testing.T) {
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1) // temp tables are per connection
	ctx := context.Background()

	_, err = db.ExecContext(ctx, `
		CREATE TEMP TABLE files (
			path        TEXT PRIMARY KEY,
			parent_path TEXT NOT NULL,
			name        TEXT NOT NULL,
			is_dir      BOOLEAN NOT NULL DEFAULT FALSE,
			size        BIGINT NOT NULL DEFAULT 0,
			mod_time    TIMESTAMPTZ NOT NULL DEFAULT now(),
			storage_key TEXT,
			deleted_at  TIMESTAMPTZ
		)`)
	if err != nil {
		t.Fatalf("create table: %v", err)
	}

	now := time.Now()
	_, err = db.ExecContext(ctx, `INSERT INTO files VALUES
		('/d', '/', 'd', true, 0, $1, NULL, NULL),
		('/d/b', '/d', 'b', false, 2, $1, 'k-b', NULL),
		('/d/a', '/d', 'a', false, 1, $1, 'k-a', NULL),
		('/d/gone', '/d', 'gone', false, 1, $1, 'k-g', $1)`, now)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	store := NewPGStoreFromDB(db)

	row, err := store.Lookup(ctx, "/d/a")
	if err != nil || row.StorageKey != "k-a" || row.Size != 1 {
		t.Fatalf("Lookup = %+v, %v", row, err)
	}
	if _, err := store.Lookup(ctx, "/d/gone"); !errors.Is(err, ErrNoEntry) {
		t.Errorf("deleted row should be hidden, got %v", err)
	}

	children, err := store.Children(ctx, "/d")
	if err != nil {
		t.Fatalf("Children: %v", err)
	}
	if len(children) != 2 || children[0].Name != "a" || children[1].Name != "b" {
		t.Errorf("children = %+v", children)
	}
}
