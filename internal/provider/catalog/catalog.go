// Package catalog resolves logical paths against a PostgreSQL file catalog.
// Rows carry names, sizes and storage keys; content is read from a storage
// backend configured next to the database.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/fruitsalade/zipstream/internal/node"
	"github.com/fruitsalade/zipstream/internal/pathutil"
	"github.com/fruitsalade/zipstream/internal/storage"
)

// Config is the JSON config of a catalog provider.
type Config struct {
	DatabaseURL string `json:"database_url"`
	Backend     struct {
		Type   string          `json:"type"`
		Config json.RawMessage `json:"config"`
	} `json:"backend"`
}

// Provider serves catalog rows.
type Provider struct {
	store   Store
	content storage.Backend
}

// New returns a Provider over store reading content from backend.
func New(store Store, backend storage.Backend) *Provider {
	return &Provider{store: store, content: backend}
}

// NewFromJSON connects to the database and builds the content backend.
func NewFromJSON(ctx context.Context, raw json.RawMessage) (*Provider, error) {
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse catalog config: %w", err)
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("database_url is required")
	}
	if cfg.Backend.Type == "" {
		return nil, fmt.Errorf("backend.type is required")
	}

	backend, err := storage.NewBackendFromConfig(ctx, cfg.Backend.Type, cfg.Backend.Config)
	if err != nil {
		return nil, fmt.Errorf("catalog backend: %w", err)
	}

	store, err := NewPGStore(ctx, cfg.DatabaseURL)
	if err != nil {
		backend.Close()
		return nil, err
	}

	return New(store, backend), nil
}

// catalogPath maps a logical path onto the stored form "/a/b".
func catalogPath(logicalPath string) string {
	return "/" + pathutil.Clean(logicalPath)
}

// Resolve returns the catalog entry at logicalPath. The root "/" is always
// a directory.
func (p *Provider) Resolve(ctx context.Context, logicalPath string) (node.Node, error) {
	if pathutil.HasDotSegments(logicalPath) {
		return nil, fmt.Errorf("path %q contains dot segments", logicalPath)
	}
	cp := catalogPath(logicalPath)
	if cp == "/" {
		return p.dir(Row{Path: "/", IsDir: true}), nil
	}

	row, err := p.store.Lookup(ctx, cp)
	if errors.Is(err, ErrNoEntry) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p.node(row), nil
}

func (p *Provider) node(r Row) node.Node {
	if r.IsDir {
		return p.dir(r)
	}
	key := r.StorageKey
	if key == "" {
		key = r.Path
	}
	return node.NewFile(r.Name, r.Size, r.ModTime, func(ctx context.Context) (io.ReadCloser, error) {
		rc, _, err := p.content.GetObject(ctx, key, 0, 0)
		return rc, err
	})
}

func (p *Provider) dir(r Row) node.Directory {
	return node.NewDirectory(r.Name, r.ModTime, func(ctx context.Context) ([]node.Node, error) {
		rows, err := p.store.Children(ctx, r.Path)
		if err != nil {
			return nil, err
		}
		out := make([]node.Node, 0, len(rows))
		for _, child := range rows {
			out = append(out, p.node(child))
		}
		return out, nil
	})
}

// Close closes the store and the content backend.
func (p *Provider) Close() error {
	var errs []error
	if c, ok := p.store.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	if p.content != nil {
		errs = append(errs, p.content.Close())
	}
	return errors.Join(errs...)
}
