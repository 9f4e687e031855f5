// Package fs resolves logical paths against a directory tree on a
// local or mounted filesystem.
package fs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"path"

	"github.com/fruitsalade/zipstream/internal/node"
	"github.com/fruitsalade/zipstream/internal/pathutil"
	"github.com/fruitsalade/zipstream/internal/storage/local"
)

// Tree is the filesystem view the provider needs. *local.LocalBackend and
// *smb.SMBBackend implement it.
type Tree interface {
	Stat(ctx context.Context, key string) (iofs.FileInfo, error)
	ReadDir(ctx context.Context, key string) ([]iofs.DirEntry, error)
	GetObject(ctx context.Context, key string, offset, length int64) (io.ReadCloser, int64, error)
}

// Provider serves files and directories from a Tree.
type Provider struct {
	tree Tree
}

// New returns a Provider over tree.
func New(tree Tree) *Provider {
	return &Provider{tree: tree}
}

// NewFromJSON builds a Provider over a local backend from raw JSON config
// ({"root_path": "..."}).
func NewFromJSON(raw json.RawMessage) (*Provider, error) {
	b, err := local.NewFromJSON(raw)
	if err != nil {
		return nil, err
	}
	return New(b), nil
}

// Resolve returns the file or directory at logicalPath. Missing paths
// resolve to nothing; dot segments are rejected.
func (p *Provider) Resolve(ctx context.Context, logicalPath string) (node.Node, error) {
	if pathutil.HasDotSegments(logicalPath) {
		return nil, fmt.Errorf("path %q contains dot segments", logicalPath)
	}
	key := pathutil.Clean(logicalPath)

	info, err := p.tree.Stat(ctx, key)
	if errors.Is(err, iofs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p.node(key, info), nil
}

func (p *Provider) node(key string, info iofs.FileInfo) node.Node {
	name := path.Base(key)
	if key == "" {
		name = ""
	}

	switch {
	case info.IsDir():
		return node.NewDirectory(name, info.ModTime(), func(ctx context.Context) ([]node.Node, error) {
			return p.children(ctx, key)
		})
	case info.Mode().IsRegular():
		return node.NewFile(name, info.Size(), info.ModTime(), func(ctx context.Context) (io.ReadCloser, error) {
			rc, _, err := p.tree.GetObject(ctx, key, 0, 0)
			return rc, err
		})
	default:
		return nil
	}
}

// children lists key in name order. Symlinks are followed; sockets,
// devices and entries that vanish during the listing are skipped.
func (p *Provider) children(ctx context.Context, key string) ([]node.Node, error) {
	entries, err := p.tree.ReadDir(ctx, key)
	if err != nil {
		return nil, err
	}

	out := make([]node.Node, 0, len(entries))
	for _, e := range entries {
		childKey := path.Join(key, e.Name())

		var info iofs.FileInfo
		if e.Type()&iofs.ModeSymlink != 0 {
			info, err = p.tree.Stat(ctx, childKey)
		} else {
			info, err = e.Info()
		}
		if errors.Is(err, iofs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}

		if n := p.node(childKey, info); n != nil {
			out = append(out, n)
		}
	}
	return out, nil
}

// Close releases the underlying tree.
func (p *Provider) Close() error {
	if c, ok := p.tree.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
