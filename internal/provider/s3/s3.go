// Package s3 resolves logical paths against keys in an S3 bucket. An object
// is a file; a key prefix with anything below it is a directory.
package s3

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"path"
	"strings"
	"time"

	"github.com/fruitsalade/zipstream/internal/node"
	"github.com/fruitsalade/zipstream/internal/pathutil"
	"github.com/fruitsalade/zipstream/internal/retry"
	s3backend "github.com/fruitsalade/zipstream/internal/storage/s3"
)

// Store is the bucket view the provider needs. *s3backend.S3Backend
// implements it.
type Store interface {
	Head(ctx context.Context, key string) (s3backend.ObjectInfo, error)
	List(ctx context.Context, prefix string) (s3backend.Listing, error)
	GetObject(ctx context.Context, key string, offset, length int64) (io.ReadCloser, int64, error)
}

// Provider serves objects from a Store.
type Provider struct {
	store Store
}

// New returns a Provider over store.
func New(store Store) *Provider {
	return &Provider{store: store}
}

// NewFromJSON builds a Provider from s3 backend JSON config.
func NewFromJSON(ctx context.Context, raw json.RawMessage) (*Provider, error) {
	b, err := s3backend.NewBackendFromJSON(ctx, raw)
	if err != nil {
		return nil, err
	}
	return New(b), nil
}

// Resolve returns the object at logicalPath, or the pseudo-directory
// below it when no such object exists.
func (p *Provider) Resolve(ctx context.Context, logicalPath string) (node.Node, error) {
	key := pathutil.Clean(logicalPath)

	if key != "" {
		info, err := p.store.Head(ctx, key)
		if err == nil {
			return p.file(key, info), nil
		}
		if !errors.Is(err, s3backend.ErrNoSuchKey) {
			return nil, err
		}
	}

	listing, err := p.store.List(ctx, key)
	if err != nil {
		return nil, err
	}
	if len(listing.Prefixes) == 0 && len(listing.Objects) == 0 {
		return nil, nil
	}

	name := path.Base(key)
	if key == "" {
		name = ""
	}

	// The first listing is reused for the directory's children.
	first := &listing
	return node.NewDirectory(name, time.Time{}, func(ctx context.Context) ([]node.Node, error) {
		if first != nil {
			l := *first
			first = nil
			return p.children(l), nil
		}
		l, err := p.store.List(ctx, key)
		if err != nil {
			return nil, err
		}
		return p.children(l), nil
	}), nil
}

func (p *Provider) file(key string, info s3backend.ObjectInfo) node.File {
	return node.NewFile(path.Base(key), info.Size, info.ModTime, func(ctx context.Context) (io.ReadCloser, error) {
		return retry.Do(ctx, retry.Default, func(ctx context.Context) (io.ReadCloser, error) {
			rc, _, err := p.store.GetObject(ctx, key, 0, 0)
			if errors.Is(err, s3backend.ErrNoSuchKey) {
				return nil, retry.Permanent(err)
			}
			return rc, err
		})
	})
}

func (p *Provider) dir(prefix string) node.Directory {
	key := strings.TrimSuffix(prefix, "/")
	return node.NewDirectory(path.Base(key), time.Time{}, func(ctx context.Context) ([]node.Node, error) {
		l, err := p.store.List(ctx, key)
		if err != nil {
			return nil, err
		}
		return p.children(l), nil
	})
}

// children merges sub-prefixes and objects back into key order.
func (p *Provider) children(l s3backend.Listing) []node.Node {
	out := make([]node.Node, 0, len(l.Prefixes)+len(l.Objects))
	i, j := 0, 0
	for i < len(l.Prefixes) || j < len(l.Objects) {
		if j >= len(l.Objects) || (i < len(l.Prefixes) && l.Prefixes[i] < l.Objects[j].Key) {
			out = append(out, p.dir(l.Prefixes[i]))
			i++
			continue
		}
		obj := l.Objects[j]
		out = append(out, p.file(obj.Key, obj))
		j++
	}
	return out
}

// Close releases the store.
func (p *Provider) Close() error {
	if c, ok := p.store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
