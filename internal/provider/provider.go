// Package provider defines the source provider contract and the ordered
// registry that resolves logical paths against it.
package provider

import (
	"context"
	"errors"

	"github.com/fruitsalade/zipstream/internal/node"
)

var (
	// ErrNotFound is returned by a Provider that has nothing at a path.
	ErrNotFound = errors.New("not found")

	// ErrProviderDiscovery is returned when the provider chain cannot be
	// obtained.
	ErrProviderDiscovery = errors.New("provider discovery unavailable")
)

// Provider translates a logical path into a node.
//
// Resolve returns ErrNotFound (or an untyped nil node and nil error) when
// the path is not backed by this provider. Any other error is a provider
// failure. A typed nil pointer behind the Node interface is treated as a
// failure too.
type Provider interface {
	Resolve(ctx context.Context, logicalPath string) (node.Node, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, logicalPath string) (node.Node, error)

// Resolve calls f.
func (f ProviderFunc) Resolve(ctx context.Context, logicalPath string) (node.Node, error) {
	return f(ctx, logicalPath)
}

// Registration is one entry of the ordered provider chain.
type Registration struct {
	Name     string
	Type     string
	Provider Provider
}

// Discovery supplies the ordered provider chain. An empty chain is valid;
// only failing to obtain the chain is an error.
type Discovery interface {
	Providers(ctx context.Context) ([]Registration, error)
}

// Leaser is a Discovery whose providers can be closed by a reload. The
// chain returned by Lease stays open until release is called.
type Leaser interface {
	Lease(ctx context.Context) (regs []Registration, release func(), err error)
}

// Acquire returns the chain from d, pinned when d is a Leaser. release is
// never nil.
func Acquire(ctx context.Context, d Discovery) ([]Registration, func(), error) {
	if l, ok := d.(Leaser); ok {
		regs, release, err := l.Lease(ctx)
		if err != nil {
			return nil, func() {}, err
		}
		return regs, release, nil
	}
	regs, err := d.Providers(ctx)
	return regs, func() {}, err
}

// StaticDiscovery is a fixed provider chain.
type StaticDiscovery []Registration

// Providers returns the chain, possibly empty.
func (s StaticDiscovery) Providers(context.Context) ([]Registration, error) {
	return []Registration(s), nil
}

// Resolution is the outcome of resolving one path against a chain.
type Resolution struct {
	Node     node.Node
	Provider string
	Found    bool
}
