package provider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/fruitsalade/zipstream/internal/config"
	"github.com/fruitsalade/zipstream/internal/logging"
	"github.com/fruitsalade/zipstream/internal/metrics"
)

// ErrRegistryClosed is returned by a closed registry.
var ErrRegistryClosed = errors.New("provider registry closed")

// Loader yields the ordered provider specs.
type Loader func() ([]config.ProviderSpec, error)

// BuildFunc instantiates a provider from its spec.
type BuildFunc func(ctx context.Context, spec config.ProviderSpec) (Provider, error)

type entry struct {
	spec config.ProviderSpec
	reg  Registration

	// guarded by Registry.mu
	refs    int  // outstanding leases
	retired bool // dropped from the chain; closed once refs reaches 0
}

// Registry holds the ordered provider chain built from configuration.
// It implements Discovery.
type Registry struct {
	reloadMu sync.Mutex // serializes Reload

	mu      sync.RWMutex
	entries []*entry
	closed  bool

	load   Loader
	build  BuildFunc
	logger *zap.Logger
}

// NewRegistry creates a Registry and loads the chain once.
func NewRegistry(ctx context.Context, load Loader) (*Registry, error) {
	return newRegistry(ctx, load, NewFromSpec)
}

func newRegistry(ctx context.Context, load Loader, build BuildFunc) (*Registry, error) {
	r := &Registry{
		load:   load,
		build:  build,
		logger: logging.L(),
	}

	if err := r.Reload(ctx); err != nil {
		return nil, fmt.Errorf("initial load: %w", err)
	}

	return r, nil
}

// Reload re-reads the specs and rebuilds the chain. Providers whose type and
// config are unchanged are reused. Replaced and removed providers are closed
// once no lease holds them. A provider that fails to build is logged and
// left out. A chain with no providers is valid.
func (r *Registry) Reload(ctx context.Context) error {
	r.reloadMu.Lock()
	defer r.reloadMu.Unlock()

	specs, err := r.load()
	if err != nil {
		return fmt.Errorf("load providers: %w", err)
	}

	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return ErrRegistryClosed
	}
	existing := make(map[string]*entry, len(r.entries))
	for _, e := range r.entries {
		existing[e.spec.Name] = e
	}
	r.mu.RUnlock()

	newEntries := make([]*entry, 0, len(specs))
	kept := make(map[string]bool, len(specs))

	for _, spec := range specs {
		old := existing[spec.Name]
		if old != nil && old.spec.Type == spec.Type && bytes.Equal(old.spec.Config, spec.Config) {
			newEntries = append(newEntries, old)
			kept[spec.Name] = true
			continue
		}

		p, err := r.build(ctx, spec)
		if err != nil {
			r.logger.Error("failed to initialize provider",
				zap.String("name", spec.Name),
				zap.String("type", spec.Type),
				zap.Error(err))
			continue
		}

		newEntries = append(newEntries, &entry{
			spec: spec,
			reg:  Registration{Name: spec.Name, Type: spec.Type, Provider: p},
		})
	}

	var idle []*entry
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		for _, e := range newEntries {
			if !kept[e.spec.Name] {
				closeProvider(e.reg.Provider)
			}
		}
		return ErrRegistryClosed
	}
	r.entries = newEntries
	for name, e := range existing {
		if kept[name] {
			continue
		}
		e.retired = true
		if e.refs == 0 {
			idle = append(idle, e)
		}
	}
	r.mu.Unlock()

	for _, e := range idle {
		closeProvider(e.reg.Provider)
	}

	metrics.SetProvidersRegistered(len(newEntries))
	r.logger.Info("provider registry reloaded",
		zap.Int("configured", len(specs)),
		zap.Int("active", len(newEntries)))
	if len(newEntries) == 0 {
		r.logger.Warn("provider chain is empty, every path will be skipped")
	}

	return nil
}

// Providers returns a snapshot of the chain in priority order. The snapshot
// is not pinned; use Lease when the providers must stay open.
func (r *Registry) Providers(_ context.Context) ([]Registration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, fmt.Errorf("%w: %w", ErrProviderDiscovery, ErrRegistryClosed)
	}

	regs := make([]Registration, len(r.entries))
	for i, e := range r.entries {
		regs[i] = e.reg
	}
	return regs, nil
}

// Lease returns a snapshot of the chain and pins its providers. A reload or
// Close that drops one of them defers closing it until release is called.
// release is idempotent.
func (r *Registry) Lease(_ context.Context) ([]Registration, func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, nil, fmt.Errorf("%w: %w", ErrProviderDiscovery, ErrRegistryClosed)
	}

	held := append([]*entry(nil), r.entries...)
	regs := make([]Registration, len(held))
	for i, e := range held {
		e.refs++
		regs[i] = e.reg
	}

	var once sync.Once
	release := func() {
		once.Do(func() { r.release(held) })
	}
	return regs, release, nil
}

func (r *Registry) release(held []*entry) {
	var idle []*entry
	r.mu.Lock()
	for _, e := range held {
		e.refs--
		if e.refs == 0 && e.retired {
			idle = append(idle, e)
		}
	}
	r.mu.Unlock()

	for _, e := range idle {
		closeProvider(e.reg.Provider)
	}
}

// Resolve resolves one path against the current chain.
func (r *Registry) Resolve(ctx context.Context, logicalPath string) (Resolution, error) {
	regs, release, err := r.Lease(ctx)
	if err != nil {
		return Resolution{}, err
	}
	defer release()
	return Resolve(ctx, logging.WithContext(ctx), regs, logicalPath)
}

// Close closes every provider that holds resources. Providers still leased
// are closed when their last lease is released.
func (r *Registry) Close() error {
	var idle []*entry
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	for _, e := range r.entries {
		e.retired = true
		if e.refs == 0 {
			idle = append(idle, e)
		}
	}
	r.entries = nil
	r.mu.Unlock()

	for _, e := range idle {
		closeProvider(e.reg.Provider)
	}
	metrics.SetProvidersRegistered(0)
	return nil
}

func closeProvider(p Provider) {
	c, ok := p.(io.Closer)
	if !ok {
		return
	}
	if err := c.Close(); err != nil {
		logging.Warn("failed to close provider", zap.Error(err))
	}
}
