// Package archive resolves batches of logical paths through the provider
// chain and streams the resulting files into an archive sink.
package archive

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fruitsalade/zipstream/internal/logging"
	"github.com/fruitsalade/zipstream/internal/metrics"
	"github.com/fruitsalade/zipstream/internal/node"
	"github.com/fruitsalade/zipstream/internal/pathutil"
	"github.com/fruitsalade/zipstream/internal/provider"
)

// DefaultMaxDepth bounds directory recursion.
const DefaultMaxDepth = 64

// ErrMaxDepth is returned when a directory tree is nested deeper than the
// configured limit.
var ErrMaxDepth = errors.New("directory nesting exceeds maximum depth")

// Stats summarizes one Build.
type Stats struct {
	Requested int
	Resolved  int
	Skipped   int
	Entries   int
	Bytes     int64
	Prefix    string
}

// Aggregator builds archives from logical paths.
type Aggregator struct {
	discovery   provider.Discovery
	logger      *zap.Logger
	maxDepth    int
	concurrency int
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithLogger sets the logger. Without it the request-scoped logger from the
// Build context is used.
func WithLogger(l *zap.Logger) Option {
	return func(a *Aggregator) { a.logger = l }
}

// WithMaxDepth sets the directory recursion limit.
func WithMaxDepth(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.maxDepth = n
		}
	}
}

// WithResolveConcurrency resolves up to n paths in parallel. Entries are
// still written one at a time in submission order.
func WithResolveConcurrency(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.concurrency = n
		}
	}
}

// New creates an Aggregator over the given provider discovery.
func New(discovery provider.Discovery, opts ...Option) *Aggregator {
	a := &Aggregator{
		discovery:   discovery,
		maxDepth:    DefaultMaxDepth,
		concurrency: 1,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Build resolves paths in order and streams every resolved file into sink.
// Unresolved paths are skipped, including every path when the provider
// chain is empty. The sink is closed only on success; on
// failure it is aborted so the output stays visibly incomplete.
func (a *Aggregator) Build(ctx context.Context, paths []string, sink Sink) (Stats, error) {
	stats := Stats{Requested: len(paths)}
	logger := a.logger
	if logger == nil {
		logger = logging.WithContext(ctx)
	}

	if len(paths) == 0 {
		if err := sink.Close(); err != nil {
			return stats, fmt.Errorf("finalize archive: %w", err)
		}
		return stats, nil
	}

	// The lease keeps providers open while entries stream, even across a
	// reload that replaces them.
	regs, release, err := provider.Acquire(ctx, a.discovery)
	if err != nil {
		abort(sink)
		if !errors.Is(err, provider.ErrProviderDiscovery) {
			err = fmt.Errorf("%w: %w", provider.ErrProviderDiscovery, err)
		}
		return stats, err
	}
	defer release()

	normalized := make([]string, len(paths))
	for i, p := range paths {
		normalized[i] = pathutil.Normalize(p)
	}
	stats.Prefix = pathutil.CommonPrefix(normalized...)

	w := &walker{sink: sink, logger: logger, maxDepth: a.maxDepth, stats: &stats}

	next, stop := a.resolver(ctx, logger, regs, paths)
	defer stop()

	for i := range paths {
		res, err := next(i)
		if err != nil {
			abort(sink)
			return stats, err
		}
		if !res.Found {
			stats.Skipped++
			logger.Debug("path skipped", zap.String("path", paths[i]))
			continue
		}

		name := pathutil.EntryName(normalized[i], stats.Prefix)
		if pathutil.HasDotSegments(name) {
			stats.Skipped++
			logger.Warn("skipping path with dot segments", zap.String("path", paths[i]))
			continue
		}
		stats.Resolved++

		if err := w.walk(ctx, res.Node, name, 0); err != nil {
			abort(sink)
			return stats, err
		}
	}

	if err := sink.Close(); err != nil {
		return stats, fmt.Errorf("finalize archive: %w", err)
	}

	logger.Info("archive built",
		zap.Int("requested", stats.Requested),
		zap.Int("resolved", stats.Resolved),
		zap.Int("skipped", stats.Skipped),
		zap.Int("entries", stats.Entries),
		zap.Int64("bytes", stats.Bytes))
	return stats, nil
}

// resolver returns a function yielding the resolution of paths[i], to be
// called with increasing i. With concurrency above one, resolutions run
// ahead in an errgroup; stop cancels and waits for them.
func (a *Aggregator) resolver(ctx context.Context, logger *zap.Logger, regs []provider.Registration, paths []string) (func(int) (provider.Resolution, error), func()) {
	if a.concurrency <= 1 || len(paths) == 1 {
		return func(i int) (provider.Resolution, error) {
			return provider.Resolve(ctx, logger, regs, paths[i])
		}, func() {}
	}

	type result struct {
		res provider.Resolution
		err error
	}
	results := make([]result, len(paths))
	ready := make([]chan struct{}, len(paths))
	for i := range ready {
		ready[i] = make(chan struct{})
	}

	rctx, cancel := context.WithCancel(ctx)
	var g errgroup.Group
	g.SetLimit(a.concurrency)

	launched := make(chan struct{})
	go func() {
		defer close(launched)
		for i := range paths {
			if rctx.Err() != nil {
				// Unblock any waiter for paths never started.
				for j := i; j < len(paths); j++ {
					results[j].err = rctx.Err()
					close(ready[j])
				}
				return
			}
			g.Go(func() error {
				res, err := provider.Resolve(rctx, logger, regs, paths[i])
				results[i] = result{res: res, err: err}
				close(ready[i])
				return nil
			})
		}
	}()

	next := func(i int) (provider.Resolution, error) {
		select {
		case <-ready[i]:
			return results[i].res, results[i].err
		case <-ctx.Done():
			return provider.Resolution{}, ctx.Err()
		}
	}
	stop := func() {
		cancel()
		<-launched
		g.Wait()
	}
	return next, stop
}

type walker struct {
	sink     Sink
	logger   *zap.Logger
	maxDepth int
	stats    *Stats
}

func (w *walker) walk(ctx context.Context, n node.Node, name string, depth int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if depth > w.maxDepth {
		return fmt.Errorf("%s: %w (%d)", name, ErrMaxDepth, w.maxDepth)
	}

	switch v := n.(type) {
	case node.File:
		return w.writeFile(ctx, v, name)
	case node.Directory:
		children, err := v.Children(ctx)
		if err != nil {
			return fmt.Errorf("list %s: %w", name, err)
		}
		for _, child := range children {
			if child == nil {
				continue
			}
			if !validChildName(child.Name()) {
				w.logger.Warn("skipping child with invalid name",
					zap.String("dir", name),
					zap.String("child", child.Name()))
				continue
			}
			if err := w.walk(ctx, child, pathutil.JoinEntry(name, child.Name()), depth+1); err != nil {
				return err
			}
		}
		return nil
	default:
		w.logger.Warn("skipping node of unknown kind", zap.String("entry", name))
		return nil
	}
}

func (w *walker) writeFile(ctx context.Context, f node.File, name string) error {
	if name == "" {
		name = f.Name()
	}
	if name == "" {
		w.logger.Warn("skipping file without a name")
		return nil
	}

	rc, err := f.Open(ctx)
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}
	defer rc.Close()

	cr := &countingReader{r: &contextReader{ctx: ctx, r: rc}}
	entry := Entry{Name: name, Size: f.Size(), ModTime: node.ModTime(f)}
	if err := w.sink.AddEntry(ctx, entry, cr); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}

	w.stats.Entries++
	w.stats.Bytes += cr.n
	metrics.RecordArchiveEntry(cr.n)
	return nil
}

// validChildName rejects names that would escape or collapse the entry path.
func validChildName(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.Contains(name, "/")
}

func abort(s Sink) {
	if a, ok := s.(Aborter); ok {
		if err := a.Abort(); err != nil {
			logging.Debug("abort archive sink", zap.Error(err))
		}
	}
}
