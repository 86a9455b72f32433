package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/assetsync/internal/asset"
	"github.com/roach88/assetsync/internal/builder"
	"github.com/roach88/assetsync/internal/checksum"
	"github.com/roach88/assetsync/internal/ir"
	"github.com/roach88/assetsync/internal/kind"
	"github.com/roach88/assetsync/internal/materialize"
	"github.com/roach88/assetsync/internal/registry"
	"github.com/roach88/assetsync/internal/serializer"
	"github.com/roach88/assetsync/internal/treecache"
)

// Handle identifies a pinned scope.
type Handle = registry.Handle

// NoScope asks resolution to search every registered scope.
const NoScope = registry.NoScope

// Engine wires the serializer, identity cache, builder, registry and
// materializer together.
//
// Thread Safety: safe for concurrent use.
type Engine struct {
	ser          *serializer.Registry
	cache        *treecache.Cache
	builder      *builder.Builder
	registry     *registry.Registry
	materializer *materialize.Materializer
	clock        *Clock
	logger       *slog.Logger
}

type config struct {
	serializer     *serializer.Registry
	serializerOpts []serializer.Option
	languages      []string
	concurrency    int
	clock          *Clock
	logger         *slog.Logger
}

// Option configures an Engine.
type Option func(*config)

// WithSerializer uses reg instead of a default serializer. Serializer
// options given alongside are ignored.
func WithSerializer(reg *serializer.Registry) Option {
	return func(c *config) { c.serializer = reg }
}

// WithSerializerOptions passes options to the default serializer.
func WithSerializerOptions(opts ...serializer.Option) Option {
	return func(c *config) { c.serializerOpts = append(c.serializerOpts, opts...) }
}

// WithSupportedLanguages restricts MaterializeSnapshot to the given
// project languages.
func WithSupportedLanguages(languages ...string) Option {
	return func(c *config) { c.languages = languages }
}

// WithConcurrency bounds parallel project work in builds and reconstruction.
func WithConcurrency(n int) Option {
	return func(c *config) { c.concurrency = n }
}

// WithClock sets the clock that issues handles and version stamps.
func WithClock(clock *Clock) Option {
	return func(c *config) { c.clock = clock }
}

// WithLogger sets the logger shared by every component.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// New creates an engine.
func New(opts ...Option) *Engine {
	cfg := config{logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.clock == nil {
		cfg.clock = NewClock()
	}
	ser := cfg.serializer
	if ser == nil {
		ser = serializer.New(append([]serializer.Option{serializer.WithLogger(cfg.logger)}, cfg.serializerOpts...)...)
	}

	matOpts := []materialize.Option{
		materialize.WithLogger(cfg.logger),
		materialize.WithVersionSource(func() ir.VersionStamp { return ir.VersionStamp(cfg.clock.Next()) }),
	}
	if cfg.languages != nil {
		matOpts = append(matOpts, materialize.WithSupportedLanguages(cfg.languages...))
	}
	if cfg.concurrency > 0 {
		matOpts = append(matOpts, materialize.WithConcurrency(cfg.concurrency))
	}

	cache := treecache.New()
	return &Engine{
		ser:          ser,
		cache:        cache,
		builder:      builder.New(cache, ser, builder.WithLogger(cfg.logger), builder.WithConcurrency(cfg.concurrency)),
		registry:     registry.New(registry.WithLogger(cfg.logger)),
		materializer: materialize.New(ser, matOpts...),
		clock:        cfg.clock,
		logger:       cfg.logger,
	}
}

// Serializer returns the engine's serialization registry.
func (e *Engine) Serializer() *serializer.Registry { return e.ser }

// Stats returns the builder's cache counters.
func (e *Engine) Stats() builder.Stats { return e.builder.Stats() }

// Scopes returns the number of registered scopes.
func (e *Engine) Scopes() int { return e.registry.Len() }

// BuildScope builds the checksum tree of s and pins it under a new handle.
func (e *Engine) BuildScope(ctx context.Context, s *ir.SolutionState) (Handle, checksum.Checksum, error) {
	tree, err := e.builder.Build(ctx, s)
	if err != nil {
		return NoScope, checksum.Null, fmt.Errorf("build solution %s: %w", s.ID(), err)
	}
	h := Handle(e.clock.Next())
	if err := e.registry.Register(registry.NewScope(h, s, tree.Entry, tree.Root)); err != nil {
		return NoScope, checksum.Null, err
	}
	e.logger.Info("scope built",
		"handle", h,
		"solution", s.ID(),
		"root", tree.Root.Checksum().Short(),
	)
	return h, tree.Root.Checksum(), nil
}

// DisposeScope releases a scope. Disposing an unknown or already disposed
// handle is a contract violation.
func (e *Engine) DisposeScope(h Handle) error {
	if err := e.registry.Unregister(h); err != nil {
		return err
	}
	e.logger.Debug("scope disposed", "handle", h)
	return nil
}

// Root returns the root checksum of a registered scope.
func (e *Engine) Root(h Handle) (checksum.Checksum, bool) {
	s, ok := e.registry.Scope(h)
	if !ok {
		return checksum.Null, false
	}
	return s.Root().Checksum(), true
}

// ResolveOne returns the wire bytes of sum, or nil when it cannot be found.
// The error is non-nil only when ctx was cancelled and nothing was found.
func (e *Engine) ResolveOne(ctx context.Context, h Handle, sum checksum.Checksum) ([]byte, error) {
	n := e.registry.Resolve(ctx, h, sum)
	if n == nil {
		return nil, ctx.Err()
	}
	return asset.Marshal(n)
}

// ResolveMany returns the wire bytes of every checksum that can be found.
// Missing checksums are absent. When ctx is cancelled the partial result is
// returned together with the context error.
func (e *Engine) ResolveMany(ctx context.Context, h Handle, sums []checksum.Checksum) (map[checksum.Checksum][]byte, error) {
	nodes := e.registry.ResolveMany(ctx, h, sums)
	out := make(map[checksum.Checksum][]byte, len(nodes))
	for sum, n := range nodes {
		data, err := asset.Marshal(n)
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", sum.Short(), err)
		}
		out[sum] = data
	}
	return out, ctx.Err()
}

// AddGlobalAsset registers value as a leaf of kind k under key, independent
// of any scope. Re-adding an equal value under the same key is a no-op.
func (e *Engine) AddGlobalAsset(ctx context.Context, key any, k kind.Kind, value any) (checksum.Checksum, error) {
	a, err := asset.New(ctx, e.ser, k, value)
	if err != nil {
		return checksum.Null, err
	}
	if err := e.registry.AddGlobal(key, a); err != nil {
		return checksum.Null, err
	}
	return a.Checksum(), nil
}

// RemoveGlobalAsset removes a global asset and reports whether key existed.
func (e *Engine) RemoveGlobalAsset(key any) bool {
	return e.registry.RemoveGlobal(key)
}

// MaterializeSnapshot reconstructs the solution rooted at root, pulling
// nodes through f.
func (e *Engine) MaterializeSnapshot(ctx context.Context, root checksum.Checksum, f materialize.Fetcher) (*ir.SolutionInfo, error) {
	return e.materializer.Solution(ctx, root, f)
}

// Fetcher returns an in-process fetcher resolving against scope h.
func (e *Engine) Fetcher(h Handle) materialize.Fetcher {
	return materialize.FetchFunc(func(ctx context.Context, sums []checksum.Checksum) (map[checksum.Checksum][]byte, error) {
		return e.ResolveMany(ctx, h, sums)
	})
}
