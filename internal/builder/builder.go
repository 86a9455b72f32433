package builder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/roach88/assetsync/internal/asset"
	"github.com/roach88/assetsync/internal/checksum"
	"github.com/roach88/assetsync/internal/ir"
	"github.com/roach88/assetsync/internal/kind"
	"github.com/roach88/assetsync/internal/serializer"
	"github.com/roach88/assetsync/internal/treecache"
)

// Stats counts cache traffic since the builder was created.
type Stats struct {
	Hits   int64
	Misses int64
}

// Tree is the result of a build.
type Tree struct {
	// Root is the solution's composite node.
	Root *asset.Collection

	// Entry is the solution's cache entry. Holding it (together with the
	// solution state) keeps every node of the tree resolvable.
	Entry *treecache.Entry
}

// Builder produces checksum trees.
//
// Thread Safety: safe for concurrent use. Concurrent builds of the same
// state object are collapsed into one.
type Builder struct {
	cache       *treecache.Cache
	reg         *serializer.Registry
	logger      *slog.Logger
	concurrency int

	group  singleflight.Group
	hits   atomic.Int64
	misses atomic.Int64
}

// Option configures a Builder.
type Option func(*Builder)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Builder) { b.logger = l }
}

// WithConcurrency bounds how many projects are built in parallel.
// Values < 1 mean GOMAXPROCS.
func WithConcurrency(n int) Option {
	return func(b *Builder) { b.concurrency = n }
}

// New creates a builder over a shared identity cache and serializer.
func New(cache *treecache.Cache, reg *serializer.Registry, opts ...Option) *Builder {
	b := &Builder{
		cache:  cache,
		reg:    reg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.concurrency < 1 {
		b.concurrency = runtime.GOMAXPROCS(0)
	}
	return b
}

// Stats returns a snapshot of the cache counters.
func (b *Builder) Stats() Stats {
	return Stats{Hits: b.hits.Load(), Misses: b.misses.Load()}
}

// Build returns the checksum tree of s.
func (b *Builder) Build(ctx context.Context, s *ir.SolutionState) (*Tree, error) {
	ctx, span := startBuildSpan(ctx, string(s.ID()), len(s.Projects()))
	defer span.End()

	entry, root, err := composite(ctx, b, s, kind.SolutionState, func(ctx context.Context, scope *treecache.ChildScope) ([]asset.Child, error) {
		return b.solutionChildren(ctx, s, scope)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("solution.checksum", root.Checksum().String()))
	b.logger.Debug("built solution tree",
		"solution", s.ID(),
		"checksum", root.Checksum().Short(),
	)
	return &Tree{Root: root, Entry: entry}, nil
}

func (b *Builder) solutionChildren(ctx context.Context, s *ir.SolutionState, scope *treecache.ChildScope) ([]asset.Child, error) {
	attrs, err := leaf(ctx, b, scope, kind.SolutionAttributes, s.Attributes())
	if err != nil {
		return nil, err
	}

	projects := s.Projects()
	sums := make([]checksum.Checksum, len(projects))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)
	for i, p := range projects {
		g.Go(func() error {
			entry, node, err := b.project(gctx, p)
			if err != nil {
				return fmt.Errorf("project %s: %w", p.ID(), err)
			}
			scope.Link(entry)
			sums[i] = node.Checksum()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	analyzers, err := leaves(ctx, b, scope, kind.AnalyzerReferences, kind.AnalyzerReference, s.AnalyzerReferences())
	if err != nil {
		return nil, err
	}
	options, err := leaf(ctx, b, scope, kind.OptionSet, s.Options())
	if err != nil {
		return nil, err
	}

	return []asset.Child{
		asset.Ref(attrs),
		asset.Inline(asset.NewCollectionOf(kind.Projects, sums)),
		asset.Inline(analyzers),
		asset.Ref(options),
	}, nil
}

func (b *Builder) project(ctx context.Context, p *ir.ProjectState) (*treecache.Entry, *asset.Collection, error) {
	return composite(ctx, b, p, kind.ProjectState, func(ctx context.Context, scope *treecache.ChildScope) ([]asset.Child, error) {
		attrs, err := leaf(ctx, b, scope, kind.ProjectAttributes, p.Attributes())
		if err != nil {
			return nil, err
		}
		compilation, err := leaf(ctx, b, scope, kind.CompilationOptions, p.CompilationOptions())
		if err != nil {
			return nil, err
		}
		parse, err := leaf(ctx, b, scope, kind.ParseOptions, p.ParseOptions())
		if err != nil {
			return nil, err
		}
		docs, err := b.documents(ctx, scope, kind.Documents, p.Documents())
		if err != nil {
			return nil, err
		}
		projectRefs, err := leaves(ctx, b, scope, kind.ProjectReferences, kind.ProjectReference, p.ProjectReferences())
		if err != nil {
			return nil, err
		}
		metadataRefs, err := leaves(ctx, b, scope, kind.MetadataReferences, kind.MetadataReference, p.MetadataReferences())
		if err != nil {
			return nil, err
		}
		analyzerRefs, err := leaves(ctx, b, scope, kind.AnalyzerReferences, kind.AnalyzerReference, p.AnalyzerReferences())
		if err != nil {
			return nil, err
		}
		additional, err := b.documents(ctx, scope, kind.AdditionalDocuments, p.AdditionalDocuments())
		if err != nil {
			return nil, err
		}

		return []asset.Child{
			asset.Ref(attrs),
			asset.Ref(compilation),
			asset.Ref(parse),
			asset.Inline(docs),
			asset.Inline(projectRefs),
			asset.Inline(metadataRefs),
			asset.Inline(analyzerRefs),
			asset.Inline(additional),
		}, nil
	})
}

func (b *Builder) documents(ctx context.Context, scope *treecache.ChildScope, k kind.Kind, docs []*ir.DocumentState) (*asset.Collection, error) {
	if len(docs) == 0 {
		return asset.Empty(k), nil
	}
	sums := make([]checksum.Checksum, len(docs))
	for i, d := range docs {
		entry, node, err := b.document(ctx, d)
		if err != nil {
			return nil, fmt.Errorf("document %s: %w", d.ID(), err)
		}
		scope.Link(entry)
		sums[i] = node.Checksum()
	}
	return asset.NewCollectionOf(k, sums), nil
}

func (b *Builder) document(ctx context.Context, d *ir.DocumentState) (*treecache.Entry, *asset.Collection, error) {
	return composite(ctx, b, d, kind.DocumentState, func(ctx context.Context, scope *treecache.ChildScope) ([]asset.Child, error) {
		attrs, err := leaf(ctx, b, scope, kind.DocumentAttributes, d.Attributes())
		if err != nil {
			return nil, err
		}
		text, err := leaf(ctx, b, scope, kind.SourceText, d.Text())
		if err != nil {
			return nil, err
		}
		return []asset.Child{asset.Ref(attrs), asset.Ref(text)}, nil
	})
}

// composite returns the cached node of kind k for id, building it from
// children on a miss.
func composite[T any](
	ctx context.Context,
	b *Builder,
	id *T,
	k kind.Kind,
	children func(context.Context, *treecache.ChildScope) ([]asset.Child, error),
) (*treecache.Entry, *asset.Collection, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	entry := treecache.EntryFor(b.cache, id)
	if n, ok := entry.Get(k); ok {
		b.hit(ctx, k)
		return entry, n.(*asset.Collection), nil
	}

	key := fmt.Sprintf("%p/%d", id, k)
	for {
		v, err, shared := b.group.Do(key, func() (any, error) {
			if n, ok := entry.Get(k); ok {
				return n, nil
			}
			b.miss(ctx, k)
			ch, err := children(ctx, entry.ChildScope())
			if err != nil {
				return nil, err
			}
			return entry.Add(asset.NewCollection(k, ch))
		})
		if err == nil {
			return entry, v.(*asset.Collection), nil
		}
		// The flight ran under the leader's context. When only the leader
		// was cancelled, a joined caller starts its own flight.
		if shared && ctx.Err() == nil && isCancellation(err) {
			b.logger.Debug("shared build cancelled by another caller, retrying", "kind", k)
			continue
		}
		return nil, nil, err
	}
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// leaf returns the checksum of value as kind k, encoding it only on a
// cache miss. A nil value is the Null checksum.
func leaf[T any](ctx context.Context, b *Builder, scope *treecache.ChildScope, k kind.Kind, value *T) (checksum.Checksum, error) {
	if value == nil {
		return checksum.Null, nil
	}
	entry := treecache.EntryFor(b.cache, value)
	scope.Link(entry)
	if n, ok := entry.Get(k); ok {
		b.hit(ctx, k)
		return n.Checksum(), nil
	}

	b.miss(ctx, k)
	a, err := asset.New(ctx, b.reg, k, value)
	if err != nil {
		return checksum.Null, err
	}
	n, err := entry.Add(a)
	if err != nil {
		return checksum.Null, err
	}
	return n.Checksum(), nil
}

// leaves builds a collection of kind ck from leaf values of kind k.
func leaves[T any](ctx context.Context, b *Builder, scope *treecache.ChildScope, ck, k kind.Kind, values []*T) (*asset.Collection, error) {
	if len(values) == 0 {
		return asset.Empty(ck), nil
	}
	sums := make([]checksum.Checksum, len(values))
	for i, v := range values {
		sum, err := leaf(ctx, b, scope, k, v)
		if err != nil {
			return nil, err
		}
		sums[i] = sum
	}
	return asset.NewCollectionOf(ck, sums), nil
}

func (b *Builder) hit(ctx context.Context, k kind.Kind) {
	b.hits.Add(1)
	recordCacheHit(ctx, k)
}

func (b *Builder) miss(ctx context.Context, k kind.Kind) {
	b.misses.Add(1)
	recordCacheMiss(ctx, k)
}
