// Package materialize rebuilds typed solution info from checksums on the
// consuming side.
//
// Reconstruction mirrors the builder's field order positionally. Each level
// is fetched in one batch, and projects are reconstructed in parallel.
//
// Two outcomes are deliberate rather than errors:
//   - a project whose language is not in the supported set is dropped
//   - version stamps are not transmitted; fresh stamps are drawn from the
//     version source for every reconstructed solution, project and document
package materialize

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/assetsync/internal/asset"
	"github.com/roach88/assetsync/internal/checksum"
	"github.com/roach88/assetsync/internal/ir"
	"github.com/roach88/assetsync/internal/kind"
	"github.com/roach88/assetsync/internal/serializer"
)

// Field counts of the composite kinds.
const (
	solutionFields = 4
	projectFields  = 8
	documentFields = 2
)

// Materializer reconstructs solutions.
//
// Thread Safety: safe for concurrent use.
type Materializer struct {
	reg         *serializer.Registry
	languages   map[string]bool
	versions    func() ir.VersionStamp
	concurrency int
	logger      *slog.Logger
}

// Option configures a Materializer.
type Option func(*Materializer)

// WithSupportedLanguages restricts reconstruction to projects in the given
// languages. With no call every language is supported.
func WithSupportedLanguages(languages ...string) Option {
	return func(m *Materializer) {
		m.languages = make(map[string]bool, len(languages))
		for _, l := range languages {
			m.languages[l] = true
		}
	}
}

// WithVersionSource sets where fresh version stamps come from.
func WithVersionSource(next func() ir.VersionStamp) Option {
	return func(m *Materializer) { m.versions = next }
}

// WithConcurrency bounds parallel project reconstruction. Default 8.
func WithConcurrency(n int) Option {
	return func(m *Materializer) {
		if n > 0 {
			m.concurrency = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Materializer) { m.logger = l }
}

// New creates a materializer decoding leaves with reg.
func New(reg *serializer.Registry, opts ...Option) *Materializer {
	var seq atomic.Int64
	m := &Materializer{
		reg:         reg,
		versions:    func() ir.VersionStamp { return ir.VersionStamp(seq.Add(1)) },
		concurrency: 8,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Supports reports whether projects in language are reconstructed.
func (m *Materializer) Supports(language string) bool {
	return m.languages == nil || m.languages[language]
}

// Solution reconstructs the solution whose SolutionState node is root.
func (m *Materializer) Solution(ctx context.Context, root checksum.Checksum, f Fetcher) (*ir.SolutionInfo, error) {
	top, err := fetchNodes(ctx, f, []checksum.Checksum{root})
	if err != nil {
		return nil, err
	}
	node, err := top.collection(root, kind.SolutionState, solutionFields)
	if err != nil {
		return nil, err
	}
	projects, err := inline(node, 1, kind.Projects)
	if err != nil {
		return nil, err
	}
	analyzers, err := inline(node, 2, kind.AnalyzerReferences)
	if err != nil {
		return nil, err
	}

	attrsSum, optionsSum := node.Child(0).Checksum, node.Child(3).Checksum
	batch := append([]checksum.Checksum{attrsSum, optionsSum}, refs(analyzers)...)
	batch = append(batch, refs(projects)...)
	nodes, err := fetchNodes(ctx, f, batch)
	if err != nil {
		return nil, err
	}

	attrs, err := leafValue[ir.SolutionAttributes](ctx, m, nodes, attrsSum, kind.SolutionAttributes)
	if err != nil {
		return nil, err
	}
	if attrs == nil {
		return nil, fmt.Errorf("%w: solution without attributes", asset.ErrCorruptNode)
	}
	options, err := leafValue[ir.OptionSet](ctx, m, nodes, optionsSum, kind.OptionSet)
	if err != nil {
		return nil, err
	}
	analyzerRefs, err := leafValues[ir.AnalyzerReference](ctx, m, nodes, refs(analyzers), kind.AnalyzerReference)
	if err != nil {
		return nil, err
	}

	info := &ir.SolutionInfo{
		Attributes:         *attrs,
		AnalyzerReferences: analyzerRefs,
		Options:            options,
	}
	info.Attributes.Version = m.versions()

	slots := make([]*ir.ProjectInfo, projects.Len())
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)
	for i, sum := range refs(projects) {
		g.Go(func() error {
			p, err := m.project(gctx, nodes, sum, f)
			if err != nil {
				return fmt.Errorf("project %s: %w", sum.Short(), err)
			}
			slots[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	info.Projects = make([]ir.ProjectInfo, 0, len(slots))
	for _, p := range slots {
		if p != nil {
			info.Projects = append(info.Projects, *p)
		}
	}
	return info, nil
}

// project returns nil when the project's language is unsupported.
func (m *Materializer) project(ctx context.Context, parent nodeSet, sum checksum.Checksum, f Fetcher) (*ir.ProjectInfo, error) {
	node, err := parent.collection(sum, kind.ProjectState, projectFields)
	if err != nil {
		return nil, err
	}

	attrsSum := node.Child(0).Checksum
	head, err := fetchNodes(ctx, f, []checksum.Checksum{attrsSum})
	if err != nil {
		return nil, err
	}
	attrs, err := leafValue[ir.ProjectAttributes](ctx, m, head, attrsSum, kind.ProjectAttributes)
	if err != nil {
		return nil, err
	}
	if attrs == nil {
		return nil, fmt.Errorf("%w: project without attributes", asset.ErrCorruptNode)
	}
	if !m.Supports(attrs.Language) {
		m.logger.Debug("skipping project in unsupported language",
			"project", attrs.ID,
			"language", attrs.Language,
		)
		return nil, nil
	}

	inlined := [projectFields]kind.Kind{
		3: kind.Documents,
		4: kind.ProjectReferences,
		5: kind.MetadataReferences,
		6: kind.AnalyzerReferences,
		7: kind.AdditionalDocuments,
	}
	fields := make([]*asset.Collection, projectFields)
	for i := 3; i < projectFields; i++ {
		if fields[i], err = inline(node, i, inlined[i]); err != nil {
			return nil, err
		}
	}

	compSum, parseSum := node.Child(1).Checksum, node.Child(2).Checksum
	batch := []checksum.Checksum{compSum, parseSum}
	for _, c := range fields[3:] {
		batch = append(batch, refs(c)...)
	}
	nodes, err := fetchNodes(ctx, f, batch)
	if err != nil {
		return nil, err
	}

	info := &ir.ProjectInfo{Attributes: *attrs}
	info.Attributes.Version = m.versions()
	if info.CompilationOptions, err = leafValue[ir.CompilationOptions](ctx, m, nodes, compSum, kind.CompilationOptions); err != nil {
		return nil, err
	}
	if info.ParseOptions, err = leafValue[ir.ParseOptions](ctx, m, nodes, parseSum, kind.ParseOptions); err != nil {
		return nil, err
	}
	if info.ProjectReferences, err = leafValues[ir.ProjectReference](ctx, m, nodes, refs(fields[4]), kind.ProjectReference); err != nil {
		return nil, err
	}
	if info.MetadataReferences, err = leafValues[ir.MetadataReference](ctx, m, nodes, refs(fields[5]), kind.MetadataReference); err != nil {
		return nil, err
	}
	if info.AnalyzerReferences, err = leafValues[ir.AnalyzerReference](ctx, m, nodes, refs(fields[6]), kind.AnalyzerReference); err != nil {
		return nil, err
	}
	if info.Documents, err = m.documents(ctx, nodes, refs(fields[3]), f); err != nil {
		return nil, err
	}
	if info.AdditionalDocuments, err = m.documents(ctx, nodes, refs(fields[7]), f); err != nil {
		return nil, err
	}
	if info.Documents == nil {
		info.Documents = []ir.DocumentInfo{}
	}
	return info, nil
}

func (m *Materializer) documents(ctx context.Context, parent nodeSet, sums []checksum.Checksum, f Fetcher) ([]ir.DocumentInfo, error) {
	if len(sums) == 0 {
		return nil, nil
	}
	composites := make([]*asset.Collection, len(sums))
	var batch []checksum.Checksum
	for i, sum := range sums {
		c, err := parent.collection(sum, kind.DocumentState, documentFields)
		if err != nil {
			return nil, err
		}
		composites[i] = c
		batch = append(batch, refs(c)...)
	}
	nodes, err := fetchNodes(ctx, f, batch)
	if err != nil {
		return nil, err
	}

	out := make([]ir.DocumentInfo, len(composites))
	for i, c := range composites {
		attrs, err := leafValue[ir.DocumentAttributes](ctx, m, nodes, c.Child(0).Checksum, kind.DocumentAttributes)
		if err != nil {
			return nil, err
		}
		if attrs == nil {
			return nil, fmt.Errorf("%w: document without attributes", asset.ErrCorruptNode)
		}
		text, err := leafValue[ir.SourceText](ctx, m, nodes, c.Child(1).Checksum, kind.SourceText)
		if err != nil {
			return nil, err
		}
		out[i] = ir.DocumentInfo{Attributes: *attrs, Text: text}
		out[i].Attributes.Version = m.versions()
	}
	return out, nil
}

// leafValue decodes the leaf at sum as a *T. The Null checksum yields nil.
func leafValue[T any](ctx context.Context, m *Materializer, nodes nodeSet, sum checksum.Checksum, k kind.Kind) (*T, error) {
	if sum.IsNull() {
		return nil, nil
	}
	n, ok := nodes[sum]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingAsset, sum)
	}
	a, ok := n.(*asset.Asset)
	if !ok || a.Kind() != k {
		return nil, fmt.Errorf("%w: %s is %s, expected %s", asset.ErrCorruptNode, sum.Short(), n.Kind(), k)
	}
	v, err := a.Decode(ctx, m.reg)
	if err != nil {
		return nil, err
	}
	typed, ok := v.(*T)
	if !ok {
		return nil, fmt.Errorf("%s decoded to %T", k, v)
	}
	return typed, nil
}

// leafValues decodes a list of leaves, skipping Null entries.
func leafValues[T any](ctx context.Context, m *Materializer, nodes nodeSet, sums []checksum.Checksum, k kind.Kind) ([]T, error) {
	if len(sums) == 0 {
		return nil, nil
	}
	out := make([]T, 0, len(sums))
	for _, sum := range sums {
		v, err := leafValue[T](ctx, m, nodes, sum, k)
		if err != nil {
			return nil, err
		}
		if v != nil {
			out = append(out, *v)
		}
	}
	return out, nil
}
