package builder

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/assetsync/internal/asset"
	"github.com/roach88/assetsync/internal/checksum"
	"github.com/roach88/assetsync/internal/ir"
	"github.com/roach88/assetsync/internal/kind"
	"github.com/roach88/assetsync/internal/serializer"
	"github.com/roach88/assetsync/internal/testutil"
	"github.com/roach88/assetsync/internal/treecache"
	"github.com/roach88/assetsync/internal/wire"
)

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newBuilder() (*Builder, *testutil.EncodeCounter) {
	reg := serializer.New(serializer.WithLogger(quiet()))
	counter := testutil.CountingRegistry(reg)
	return New(treecache.New(), reg, WithLogger(quiet())), counter
}

func build(t *testing.T, b *Builder, s *ir.SolutionState) *Tree {
	t.Helper()
	tree, err := b.Build(context.Background(), s)
	require.NoError(t, err)
	return tree
}

// collect returns every node reachable from the tree root, root first,
// keyed by checksum.
func collect(t *testing.T, tree *Tree) map[checksum.Checksum]asset.Node {
	t.Helper()
	out := map[checksum.Checksum]asset.Node{}
	var visit func(n asset.Node)
	visit = func(n asset.Node) {
		out[n.Checksum()] = n
		c, ok := n.(*asset.Collection)
		if !ok {
			return
		}
		c.Walk(func(inner *asset.Collection) bool {
			out[inner.Checksum()] = inner
			return true
		})
		for _, ref := range c.References() {
			if _, seen := out[ref]; seen {
				continue
			}
			child, found := treecache.Find(context.Background(), tree.Entry, ref)
			require.True(t, found, "reference %s not resolvable", ref.Short())
			visit(child)
		}
	}
	visit(tree.Root)
	return out
}

func TestBuild_FieldOrder(t *testing.T) {
	b, _ := newBuilder()
	s := testutil.TwoProjectSolution()
	tree := build(t, b, s)

	root := tree.Root
	assert.Equal(t, kind.SolutionState, root.Kind())
	require.Equal(t, 4, root.Len())
	assert.False(t, root.Child(0).IsInline())
	assert.Equal(t, kind.Projects, root.Child(1).Node.Kind())
	assert.Equal(t, kind.AnalyzerReferences, root.Child(2).Node.Kind())
	assert.True(t, root.Child(3).Checksum.IsNull(), "absent option set is the Null checksum")

	projects := root.Child(1).Node
	require.Equal(t, 2, projects.Len())

	p, ok := treecache.Find(context.Background(), tree.Entry, projects.Child(0).Checksum)
	require.True(t, ok)
	project := p.(*asset.Collection)
	require.Equal(t, 8, project.Len())

	wantInline := []kind.Kind{kind.Documents, kind.ProjectReferences, kind.MetadataReferences, kind.AnalyzerReferences, kind.AdditionalDocuments}
	for i, k := range wantInline {
		child := project.Child(3 + i)
		require.True(t, child.IsInline(), "field %d", 3+i)
		assert.Equal(t, k, child.Node.Kind())
	}
	assert.Same(t, asset.Empty(kind.MetadataReferences), project.Child(5).Node)
	assert.False(t, project.Child(2).Checksum.IsNull(), "fixture projects carry parse options")

	d, ok := treecache.Find(context.Background(), tree.Entry, project.Child(3).Node.Child(0).Checksum)
	require.True(t, ok)
	assert.Equal(t, kind.DocumentState, d.Kind())
	assert.Equal(t, 2, d.(*asset.Collection).Len())
}

func TestBuild_Deterministic(t *testing.T) {
	b1, _ := newBuilder()
	b2, _ := newBuilder()

	// Two structurally identical but distinct object graphs.
	t1 := build(t, b1, testutil.TwoProjectSolution())
	t2 := build(t, b2, testutil.TwoProjectSolution())

	assert.Equal(t, t1.Root.Checksum(), t2.Root.Checksum())

	n1 := collect(t, t1)
	n2 := collect(t, t2)
	require.Equal(t, len(n1), len(n2))
	for sum, node := range n1 {
		other, ok := n2[sum]
		require.True(t, ok, "node %s %s missing from second build", node.Kind(), sum.Short())
		a, err := asset.Marshal(node)
		require.NoError(t, err)
		b, err := asset.Marshal(other)
		require.NoError(t, err)
		assert.Equal(t, a, b)
	}
}

func TestBuild_SameIdentityIsNotReEncoded(t *testing.T) {
	b, counter := newBuilder()
	s := testutil.TwoProjectSolution()

	first := build(t, b, s)
	encodes := counter.Total()
	require.Positive(t, encodes)
	misses := b.Stats().Misses

	second := build(t, b, s)
	assert.Equal(t, first.Root.Checksum(), second.Root.Checksum())
	assert.Same(t, first.Root, second.Root)
	assert.Equal(t, encodes, counter.Total(), "cached identity must not invoke encode again")
	assert.Equal(t, misses, b.Stats().Misses)
	assert.Positive(t, b.Stats().Hits)
}

func TestBuild_EditOneDocument(t *testing.T) {
	b, counter := newBuilder()
	s := testutil.TwoProjectSolution()
	before := build(t, b, s)
	encodes := counter.Total()

	docID := testutil.FirstDocument(s)
	edited, err := s.WithDocumentText(docID, ir.NewSourceText("class Lib { int x; }"))
	require.NoError(t, err)
	after := build(t, b, edited)

	assert.NotEqual(t, before.Root.Checksum(), after.Root.Checksum())
	assert.Equal(t, encodes+1, counter.Total(), "only the new text is encoded")
	assert.Equal(t, 1, counter.Count(kind.SourceText)-2)

	// The untouched project keeps its checksum; the edited one changes.
	bp := before.Root.Child(1).Node
	ap := after.Root.Child(1).Node
	const editedIdx = 0
	assert.NotEqual(t, bp.Child(editedIdx).Checksum, ap.Child(editedIdx).Checksum)
	assert.Equal(t, bp.Child(1-editedIdx).Checksum, ap.Child(1-editedIdx).Checksum)

	// Reverting the text restores the original checksum.
	reverted, err := edited.WithDocumentText(docID, ir.NewSourceText("class Lib {}"))
	require.NoError(t, err)
	assert.Equal(t, before.Root.Checksum(), build(t, b, reverted).Root.Checksum())
}

func TestBuild_MerkleSiblingsUnchanged(t *testing.T) {
	b, _ := newBuilder()
	sid := ir.SolutionID("sln")
	project := testutil.Project(sid, testutil.ProjectSpec{Name: "P", Documents: map[string]string{
		"/a.cs": "a", "/b.cs": "b", "/c.cs": "c",
	}})
	s := ir.NewSolutionState(&ir.SolutionAttributes{ID: sid}, []*ir.ProjectState{project}, nil, nil)
	before := build(t, b, s)

	mid := project.Documents()[1].ID()
	edited, err := s.WithDocumentText(mid, ir.NewSourceText("b2"))
	require.NoError(t, err)
	after := build(t, b, edited)

	docsOf := func(tree *Tree) *asset.Collection {
		p, ok := treecache.Find(context.Background(), tree.Entry, tree.Root.Child(1).Node.Child(0).Checksum)
		require.True(t, ok)
		return p.(*asset.Collection).Child(3).Node
	}
	bd, ad := docsOf(before), docsOf(after)
	assert.NotEqual(t, bd.Checksum(), ad.Checksum())
	assert.Equal(t, bd.Child(0).Checksum, ad.Child(0).Checksum)
	assert.NotEqual(t, bd.Child(1).Checksum, ad.Child(1).Checksum)
	assert.Equal(t, bd.Child(2).Checksum, ad.Child(2).Checksum)
}

func TestBuild_UnsupportedLanguageIsStillHashed(t *testing.T) {
	b, _ := newBuilder()
	tree := build(t, b, testutil.MixedLanguageSolution("C#", "Klingon"))
	assert.Equal(t, 2, tree.Root.Child(1).Node.Len())
}

func TestBuild_Concurrent(t *testing.T) {
	single, singleCounter := newBuilder()
	want := build(t, single, testutil.TwoProjectSolution()).Root.Checksum()

	b, counter := newBuilder()
	s := testutil.TwoProjectSolution()

	var wg sync.WaitGroup
	roots := make([]checksum.Checksum, 16)
	errs := make([]error, 16)
	for i := range roots {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tree, err := b.Build(context.Background(), s)
			errs[i] = err
			if err == nil {
				roots[i] = tree.Root.Checksum()
			}
		}()
	}
	wg.Wait()

	for i := range roots {
		require.NoError(t, errs[i])
		assert.Equal(t, want, roots[i])
	}
	assert.Equal(t, singleCounter.Total(), counter.Total(), "concurrent builds of one state encode each leaf once")
}

func TestBuild_CancelledContext(t *testing.T) {
	b, _ := newBuilder()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := b.Build(ctx, testutil.TwoProjectSolution())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBuild_JoinedCallerSurvivesLeaderCancel(t *testing.T) {
	ref, _ := newBuilder()
	want := build(t, ref, testutil.TwoProjectSolution()).Root.Checksum()

	reg := serializer.New(serializer.WithLogger(quiet()))
	codec, ok := reg.Codec(kind.ProjectAttributes)
	require.True(t, ok)
	encode := codec.Encode
	started := make(chan struct{})
	var calls atomic.Int32
	codec.Encode = func(ctx context.Context, v any, w *wire.Writer) error {
		if calls.Add(1) == 1 {
			close(started)
			<-ctx.Done()
			return ctx.Err()
		}
		return encode(ctx, v, w)
	}
	require.NoError(t, reg.Replace(kind.ProjectAttributes, codec))
	b := New(treecache.New(), reg, WithLogger(quiet()))
	s := testutil.TwoProjectSolution()

	ctxA, cancelA := context.WithCancel(context.Background())
	defer cancelA()
	errA := make(chan error, 1)
	go func() {
		_, err := b.Build(ctxA, s)
		errA <- err
	}()
	<-started

	type result struct {
		tree *Tree
		err  error
	}
	resB := make(chan result, 1)
	go func() {
		tree, err := b.Build(context.Background(), s)
		resB <- result{tree, err}
	}()
	// Give the second build time to join the in-flight one.
	time.Sleep(50 * time.Millisecond)
	cancelA()

	require.ErrorIs(t, <-errA, context.Canceled)
	select {
	case r := <-resB:
		require.NoError(t, r.err)
		assert.Equal(t, want, r.tree.Root.Checksum())
	case <-time.After(5 * time.Second):
		t.Fatal("second build did not finish")
	}
}

func TestBuild_EncodeErrorPropagates(t *testing.T) {
	b, _ := newBuilder()
	sid := ir.SolutionID("sln")
	p := testutil.Project(sid, testutil.ProjectSpec{Name: "Bad"})
	p = p.WithCompilationOptions(&ir.CompilationOptions{Language: "C#", Payload: []byte("{broken")})
	s := ir.NewSolutionState(&ir.SolutionAttributes{ID: sid}, []*ir.ProjectState{p}, nil, nil)

	_, err := b.Build(context.Background(), s)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "project")
}

// goldenSolution uses literal ids so the dump depends on nothing but the
// wire format.
func goldenSolution() *ir.SolutionState {
	doc := ir.NewDocumentState(
		&ir.DocumentAttributes{ID: "d-1", Name: "a.cs", FilePath: "/src/a.cs"},
		ir.NewSourceText("class A {}"),
	)
	project := ir.NewProjectState(ir.ProjectStateParts{
		Attributes:         &ir.ProjectAttributes{ID: "p-1", Name: "Core", AssemblyName: "Core", Language: "C#"},
		CompilationOptions: &ir.CompilationOptions{Language: "C#", Payload: []byte(`{"b": 1, "a": true}`)},
		Documents:          []*ir.DocumentState{doc},
	})
	return ir.NewSolutionState(
		&ir.SolutionAttributes{ID: "sln-1", FilePath: "/src/app.sln"},
		[]*ir.ProjectState{project},
		nil,
		&ir.OptionSet{Values: ir.MapValue{"indent": ir.IntValue(4)}},
	)
}

func dump(t *testing.T, tree *Tree) []byte {
	t.Helper()
	var buf bytes.Buffer
	seen := map[checksum.Checksum]bool{}
	var visit func(n asset.Node)
	visit = func(n asset.Node) {
		seen[n.Checksum()] = true
		fmt.Fprintf(&buf, "%s %s\n", n.Kind(), n.Checksum())
		c, ok := n.(*asset.Collection)
		if !ok {
			return
		}
		for _, ref := range c.References() {
			if seen[ref] {
				continue
			}
			child, found := treecache.Find(context.Background(), tree.Entry, ref)
			require.True(t, found)
			visit(child)
		}
	}
	visit(tree.Root)

	root, err := asset.Marshal(tree.Root)
	require.NoError(t, err)
	fmt.Fprintf(&buf, "root %s\n", hex.EncodeToString(root))
	return buf.Bytes()
}

func TestBuild_GoldenWireFormat(t *testing.T) {
	b, _ := newBuilder()
	tree := build(t, b, goldenSolution())

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "solution_tree", dump(t, tree))
}
