package registry

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/assetsync/internal/asset"
	"github.com/roach88/assetsync/internal/builder"
	"github.com/roach88/assetsync/internal/checksum"
	"github.com/roach88/assetsync/internal/ir"
	"github.com/roach88/assetsync/internal/kind"
	"github.com/roach88/assetsync/internal/serializer"
	"github.com/roach88/assetsync/internal/testutil"
	"github.com/roach88/assetsync/internal/treecache"
)

type fixture struct {
	reg     *Registry
	builder *builder.Builder
	ser     *serializer.Registry
}

func newFixture() *fixture {
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	ser := serializer.New(serializer.WithLogger(quiet))
	return &fixture{
		reg:     New(WithLogger(quiet)),
		builder: builder.New(treecache.New(), ser, builder.WithLogger(quiet)),
		ser:     ser,
	}
}

func (f *fixture) register(t *testing.T, h Handle, s *ir.SolutionState) *builder.Tree {
	t.Helper()
	tree, err := f.builder.Build(context.Background(), s)
	require.NoError(t, err)
	require.NoError(t, f.reg.Register(NewScope(h, s, tree.Entry, tree.Root)))
	return tree
}

// reachable lists the root and every checksum referenced beneath it.
func reachable(t *testing.T, tree *builder.Tree) []checksum.Checksum {
	t.Helper()
	out := []checksum.Checksum{tree.Root.Checksum()}
	seen := map[checksum.Checksum]bool{tree.Root.Checksum(): true}
	for i := 0; i < len(out); i++ {
		n, ok := treecache.Find(context.Background(), tree.Entry, out[i])
		require.True(t, ok)
		c, ok := n.(*asset.Collection)
		if !ok {
			continue
		}
		for _, ref := range c.References() {
			if !seen[ref] {
				seen[ref] = true
				out = append(out, ref)
			}
		}
	}
	return out
}

func TestResolve_EveryReachableChecksum(t *testing.T) {
	f := newFixture()
	tree := f.register(t, 1, testutil.TwoProjectSolution())
	ctx := context.Background()

	sums := reachable(t, tree)
	// Both fixture projects carry equal compilation and parse options, so
	// those two leaves are shared: 2 solution-level + 7 + 5.
	require.Len(t, sums, 14)

	for _, sum := range sums {
		n := f.reg.Resolve(ctx, 1, sum)
		require.NotNil(t, n, "checksum %s", sum.Short())
		assert.Equal(t, sum, n.Checksum())

		assert.NotNil(t, f.reg.Resolve(ctx, NoScope, sum))
	}
}

func TestResolve_AfterDisposeNotFound(t *testing.T) {
	f := newFixture()
	tree := f.register(t, 7, testutil.TwoProjectSolution())
	ctx := context.Background()
	sums := reachable(t, tree)

	require.NoError(t, f.reg.Unregister(7))

	for _, sum := range sums {
		assert.Nil(t, f.reg.Resolve(ctx, 7, sum))
		assert.Nil(t, f.reg.Resolve(ctx, NoScope, sum))
	}
	assert.Empty(t, f.reg.ResolveMany(ctx, NoScope, sums))
}

func TestScopeLifecycleErrors(t *testing.T) {
	f := newFixture()
	s := testutil.TwoProjectSolution()
	f.register(t, 1, s)

	tree, err := f.builder.Build(context.Background(), s)
	require.NoError(t, err)

	err = f.reg.Register(NewScope(1, s, tree.Entry, tree.Root))
	require.Error(t, err)
	assert.True(t, IsDuplicateScopeError(err))
	assert.False(t, IsUnknownScopeError(err))

	err = f.reg.Register(NewScope(NoScope, s, tree.Entry, tree.Root))
	assert.True(t, IsDuplicateScopeError(err))

	err = f.reg.Unregister(99)
	require.Error(t, err)
	assert.True(t, IsUnknownScopeError(err))

	require.NoError(t, f.reg.Unregister(1))
	err = f.reg.Unregister(1)
	assert.True(t, IsUnknownScopeError(err), "disposing twice is a caller bug")
	assert.Contains(t, err.Error(), "UNKNOWN_SCOPE")

	err = f.reg.Register(NewScope(1, s, tree.Entry, tree.Root))
	require.Error(t, err, "an unregistered handle cannot come back")
	assert.True(t, IsRetiredScopeError(err))
	assert.False(t, IsDuplicateScopeError(err))
	assert.Contains(t, err.Error(), "RETIRED_SCOPE")
	_, ok := f.reg.Scope(1)
	assert.False(t, ok)
	assert.Equal(t, 0, f.reg.Len())
}

func TestRegister_RetiredHandleStaysRetired(t *testing.T) {
	f := newFixture()
	s := testutil.TwoProjectSolution()
	tree := f.register(t, 7, s)
	require.NoError(t, f.reg.Unregister(7))

	for range 3 {
		err := f.reg.Register(NewScope(7, s, tree.Entry, tree.Root))
		assert.True(t, IsRetiredScopeError(err))
	}
	assert.Nil(t, f.reg.Resolve(context.Background(), 7, tree.Root.Checksum()))

	// Fresh handles are unaffected.
	f.register(t, 8, s)
	assert.NotNil(t, f.reg.Resolve(context.Background(), 8, tree.Root.Checksum()))
}

func TestResolveMany_PartialResult(t *testing.T) {
	f := newFixture()
	tree := f.register(t, 1, testutil.TwoProjectSolution())
	sums := reachable(t, tree)

	a, c := sums[0], sums[len(sums)-1]
	b := checksum.Create([]byte("not in any tree"))

	got := f.reg.ResolveMany(context.Background(), 1, []checksum.Checksum{a, b, c})
	require.Len(t, got, 2)
	assert.Contains(t, got, a)
	assert.Contains(t, got, c)
	assert.NotContains(t, got, b)
}

func TestResolve_HandleLimitsSearch(t *testing.T) {
	f := newFixture()
	first := f.register(t, 1, testutil.Solution("One", testutil.ProjectSpec{Name: "A"}))
	f.register(t, 2, testutil.Solution("Two", testutil.ProjectSpec{Name: "B"}))
	ctx := context.Background()

	onlyInFirst := first.Root.Checksum()
	assert.NotNil(t, f.reg.Resolve(ctx, 1, onlyInFirst))
	assert.Nil(t, f.reg.Resolve(ctx, 2, onlyInFirst))
	assert.NotNil(t, f.reg.Resolve(ctx, NoScope, onlyInFirst))
	assert.Nil(t, f.reg.Resolve(ctx, 42, onlyInFirst), "unknown handle is a miss, not an error")
}

func TestResolve_ScopesSharingSnapshotSearchedOnce(t *testing.T) {
	f := newFixture()
	s := testutil.TwoProjectSolution()
	f.register(t, 1, s)
	f.register(t, 2, s)

	assert.Len(t, f.reg.searchOrder(NoScope), 1)
	assert.Equal(t, 2, f.reg.Len())

	require.NoError(t, f.reg.Unregister(1))
	assert.NotNil(t, f.reg.Resolve(context.Background(), NoScope, reachable(t, f.register(t, 3, s))[0]))
}

func TestGlobalAssets(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	ref := &ir.MetadataReference{FilePath: "/nonexistent/mscorlib.dll"}

	a, err := asset.New(ctx, f.ser, kind.MetadataReference, ref)
	require.NoError(t, err)

	require.NoError(t, f.reg.AddGlobal("mscorlib", a))
	require.NoError(t, f.reg.AddGlobal("mscorlib", a), "re-adding the same asset is a no-op")

	other, err := asset.New(ctx, f.ser, kind.MetadataReference, &ir.MetadataReference{FilePath: "/other.dll"})
	require.NoError(t, err)
	err = f.reg.AddGlobal("mscorlib", other)
	assert.ErrorIs(t, err, treecache.ErrChecksumMismatch)

	// Globals resolve regardless of scope, and survive scope disposal.
	f.register(t, 5, testutil.TwoProjectSolution())
	assert.Same(t, a, f.reg.Resolve(ctx, 5, a.Checksum()))
	assert.Same(t, a, f.reg.Resolve(ctx, NoScope, a.Checksum()))
	require.NoError(t, f.reg.Unregister(5))
	assert.Same(t, a, f.reg.Resolve(ctx, 5, a.Checksum()))
	assert.Contains(t, f.reg.ResolveMany(ctx, NoScope, []checksum.Checksum{a.Checksum()}), a.Checksum())

	// Two keys may share one asset; removing one keeps it resolvable.
	require.NoError(t, f.reg.AddGlobal("alias", a))
	assert.True(t, f.reg.RemoveGlobal("mscorlib"))
	assert.False(t, f.reg.RemoveGlobal("mscorlib"))
	assert.NotNil(t, f.reg.Resolve(ctx, NoScope, a.Checksum()))
	assert.True(t, f.reg.RemoveGlobal("alias"))
	assert.Nil(t, f.reg.Resolve(ctx, NoScope, a.Checksum()))

	_, ok := f.reg.Global("alias")
	assert.False(t, ok)
}

func TestResolve_CancelledContext(t *testing.T) {
	f := newFixture()
	tree := f.register(t, 1, testutil.TwoProjectSolution())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Nil(t, f.reg.Resolve(ctx, 1, tree.Root.Checksum()))
	assert.Empty(t, f.reg.ResolveMany(ctx, 1, []checksum.Checksum{tree.Root.Checksum()}))
}

func TestResolve_ConcurrentWithOtherScopeChurn(t *testing.T) {
	f := newFixture()
	stable := f.register(t, 1, testutil.TwoProjectSolution())
	sums := reachable(t, stable)
	ctx := context.Background()

	churn := testutil.Solution("Churn", testutil.ProjectSpec{Name: "X", Documents: map[string]string{"/x.cs": "x"}})
	churnTree, err := f.builder.Build(ctx, churn)
	require.NoError(t, err)

	var wg sync.WaitGroup
	failures := make(chan string, 1024)
	for w := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 200 {
				h := Handle(1000 + w*1000 + i)
				if err := f.reg.Register(NewScope(h, churn, churnTree.Entry, churnTree.Root)); err != nil {
					failures <- err.Error()
					return
				}
				if err := f.reg.Unregister(h); err != nil {
					failures <- err.Error()
					return
				}
			}
		}()
	}
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				got := f.reg.ResolveMany(ctx, 1, sums)
				if len(got) != len(sums) {
					failures <- "stable scope lost checksums during churn"
					return
				}
				if f.reg.Resolve(ctx, NoScope, sums[len(sums)-1]) == nil {
					failures <- "NoScope search missed stable checksum"
					return
				}
			}
		}()
	}
	wg.Wait()
	close(failures)
	for msg := range failures {
		t.Error(msg)
	}
	assert.Equal(t, 1, f.reg.Len())
}
