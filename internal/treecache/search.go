package treecache

import (
	"context"

	"github.com/roach88/assetsync/internal/asset"
	"github.com/roach88/assetsync/internal/checksum"
)

// cancelCheckInterval is how many entries a search visits between
// context checks.
const cancelCheckInterval = 64

// Find searches root and everything reachable through child scopes for
// sum, depth first, stopping at the first match. A cancelled context ends
// the search with no result.
func Find(ctx context.Context, root *Entry, sum checksum.Checksum) (asset.Node, bool) {
	var found asset.Node
	walk(ctx, root, func(e *Entry) bool {
		if n, ok := e.Lookup(sum); ok {
			found = n
			return false
		}
		return true
	})
	return found, found != nil
}

// FindMany searches for every checksum in wanted. Found checksums are
// removed from wanted and added to out; the search stops as soon as wanted
// is empty. A cancelled context leaves a partial result.
func FindMany(ctx context.Context, root *Entry, wanted checksum.Set, out map[checksum.Checksum]asset.Node) {
	if len(wanted) == 0 {
		return
	}
	walk(ctx, root, func(e *Entry) bool {
		for sum := range wanted {
			if n, ok := e.Lookup(sum); ok {
				out[sum] = n
				delete(wanted, sum)
			}
		}
		return len(wanted) > 0
	})
}

// walk visits entries depth first, each at most once, until visit returns
// false or ctx is done.
func walk(ctx context.Context, root *Entry, visit func(*Entry) bool) {
	if root == nil {
		return
	}
	seen := make(map[*Entry]struct{})
	stack := []*Entry{root}
	for steps := 0; len(stack) > 0; steps++ {
		if steps%cancelCheckInterval == 0 && ctx.Err() != nil {
			return
		}
		e := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}

		if !visit(e) {
			return
		}
		if cs := e.existingChildren(); cs != nil {
			children := cs.Entries()
			// Push in reverse so children are visited in link order.
			for i := len(children) - 1; i >= 0; i-- {
				stack = append(stack, children[i])
			}
		}
	}
}
