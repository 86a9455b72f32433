package materialize

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/assetsync/internal/asset"
	"github.com/roach88/assetsync/internal/checksum"
	"github.com/roach88/assetsync/internal/kind"
)

// ErrMissingAsset is returned when the fetcher cannot supply a checksum.
var ErrMissingAsset = errors.New("asset not available")

// Fetcher pulls node bytes by checksum. Checksums it cannot supply are
// absent from the result; that is not an error at this layer.
type Fetcher interface {
	Fetch(ctx context.Context, sums []checksum.Checksum) (map[checksum.Checksum][]byte, error)
}

// FetchFunc adapts a function to Fetcher.
type FetchFunc func(ctx context.Context, sums []checksum.Checksum) (map[checksum.Checksum][]byte, error)

// Fetch implements Fetcher.
func (f FetchFunc) Fetch(ctx context.Context, sums []checksum.Checksum) (map[checksum.Checksum][]byte, error) {
	return f(ctx, sums)
}

// MapFetcher serves node bytes from memory.
type MapFetcher map[checksum.Checksum][]byte

// Fetch implements Fetcher.
func (m MapFetcher) Fetch(_ context.Context, sums []checksum.Checksum) (map[checksum.Checksum][]byte, error) {
	out := make(map[checksum.Checksum][]byte, len(sums))
	for _, s := range sums {
		if b, ok := m[s]; ok {
			out[s] = b
		}
	}
	return out, nil
}

// nodeSet is a batch of fetched, structurally verified nodes.
type nodeSet map[checksum.Checksum]asset.Node

// fetchNodes fetches sums (Null and duplicates skipped) in one call and
// decodes every node. Every requested checksum must be supplied.
func fetchNodes(ctx context.Context, f Fetcher, sums []checksum.Checksum) (nodeSet, error) {
	wanted := checksum.NewSet()
	for _, s := range sums {
		if !s.IsNull() {
			wanted.Add(s)
		}
	}
	if len(wanted) == 0 {
		return nodeSet{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw, err := f.Fetch(ctx, wanted.Slice())
	if err != nil {
		return nil, fmt.Errorf("fetch %d assets: %w", len(wanted), err)
	}
	out := make(nodeSet, len(wanted))
	for sum := range wanted {
		data, ok := raw[sum]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingAsset, sum)
		}
		n, err := asset.Unmarshal(data)
		if err != nil {
			return nil, fmt.Errorf("asset %s: %w", sum.Short(), err)
		}
		if n.Checksum() != sum {
			return nil, fmt.Errorf("%w: requested %s, received %s", asset.ErrCorruptNode, sum.Short(), n.Checksum().Short())
		}
		out[sum] = n
	}
	return out, nil
}

// collection returns the node for sum as a collection of kind k with
// exactly fields children.
func (s nodeSet) collection(sum checksum.Checksum, k kind.Kind, fields int) (*asset.Collection, error) {
	n, ok := s[sum]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingAsset, sum)
	}
	c, ok := n.(*asset.Collection)
	if !ok || c.Kind() != k {
		return nil, fmt.Errorf("%w: %s is %s, expected %s", asset.ErrCorruptNode, sum.Short(), n.Kind(), k)
	}
	if fields >= 0 && c.Len() != fields {
		return nil, fmt.Errorf("%w: %s has %d fields, expected %d", asset.ErrCorruptNode, k, c.Len(), fields)
	}
	return c, nil
}

// inline returns field i of c, which must be an inlined collection of kind k.
func inline(c *asset.Collection, i int, k kind.Kind) (*asset.Collection, error) {
	ch := c.Child(i)
	if !ch.IsInline() || ch.Node.Kind() != k {
		return nil, fmt.Errorf("%w: field %d of %s is not an inlined %s", asset.ErrCorruptNode, i, c.Kind(), k)
	}
	return ch.Node, nil
}

// refs returns the reference checksums of a collection's children.
func refs(c *asset.Collection) []checksum.Checksum {
	out := make([]checksum.Checksum, c.Len())
	for i, ch := range c.Children() {
		out[i] = ch.Checksum
	}
	return out
}
