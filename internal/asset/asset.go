// Package asset defines checksum nodes: leaf assets wrapping one encoded
// value, and collections wrapping an ordered list of children.
//
// Wire framing, shared by every node:
//
//	kind      1 byte
//	checksum  32 bytes
//
// A collection follows with a child count (int32) and, per child, a tag
// byte (0 = checksum reference, 1 = inlined collection) and the child's
// bytes. A leaf follows with its length-prefixed encoded payload.
package asset

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/assetsync/internal/checksum"
	"github.com/roach88/assetsync/internal/kind"
	"github.com/roach88/assetsync/internal/serializer"
)

// ErrCorruptNode is returned when a decoded node does not hash to the
// checksum it carries.
var ErrCorruptNode = errors.New("corrupt node")

// Node is either an *Asset or a *Collection.
// Nodes are immutable and compared by checksum.
type Node interface {
	Kind() kind.Kind
	Checksum() checksum.Checksum
	node()
}

// Asset is a leaf node. It holds the encoded payload, not the value, so
// that cached leaves never keep the state they were built from alive.
type Asset struct {
	kind    kind.Kind
	sum     checksum.Checksum
	payload []byte
}

// New encodes value with the registry and computes its checksum.
func New(ctx context.Context, reg *serializer.Registry, k kind.Kind, value any) (*Asset, error) {
	if !k.IsLeaf() {
		return nil, fmt.Errorf("%w: %s is not a leaf kind", serializer.ErrUnsupportedKind, k)
	}
	payload, err := reg.EncodeBytes(ctx, k, value)
	if err != nil {
		return nil, err
	}
	sum := checksum.CreateForKind(k.Byte(), payload)
	if reg.HasFingerprint(k) {
		sum, err = reg.Checksum(ctx, k, value)
		if err != nil {
			return nil, err
		}
	}
	return &Asset{kind: k, sum: sum, payload: payload}, nil
}

func (a *Asset) Kind() kind.Kind             { return a.kind }
func (a *Asset) Checksum() checksum.Checksum { return a.sum }
func (*Asset) node()                         {}

// Payload returns the encoded value. Callers must not mutate it.
func (a *Asset) Payload() []byte { return a.payload }

// Decode decodes the payload and verifies it against the checksum.
func (a *Asset) Decode(ctx context.Context, reg *serializer.Registry) (any, error) {
	v, err := reg.DecodeBytes(ctx, a.kind, a.payload)
	if err != nil {
		return nil, err
	}
	ok, err := reg.Verify(ctx, a.kind, v, a.payload, a.sum)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s %s does not match its payload", ErrCorruptNode, a.kind, a.sum.Short())
	}
	return v, nil
}

// Child is one slot of a collection: a checksum reference, or an inlined
// collection when Node is set.
type Child struct {
	Checksum checksum.Checksum
	Node     *Collection
}

// Ref returns a reference child.
func Ref(sum checksum.Checksum) Child { return Child{Checksum: sum} }

// Inline returns a child that embeds c.
func Inline(c *Collection) Child { return Child{Checksum: c.Checksum(), Node: c} }

// IsInline reports whether the child embeds its node.
func (c Child) IsInline() bool { return c.Node != nil }

// Collection is an internal node: an ordered list of children whose
// checksum is the Merkle combination of the children's checksums.
type Collection struct {
	kind     kind.Kind
	sum      checksum.Checksum
	children []Child
}

// NewCollection builds an internal node. The children slice is retained.
func NewCollection(k kind.Kind, children []Child) *Collection {
	sums := make([]checksum.Checksum, len(children))
	for i, c := range children {
		sums[i] = c.Checksum
	}
	return &Collection{
		kind:     k,
		sum:      checksum.Combine(k.Byte(), sums...),
		children: children,
	}
}

// NewCollectionOf builds a collection of references from checksums.
// An empty list yields the shared empty singleton for k.
func NewCollectionOf(k kind.Kind, sums []checksum.Checksum) *Collection {
	if len(sums) == 0 && k.IsCollection() {
		return Empty(k)
	}
	children := make([]Child, len(sums))
	for i, s := range sums {
		children[i] = Ref(s)
	}
	return NewCollection(k, children)
}

func (c *Collection) Kind() kind.Kind             { return c.kind }
func (c *Collection) Checksum() checksum.Checksum { return c.sum }
func (*Collection) node()                         {}

// Len returns the number of children.
func (c *Collection) Len() int { return len(c.children) }

// Child returns the i-th child.
func (c *Collection) Child(i int) Child { return c.children[i] }

// Children returns the children. Callers must not mutate the slice.
func (c *Collection) Children() []Child { return c.children }

// Walk calls fn for c and every inlined descendant, depth first.
// Walking stops when fn returns false.
func (c *Collection) Walk(fn func(*Collection) bool) bool {
	if !fn(c) {
		return false
	}
	for _, ch := range c.children {
		if ch.Node != nil && !ch.Node.Walk(fn) {
			return false
		}
	}
	return true
}

// References returns the checksums of non-inlined children of c and of its
// inlined descendants, in wire order. Null references are skipped.
func (c *Collection) References() []checksum.Checksum {
	var refs []checksum.Checksum
	c.Walk(func(n *Collection) bool {
		for _, ch := range n.children {
			if ch.Node == nil && !ch.Checksum.IsNull() {
				refs = append(refs, ch.Checksum)
			}
		}
		return true
	})
	return refs
}

var empties = func() map[kind.Kind]*Collection {
	m := make(map[kind.Kind]*Collection)
	for _, k := range kind.Collections() {
		m[k] = NewCollection(k, nil)
	}
	return m
}()

// Empty returns the shared empty collection of kind k.
// It panics if k is not a collection kind.
func Empty(k kind.Kind) *Collection {
	c, ok := empties[k]
	if !ok {
		panic(fmt.Sprintf("asset: %s is not a collection kind", k))
	}
	return c
}
