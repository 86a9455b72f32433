package treecache

import (
	"errors"
	"fmt"
	"sync"

	"github.com/roach88/assetsync/internal/asset"
	"github.com/roach88/assetsync/internal/checksum"
	"github.com/roach88/assetsync/internal/kind"
)

// ErrChecksumMismatch is returned when a node is added for a kind that
// already holds a node with a different checksum.
var ErrChecksumMismatch = errors.New("checksum mismatch for cached node")

const inlineSlots = 3

type slot struct {
	kind kind.Kind
	node asset.Node
}

// Entry holds the nodes built for one identity.
type Entry struct {
	key any

	mu       sync.RWMutex
	slots    [inlineSlots]slot
	used     int
	overflow map[kind.Kind]asset.Node

	// index is built on first Lookup and dropped on Add.
	index map[checksum.Checksum]asset.Node

	children *ChildScope
}

func newEntry(key any) *Entry {
	return &Entry{key: key}
}

// NewDetached creates an entry that is not registered in any cache.
// Registries use it to root a scope.
func NewDetached() *Entry {
	return newEntry(new(byte))
}

// Get returns the node cached for k.
func (e *Entry) Get(k kind.Kind) (asset.Node, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.getLocked(k)
}

func (e *Entry) getLocked(k kind.Kind) (asset.Node, bool) {
	for i := 0; i < e.used; i++ {
		if e.slots[i].kind == k {
			return e.slots[i].node, true
		}
	}
	n, ok := e.overflow[k]
	return n, ok
}

// Add caches n under its kind and returns the cached node, which is the
// existing one when an equal node was added before.
func (e *Entry) Add(n asset.Node) (asset.Node, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if existing, ok := e.getLocked(n.Kind()); ok {
		if existing.Checksum() != n.Checksum() {
			return nil, fmt.Errorf("%w: %s cached as %s, rebuilt as %s",
				ErrChecksumMismatch, n.Kind(), existing.Checksum().Short(), n.Checksum().Short())
		}
		return existing, nil
	}

	if e.used < inlineSlots {
		e.slots[e.used] = slot{kind: n.Kind(), node: n}
		e.used++
	} else {
		if e.overflow == nil {
			e.overflow = make(map[kind.Kind]asset.Node)
		}
		e.overflow[n.Kind()] = n
	}
	e.index = nil
	return n, nil
}

// Nodes returns every cached node, inline slots first.
func (e *Entry) Nodes() []asset.Node {
	e.mu.RLock()
	defer e.mu.RUnlock()
	nodes := make([]asset.Node, 0, e.used+len(e.overflow))
	for i := 0; i < e.used; i++ {
		nodes = append(nodes, e.slots[i].node)
	}
	for _, n := range e.overflow {
		nodes = append(nodes, n)
	}
	return nodes
}

// Lookup finds a node of this entry by checksum, including collections
// inlined in its composite nodes.
func (e *Entry) Lookup(sum checksum.Checksum) (asset.Node, bool) {
	e.mu.RLock()
	idx := e.index
	e.mu.RUnlock()

	if idx == nil {
		idx = e.buildIndex()
	}
	n, ok := idx[sum]
	return n, ok
}

func (e *Entry) buildIndex() map[checksum.Checksum]asset.Node {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.index != nil {
		return e.index
	}
	idx := make(map[checksum.Checksum]asset.Node)
	add := func(n asset.Node) {
		switch n := n.(type) {
		case *asset.Collection:
			n.Walk(func(c *asset.Collection) bool {
				idx[c.Checksum()] = c
				return true
			})
		default:
			idx[n.Checksum()] = n
		}
	}
	for i := 0; i < e.used; i++ {
		add(e.slots[i].node)
	}
	for _, n := range e.overflow {
		add(n)
	}
	e.index = idx
	return idx
}

// ChildScope returns the entry's child scope, creating it on first use.
func (e *Entry) ChildScope() *ChildScope {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.children == nil {
		e.children = &ChildScope{}
	}
	return e.children
}

// existingChildren returns the child scope or nil, without allocating.
func (e *Entry) existingChildren() *ChildScope {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.children
}

// ChildScope links an entry to the entries of its sub-objects.
type ChildScope struct {
	mu       sync.RWMutex
	slots    [inlineSlots]*Entry
	used     int
	overflow map[any]*Entry
}

// Link adds child to the scope. Linking the same entry twice is a no-op.
func (s *ChildScope) Link(child *Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < s.used; i++ {
		if s.slots[i] == child {
			return
		}
	}
	if _, ok := s.overflow[child.key]; ok {
		return
	}
	if s.used < inlineSlots {
		s.slots[s.used] = child
		s.used++
		return
	}
	if s.overflow == nil {
		s.overflow = make(map[any]*Entry)
	}
	s.overflow[child.key] = child
}

// Entries returns the linked entries, inline slots first.
func (s *ChildScope) Entries() []*Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Entry, 0, s.used+len(s.overflow))
	out = append(out, s.slots[:s.used]...)
	for _, e := range s.overflow {
		out = append(out, e)
	}
	return out
}

// Len returns the number of linked entries.
func (s *ChildScope) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.used + len(s.overflow)
}
