// Package registry keeps built checksum trees resolvable while they are in
// use by a remote consumer.
//
// A Scope pins one snapshot: it holds the solution state and the root cache
// entry strongly, so every node reachable from the root stays alive and
// findable until the scope is unregistered. Global assets live beside the
// scopes with host-process lifetime.
//
// Resolution never fails. A checksum that cannot be found yields nil: the
// request may have raced a disposal or been cancelled, and it is up to the
// caller to tell those apart by inspecting its context.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/attribute"

	"github.com/roach88/assetsync/internal/asset"
	"github.com/roach88/assetsync/internal/checksum"
	"github.com/roach88/assetsync/internal/treecache"
)

// Handle identifies a registered scope.
type Handle uint64

// NoScope asks resolution to search every registered scope.
const NoScope Handle = 0

// Scope binds a handle to one snapshot.
type Scope struct {
	handle Handle
	pin    any
	root   *treecache.Entry
	node   asset.Node
}

// NewScope creates a scope. pin is the snapshot's state object; scopes
// with the same pin are searched once when resolving across all scopes.
func NewScope(h Handle, pin any, root *treecache.Entry, node asset.Node) *Scope {
	return &Scope{handle: h, pin: pin, root: root, node: node}
}

func (s *Scope) Handle() Handle          { return s.handle }
func (s *Scope) Root() asset.Node        { return s.node }
func (s *Scope) Entry() *treecache.Entry { return s.root }

// Registry is the process-wide table of scopes and global assets.
//
// Thread Safety: safe for concurrent use. The scope table lock is held only
// to copy out the scopes to search; tree searches run without it.
type Registry struct {
	mu      sync.RWMutex
	scopes  map[Handle]*Scope
	retired map[Handle]struct{}

	gmu        sync.RWMutex
	globals    map[any]*asset.Asset
	globalSums map[checksum.Checksum]*globalRef

	logger *slog.Logger
}

type globalRef struct {
	node *asset.Asset
	refs int
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		scopes:     make(map[Handle]*Scope),
		retired:    make(map[Handle]struct{}),
		globals:    make(map[any]*asset.Asset),
		globalSums: make(map[checksum.Checksum]*globalRef),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds s. Registering a handle that is already registered, or the
// NoScope handle, fails with a DUPLICATE_SCOPE error. A handle that has been
// unregistered is retired for good: registering it again fails with a
// RETIRED_SCOPE error.
func (r *Registry) Register(s *Scope) error {
	if s.handle == NoScope {
		return &ScopeError{Code: ErrCodeDuplicateScope, Handle: s.handle, Message: "handle 0 is reserved for NoScope"}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.scopes[s.handle]; exists {
		return &ScopeError{Code: ErrCodeDuplicateScope, Handle: s.handle, Message: "scope already registered"}
	}
	if _, gone := r.retired[s.handle]; gone {
		return &ScopeError{Code: ErrCodeRetiredScope, Handle: s.handle, Message: "handle was already unregistered"}
	}
	r.scopes[s.handle] = s
	recordScopeDelta(1)
	r.logger.Debug("scope registered", "handle", s.handle, "root", s.node.Checksum().Short())
	return nil
}

// Unregister removes a scope. Unregistering a handle that is not registered
// fails with an UNKNOWN_SCOPE error.
func (r *Registry) Unregister(h Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.scopes[h]; !exists {
		return &ScopeError{Code: ErrCodeUnknownScope, Handle: h, Message: "scope not registered"}
	}
	delete(r.scopes, h)
	r.retired[h] = struct{}{}
	recordScopeDelta(-1)
	r.logger.Debug("scope unregistered", "handle", h)
	return nil
}

// Scope returns a registered scope.
func (r *Registry) Scope(h Handle) (*Scope, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.scopes[h]
	return s, ok
}

// Len returns the number of registered scopes.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.scopes)
}

// searchOrder returns the scopes to search for h. For NoScope it returns
// every scope, keeping one scope per pinned snapshot.
func (r *Registry) searchOrder(h Handle) []*Scope {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if h != NoScope {
		if s, ok := r.scopes[h]; ok {
			return []*Scope{s}
		}
		return nil
	}
	out := make([]*Scope, 0, len(r.scopes))
	pins := make(map[any]struct{}, len(r.scopes))
	for _, s := range r.scopes {
		if s.pin != nil {
			if _, dup := pins[s.pin]; dup {
				continue
			}
			pins[s.pin] = struct{}{}
		}
		out = append(out, s)
	}
	return out
}

// Resolve finds the node for sum: in scope h (or every scope for NoScope),
// then among the global assets. It returns nil when nothing matches.
func (r *Registry) Resolve(ctx context.Context, h Handle, sum checksum.Checksum) asset.Node {
	ctx, span := startResolveSpan(ctx, "Registry.Resolve", h, 1)
	defer span.End()

	var found asset.Node
	for _, s := range r.searchOrder(h) {
		if ctx.Err() != nil {
			break
		}
		if n, ok := treecache.Find(ctx, s.root, sum); ok {
			found = n
			break
		}
	}
	if found == nil && ctx.Err() == nil {
		if g := r.global(sum); g != nil {
			found = g
		}
	}

	missing := 0
	if found == nil {
		missing = 1
	}
	recordResolve(ctx, 1, missing, h != NoScope)
	span.SetAttributes(attribute.Bool("resolve.found", found != nil))
	return found
}

// ResolveMany finds every checksum it can from sums. Checksums that are not
// found are absent from the result; a cancelled context yields a partial
// result.
func (r *Registry) ResolveMany(ctx context.Context, h Handle, sums []checksum.Checksum) map[checksum.Checksum]asset.Node {
	ctx, span := startResolveSpan(ctx, "Registry.ResolveMany", h, len(sums))
	defer span.End()

	wanted := checksum.NewSet(sums...)
	requested := len(wanted)
	out := make(map[checksum.Checksum]asset.Node, requested)

	for _, s := range r.searchOrder(h) {
		if len(wanted) == 0 || ctx.Err() != nil {
			break
		}
		treecache.FindMany(ctx, s.root, wanted, out)
	}
	if len(wanted) > 0 && ctx.Err() == nil {
		r.gmu.RLock()
		for sum := range wanted {
			if g, ok := r.globalSums[sum]; ok {
				out[sum] = g.node
				delete(wanted, sum)
			}
		}
		r.gmu.RUnlock()
	}

	recordResolve(ctx, requested, len(wanted), h != NoScope)
	span.SetAttributes(
		attribute.Int("resolve.found", len(out)),
		attribute.Int("resolve.missing", len(wanted)),
	)
	return out
}

// AddGlobal registers a with host lifetime under key. Adding the same key
// again is a no-op when the checksums match and fails with
// treecache.ErrChecksumMismatch otherwise.
func (r *Registry) AddGlobal(key any, a *asset.Asset) error {
	r.gmu.Lock()
	defer r.gmu.Unlock()
	if existing, ok := r.globals[key]; ok {
		if existing.Checksum() != a.Checksum() {
			return fmt.Errorf("global asset %v: %w: registered as %s, re-added as %s",
				key, treecache.ErrChecksumMismatch, existing.Checksum().Short(), a.Checksum().Short())
		}
		return nil
	}
	r.globals[key] = a
	ref, ok := r.globalSums[a.Checksum()]
	if !ok {
		ref = &globalRef{node: a}
		r.globalSums[a.Checksum()] = ref
	}
	ref.refs++
	return nil
}

// RemoveGlobal removes the asset under key and reports whether it existed.
func (r *Registry) RemoveGlobal(key any) bool {
	r.gmu.Lock()
	defer r.gmu.Unlock()
	a, ok := r.globals[key]
	if !ok {
		return false
	}
	delete(r.globals, key)
	if ref := r.globalSums[a.Checksum()]; ref != nil {
		ref.refs--
		if ref.refs == 0 {
			delete(r.globalSums, a.Checksum())
		}
	}
	return true
}

// Global returns the asset registered under key.
func (r *Registry) Global(key any) (*asset.Asset, bool) {
	r.gmu.RLock()
	defer r.gmu.RUnlock()
	a, ok := r.globals[key]
	return a, ok
}

func (r *Registry) global(sum checksum.Checksum) *asset.Asset {
	r.gmu.RLock()
	defer r.gmu.RUnlock()
	if g, ok := r.globalSums[sum]; ok {
		return g.node
	}
	return nil
}
