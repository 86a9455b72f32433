package treecache

import (
	"runtime"
	"sync"
	"weak"
)

// Cache is the identity table.
//
// Thread Safety: safe for concurrent use. Lookups and inserts contend only
// on the table shard of the key (sync.Map), never on a tree-wide lock.
type Cache struct {
	entries sync.Map // weak.Pointer[T] -> *Entry
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{}
}

// EntryFor returns the entry for id, creating it on first use.
// id must not be nil.
func EntryFor[T any](c *Cache, id *T) *Entry {
	if id == nil {
		panic("treecache: nil identity")
	}
	key := weak.Make(id)
	if e, ok := c.entries.Load(key); ok {
		return e.(*Entry)
	}
	fresh := newEntry(key)
	actual, loaded := c.entries.LoadOrStore(key, fresh)
	if !loaded {
		runtime.AddCleanup(id, c.evict, any(key))
	}
	return actual.(*Entry)
}

// Lookup returns the entry for id without creating one.
func Lookup[T any](c *Cache, id *T) (*Entry, bool) {
	if id == nil {
		return nil, false
	}
	e, ok := c.entries.Load(weak.Make(id))
	if !ok {
		return nil, false
	}
	return e.(*Entry), true
}

func (c *Cache) evict(key any) {
	c.entries.Delete(key)
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	n := 0
	c.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
