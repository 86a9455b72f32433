package testutil

import (
	"context"
	"sync"

	"github.com/roach88/assetsync/internal/kind"
	"github.com/roach88/assetsync/internal/serializer"
	"github.com/roach88/assetsync/internal/wire"
)

// EncodeCounter counts Encode calls per kind.
type EncodeCounter struct {
	mu     sync.Mutex
	counts map[kind.Kind]int
}

// Count returns the number of encodes of k.
func (c *EncodeCounter) Count(k kind.Kind) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[k]
}

// Total returns the number of encodes across all kinds.
func (c *EncodeCounter) Total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, v := range c.counts {
		n += v
	}
	return n
}

func (c *EncodeCounter) inc(k kind.Kind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[k]++
}

// CountingRegistry wraps every built-in codec of reg so its Encode calls
// are counted.
func CountingRegistry(reg *serializer.Registry) *EncodeCounter {
	counter := &EncodeCounter{counts: make(map[kind.Kind]int)}
	for _, k := range kind.Leaves() {
		codec, ok := reg.Codec(k)
		if !ok {
			continue
		}
		encode := codec.Encode
		codec.Encode = func(ctx context.Context, v any, w *wire.Writer) error {
			counter.inc(k)
			return encode(ctx, v, w)
		}
		if err := reg.Replace(k, codec); err != nil {
			panic(err)
		}
	}
	return counter
}
