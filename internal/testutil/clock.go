package testutil

import (
	"sync"

	"github.com/roach88/assetsync/internal/ir"
)

// VersionClock hands out version stamps 1, 2, 3, ... and can be rewound,
// so two reconstructions in one test see identical stamps.
//
// Thread Safety: safe for concurrent use.
type VersionClock struct {
	mu   sync.Mutex
	last ir.VersionStamp
}

// NewVersionClock returns a clock whose first stamp is 1.
func NewVersionClock() *VersionClock {
	return &VersionClock{}
}

// Next returns the next stamp.
func (c *VersionClock) Next() ir.VersionStamp {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last++
	return c.last
}

// Last returns the most recent stamp, or 0 before the first call to Next.
func (c *VersionClock) Last() ir.VersionStamp {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// Rewind makes the next stamp 1 again.
func (c *VersionClock) Rewind() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = 0
}
