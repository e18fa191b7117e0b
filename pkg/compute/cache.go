package compute

import (
	"sync"

	"github.com/computesdk/orchestrator/pkg/types"
)

// cache is the manager's in-memory map from compute ID to last-known state.
// It is an optimization only: every code path that makes a mutating decision
// reads the cluster directly. The lock is never held across a cluster call.
type cache struct {
	mu      sync.RWMutex
	entries map[string]*types.ComputeInfo
}

func newCache() *cache {
	return &cache{
		entries: make(map[string]*types.ComputeInfo),
	}
}

// get returns the cached record for a compute ID, if any.
func (c *cache) get(computeID string) (*types.ComputeInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	info, ok := c.entries[computeID]
	return info, ok
}

// set inserts or replaces the record for a compute ID.
func (c *cache) set(info *types.ComputeInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[info.ComputeID] = info
}

// delete removes the record for a compute ID.
func (c *cache) delete(computeID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, computeID)
}

// size returns the number of cached records.
func (c *cache) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
