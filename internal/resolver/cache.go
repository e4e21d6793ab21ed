package resolver

import "sync"

// nameCache maps normalized (and raw typo) labels to category IDs.
// Different categories' jobs run concurrently, so access is guarded.
type nameCache struct {
	mu sync.RWMutex
	m  map[string]string
}

func newNameCache() *nameCache {
	return &nameCache{m: make(map[string]string)}
}

func (c *nameCache) get(name string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.m[name]
	return id, ok
}

func (c *nameCache) put(name, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[name] = id
}
