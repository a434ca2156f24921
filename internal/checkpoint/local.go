package checkpoint

import "sync"

// LocalCache is the in-process fallback tier.
type LocalCache struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewLocalCache() *LocalCache {
	return &LocalCache{values: make(map[string]string)}
}

func (c *LocalCache) Get(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[key]
	return v, ok
}

func (c *LocalCache) Set(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
}

func (c *LocalCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, key)
}
