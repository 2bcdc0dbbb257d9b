package embedding

import "sync"

// exactCache is the process-wide embedding cache keyed by exact input
// string, used by the Retrieval Engine when the same expanded query is
// embedded more than once within a request. An explicit component with
// its own lock rather than an ambient global.
type exactCache struct {
	mu   sync.RWMutex
	data map[string][]float32
}

func newExactCache() *exactCache {
	return &exactCache{data: make(map[string][]float32)}
}

func (c *exactCache) get(text string) ([]float32, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.data[text]
	return v, ok
}

func (c *exactCache) put(text string, vec []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[text] = vec
}
