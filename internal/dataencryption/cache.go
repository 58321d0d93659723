package dataencryption

import "sync"

type cachedDEK struct {
	key     []byte
	version int
}

// DEKCache holds unwrapped per-user DEKs for the lifetime of its owner. It is
// populated on first use and never evicted; DEKs do not rotate while the
// process runs.
type DEKCache struct {
	mu   sync.RWMutex
	keys map[string]cachedDEK
}

// NewDEKCache returns an empty cache.
func NewDEKCache() *DEKCache {
	return &DEKCache{keys: map[string]cachedDEK{}}
}

// Get returns the cached DEK and its version for userID.
func (c *DEKCache) Get(userID string) ([]byte, int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.keys[userID]
	return e.key, e.version, ok
}

// LoadOrStore returns the existing entry for userID if present; otherwise it
// stores and returns the given key.
func (c *DEKCache) LoadOrStore(userID string, key []byte, version int) ([]byte, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.keys[userID]; ok {
		return e.key, e.version
	}
	c.keys[userID] = cachedDEK{key: key, version: version}
	return key, version
}

// Len returns the number of cached users.
func (c *DEKCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.keys)
}
