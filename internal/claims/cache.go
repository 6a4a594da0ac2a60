package claims

import (
	"sync"
	"time"

	"github.com/sgrastar/authrim-sub002/internal/model"
)

// Cache holds resolved bundles by subject id for model.ClaimCacheTTL.
type Cache struct {
	mu   sync.RWMutex
	m    map[string]model.RoleClaimBundle
	nowF func() time.Time
}

// NewCache returns an empty bundle cache.
func NewCache() *Cache {
	return &Cache{
		m:    make(map[string]model.RoleClaimBundle),
		nowF: time.Now,
	}
}

// Get returns the cached bundle for subjectID if present and still fresh.
// Stale entries are evicted on access.
func (c *Cache) Get(subjectID string) (model.RoleClaimBundle, bool) {
	c.mu.RLock()
	b, ok := c.m[subjectID]
	c.mu.RUnlock()
	if !ok {
		return model.RoleClaimBundle{}, false
	}
	if !b.Fresh(c.nowF()) {
		c.mu.Lock()
		// Re-check under the write lock: a concurrent Put may have refreshed
		// the entry after the read lock was released.
		if cur, ok := c.m[subjectID]; !ok || !cur.Fresh(c.nowF()) {
			delete(c.m, subjectID)
		}
		c.mu.Unlock()
		return model.RoleClaimBundle{}, false
	}
	return b, true
}

// Put stores a bundle under its subject id.
func (c *Cache) Put(b model.RoleClaimBundle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[b.SubjectID] = b
}
