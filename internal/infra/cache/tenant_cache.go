package cache

import (
	"context"
	"sync"
	"time"

	"agency-platform/internal/domain/tenant"
)

// TenantCache holds recently resolved active tenants keyed by subdomain.
// A miss is reported as (nil, false, nil); errors are backend failures.
type TenantCache interface {
	Get(ctx context.Context, subdomain string) (*tenant.Tenant, bool, error)
	Set(ctx context.Context, t *tenant.Tenant, ttl time.Duration) error
	Delete(ctx context.Context, subdomain string) error
}

type tenantCacheEntry struct {
	tenant     tenant.Tenant
	expiryTime time.Time
}

// MemoryTenantCache provides thread-safe in-process caching of tenants.
type MemoryTenantCache struct {
	cache map[string]tenantCacheEntry
	mutex sync.RWMutex
	now   func() time.Time
}

func NewMemoryTenantCache() *MemoryTenantCache {
	return &MemoryTenantCache{
		cache: make(map[string]tenantCacheEntry),
		now:   time.Now,
	}
}

// Get returns a copy so callers cannot mutate the cached entry.
func (c *MemoryTenantCache) Get(_ context.Context, subdomain string) (*tenant.Tenant, bool, error) {
	c.mutex.RLock()
	entry, found := c.cache[subdomain]
	c.mutex.RUnlock()

	if found && c.now().Before(entry.expiryTime) {
		t := entry.tenant
		return &t, true, nil
	}

	return nil, false, nil
}

func (c *MemoryTenantCache) Set(_ context.Context, t *tenant.Tenant, ttl time.Duration) error {
	if t == nil || ttl <= 0 {
		return nil
	}
	c.mutex.Lock()
	c.cache[t.Subdomain] = tenantCacheEntry{
		tenant:     *t,
		expiryTime: c.now().Add(ttl),
	}
	c.mutex.Unlock()
	return nil
}

func (c *MemoryTenantCache) Delete(_ context.Context, subdomain string) error {
	c.mutex.Lock()
	delete(c.cache, subdomain)
	c.mutex.Unlock()
	return nil
}

// Sweep removes expired entries from cache
func (c *MemoryTenantCache) Sweep() {
	now := c.now()
	c.mutex.Lock()
	for key, entry := range c.cache {
		if now.After(entry.expiryTime) {
			delete(c.cache, key)
		}
	}
	c.mutex.Unlock()
}

// Len reports the number of entries, expired or not.
func (c *MemoryTenantCache) Len() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.cache)
}
