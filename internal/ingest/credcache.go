package ingest

import (
	"sync"
	"time"

	"github.com/tracklink/tracklink/internal/model"
)

// DefaultCredentialTTL is how long resolved ads credentials are reused
// before the database is consulted again.
const DefaultCredentialTTL = 5 * time.Minute

type credEntry struct {
	creds     model.AdsCredentials
	expiresAt time.Time
}

// CredentialCache is a small in-process TTL cache of resolved ads
// credentials keyed by normalized page path. Concurrent writes of the same
// path race harmlessly; both writers store the same resolution.
type CredentialCache struct {
	mu      sync.RWMutex
	entries map[string]credEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewCredentialCache creates a CredentialCache. A zero ttl selects the
// default.
func NewCredentialCache(ttl time.Duration) *CredentialCache {
	if ttl <= 0 {
		ttl = DefaultCredentialTTL
	}
	return &CredentialCache{
		entries: make(map[string]credEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the cached credentials for a path, if fresh.
func (c *CredentialCache) Get(path string) (model.AdsCredentials, bool) {
	c.mu.RLock()
	entry, ok := c.entries[path]
	c.mu.RUnlock()
	if !ok || c.now().After(entry.expiresAt) {
		return model.AdsCredentials{}, false
	}
	return entry.creds, true
}

// Set stores the credentials for a path.
func (c *CredentialCache) Set(path string, creds model.AdsCredentials) {
	c.mu.Lock()
	c.entries[path] = credEntry{creds: creds, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()
}
