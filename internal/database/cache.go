package database

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sync"
	"time"
)

const defaultCacheTTL = 900 * time.Second

// resultCache is a small TTL cache for assembled response pages. Entries
// are returned as-is, so callers must treat cached Results as read-only.
type resultCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[uint64]cacheEntry
}

type cacheEntry struct {
	res     *Result
	expires time.Time
}

func newResultCache(ttl time.Duration) *resultCache {
	return &resultCache{
		ttl:     ttl,
		entries: make(map[uint64]cacheEntry),
	}
}

func (rc *resultCache) get(key uint64) (*Result, bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	entry, ok := rc.entries[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expires) {
		delete(rc.entries, key)
		return nil, false
	}
	return entry.res, true
}

func (rc *resultCache) put(key uint64, res *Result) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	// sweep expired entries opportunistically instead of running a janitor
	if len(rc.entries) > 1024 {
		now := time.Now()
		for k, e := range rc.entries {
			if now.After(e.expires) {
				delete(rc.entries, k)
			}
		}
	}

	rc.entries[key] = cacheEntry{res: res, expires: time.Now().Add(rc.ttl)}
}

// cacheKey hashes the query text and its named arguments. json.Marshal
// renders map keys in sorted order, so equal argument sets hash equally.
func cacheKey(query string, args map[string]interface{}, page, limit int) uint64 {
	h := fnv.New64a()
	h.Write([]byte(query))
	if encoded, err := json.Marshal(args); err == nil {
		h.Write(encoded)
	} else {
		fmt.Fprintf(h, "%v", args)
	}
	fmt.Fprintf(h, "|%d|%d", page, limit)
	return h.Sum64()
}
