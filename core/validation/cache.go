package validation

import (
	"bytes"
	"encoding/json"
	"sync"

	"github.com/mitchellh/hashstructure/v2"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

type cacheEntry struct {
	canonical []byte
	schema    *jsonschema.Schema
	err       error
}

// compileCache memoizes compilations by structural hash. A hit is only
// accepted when the canonical encoding matches, so hash collisions are safe.
type compileCache struct {
	mu      sync.Mutex
	entries map[uint64]cacheEntry
	order   []uint64
	limit   int
}

func newCompileCache(limit int) *compileCache {
	return &compileCache{
		entries: make(map[uint64]cacheEntry, limit),
		limit:   limit,
	}
}

func (c *compileCache) get(key uint64, canonical []byte) (cacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok || !bytes.Equal(entry.canonical, canonical) {
		return cacheEntry{}, false
	}
	return entry, true
}

func (c *compileCache) put(key uint64, canonical []byte, sch *jsonschema.Schema, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[key]; !exists {
		c.order = append(c.order, key)
	}
	c.entries[key] = cacheEntry{canonical: canonical, schema: sch, err: err}

	for len(c.order) > c.limit {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
}

func (c *compileCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// cacheKey hashes a decoded document. encoding/json sorts map keys, so the
// marshalled form doubles as a canonical encoding.
func cacheKey(value any) (uint64, []byte, bool) {
	canonical, err := json.Marshal(value)
	if err != nil {
		return 0, nil, false
	}
	key, err := hashstructure.Hash(value, hashstructure.FormatV2, nil)
	if err != nil {
		return 0, nil, false
	}
	return key, canonical, true
}
