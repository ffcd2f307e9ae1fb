// Package cache keeps recent completion results keyed by the request that produced them.
package cache

import (
	"encoding/binary"
	"math"
	"time"

	"inlinesuggest/types"

	"github.com/cespare/xxhash/v2"
	"github.com/jellydator/ttlcache/v3"
)

// DefaultCapacity bounds the number of cached results
const DefaultCapacity = 64

// Cache is a TTL cache of completion results keyed by request fingerprint
type Cache struct {
	cache *ttlcache.Cache[uint64, *types.CompletionsAndMetadata]
}

// New creates a cache whose entries expire after ttl
func New(ttl time.Duration, capacity uint64) *Cache {
	if capacity == 0 {
		capacity = DefaultCapacity
	}
	c := ttlcache.New[uint64, *types.CompletionsAndMetadata](
		ttlcache.WithTTL[uint64, *types.CompletionsAndMetadata](ttl),
		ttlcache.WithCapacity[uint64, *types.CompletionsAndMetadata](capacity),
		ttlcache.WithDisableTouchOnHit[uint64, *types.CompletionsAndMetadata](),
	)
	go c.Start()
	return &Cache{cache: c}
}

// Close stops the expiration loop
func (c *Cache) Close() {
	c.cache.Stop()
}

// Len returns the number of live entries
func (c *Cache) Len() int {
	return c.cache.Len()
}

// Get returns a cached result for req, or nil. The returned value is a copy
// marked as coming from the cache; the completions themselves are shared.
func (c *Cache) Get(req *types.CompletionRequest) *types.CompletionsAndMetadata {
	item := c.cache.Get(Key(req))
	if item == nil {
		return nil
	}
	hit := *item.Value()
	hit.Source = types.CompletionSourceCache
	hit.Latency = 0
	hit.Timestamp = time.Now()
	return &hit
}

// Set stores a result for req. Empty results are not cached.
func (c *Cache) Set(req *types.CompletionRequest, result *types.CompletionsAndMetadata) {
	if result == nil || len(result.Completions) == 0 {
		return
	}
	c.cache.Set(Key(req), result, ttlcache.DefaultTTL)
}

// Key fingerprints everything in req that can change the service's answer
func Key(req *types.CompletionRequest) uint64 {
	h := xxhash.New()
	var buf [8]byte

	writeString := func(s string) {
		binary.LittleEndian.PutUint64(buf[:], uint64(len(s)))
		h.Write(buf[:])
		h.WriteString(s)
	}
	writeInt := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		h.Write(buf[:])
	}

	doc := req.Document
	writeString(doc.Path)
	writeString(doc.Language)
	writeString(doc.Text)
	writeInt(uint64(doc.CursorOffset))
	writeInt(uint64(doc.TabSize))
	if doc.InsertSpaces {
		writeInt(1)
	} else {
		writeInt(0)
	}

	if req.MultilineThreshold != nil {
		writeInt(1)
		writeInt(math.Float64bits(*req.MultilineThreshold))
	} else {
		writeInt(0)
	}

	writeInt(uint64(len(req.OtherDocuments)))
	for _, other := range req.OtherDocuments {
		writeString(other.Path)
		writeString(other.Language)
		writeString(other.Text)
	}
	return h.Sum64()
}
