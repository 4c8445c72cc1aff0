package index

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/spaolacci/murmur3"
)

// queryCache holds whole query results for a fixed TTL, keyed by a hash of
// the serialized query.
type queryCache struct {
	lru *expirable.LRU[string, *QueryResult]
	ttl time.Duration
}

func newQueryCache(size int, ttl time.Duration) *queryCache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &queryCache{
		lru: expirable.NewLRU[string, *QueryResult](size, nil, ttl),
		ttl: ttl,
	}
}

// cacheKey serializes the query with stable field order and hashes it
// together with the index generation, so a result computed before a
// mutation can never be served after it.
func cacheKey(q Query, gen uint64) (string, bool) {
	raw, err := json.Marshal(q)
	if err != nil {
		return "", false
	}
	h := murmur3.New128()
	h.Write(raw)
	var g [8]byte
	binary.BigEndian.PutUint64(g[:], gen)
	h.Write(g[:])
	h1, h2 := h.Sum128()
	var buf [16]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(h1 >> (56 - 8*i))
		buf[8+i] = byte(h2 >> (56 - 8*i))
	}
	return hex.EncodeToString(buf[:]), true
}

func (c *queryCache) get(key string) (*QueryResult, bool) {
	return c.lru.Get(key)
}

func (c *queryCache) add(key string, r *QueryResult) {
	c.lru.Add(key, r)
}

func (c *queryCache) len() int {
	return c.lru.Len()
}

// purge drops every cached result and reports how many were held
func (c *queryCache) purge() int {
	n := c.lru.Len()
	c.lru.Purge()
	return n
}
