// ABOUTME: Owned multi-dimensional secondary index over ontology nodes
// ABOUTME: A primary node map is the source of truth for every secondary bucket

package index

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nainya/codexindex/pkg/node"
)

const (
	// DefaultCacheTTL is how long a query result stays cached
	DefaultCacheTTL = 300 * time.Second

	// DefaultCacheSize bounds the number of cached query results
	DefaultCacheSize = 1024

	// statsResetThreshold is the query count above which OptimizeIndexes clears statistics
	statsResetThreshold = 1000
)

// Observer receives index activity, typically a metrics sink
type Observer interface {
	ObserveIndexOp(op string, err error, d time.Duration)
	ObserveQuery(qt QueryType, cacheHit bool, d time.Duration)
	SetIndexedNodes(n int)
}

type nopObserver struct{}

func (nopObserver) ObserveIndexOp(string, error, time.Duration) {}
func (nopObserver) ObserveQuery(QueryType, bool, time.Duration) {}
func (nopObserver) SetIndexedNodes(int)                         {}

// record is the primary-map row for one node. It remembers every key the
// node was linked under so removal never has to consult a secondary index.
type record struct {
	seq   uint64
	node  *node.Node
	entry *Entry
	keys  map[Field][]any
	pairs map[Composite]pairKey
}

// Index is an in-memory multi-map index. All methods are safe for
// concurrent use. A mutation touches every map under a single write lock.
type Index struct {
	mu sync.RWMutex

	primary     map[string]*record
	single      map[Field]map[any][]*Entry
	composite   map[Composite]map[pairKey][]*Entry
	seq         uint64
	gen         uint64
	lastRebuild time.Time
	lastChange  time.Time

	cache *queryCache
	stats *queryStats

	log      zerolog.Logger
	observer Observer
	now      func() time.Time
}

// Option configures an Index
type Option func(*Index)

// WithLogger sets the logger used for failures and maintenance events
func WithLogger(l zerolog.Logger) Option {
	return func(ix *Index) { ix.log = l.With().Str("component", "index").Logger() }
}

// WithObserver attaches a metrics observer
func WithObserver(o Observer) Option {
	return func(ix *Index) {
		if o != nil {
			ix.observer = o
		}
	}
}

// WithCache overrides the query cache size and TTL
func WithCache(size int, ttl time.Duration) Option {
	return func(ix *Index) { ix.cache = newQueryCache(size, ttl) }
}

// New creates an empty index
func New(opts ...Option) *Index {
	ix := &Index{
		log:      zerolog.Nop(),
		observer: nopObserver{},
		now:      time.Now,
		stats:    newQueryStats(),
	}
	for _, opt := range opts {
		opt(ix)
	}
	if ix.cache == nil {
		ix.cache = newQueryCache(DefaultCacheSize, DefaultCacheTTL)
	}
	ix.resetMapsLocked()
	ix.lastRebuild = ix.now()
	return ix
}

func (ix *Index) resetMapsLocked() {
	ix.primary = make(map[string]*record)
	ix.resetSecondaryLocked()
}

func (ix *Index) resetSecondaryLocked() {
	ix.single = make(map[Field]map[any][]*Entry, len(fields))
	for f := range fields {
		ix.single[f] = make(map[any][]*Entry)
	}
	ix.composite = make(map[Composite]map[pairKey][]*Entry, len(composites))
	for _, c := range composites {
		ix.composite[c.name] = make(map[pairKey][]*Entry)
	}
}

// plan builds the entry and every key for a node without touching shared state
func (ix *Index) plan(n *node.Node) *record {
	snapshot := n.Clone()
	rec := &record{
		node: snapshot,
		entry: &Entry{
			NodeID:       snapshot.NodeID,
			NodeType:     snapshot.NodeType,
			Name:         snapshot.Name,
			Metadata:     snapshot.Metadata(),
			IndexedAt:    ix.now(),
			IndexVersion: Version,
		},
		keys:  make(map[Field][]any, len(fields)),
		pairs: make(map[Composite]pairKey, len(composites)),
	}
	for f, def := range fields {
		rec.keys[f] = def.keys(snapshot)
	}
	for _, c := range composites {
		rec.pairs[c.name] = pairKey{rec.keys[c.first][0], rec.keys[c.second][0]}
	}
	return rec
}

func (ix *Index) linkLocked(rec *record) {
	for f, keys := range rec.keys {
		bucket := ix.single[f]
		for _, k := range keys {
			bucket[k] = append(bucket[k], rec.entry)
		}
	}
	for name, pk := range rec.pairs {
		bucket := ix.composite[name]
		bucket[pk] = append(bucket[pk], rec.entry)
	}
}

func (ix *Index) unlinkLocked(rec *record) {
	for f, keys := range rec.keys {
		bucket := ix.single[f]
		for _, k := range keys {
			removeFromBucket(bucket, k, rec.entry.NodeID)
		}
	}
	for name, pk := range rec.pairs {
		removeFromBucket(ix.composite[name], pk, rec.entry.NodeID)
	}
}

// removeFromBucket drops id from bucket[key], deleting the key once empty
func removeFromBucket[K comparable](bucket map[K][]*Entry, key K, id string) {
	entries, ok := bucket[key]
	if !ok {
		return
	}
	kept := entries[:0:0]
	for _, e := range entries {
		if e.NodeID != id {
			kept = append(kept, e)
		}
	}
	if len(kept) == 0 {
		delete(bucket, key)
		return
	}
	bucket[key] = kept
}

// IndexNode links a node into every single-field, axis and composite index.
// A node that is already indexed is replaced, never duplicated.
func (ix *Index) IndexNode(n *node.Node) error {
	start := time.Now()
	if err := n.Validate(); err != nil {
		ix.log.Warn().Err(err).Msg("rejected node")
		ix.observer.ObserveIndexOp("index", err, time.Since(start))
		return err
	}

	rec := ix.plan(n)

	ix.mu.Lock()
	ix.seq++
	ix.gen++
	rec.seq = ix.seq
	if old, ok := ix.primary[n.NodeID]; ok {
		ix.unlinkLocked(old)
	}
	ix.primary[n.NodeID] = rec
	ix.linkLocked(rec)
	ix.lastChange = rec.entry.IndexedAt
	size := len(ix.primary)
	ix.mu.Unlock()

	ix.cache.purge()
	ix.observer.SetIndexedNodes(size)
	ix.observer.ObserveIndexOp("index", nil, time.Since(start))
	return nil
}

// IndexNodeBatch indexes each node and tallies the outcome
func (ix *Index) IndexNodeBatch(nodes []*node.Node) BatchStats {
	stats := BatchStats{TotalNodes: len(nodes)}
	for _, n := range nodes {
		if err := ix.IndexNode(n); err != nil {
			stats.Failed++
			continue
		}
		stats.Successful++
	}

	ix.mu.Lock()
	ix.lastRebuild = ix.now()
	stats.IndexedAt = ix.lastRebuild
	ix.mu.Unlock()

	if stats.Failed > 0 {
		ix.log.Warn().
			Int("total", stats.TotalNodes).
			Int("failed", stats.Failed).
			Msg("batch indexed with failures")
	}
	return stats
}

// RemoveNode unlinks a node from every index it was inserted into.
// It reports false when the node was never indexed.
func (ix *Index) RemoveNode(id string) bool {
	start := time.Now()

	ix.mu.Lock()
	rec, ok := ix.primary[id]
	if ok {
		ix.unlinkLocked(rec)
		delete(ix.primary, id)
		ix.gen++
		ix.lastChange = ix.now()
	}
	size := len(ix.primary)
	ix.mu.Unlock()

	if !ok {
		ix.observer.ObserveIndexOp("remove", fmt.Errorf("node %s not indexed", id), time.Since(start))
		return false
	}

	ix.cache.purge()
	ix.observer.SetIndexedNodes(size)
	ix.observer.ObserveIndexOp("remove", nil, time.Since(start))
	return true
}

// Get returns the current entry for a node
func (ix *Index) Get(id string) (*Entry, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	rec, ok := ix.primary[id]
	if !ok {
		return nil, false
	}
	return rec.entry, true
}

// Len returns the number of indexed nodes
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.primary)
}

// Nodes returns copies of every indexed node in indexing order
func (ix *Index) Nodes() []*node.Node {
	ix.mu.RLock()
	recs := ix.sortedRecordsLocked()
	ix.mu.RUnlock()

	nodes := make([]*node.Node, len(recs))
	for i, rec := range recs {
		nodes[i] = rec.node.Clone()
	}
	return nodes
}

func (ix *Index) sortedRecordsLocked() []*record {
	recs := make([]*record, 0, len(ix.primary))
	for _, rec := range ix.primary {
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].seq < recs[j].seq })
	return recs
}
