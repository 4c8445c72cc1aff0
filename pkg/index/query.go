// ABOUTME: Query evaluation for exact, range, fuzzy and composite lookups
// ABOUTME: Results are cached per index generation for a fixed TTL

package index

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// Query evaluates q and never returns nil. Unknown fields and malformed
// values produce an empty result whose metadata carries the error.
func (ix *Index) Query(q Query) *QueryResult {
	start := time.Now()
	if q.Operator == "" {
		q.Operator = OpEq
	}

	ix.mu.RLock()
	gen := ix.gen
	ix.mu.RUnlock()

	key, cacheable := cacheKey(q, gen)
	if cacheable {
		if cached, ok := ix.cache.get(key); ok {
			ix.stats.recordHit(q.Type)
			ix.observer.ObserveQuery(q.Type, true, time.Since(start))
			hit := *cached
			hit.Metadata.CacheHit = true
			return &hit
		}
	}

	ix.mu.RLock()
	results, err := ix.executeLocked(q)
	size := len(ix.primary)
	ix.mu.RUnlock()

	if err != nil {
		ix.log.Debug().Err(err).
			Str("query_type", string(q.Type)).
			Str("field", q.Field).
			Msg("query degraded to empty result")
		results = nil
	}
	if results == nil {
		results = []*Entry{}
	}

	elapsed := time.Since(start)
	ms := math.Round(float64(elapsed.Microseconds())/10) / 100
	res := &QueryResult{
		Query:       q,
		Results:     results,
		TotalCount:  len(results),
		QueryTimeMs: ms,
		IndexUsed:   indexUsed(q),
		Metadata: ResultMetadata{
			IndexSize:       size,
			QueryComplexity: complexity(q.Type),
		},
	}
	if err != nil {
		res.Metadata.Error = err.Error()
	}

	if cacheable {
		ix.cache.add(key, res)
	}
	ix.stats.recordExecuted(q.Type, ms)
	ix.observer.ObserveQuery(q.Type, false, elapsed)
	return res
}

func (ix *Index) executeLocked(q Query) ([]*Entry, error) {
	switch q.Type {
	case QueryExact:
		return ix.exactLocked(q.Field, q.Value)
	case QueryRange:
		return ix.rangeLocked(q.Field, q.Operator, q.Value)
	case QueryFuzzy:
		return ix.fuzzyLocked(q.Field, q.Value)
	case QueryComposite:
		return ix.compositeLocked(q)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownQueryType, q.Type)
}

// exactLocked returns a copy of the bucket for field=value
func (ix *Index) exactLocked(field string, value any) ([]*Entry, error) {
	f, def, ok := lookupField(field)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	key, err := normalizeKey(def.kind, value)
	if err != nil {
		return nil, err
	}
	return cloneEntries(ix.single[f][key]), nil
}

// rangeLocked scans the distinct keys of a field in ascending order
func (ix *Index) rangeLocked(field string, op Operator, value any) ([]*Entry, error) {
	f, def, ok := lookupField(field)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownField, field)
	}

	match, err := rangePredicate(def.kind, op, value)
	if err != nil {
		return nil, err
	}

	bucket := ix.single[f]
	keys := make([]any, 0, len(bucket))
	for k := range bucket {
		if match(k) {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return compareKeys(keys[i], keys[j]) < 0 })

	var results []*Entry
	seen := make(map[string]bool)
	for _, k := range keys {
		for _, e := range bucket[k] {
			// a multi-valued field can hold one node under several matching keys
			if !seen[e.NodeID] {
				seen[e.NodeID] = true
				results = append(results, e)
			}
		}
	}
	return results, nil
}

// rangePredicate compiles op and value into a key filter
func rangePredicate(kind keyKind, op Operator, value any) (func(any) bool, error) {
	switch op {
	case OpIn, OpNotIn:
		targets, err := normalizeKeys(kind, value)
		if err != nil {
			return nil, err
		}
		set := make(map[any]bool, len(targets))
		for _, t := range targets {
			set[t] = true
		}
		if op == OpIn {
			return func(k any) bool { return set[k] }, nil
		}
		return func(k any) bool { return !set[k] }, nil
	}

	target, err := normalizeKey(kind, value)
	if err != nil {
		return nil, err
	}
	switch op {
	case OpEq:
		return func(k any) bool { return compareKeys(k, target) == 0 }, nil
	case OpNe:
		return func(k any) bool { return compareKeys(k, target) != 0 }, nil
	case OpGt:
		return func(k any) bool { return compareKeys(k, target) > 0 }, nil
	case OpLt:
		return func(k any) bool { return compareKeys(k, target) < 0 }, nil
	case OpGte:
		return func(k any) bool { return compareKeys(k, target) >= 0 }, nil
	case OpLte:
		return func(k any) bool { return compareKeys(k, target) <= 0 }, nil
	}
	return nil, fmt.Errorf("%w: unsupported operator %q", ErrBadValue, op)
}

// fuzzyLocked does case-insensitive substring matching over every indexed
// node, in indexing order
func (ix *Index) fuzzyLocked(field string, value any) ([]*Entry, error) {
	needle, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("%w: fuzzy value must be a string", ErrBadValue)
	}
	needle = strings.ToLower(needle)

	var attr func(*Entry) string
	switch field {
	case fuzzyName:
		attr = func(e *Entry) string { return e.Name }
	case fuzzyNodeType:
		attr = func(e *Entry) string { return e.NodeType }
	default:
		return nil, fmt.Errorf("%w: %q is not fuzzy-searchable", ErrUnknownField, field)
	}

	var results []*Entry
	for _, rec := range ix.sortedRecordsLocked() {
		if strings.Contains(strings.ToLower(attr(rec.entry)), needle) {
			results = append(results, rec.entry)
		}
	}
	return results, nil
}

// compositeLocked intersects two exact lookups by node id, keeping the
// primary lookup's order. Pairs covered by a composite index are answered
// from it directly.
func (ix *Index) compositeLocked(q Query) ([]*Entry, error) {
	if q.SecondaryField == "" || isZero(q.SecondaryValue) {
		return nil, nil
	}

	if entries, ok, err := ix.compositeFastPathLocked(q); ok || err != nil {
		return entries, err
	}

	primary, err := ix.exactLocked(q.Field, q.Value)
	if err != nil {
		return nil, err
	}
	secondary, err := ix.exactLocked(q.SecondaryField, q.SecondaryValue)
	if err != nil {
		return nil, err
	}
	return intersect(primary, secondary), nil
}

func (ix *Index) compositeFastPathLocked(q Query) ([]*Entry, bool, error) {
	a, specA, okA := lookupField(q.Field)
	b, specB, okB := lookupField(q.SecondaryField)
	if !okA || !okB {
		return nil, false, nil
	}
	c, reversed, ok := findComposite(a, b)
	if !ok {
		return nil, false, nil
	}
	ka, err := normalizeKey(specA.kind, q.Value)
	if err != nil {
		return nil, true, err
	}
	kb, err := normalizeKey(specB.kind, q.SecondaryValue)
	if err != nil {
		return nil, true, err
	}
	pk := pairKey{ka, kb}
	if reversed {
		pk = pairKey{kb, ka}
	}
	return cloneEntries(ix.composite[c.name][pk]), true, nil
}

// CompositeLookup reads a tuple-keyed index directly
func (ix *Index) CompositeLookup(name Composite, first, second any) ([]*Entry, error) {
	for _, c := range composites {
		if c.name != name {
			continue
		}
		ka, err := normalizeKey(fields[c.first].kind, first)
		if err != nil {
			return nil, err
		}
		kb, err := normalizeKey(fields[c.second].kind, second)
		if err != nil {
			return nil, err
		}
		ix.mu.RLock()
		defer ix.mu.RUnlock()
		return cloneEntries(ix.composite[name][pairKey{ka, kb}]), nil
	}
	return nil, fmt.Errorf("%w: composite %q", ErrUnknownField, name)
}

func intersect(primary, secondary []*Entry) []*Entry {
	ids := make(map[string]bool, len(secondary))
	for _, e := range secondary {
		ids[e.NodeID] = true
	}
	var out []*Entry
	for _, e := range primary {
		if ids[e.NodeID] {
			out = append(out, e)
		}
	}
	return out
}

func cloneEntries(entries []*Entry) []*Entry {
	if len(entries) == 0 {
		return nil
	}
	out := make([]*Entry, len(entries))
	copy(out, entries)
	return out
}

func isZero(v any) bool {
	if v == nil {
		return true
	}
	switch x := v.(type) {
	case string:
		return x == ""
	}
	return false
}

func indexUsed(q Query) string {
	switch q.Type {
	case QueryExact:
		return q.Field + "_index"
	case QueryRange:
		return q.Field + "_range_index"
	case QueryFuzzy:
		return "fuzzy_search_index"
	case QueryComposite:
		return fmt.Sprintf("composite_%s_%s_index", q.Field, q.SecondaryField)
	}
	return "unknown_index"
}

func complexity(qt QueryType) string {
	switch qt {
	case QueryExact:
		return "low"
	case QueryRange:
		return "medium"
	case QueryFuzzy, QueryComposite:
		return "high"
	}
	return "unknown"
}
