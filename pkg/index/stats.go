package index

import "sync"

// QueryStatistics is a point-in-time copy of the query counters
type QueryStatistics struct {
	TotalQueries       int64               `json:"total_queries"`
	QueriesByType      map[QueryType]int64 `json:"queries_by_type"`
	AverageQueryTimeMs float64             `json:"average_query_time"`
	CacheHits          int64               `json:"cache_hits"`
	CacheMisses        int64               `json:"cache_misses"`
}

// queryStats counts every query. The average covers executed queries only;
// cache hits do not contribute latency.
type queryStats struct {
	mu       sync.Mutex
	total    int64
	byType   map[QueryType]int64
	avgMs    float64
	executed int64
	hits     int64
	misses   int64
}

func newQueryStats() *queryStats {
	return &queryStats{byType: make(map[QueryType]int64)}
}

func (s *queryStats) recordHit(qt QueryType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total++
	s.byType[qt]++
	s.hits++
}

func (s *queryStats) recordExecuted(qt QueryType, ms float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total++
	s.byType[qt]++
	s.misses++
	s.executed++
	s.avgMs += (ms - s.avgMs) / float64(s.executed)
}

func (s *queryStats) snapshot() QueryStatistics {
	s.mu.Lock()
	defer s.mu.Unlock()
	byType := make(map[QueryType]int64, len(s.byType))
	for k, v := range s.byType {
		byType[k] = v
	}
	return QueryStatistics{
		TotalQueries:       s.total,
		QueriesByType:      byType,
		AverageQueryTimeMs: s.avgMs,
		CacheHits:          s.hits,
		CacheMisses:        s.misses,
	}
}

// hitRate is the percentage of queries served from cache
func (s *queryStats) hitRate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.total == 0 {
		return 0
	}
	return float64(s.hits) / float64(s.total) * 100
}

// resetIfAbove clears the counters once more than limit queries were seen
func (s *queryStats) resetIfAbove(limit int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.total <= limit {
		return false
	}
	s.total, s.hits, s.misses, s.executed = 0, 0, 0, 0
	s.avgMs = 0
	s.byType = make(map[QueryType]int64)
	return true
}

func (s *queryStats) reset() {
	s.resetIfAbove(-1)
}
