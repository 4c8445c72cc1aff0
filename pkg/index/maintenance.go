// ABOUTME: Index maintenance, statistics and export
// ABOUTME: Rebuild clears, Reindex re-derives secondary maps from the primary map

package index

import (
	"encoding/json"
	"fmt"
	"time"
)

// RebuildStats summarizes RebuildIndexes
type RebuildStats struct {
	RebuildCompleted  bool      `json:"rebuild_completed"`
	RebuildTimestamp  time.Time `json:"rebuild_timestamp"`
	TotalIndexedNodes int       `json:"total_indexed_nodes"`
	IndexesCleared    bool      `json:"indexes_cleared"`
}

// OptimizeStats summarizes OptimizeIndexes
type OptimizeStats struct {
	OptimizationTimestamp time.Time      `json:"optimization_timestamp"`
	IndexSizes            map[string]int `json:"index_sizes"`
	OptimizationApplied   []string       `json:"optimization_applied"`
}

// SystemInfo identifies the index instance
type SystemInfo struct {
	Name              string    `json:"name"`
	Version           string    `json:"version"`
	LastRebuild       time.Time `json:"last_rebuild"`
	LastChange        time.Time `json:"last_change,omitempty"`
	TotalIndexedNodes int       `json:"total_indexed_nodes"`
}

// CacheInfo describes the query cache
type CacheInfo struct {
	CacheSize    int     `json:"cache_size"`
	CacheTTL     float64 `json:"cache_ttl"`
	CacheHitRate float64 `json:"cache_hit_rate"`
}

// Statistics is the full report returned by Statistics
type Statistics struct {
	System          SystemInfo      `json:"index_system_info"`
	IndexSizes      map[string]int  `json:"index_sizes"`
	QueryStatistics QueryStatistics `json:"query_statistics"`
	Cache           CacheInfo       `json:"cache_info"`
}

// ExportData holds per-value bucket counts for the core indices
type ExportData struct {
	System        SystemInfo                `json:"index_system_info"`
	ExportedAt    time.Time                 `json:"exported_at"`
	IndexContents map[string]map[string]int `json:"index_contents"`
	Statistics    Statistics                `json:"statistics"`
}

// RebuildIndexes clears every index, the primary map and the query
// counters. It does not re-populate; callers re-submit their nodes.
func (ix *Index) RebuildIndexes() RebuildStats {
	ix.mu.Lock()
	ix.resetMapsLocked()
	ix.gen++
	ix.lastRebuild = ix.now()
	ts := ix.lastRebuild
	ix.mu.Unlock()

	ix.cache.purge()
	ix.stats.reset()
	ix.observer.SetIndexedNodes(0)
	ix.log.Info().Time("rebuild_timestamp", ts).Msg("indexes cleared")

	return RebuildStats{
		RebuildCompleted:  true,
		RebuildTimestamp:  ts,
		TotalIndexedNodes: 0,
		IndexesCleared:    true,
	}
}

// Reindex discards every secondary map and relinks all nodes held in the
// primary map, in their original indexing order. It returns the node count.
func (ix *Index) Reindex() int {
	start := time.Now()

	ix.mu.Lock()
	ix.resetSecondaryLocked()
	recs := ix.sortedRecordsLocked()
	for _, rec := range recs {
		ix.linkLocked(rec)
	}
	ix.gen++
	ix.lastRebuild = ix.now()
	ix.mu.Unlock()

	ix.cache.purge()
	ix.observer.ObserveIndexOp("reindex", nil, time.Since(start))
	ix.log.Info().Int("nodes", len(recs)).Dur("took", time.Since(start)).Msg("secondary indexes rebuilt")
	return len(recs)
}

// OptimizeIndexes reports index sizes, drops the query cache and clears
// query statistics once they have grown past the reset threshold.
func (ix *Index) OptimizeIndexes() OptimizeStats {
	stats := OptimizeStats{
		OptimizationTimestamp: ix.now(),
		IndexSizes:            ix.indexSizes(),
		OptimizationApplied:   []string{},
	}

	cleared := ix.cache.purge()
	stats.OptimizationApplied = append(stats.OptimizationApplied,
		fmt.Sprintf("Cleared query cache (%d entries)", cleared))

	if ix.stats.resetIfAbove(statsResetThreshold) {
		stats.OptimizationApplied = append(stats.OptimizationApplied, "Cleared query statistics")
	}
	return stats
}

// indexSizes reports the number of distinct keys per index
func (ix *Index) indexSizes() map[string]int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	sizes := make(map[string]int, len(fields)+len(composites))
	for _, f := range FieldOrder {
		sizes[string(f)] = len(ix.single[f])
	}
	for _, c := range composites {
		sizes[string(c.name)] = len(ix.composite[c.name])
	}
	return sizes
}

func (ix *Index) systemInfo() SystemInfo {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return SystemInfo{
		Name:              "Enhanced Indexing System",
		Version:           Version,
		LastRebuild:       ix.lastRebuild,
		LastChange:        ix.lastChange,
		TotalIndexedNodes: len(ix.primary),
	}
}

// Statistics reports sizes, query counters and cache state
func (ix *Index) Statistics() Statistics {
	return Statistics{
		System:          ix.systemInfo(),
		IndexSizes:      ix.indexSizes(),
		QueryStatistics: ix.stats.snapshot(),
		Cache: CacheInfo{
			CacheSize:    ix.cache.len(),
			CacheTTL:     ix.cache.ttl.Seconds(),
			CacheHitRate: roundTo(ix.stats.hitRate(), 2),
		},
	}
}

// Export returns per-value bucket counts for the nine core indices
func (ix *Index) Export() *ExportData {
	contents := make(map[string]map[string]int, len(coreFields))

	ix.mu.RLock()
	for _, f := range coreFields {
		counts := make(map[string]int, len(ix.single[f]))
		for k, entries := range ix.single[f] {
			counts[fmt.Sprint(k)] = len(entries)
		}
		contents[string(f)] = counts
	}
	ix.mu.RUnlock()

	return &ExportData{
		System:        ix.systemInfo(),
		ExportedAt:    ix.now(),
		IndexContents: contents,
		Statistics:    ix.Statistics(),
	}
}

// ExportJSON renders Export as indented JSON
func (ix *Index) ExportJSON() ([]byte, error) {
	data, err := json.MarshalIndent(ix.Export(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("export index data: %w", err)
	}
	return data, nil
}

func roundTo(v float64, places int) float64 {
	p := 1.0
	for i := 0; i < places; i++ {
		p *= 10
	}
	return float64(int64(v*p+0.5)) / p
}
