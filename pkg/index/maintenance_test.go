package index

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nainya/codexindex/pkg/node"
)

func TestRebuildIndexesClearsEverything(t *testing.T) {
	ix := New()
	require.NoError(t, ix.IndexNode(newNode("n1", node.WaterIce)))
	ix.Query(Exact(FieldWaterState, node.WaterIce))

	stats := ix.RebuildIndexes()
	assert.True(t, stats.RebuildCompleted)
	assert.True(t, stats.IndexesCleared)
	assert.Zero(t, stats.TotalIndexedNodes)
	assert.False(t, stats.RebuildTimestamp.IsZero())

	assert.Zero(t, ix.Len())
	res := ix.Query(Exact(FieldWaterState, node.WaterIce))
	assert.False(t, res.Metadata.CacheHit)
	assert.Empty(t, res.Results)

	// only the query issued after the rebuild is counted
	assert.Equal(t, int64(1), ix.Statistics().QueryStatistics.TotalQueries)

	require.NoError(t, ix.IndexNode(newNode("n1", node.WaterIce)))
	assert.Equal(t, []string{"n1"}, ix.Query(Exact(FieldWaterState, node.WaterIce)).IDs())
}

func TestReindexIsIdempotent(t *testing.T) {
	ix := New()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, ix.IndexNode(newNode(id, node.WaterVapor)))
	}
	before := ix.indexSizes()
	beforeIDs := ix.Query(Exact(FieldChakra, node.ChakraHeart)).IDs()

	assert.Equal(t, 3, ix.Reindex())
	assert.Equal(t, 3, ix.Reindex())

	assert.Equal(t, before, ix.indexSizes())
	res := ix.Query(Exact(FieldChakra, node.ChakraHeart))
	assert.False(t, res.Metadata.CacheHit)
	assert.Equal(t, beforeIDs, res.IDs())
}

func TestOptimizeIndexes(t *testing.T) {
	ix := New()
	require.NoError(t, ix.IndexNode(newNode("n1", node.WaterIce)))
	ix.Query(Exact(FieldWaterState, node.WaterIce))

	stats := ix.OptimizeIndexes()
	assert.Equal(t, 1, stats.IndexSizes["water_state"])
	assert.Equal(t, 1, stats.IndexSizes["water_chakra"])
	assert.Equal(t, []string{"Cleared query cache (1 entries)"}, stats.OptimizationApplied)
	assert.Equal(t, int64(1), ix.Statistics().QueryStatistics.TotalQueries)
	assert.Zero(t, ix.Statistics().Cache.CacheSize)

	for i := 0; i < 1001; i++ {
		ix.Query(Exact(FieldWaterState, node.WaterIce))
	}
	stats = ix.OptimizeIndexes()
	assert.Contains(t, stats.OptimizationApplied, "Cleared query statistics")
	assert.Zero(t, ix.Statistics().QueryStatistics.TotalQueries)
}

func TestStatisticsReportsSizes(t *testing.T) {
	ix := New()
	a := newNode("a", node.WaterIce)
	a.VibrationalAxes = []string{"axis.form", "axis.light"}
	require.NoError(t, ix.IndexNode(a))
	require.NoError(t, ix.IndexNode(newNode("b", node.WaterLiquid)))

	stats := ix.Statistics()
	assert.Equal(t, "Enhanced Indexing System", stats.System.Name)
	assert.Equal(t, Version, stats.System.Version)
	assert.Equal(t, 2, stats.System.TotalIndexedNodes)
	assert.Equal(t, 2, stats.IndexSizes["water_state"])
	assert.Equal(t, 1, stats.IndexSizes["chakra"])
	assert.Equal(t, 3, stats.IndexSizes["vibrational_axes"])
	assert.Len(t, stats.IndexSizes, len(FieldOrder)+len(composites))
}

func TestExport(t *testing.T) {
	ix := New()
	for i, ws := range []string{node.WaterIce, node.WaterIce, node.WaterPlasma} {
		n := newNode([]string{"a", "b", "c"}[i], ws)
		n.FractalLayer = 2
		require.NoError(t, ix.IndexNode(n))
	}

	export := ix.Export()
	assert.Len(t, export.IndexContents, 9)
	assert.Equal(t, map[string]int{node.WaterIce: 2, node.WaterPlasma: 1}, export.IndexContents["water_state"])
	assert.Equal(t, map[string]int{"2": 3}, export.IndexContents["fractal_layer"])
	assert.NotContains(t, export.IndexContents, "vibrational_axes")
	assert.Equal(t, 3, export.System.TotalIndexedNodes)

	raw, err := ix.ExportJSON()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	for _, key := range []string{"index_system_info", "exported_at", "index_contents", "statistics"} {
		assert.Contains(t, decoded, key)
	}
}

func TestRoundTo(t *testing.T) {
	assert.Equal(t, 33.33, roundTo(100.0/3, 2))
	assert.Equal(t, 0.0, roundTo(0, 2))
}
