package index

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nainya/codexindex/pkg/node"
)

func layeredIndex(t *testing.T) *Index {
	t.Helper()
	ix := New()
	for i, layer := range []int{5, 1, 3, 3} {
		n := newNode([]string{"e", "a", "c", "d"}[i], node.WaterIce)
		n.FractalLayer = layer
		require.NoError(t, ix.IndexNode(n))
	}
	return ix
}

func TestRangeQueryOperators(t *testing.T) {
	ix := layeredIndex(t)

	tests := []struct {
		name  string
		op    Operator
		value any
		want  []string
	}{
		{"eq", OpEq, 3, []string{"c", "d"}},
		{"ne", OpNe, 3, []string{"a", "e"}},
		{"gt", OpGt, 1, []string{"c", "d", "e"}},
		{"lt", OpLt, 5, []string{"a", "c", "d"}},
		{"gte", OpGte, 3, []string{"c", "d", "e"}},
		{"lte", OpLte, 3, []string{"a", "c", "d"}},
		{"in", OpIn, []int{1, 5}, []string{"a", "e"}},
		{"not_in", OpNotIn, []any{1.0, 5.0}, []string{"c", "d"}},
		{"json float", OpGte, 3.0, []string{"c", "d", "e"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ix.Query(Range(FieldFractalLayer, tt.op, tt.value))
			assert.Empty(t, res.Metadata.Error)
			assert.Equal(t, tt.want, res.IDs())
			assert.Equal(t, "fractal_layer_range_index", res.IndexUsed)
			assert.Equal(t, "medium", res.Metadata.QueryComplexity)
		})
	}
}

func TestRangeQueryOnStringField(t *testing.T) {
	ix := New()
	require.NoError(t, ix.IndexNode(newNode("p", node.WaterPlasma)))
	require.NoError(t, ix.IndexNode(newNode("i", node.WaterIce)))
	require.NoError(t, ix.IndexNode(newNode("v", node.WaterVapor)))

	res := ix.Query(Range(FieldWaterState, OpGt, node.WaterLiquid))
	assert.Equal(t, []string{"p", "v"}, res.IDs())
}

func TestRangeQueryOnFloatField(t *testing.T) {
	ix := New()
	for i, score := range []float64{0.2, 0.9, 0.5} {
		n := newNode([]string{"low", "high", "mid"}[i], node.WaterIce)
		n.CoherenceScore = score
		require.NoError(t, ix.IndexNode(n))
	}
	res := ix.Query(Range(FieldCoherenceScore, OpGte, 0.5))
	assert.Equal(t, []string{"mid", "high"}, res.IDs())
}

func TestQueryErrorsProduceEmptyResults(t *testing.T) {
	ix := layeredIndex(t)

	tests := []struct {
		name string
		q    Query
	}{
		{"unknown field", Exact("color", "red")},
		{"wrong value type", Exact(FieldFractalLayer, "three")},
		{"fractional int", Exact(FieldFractalLayer, 2.5)},
		{"in without list", Range(FieldFractalLayer, OpIn, 3)},
		{"bad operator", Range(FieldFractalLayer, "between", 3)},
		{"unknown type", Query{Type: "semantic", Field: "water_state", Value: node.WaterIce}},
		{"fuzzy on index field", Fuzzy("water_state", "ice")},
		{"fuzzy non-string", Query{Type: QueryFuzzy, Field: "name", Value: 7}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ix.Query(tt.q)
			require.NotNil(t, res)
			assert.NotNil(t, res.Results)
			assert.Empty(t, res.Results)
			assert.Zero(t, res.TotalCount)
			assert.NotEmpty(t, res.Metadata.Error)
		})
	}
}

func TestQueryMissingValueIsEmpty(t *testing.T) {
	ix := layeredIndex(t)
	res := ix.Query(Exact(FieldWaterState, node.WaterVapor))
	assert.Empty(t, res.Results)
	assert.Empty(t, res.Metadata.Error)
}

func TestFuzzyQuery(t *testing.T) {
	ix := New()
	for id, name := range map[string]string{"n1": "Crystal Memory", "n2": "Flowing River", "n3": "crystalline lattice"} {
		n := newNode(id, node.WaterIce)
		n.Name = name
		require.NoError(t, ix.IndexNode(n))
	}

	res := ix.Query(Fuzzy("name", "CRYSTAL"))
	assert.ElementsMatch(t, []string{"n1", "n3"}, res.IDs())
	assert.Equal(t, "fuzzy_search_index", res.IndexUsed)
	assert.Equal(t, "high", res.Metadata.QueryComplexity)

	res = ix.Query(Fuzzy("node_type", "conc"))
	assert.Len(t, res.Results, 3)
}

func TestFuzzyQueryFollowsIndexOrder(t *testing.T) {
	ix := New()
	for _, id := range []string{"z", "m", "a"} {
		require.NoError(t, ix.IndexNode(newNode(id, node.WaterIce)))
	}
	assert.Equal(t, []string{"z", "m", "a"}, ix.Query(Fuzzy("name", "node")).IDs())
}

func TestCompositeQuery(t *testing.T) {
	ix := New()
	a := newNode("a", node.WaterIce)
	a.Chakra = node.ChakraCrown
	b := newNode("b", node.WaterIce)
	c := newNode("c", node.WaterLiquid)
	c.Chakra = node.ChakraCrown
	for _, n := range []*node.Node{a, b, c} {
		require.NoError(t, ix.IndexNode(n))
	}

	t.Run("composite index", func(t *testing.T) {
		res := ix.Query(Both(FieldWaterState, node.WaterIce, FieldChakra, node.ChakraCrown))
		assert.Equal(t, []string{"a"}, res.IDs())
		assert.Equal(t, "composite_water_state_chakra_index", res.IndexUsed)
	})

	t.Run("reversed pair", func(t *testing.T) {
		res := ix.Query(Both(FieldChakra, node.ChakraCrown, FieldWaterState, node.WaterIce))
		assert.Equal(t, []string{"a"}, res.IDs())
	})

	t.Run("intersection", func(t *testing.T) {
		res := ix.Query(Both(FieldChakra, node.ChakraCrown, FieldQuantumState, "coherent"))
		assert.Equal(t, []string{"a", "c"}, res.IDs())
	})

	t.Run("missing secondary", func(t *testing.T) {
		res := ix.Query(Query{Type: QueryComposite, Field: "chakra", Value: node.ChakraCrown})
		assert.Empty(t, res.Results)
		assert.Empty(t, res.Metadata.Error)
	})

	t.Run("bad secondary value", func(t *testing.T) {
		res := ix.Query(Both(FieldFractalLayer, 1, FieldConsciousnessLevel, 9))
		assert.Empty(t, res.Results)
		assert.NotEmpty(t, res.Metadata.Error)
	})
}

func TestCompositeLookup(t *testing.T) {
	ix := New()
	n := newNode("n1", node.WaterIce)
	n.FractalLayer = 4
	n.ConsciousnessLevel = "sentient"
	require.NoError(t, ix.IndexNode(n))

	entries, err := ix.CompositeLookup(CompositeFractalConsciousness, 4, "sentient")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "n1", entries[0].NodeID)

	entries, err = ix.CompositeLookup(CompositeChakraFrequency, node.ChakraHeart, node.Freq639)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	_, err = ix.CompositeLookup("water_frequency", node.WaterIce, node.Freq639)
	assert.ErrorIs(t, err, ErrUnknownField)
}

func TestQueryCacheHitAndInvalidation(t *testing.T) {
	obs := newRecordingObserver()
	ix := New(WithObserver(obs))
	require.NoError(t, ix.IndexNode(newNode("n1", node.WaterIce)))

	q := Exact(FieldWaterState, node.WaterIce)
	first := ix.Query(q)
	assert.False(t, first.Metadata.CacheHit)

	second := ix.Query(q)
	assert.True(t, second.Metadata.CacheHit)
	assert.Equal(t, first.IDs(), second.IDs())
	assert.False(t, first.Metadata.CacheHit, "cached copy must not be mutated")

	require.NoError(t, ix.IndexNode(newNode("n2", node.WaterIce)))
	third := ix.Query(q)
	assert.False(t, third.Metadata.CacheHit)
	assert.Equal(t, []string{"n1", "n2"}, third.IDs())

	ix.RemoveNode("n1")
	fourth := ix.Query(q)
	assert.False(t, fourth.Metadata.CacheHit)
	assert.Equal(t, []string{"n2"}, fourth.IDs())

	assert.Equal(t, 4, obs.queries)
	assert.Equal(t, 1, obs.hits)
}

func TestQueryCacheExpires(t *testing.T) {
	ix := New(WithCache(8, 50*time.Millisecond))
	require.NoError(t, ix.IndexNode(newNode("n1", node.WaterIce)))

	q := Exact(FieldWaterState, node.WaterIce)
	ix.Query(q)
	require.True(t, ix.Query(q).Metadata.CacheHit)

	time.Sleep(120 * time.Millisecond)
	assert.False(t, ix.Query(q).Metadata.CacheHit)
}

func TestQueryStatistics(t *testing.T) {
	ix := layeredIndex(t)

	ix.Query(Exact(FieldFractalLayer, 3))
	ix.Query(Exact(FieldFractalLayer, 3))
	ix.Query(Range(FieldFractalLayer, OpGt, 1))
	ix.Query(Fuzzy("name", "node"))

	stats := ix.Statistics()
	qs := stats.QueryStatistics
	assert.Equal(t, int64(4), qs.TotalQueries)
	assert.Equal(t, int64(1), qs.CacheHits)
	assert.Equal(t, int64(3), qs.CacheMisses)
	assert.Equal(t, int64(2), qs.QueriesByType[QueryExact])
	assert.Equal(t, int64(1), qs.QueriesByType[QueryRange])
	assert.GreaterOrEqual(t, qs.AverageQueryTimeMs, 0.0)
	assert.Equal(t, 25.0, stats.Cache.CacheHitRate)
	assert.Equal(t, 3, stats.Cache.CacheSize)
	assert.Equal(t, DefaultCacheTTL.Seconds(), stats.Cache.CacheTTL)
}

func TestQueryDecodedFromJSON(t *testing.T) {
	ix := layeredIndex(t)

	var q Query
	require.NoError(t, json.Unmarshal([]byte(`{"query_type":"range","field":"fractal_layer","value":[3,5],"operator":"in"}`), &q))
	assert.Equal(t, []string{"c", "d", "e"}, ix.Query(q).IDs())

	var exact Query
	require.NoError(t, json.Unmarshal([]byte(`{"query_type":"exact","field":"fractal_layer","value":1}`), &exact))
	res := ix.Query(exact)
	assert.Equal(t, []string{"a"}, res.IDs())
	assert.Equal(t, OpEq, res.Query.Operator)
}

func TestQueryBuilder(t *testing.T) {
	q := NewQueryBuilder(QueryComposite).
		Where(FieldWaterState, node.WaterIce).
		And(FieldChakra, node.ChakraCrown).
		Build()

	assert.Equal(t, QueryComposite, q.Type)
	assert.Equal(t, "water_state", q.Field)
	assert.Equal(t, node.WaterIce, q.Value)
	assert.Equal(t, "chakra", q.SecondaryField)
	assert.Equal(t, OpEq, q.SecondaryOperator)

	r := Range(FieldFractalDepth, OpLte, 2)
	assert.Equal(t, OpLte, r.Operator)
	assert.Equal(t, "fractal_depth", r.Field)
}
