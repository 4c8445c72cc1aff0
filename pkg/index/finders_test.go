package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nainya/codexindex/pkg/node"
)

func entryIDs(entries []*Entry) []string {
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.NodeID)
	}
	return ids
}

func TestFindByTheme(t *testing.T) {
	ix := New()

	crystal := newNode("crystal", node.WaterIce)
	crystal.Chakra = node.ChakraCrown
	crystal.Frequency = node.Freq963

	halfIce := newNode("half", node.WaterIce)
	halfIce.Chakra = node.ChakraCrown

	river := newNode("river", node.WaterLiquid)

	for _, n := range []*node.Node{crystal, halfIce, river} {
		require.NoError(t, ix.IndexNode(n))
	}

	assert.Equal(t, []string{"crystal"}, entryIDs(ix.FindByTheme("ice")))
	assert.Equal(t, []string{"river"}, entryIDs(ix.FindByTheme("liquid")))
	assert.Empty(t, ix.FindByTheme("plasma"))
	assert.Empty(t, ix.FindByTheme("mud"))
}

func TestFindByResonancePattern(t *testing.T) {
	ix := New()
	for i, tc := range []struct {
		coherence, dissonance float64
	}{{0.9, 0.1}, {0.4, 0.1}, {0.9, 0.6}} {
		n := newNode([]string{"clear", "weak", "noisy"}[i], node.WaterIce)
		n.CoherenceScore = tc.coherence
		n.DissonanceLevel = tc.dissonance
		require.NoError(t, ix.IndexNode(n))
	}

	assert.Equal(t, []string{"clear"}, entryIDs(ix.FindByResonancePattern("harmonic", 0.5, 0.5)))
	assert.Equal(t, []string{"clear", "weak", "noisy"}, entryIDs(ix.FindByResonancePattern("harmonic", 0, 1)))
	assert.Empty(t, ix.FindByResonancePattern("dissonant", 0, 1))
}

func TestMetaFloatDefaults(t *testing.T) {
	assert.Equal(t, 0.0, metaFloat(map[string]any{}, "coherence_score", 0.0))
	assert.Equal(t, 1.0, metaFloat(map[string]any{"dissonance_level": "loud"}, "dissonance_level", 1.0))
	assert.Equal(t, 0.25, metaFloat(map[string]any{"coherence_score": 0.25}, "coherence_score", 0.0))
}

func TestFindByFractalDepthRange(t *testing.T) {
	ix := New()
	for i, depth := range []int{4, 0, 2, 2} {
		n := newNode([]string{"deep", "surface", "mid1", "mid2"}[i], node.WaterIce)
		n.FractalDepth = depth
		if i == 3 {
			n.ConsciousnessLevel = "transcendent"
		}
		require.NoError(t, ix.IndexNode(n))
	}

	assert.Equal(t, []string{"surface", "mid1", "mid2", "deep"}, entryIDs(ix.FindByFractalDepthRange(0, 10, "")))
	assert.Equal(t, []string{"mid1", "mid2"}, entryIDs(ix.FindByFractalDepthRange(1, 3, "")))
	assert.Equal(t, []string{"mid2"}, entryIDs(ix.FindByFractalDepthRange(1, 3, "transcendent")))
	assert.Empty(t, ix.FindByFractalDepthRange(5, 9, ""))
	assert.Empty(t, ix.FindByFractalDepthRange(3, 1, ""))
}

func TestFindByEpistemicAlignment(t *testing.T) {
	ix := New()
	physics := newNode("p", node.WaterIce)
	physics.EpistemicLabel = node.EpistemicPhysics
	tradition := newNode("t", node.WaterIce)
	for _, n := range []*node.Node{physics, tradition} {
		require.NoError(t, ix.IndexNode(n))
	}

	assert.Equal(t, []string{"p"}, entryIDs(ix.FindByEpistemicAlignment(node.EpistemicPhysics, "")))
	assert.Empty(t, ix.FindByEpistemicAlignment(node.EpistemicPhysics, node.EpistemicTradition))
	assert.Equal(t, []string{"t"}, entryIDs(ix.FindByEpistemicAlignment(node.EpistemicTradition, node.EpistemicTradition)))
	assert.Empty(t, ix.FindByEpistemicAlignment(node.EpistemicSpeculative, ""))
	assert.Empty(t, ix.FindByEpistemicAlignment(node.EpistemicPhysics, node.EpistemicSpeculative))
}
