package node

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validNode() *Node {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return &Node{
		NodeID:                   "n1",
		NodeType:                 "concept",
		Name:                     "Crystal Memory",
		WaterState:               WaterIce,
		FractalLayer:             3,
		Chakra:                   ChakraCrown,
		Frequency:                Freq963,
		ConsciousnessLevel:       "awake",
		QuantumState:             "coherent",
		ProgrammingOntologyLayer: "ice",
		EpistemicLabel:           EpistemicTradition,
		FractalDepth:             2,
		SelfSimilarityScore:      0.5,
		ResonancePattern:         "harmonic",
		VibrationalAxes:          []string{"axis.form", "axis.light"},
		DissonanceLevel:          0.1,
		CoherenceScore:           0.9,
		CreatedAt:                now,
		UpdatedAt:                now,
	}
}

func TestValidateAcceptsCanonicalNode(t *testing.T) {
	require.NoError(t, validNode().Validate())
}

func TestValidateRejections(t *testing.T) {
	cases := map[string]func(n *Node){
		"missing id":          func(n *Node) { n.NodeID = "" },
		"unknown water state": func(n *Node) { n.WaterState = "ws.steam" },
		"unknown chakra":      func(n *Node) { n.Chakra = "heart" },
		"layer too deep":      func(n *Node) { n.FractalLayer = MaxFractalLayer + 1 },
		"negative depth":      func(n *Node) { n.FractalDepth = -1 },
		"dissonance above 1":  func(n *Node) { n.DissonanceLevel = 1.5 },
		"coherence below 0":   func(n *Node) { n.CoherenceScore = -0.2 },
		"empty axis":          func(n *Node) { n.VibrationalAxes = []string{""} },
		"unknown epistemic":   func(n *Node) { n.EpistemicLabel = "folklore" },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			n := validNode()
			mutate(n)
			err := n.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidNode))
		})
	}
}

func TestValidateNilNode(t *testing.T) {
	var n *Node
	assert.ErrorIs(t, n.Validate(), ErrInvalidNode)
}

func TestMetadataCarriesIndexedFields(t *testing.T) {
	n := validNode()
	meta := n.Metadata()

	assert.Equal(t, WaterIce, meta["water_state"])
	assert.Equal(t, 3, meta["fractal_layer"])
	assert.Equal(t, 0.9, meta["coherence_score"])
	assert.Equal(t, []string{"axis.form", "axis.light"}, meta["vibrational_axes"])

	// the map must not alias the node's slices
	n.VibrationalAxes[0] = "changed"
	assert.Equal(t, "axis.form", meta["vibrational_axes"].([]string)[0])
}

func TestEncodeDecode(t *testing.T) {
	n := validNode()
	data, err := Encode(n)
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, n.NodeID, decoded.NodeID)
	assert.Equal(t, n.VibrationalAxes, decoded.VibrationalAxes)
	assert.True(t, n.CreatedAt.Equal(decoded.CreatedAt))
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode([]byte("not snappy"))
	assert.Error(t, err)
}

func TestCloneIsDeep(t *testing.T) {
	n := validNode()
	c := n.Clone()
	c.VibrationalAxes[0] = "other"
	assert.Equal(t, "axis.form", n.VibrationalAxes[0])
}
