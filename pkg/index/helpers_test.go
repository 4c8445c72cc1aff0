package index

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/nainya/codexindex/pkg/node"
)

var (
	waterStates   = []string{node.WaterIce, node.WaterLiquid, node.WaterVapor, node.WaterPlasma}
	chakras       = []string{node.ChakraRoot, node.ChakraHeart, node.ChakraThirdEye, node.ChakraCrown}
	frequencies   = []string{node.Freq396, node.Freq639, node.Freq852, node.Freq963}
	consciousness = []string{"awake", "sentient", "self_aware", "meta_cognitive", "transcendent"}
	quantumStates = []string{"superposition", "entangled", "collapsed", "coherent", "decoherent"}
	patterns      = []string{"harmonic", "sympathetic", "neutral", "dissonant", "destructive"}
	epistemics    = []string{"physics", "engineering", "tradition", "speculative"}
	programming   = []string{"ice", "water", "vapor"}
	axes          = []string{"axis.form", "axis.flow", "axis.light", "axis.sound"}
	testTimestamp = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
)

// newNode returns a valid node with the given id and water state; the
// remaining tags take fixed defaults that tests override as needed.
func newNode(id, water string) *node.Node {
	return &node.Node{
		NodeID:                   id,
		NodeType:                 "concept",
		Name:                     "Node " + id,
		WaterState:               water,
		FractalLayer:             1,
		Chakra:                   node.ChakraHeart,
		Frequency:                node.Freq639,
		ConsciousnessLevel:       "awake",
		QuantumState:             "coherent",
		ProgrammingOntologyLayer: "water",
		EpistemicLabel:           node.EpistemicTradition,
		FractalDepth:             1,
		ResonancePattern:         "harmonic",
		VibrationalAxes:          []string{"axis.flow"},
		DissonanceLevel:          0.2,
		CoherenceScore:           0.8,
		CreatedAt:                testTimestamp,
		UpdatedAt:                testTimestamp,
	}
}

func pick(r *rand.Rand, values []string) string {
	return values[r.Intn(len(values))]
}

// randomNode builds a valid node with every tag drawn from r
func randomNode(r *rand.Rand, i int) *node.Node {
	n := newNode(fmt.Sprintf("node-%03d", i), pick(r, waterStates))
	n.NodeType = pick(r, []string{"concept", "recipe", "cell"})
	n.Chakra = pick(r, chakras)
	n.Frequency = pick(r, frequencies)
	n.FractalLayer = r.Intn(node.MaxFractalLayer + 1)
	n.ConsciousnessLevel = pick(r, consciousness)
	n.QuantumState = pick(r, quantumStates)
	n.ResonancePattern = pick(r, patterns)
	n.EpistemicLabel = pick(r, epistemics)
	n.ProgrammingOntologyLayer = pick(r, programming)
	n.FractalDepth = r.Intn(6)
	n.CoherenceScore = float64(r.Intn(11)) / 10
	n.DissonanceLevel = float64(r.Intn(11)) / 10
	n.VibrationalAxes = nil
	for _, a := range axes {
		if r.Intn(2) == 0 {
			n.VibrationalAxes = append(n.VibrationalAxes, a)
		}
	}
	return n
}

// fieldValues returns the values a node was indexed under for each field
func fieldValues(n *node.Node) map[Field][]any {
	out := make(map[Field][]any, len(fields))
	for f, def := range fields {
		out[f] = def.keys(n)
	}
	return out
}

func containsID(entries []*Entry, id string) bool {
	for _, e := range entries {
		if e.NodeID == id {
			return true
		}
	}
	return false
}
