// ABOUTME: Indexed node record carrying ontology tags and resonance scores
// ABOUTME: Field names mirror the metadata keys stored in every index entry

package node

import "time"

// Canonical water state keys
const (
	WaterIce             = "ws.ice"
	WaterLiquid          = "ws.liquid"
	WaterVapor           = "ws.vapor"
	WaterPlasma          = "ws.plasma"
	WaterSupercritical   = "ws.supercritical"
	WaterStructured      = "ws.structured"
	WaterColloidal       = "ws.colloidal"
	WaterAmorphous       = "ws.amorphous"
	WaterClustered       = "ws.clustered"
	WaterQuantumCoherent = "ws.quantum_coherent"
	WaterLattice         = "ws.lattice_polymorphs"
	WaterBoseEinstein    = "ws.bose_einstein"
)

// Canonical chakra keys
const (
	ChakraRoot        = "ch.root"
	ChakraSacral      = "ch.sacral"
	ChakraSolarPlexus = "ch.solar_plexus"
	ChakraHeart       = "ch.heart"
	ChakraThroat      = "ch.throat"
	ChakraThirdEye    = "ch.third_eye"
	ChakraCrown       = "ch.crown"
)

// Canonical frequency keys
const (
	Freq396 = "freq.396"
	Freq417 = "freq.417"
	Freq528 = "freq.528"
	Freq639 = "freq.639"
	Freq741 = "freq.741"
	Freq852 = "freq.852"
	Freq963 = "freq.963"
)

// Epistemic labels
const (
	EpistemicPhysics     = "physics"
	EpistemicEngineering = "engineering"
	EpistemicTradition   = "tradition"
	EpistemicSpeculative = "speculative"
)

// MaxFractalLayer is the deepest fractal layer a node may declare
const MaxFractalLayer = 16

// Node is the unit the index operates on. The authoritative node store lives
// outside this module; callers hand in a snapshot and re-submit it on change.
type Node struct {
	NodeID   string   `json:"node_id" validate:"required"`
	NodeType string   `json:"node_type" validate:"required"`
	Name     string   `json:"name"`
	Content  string   `json:"content,omitempty"`
	ParentID string   `json:"parent_id,omitempty"`
	Children []string `json:"children,omitempty"`

	WaterState               string `json:"water_state" validate:"required,oneof=ws.ice ws.liquid ws.vapor ws.plasma ws.supercritical ws.structured ws.colloidal ws.amorphous ws.clustered ws.quantum_coherent ws.lattice_polymorphs ws.bose_einstein"`
	FractalLayer             int    `json:"fractal_layer" validate:"gte=0,lte=16"`
	Chakra                   string `json:"chakra" validate:"required,oneof=ch.root ch.sacral ch.solar_plexus ch.heart ch.throat ch.third_eye ch.crown"`
	Frequency                string `json:"frequency" validate:"required,oneof=freq.396 freq.417 freq.528 freq.639 freq.741 freq.852 freq.963"`
	ConsciousnessLevel       string `json:"consciousness_level" validate:"required,oneof=awake sentient self_aware meta_cognitive transcendent"`
	QuantumState             string `json:"quantum_state" validate:"required,oneof=superposition entangled collapsed coherent decoherent"`
	ProgrammingOntologyLayer string `json:"programming_ontology_layer" validate:"required,oneof=ice water vapor"`
	EpistemicLabel           string `json:"epistemic_label" validate:"required,oneof=physics engineering tradition speculative"`

	FractalDepth        int     `json:"fractal_depth" validate:"gte=0"`
	SelfSimilarityScore float64 `json:"self_similarity_score" validate:"gte=0,lte=1"`

	ResonancePattern      string   `json:"resonance_pattern" validate:"required,oneof=harmonic sympathetic neutral dissonant destructive"`
	VibrationalAxes       []string `json:"vibrational_axes,omitempty" validate:"dive,required"`
	HarmonicRelationships []string `json:"harmonic_relationships,omitempty"`
	DissonanceLevel       float64  `json:"dissonance_level" validate:"gte=0,lte=1"`
	CoherenceScore        float64  `json:"coherence_score" validate:"gte=0,lte=1"`

	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	MetadataVersion string    `json:"metadata_version,omitempty"`
}

// Metadata flattens the node into the opaque map stored alongside each index
// entry. Numeric scores are float64 and integer tags are int.
func (n *Node) Metadata() map[string]any {
	axes := append([]string(nil), n.VibrationalAxes...)
	children := append([]string(nil), n.Children...)
	harmonics := append([]string(nil), n.HarmonicRelationships...)

	return map[string]any{
		"node_id":                    n.NodeID,
		"node_type":                  n.NodeType,
		"name":                       n.Name,
		"content":                    n.Content,
		"parent_id":                  n.ParentID,
		"children":                   children,
		"water_state":                n.WaterState,
		"fractal_layer":              n.FractalLayer,
		"chakra":                     n.Chakra,
		"frequency":                  n.Frequency,
		"consciousness_level":        n.ConsciousnessLevel,
		"quantum_state":              n.QuantumState,
		"programming_ontology_layer": n.ProgrammingOntologyLayer,
		"epistemic_label":            n.EpistemicLabel,
		"fractal_depth":              n.FractalDepth,
		"self_similarity_score":      n.SelfSimilarityScore,
		"resonance_pattern":          n.ResonancePattern,
		"vibrational_axes":           axes,
		"harmonic_relationships":     harmonics,
		"dissonance_level":           n.DissonanceLevel,
		"coherence_score":            n.CoherenceScore,
		"created_at":                 n.CreatedAt,
		"updated_at":                 n.UpdatedAt,
		"metadata_version":           n.MetadataVersion,
	}
}

// Clone returns a deep copy so callers can keep mutating their own node.
func (n *Node) Clone() *Node {
	c := *n
	c.Children = append([]string(nil), n.Children...)
	c.VibrationalAxes = append([]string(nil), n.VibrationalAxes...)
	c.HarmonicRelationships = append([]string(nil), n.HarmonicRelationships...)
	return &c
}
