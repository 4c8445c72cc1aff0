// ABOUTME: Dispatch table mapping indexed field names to key extractors
// ABOUTME: Key normalization and ordering for string, integer and float keys

package index

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/nainya/codexindex/pkg/node"
)

// Field names an indexed ontology dimension
type Field string

const (
	FieldWaterState               Field = "water_state"
	FieldChakra                   Field = "chakra"
	FieldFrequency                Field = "frequency"
	FieldFractalLayer             Field = "fractal_layer"
	FieldConsciousnessLevel       Field = "consciousness_level"
	FieldQuantumState             Field = "quantum_state"
	FieldResonancePattern         Field = "resonance_pattern"
	FieldEpistemicLabel           Field = "epistemic_label"
	FieldProgrammingOntologyLayer Field = "programming_ontology_layer"
	FieldFractalDepth             Field = "fractal_depth"
	FieldCoherenceScore           Field = "coherence_score"
	FieldDissonanceLevel          Field = "dissonance_level"
	FieldVibrationalAxes          Field = "vibrational_axes"
)

// fuzzy queries match against these entry attributes, not against an index
const (
	fuzzyName     = "name"
	fuzzyNodeType = "node_type"
)

type keyKind int

const (
	kindString keyKind = iota
	kindInt
	kindFloat
)

type fieldSpec struct {
	kind keyKind
	keys func(n *node.Node) []any
}

func one(v any) []any { return []any{v} }

// fields is the dispatch table. Order matters only for reporting.
var fields = map[Field]fieldSpec{
	FieldWaterState:               {kindString, func(n *node.Node) []any { return one(n.WaterState) }},
	FieldChakra:                   {kindString, func(n *node.Node) []any { return one(n.Chakra) }},
	FieldFrequency:                {kindString, func(n *node.Node) []any { return one(n.Frequency) }},
	FieldFractalLayer:             {kindInt, func(n *node.Node) []any { return one(n.FractalLayer) }},
	FieldConsciousnessLevel:       {kindString, func(n *node.Node) []any { return one(n.ConsciousnessLevel) }},
	FieldQuantumState:             {kindString, func(n *node.Node) []any { return one(n.QuantumState) }},
	FieldResonancePattern:         {kindString, func(n *node.Node) []any { return one(n.ResonancePattern) }},
	FieldEpistemicLabel:           {kindString, func(n *node.Node) []any { return one(n.EpistemicLabel) }},
	FieldProgrammingOntologyLayer: {kindString, func(n *node.Node) []any { return one(n.ProgrammingOntologyLayer) }},
	FieldFractalDepth:             {kindInt, func(n *node.Node) []any { return one(n.FractalDepth) }},
	FieldCoherenceScore:           {kindFloat, func(n *node.Node) []any { return one(n.CoherenceScore) }},
	FieldDissonanceLevel:          {kindFloat, func(n *node.Node) []any { return one(n.DissonanceLevel) }},
	FieldVibrationalAxes: {kindString, func(n *node.Node) []any {
		seen := make(map[string]bool, len(n.VibrationalAxes))
		keys := make([]any, 0, len(n.VibrationalAxes))
		for _, axis := range n.VibrationalAxes {
			if !seen[axis] {
				seen[axis] = true
				keys = append(keys, axis)
			}
		}
		return keys
	}},
}

// FieldOrder lists every single-field index in reporting order
var FieldOrder = []Field{
	FieldWaterState,
	FieldChakra,
	FieldFrequency,
	FieldFractalLayer,
	FieldConsciousnessLevel,
	FieldQuantumState,
	FieldResonancePattern,
	FieldEpistemicLabel,
	FieldProgrammingOntologyLayer,
	FieldFractalDepth,
	FieldCoherenceScore,
	FieldDissonanceLevel,
	FieldVibrationalAxes,
}

// coreFields are the nine dimensions included in exports
var coreFields = FieldOrder[:9]

// Composite names a tuple-keyed index over two fields
type Composite string

const (
	CompositeWaterChakra          Composite = "water_chakra"
	CompositeChakraFrequency      Composite = "chakra_frequency"
	CompositeFractalConsciousness Composite = "fractal_consciousness"
)

type compositeSpec struct {
	name          Composite
	first, second Field
}

var composites = []compositeSpec{
	{CompositeWaterChakra, FieldWaterState, FieldChakra},
	{CompositeChakraFrequency, FieldChakra, FieldFrequency},
	{CompositeFractalConsciousness, FieldFractalLayer, FieldConsciousnessLevel},
}

type pairKey struct {
	first, second any
}

// lookupField resolves a field name to its definition
func lookupField(name string) (Field, fieldSpec, bool) {
	f := Field(name)
	def, ok := fields[f]
	return f, def, ok
}

// findComposite returns the composite index covering fields a and b, and
// whether the pair is reversed relative to the index definition.
func findComposite(a, b Field) (compositeSpec, bool, bool) {
	for _, c := range composites {
		if c.first == a && c.second == b {
			return c, false, true
		}
		if c.first == b && c.second == a {
			return c, true, true
		}
	}
	return compositeSpec{}, false, false
}

// normalizeKey converts a query value into the key type stored for kind.
// JSON decoding yields float64 for every number, so integral floats are
// accepted for integer fields.
func normalizeKey(kind keyKind, v any) (any, error) {
	switch kind {
	case kindString:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: want string, got %T", ErrBadValue, v)
		}
		return s, nil
	case kindInt:
		f, ok := toFloat(v)
		if !ok || f != math.Trunc(f) {
			return nil, fmt.Errorf("%w: want integer, got %v", ErrBadValue, v)
		}
		return int(f), nil
	case kindFloat:
		f, ok := toFloat(v)
		if !ok {
			return nil, fmt.Errorf("%w: want number, got %T", ErrBadValue, v)
		}
		return f, nil
	}
	return nil, ErrBadValue
}

// normalizeKeys normalizes a list value used by in / not_in
func normalizeKeys(kind keyKind, v any) ([]any, error) {
	rv := reflect.ValueOf(v)
	if v == nil || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return nil, fmt.Errorf("%w: want list, got %T", ErrBadValue, v)
	}
	keys := make([]any, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		k, err := normalizeKey(kind, rv.Index(i).Interface())
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, nil
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	case float32:
		return float64(x), true
	case float64:
		return x, true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	}
	return 0, false
}

// compareKeys orders two normalized keys of the same kind
func compareKeys(a, b any) int {
	switch x := a.(type) {
	case string:
		return strings.Compare(x, b.(string))
	case int:
		y := b.(int)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	case float64:
		y := b.(float64)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	}
	return 0
}
