package index

import (
	"sort"

	"github.com/nainya/codexindex/pkg/node"
)

// Theme is a canned combination of water state, chakra and frequency
type Theme struct {
	WaterState string `json:"water_state"`
	Chakra     string `json:"chakra"`
	Frequency  string `json:"frequency"`
}

// Themes maps theme names to their ontology triple
var Themes = map[string]Theme{
	"ice":    {node.WaterIce, node.ChakraCrown, node.Freq963},
	"liquid": {node.WaterLiquid, node.ChakraHeart, node.Freq639},
	"vapor":  {node.WaterVapor, node.ChakraThirdEye, node.Freq852},
	"plasma": {node.WaterPlasma, node.ChakraRoot, node.Freq396},
}

// FindByTheme returns nodes matching all three tags of a theme, in
// water-state bucket order. Unknown themes yield nothing.
func (ix *Index) FindByTheme(name string) []*Entry {
	theme, ok := Themes[name]
	if !ok {
		return nil
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	chakra := idSet(ix.single[FieldChakra][theme.Chakra])
	freq := idSet(ix.single[FieldFrequency][theme.Frequency])

	var out []*Entry
	for _, e := range ix.single[FieldWaterState][theme.WaterState] {
		if chakra[e.NodeID] && freq[e.NodeID] {
			out = append(out, e)
		}
	}
	return out
}

// FindByResonancePattern filters a resonance bucket by the coherence and
// dissonance values stored in each entry's metadata
func (ix *Index) FindByResonancePattern(pattern string, minCoherence, maxDissonance float64) []*Entry {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	var out []*Entry
	for _, e := range ix.single[FieldResonancePattern][pattern] {
		coherence := metaFloat(e.Metadata, "coherence_score", 0.0)
		dissonance := metaFloat(e.Metadata, "dissonance_level", 1.0)
		if coherence >= minCoherence && dissonance <= maxDissonance {
			out = append(out, e)
		}
	}
	return out
}

// FindByFractalDepthRange unions the fractal-depth buckets in [minDepth,
// maxDepth], ascending by depth. A non-empty consciousness keeps only
// entries at that level.
func (ix *Index) FindByFractalDepthRange(minDepth, maxDepth int, consciousness string) []*Entry {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	bucket := ix.single[FieldFractalDepth]
	depths := make([]int, 0, len(bucket))
	for k := range bucket {
		d := k.(int)
		if d >= minDepth && d <= maxDepth {
			depths = append(depths, d)
		}
	}
	sort.Ints(depths)

	var out []*Entry
	for _, d := range depths {
		for _, e := range bucket[d] {
			if consciousness != "" && e.Metadata["consciousness_level"] != consciousness {
				continue
			}
			out = append(out, e)
		}
	}
	return out
}

// FindByEpistemicAlignment returns the primary label's bucket, intersected
// with the secondary label's bucket when one is given
func (ix *Index) FindByEpistemicAlignment(primary, secondary string) []*Entry {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	labels := ix.single[FieldEpistemicLabel]
	first, ok := labels[primary]
	if !ok {
		return nil
	}
	if secondary == "" {
		return cloneEntries(first)
	}
	second, ok := labels[secondary]
	if !ok {
		return nil
	}
	return intersect(first, second)
}

func idSet(entries []*Entry) map[string]bool {
	set := make(map[string]bool, len(entries))
	for _, e := range entries {
		set[e.NodeID] = true
	}
	return set
}

func metaFloat(meta map[string]any, key string, fallback float64) float64 {
	v, ok := meta[key]
	if !ok {
		return fallback
	}
	if f, ok := toFloat(v); ok {
		return f
	}
	return fallback
}
