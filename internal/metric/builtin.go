package metric

import (
	"math"

	"github.com/banshee-data/focalmetrics/internal/patch"
)

// Built-in identifiers.
const (
	AreaWeightedPatchSize ID = "AreaWeightedPatchSize"
	EdgeDensity           ID = "EdgeDensity"
	PatchCount            ID = "PatchCount"
	MeanPatchSize         ID = "MeanPatchSize"
	ShannonDiversity      ID = "ShannonDiversity"
	MostCommonClass       ID = "MostCommonClass"
)

// Builtins returns fresh descriptors for every built-in metric.
func Builtins() []Descriptor {
	return []Descriptor{
		{ID: AreaWeightedPatchSize, Func: areaWeightedPatchSize, Dimension: 2,
			Description: "sum of squared patch areas over total patch area"},
		{ID: EdgeDensity, Func: edgeDensity, Dimension: -1,
			Description: "total patch perimeter over valid window cells"},
		{ID: PatchCount, Func: patchCount, Dimension: 0,
			Description: "number of patches in the window"},
		{ID: MeanPatchSize, Func: meanPatchSize, Dimension: 2,
			Description: "mean patch area"},
		{ID: ShannonDiversity, Func: shannonDiversity, Dimension: 0,
			Description: "Shannon entropy of class area proportions"},
		{ID: MostCommonClass, Func: mostCommonClass, Dimension: 0,
			Description: "class covering the largest area, smallest code on ties"},
	}
}

func areaWeightedPatchSize(patches []patch.Patch, _ int) (float64, bool) {
	if len(patches) == 0 {
		return 0, false
	}
	var sum, sumSq float64
	for _, p := range patches {
		a := float64(p.Area)
		sum += a
		sumSq += a * a
	}
	if sum == 0 {
		return 0, false
	}
	return sumSq / sum, true
}

func edgeDensity(patches []patch.Patch, validCells int) (float64, bool) {
	if validCells == 0 {
		return 0, false
	}
	perimeter := 0
	for _, p := range patches {
		perimeter += p.Perimeter
	}
	return float64(perimeter) / float64(validCells), true
}

func patchCount(patches []patch.Patch, _ int) (float64, bool) {
	if len(patches) == 0 {
		return 0, false
	}
	return float64(len(patches)), true
}

func meanPatchSize(patches []patch.Patch, _ int) (float64, bool) {
	if len(patches) == 0 {
		return 0, false
	}
	area := 0
	for _, p := range patches {
		area += p.Area
	}
	return float64(area) / float64(len(patches)), true
}

// classArea sums the area of every patch sharing patches[i]'s class, and
// reports whether i is the first patch of that class. Windows hold few
// patches, so the quadratic scan avoids a per-cell map allocation.
func classArea(patches []patch.Patch, i int) (area int, first bool) {
	c := patches[i].Class
	for j := 0; j < i; j++ {
		if patches[j].Class == c {
			return 0, false
		}
	}
	for j := i; j < len(patches); j++ {
		if patches[j].Class == c {
			area += patches[j].Area
		}
	}
	return area, true
}

func shannonDiversity(patches []patch.Patch, _ int) (float64, bool) {
	if len(patches) == 0 {
		return 0, false
	}
	total := 0
	for _, p := range patches {
		total += p.Area
	}
	h := 0.0
	for i := range patches {
		area, first := classArea(patches, i)
		if !first || area == 0 {
			continue
		}
		pi := float64(area) / float64(total)
		h -= pi * math.Log(pi)
	}
	if h == 0 {
		// avoid -0 for single-class windows
		h = 0
	}
	return h, true
}

func mostCommonClass(patches []patch.Patch, _ int) (float64, bool) {
	if len(patches) == 0 {
		return 0, false
	}
	best, bestArea := int32(0), -1
	for i := range patches {
		area, first := classArea(patches, i)
		if !first {
			continue
		}
		c := patches[i].Class
		if area > bestArea || (area == bestArea && c < best) {
			best, bestArea = c, area
		}
	}
	return float64(best), true
}
