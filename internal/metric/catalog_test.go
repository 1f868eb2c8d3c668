package metric

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/focalmetrics/internal/patch"
)

func eval(t *testing.T, id ID, patches []patch.Patch, valid int) (float64, bool) {
	t.Helper()
	d, err := Default().Lookup(id)
	require.NoError(t, err)
	return d.Func(patches, valid)
}

func TestAreaWeightedPatchSize(t *testing.T) {
	t.Parallel()

	v, ok := eval(t, AreaWeightedPatchSize, []patch.Patch{
		{Class: 2, Area: 1, Perimeter: 4},
		{Class: 1, Area: 8, Perimeter: 16},
	}, 9)
	require.True(t, ok)
	assert.InDelta(t, 65.0/9.0, v, 1e-12)

	// one patch covering the window: area²/area = area
	v, ok = eval(t, AreaWeightedPatchSize, []patch.Patch{{Class: 1, Area: 25, Perimeter: 20}}, 25)
	require.True(t, ok)
	assert.Equal(t, 25.0, v)

	_, ok = eval(t, AreaWeightedPatchSize, nil, 0)
	assert.False(t, ok)
}

func TestEdgeDensity(t *testing.T) {
	t.Parallel()

	v, ok := eval(t, EdgeDensity, []patch.Patch{
		{Class: 1, Area: 8, Perimeter: 16},
		{Class: 2, Area: 1, Perimeter: 4},
	}, 9)
	require.True(t, ok)
	assert.InDelta(t, 20.0/9.0, v, 1e-12)

	// normalised by the clipped valid count, not the nominal footprint
	v, ok = eval(t, EdgeDensity, []patch.Patch{{Class: 3, Area: 9, Perimeter: 12}}, 9)
	require.True(t, ok)
	assert.InDelta(t, 12.0/9.0, v, 1e-12)

	_, ok = eval(t, EdgeDensity, nil, 0)
	assert.False(t, ok)
}

func TestSupplementaryMetrics(t *testing.T) {
	t.Parallel()

	patches := []patch.Patch{
		{Class: 1, Area: 3},
		{Class: 2, Area: 2},
		{Class: 1, Area: 1},
		{Class: 5, Area: 4},
	}

	v, ok := eval(t, PatchCount, patches, 10)
	require.True(t, ok)
	assert.Equal(t, 4.0, v)

	v, ok = eval(t, MeanPatchSize, patches, 10)
	require.True(t, ok)
	assert.Equal(t, 2.5, v)

	// class areas: 1→4, 2→2, 5→4
	v, ok = eval(t, ShannonDiversity, patches, 10)
	require.True(t, ok)
	want := -(0.4*math.Log(0.4) + 0.2*math.Log(0.2) + 0.4*math.Log(0.4))
	assert.InDelta(t, want, v, 1e-12)

	// tie between classes 1 and 5 resolves to the smaller code
	v, ok = eval(t, MostCommonClass, patches, 10)
	require.True(t, ok)
	assert.Equal(t, 1.0, v)

	v, ok = eval(t, ShannonDiversity, []patch.Patch{{Class: 7, Area: 9}}, 9)
	require.True(t, ok)
	assert.Equal(t, 0.0, v)
	assert.False(t, math.Signbit(v))

	for _, id := range []ID{PatchCount, MeanPatchSize, ShannonDiversity, MostCommonClass} {
		_, ok := eval(t, id, nil, 0)
		assert.False(t, ok, "%s on empty window", id)
	}
}

func TestCatalogLookupAliases(t *testing.T) {
	t.Parallel()

	for _, name := range []ID{"AreaWeightedPatchSize", "area_weighted_patch_size", "AREA-WEIGHTED-PATCH-SIZE"} {
		d, err := Default().Lookup(name)
		require.NoError(t, err, name)
		assert.Equal(t, AreaWeightedPatchSize, d.ID)
		assert.Equal(t, 2, d.Dimension)
	}

	_, err := Default().Lookup("Contagion")
	assert.ErrorIs(t, err, ErrUnknownMetric)
	assert.Contains(t, err.Error(), "EdgeDensity")
}

func TestCatalogRegister(t *testing.T) {
	t.Parallel()

	c := NewCatalog()
	largest := Descriptor{
		ID: "LargestPatch",
		Func: func(ps []patch.Patch, _ int) (float64, bool) {
			best := 0
			for _, p := range ps {
				if p.Area > best {
					best = p.Area
				}
			}
			return float64(best), len(ps) > 0
		},
		Dimension: 2,
	}
	require.NoError(t, c.Register(largest))
	assert.ErrorIs(t, c.Register(largest), ErrDuplicate)
	assert.Error(t, c.Register(Descriptor{ID: "nil"}))
	assert.Error(t, c.Register(Descriptor{ID: "  ", Func: largest.Func}))

	d, err := c.Lookup("largest_patch")
	require.NoError(t, err)
	v, ok := d.Func([]patch.Patch{{Area: 2}, {Area: 7}}, 9)
	assert.True(t, ok)
	assert.Equal(t, 7.0, v)
	assert.Equal(t, []ID{"LargestPatch"}, c.IDs())
}

func TestDefaultCatalogIDs(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []ID{
		AreaWeightedPatchSize, EdgeDensity, MeanPatchSize,
		MostCommonClass, PatchCount, ShannonDiversity,
	}, Default().IDs())
}
