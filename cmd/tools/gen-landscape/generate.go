package main

import (
	"fmt"
	"math/rand"

	"github.com/banshee-data/focalmetrics/internal/raster"
)

// Params controls landscape generation.
type Params struct {
	Width, Height int
	Classes       int
	SmoothPasses  int // majority-filter passes; more passes give larger patches
	NodataPct     int // percentage of cells set to nodata after smoothing
	Seed          int64
	Nodata        int32
	Geo           raster.Georef
}

// Generate builds a clustered categorical raster: uniform random classes
// followed by SmoothPasses rounds of a 3x3 majority filter. The same Params
// always produce the same grid.
func Generate(p Params) (*raster.Grid, error) {
	if p.Classes < 1 {
		return nil, fmt.Errorf("classes must be positive, got %d", p.Classes)
	}
	if p.NodataPct < 0 || p.NodataPct > 100 {
		return nil, fmt.Errorf("nodata percentage must be in [0,100], got %d", p.NodataPct)
	}
	if p.Nodata >= 0 && int(p.Nodata) < p.Classes {
		return nil, fmt.Errorf("nodata %d collides with class codes 0..%d", p.Nodata, p.Classes-1)
	}
	g, err := raster.NewGrid(p.Width, p.Height, p.Nodata, p.Geo)
	if err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(p.Seed))
	for i := range g.Cells {
		g.Cells[i] = int32(rng.Intn(p.Classes))
	}

	next := make([]int32, len(g.Cells))
	counts := make([]int, p.Classes)
	for pass := 0; pass < p.SmoothPasses; pass++ {
		for y := 0; y < g.Height; y++ {
			for x := 0; x < g.Width; x++ {
				next[g.Idx(x, y)] = majority(g, x, y, counts)
			}
		}
		g.Cells, next = next, g.Cells
	}

	for i := range g.Cells {
		if rng.Intn(100) < p.NodataPct {
			g.Cells[i] = p.Nodata
		}
	}
	return g, nil
}

// majority returns the most frequent class in the 3x3 neighbourhood of
// (x,y), clipped to the grid. Ties keep the current class when it is among
// the leaders, otherwise the smallest leading code wins.
func majority(g *raster.Grid, x, y int, counts []int) int32 {
	for i := range counts {
		counts[i] = 0
	}
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if g.InBounds(x+dx, y+dy) {
				counts[g.At(x+dx, y+dy)]++
			}
		}
	}
	cur := g.At(x, y)
	best := cur
	for c, n := range counts {
		if n > counts[best] {
			best = int32(c)
		}
	}
	return best
}
