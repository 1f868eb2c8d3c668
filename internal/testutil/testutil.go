// Package testutil provides shared test utilities and fixtures.
//
// This package centralises the raster fixtures used across the engine's
// package tests so each test file does not rebuild its own grids.
package testutil

import (
	"math/rand"
	"testing"

	"github.com/banshee-data/focalmetrics/internal/raster"
)

// GridFromRows builds a unit-cell grid from literal rows.
func GridFromRows(t testing.TB, nodata int32, rows [][]int32) *raster.Grid {
	t.Helper()
	g, err := raster.FromRows(rows, nodata)
	if err != nil {
		t.Fatalf("fixture: %v", err)
	}
	return g
}

// UniformGrid builds a w×h unit-cell grid where every cell holds class.
func UniformGrid(t testing.TB, w, h int, class, nodata int32) *raster.Grid {
	t.Helper()
	g, err := raster.NewGrid(w, h, nodata, raster.Georef{CellSize: 1})
	if err != nil {
		t.Fatalf("fixture: %v", err)
	}
	for i := range g.Cells {
		g.Cells[i] = class
	}
	return g
}

// RandomGrid builds a w×h grid with classes drawn from [0, classes) and
// roughly nodataPct percent of cells set to nodata. The same seed always
// yields the same grid.
func RandomGrid(t testing.TB, seed int64, w, h, classes, nodataPct int, nodata int32) *raster.Grid {
	t.Helper()
	g, err := raster.NewGrid(w, h, nodata, raster.Georef{OriginX: 500000, OriginY: 4200000, CellSize: 30})
	if err != nil {
		t.Fatalf("fixture: %v", err)
	}
	rng := rand.New(rand.NewSource(seed))
	for i := range g.Cells {
		if rng.Intn(100) < nodataPct {
			continue
		}
		g.Cells[i] = int32(rng.Intn(classes))
	}
	return g
}
