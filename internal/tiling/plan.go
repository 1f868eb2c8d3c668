// Package tiling runs a focal metric over a raster tile by tile.
//
// The raster is cut into square core tiles. Each tile is read together with a
// halo of radius cells, clipped at the raster edge, so every window placement
// of a core cell sees the same cells it would see on the whole raster. Tiles
// are independent and run on a worker pool.
package tiling

import (
	"fmt"

	"github.com/banshee-data/focalmetrics/internal/raster"
)

// Tile is one unit of work.
type Tile struct {
	Index int
	Core  raster.Rect // output cells owned by this tile
	Halo  raster.Rect // Core grown by the window radius, clipped to the extent
}

func (t Tile) String() string {
	return fmt.Sprintf("tile %d core %v halo %v", t.Index, t.Core, t.Halo)
}

// Plan cuts extent into row-major tiles of at most size×size core cells.
// Edge tiles are clipped to the extent.
func Plan(extent raster.Rect, size, radius int) []Tile {
	if size <= 0 {
		panic(fmt.Sprintf("tiling: tile size %d", size))
	}
	if radius < 0 {
		panic(fmt.Sprintf("tiling: radius %d", radius))
	}
	var tiles []Tile
	for y := extent.Y0; y < extent.Y1; y += size {
		for x := extent.X0; x < extent.X1; x += size {
			core := raster.R(x, y, x+size, y+size).Intersect(extent)
			tiles = append(tiles, Tile{
				Index: len(tiles),
				Core:  core,
				Halo:  core.Inset(radius).Intersect(extent),
			})
		}
	}
	return tiles
}
