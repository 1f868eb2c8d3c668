// Command gen-landscape writes a random clustered categorical raster for
// benchmarks and demos.
package main

import (
	"flag"
	"log"

	"github.com/banshee-data/focalmetrics/internal/raster"
	"github.com/banshee-data/focalmetrics/internal/rasterio"
)

func main() {
	out := flag.String("out", "landscape.lrt", "output raster (.asc or .lrt)")
	width := flag.Int("width", 1024, "columns")
	height := flag.Int("height", 1024, "rows")
	classes := flag.Int("classes", 6, "number of class codes, 0..classes-1")
	smooth := flag.Int("smooth", 4, "majority-filter passes")
	nodataPct := flag.Int("nodata-pct", 0, "percentage of nodata cells")
	seed := flag.Int64("seed", 1, "random seed")
	cellSize := flag.Float64("cellsize", 30, "cell size in map units")
	originX := flag.Float64("x", 0, "x of the upper-left corner")
	originY := flag.Float64("y", 0, "y of the upper-left corner")
	tile := flag.Int("tile", 256, "tile edge for .lrt output")
	compression := flag.String("compression", "default", "zstd level for .lrt output: fastest, default, better, best")
	flag.Parse()

	g, err := Generate(Params{
		Width:        *width,
		Height:       *height,
		Classes:      *classes,
		SmoothPasses: *smooth,
		NodataPct:    *nodataPct,
		Seed:         *seed,
		Nodata:       raster.DefaultNodata,
		Geo:          raster.Georef{OriginX: *originX, OriginY: *originY, CellSize: *cellSize},
	})
	if err != nil {
		log.Fatalf("generate: %v", err)
	}
	if err := rasterio.WriteClasses(*out, g, rasterio.Options{TileSize: *tile, Compression: *compression}); err != nil {
		log.Fatalf("write %s: %v", *out, err)
	}
	log.Printf("wrote %s: %dx%d cells, %d classes, seed %d", *out, g.Width, g.Height, *classes, *seed)
}
