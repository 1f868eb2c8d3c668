// Package output accumulates per-cell metric values and persists them as a
// raster congruent with the input.
package output

import (
	"context"
	"fmt"

	"github.com/banshee-data/focalmetrics/internal/raster"
	"github.com/banshee-data/focalmetrics/internal/rasterio"
)

// Buffer holds one float64 per input cell. Cells start as nodata.
//
// Concurrent writers must use disjoint Regions; the buffer itself takes no
// locks.
type Buffer struct {
	grid *raster.FloatGrid
}

// NewBuffer allocates a width×height buffer filled with nodata.
func NewBuffer(width, height int, nodata float64, geo raster.Georef) (*Buffer, error) {
	g, err := raster.NewFloatGrid(width, height, nodata, geo)
	if err != nil {
		return nil, fmt.Errorf("output buffer: %w", err)
	}
	return &Buffer{grid: g}, nil
}

// Bounds returns the buffer extent.
func (b *Buffer) Bounds() raster.Rect { return b.grid.Bounds() }

// Nodata returns the sentinel written for undefined cells.
func (b *Buffer) Nodata() float64 { return b.grid.NoData }

// At returns the value stored at (x,y).
func (b *Buffer) At(x, y int) float64 { return b.grid.At(x, y) }

// Grid exposes the underlying raster. Callers must not write to it while
// regions are in use.
func (b *Buffer) Grid() *raster.FloatGrid { return b.grid }

// Region returns a write handle limited to r.
func (b *Buffer) Region(r raster.Rect) Region {
	if !b.Bounds().ContainsRect(r) {
		panic(fmt.Sprintf("output: region %v outside buffer %v", r, b.Bounds()))
	}
	return Region{buf: b, rect: r}
}

// Region is a tile's exclusive slice of a Buffer.
type Region struct {
	buf  *Buffer
	rect raster.Rect
}

// Rect returns the cells this region may write.
func (r Region) Rect() raster.Rect { return r.rect }

// Set stores v at (x,y). Writing outside the region is a scheduler bug and
// panics.
func (r Region) Set(x, y int, v float64) {
	if !r.rect.Contains(x, y) {
		panic(fmt.Sprintf("output: write at (%d,%d) outside region %v", x, y, r.rect))
	}
	r.buf.grid.Set(x, y, v)
}

// IsNodata reports whether a stored v would read back as nodata.
func (r Region) IsNodata(v float64) bool { return r.buf.grid.IsNodata(v) }

// SetUndefined marks (x,y) as nodata.
func (r Region) SetUndefined(x, y int) {
	r.Set(x, y, r.buf.grid.NoData)
}

// Writer persists buffers through rasterio.
type Writer struct {
	Opts rasterio.Options
}

// NewWriter returns a Writer using opts for the output codec.
func NewWriter(opts rasterio.Options) *Writer {
	return &Writer{Opts: opts}
}

// Write atomically stores buf at path with georef geo. Nothing is written
// when ctx is already done.
func (w *Writer) Write(ctx context.Context, path string, buf *Buffer, geo raster.Georef) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g := *buf.grid
	g.Geo = geo
	if err := rasterio.WriteFloat(path, &g, w.Opts); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
