package raster

import "math"

// FloatGrid is a dense row-major raster of metric values.
type FloatGrid struct {
	Width  int
	Height int
	Values []float64
	NoData float64
	Geo    Georef
}

// NewFloatGrid allocates a grid filled with nodata.
func NewFloatGrid(width, height int, nodata float64, geo Georef) (*FloatGrid, error) {
	if err := CheckSize(width, height); err != nil {
		return nil, err
	}
	if !(geo.CellSize > 0) || math.IsInf(geo.CellSize, 0) {
		return nil, ErrCellSize
	}
	values := make([]float64, width*height)
	for i := range values {
		values[i] = nodata
	}
	return &FloatGrid{Width: width, Height: height, Values: values, NoData: nodata, Geo: geo}, nil
}

// At returns the value at (x,y).
func (g *FloatGrid) At(x, y int) float64 { return g.Values[y*g.Width+x] }

// Set stores v at (x,y).
func (g *FloatGrid) Set(x, y int, v float64) { g.Values[y*g.Width+x] = v }

// Bounds returns the grid extent.
func (g *FloatGrid) Bounds() Rect { return Rect{X1: g.Width, Y1: g.Height} }

// IsNodata reports whether v is the grid's sentinel. A NaN sentinel matches
// NaN values.
func (g *FloatGrid) IsNodata(v float64) bool {
	if math.IsNaN(g.NoData) {
		return math.IsNaN(v)
	}
	return v == g.NoData
}
