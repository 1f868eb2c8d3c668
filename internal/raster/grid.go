package raster

import (
	"context"
	"errors"
	"fmt"
)

// DefaultNodata is the class sentinel used when an input declares none.
const DefaultNodata int32 = -2147483648

// MaxCells bounds width×height of any grid. Inputs and outputs are held in
// memory whole.
const MaxCells = 1 << 30

var (
	// ErrEmptyGrid indicates a grid with no rows or no columns.
	ErrEmptyGrid = errors.New("raster: grid must have at least one row and one column")
	// ErrNonRectangular indicates rows of differing lengths.
	ErrNonRectangular = errors.New("raster: all rows must have the same length")
	// ErrCellSize indicates a non-positive or non-finite cell size.
	ErrCellSize = errors.New("raster: cell size must be positive")
	// ErrOutOfExtent indicates a block request outside the raster extent.
	ErrOutOfExtent = errors.New("raster: requested rectangle is outside the raster extent")
	// ErrTooLarge indicates dimensions whose cell count exceeds MaxCells.
	ErrTooLarge = errors.New("raster: grid exceeds the cell limit")
)

// CheckSize reports whether a width×height grid can be allocated.
func CheckSize(width, height int) error {
	if width <= 0 || height <= 0 {
		return ErrEmptyGrid
	}
	if width > MaxCells/height {
		return fmt.Errorf("%w: %dx%d is more than %d cells", ErrTooLarge, width, height, MaxCells)
	}
	return nil
}

// Georef is the georeference block carried unchanged from input to output.
// OriginX/OriginY locate the outer corner of the upper-left cell. CRS is an
// opaque string (WKT, EPSG code or empty).
type Georef struct {
	OriginX  float64 `json:"origin_x"`
	OriginY  float64 `json:"origin_y"`
	CellSize float64 `json:"cell_size"`
	CRS      string  `json:"crs,omitempty"`
}

// Source is the tiled-read contract. Implementations must be safe for
// concurrent ReadBlock calls; the returned Block must not be mutated.
type Source interface {
	// Bounds returns the full raster extent, always anchored at (0,0).
	Bounds() Rect
	// Georef returns the georeference of the raster.
	Georef() Georef
	// Nodata returns the class sentinel.
	Nodata() int32
	// ReadBlock returns the cells of r, which must lie inside Bounds.
	ReadBlock(ctx context.Context, r Rect) (*Block, error)
}

// Grid is a dense in-memory categorical raster.
// Cells is row-major: idx = y*Width + x.
type Grid struct {
	Width  int
	Height int
	Cells  []int32
	NoData int32
	Geo    Georef
}

// NewGrid allocates a grid filled with nodata.
func NewGrid(width, height int, nodata int32, geo Georef) (*Grid, error) {
	if err := CheckSize(width, height); err != nil {
		return nil, err
	}
	if !(geo.CellSize > 0) {
		return nil, ErrCellSize
	}
	cells := make([]int32, width*height)
	for i := range cells {
		cells[i] = nodata
	}
	return &Grid{Width: width, Height: height, Cells: cells, NoData: nodata, Geo: geo}, nil
}

// FromRows builds a grid from a rectangular 2D slice with unit cell size.
// The input is deep-copied.
func FromRows(rows [][]int32, nodata int32) (*Grid, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, ErrEmptyGrid
	}
	h, w := len(rows), len(rows[0])
	cells := make([]int32, 0, w*h)
	for _, row := range rows {
		if len(row) != w {
			return nil, ErrNonRectangular
		}
		cells = append(cells, row...)
	}
	return &Grid{
		Width:  w,
		Height: h,
		Cells:  cells,
		NoData: nodata,
		Geo:    Georef{CellSize: 1},
	}, nil
}

// Idx returns the row-major index of (x,y).
func (g *Grid) Idx(x, y int) int { return y*g.Width + x }

// InBounds reports whether (x,y) lies within the grid.
func (g *Grid) InBounds(x, y int) bool {
	return x >= 0 && x < g.Width && y >= 0 && y < g.Height
}

// At returns the class at (x,y). It panics when (x,y) is out of bounds.
func (g *Grid) At(x, y int) int32 { return g.Cells[g.Idx(x, y)] }

// Set stores class v at (x,y).
func (g *Grid) Set(x, y int, v int32) { g.Cells[g.Idx(x, y)] = v }

// Bounds implements Source.
func (g *Grid) Bounds() Rect { return Rect{X1: g.Width, Y1: g.Height} }

// Georef implements Source.
func (g *Grid) Georef() Georef { return g.Geo }

// Nodata implements Source.
func (g *Grid) Nodata() int32 { return g.NoData }

// ReadBlock implements Source. The block shares the grid's backing array.
func (g *Grid) ReadBlock(ctx context.Context, r Rect) (*Block, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.Empty() || !g.Bounds().ContainsRect(r) {
		return nil, fmt.Errorf("read %v of %dx%d grid: %w", r, g.Width, g.Height, ErrOutOfExtent)
	}
	return &Block{
		Rect:   r,
		Extent: g.Bounds(),
		Stride: g.Width,
		Cells:  g.Cells[g.Idx(r.X0, r.Y0):],
		Nodata: g.NoData,
	}, nil
}

// Block returns a view of the whole grid.
func (g *Grid) Block() *Block {
	b, _ := g.ReadBlock(context.Background(), g.Bounds())
	return b
}
