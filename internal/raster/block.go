package raster

// Block is a read-only window of class cells addressed in raster
// coordinates. Rect is the area the block holds; Extent is the full raster.
//
// Cells[0] is the cell at (Rect.X0, Rect.Y0) and rows are Stride apart, so a
// block can alias its parent grid without copying.
//
// The scheduler sizes blocks so that every window placement of a tile cell
// either stays inside Rect or leaves Extent. Lookups outside Rect are
// therefore treated as outside the raster.
type Block struct {
	Rect   Rect
	Extent Rect
	Stride int
	Cells  []int32
	Nodata int32
}

// Value returns the class at (x,y) and whether it is a valid (in-extent,
// non-nodata) cell.
func (b *Block) Value(x, y int) (int32, bool) {
	if !b.Rect.Contains(x, y) {
		return 0, false
	}
	v := b.Cells[(y-b.Rect.Y0)*b.Stride+(x-b.Rect.X0)]
	if v == b.Nodata {
		return 0, false
	}
	return v, true
}

// Raw returns the stored value at (x,y), nodata included. (x,y) must be in Rect.
func (b *Block) Raw(x, y int) int32 {
	return b.Cells[(y-b.Rect.Y0)*b.Stride+(x-b.Rect.X0)]
}

// NewBlock wraps a dense row-major slice covering r.
func NewBlock(r, extent Rect, cells []int32, nodata int32) *Block {
	return &Block{Rect: r, Extent: extent, Stride: r.Dx(), Cells: cells, Nodata: nodata}
}
