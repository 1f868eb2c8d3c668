// Package patch delineates patches inside a single focal window placement.
//
// A patch is a maximal 4-connected run of same-class cells clipped to the
// window footprint. Patches have no identity outside the placement they were
// computed for; the Labeler reuses one scratch arena across placements so the
// per-cell hot loop does not allocate.
package patch

import (
	"fmt"

	"github.com/banshee-data/focalmetrics/internal/raster"
	"github.com/banshee-data/focalmetrics/internal/window"
)

// Patch summarises one connected component of a window placement.
type Patch struct {
	Class     int32
	Area      int // cells
	Perimeter int // cell sides facing a different class, nodata, the extent edge or the footprint edge
}

// Result is the labelling of one placement. Patches alias the Labeler's
// arena and are only valid until the next call to Label.
type Result struct {
	Patches    []Patch
	ValidCells int
}

// Empty reports whether the placement had no valid cells.
func (r Result) Empty() bool { return r.ValidCells == 0 }

const (
	absent    int32 = -2 // outside footprint, outside extent, or nodata
	unvisited int32 = -1
)

// Labeler is a per-worker scratch arena. It is not safe for concurrent use.
type Labeler struct {
	side    int
	labels  []int32 // per footprint-box cell: absent, unvisited or patch index
	classes []int32
	queue   []int32
	patches []Patch
}

// NewLabeler returns a Labeler with scratch sized for mask.
func NewLabeler(mask *window.Mask) *Labeler {
	l := &Labeler{}
	l.reserve(mask.Side)
	return l
}

func (l *Labeler) reserve(side int) {
	if l.side == side {
		return
	}
	n := side * side
	l.side = side
	l.labels = make([]int32, n)
	l.classes = make([]int32, n)
	l.queue = make([]int32, 0, n)
	l.patches = l.patches[:0]
}

var neighbours = [4][2]int{{0, -1}, {1, 0}, {0, 1}, {-1, 0}}

// Label delineates the patches of the window centred on (cx, cy).
//
// Cells take part only where the footprint bit is set and the block holds a
// valid class. Components are seeded in row-major footprint order and grown
// breadth-first, so patch order and contents are deterministic.
func (l *Labeler) Label(b *raster.Block, cx, cy int, mask *window.Mask) Result {
	if mask.Count() == 0 {
		panic(fmt.Sprintf("patch: footprint %v/r=%d has no cells", mask.Shape, mask.Radius))
	}
	l.reserve(mask.Side)
	side, r := mask.Side, mask.Radius

	// Step 1: classify every cell of the footprint box.
	valid := 0
	for by := 0; by < side; by++ {
		y := cy + by - r
		row := by * side
		for bx := 0; bx < side; bx++ {
			i := row + bx
			if !mask.Bits[i] {
				l.labels[i] = absent
				continue
			}
			v, ok := b.Value(cx+bx-r, y)
			if !ok {
				l.labels[i] = absent
				continue
			}
			l.labels[i] = unvisited
			l.classes[i] = v
			valid++
		}
	}

	l.patches = l.patches[:0]
	if valid == 0 {
		return Result{Patches: l.patches}
	}

	// Step 2: flood fill each unvisited cell into a patch.
	for _, o := range mask.Offsets {
		seed := int32((o.DY+r)*side + (o.DX + r))
		if l.labels[seed] != unvisited {
			continue
		}
		id := int32(len(l.patches))
		class := l.classes[seed]
		p := Patch{Class: class}

		l.labels[seed] = id
		l.queue = append(l.queue[:0], seed)
		for qi := 0; qi < len(l.queue); qi++ {
			cur := int(l.queue[qi])
			p.Area++
			bx, by := cur%side, cur/side
			for _, d := range neighbours {
				nx, ny := bx+d[0], by+d[1]
				if nx < 0 || nx >= side || ny < 0 || ny >= side {
					p.Perimeter++
					continue
				}
				j := ny*side + nx
				switch lab := l.labels[j]; {
				case lab == absent:
					p.Perimeter++
				case l.classes[j] != class:
					p.Perimeter++
				case lab == unvisited:
					l.labels[j] = id
					l.queue = append(l.queue, int32(j))
				}
			}
		}
		if p.Area == 0 {
			panic(fmt.Sprintf("patch: zero-area patch %d at focal (%d,%d)", id, cx, cy))
		}
		l.patches = append(l.patches, p)
	}

	return Result{Patches: l.patches, ValidCells: valid}
}

// PatchAt returns the patch index assigned to footprint offset (dx, dy) by
// the most recent Label call, or -1 when that cell took no part.
func (l *Labeler) PatchAt(dx, dy int) int {
	r := (l.side - 1) / 2
	if dx < -r || dx > r || dy < -r || dy > r {
		return -1
	}
	lab := l.labels[(dy+r)*l.side+(dx+r)]
	if lab < 0 {
		return -1
	}
	return int(lab)
}
