package window

import "fmt"

// Offset is a footprint cell relative to the focal cell.
type Offset struct {
	DX, DY int
}

// Mask is a rasterised footprint of side 2·Radius+1 centred on the focal cell.
// Bits is row-major over the footprint box; Offsets lists the included cells
// in the same row-major order.
type Mask struct {
	Shape   Shape
	Radius  int
	Side    int
	Bits    []bool
	Offsets []Offset
}

// Build rasterises the footprint for shape and radius. Circle includes
// (dx,dy) iff dx²+dy² ≤ radius², compared in integers.
func Build(shape Shape, radius int) *Mask {
	if radius < 0 {
		panic(fmt.Sprintf("window: Build called with negative radius %d", radius))
	}
	side := 2*radius + 1
	m := &Mask{
		Shape:  shape,
		Radius: radius,
		Side:   side,
		Bits:   make([]bool, side*side),
	}
	r2 := radius * radius
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			in := true
			if shape == Circle {
				in = dx*dx+dy*dy <= r2
			}
			if in {
				m.Bits[m.idx(dx, dy)] = true
				m.Offsets = append(m.Offsets, Offset{DX: dx, DY: dy})
			}
		}
	}
	return m
}

// BuildSpec is Build for a validated Spec.
func BuildSpec(s Spec) *Mask { return Build(s.Shape, s.Radius) }

func (m *Mask) idx(dx, dy int) int {
	return (dy+m.Radius)*m.Side + (dx + m.Radius)
}

// Contains reports whether (dx,dy) is part of the footprint.
func (m *Mask) Contains(dx, dy int) bool {
	if dx < -m.Radius || dx > m.Radius || dy < -m.Radius || dy > m.Radius {
		return false
	}
	return m.Bits[m.idx(dx, dy)]
}

// Index returns the footprint-box index of (dx,dy), or -1 when (dx,dy) is
// outside the box.
func (m *Mask) Index(dx, dy int) int {
	if dx < -m.Radius || dx > m.Radius || dy < -m.Radius || dy > m.Radius {
		return -1
	}
	return m.idx(dx, dy)
}

// Count returns the nominal number of footprint cells.
func (m *Mask) Count() int { return len(m.Offsets) }

// BoundaryEdges counts the cell sides of the footprint that face a cell
// outside the footprint. A uniform, fully in-extent window has exactly this
// much perimeter.
func (m *Mask) BoundaryEdges() int {
	n := 0
	for _, o := range m.Offsets {
		for _, d := range neighbours4 {
			if !m.Contains(o.DX+d.DX, o.DY+d.DY) {
				n++
			}
		}
	}
	return n
}

var neighbours4 = [4]Offset{{0, -1}, {1, 0}, {0, 1}, {-1, 0}}

// String renders the footprint as rows of '#' and '.'.
func (m *Mask) String() string {
	buf := make([]byte, 0, m.Side*(m.Side+1))
	for y := 0; y < m.Side; y++ {
		for x := 0; x < m.Side; x++ {
			if m.Bits[y*m.Side+x] {
				buf = append(buf, '#')
			} else {
				buf = append(buf, '.')
			}
		}
		buf = append(buf, '\n')
	}
	return string(buf)
}
