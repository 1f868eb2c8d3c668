// Package window rasterises focal window footprints.
//
// A Mask is built once per (shape, radius) pair and shared read-only by every
// worker for every window placement of a run.
package window

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Shape is the closed set of window shapes.
type Shape int

const (
	// Square includes every cell of the (2r+1)×(2r+1) box.
	Square Shape = iota + 1
	// Circle includes cells whose centre lies within r of the focal centre.
	Circle
)

var (
	// ErrUnknownShape indicates a shape name outside {square, circle}.
	ErrUnknownShape = errors.New("window: unknown shape")
	// ErrRadius indicates a radius that is negative, NaN or infinite.
	ErrRadius = errors.New("window: radius must be a finite positive number")
	// ErrCellSize indicates a cell size that cannot convert a map radius.
	ErrCellSize = errors.New("window: cell size must be a finite positive number")
)

func (s Shape) String() string {
	switch s {
	case Square:
		return "square"
	case Circle:
		return "circle"
	default:
		return fmt.Sprintf("Shape(%d)", int(s))
	}
}

// ParseShape maps a case-insensitive name to a Shape.
func ParseShape(name string) (Shape, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "square":
		return Square, nil
	case "circle":
		return Circle, nil
	default:
		return 0, fmt.Errorf("%w %q (want square or circle)", ErrUnknownShape, name)
	}
}

// Spec is a validated window: a shape plus a radius in cells.
type Spec struct {
	Shape  Shape
	Radius int
}

// Validate checks the shape tag and radius.
func (s Spec) Validate() error {
	if s.Shape != Square && s.Shape != Circle {
		return fmt.Errorf("%w: %v", ErrUnknownShape, s.Shape)
	}
	if s.Radius < 0 {
		return fmt.Errorf("%w: got %d cells", ErrRadius, s.Radius)
	}
	return nil
}

func (s Spec) String() string {
	return fmt.Sprintf("%s(r=%d)", s.Shape, s.Radius)
}

// CellRadius converts a radius in map units to a whole number of cells,
// rounding to nearest with ties away from zero.
func CellRadius(mapRadius, cellSize float64) (int, error) {
	if math.IsNaN(mapRadius) || math.IsInf(mapRadius, 0) || mapRadius <= 0 {
		return 0, fmt.Errorf("%w: got %v", ErrRadius, mapRadius)
	}
	if math.IsNaN(cellSize) || math.IsInf(cellSize, 0) || cellSize <= 0 {
		return 0, fmt.Errorf("%w: got %v", ErrCellSize, cellSize)
	}
	r := math.Round(mapRadius / cellSize)
	if r > math.MaxInt32 {
		return 0, fmt.Errorf("%w: %v map units is %v cells", ErrRadius, mapRadius, r)
	}
	return int(r), nil
}
