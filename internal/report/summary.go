// Package report summarises a metric raster and renders its value
// distribution as a histogram chart.
package report

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/focalmetrics/internal/raster"
)

// Summary describes the defined (non-nodata) values of a metric raster.
// The value fields are zero when Defined is zero.
type Summary struct {
	Cells     int
	Defined   int
	Undefined int

	Min    float64
	Max    float64
	Mean   float64
	StdDev float64
	Median float64
}

func (s Summary) String() string {
	if s.Defined == 0 {
		return fmt.Sprintf("%d cells, none defined", s.Cells)
	}
	return fmt.Sprintf("%d cells, %d undefined, min %g max %g mean %g sd %g median %g",
		s.Cells, s.Undefined, s.Min, s.Max, s.Mean, s.StdDev, s.Median)
}

// DefinedValues returns the grid's values that are neither nodata nor
// non-finite, in row-major order.
func DefinedValues(g *raster.FloatGrid) []float64 {
	out := make([]float64, 0, len(g.Values))
	for _, v := range g.Values {
		if g.IsNodata(v) || math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out = append(out, v)
	}
	return out
}

// Summarize computes the summary of g.
func Summarize(g *raster.FloatGrid) Summary {
	vals := DefinedValues(g)
	s := Summary{
		Cells:     len(g.Values),
		Defined:   len(vals),
		Undefined: len(g.Values) - len(vals),
	}
	if len(vals) == 0 {
		return s
	}
	sort.Float64s(vals)
	s.Min = floats.Min(vals)
	s.Max = floats.Max(vals)
	if len(vals) > 1 {
		s.Mean, s.StdDev = stat.MeanStdDev(vals, nil)
	} else {
		s.Mean = vals[0]
	}
	s.Median = stat.Quantile(0.5, stat.Empirical, vals, nil)
	return s
}
